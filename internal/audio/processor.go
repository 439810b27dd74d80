// Package audio provides pure transformations over raw 16-bit little-endian
// PCM buffers: silence detection, silence truncation, silence-aware chunking
// and fixed-size framing for outbound streaming.
//
// All lengths are expressed in bytes. One sample is BytesPerSample bytes; a
// valid buffer always has even length. The sample rate (16 kHz) is a contract
// with the callers and is not carried in-band.
package audio

import (
	"encoding/binary"
	"errors"
)

const (
	// BytesPerSample is the width of one signed 16-bit PCM sample.
	BytesPerSample = 2

	// DefaultSilenceThreshold is the absolute sample value at or below
	// which a sample counts as silence.
	DefaultSilenceThreshold = 100
)

// ErrChunkingImpossible is returned by Chunk when a buffer longer than the
// chunk bound contains no silent run long enough to cut at. Splitting such a
// buffer would cut through an utterance, so the operation refuses instead.
var ErrChunkingImpossible = errors.New("no silent run to cut at within chunk bound")

// Sample decodes the little-endian sample starting at byte offset i.
func Sample(buf []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(buf[i : i+BytesPerSample]))
}

// IsSilent reports whether a sample counts as silence. The comparison uses
// the absolute sample value: |sample| <= threshold.
func IsSilent(sample int16, threshold int) bool {
	v := int(sample)
	if v < 0 {
		v = -v
	}
	return v <= threshold
}

// TruncateSilences bounds every silent run in buf to at most maxSilenceBytes.
// Samples beyond the bound inside a run are dropped; non-silent samples and
// their relative order are preserved. The input slice is not modified.
//
// A buffer with no run exceeding the bound comes back byte-identical, and the
// operation is idempotent.
func TruncateSilences(buf []byte, maxSilenceBytes, threshold int) []byte {
	out := make([]byte, 0, len(buf))
	run := 0
	for i := 0; i+BytesPerSample <= len(buf); i += BytesPerSample {
		if IsSilent(Sample(buf, i), threshold) {
			run += BytesPerSample
			if run > maxSilenceBytes {
				continue
			}
		} else {
			run = 0
		}
		out = append(out, buf[i], buf[i+1])
	}
	return out
}

// Chunk splits buf into sub-buffers no longer than maxChunkBytes, cutting
// only at the end of a silent run at least minSilenceBytes long. The
// concatenation of the returned chunks equals buf. The final remainder is
// always emitted, however short.
//
// When a stretch longer than maxChunkBytes contains no qualifying silent
// run, Chunk fails with ErrChunkingImpossible rather than mis-splitting.
func Chunk(buf []byte, minSilenceBytes, maxChunkBytes, threshold int) ([][]byte, error) {
	var chunks [][]byte
	rest := buf
	for len(rest) > maxChunkBytes {
		cut := 0
		run := 0
		// The scan bound stays on a sample boundary so a cut can never
		// split a 16-bit sample across two chunks.
		scanEnd := maxChunkBytes / BytesPerSample * BytesPerSample
		for i := 0; i+BytesPerSample <= scanEnd; i += BytesPerSample {
			if IsSilent(Sample(rest, i), threshold) {
				run += BytesPerSample
				continue
			}
			if run >= minSilenceBytes {
				// The loud sample at i terminates a qualifying
				// silent run; the run's end is a cut candidate.
				cut = i
			}
			run = 0
		}
		if run >= minSilenceBytes {
			cut = scanEnd
		}
		if cut == 0 {
			return nil, ErrChunkingImpossible
		}
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	return append(chunks, rest), nil
}

// Frames divides buf into consecutive frames of frameSize bytes for outbound
// streaming pacing. The last frame may be shorter. Frames never fails and is
// not silence-aware; the returned slices alias buf.
func Frames(buf []byte, frameSize int) [][]byte {
	if frameSize <= 0 || len(buf) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(buf)+frameSize-1)/frameSize)
	for start := 0; start < len(buf); start += frameSize {
		end := start + frameSize
		if end > len(buf) {
			end = len(buf)
		}
		frames = append(frames, buf[start:end])
	}
	return frames
}

// Silence returns n bytes of silent samples. n is rounded down to a whole
// number of samples.
func Silence(n int) []byte {
	return make([]byte, n/BytesPerSample*BytesPerSample)
}
