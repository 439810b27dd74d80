package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// pcm builds a buffer from (value, sampleCount) pairs.
func pcm(segments ...[2]int) []byte {
	var buf []byte
	for _, seg := range segments {
		value, count := seg[0], seg[1]
		for i := 0; i < count; i++ {
			var sample [BytesPerSample]byte
			binary.LittleEndian.PutUint16(sample[:], uint16(int16(value)))
			buf = append(buf, sample[:]...)
		}
	}
	return buf
}

// silentRuns returns the byte length of every maximal silent run in buf.
func silentRuns(buf []byte, threshold int) []int {
	var runs []int
	run := 0
	for i := 0; i+BytesPerSample <= len(buf); i += BytesPerSample {
		if IsSilent(Sample(buf, i), threshold) {
			run += BytesPerSample
			continue
		}
		if run > 0 {
			runs = append(runs, run)
		}
		run = 0
	}
	if run > 0 {
		runs = append(runs, run)
	}
	return runs
}

func TestIsSilent(t *testing.T) {
	tests := []struct {
		name      string
		sample    int16
		threshold int
		want      bool
	}{
		{"zero", 0, 100, true},
		{"at threshold", 100, 100, true},
		{"just above threshold", 101, 100, false},
		{"negative within threshold", -100, 100, true},
		{"negative above threshold", -101, 100, false},
		{"loud", 12000, 100, false},
		{"most negative sample", -32768, 100, false},
	}

	for _, tt := range tests {
		if got := IsSilent(tt.sample, tt.threshold); got != tt.want {
			t.Errorf("%s: IsSilent(%d, %d) = %v, want %v",
				tt.name, tt.sample, tt.threshold, got, tt.want)
		}
	}
}

func TestTruncateSilencesBoundsEveryRun(t *testing.T) {
	maxSilence := 8000 * BytesPerSample
	// Silent runs of 12000, 5000 and 20000 samples separated by speech.
	buf := pcm(
		[2]int{5000, 100},
		[2]int{0, 12000},
		[2]int{5000, 100},
		[2]int{0, 5000},
		[2]int{5000, 100},
		[2]int{0, 20000},
		[2]int{5000, 100},
	)

	out := TruncateSilences(buf, maxSilence, DefaultSilenceThreshold)

	if len(out) > len(buf) {
		t.Errorf("output length %d exceeds input length %d", len(out), len(buf))
	}
	if len(out)%BytesPerSample != 0 {
		t.Errorf("output length %d is not sample aligned", len(out))
	}

	runs := silentRuns(out, DefaultSilenceThreshold)
	want := []int{8000 * BytesPerSample, 5000 * BytesPerSample, 8000 * BytesPerSample}
	if len(runs) != len(want) {
		t.Fatalf("got %d silent runs %v, want %d", len(runs), runs, len(want))
	}
	for i, run := range runs {
		if run != want[i] {
			t.Errorf("silent run %d has length %d, want %d", i, run, want[i])
		}
	}
}

func TestTruncateSilencesNoLongRunsUnchanged(t *testing.T) {
	maxSilence := 4000 * BytesPerSample
	buf := pcm(
		[2]int{900, 500},
		[2]int{0, 3999},
		[2]int{-900, 500},
	)

	out := TruncateSilences(buf, maxSilence, DefaultSilenceThreshold)
	if !bytes.Equal(out, buf) {
		t.Error("buffer with no run over the bound should come back unchanged")
	}
}

func TestTruncateSilencesIdempotent(t *testing.T) {
	maxSilence := 1000 * BytesPerSample
	buf := pcm(
		[2]int{0, 5000},
		[2]int{700, 300},
		[2]int{0, 2500},
		[2]int{-700, 300},
	)

	once := TruncateSilences(buf, maxSilence, DefaultSilenceThreshold)
	twice := TruncateSilences(once, maxSilence, DefaultSilenceThreshold)
	if !bytes.Equal(once, twice) {
		t.Error("truncation should be idempotent")
	}
}

func TestTruncateSilencesEntirelySilent(t *testing.T) {
	maxSilence := 2000 * BytesPerSample
	buf := pcm([2]int{0, 9000})

	out := TruncateSilences(buf, maxSilence, DefaultSilenceThreshold)
	if len(out) != maxSilence {
		t.Errorf("entirely silent buffer should truncate to %d bytes, got %d", maxSilence, len(out))
	}
}

func TestTruncateSilencesPreservesLoudOrder(t *testing.T) {
	maxSilence := 100 * BytesPerSample
	buf := pcm(
		[2]int{1000, 1},
		[2]int{0, 500},
		[2]int{2000, 1},
		[2]int{0, 500},
		[2]int{3000, 1},
	)

	out := TruncateSilences(buf, maxSilence, DefaultSilenceThreshold)

	var loud []int16
	for i := 0; i+BytesPerSample <= len(out); i += BytesPerSample {
		if s := Sample(out, i); !IsSilent(s, DefaultSilenceThreshold) {
			loud = append(loud, s)
		}
	}
	want := []int16{1000, 2000, 3000}
	if len(loud) != len(want) {
		t.Fatalf("got %d loud samples, want %d", len(loud), len(want))
	}
	for i := range want {
		if loud[i] != want[i] {
			t.Errorf("loud sample %d = %d, want %d", i, loud[i], want[i])
		}
	}
}

func TestChunkConcatenationEqualsInput(t *testing.T) {
	minSilence := 500 * BytesPerSample
	maxChunk := 4000 * BytesPerSample
	buf := pcm(
		[2]int{800, 1500},
		[2]int{0, 700},
		[2]int{800, 1500},
		[2]int{0, 700},
		[2]int{800, 1500},
		[2]int{0, 700},
		[2]int{800, 1200},
	)

	chunks, err := Chunk(buf, minSilence, maxChunk, DefaultSilenceThreshold)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}

	var joined []byte
	for i, chunk := range chunks {
		joined = append(joined, chunk...)
		if i < len(chunks)-1 && len(chunk) > maxChunk {
			t.Errorf("chunk %d has length %d, exceeds bound %d", i, len(chunk), maxChunk)
		}
	}
	if !bytes.Equal(joined, buf) {
		t.Error("concatenation of chunks does not equal the input buffer")
	}
	if len(chunks) < 2 {
		t.Errorf("expected the buffer to be split, got %d chunk(s)", len(chunks))
	}
}

func TestChunkShortBufferSingleChunk(t *testing.T) {
	buf := pcm([2]int{800, 100})
	chunks, err := Chunk(buf, 10*BytesPerSample, len(buf), DefaultSilenceThreshold)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}
	if len(chunks) != 1 || !bytes.Equal(chunks[0], buf) {
		t.Errorf("buffer within the bound should come back as one chunk, got %d", len(chunks))
	}
}

func TestChunkImpossibleWithoutSilence(t *testing.T) {
	// Continuous speech longer than the bound, no silent run anywhere.
	buf := pcm([2]int{900, 8000})
	_, err := Chunk(buf, 500*BytesPerSample, 4000*BytesPerSample, DefaultSilenceThreshold)
	if !errors.Is(err, ErrChunkingImpossible) {
		t.Errorf("expected ErrChunkingImpossible, got %v", err)
	}
}

func TestChunkIgnoresShortSilences(t *testing.T) {
	// Silent runs shorter than the minimum must not become cut points.
	buf := pcm(
		[2]int{900, 1900},
		[2]int{0, 100},
		[2]int{900, 1900},
		[2]int{0, 100},
		[2]int{900, 2000},
	)
	_, err := Chunk(buf, 500*BytesPerSample, 3000*BytesPerSample, DefaultSilenceThreshold)
	if !errors.Is(err, ErrChunkingImpossible) {
		t.Errorf("expected ErrChunkingImpossible, got %v", err)
	}
}

func TestChunkOddBoundKeepsSamplesWhole(t *testing.T) {
	// An odd bound must not let a cut land mid-sample; every chunk keeps
	// the even-length invariant.
	buf := pcm([2]int{0, 10})
	chunks, err := Chunk(buf, 2*BytesPerSample, 7, DefaultSilenceThreshold)
	if err != nil {
		t.Fatalf("Chunk returned error: %v", err)
	}

	var joined []byte
	for i, chunk := range chunks {
		if len(chunk)%BytesPerSample != 0 {
			t.Errorf("chunk %d has odd byte length %d", i, len(chunk))
		}
		joined = append(joined, chunk...)
	}
	if !bytes.Equal(joined, buf) {
		t.Error("concatenated chunks differ from input")
	}
}

func TestFrames(t *testing.T) {
	buf := pcm([2]int{900, 2500})
	frameSize := 1024

	frames := Frames(buf, frameSize)

	var total int
	for i, frame := range frames {
		total += len(frame)
		if i < len(frames)-1 && len(frame) != frameSize {
			t.Errorf("frame %d has length %d, want %d", i, len(frame), frameSize)
		}
	}
	if total != len(buf) {
		t.Errorf("frames cover %d bytes, want %d", total, len(buf))
	}
	if last := frames[len(frames)-1]; len(last) > frameSize {
		t.Errorf("last frame has length %d, exceeds frame size", len(last))
	}
}

func TestFramesEmptyInput(t *testing.T) {
	if frames := Frames(nil, 1024); frames != nil {
		t.Errorf("expected no frames for empty input, got %d", len(frames))
	}
}

func TestSilence(t *testing.T) {
	buf := Silence(32000)
	if len(buf) != 32000 {
		t.Fatalf("expected 32000 bytes of silence, got %d", len(buf))
	}
	for i := 0; i+BytesPerSample <= len(buf); i += BytesPerSample {
		if !IsSilent(Sample(buf, i), 0) {
			t.Fatalf("sample at %d is not silent", i)
		}
	}
}
