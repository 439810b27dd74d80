// Package speechcache deduplicates speech-synthesis calls with a
// content-addressed artifact store on the local filesystem.
package speechcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/domain/entities"
	"github.com/mpaik/google-assistant-helper/domain/repositories"
)

// Ext is the artifact file extension. The synthesis service returns MP3.
const Ext = ".mp3"

// Cache maps a (text, voice) pair to a synthesized-audio artifact. The key
// is a digest over the text and the canonical voice descriptor, so an
// identical request is an existence check instead of a remote call.
//
// Concurrent misses for the same key may race; both synthesize the same
// bytes and the rename makes whichever write lands last win, so the race
// is benign. Entries are never evicted.
type Cache struct {
	dir    string
	synth  repositories.Synthesizer
	logger *zap.Logger
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, synth repositories.Synthesizer, logger *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir, synth: synth, logger: logger}, nil
}

// Key returns the digest addressing the artifact for (text, voice).
func Key(text string, voice entities.Voice) string {
	sum := sha256.Sum256([]byte(text + voice.Descriptor()))
	return hex.EncodeToString(sum[:])
}

// LookupOrSynthesize returns the artifact path for (text, voice),
// synthesizing and persisting it on a miss. The write is complete-or-absent:
// bytes go to a temporary file first and are renamed into place, so a later
// hit never sees a partial artifact.
func (c *Cache) LookupOrSynthesize(ctx context.Context, text string, voice entities.Voice) (string, error) {
	path := filepath.Join(c.dir, Key(text, voice)+Ext)

	if _, err := os.Stat(path); err == nil {
		c.logger.Debug("Speech cache hit",
			zap.String("artifact", filepath.Base(path)))
		return path, nil
	}

	audio, err := c.synth.Synthesize(ctx, text, voice)
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}

	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, audio, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to commit artifact: %w", err)
	}

	c.logger.Info("Speech cache miss synthesized",
		zap.String("artifact", filepath.Base(path)),
		zap.Int("bytes", len(audio)))
	return path, nil
}
