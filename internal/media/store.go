// Package media publishes audio buffers as HTTP-fetchable files for cast
// receivers, which pull media themselves rather than accepting a push.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/internal/audio"
)

// Store writes audio files into a directory the HTTP layer serves under
// /media and derives the URL cast receivers fetch them from.
type Store struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// New creates a media store rooted at dir, creating it if needed. baseURL
// is the externally reachable base URL of this process.
func New(dir, baseURL string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Dir returns the directory the HTTP layer should serve.
func (s *Store) Dir() string {
	return s.dir
}

// PublishPCM wraps a raw PCM buffer in a WAV container, writes it under
// name and returns the URL a cast receiver can fetch it from.
func (s *Store) PublishPCM(name string, pcm []byte) (string, error) {
	filename := name + ".wav"
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, audio.SampleRate), 0o644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	url := s.URLFor(filename)
	s.logger.Debug("Published media",
		zap.String("file", filename),
		zap.Int("pcmBytes", len(pcm)))
	return url, nil
}

// URLFor returns the external URL for a file already present in the media
// directory.
func (s *Store) URLFor(filename string) string {
	return s.baseURL + "/media/" + filename
}
