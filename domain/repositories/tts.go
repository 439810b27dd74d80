package repositories

import (
	"context"

	"github.com/mpaik/google-assistant-helper/domain/entities"
)

// Synthesizer abstracts the remote text-to-speech service.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice entities.Voice) ([]byte, error)
}
