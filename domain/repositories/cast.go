package repositories

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTarget is returned when no cast receiver with the requested
// friendly name is reachable. Distinct from transport failures so callers
// can tell a configuration problem from a network one.
var ErrUnknownTarget = errors.New("cast target not found")

// CastCommandType enumerates the supported transport controls.
type CastCommandType string

const (
	CastPlay  CastCommandType = "PLAY"
	CastPause CastCommandType = "PAUSE"
	CastStop  CastCommandType = "STOP"
	CastSeek  CastCommandType = "SEEK"
)

// CastCommand is one transport control request. CurrentTime is the target
// offset in seconds and is only meaningful for SEEK.
type CastCommand struct {
	Type        CastCommandType
	CurrentTime int
}

// Validate checks the command against the enumerated set. SEEK requires a
// non-negative time offset.
func (c CastCommand) Validate() error {
	switch c.Type {
	case CastPlay, CastPause, CastStop:
		return nil
	case CastSeek:
		if c.CurrentTime < 0 {
			return fmt.Errorf("seek time must be non-negative, got %d", c.CurrentTime)
		}
		return nil
	default:
		return fmt.Errorf("unknown cast command %q", c.Type)
	}
}

// CastController abstracts discovery and control of cast-capable receivers.
// Both operations are independently fallible; an unknown target is reported
// as ErrUnknownTarget.
type CastController interface {
	// Cast loads mediaURL on the receiver with the given friendly name.
	Cast(ctx context.Context, target, mediaURL, mediaType string) error
	// Control applies a transport command to the receiver's current media.
	Control(ctx context.Context, target string, cmd CastCommand) error
}
