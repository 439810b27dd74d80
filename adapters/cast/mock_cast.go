package cast

import (
	"context"
	"fmt"
	"sync"

	"github.com/mpaik/google-assistant-helper/domain/repositories"
)

// CastCall records one Cast invocation on the mock controller.
type CastCall struct {
	Target    string
	MediaURL  string
	MediaType string
}

// ControlCall records one Control invocation on the mock controller.
type ControlCall struct {
	Target  string
	Command repositories.CastCommand
}

// MockCastController is a recording implementation of the CastController
// interface for tests and local development.
type MockCastController struct {
	mu sync.Mutex

	// KnownTargets limits which friendly names resolve. Empty means all.
	KnownTargets []string

	// Err, when set, fails every call after target resolution.
	Err error

	Casts    []CastCall
	Controls []ControlCall
}

var _ repositories.CastController = (*MockCastController)(nil)

// NewMockCastController creates a mock controller accepting all targets.
func NewMockCastController() *MockCastController {
	return &MockCastController{}
}

// Cast implements repositories.CastController.
func (m *MockCastController) Cast(ctx context.Context, target, mediaURL, mediaType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkTarget(target); err != nil {
		return err
	}
	if m.Err != nil {
		return m.Err
	}
	m.Casts = append(m.Casts, CastCall{Target: target, MediaURL: mediaURL, MediaType: mediaType})
	return nil
}

// Control implements repositories.CastController.
func (m *MockCastController) Control(ctx context.Context, target string, cmd repositories.CastCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := m.checkTarget(target); err != nil {
		return err
	}
	if m.Err != nil {
		return m.Err
	}
	m.Controls = append(m.Controls, ControlCall{Target: target, Command: cmd})
	return nil
}

// CastCount returns how many cast loads were recorded.
func (m *MockCastController) CastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Casts)
}

// ControlCount returns how many transport controls were recorded.
func (m *MockCastController) ControlCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Controls)
}

func (m *MockCastController) checkTarget(target string) error {
	if len(m.KnownTargets) == 0 {
		return nil
	}
	for _, known := range m.KnownTargets {
		if known == target {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", repositories.ErrUnknownTarget, target)
}
