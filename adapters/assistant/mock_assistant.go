package assistant

import (
	"context"
	"fmt"
	"sync"

	"github.com/mpaik/google-assistant-helper/domain/repositories"
)

// MockAssistant is a scriptable implementation of the Assistant interface
// for tests and local development. Each conversation replays the configured
// event script after the outbound side completes.
type MockAssistant struct {
	mu sync.Mutex

	// Script is replayed to every conversation after CloseSend (or
	// immediately for text queries).
	Script []repositories.Event

	// Started records the options of every conversation opened.
	Started []repositories.ConversationOptions

	// SentFrames records outbound audio frames per conversation order.
	SentFrames [][]byte

	// StartErr, when set, fails StartConversation.
	StartErr error
}

// NewMockAssistant creates a mock assistant with a default scripted reply.
func NewMockAssistant() *MockAssistant {
	return &MockAssistant{
		Script: []repositories.Event{
			{Kind: repositories.EventTextReply, Text: "Sure, done."},
			{Kind: repositories.EventEnded},
		},
	}
}

// StartConversation implements repositories.Assistant.
func (m *MockAssistant) StartConversation(ctx context.Context, opts repositories.ConversationOptions) (repositories.ConversationStream, error) {
	m.mu.Lock()
	if m.StartErr != nil {
		m.mu.Unlock()
		return nil, m.StartErr
	}
	if opts.TextQuery == "" && opts.Audio == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("conversation needs a text query or audio options")
	}
	m.Started = append(m.Started, opts)

	stream := &mockStream{
		parent: m,
		events: make(chan repositories.Event, len(m.Script)+1),
	}
	m.mu.Unlock()

	if opts.TextQuery != "" {
		stream.replay()
	}
	return stream, nil
}

// StartCount returns how many conversations have been opened.
func (m *MockAssistant) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Started)
}

type mockStream struct {
	parent   *MockAssistant
	events   chan repositories.Event
	replayed sync.Once
}

func (s *mockStream) Send(frame []byte) error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	buf := make([]byte, len(frame))
	copy(buf, frame)
	s.parent.SentFrames = append(s.parent.SentFrames, buf)
	return nil
}

func (s *mockStream) CloseSend() error {
	s.replay()
	return nil
}

func (s *mockStream) Events() <-chan repositories.Event {
	return s.events
}

func (s *mockStream) Close() error {
	return nil
}

func (s *mockStream) replay() {
	s.replayed.Do(func() {
		s.parent.mu.Lock()
		script := append([]repositories.Event(nil), s.parent.Script...)
		s.parent.mu.Unlock()
		for _, event := range script {
			s.events <- event
		}
		close(s.events)
	})
}
