// Package assistant provides implementations of the Assistant capability.
package assistant

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mpaik/google-assistant-helper/domain/repositories"
)

const defaultModel = "gemini-2.0-flash-live-001"

// GeminiAssistant implements the Assistant interface over the Gemini Live
// API: a bidirectional channel carrying PCM audio frames out and streamed
// audio/text events back.
type GeminiAssistant struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.Assistant = (*GeminiAssistant)(nil)

// NewGeminiAssistant creates a Gemini-backed assistant. The API key is read
// from GEMINI_API_KEY.
func NewGeminiAssistant(model string, logger *zap.Logger) (*GeminiAssistant, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	return &GeminiAssistant{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// StartConversation opens one live turn. For a text query the query is sent
// as a completed client turn immediately; for audio the caller streams
// frames via Send and finishes with CloseSend.
func (g *GeminiAssistant) StartConversation(ctx context.Context, opts repositories.ConversationOptions) (repositories.ConversationStream, error) {
	if opts.TextQuery == "" && opts.Audio == nil {
		return nil, fmt.Errorf("conversation needs a text query or audio options")
	}

	session, err := g.client.Live.Connect(ctx, g.model, &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	stream := &geminiStream{
		session: session,
		events:  make(chan repositories.Event, 16),
		done:    make(chan struct{}),
		logger: g.logger.With(
			zap.String("user", opts.User),
			zap.String("model", g.model)),
	}
	go stream.receive()

	if opts.TextQuery != "" {
		err := session.SendClientContent(genai.LiveClientContentInput{
			Turns:        []*genai.Content{genai.NewContentFromText(opts.TextQuery, genai.RoleUser)},
			TurnComplete: genai.Ptr(true),
		})
		if err != nil {
			stream.Close()
			return nil, fmt.Errorf("failed to send text query: %w", err)
		}
	}

	return stream, nil
}

type geminiStream struct {
	session *genai.Session
	events  chan repositories.Event

	// done releases the receive pump when the consumer abandons the
	// stream before draining it.
	done      chan struct{}
	closeOnce sync.Once

	logger *zap.Logger
}

func (s *geminiStream) Send(frame []byte) error {
	err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     frame,
			MIMEType: "audio/pcm;rate=16000",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	return nil
}

func (s *geminiStream) CloseSend() error {
	err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
	if err != nil {
		return fmt.Errorf("failed to end audio stream: %w", err)
	}
	return nil
}

func (s *geminiStream) Events() <-chan repositories.Event {
	return s.events
}

func (s *geminiStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	if s.session == nil {
		return nil
	}
	return s.session.Close()
}

// receive pumps live server messages into the event channel until the turn
// completes, the session fails or the consumer closes the stream. The
// channel is closed after the terminal event, matching the
// ConversationStream contract.
func (s *geminiStream) receive() {
	defer close(s.events)

	for {
		msg, err := s.session.Receive()
		if err != nil {
			s.logger.Warn("Live session receive failed", zap.Error(err))
			s.emit(repositories.Event{Kind: repositories.EventEnded, Err: err})
			return
		}

		content := msg.ServerContent
		if content == nil {
			continue
		}

		if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
			if !s.emit(repositories.Event{
				Kind: repositories.EventTranscription,
				Text: content.OutputTranscription.Text,
			}) {
				return
			}
		}

		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part.Text != "" {
					if !s.emit(repositories.Event{
						Kind: repositories.EventTextReply,
						Text: part.Text,
					}) {
						return
					}
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					if !s.emit(repositories.Event{
						Kind:  repositories.EventAudio,
						Audio: part.InlineData.Data,
					}) {
						return
					}
				}
			}
		}

		if content.Interrupted {
			if !s.emit(repositories.Event{Kind: repositories.EventEndOfUtterance}) {
				return
			}
		}

		if content.TurnComplete {
			s.emit(repositories.Event{Kind: repositories.EventEnded})
			return
		}
	}
}

// emit delivers one event unless the stream has been closed. A false return
// means the consumer is gone and the pump must exit instead of blocking on
// a full channel forever.
func (s *geminiStream) emit(event repositories.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- event:
		return true
	case <-s.done:
		return false
	}
}
