package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/domain/entities"
	"github.com/mpaik/google-assistant-helper/domain/repositories"
	"github.com/mpaik/google-assistant-helper/internal/audio"
	"github.com/mpaik/google-assistant-helper/internal/config"
	"github.com/mpaik/google-assistant-helper/internal/media"
	"github.com/mpaik/google-assistant-helper/internal/websocket"
)

// ConversationRequest describes one logical exchange to drive with the
// assistant: either a free-text query or a pre-recorded outbound buffer.
type ConversationRequest struct {
	User      string
	TextQuery string

	// Audio is the outbound utterance, 16-bit LE PCM at 16 kHz.
	Audio []byte

	// AudioEncoding is the inbound encoding when continuing an exchange.
	AudioEncoding string

	// FollowUpAudio is streamed on a continuation turn when the
	// assistant invites one.
	FollowUpAudio []byte

	// BroadcastAudioResponse re-broadcasts an accumulated audio reply
	// instead of discarding it after it is read as text.
	BroadcastAudioResponse bool

	// RelayTextReply re-enters the broadcast path with a textual reply.
	// Set for custom commands, never for broadcasts themselves.
	RelayTextReply bool
}

// turnOutcome is the result of one turn of the continue loop.
type turnOutcome int

const (
	turnDone turnOutcome = iota
	turnContinue
)

// ConversationService owns every in-flight conversation: the counter that
// identifies them, their accumulating buffers and the drive loop for each
// exchange. The registry maps are mutex-guarded; each buffer itself is only
// touched by the goroutine running its conversation.
type ConversationService struct {
	assistant repositories.Assistant
	cast      repositories.CastController
	media     *media.Store
	hub       *websocket.Hub

	users    map[string]config.UserConfig
	audioCfg config.AudioConfig

	logger *zap.Logger

	mu      sync.Mutex
	counter uint64
	active  map[uint64]*entities.Conversation

	// rebroadcasts tracks fire-and-forget reply re-broadcasts so shutdown
	// can drain them.
	rebroadcasts sync.WaitGroup
}

// NewConversationService creates the conversation engine. hub may be nil
// when no observer feed is wanted.
func NewConversationService(
	assistant repositories.Assistant,
	cast repositories.CastController,
	mediaStore *media.Store,
	hub *websocket.Hub,
	users map[string]config.UserConfig,
	audioCfg config.AudioConfig,
	logger *zap.Logger,
) (*ConversationService, error) {
	if audioCfg.SaveConversations {
		if err := os.MkdirAll(audioCfg.SaveDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create conversation save directory: %w", err)
		}
	}
	return &ConversationService{
		assistant: assistant,
		cast:      cast,
		media:     mediaStore,
		hub:       hub,
		users:     users,
		audioCfg:  audioCfg,
		logger:    logger,
		active:    make(map[uint64]*entities.Conversation),
	}, nil
}

// Run drives one exchange to completion, including any continuation turns
// the assistant invites. Callers have already received their HTTP ack, so
// failures here are logged by the caller, not surfaced.
func (s *ConversationService) Run(ctx context.Context, req ConversationRequest) error {
	if _, ok := s.users[req.User]; !ok {
		return fmt.Errorf("no assistant configured for user %q", req.User)
	}
	if req.TextQuery == "" && len(req.Audio) == 0 {
		return fmt.Errorf("conversation needs a text query or audio")
	}

	conv := s.register(req.User)
	conv.BroadcastResponse = req.BroadcastAudioResponse
	defer s.unregister(conv)

	s.publish(websocket.RelayEvent{
		Type:         "conversation_started",
		User:         conv.User,
		Conversation: conv.ID,
		Text:         req.TextQuery,
	})

	for {
		outcome, err := s.runTurn(ctx, conv, &req)
		if err != nil {
			s.publish(websocket.RelayEvent{
				Type:         "conversation_failed",
				User:         conv.User,
				Conversation: conv.ID,
			})
			return err
		}
		if outcome != turnContinue {
			s.publish(websocket.RelayEvent{
				Type:         "conversation_ended",
				User:         conv.User,
				Conversation: conv.ID,
			})
			return nil
		}
		// Follow-up turn reuses the conversation identity; the
		// continued flag suppresses a duplicate broadcast preface.
		conv.Continued = true
	}
}

// runTurn opens one turn on the assistant session, streams any outbound
// audio and consumes events until the terminal signal or the idle timeout.
func (s *ConversationService) runTurn(ctx context.Context, conv *entities.Conversation, req *ConversationRequest) (turnOutcome, error) {
	opts := repositories.ConversationOptions{
		User:     conv.User,
		Language: s.users[conv.User].Language,
	}
	if len(req.Audio) > 0 {
		encodingOut := req.AudioEncoding
		if encodingOut == "" {
			encodingOut = "LINEAR16"
		}
		opts.Audio = &repositories.AudioOptions{
			EncodingIn:    "LINEAR16",
			EncodingOut:   encodingOut,
			SampleRateIn:  audio.SampleRate,
			SampleRateOut: audio.SampleRate,
		}
	} else {
		opts.TextQuery = req.TextQuery
	}

	stream, err := s.assistant.StartConversation(ctx, opts)
	if err != nil {
		return turnDone, fmt.Errorf("failed to start conversation %d: %w", conv.ID, err)
	}
	defer stream.Close()

	if len(req.Audio) > 0 {
		if err := s.streamOutbound(stream, req.Audio); err != nil {
			return turnDone, fmt.Errorf("conversation %d: %w", conv.ID, err)
		}
	}

	idle := time.NewTimer(s.audioCfg.IdleTimeout())
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			conv.Release()
			return turnDone, ctx.Err()

		case <-idle.C:
			conv.Release()
			return turnDone, fmt.Errorf("conversation %d timed out waiting for events", conv.ID)

		case event, ok := <-stream.Events():
			if !ok {
				// Stream ended without a terminal event; treat
				// like a clean end so the buffer is not leaked.
				s.finishTurn(ctx, conv)
				return turnDone, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.audioCfg.IdleTimeout())

			outcome, terminal, err := s.handleEvent(ctx, conv, req, event)
			if err != nil {
				conv.Release()
				return turnDone, err
			}
			if terminal {
				return outcome, nil
			}
		}
	}
}

// handleEvent processes one inbound event. terminal reports whether the
// turn is over.
func (s *ConversationService) handleEvent(ctx context.Context, conv *entities.Conversation, req *ConversationRequest, event repositories.Event) (outcome turnOutcome, terminal bool, err error) {
	switch event.Kind {
	case repositories.EventTextReply:
		s.logger.Info("Assistant replied",
			zap.Uint64("conversation", conv.ID),
			zap.String("text", event.Text))
		s.publish(websocket.RelayEvent{
			Type:         "assistant_reply",
			User:         conv.User,
			Conversation: conv.ID,
			Text:         event.Text,
		})
		if req.RelayTextReply && !req.BroadcastAudioResponse && !conv.Continued {
			s.rebroadcastText(conv.User, event.Text)
		}
		return turnDone, false, nil

	case repositories.EventAudio:
		if err := conv.AppendAudio(event.Audio, s.audioCfg.MaxConversationBytes); err != nil {
			return turnDone, false, fmt.Errorf("conversation %d: %w", conv.ID, err)
		}
		return turnDone, false, nil

	case repositories.EventTranscription:
		s.publish(websocket.RelayEvent{
			Type:         "transcription",
			User:         conv.User,
			Conversation: conv.ID,
			Text:         event.Text,
		})
		return turnDone, false, nil

	case repositories.EventEnded:
		if event.Err != nil {
			conv.Release()
			return turnDone, true, fmt.Errorf("conversation %d ended with error: %w", conv.ID, event.Err)
		}
		s.finishTurn(ctx, conv)
		if event.Continue && len(req.FollowUpAudio) > 0 {
			req.Audio = req.FollowUpAudio
			req.FollowUpAudio = nil
			return turnContinue, true, nil
		}
		return turnDone, true, nil

	case repositories.EventError:
		conv.Release()
		return turnDone, true, fmt.Errorf("conversation %d failed: %w", conv.ID, event.Err)

	default:
		// Device actions, volume and screen payloads are observed for
		// diagnostics only.
		s.logger.Debug("Observed assistant event",
			zap.Uint64("conversation", conv.ID),
			zap.String("kind", string(event.Kind)))
		return turnDone, false, nil
	}
}

// streamOutbound emits the caller's utterance in fixed-size frames followed
// by one second of silence, signaling end of utterance to the assistant.
func (s *ConversationService) streamOutbound(stream repositories.ConversationStream, buf []byte) error {
	for _, frame := range audio.Frames(buf, s.audioCfg.FrameBytes) {
		if err := stream.Send(frame); err != nil {
			return fmt.Errorf("failed to stream outbound audio: %w", err)
		}
	}
	trailing := audio.Silence(audio.SampleRate * audio.BytesPerSample)
	for _, frame := range audio.Frames(trailing, s.audioCfg.FrameBytes) {
		if err := stream.Send(frame); err != nil {
			return fmt.Errorf("failed to stream trailing silence: %w", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close outbound stream: %w", err)
	}
	return nil
}

// finishTurn post-processes an accumulated audio reply: optional save to
// disk, optional silence-truncated re-broadcast, then buffer release.
func (s *ConversationService) finishTurn(ctx context.Context, conv *entities.Conversation) {
	if !conv.HasAudio() {
		conv.Release()
		return
	}

	if s.audioCfg.SaveConversations {
		path := filepath.Join(s.audioCfg.SaveDir, fmt.Sprintf("%d.raw", conv.ID))
		if err := os.WriteFile(path, conv.Buffer, 0o644); err != nil {
			s.logger.Error("Failed to save conversation audio",
				zap.Uint64("conversation", conv.ID),
				zap.Error(err))
		}
	}

	if conv.BroadcastResponse {
		cleaned := audio.TruncateSilences(conv.Buffer,
			s.audioCfg.MaxSilenceBytes, s.audioCfg.SilenceThreshold)
		s.broadcastAudio(ctx, conv, cleaned)
	}

	conv.Release()
}

// broadcastAudio publishes the processed reply and casts it to the user's
// configured target. A reply too long for one media file is split at
// silence boundaries and cast as consecutive parts.
func (s *ConversationService) broadcastAudio(ctx context.Context, conv *entities.Conversation, pcm []byte) {
	target := s.users[conv.User].CastTarget
	if target == "" {
		s.logger.Error("No cast target configured for audio broadcast",
			zap.String("user", conv.User),
			zap.Uint64("conversation", conv.ID))
		return
	}

	segments := [][]byte{pcm}
	if len(pcm) > s.audioCfg.MaxChunkBytes {
		chunks, err := audio.Chunk(pcm,
			s.audioCfg.MinSilenceBytes, s.audioCfg.MaxChunkBytes, s.audioCfg.SilenceThreshold)
		if err != nil {
			s.logger.Error("Failed to split conversation audio",
				zap.Uint64("conversation", conv.ID),
				zap.Int("pcmBytes", len(pcm)),
				zap.Error(err))
			return
		}
		segments = chunks
	}

	for i, segment := range segments {
		name := fmt.Sprintf("conversation-%d", conv.ID)
		if len(segments) > 1 {
			name = fmt.Sprintf("conversation-%d-part%d", conv.ID, i+1)
		}

		url, err := s.media.PublishPCM(name, segment)
		if err != nil {
			s.logger.Error("Failed to publish conversation audio",
				zap.Uint64("conversation", conv.ID),
				zap.Error(err))
			return
		}

		if err := s.cast.Cast(ctx, target, url, "audio/wav"); err != nil {
			s.logger.Error("Failed to cast conversation audio",
				zap.Uint64("conversation", conv.ID),
				zap.String("target", target),
				zap.Error(err))
			return
		}
	}

	s.publish(websocket.RelayEvent{
		Type:         "audio_broadcast",
		User:         conv.User,
		Conversation: conv.ID,
	})
}

// rebroadcastText re-enters the broadcast path so the reply is read out on
// the user's devices. Fire-and-forget like everything after the ack.
func (s *ConversationService) rebroadcastText(user, text string) {
	s.rebroadcasts.Add(1)
	go func() {
		defer s.rebroadcasts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.audioCfg.IdleTimeout())
		defer cancel()
		err := s.Run(ctx, ConversationRequest{
			User:      user,
			TextQuery: "broadcast " + text,
		})
		if err != nil {
			s.logger.Error("Failed to re-broadcast reply",
				zap.String("user", user),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every in-flight reply re-broadcast has finished. Used
// on shutdown and by tests.
func (s *ConversationService) Wait() {
	s.rebroadcasts.Wait()
}

// ActiveConversations reports how many conversations currently hold state.
func (s *ConversationService) ActiveConversations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *ConversationService) register(user string) *entities.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	conv := entities.NewConversation(s.counter, user)
	s.active[conv.ID] = conv
	return conv
}

func (s *ConversationService) unregister(conv *entities.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv.Release()
	delete(s.active, conv.ID)
}

func (s *ConversationService) publish(event websocket.RelayEvent) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(event)
}
