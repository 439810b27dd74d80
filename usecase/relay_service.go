package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/domain/entities"
	"github.com/mpaik/google-assistant-helper/domain/repositories"
	"github.com/mpaik/google-assistant-helper/internal/auth"
	"github.com/mpaik/google-assistant-helper/internal/config"
	"github.com/mpaik/google-assistant-helper/internal/speechcache"
)

// ErrNotConfigured is returned when a referenced sound, cast target or
// route prerequisite is absent from the configuration.
var ErrNotConfigured = errors.New("not configured")

// executionTimeout bounds one dispatched downstream action. The HTTP ack
// has long been sent by the time this matters.
const executionTimeout = 5 * time.Minute

// RelayService validates, classifies and executes relay commands. The HTTP
// response is sent as soon as Dispatch returns; execution is deferred to a
// goroutine, optionally after the requested delay.
type RelayService struct {
	keys          *auth.KeyStore
	conversations *ConversationService
	cache         *speechcache.Cache
	cast          repositories.CastController

	users        map[string]config.UserConfig
	sounds       map[string]string
	defaultVoice entities.Voice
	baseURL      string

	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewRelayService creates the dispatcher.
func NewRelayService(
	keys *auth.KeyStore,
	conversations *ConversationService,
	cache *speechcache.Cache,
	cast repositories.CastController,
	cfg *config.Config,
	logger *zap.Logger,
) *RelayService {
	return &RelayService{
		keys:          keys,
		conversations: conversations,
		cache:         cache,
		cast:          cast,
		users:         cfg.Users,
		sounds:        cfg.Sounds,
		defaultVoice: entities.Voice{
			LanguageCode: cfg.TTS.LanguageCode,
			Gender:       cfg.TTS.Gender,
			Name:         cfg.TTS.Name,
		},
		baseURL: strings.TrimRight(cfg.Server.ExternalURL, "/"),
		logger:  logger,
	}
}

// Dispatch validates and classifies one command, schedules its execution
// and returns. A nil return means "accepted", not "completed"; everything
// downstream is observable only through logs and the observer feed.
func (s *RelayService) Dispatch(cmd entities.RelayCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := s.keys.Verify(cmd.User, cmd.Key); err != nil {
		s.logger.Warn("Relay authentication failed",
			zap.String("user", cmd.User),
			zap.String("relayKey", auth.Redact(cmd.Key)))
		return err
	}
	if err := s.validateKind(cmd); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if cmd.Delay > 0 {
			time.Sleep(cmd.Delay)
		}
		s.execute(cmd)
	}()
	return nil
}

// Wait blocks until every dispatched command has finished executing,
// including any reply re-broadcast a command spawned. Used on shutdown and
// by tests.
func (s *RelayService) Wait() {
	s.wg.Wait()
	s.conversations.Wait()
}

// validateKind performs the kind-specific checks that must fail before the
// HTTP ack is sent.
func (s *RelayService) validateKind(cmd entities.RelayCommand) error {
	switch cmd.Kind {
	case entities.KindCastControl:
		if _, err := parseCastCommand(cmd); err != nil {
			return err
		}
		_, err := s.castTarget(cmd.User)
		return err

	case entities.KindBroadcastSound:
		if _, ok := s.sounds[cmd.Command]; !ok {
			return fmt.Errorf("%w: sound %q", ErrNotConfigured, cmd.Command)
		}
		return nil

	case entities.KindCastSound:
		if _, ok := s.sounds[cmd.Command]; !ok {
			return fmt.Errorf("%w: sound %q", ErrNotConfigured, cmd.Command)
		}
		_, err := s.castTarget(cmd.User)
		return err

	case entities.KindCastTTS, entities.KindCastURL:
		_, err := s.castTarget(cmd.User)
		return err

	case entities.KindBroadcast, entities.KindCustom:
		return nil

	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

func (s *RelayService) execute(cmd entities.RelayCommand) {
	ctx, cancel := context.WithTimeout(context.Background(), executionTimeout)
	defer cancel()

	var err error
	switch cmd.Kind {
	case entities.KindBroadcast:
		err = s.conversations.Run(ctx, ConversationRequest{
			User:      cmd.User,
			TextQuery: "broadcast " + cmd.Command,
		})

	case entities.KindCustom:
		if strings.HasPrefix(strings.ToLower(cmd.Command), "broadcast") {
			// The generic broadcast alias folds into the plain
			// broadcast path; replies are not relayed again.
			err = s.conversations.Run(ctx, ConversationRequest{
				User:      cmd.User,
				TextQuery: cmd.Command,
			})
			break
		}
		err = s.conversations.Run(ctx, ConversationRequest{
			User:                   cmd.User,
			TextQuery:              cmd.Command,
			BroadcastAudioResponse: cmd.BroadcastAudioResponse,
			RelayTextReply:         !cmd.BroadcastAudioResponse,
		})

	case entities.KindBroadcastSound:
		err = s.broadcastSound(ctx, cmd)

	case entities.KindCastSound:
		err = s.castSound(ctx, cmd)

	case entities.KindCastTTS:
		err = s.castTTS(ctx, cmd)

	case entities.KindCastURL:
		err = s.castURL(ctx, cmd)

	case entities.KindCastControl:
		err = s.castControl(ctx, cmd)
	}

	if err != nil {
		s.logger.Error("Relay command failed",
			zap.String("kind", string(cmd.Kind)),
			zap.String("user", cmd.User),
			zap.Error(err))
	}
}

// broadcastSound plays a preconfigured sound on every configured cast
// target in the zone.
func (s *RelayService) broadcastSound(ctx context.Context, cmd entities.RelayCommand) error {
	url, err := s.soundURL(cmd.Command)
	if err != nil {
		return err
	}
	var failed []string
	for user, userCfg := range s.users {
		if userCfg.CastTarget == "" {
			continue
		}
		if err := s.cast.Cast(ctx, userCfg.CastTarget, url, "audio/mpeg"); err != nil {
			s.logger.Error("Failed to broadcast sound",
				zap.String("user", user),
				zap.String("target", userCfg.CastTarget),
				zap.Error(err))
			failed = append(failed, userCfg.CastTarget)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("sound broadcast failed on %s", strings.Join(failed, ", "))
	}
	return nil
}

func (s *RelayService) castSound(ctx context.Context, cmd entities.RelayCommand) error {
	target, err := s.castTarget(cmd.User)
	if err != nil {
		return err
	}
	url, err := s.soundURL(cmd.Command)
	if err != nil {
		return err
	}
	return s.cast.Cast(ctx, target, url, "audio/mpeg")
}

func (s *RelayService) castTTS(ctx context.Context, cmd entities.RelayCommand) error {
	target, err := s.castTarget(cmd.User)
	if err != nil {
		return err
	}

	voice := cmd.Voice
	if voice.LanguageCode == "" {
		voice.LanguageCode = s.defaultVoice.LanguageCode
	}
	if voice.Gender == "" {
		voice.Gender = s.defaultVoice.Gender
	}
	if voice.Name == "" {
		voice.Name = s.defaultVoice.Name
	}

	path, err := s.cache.LookupOrSynthesize(ctx, cmd.Command, voice)
	if err != nil {
		return err
	}
	url := s.baseURL + "/cache/" + filepath.Base(path)
	return s.cast.Cast(ctx, target, url, "audio/mpeg")
}

func (s *RelayService) castURL(ctx context.Context, cmd entities.RelayCommand) error {
	target, err := s.castTarget(cmd.User)
	if err != nil {
		return err
	}
	contentType := cmd.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	return s.cast.Cast(ctx, target, cmd.Command, contentType)
}

func (s *RelayService) castControl(ctx context.Context, cmd entities.RelayCommand) error {
	target, err := s.castTarget(cmd.User)
	if err != nil {
		return err
	}
	castCmd, err := parseCastCommand(cmd)
	if err != nil {
		return err
	}
	return s.cast.Control(ctx, target, castCmd)
}

func (s *RelayService) castTarget(user string) (string, error) {
	target := s.users[user].CastTarget
	if target == "" {
		return "", fmt.Errorf("%w: no cast target for user %q", ErrNotConfigured, user)
	}
	return target, nil
}

func (s *RelayService) soundURL(name string) (string, error) {
	path, ok := s.sounds[name]
	if !ok {
		return "", fmt.Errorf("%w: sound %q", ErrNotConfigured, name)
	}
	return s.baseURL + "/sounds/" + filepath.Base(path), nil
}

func parseCastCommand(cmd entities.RelayCommand) (repositories.CastCommand, error) {
	castCmd := repositories.CastCommand{
		Type:        repositories.CastCommandType(strings.ToUpper(strings.TrimSpace(cmd.Command))),
		CurrentTime: cmd.CurrentTime,
	}
	if err := castCmd.Validate(); err != nil {
		return repositories.CastCommand{}, err
	}
	return castCmd, nil
}
