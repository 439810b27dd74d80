package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/domain/repositories"
	"github.com/mpaik/google-assistant-helper/internal/audio"
	"github.com/mpaik/google-assistant-helper/internal/auth"
	"github.com/mpaik/google-assistant-helper/internal/config"
)

// activationTimeout bounds one per-user session probe during startup.
const activationTimeout = 30 * time.Second

// ActivateSessions opens and tears down one assistant session per
// configured user, sequentially in name order, before the HTTP listener
// starts accepting commands. A user whose credentials or connectivity are
// broken fails startup immediately instead of failing the first relayed
// command minutes or days later. creds may be nil for backends that do not
// keep per-user token files.
func ActivateSessions(ctx context.Context, asst repositories.Assistant, creds *auth.CredentialStore, users map[string]config.UserConfig, logger *zap.Logger) error {
	names := make([]string, 0, len(users))
	for user := range users {
		names = append(names, user)
	}
	sort.Strings(names)

	for _, user := range names {
		if creds != nil {
			checkCredentials(creds, user, logger)
		}
		if err := activateSession(ctx, asst, user, users[user].Language); err != nil {
			return fmt.Errorf("failed to activate assistant session for %q: %w", user, err)
		}
		logger.Info("Assistant session ready", zap.String("user", user))
	}
	return nil
}

// checkCredentials surfaces stale token files before the session probe, so
// the operator sees the likely cause next to the failure it produces.
func checkCredentials(creds *auth.CredentialStore, user string, logger *zap.Logger) {
	stored, err := creds.Load(user)
	if err != nil {
		logger.Warn("No stored credentials for user",
			zap.String("user", user),
			zap.Error(err))
		return
	}
	if stored.NeedsRefresh(time.Now()) {
		logger.Warn("Stored credentials need refresh",
			zap.String("user", user))
	}
}

// activateSession opens an audio conversation, immediately ends the
// utterance and drains the response. The content of the reply is
// irrelevant; reaching the end of the stream proves the session works.
func activateSession(ctx context.Context, asst repositories.Assistant, user, language string) error {
	ctx, cancel := context.WithTimeout(ctx, activationTimeout)
	defer cancel()

	stream, err := asst.StartConversation(ctx, repositories.ConversationOptions{
		User:     user,
		Language: language,
		Audio: &repositories.AudioOptions{
			EncodingIn:    "LINEAR16",
			EncodingOut:   "LINEAR16",
			SampleRateIn:  audio.SampleRate,
			SampleRateOut: audio.SampleRate,
		},
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-stream.Events():
			if !ok {
				return nil
			}
			if event.Err != nil {
				return event.Err
			}
		}
	}
}
