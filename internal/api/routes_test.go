package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/adapters/assistant"
	"github.com/mpaik/google-assistant-helper/adapters/cast"
	"github.com/mpaik/google-assistant-helper/domain/entities"
	"github.com/mpaik/google-assistant-helper/internal/auth"
	"github.com/mpaik/google-assistant-helper/internal/config"
	"github.com/mpaik/google-assistant-helper/internal/media"
	"github.com/mpaik/google-assistant-helper/internal/speechcache"
	"github.com/mpaik/google-assistant-helper/usecase"
)

type stubSynthesizer struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string, voice entities.Voice) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return []byte("mp3:" + text), nil
}

func (s *stubSynthesizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type relayFixture struct {
	echo       *echo.Echo
	relay      *usecase.RelayService
	assistant  *assistant.MockAssistant
	controller *cast.MockCastController
	synth      *stubSynthesizer
}

func newFixture(t *testing.T) *relayFixture {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{ExternalURL: "http://relay.example"},
		Audio: config.AudioConfig{
			SilenceThreshold:     100,
			MaxSilenceBytes:      16000,
			MinSilenceBytes:      8000,
			MaxChunkBytes:        160000,
			FrameBytes:           3200,
			MaxConversationBytes: 280000,
			IdleTimeoutSeconds:   5,
		},
		TTS: config.TTSConfig{LanguageCode: "en-US", Gender: "FEMALE"},
		Users: map[string]config.UserConfig{
			"global": {Key: "global-key", Language: "en-US", CastTarget: "Kitchen"},
		},
		Sounds: map[string]string{"doorbell": "/srv/sounds/doorbell.mp3"},
	}

	asst := assistant.NewMockAssistant()
	controller := cast.NewMockCastController()
	synth := &stubSynthesizer{}
	logger := zap.NewNop()

	store, err := media.New(t.TempDir(), cfg.Server.ExternalURL, logger)
	if err != nil {
		t.Fatalf("failed to create media store: %v", err)
	}
	conversations, err := usecase.NewConversationService(asst, controller, store, nil, cfg.Users, cfg.Audio, logger)
	if err != nil {
		t.Fatalf("failed to create conversation service: %v", err)
	}
	cache, err := speechcache.New(t.TempDir(), synth, logger)
	if err != nil {
		t.Fatalf("failed to create speech cache: %v", err)
	}

	keys := map[string]string{"global": "global-key"}
	relay := usecase.NewRelayService(auth.NewKeyStore(keys), conversations, cache, controller, cfg, logger)

	e := echo.New()
	InitRoutes(e, relay, nil, store.Dir(), t.TempDir(), t.TempDir(), logger)

	return &relayFixture{
		echo:       e,
		relay:      relay,
		assistant:  asst,
		controller: controller,
		synth:      synth,
	}
}

func (f *relayFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestBroadcastRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/broadcast", `{"command":"hello","user":"global","relayKey":"global-key"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var ack AckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if !ack.Success {
		t.Error("expected success ack")
	}

	f.relay.Wait()
	if got := f.assistant.StartCount(); got != 1 {
		t.Fatalf("expected 1 conversation, got %d", got)
	}
	if got := f.assistant.Started[0].TextQuery; got != "broadcast hello" {
		t.Errorf("unexpected query %q", got)
	}
	if got := f.assistant.Started[0].User; got != "global" {
		t.Errorf("unexpected user %q", got)
	}
}

func TestTTSRouteServesSecondCallFromCache(t *testing.T) {
	f := newFixture(t)
	body := `{"command":"the kettle is boiling","user":"global","relayKey":"global-key"}`

	for i := 0; i < 2; i++ {
		rec := f.post(t, "/casttts", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
		f.relay.Wait()
	}

	if got := f.synth.callCount(); got != 1 {
		t.Errorf("expected 1 synthesis across both calls, got %d", got)
	}
	if got := f.controller.CastCount(); got != 2 {
		t.Fatalf("expected 2 casts, got %d", got)
	}
	if f.controller.Casts[0].MediaURL != f.controller.Casts[1].MediaURL {
		t.Errorf("expected identical artifact URLs, got %q and %q",
			f.controller.Casts[0].MediaURL, f.controller.Casts[1].MediaURL)
	}
}

func TestCastControlRejectsNegativeSeek(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/castcontrol",
		`{"command":"SEEK","currentTime":-5,"user":"global","relayKey":"global-key"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	f.relay.Wait()
	if got := f.controller.ControlCount(); got != 0 {
		t.Errorf("rejected control must not reach the receiver, got %d", got)
	}
}

func TestRelayRouteRejectsBadKey(t *testing.T) {
	f := newFixture(t)

	tests := []string{"/broadcast", "/casttts", "/castcontrol", "/assistant"}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			rec := f.post(t, path, `{"command":"PLAY","user":"global","relayKey":"wrong"}`)
			if rec.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d", rec.Code)
			}
		})
	}

	f.relay.Wait()
	if got := f.assistant.StartCount(); got != 0 {
		t.Errorf("rejected requests must not reach the assistant, got %d", got)
	}
}

func TestRelayRouteRejectsMalformedRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"command":`},
		{"missing command", `{"user":"global","relayKey":"global-key"}`},
		{"missing user", `{"command":"hello","relayKey":"global-key"}`},
		{"missing key", `{"command":"hello","user":"global"}`},
		{"negative delay", `{"command":"hello","user":"global","relayKey":"global-key","delayInSecs":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.post(t, "/broadcast", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRelayRouteMethodAndPathErrors(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/broadcast", nil)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on a relay route: expected 405, got %d", rec.Code)
	}

	rec = f.post(t, "/reboot", `{"command":"hello","user":"global","relayKey":"global-key"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: expected 404, got %d", rec.Code)
	}
}

func TestUnknownSoundReturnsServerError(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/castsound", `{"command":"airhorn","user":"global","relayKey":"global-key"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDelayedRelayAcksImmediately(t *testing.T) {
	f := newFixture(t)

	start := time.Now()
	rec := f.post(t, "/castsound",
		`{"command":"doorbell","user":"global","relayKey":"global-key","delayInSecs":0.2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("ack took %v, expected it before the delay elapses", elapsed)
	}

	f.relay.Wait()
	if got := f.controller.CastCount(); got != 1 {
		t.Errorf("expected 1 cast after the delay, got %d", got)
	}
}

func TestHealthRoute(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("unexpected health body %q", rec.Body.String())
	}
}
