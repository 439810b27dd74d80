package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/domain/entities"
	"github.com/mpaik/google-assistant-helper/internal/auth"
	"github.com/mpaik/google-assistant-helper/internal/websocket"
	"github.com/mpaik/google-assistant-helper/usecase"
)

// relayRoutes maps HTTP paths to the command kind they carry. Registering
// only POST leaves GET on the same paths answering 405 and unmatched paths
// answering 404, both handled by the router.
var relayRoutes = map[string]entities.CommandKind{
	"/broadcast":      entities.KindBroadcast,
	"/broadcastsound": entities.KindBroadcastSound,
	"/casttts":        entities.KindCastTTS,
	"/castsound":      entities.KindCastSound,
	"/cast":           entities.KindCastURL,
	"/castcontrol":    entities.KindCastControl,
	"/assistant":      entities.KindCustom,
}

// InitRoutes initializes all API routes: one POST per relay kind, the
// observer feed and the static directories cast receivers fetch media from.
func InitRoutes(e *echo.Echo, relay *usecase.RelayService, hub *websocket.Hub, mediaDir, cacheDir, soundsDir string, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "assistant-relay",
		})
	})

	for path, kind := range relayRoutes {
		kind := kind
		e.POST(path, func(c echo.Context) error {
			return handleRelay(c, relay, kind, logger)
		})
	}

	// Observer feed
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleObserver(hub, c, logger)
	})

	// Cast receivers pull media over HTTP rather than accepting a push.
	e.Static("/media", mediaDir)
	e.Static("/cache", cacheDir)
	e.Static("/sounds", soundsDir)
}

// handleRelay binds one relay request, hands it to the dispatcher and
// translates dispatch errors to status codes. A success response means the
// command was accepted, not that it has run.
func handleRelay(c echo.Context, relay *usecase.RelayService, kind entities.CommandKind, logger *zap.Logger) error {
	var req RelayRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind relay request",
			zap.String("kind", string(kind)),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	cmd := entities.RelayCommand{
		Kind:    kind,
		Command: req.Command,
		User:    req.User,
		Key:     req.RelayKey,
		Delay:   time.Duration(req.DelayInSecs * float64(time.Second)),
		Voice: entities.Voice{
			LanguageCode: req.Voice.LanguageCode,
			Gender:       req.Voice.Gender,
			Name:         req.Voice.Name,
		},
		ContentType:            req.ContentType,
		CurrentTime:            req.CurrentTime,
		BroadcastAudioResponse: req.BroadcastAudioResponse,
	}

	if err := relay.Dispatch(cmd); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidKey), errors.Is(err, auth.ErrUnknownUser):
			logger.Warn("Relay request rejected",
				zap.String("kind", string(kind)),
				zap.String("user", req.User),
				zap.String("relayKey", auth.Redact(req.RelayKey)))
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "authentication_failed",
				Message: "Invalid relay key",
			})

		case errors.Is(err, usecase.ErrNotConfigured):
			logger.Error("Relay request references missing configuration",
				zap.String("kind", string(kind)),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "not_configured",
				Message: err.Error(),
			})

		default:
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
		}
	}

	logger.Info("Relay command accepted",
		zap.String("kind", string(kind)),
		zap.String("user", req.User))

	return c.JSON(http.StatusOK, AckResponse{Success: true})
}
