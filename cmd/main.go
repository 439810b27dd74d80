package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/adapters/assistant"
	"github.com/mpaik/google-assistant-helper/adapters/cast"
	"github.com/mpaik/google-assistant-helper/adapters/tts"
	"github.com/mpaik/google-assistant-helper/internal/api"
	"github.com/mpaik/google-assistant-helper/internal/auth"
	"github.com/mpaik/google-assistant-helper/internal/config"
	"github.com/mpaik/google-assistant-helper/internal/media"
	"github.com/mpaik/google-assistant-helper/internal/speechcache"
	"github.com/mpaik/google-assistant-helper/internal/websocket"
	"github.com/mpaik/google-assistant-helper/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	configPath := os.Getenv("RELAY_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration",
			zap.String("path", configPath),
			zap.Error(err))
	}

	// Initialize adapters
	assistantClient, err := assistant.NewGeminiAssistant(cfg.Assistant.Model, logger)
	if err != nil {
		logger.Fatal("Failed to initialize assistant backend", zap.Error(err))
	}
	castController := cast.NewChromecast(logger)
	synthesizer, err := tts.NewGoogleTTS(tts.NewGoogleTTSConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech synthesis", zap.Error(err))
	}

	cache, err := speechcache.New(cfg.TTS.CacheDir, synthesizer, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech cache", zap.Error(err))
	}
	mediaStore, err := media.New(cfg.Server.MediaDir, cfg.Server.ExternalURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize media store", zap.Error(err))
	}

	// Initialize observer hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Initialize usecase services
	conversationService, err := usecase.NewConversationService(
		assistantClient, castController, mediaStore, hub, cfg.Users, cfg.Audio, logger)
	if err != nil {
		logger.Fatal("Failed to initialize conversation service", zap.Error(err))
	}

	keys := make(map[string]string, len(cfg.Users))
	for user, userCfg := range cfg.Users {
		keys[user] = userCfg.Key
	}
	relayService := usecase.NewRelayService(
		auth.NewKeyStore(keys), conversationService, cache, castController, cfg, logger)

	credentials, err := auth.NewCredentialStore(cfg.Assistant.CredentialsDir)
	if err != nil {
		logger.Fatal("Failed to initialize credential store", zap.Error(err))
	}

	// Each user's session must be ready before the next is attempted, and
	// all of them before the listener accepts commands.
	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := usecase.ActivateSessions(startupCtx, assistantClient, credentials, cfg.Users, logger); err != nil {
		cancel()
		logger.Fatal("Failed to activate assistant sessions", zap.Error(err))
	}
	cancel()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, relayService, hub, mediaStore.Dir(), cfg.TTS.CacheDir, cfg.Server.SoundsDir, logger)

	// Graceful shutdown
	port := strconv.Itoa(cfg.Server.Port)
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Relay started",
		zap.String("port", port),
		zap.Int("users", len(cfg.Users)))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	// Let deferred and in-flight commands finish before exiting.
	relayService.Wait()

	logger.Info("Server exited")
}
