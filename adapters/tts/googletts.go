package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/domain/entities"
	"github.com/mpaik/google-assistant-helper/domain/repositories"
)

const (
	defaultAPIBaseURL    = "https://texttospeech.googleapis.com/v1"
	defaultAudioEncoding = "MP3"
	defaultTimeout       = 30 * time.Second
)

// GoogleTTSConfig holds configuration for the GoogleTTS adapter.
// Required fields:
// - APIKey: a Cloud Text-to-Speech API key
// Optional fields with defaults:
// - APIBaseURL: the synthesis endpoint base URL (default: "https://texttospeech.googleapis.com/v1")
// - AudioEncoding: the returned audio encoding (default: "MP3")
// - Timeout: per-request timeout (default: 30s)
type GoogleTTSConfig struct {
	APIKey        string
	APIBaseURL    string
	AudioEncoding string
	Timeout       time.Duration
}

// GoogleTTS implements the Synthesizer interface against the Cloud
// Text-to-Speech REST API.
type GoogleTTS struct {
	apiKey        string
	apiBaseURL    string
	audioEncoding string
	client        *http.Client
	logger        *zap.Logger
}

var _ repositories.Synthesizer = (*GoogleTTS)(nil)

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
		SsmlGender   string `json:"ssmlGender,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// ValidateGoogleTTSConfig validates the GoogleTTSConfig.
func ValidateGoogleTTSConfig(config GoogleTTSConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("google TTS API key is required")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %v", config.Timeout)
	}
	return nil
}

// NewGoogleTTS creates a new Google TTS instance.
func NewGoogleTTS(config GoogleTTSConfig, logger *zap.Logger) (*GoogleTTS, error) {
	if err := ValidateGoogleTTSConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
		logger.Info("Using default API base URL", zap.String("apiBaseURL", apiBaseURL))
	}

	audioEncoding := config.AudioEncoding
	if audioEncoding == "" {
		audioEncoding = defaultAudioEncoding
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &GoogleTTS{
		apiKey:        config.APIKey,
		apiBaseURL:    apiBaseURL,
		audioEncoding: audioEncoding,
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
	}, nil
}

// Synthesize converts text to audio bytes using the remote service.
func (g *GoogleTTS) Synthesize(ctx context.Context, text string, voice entities.Voice) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	g.logger.Info("Synthesizing speech",
		zap.Int("textLength", len(text)),
		zap.String("voice", voice.Descriptor()))

	var request synthesizeRequest
	request.Input.Text = text
	request.Voice.LanguageCode = voice.LanguageCode
	request.Voice.Name = voice.Name
	request.Voice.SsmlGender = voice.Gender
	request.AudioConfig.AudioEncoding = g.audioEncoding

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text:synthesize?key=%s", g.apiBaseURL, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		g.logger.Error("Synthesis API returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return nil, fmt.Errorf("synthesis API returned status %d", resp.StatusCode)
	}

	var response synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(response.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis returned no audio")
	}

	g.logger.Debug("Synthesis complete", zap.Int("bytes", len(audio)))
	return audio, nil
}

// NewGoogleTTSConfigFromEnv creates a GoogleTTSConfig from environment
// variables. GOOGLE_TTS_API_KEY is required.
func NewGoogleTTSConfigFromEnv() GoogleTTSConfig {
	return GoogleTTSConfig{
		APIKey:        os.Getenv("GOOGLE_TTS_API_KEY"),
		APIBaseURL:    os.Getenv("GOOGLE_TTS_API_BASE_URL"),
		AudioEncoding: os.Getenv("GOOGLE_TTS_AUDIO_ENCODING"),
	}
}
