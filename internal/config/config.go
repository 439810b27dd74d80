// Package config provides the configuration structure for the relay.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port int `toml:"port"`
	// ExternalURL is the base URL cast receivers use to fetch media
	// served by this process (cache artifacts and preconfigured sounds).
	ExternalURL string `toml:"external_url"`
	// MediaDir receives published conversation audio, served under /media.
	MediaDir string `toml:"media_dir"`
	// SoundsDir holds the preconfigured sound files, served under /sounds.
	SoundsDir string `toml:"sounds_dir"`
}

// AssistantConfig holds the assistant backend configuration.
type AssistantConfig struct {
	Model string `toml:"model"`
	// CredentialsDir holds one OAuth token file per configured user.
	CredentialsDir string `toml:"credentials_dir"`
}

// AudioConfig holds the silence-processing and streaming tunables. All
// byte quantities refer to 16-bit little-endian PCM at 16 kHz.
type AudioConfig struct {
	SilenceThreshold     int  `toml:"silence_threshold"`
	MaxSilenceBytes      int  `toml:"max_silence_bytes"`
	MinSilenceBytes      int  `toml:"min_silence_bytes"`
	MaxChunkBytes        int  `toml:"max_chunk_bytes"`
	FrameBytes           int  `toml:"frame_bytes"`
	MaxConversationBytes int  `toml:"max_conversation_bytes"`
	IdleTimeoutSeconds   int  `toml:"idle_timeout_seconds"`
	SaveConversations    bool `toml:"save_conversations"`
	SaveDir              string `toml:"save_dir"`
}

// IdleTimeout returns the per-conversation idle timeout as a duration.
func (a AudioConfig) IdleTimeout() time.Duration {
	return time.Duration(a.IdleTimeoutSeconds) * time.Second
}

// TTSConfig holds the speech synthesis configuration.
type TTSConfig struct {
	CacheDir     string `toml:"cache_dir"`
	LanguageCode string `toml:"language_code"`
	Gender       string `toml:"gender"`
	Name         string `toml:"name"`
}

// UserConfig maps a relay user to an assistant identity, a pre-shared key
// and an optional cast target. Immutable at runtime.
type UserConfig struct {
	Key        string `toml:"key"`
	Language   string `toml:"language"`
	CastTarget string `toml:"cast_target"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig          `toml:"server"`
	Assistant AssistantConfig       `toml:"assistant"`
	Audio     AudioConfig           `toml:"audio"`
	TTS       TTSConfig             `toml:"tts"`
	Users     map[string]UserConfig `toml:"users"`
	// Sounds maps a preconfigured sound name to a file path under the
	// static media directory.
	Sounds map[string]string `toml:"sounds"`
}

// Load reads and validates the relay configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MediaDir == "" {
		c.Server.MediaDir = "media"
	}
	if c.Server.SoundsDir == "" {
		c.Server.SoundsDir = "sounds"
	}
	if c.Assistant.Model == "" {
		c.Assistant.Model = "gemini-2.0-flash-live-001"
	}
	if c.Assistant.CredentialsDir == "" {
		c.Assistant.CredentialsDir = "credentials"
	}
	if c.Audio.SilenceThreshold == 0 {
		c.Audio.SilenceThreshold = 100
	}
	if c.Audio.MaxSilenceBytes == 0 {
		c.Audio.MaxSilenceBytes = 16000
	}
	if c.Audio.MinSilenceBytes == 0 {
		c.Audio.MinSilenceBytes = 8000
	}
	if c.Audio.MaxChunkBytes == 0 {
		c.Audio.MaxChunkBytes = 160000
	}
	if c.Audio.FrameBytes == 0 {
		c.Audio.FrameBytes = 3200
	}
	if c.Audio.MaxConversationBytes == 0 {
		c.Audio.MaxConversationBytes = 280000
	}
	if c.Audio.IdleTimeoutSeconds == 0 {
		c.Audio.IdleTimeoutSeconds = 60
	}
	if c.Audio.SaveDir == "" {
		c.Audio.SaveDir = "conversations"
	}
	if c.TTS.CacheDir == "" {
		c.TTS.CacheDir = "cache"
	}
	if c.TTS.LanguageCode == "" {
		c.TTS.LanguageCode = "en-US"
	}
	if c.TTS.Gender == "" {
		c.TTS.Gender = "FEMALE"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Users) == 0 {
		return fmt.Errorf("at least one user must be configured")
	}
	for name, user := range c.Users {
		if user.Key == "" {
			return fmt.Errorf("user %q has no relay key configured", name)
		}
	}
	if c.Server.ExternalURL == "" {
		return fmt.Errorf("server external_url is required for casting")
	}
	if c.Audio.FrameBytes%2 != 0 {
		return fmt.Errorf("frame_bytes must be even, got %d", c.Audio.FrameBytes)
	}
	if c.Audio.MaxSilenceBytes%2 != 0 {
		return fmt.Errorf("max_silence_bytes must be even, got %d", c.Audio.MaxSilenceBytes)
	}
	if c.Audio.MinSilenceBytes%2 != 0 {
		return fmt.Errorf("min_silence_bytes must be even, got %d", c.Audio.MinSilenceBytes)
	}
	if c.Audio.MaxChunkBytes%2 != 0 {
		return fmt.Errorf("max_chunk_bytes must be even, got %d", c.Audio.MaxChunkBytes)
	}
	return nil
}
