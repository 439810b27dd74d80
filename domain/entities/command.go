package entities

import (
	"errors"
	"fmt"
	"time"
)

// CommandKind classifies a relay command by the route it arrived on.
type CommandKind string

const (
	// KindBroadcast reads the command text out on all assistant devices.
	KindBroadcast CommandKind = "broadcast"
	// KindBroadcastSound broadcasts a preconfigured sound.
	KindBroadcastSound CommandKind = "broadcast_sound"
	// KindCastTTS synthesizes the command text and casts the audio.
	KindCastTTS CommandKind = "cast_tts"
	// KindCastSound casts a preconfigured sound.
	KindCastSound CommandKind = "cast_sound"
	// KindCastURL casts an arbitrary media URL.
	KindCastURL CommandKind = "cast_url"
	// KindCastControl applies a transport control to the cast target.
	KindCastControl CommandKind = "cast_control"
	// KindCustom relays the command text to the assistant verbatim.
	KindCustom CommandKind = "custom"
)

// Voice describes a synthesis voice the way the remote service addresses
// one: BCP-47 language code, gender and an optional concrete voice name.
type Voice struct {
	LanguageCode string `json:"languageCode"`
	Gender       string `json:"gender"`
	Name         string `json:"name"`
}

// Descriptor returns the canonical string form of the voice. It is part of
// the speech cache key, so its shape must stay stable.
func (v Voice) Descriptor() string {
	return fmt.Sprintf("%s_%s_%s", v.LanguageCode, v.Gender, v.Name)
}

// RelayCommand is one validated inbound request. It lives for the duration
// of handling a single HTTP request plus any deferred execution.
type RelayCommand struct {
	Kind    CommandKind
	Command string
	User    string
	Key     string
	Delay   time.Duration

	// Voice selects the synthesis voice for cast-TTS commands.
	Voice Voice

	// ContentType is the media type for arbitrary-URL casting.
	ContentType string

	// CurrentTime is the seek offset in seconds for cast control.
	CurrentTime int

	// BroadcastAudioResponse asks for an audio reply to a custom command
	// to be re-broadcast instead of discarded after being read as text.
	BroadcastAudioResponse bool
}

// Validate checks the fields every kind requires. Key equality against the
// configured user is the dispatcher's concern, not the entity's.
func (r *RelayCommand) Validate() error {
	if r.Command == "" {
		return errors.New("command is required")
	}
	if r.User == "" {
		return errors.New("user is required")
	}
	if r.Key == "" {
		return errors.New("relay key is required")
	}
	if r.Delay < 0 {
		return errors.New("delay must be non-negative")
	}
	return nil
}
