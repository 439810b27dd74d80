package api

// VoicePayload selects the synthesis voice for TTS casting.
type VoicePayload struct {
	LanguageCode string `json:"languageCode"`
	Gender       string `json:"gender"`
	Name         string `json:"name"`
}

// RelayRequest is the JSON body shared by every relay route. Kind-specific
// fields are simply ignored by the kinds that do not use them.
type RelayRequest struct {
	Command     string  `json:"command"`
	User        string  `json:"user"`
	RelayKey    string  `json:"relayKey"`
	DelayInSecs float64 `json:"delayInSecs"`

	Voice                  VoicePayload `json:"voice"`
	ContentType            string       `json:"contentType"`
	CurrentTime            int          `json:"currentTime"`
	BroadcastAudioResponse bool         `json:"broadcastAudioResponse"`
}

// AckResponse acknowledges a dispatched command. Success means "accepted",
// never "completed"; the assistant's eventual answer is not returned.
type AckResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
