package repositories

import "context"

// EventKind identifies one kind of event emitted by an assistant
// conversation stream.
type EventKind string

const (
	EventTextReply      EventKind = "text_reply"
	EventEndOfUtterance EventKind = "end_of_utterance"
	EventTranscription  EventKind = "transcription"
	EventAudio          EventKind = "audio"
	EventDeviceAction   EventKind = "device_action"
	EventVolume         EventKind = "volume"
	EventScreenOut      EventKind = "screen_out"
	EventEnded          EventKind = "ended"
	EventError          EventKind = "error"
)

// Event is one item emitted by a ConversationStream. Only the fields
// relevant to the kind are populated.
type Event struct {
	Kind EventKind

	// Text carries the reply text or a transcription fragment.
	Text string

	// Audio carries one inbound audio fragment.
	Audio []byte

	// Volume carries the requested volume percentage.
	Volume int

	// Continue is set on an ended event when the assistant invited a
	// follow-up turn.
	Continue bool

	// Err is set on ended and error events when the turn failed.
	Err error
}

// AudioOptions describe the encodings of a conversation that streams audio.
type AudioOptions struct {
	EncodingIn    string
	EncodingOut   string
	SampleRateIn  int
	SampleRateOut int
}

// ConversationOptions configure one turn with the assistant. Exactly one of
// TextQuery and Audio must be set.
type ConversationOptions struct {
	User      string
	TextQuery string
	Language  string
	Audio     *AudioOptions
}

// Assistant abstracts the remote voice-assistant service. One session per
// configured user is held open; each StartConversation opens one turn.
type Assistant interface {
	StartConversation(ctx context.Context, opts ConversationOptions) (ConversationStream, error)
}

// ConversationStream is one in-flight turn. Events are delivered in the
// order the assistant emits them; the channel is closed after the terminal
// ended or error event.
type ConversationStream interface {
	// Send streams one frame of outbound audio.
	Send(frame []byte) error
	// CloseSend signals the end of the caller's utterance.
	CloseSend() error
	// Events returns the stream of inbound events.
	Events() <-chan Event
	// Close releases the turn's resources.
	Close() error
}
