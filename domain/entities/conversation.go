package entities

import (
	"errors"
	"time"
)

// ErrAudioLimitExceeded is returned when a conversation's accumulated
// inbound audio grows past the configured cap. The conversation is aborted
// rather than re-broadcast partially.
var ErrAudioLimitExceeded = errors.New("accumulated audio exceeds size limit")

// Conversation is one logical exchange (or chain of follow-up turns) with
// the assistant. It is identified by a process-lifetime counter and owned
// exclusively by the session that created it; the accumulating buffer is
// never shared across conversations.
type Conversation struct {
	ID   uint64
	User string

	// Buffer accumulates inbound audio fragments. nil until the first
	// fragment arrives and after Release.
	Buffer []byte

	// Continued marks a follow-up turn of an earlier exchange, so the
	// initial broadcast preface is not repeated.
	Continued bool

	// BroadcastResponse requests that an audio reply be re-broadcast
	// instead of only being read back as text.
	BroadcastResponse bool

	StartedAt time.Time
}

// NewConversation creates a conversation for a user. The caller assigns the
// counter value.
func NewConversation(id uint64, user string) *Conversation {
	return &Conversation{
		ID:        id,
		User:      user,
		StartedAt: time.Now(),
	}
}

// AppendAudio adds one inbound fragment to the accumulating buffer,
// creating it on the first fragment. Fails with ErrAudioLimitExceeded when
// the buffer would grow past maxBytes.
func (c *Conversation) AppendAudio(fragment []byte, maxBytes int) error {
	if len(c.Buffer)+len(fragment) > maxBytes {
		return ErrAudioLimitExceeded
	}
	c.Buffer = append(c.Buffer, fragment...)
	return nil
}

// HasAudio reports whether any inbound audio has been accumulated.
func (c *Conversation) HasAudio() bool {
	return len(c.Buffer) > 0
}

// Release drops the accumulating buffer. Called when the exchange ends
// without continuation or once post-processing completes.
func (c *Conversation) Release() {
	c.Buffer = nil
}

// Validate validates the conversation data.
func (c *Conversation) Validate() error {
	if c.User == "" {
		return errors.New("user is required")
	}
	return nil
}
