package entities

import (
	"errors"
	"testing"
)

func TestNewConversation(t *testing.T) {
	conv := NewConversation(7, "global")

	if conv.ID != 7 {
		t.Errorf("Expected ID 7, got %d", conv.ID)
	}
	if conv.User != "global" {
		t.Errorf("Expected user global, got %s", conv.User)
	}
	if conv.HasAudio() {
		t.Error("New conversation should not have audio")
	}
	if conv.Continued {
		t.Error("New conversation should not be marked continued")
	}
}

func TestAppendAudio(t *testing.T) {
	conv := NewConversation(1, "global")

	if err := conv.AppendAudio(make([]byte, 100), 280000); err != nil {
		t.Fatalf("Unexpected error appending audio: %v", err)
	}
	if !conv.HasAudio() {
		t.Error("Expected HasAudio after first fragment")
	}
	if len(conv.Buffer) != 100 {
		t.Errorf("Expected 100 buffered bytes, got %d", len(conv.Buffer))
	}

	if err := conv.AppendAudio(make([]byte, 50), 280000); err != nil {
		t.Fatalf("Unexpected error appending audio: %v", err)
	}
	if len(conv.Buffer) != 150 {
		t.Errorf("Expected 150 buffered bytes, got %d", len(conv.Buffer))
	}
}

func TestAppendAudioLimit(t *testing.T) {
	conv := NewConversation(1, "global")

	if err := conv.AppendAudio(make([]byte, 1000), 1000); err != nil {
		t.Fatalf("Fragment at the cap should be accepted, got %v", err)
	}
	err := conv.AppendAudio(make([]byte, 1), 1000)
	if !errors.Is(err, ErrAudioLimitExceeded) {
		t.Errorf("Expected ErrAudioLimitExceeded, got %v", err)
	}
	if len(conv.Buffer) != 1000 {
		t.Errorf("Buffer should be unchanged after a rejected append, got %d bytes", len(conv.Buffer))
	}
}

func TestRelease(t *testing.T) {
	conv := NewConversation(1, "global")
	_ = conv.AppendAudio(make([]byte, 10), 100)

	conv.Release()
	if conv.HasAudio() {
		t.Error("Released conversation should not hold audio")
	}
	if conv.Buffer != nil {
		t.Error("Released conversation buffer should be nil")
	}
}

func TestConversationValidation(t *testing.T) {
	conv := NewConversation(1, "global")
	if err := conv.Validate(); err != nil {
		t.Errorf("Valid conversation should not have validation errors, got: %v", err)
	}

	conv.User = ""
	if err := conv.Validate(); err == nil {
		t.Error("Conversation without user should have validation error")
	}
}
