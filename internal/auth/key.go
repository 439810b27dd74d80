// Package auth verifies inbound relay keys and manages the per-user OAuth
// credentials used to reach the assistant backend.
package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidKey is returned when the presented relay key does not match the
// one configured for the user. Callers must not include the presented key in
// logs; use Redact for any key that has to appear in output.
var ErrInvalidKey = errors.New("invalid relay key")

// ErrUnknownUser is returned when no relay user with that name is configured.
var ErrUnknownUser = errors.New("unknown relay user")

// KeyStore answers whether a presented relay key matches a configured user.
type KeyStore struct {
	keys map[string]string
}

// NewKeyStore builds a key store from the user → pre-shared key mapping
// loaded at startup.
func NewKeyStore(keys map[string]string) *KeyStore {
	store := make(map[string]string, len(keys))
	for user, key := range keys {
		store[user] = key
	}
	return &KeyStore{keys: store}
}

// Verify checks the presented key against the configured one for user.
// Comparison is constant-time and case-sensitive.
func (s *KeyStore) Verify(user, presented string) error {
	configured, ok := s.keys[user]
	if !ok {
		return ErrUnknownUser
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) != 1 {
		return ErrInvalidKey
	}
	return nil
}

// Redact replaces a relay key with a fixed placeholder for logging.
func Redact(string) string {
	return "[redacted]"
}
