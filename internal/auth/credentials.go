package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the persisted OAuth token set for one assistant user. The
// file contents are opaque to the relay except for expiry bookkeeping.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// CredentialStore reads and writes per-user OAuth token files under a
// single directory, one `<user>.json` per configured user.
type CredentialStore struct {
	dir string
}

// NewCredentialStore creates a store rooted at dir, creating it if needed.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	return &CredentialStore{dir: dir}, nil
}

// Load reads the token file for user.
func (s *CredentialStore) Load(user string) (*Credentials, error) {
	data, err := os.ReadFile(s.path(user))
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials for %s: %w", user, err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials for %s: %w", user, err)
	}
	return &creds, nil
}

// Save persists the token file for user with owner-only permissions.
func (s *CredentialStore) Save(user string, creds *Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials for %s: %w", user, err)
	}
	if err := os.WriteFile(s.path(user), data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials for %s: %w", user, err)
	}
	return nil
}

func (s *CredentialStore) path(user string) string {
	return filepath.Join(s.dir, user+".json")
}

// NeedsRefresh reports whether the token set should be refreshed before
// use. When an identity token is present its exp claim wins over the stored
// expiry, since the provider's clock is authoritative.
func (c *Credentials) NeedsRefresh(now time.Time) bool {
	if c.IDToken != "" {
		if exp, err := idTokenExpiry(c.IDToken); err == nil {
			return now.After(exp.Add(-time.Minute))
		}
	}
	if c.Expiry.IsZero() {
		return false
	}
	return now.After(c.Expiry.Add(-time.Minute))
}

// idTokenExpiry reads the exp claim of an identity token. The token is not
// verified here; the assistant backend rejects tampered tokens itself.
func idTokenExpiry(idToken string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse identity token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("identity token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
