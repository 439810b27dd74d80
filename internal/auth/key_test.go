package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestKeyStoreVerify(t *testing.T) {
	store := NewKeyStore(map[string]string{
		"global":  "super-secret",
		"kitchen": "Other-Secret",
	})

	tests := []struct {
		name    string
		user    string
		key     string
		wantErr error
	}{
		{"correct key", "global", "super-secret", nil},
		{"wrong key", "global", "not-the-key", ErrInvalidKey},
		{"other user's key", "global", "Other-Secret", ErrInvalidKey},
		{"case sensitive", "kitchen", "other-secret", ErrInvalidKey},
		{"prefix does not match", "global", "super-secret-extra", ErrInvalidKey},
		{"empty key", "global", "", ErrInvalidKey},
		{"unknown user", "garage", "super-secret", ErrUnknownUser},
	}

	for _, tt := range tests {
		err := store.Verify(tt.user, tt.key)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: Verify(%q, ...) = %v, want %v", tt.name, tt.user, err, tt.wantErr)
		}
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("super-secret"); got != "[redacted]" {
		t.Errorf("Redact leaked content: %q", got)
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCredentialStore returned error: %v", err)
	}

	creds := &Credentials{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
	if err := store.Save("global", creds); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load("global")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.AccessToken != creds.AccessToken || loaded.RefreshToken != creds.RefreshToken {
		t.Error("Loaded credentials do not match saved credentials")
	}
}

func TestCredentialStoreMissingUser(t *testing.T) {
	store, err := NewCredentialStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCredentialStore returned error: %v", err)
	}
	if _, err := store.Load("absent"); err == nil {
		t.Error("Expected error loading credentials for unknown user")
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Now()

	fresh := &Credentials{Expiry: now.Add(time.Hour)}
	if fresh.NeedsRefresh(now) {
		t.Error("Credentials an hour from expiry should not need refresh")
	}

	stale := &Credentials{Expiry: now.Add(30 * time.Second)}
	if !stale.NeedsRefresh(now) {
		t.Error("Credentials inside the refresh window should need refresh")
	}

	zero := &Credentials{}
	if zero.NeedsRefresh(now) {
		t.Error("Credentials without expiry metadata should not force refresh")
	}
}

func TestNeedsRefreshPrefersIDTokenClaim(t *testing.T) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}

	// Stored expiry says fresh, identity token says expired.
	creds := &Credentials{IDToken: signed, Expiry: now.Add(time.Hour)}
	if !creds.NeedsRefresh(now) {
		t.Error("Expired identity token should force refresh regardless of stored expiry")
	}
}
