// Package apikey provides an API key authenticator that validates
// bearer tokens against a static key store using SHA-256 hashing
// and constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelhodar/neuro-exercises/pkg/auth"
)

// KeyEntry maps a key hash to the calling service's name.
type KeyEntry struct {
	KeyHash [32]byte
	Name    string
}

// Authenticator validates bearer tokens against a static key store.
type Authenticator struct {
	keys []KeyEntry
}

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Name string
	Key  string
}

// New creates an API key authenticator. Keys are hashed immediately;
// plaintext keys are not stored. Entries with an empty key are ignored.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		a.keys = append(a.keys, KeyEntry{
			KeyHash: sha256.Sum256([]byte(e.Key)),
			Name:    e.Name,
		})
	}
	return a
}

// Len returns the number of usable keys.
func (a *Authenticator) Len() int { return len(a.keys) }

// Authenticate extracts the bearer token and validates it.
// Returns Yes if valid, No if bearer token present but invalid,
// Abstain if no Authorization header or not a Bearer token.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))

	for _, entry := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], entry.KeyHash[:]) == 1 {
			return auth.AuthResult{Decision: auth.Yes, Identity: &auth.Identity{Subject: entry.Name}}
		}
	}

	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}
