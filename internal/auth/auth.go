// Package auth covers both directions of credentials: API keys presented to
// the tool server, and bearer tokens sent to the WebUI host.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingKey = errors.New("missing Authorization header")
	ErrInvalidKey = errors.New("invalid API key")
)

// Authenticator validates API keys against a set of SHA-256 hashes.
type Authenticator struct {
	hashes [][]byte
}

// NewAuthenticator returns nil when keyHashes is empty, which callers treat
// as "no authentication".
func NewAuthenticator(keyHashes []string) *Authenticator {
	var hashes [][]byte
	for _, h := range keyHashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		hashes = append(hashes, []byte(h))
	}
	if len(hashes) == 0 {
		return nil
	}
	return &Authenticator{hashes: hashes}
}

// ValidateAPIKey reports whether apiKey hashes to one of the configured keys.
func (a *Authenticator) ValidateAPIKey(apiKey string) error {
	if a == nil {
		return nil
	}
	keyHash := []byte(HashAPIKey(apiKey))
	match := 0
	for _, h := range a.hashes {
		match |= subtle.ConstantTimeCompare(keyHash, h)
	}
	if match != 1 {
		return ErrInvalidKey
	}
	return nil
}

// ExtractAPIKey extracts the API key from the Authorization header.
func ExtractAPIKey(r *http.Request) (string, error) {
	return bearer(r.Header.Get("Authorization"))
}

func bearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingKey
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("unsupported authorization scheme")
	}
	return strings.TrimSpace(parts[1]), nil
}

// MatchBearer reports whether the request carries "Bearer <want>". An empty
// want accepts every request.
func MatchBearer(r *http.Request, want string) bool {
	if want == "" {
		return true
	}
	got, err := ExtractAPIKey(r)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// HashAPIKey creates a SHA-256 hash of an API key for storage.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
