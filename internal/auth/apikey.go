package auth

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefixLen is the number of leading key characters stored in clear for
// lookup. The rest of the key is only ever stored as a bcrypt hash.
const APIKeyPrefixLen = 8

// APIKey is the static shared-secret credential gating authority-account
// issuance.
type APIKey struct {
	ID         string
	Prefix     string
	Hash       string
	Name       string
	IsActive   bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

type APIKeyStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	UpdateLastUsed(ctx context.Context, id string) error
}

var (
	ErrMissingAPIKey = errors.New("missing api key")
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// GenerateAPIKey mints a new key string of the form cs_<random>. The caller
// persists the prefix and bcrypt hash; the plaintext is shown once.
func GenerateAPIKey() (plaintext, prefix, hash string, err error) {
	raw := make([]byte, 20)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generate api key: %w", err)
	}
	plaintext = "cs_" + strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw))
	prefix = plaintext[:APIKeyPrefixLen]

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), BcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hash api key: %w", err)
	}
	return plaintext, prefix, string(hashed), nil
}

func APIKeyFromRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrMissingAPIKey
	}
	return APIKeyFromHeader(r.Header.Get("Authorization"))
}

func APIKeyFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingAPIKey
	}
	key := strings.TrimSpace(parts[1])
	if key == "" || !utf8.ValidString(key) {
		return "", ErrInvalidAPIKey
	}
	return key, nil
}

// ValidateAPIKey resolves the bearer key against the store. Inactive, expired,
// unknown, and mismatched keys all fail identically.
func ValidateAPIKey(ctx context.Context, store APIKeyStore, authHeader string) (*APIKey, error) {
	if store == nil {
		return nil, ErrInvalidAPIKey
	}

	key, err := APIKeyFromHeader(authHeader)
	if err != nil {
		return nil, err
	}
	if len(key) < APIKeyPrefixLen {
		return nil, ErrInvalidAPIKey
	}

	stored, err := store.LookupByPrefix(ctx, key[:APIKeyPrefixLen])
	if err != nil || stored == nil {
		return nil, ErrInvalidAPIKey
	}
	if !stored.IsActive {
		return nil, ErrInvalidAPIKey
	}
	if stored.ExpiresAt != nil && stored.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidAPIKey
	}

	if err := bcrypt.CompareHashAndPassword([]byte(stored.Hash), []byte(key)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	_ = store.UpdateLastUsed(ctx, stored.ID)
	return stored, nil
}
