// Package ids mints and validates the ULIDs used as public event
// identifiers. Internal rows keep UUID keys; ULIDs are what URLs carry.
package ids

import (
	"crypto/rand"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ulidRegex = regexp.MustCompile(`(?i)^[0-9A-HJKMNP-TV-Z]{26}$`)

	ErrInvalidULID = errors.New("invalid ULID")
)

// NewULID generates a new ULID string.
func NewULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NormalizeULID validates the given string as a ULID and returns its
// canonical uppercase form.
func NormalizeULID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !ulidRegex.MatchString(trimmed) {
		return "", ErrInvalidULID
	}
	return strings.ToUpper(trimmed), nil
}
