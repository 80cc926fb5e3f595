// Package ids generates record identifiers, RSVP tokens and timestamps.
package ids

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

const (
	// SecretTokenBytes is the entropy of an RSVP token (256 bits).
	SecretTokenBytes = 32
	// ShortTokenLength is the length of the SMS alias token.
	ShortTokenLength = 8

	// TimestampLayout renders UTC timestamps with microseconds and a Z suffix.
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
)

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// NewSecretToken returns 64 hex characters drawn from crypto/rand.
func NewSecretToken() string {
	b := make([]byte, SecretTokenBytes)
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewShortToken returns 8 URL-safe characters (48 bits) drawn from crypto/rand.
func NewShortToken() string {
	b := make([]byte, ShortTokenLength*6/8)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)[:ShortTokenLength]
}

// Now returns the current UTC time as a sortable string.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t in TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ValidID reports whether id is a canonical UUID string.
func ValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}
