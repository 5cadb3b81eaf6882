// Package msgid provides unique message identifier generation and validation.
//
// ID Format: <type:2>-<base62_ts:4><base62_rand:4> (11 chars total including dash)
//
// Message Types:
//   - ch = chat
//   - em = email
//   - mn = manual
//
// The timestamp component uses microseconds since epoch modulo 62^4 and the
// random component provides 14M+ combinations to keep collisions unlikely.
// These IDs name pipeline-internal records (messages, extractions); the
// collector-supplied source_id stays the dedup anchor.
package msgid

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/daylogger/daylog/pkg/worklog"
)

// Message type constants
const (
	TypeChat   = "ch"
	TypeEmail  = "em"
	TypeManual = "mn"
)

// base62 alphabet: 0-9, a-z, A-Z
const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// base62Max is 62^4 = 14,776,336 (used for timestamp wrapping)
const base62Max = 62 * 62 * 62 * 62

// validTypes maps type prefixes to their names for validation
var validTypes = map[string]bool{
	TypeChat:   true,
	TypeEmail:  true,
	TypeManual: true,
}

// Errors
var (
	ErrInvalidFormat = errors.New("invalid message ID format")
	ErrInvalidType   = errors.New("invalid message type")
)

// MessageID represents a parsed message identifier.
type MessageID struct {
	Type      string // Message type prefix (ch, em, mn)
	Timestamp string // Base62 encoded timestamp (4 chars)
	Random    string // Base62 encoded random component (4 chars)
	Raw       string // Original ID string
}

// String returns the string representation of the MessageID.
func (m MessageID) String() string {
	return m.Raw
}

// New generates a new message ID for the given message type.
// Panics if messageType is not a valid type constant.
func New(messageType string) string {
	if !validTypes[messageType] {
		panic(fmt.Sprintf("msgid: invalid message type: %q", messageType))
	}

	ts := encodeBase62(uint64(time.Now().UnixNano()/1000) % base62Max)
	rnd := randomBase62(4)

	return fmt.Sprintf("%s-%s%s", messageType, ts, rnd)
}

// ForSource generates a new message ID whose type prefix matches the
// collector source.
func ForSource(source worklog.Source) (string, error) {
	switch source {
	case worklog.SourceChat:
		return New(TypeChat), nil
	case worklog.SourceEmail:
		return New(TypeEmail), nil
	case worklog.SourceManual:
		return New(TypeManual), nil
	}
	return "", fmt.Errorf("%w: no prefix for source %q", ErrInvalidType, source)
}

// Parse validates and parses a message ID string.
// Returns an error if the ID format is invalid or the type is unknown.
func Parse(id string) (MessageID, error) {
	if len(id) != 11 {
		return MessageID{}, fmt.Errorf("%w: expected 11 characters, got %d", ErrInvalidFormat, len(id))
	}

	if id[2] != '-' {
		return MessageID{}, fmt.Errorf("%w: missing dash at position 2", ErrInvalidFormat)
	}

	prefix := id[:2]
	if !validTypes[prefix] {
		return MessageID{}, fmt.Errorf("%w: unknown type %q", ErrInvalidType, prefix)
	}

	suffix := id[3:]
	if !isValidBase62(suffix) {
		return MessageID{}, fmt.Errorf("%w: suffix contains invalid characters", ErrInvalidFormat)
	}

	return MessageID{
		Type:      prefix,
		Timestamp: suffix[:4],
		Random:    suffix[4:],
		Raw:       id,
	}, nil
}

// IsValid checks if a string is a valid message ID.
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// encodeBase62 encodes a number as a 4-character base62 string.
func encodeBase62(n uint64) string {
	result := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(result)
}

// randomBase62 generates a random base62 string of the specified length.
// Uses rejection sampling to eliminate modulo bias.
func randomBase62(length int) string {
	result := make([]byte, length)

	// 256 / 62 = 4 with remainder 8, so values 0-247 map evenly to 0-61
	const maxUnbiased = 248

	for i := 0; i < length; {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			result[i] = base62Alphabet[0]
			i++
			continue
		}

		if b[0] < maxUnbiased {
			result[i] = base62Alphabet[b[0]%62]
			i++
		}
	}

	return string(result)
}

// isValidBase62 checks if a string contains only base62 characters.
func isValidBase62(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}
