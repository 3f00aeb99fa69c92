package backend

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TimestampLayout is the ISO-8601 UTC layout with millisecond precision used
// for created_at/updated_at. Values in this layout compare correctly as strings.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewClientID returns a client-temporary id for kind, e.g. client-customer-01J...
func NewClientID(kind Kind) string {
	prefix, ok := kindIDPrefixes[kind]
	if !ok {
		prefix = string(kind)
	}
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return "client-" + prefix + "-" + strings.ToLower(id.String())
}

// NewChildID returns an id for bill children, which are never pushed on their own
func NewChildID(kind Kind) string {
	return kindIDPrefixes[kind] + "-" + uuid.NewString()
}

// IsClientTempID reports whether id was generated locally and not yet
// replaced by a server id. The bill- prefix is kept for rows written by
// older clients.
func IsClientTempID(id string) bool {
	return strings.HasPrefix(id, "client-") || strings.HasPrefix(id, "bill-")
}

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Now returns the current time in TimestampLayout
func Now() string {
	return FormatTimestamp(time.Now())
}

// NormalizeTimestamp converts a remote timestamp to TimestampLayout.
// Unparseable values are returned unchanged.
func NormalizeTimestamp(s string) string {
	if s == "" {
		return s
	}
	for _, layout := range []string{time.RFC3339Nano, TimestampLayout, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return FormatTimestamp(t)
		}
	}
	return s
}
