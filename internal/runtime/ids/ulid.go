package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a time-sortable ULID used as the envelope eventId and as
// the transport message UUID. IDs generated by one process are strictly
// increasing, so lexical order matches emission order.
func NewEventID() string {
	return newAt(time.Now())
}

func newAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// EventTime extracts the millisecond timestamp embedded in an ID produced by
// NewEventID. ok is false for IDs that are not ULIDs (for example ids
// assigned by an upstream relay).
func EventTime(id string) (t time.Time, ok bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()).UTC(), true
}
