package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the ledger backend could not be reached or
// returned an error. Crawls treat it as fatal.
var ErrUnavailable = errors.New("ledger unavailable")

// Outcome is the result of a Claim.
type Outcome int

const (
	// Suppressed means the URL was visited within the revisit window.
	Suppressed Outcome = iota
	// Fresh means the caller now owns the visit and must crawl the URL.
	Fresh
)

// String returns a human readable outcome name.
func (o Outcome) String() string {
	if o == Fresh {
		return "fresh"
	}
	return "suppressed"
}

// Entry is one ledger record.
type Entry struct {
	URL           string
	LastVisitedAt time.Time
}

// Ledger is a shared visited-URL store.
type Ledger interface {
	// Claim atomically checks url against the revisit window and, when the
	// window has elapsed or the url is unknown, records now as the visit
	// time and returns Fresh.
	Claim(ctx context.Context, url string, revisit time.Duration) (Outcome, error)

	// Visited reports whether url was visited within the revisit window.
	// It never records anything.
	Visited(ctx context.Context, url string, revisit time.Duration) (bool, error)

	// Entries returns all records ordered by URL.
	Entries(ctx context.Context) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}

// Expired reports whether a visit at last is outside the revisit window
// at now. A non-positive revisit interval never expires.
func Expired(last, now time.Time, revisit time.Duration) bool {
	if revisit <= 0 {
		return false
	}
	return now.Sub(last) >= revisit
}

// Clock returns the current time. Backends accept one for tests.
type Clock func() time.Time
