package urlfilter

import (
	"errors"
	"fmt"
)

// ErrRejected matches every *RejectedError via errors.Is.
var ErrRejected = errors.New("url rejected")

// Rejection reasons.
var (
	// ErrEmptyHref is returned for blank href values.
	ErrEmptyHref = errors.New("empty href")

	// ErrExcluded is returned when the href matches an exclusion pattern.
	ErrExcluded = errors.New("matches exclusion pattern")

	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrInvalidURL is returned when the href cannot be parsed or resolved.
	ErrInvalidURL = errors.New("invalid url")

	// ErrOutOfScope is returned when the link points at another authority.
	ErrOutOfScope = errors.New("outside crawl domain")
)

// RejectedError describes why an href was not accepted as a crawl target.
type RejectedError struct {
	Href   string
	Reason error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected %q: %v", e.Href, e.Reason)
}

// Unwrap returns the rejection reason.
func (e *RejectedError) Unwrap() error {
	return e.Reason
}

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

func reject(href string, reason error) error {
	return &RejectedError{Href: href, Reason: reason}
}
