package fetcher

import (
	"context"
	"fmt"
)

// Reason classifies why a fetch ultimately failed.
type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonBlocked     Reason = "blocked"
	ReasonNotFound    Reason = "not_found"
	ReasonServerError Reason = "server_error"
)

// Error is returned when a fetch fails after the retry ceiling is exhausted
// or a non-retryable status is seen.
type Error struct {
	Reason Reason
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed (%s): %v", e.URL, e.Reason, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed (%s): status %d", e.URL, e.Reason, e.Status)
	}
	return fmt.Sprintf("fetch %s failed (%s)", e.URL, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fetcher retrieves the raw HTML document behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
