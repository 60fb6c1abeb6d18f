// Package apperr defines the errors that cross component boundaries and
// are turned into user-facing messages by the transport layer.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnauthorized   = errors.New("user is not authorized")
	ErrBanned         = errors.New("user is banned")
	ErrTimeParse      = errors.New("unrecognized time expression")
	ErrNotFound       = errors.New("not found")
	ErrReminderInPast = errors.New("reminder time is not in the future")
	ErrCannotBanAdmin = errors.New("admins cannot be banned")
)

// RateLimitError is returned when a user exhausts a rate-limit category.
type RateLimitError struct {
	Category string
	Limit    int
	Window   time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d per %s", e.Category, e.Limit, e.Window)
}

// ProviderError wraps any failure of an external generation, transcription,
// synthesis or search provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Provider wraps err as a ProviderError for op. A nil err yields nil.
func Provider(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

// IsProvider reports whether err is a ProviderError.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// AsRateLimit extracts a RateLimitError from err.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	ok := errors.As(err, &rl)
	return rl, ok
}
