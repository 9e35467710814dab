package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoData            = errors.New("no data")
	ErrLockConflict      = errors.New("signal lock already active")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrInstrumentRemoved = errors.New("instrument removed")
	ErrAlertNotFound     = errors.New("alert subscription not found")
)

// TransientFetchError is a network or timeout failure from a source.
type TransientFetchError struct {
	Source     string
	Instrument string
	Err        error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s from %s: %v", e.Instrument, e.Source, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// RateLimitError means the provider refused the call for quota reasons.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Source)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// StaleTimestampError rejects a sample older than the newest one recorded.
type StaleTimestampError struct {
	Instrument string
	Timestamp  time.Time
	Newest     time.Time
}

func (e *StaleTimestampError) Error() string {
	return fmt.Sprintf("stale sample for %s: %s older than %s",
		e.Instrument, e.Timestamp.Format(time.RFC3339Nano), e.Newest.Format(time.RFC3339Nano))
}

// InsufficientDataError means the window is still warming up.
type InsufficientDataError struct {
	Instrument string
	Need       int
	Have       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d samples, have %d", e.Instrument, e.Need, e.Have)
}

// IsInsufficientData reports whether err carries an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}

// IsRateLimit reports whether err carries a RateLimitError.
func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}
