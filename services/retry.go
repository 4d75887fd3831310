package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"investment-tracker/models"
	"investment-tracker/observability"
)

// RetryConfig bounds Retry. Ledger commands are never retried; this covers
// opening the database and fetching quotes.
type RetryConfig struct {
	Attempts       int // total calls, including the first
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is used while connecting to storage at startup
var DefaultRetryConfig = RetryConfig{
	Attempts:       4,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// QuoteRetryConfig is used per quote batch; one retry keeps a P&L view responsive
var QuoteRetryConfig = RetryConfig{
	Attempts:       2,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     time.Second,
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that Retry returns it without another attempt
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether retrying err cannot help
func IsPermanent(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	switch models.KindOf(err) {
	case models.KindValidation, models.KindNotFound, models.KindInvalidState:
		return true
	}
	return errors.Is(err, ErrBreakerOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Retry calls fn until it succeeds, returns a permanent error, or the attempts run out.
// The returned error wraps the last failure and is prefixed with op.
func Retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.Attempts, 1)
	backoff := cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if IsPermanent(err) || attempt >= attempts {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		observability.Warn("retrying after failure",
			"op", op,
			"attempt", attempt,
			"attempts", attempts,
			"backoff", backoff,
			"error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w", op, errors.Join(ctx.Err(), err))
		case <-timer.C:
		}

		backoff *= 2
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}
