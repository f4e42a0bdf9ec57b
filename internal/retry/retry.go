package retry

import (
	"context"
	"errors"
	"time"
)

// Config holds retry configuration
type Config struct {
	// MaxRetries is the number of retries after the first attempt (0 = no retry)
	MaxRetries int
	// Delay is the fixed wait before each retry
	Delay time.Duration
	// RetryableFunc determines if an error is retryable
	RetryableFunc func(error) bool
	// OnRetry is called before each retry with the retry number (1-based)
	// and the error of the attempt that failed
	OnRetry func(retry int, err error)
}

// DefaultConfig returns a single retry after a fixed 100ms delay
func DefaultConfig() Config {
	return Config{
		MaxRetries:    1,
		Delay:         100 * time.Millisecond,
		RetryableFunc: DefaultRetryableFunc,
	}
}

// DefaultRetryableFunc is the default function to determine if an error is retryable
func DefaultRetryableFunc(err error) bool {
	// Don't retry context errors
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var nonRetryable *NonRetryableError
	if errors.As(err, &nonRetryable) {
		return false
	}

	return true
}

// Retrier runs an operation up to MaxRetries+1 times
type Retrier struct {
	config Config
}

// New creates a new retrier with the given configuration
func New(config Config) *Retrier {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	if config.RetryableFunc == nil {
		config.RetryableFunc = DefaultRetryableFunc
	}

	return &Retrier{
		config: config,
	}
}

// MaxAttempts returns the total number of attempts the retrier makes
func (r *Retrier) MaxAttempts() int {
	return r.config.MaxRetries + 1
}

// Do executes the given function with retry logic
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Value(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value executes fn with the retrier's policy and returns its result
func Value[T any](ctx context.Context, r *Retrier, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		lastErr = err

		if attempt >= r.config.MaxRetries {
			break
		}

		if !r.config.RetryableFunc(err) {
			return zero, err
		}

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(r.config.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, &Error{
		Err:      lastErr,
		Attempts: r.config.MaxRetries + 1,
	}
}

// Error represents a retry error with additional information
type Error struct {
	Err      error
	Attempts int
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NonRetryableError wraps an error to indicate it should not be retried
type NonRetryableError struct {
	err error
}

// NewNonRetryableError creates a new non-retryable error
func NewNonRetryableError(err error) error {
	return &NonRetryableError{err: err}
}

// Error implements the error interface
func (e *NonRetryableError) Error() string {
	return e.err.Error()
}

// Unwrap returns the underlying error
func (e *NonRetryableError) Unwrap() error {
	return e.err
}
