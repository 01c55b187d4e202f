// Package retry provides retry logic with exponential backoff.
// Every network-facing call in the pipeline goes through Do or WithBackoff with a
// Config chosen for its call site, so fetches, analysis calls and renders each
// carry their own attempt and delay budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Config holds the backoff policy for one call site.
type Config struct {
	// Name labels the call site in logs and metrics (e.g. "news-fetch").
	Name string

	// MaxAttempts is the maximum number of attempts, including the first one
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Multiplier is the multiplier for exponential backoff. Values below 1 are
	// treated as 1 so delays never shrink.
	Multiplier float64

	// Logger receives retry warnings. Nil discards them.
	Logger *slog.Logger

	// Sleep waits for d or until ctx is done. Nil uses a real timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each backoff sleep.
	OnRetry func(name string, attempt int, delay time.Duration, err error)
}

// FeedFetchConfig returns configuration for news RSS feed fetching.
// Feeds are cheap and fast, so retries start early and stay short.
func FeedFetchConfig() Config {
	return Config{
		Name:         "news-fetch",
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// ForumFetchConfig returns configuration for subreddit listing calls.
// The forum API rate-limits aggressively; back off harder than feeds.
func ForumFetchConfig() Config {
	return Config{
		Name:         "forum-fetch",
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     20 * time.Second,
		Multiplier:   2.0,
	}
}

// AnalysisConfig returns configuration for generative backend calls.
// Moderate retry due to cost considerations.
func AnalysisConfig() Config {
	return Config{
		Name:         "analysis",
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// RenderConfig returns configuration for card rendering.
func RenderConfig() Config {
	return Config{
		Name:         "render",
		MaxAttempts:  2,
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// WithLogger returns a copy of c that logs to logger.
func (c Config) WithLogger(logger *slog.Logger) Config {
	c.Logger = logger
	return c
}

// Delays returns the backoff schedule between attempts: MaxAttempts-1 entries,
// each at least as long as the previous one.
func (c Config) Delays() []time.Duration {
	if c.MaxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, 0, c.MaxAttempts-1)
	delay := c.InitialDelay
	for i := 1; i < c.MaxAttempts; i++ {
		out = append(out, delay)
		delay = c.next(delay)
	}
	return out
}

func (c Config) next(delay time.Duration) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	next := time.Duration(float64(delay) * mult)
	if c.MaxDelay > 0 && next > c.MaxDelay {
		next = c.MaxDelay
	}
	if next < delay {
		// MaxDelay below InitialDelay: hold the current delay
		next = delay
	}
	return next
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c Config) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes op with retry logic and returns its value.
// Non-retryable errors are returned as-is after the first attempt; exhausting
// the budget returns the last error wrapped with the attempt count.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	logger := cfg.logger()
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					slog.String("operation", cfg.Name),
					slog.Int("attempt", attempt))
			}
			return v, nil
		}
		lastErr = err

		// Only the caller's context ends the loop; a timeout of the attempt
		// itself is transient.
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(err, ctxErr) {
				return zero, err
			}
			return zero, fmt.Errorf("retry aborted: %w: %w", ctxErr, err)
		}

		if !IsRetryable(err) {
			if attempt > 1 {
				logger.Warn("non-retryable error, aborting",
					slog.String("operation", cfg.Name),
					slog.Int("attempt", attempt),
					slog.Any("error", err))
			}
			return zero, err
		}

		// Don't wait after last attempt
		if attempt == attempts {
			break
		}

		logger.Warn("operation failed, retrying",
			slog.String("operation", cfg.Name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		if cfg.OnRetry != nil {
			cfg.OnRetry(cfg.Name, attempt, delay, err)
		}

		if err := cfg.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry aborted: %w", err)
		}
		delay = cfg.next(delay)
	}

	return zero, fmt.Errorf("max retry attempts (%d) exceeded: %w", attempts, lastErr)
}

// WithBackoff is Do for operations without a result value.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	_, err := Do(ctx, cfg, func(context.Context) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// IsRetryable determines if an error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	// An attempt's own deadline (per-call timeout, http.Client.Timeout).
	// Do stops first when the caller's context is the one that expired.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}

	// Network errors (timeout)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}

	return false
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is transient: 408, 429 or 5xx.
func (e *HTTPError) Retryable() bool {
	switch {
	case e.StatusCode >= 500 && e.StatusCode < 600:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	}
	return false
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient flags err as retryable regardless of its type.
// Adapters use it for failures they know to be temporary, such as a feed that
// returned an empty document.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}
