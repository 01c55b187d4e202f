// Package publish posts the final text exactly once and reports how it went.
// The gate never returns an error or panics: every result is an Outcome.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/observability/metrics"
	"market-xbot/internal/observability/tracing"
)

// Publisher sends one post. Implementations must not retry: a second
// attempt may create a duplicate post. Denials (401/402/403, quota) wrap
// entity.ErrPublishDenied.
type Publisher interface {
	Publish(ctx context.Context, text string) (postID string, err error)
}

// Status is the classified result of a publish attempt.
type Status string

const (
	StatusPublished Status = "published"
	StatusDenied    Status = "denied"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

var (
	// ErrEmptyText is recorded when there was nothing to post.
	ErrEmptyText = errors.New("empty post text")
	// ErrDisabled is recorded when publication is switched off.
	ErrDisabled = errors.New("publication disabled")
	// ErrPublisherPanic is recorded when the publisher panicked.
	ErrPublisherPanic = errors.New("publisher panicked")
)

// Outcome is what the gate reports back. Err is set for every status other
// than published.
type Outcome struct {
	Status Status
	PostID string
	Err    error
}

// Published reports whether the post went out.
func (o Outcome) Published() bool {
	return o.Status == StatusPublished
}

// Gate wraps a Publisher with the single-attempt policy.
type Gate struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewGate returns a Gate. A nil publisher turns the gate into a dry run that
// always reports StatusSkipped.
func NewGate(publisher Publisher, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gate{publisher: publisher, logger: logger}
}

// Enabled reports whether a publisher is configured.
func (g *Gate) Enabled() bool {
	return g.publisher != nil
}

// Publish makes at most one publish call for text.
func (g *Gate) Publish(ctx context.Context, text string) (out Outcome) {
	ctx, span := tracing.StartStage(ctx, "publish")
	defer func() {
		span.SetAttributes(attribute.String("status", string(out.Status)))
		if out.Status == StatusFailed {
			tracing.EndStage(span, out.Err)
		} else {
			tracing.EndStage(span, nil)
		}
		metrics.RecordPublish(string(out.Status))
	}()

	switch {
	case g.publisher == nil:
		g.logger.Info("publication disabled, skipping post")
		return Outcome{Status: StatusSkipped, Err: ErrDisabled}
	case text == "":
		g.logger.Warn("nothing to publish, skipping post")
		return Outcome{Status: StatusSkipped, Err: ErrEmptyText}
	}

	postID, err := g.attempt(ctx, text)
	switch {
	case err == nil:
		g.logger.Info("post published", slog.String("post_id", postID))
		return Outcome{Status: StatusPublished, PostID: postID}
	case errors.Is(err, entity.ErrPublishDenied):
		g.logger.Warn("publication denied, skipping post",
			slog.String("error", logging.SanitizeError(err)))
		return Outcome{Status: StatusDenied, Err: err}
	default:
		g.logger.Error("publication failed, skipping post",
			slog.String("error", logging.SanitizeError(err)))
		return Outcome{Status: StatusFailed, Err: err}
	}
}

func (g *Gate) attempt(ctx context.Context, text string) (postID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			postID = ""
			err = fmt.Errorf("%w: %v", ErrPublisherPanic, r)
		}
	}()
	return g.publisher.Publish(ctx, text)
}
