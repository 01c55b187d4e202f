package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/observability/metrics"
	"market-xbot/internal/observability/tracing"
	"market-xbot/internal/resilience/retry"
	"market-xbot/internal/utils/text"
)

// Backend is a generative text service. Generate sends one payload with a
// system instruction and returns the raw text of the reply.
//
// Implementations make a single attempt; transient failures should be
// recognisable by retry.IsRetryable (for example *retry.HTTPError).
type Backend interface {
	Name() string
	Generate(ctx context.Context, system, payload string) (string, error)
}

// Invoker runs one analysis per call.
type Invoker struct {
	backend Backend
	retry   retry.Config
	limits  PayloadLimits
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithRetryConfig replaces the default retry.AnalysisConfig policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(i *Invoker) { i.retry = cfg }
}

// WithPayloadLimits replaces DefaultPayloadLimits.
func WithPayloadLimits(l PayloadLimits) Option {
	return func(i *Invoker) { i.limits = l.normalized() }
}

// NewInvoker returns an Invoker for backend.
func NewInvoker(backend Backend, logger *slog.Logger, opts ...Option) *Invoker {
	if logger == nil {
		logger = logging.Discard()
	}
	i := &Invoker{
		backend: backend,
		retry:   retry.AnalysisConfig(),
		limits:  DefaultPayloadLimits(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.retry.OnRetry == nil {
		i.retry.OnRetry = metrics.RecordRetry
	}
	if i.retry.Logger == nil {
		i.retry = i.retry.WithLogger(logger)
	}
	return i
}

// Analyze renders news and forum into one payload, calls the backend once
// (plus retries for transient errors) and validates the reply.
//
// Errors wrap one of the package sentinels; use Classify for a label.
// Validation errors are not retried: a malformed reply is a final answer.
func (i *Invoker) Analyze(ctx context.Context, news, forum []entity.ContentItem) (result entity.AnalysisResult, err error) {
	start := i.now()
	ctx, span := tracing.StartStage(ctx, "analysis.invoke",
		attribute.String("backend", i.backend.Name()),
		attribute.Int("news", len(news)),
		attribute.Int("forum", len(forum)))
	defer func() {
		outcome := Classify(err)
		if err == nil && result.Truncated {
			outcome = OutcomeTruncated
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		tracing.EndStage(span, err)
		metrics.RecordAnalysis(outcome, i.now().Sub(start))
	}()

	if len(news) == 0 && len(forum) == 0 {
		return entity.AnalysisResult{}, ErrNothingToAnalyze
	}

	payload := BuildPayload(news, forum, i.limits)
	i.logger.Info("requesting analysis",
		slog.String("backend", i.backend.Name()),
		slog.Int("news_items", len(news)),
		slog.Int("forum_items", len(forum)),
		slog.Int("payload_runes", text.CountRunes(payload)))

	raw, err := retry.Do(ctx, i.retry, func(ctx context.Context) (string, error) {
		return i.backend.Generate(ctx, SystemPrompt, payload)
	})
	if err != nil {
		i.logger.Error("analysis backend failed",
			slog.String("backend", i.backend.Name()),
			slog.String("error", logging.SanitizeError(err)))
		return entity.AnalysisResult{}, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, i.backend.Name(), err)
	}

	result, err = ParseResponse(raw)
	if err != nil {
		i.logger.Warn("analysis response rejected",
			slog.String("backend", i.backend.Name()),
			slog.String("outcome", Classify(err)),
			slog.String("response", text.TruncateWithSuffix(raw, 300, "...")),
			slog.Any("error", err))
		return entity.AnalysisResult{}, err
	}

	if result.Truncated {
		i.logger.Warn("post text exceeded limit and was truncated",
			slog.Int("limit", entity.MaxPostRunes))
	}
	i.logger.Info("analysis completed",
		slog.String("sentiment", string(result.Sentiment)),
		slog.Int("post_runes", text.CountRunes(result.PostText)),
		slog.Duration("duration", i.now().Sub(start)))
	return result, nil
}
