package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/observability/metrics"
	"market-xbot/internal/observability/tracing"
	"market-xbot/internal/repository"
	"market-xbot/internal/resilience/retry"
	"market-xbot/internal/usecase/analysis"
	"market-xbot/internal/usecase/ingest"
	"market-xbot/internal/usecase/publish"
)

// Aggregator splits the current source batches into new and seen items.
type Aggregator interface {
	Aggregate(ctx context.Context, processed *entity.ProcessedIdSet) ingest.Aggregation
}

// Analyzer produces one AnalysisResult from the new items.
type Analyzer interface {
	Analyze(ctx context.Context, news, forum []entity.ContentItem) (entity.AnalysisResult, error)
}

// CardRenderer writes the sentiment card and returns its path.
type CardRenderer interface {
	RenderCard(ctx context.Context, card entity.Card) (string, error)
}

// ReportWriter appends an entry to the daily report and returns its path.
type ReportWriter interface {
	Append(ctx context.Context, entry entity.ReportEntry) (string, error)
}

// Publisher posts text once and classifies the result.
type Publisher interface {
	Publish(ctx context.Context, text string) publish.Outcome
}

// Deps are the collaborators of an Orchestrator. Cards and Reports are
// optional; a nil Publisher behaves as a dry-run gate.
type Deps struct {
	State      repository.ProcessedIDRepository
	Aggregator Aggregator
	Analyzer   Analyzer
	Cards      CardRenderer
	Reports    ReportWriter
	Publisher  Publisher
}

// Options tune an Orchestrator.
type Options struct {
	// MaxIDs caps the committed set, dropping the oldest ids. 0 keeps all.
	MaxIDs int
	// RenderRetry is the policy for card rendering.
	RenderRetry retry.Config
}

// DefaultOptions keeps every id and retries rendering with retry.RenderConfig.
func DefaultOptions() Options {
	return Options{RenderRetry: retry.RenderConfig()}
}

// Orchestrator runs the pipeline. It is not safe for concurrent Run calls;
// the scheduler never overlaps runs.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New returns an Orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.NewGate(nil, logger)
	}
	if opts.RenderRetry.OnRetry == nil {
		opts.RenderRetry.OnRetry = metrics.RecordRetry
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Run executes one pipeline run. The returned error is non-nil only when the
// state could not be loaded or committed; the report is filled either way.
func (o *Orchestrator) Run(ctx context.Context) (rep RunReport, err error) {
	rep = RunReport{RunID: o.newID(), StartedAt: o.now()}
	logger := logging.WithRunID(o.logger, rep.RunID)

	ctx, span := tracing.StartStage(ctx, "pipeline.run", attribute.String("run_id", rep.RunID))
	defer func() {
		rep.FinishedAt = o.now()
		if err != nil {
			rep.Status = StatusFailed
		}
		span.SetAttributes(attribute.String("status", string(rep.Status)))
		tracing.EndStage(span, err)
		metrics.RecordRun(string(rep.Status), rep.Duration())
	}()

	logger.Info("pipeline run started")

	// 1. load
	processed, err := o.deps.State.Load(ctx)
	if err != nil {
		logger.Error("failed to load processed ids, aborting run", slog.Any("error", err))
		return rep, fmt.Errorf("%w: %w", ErrLoadState, err)
	}
	logger.Info("processed ids loaded", slog.Int("count", processed.Len()))

	// 2. ingest
	agg := o.deps.Aggregator.Aggregate(ctx, processed)
	rep.NewNews = len(agg.News)
	rep.NewForum = len(agg.Forum)
	rep.Duplicates = agg.Duplicates
	rep.Invalid = agg.Invalid
	rep.SourceFailures = agg.Failures

	if agg.Empty() {
		rep.Status = StatusNoNewItems
		rep.ProcessedIDs = processed.Len()
		logger.Info("no new items, nothing to do",
			slog.Int("duplicates", agg.Duplicates),
			slog.Int("source_failures", len(agg.Failures)))
		return rep, nil
	}

	// 3. analyse
	rep.Ticker = SelectTicker(agg.News)
	result, aerr := o.deps.Analyzer.Analyze(ctx, agg.News, agg.Forum)
	rep.AnalysisOutcome = analysis.Classify(aerr)
	if aerr != nil {
		rep.AnalysisErr = aerr
		logger.Warn("analysis failed, skipping card, report and post",
			slog.String("outcome", rep.AnalysisOutcome),
			slog.Any("error", aerr))
	} else {
		if result.Truncated {
			rep.AnalysisOutcome = analysis.OutcomeTruncated
		}
		rep.Analysis = &result
		o.publishArtifacts(ctx, logger, &rep, result)
	}

	// 4. commit
	consumed := agg.NewIDs()
	rep.ConsumedIDs = processed.Add(consumed...)
	rep.PrunedIDs = processed.Retain(o.opts.MaxIDs)
	// A cancelled run still records what it consumed.
	if err := o.deps.State.Commit(context.WithoutCancel(ctx), processed); err != nil {
		logger.Error("failed to commit processed ids", slog.Any("error", err))
		return rep, fmt.Errorf("%w: %w", ErrCommitState, err)
	}
	rep.ProcessedIDs = processed.Len()
	metrics.UpdateProcessedIDs(rep.ProcessedIDs)

	rep.Status = StatusCompleted
	if aerr != nil || len(agg.Failures) > 0 {
		rep.Status = StatusDegraded
	}

	logger.Info("pipeline run finished",
		slog.String("status", string(rep.Status)),
		slog.String("ticker", rep.Ticker),
		slog.String("analysis", rep.AnalysisOutcome),
		slog.String("publish", string(rep.Publish.Status)),
		slog.Int("consumed_ids", rep.ConsumedIDs),
		slog.Int("processed_ids", rep.ProcessedIDs),
		slog.Int("pruned_ids", rep.PrunedIDs))
	return rep, nil
}

// publishArtifacts renders the card, appends the report and publishes.
// None of these steps can fail the run.
func (o *Orchestrator) publishArtifacts(ctx context.Context, logger *slog.Logger, rep *RunReport, result entity.AnalysisResult) {
	date := rep.StartedAt

	if o.deps.Cards != nil {
		path, err := o.renderCard(ctx, entity.Card{
			Ticker:    rep.Ticker,
			Sentiment: result.Sentiment,
			Reason:    result.Reason,
			Date:      date,
		})
		if err != nil {
			metrics.RecordArtifactFailure("card")
			logger.Warn("card rendering failed, continuing without image", slog.Any("error", err))
		} else {
			rep.CardPath = path
		}
	}

	if o.deps.Reports != nil {
		imageName := ""
		if rep.CardPath != "" {
			imageName = filepath.Base(rep.CardPath)
		}
		path, err := o.deps.Reports.Append(ctx, entity.ReportEntry{
			Date:      date,
			Ticker:    rep.Ticker,
			Result:    result,
			ImageName: imageName,
		})
		if err != nil {
			metrics.RecordArtifactFailure("report")
			logger.Warn("report append failed", slog.Any("error", err))
		} else {
			rep.ReportPath = path
		}
	}

	rep.Publish = o.deps.Publisher.Publish(ctx, result.PostText)
}

func (o *Orchestrator) renderCard(ctx context.Context, card entity.Card) (string, error) {
	ctx, span := tracing.StartStage(ctx, "card.render", attribute.String("ticker", card.Ticker))
	path, err := retry.Do(ctx, o.opts.RenderRetry, func(ctx context.Context) (string, error) {
		p, err := o.deps.Cards.RenderCard(ctx, card)
		return p, retry.MarkTransient(err)
	})
	tracing.EndStage(span, err)
	return path, err
}

// SelectTicker returns the topic tag of the first news item, or
// entity.DefaultTicker when there is none.
func SelectTicker(news []entity.ContentItem) string {
	for _, item := range news {
		if item.TopicTag != "" {
			return item.TopicTag
		}
	}
	return entity.DefaultTicker
}
