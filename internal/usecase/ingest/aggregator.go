package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"market-xbot/internal/domain/dedup"
	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/metrics"
	"market-xbot/internal/observability/tracing"
)

// SourceConnector fetches the current batch of one source.
// Implementations apply their own retry policy; an error means the whole
// source produced nothing usable this run.
type SourceConnector interface {
	Source() entity.SourceKind
	Fetch(ctx context.Context) ([]entity.ContentItem, error)
}

// SourceFailure records a connector that failed this run.
type SourceFailure struct {
	Source entity.SourceKind
	Err    error
}

// Aggregation is the ingestion result of one run.
type Aggregation struct {
	// News and Forum hold only items whose id was not in the processed set,
	// in connector order.
	News  []entity.ContentItem
	Forum []entity.ContentItem

	Duplicates int
	Invalid    int
	Failures   []SourceFailure
}

// Empty reports whether no new item was found. The pipeline stops early on it.
func (a Aggregation) Empty() bool {
	return len(a.News) == 0 && len(a.Forum) == 0
}

// New returns all new items, NEWS first.
func (a Aggregation) New() []entity.ContentItem {
	out := make([]entity.ContentItem, 0, len(a.News)+len(a.Forum))
	out = append(out, a.News...)
	return append(out, a.Forum...)
}

// NewIDs returns the ids of all new items, NEWS first.
func (a Aggregation) NewIDs() []string {
	items := a.New()
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// Aggregator runs the connectors in source order.
type Aggregator struct {
	connectors []SourceConnector
	logger     *slog.Logger
}

// NewAggregator orders connectors NEWS before FORUM. Connectors of the same
// kind keep their relative order.
func NewAggregator(logger *slog.Logger, connectors ...SourceConnector) *Aggregator {
	ordered := slices.Clone(connectors)
	slices.SortStableFunc(ordered, func(a, b SourceConnector) int {
		return slices.Index(entity.SourceOrder, a.Source()) - slices.Index(entity.SourceOrder, b.Source())
	})
	return &Aggregator{connectors: ordered, logger: logger}
}

// Aggregate fetches every source and partitions the items against processed.
// It never fails: a failed source counts as empty and is listed in Failures.
// processed is read only.
func (a *Aggregator) Aggregate(ctx context.Context, processed *entity.ProcessedIdSet) Aggregation {
	var agg Aggregation

	for _, conn := range a.connectors {
		kind := conn.Source()
		items, err := a.fetch(ctx, conn)
		if err != nil {
			agg.Failures = append(agg.Failures, SourceFailure{Source: kind, Err: err})
			metrics.RecordSourceFailure(kind.String())
			a.logger.Warn("source fetch failed, continuing without it",
				slog.String("source", kind.String()),
				slog.Any("error", err))
			continue
		}

		valid := make([]entity.ContentItem, 0, len(items))
		invalid := 0
		for _, item := range items {
			if item.Source == "" {
				item.Source = kind
			}
			if err := item.Validate(); err != nil {
				invalid++
				a.logger.Warn("dropping invalid item",
					slog.String("source", kind.String()),
					slog.String("title", item.Title),
					slog.Any("error", err))
				continue
			}
			valid = append(valid, item)
		}

		fresh, seen := dedup.Partition(valid, processed)
		switch kind {
		case entity.SourceNews:
			agg.News = append(agg.News, fresh...)
		case entity.SourceForum:
			agg.Forum = append(agg.Forum, fresh...)
		}
		agg.Duplicates += len(seen)
		agg.Invalid += invalid

		metrics.RecordIngested(kind.String(), "new", len(fresh))
		metrics.RecordIngested(kind.String(), "duplicate", len(seen))
		metrics.RecordIngested(kind.String(), "invalid", invalid)

		a.logger.Info("source ingested",
			slog.String("source", kind.String()),
			slog.Int("fetched", len(items)),
			slog.Int("new", len(fresh)),
			slog.Int("duplicates", len(seen)),
			slog.Int("invalid", invalid))
	}

	return agg
}

// fetch calls one connector, turning a panic into an error.
func (a *Aggregator) fetch(ctx context.Context, conn SourceConnector) (items []entity.ContentItem, err error) {
	start := time.Now()
	ctx, span := tracing.StartStage(ctx, "ingest.fetch",
		attribute.String("source", conn.Source().String()))
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("%w: %s: %v", ErrConnectorPanic, conn.Source(), r)
		}
		span.SetAttributes(attribute.Int("items", len(items)))
		tracing.EndStage(span, err)
		a.logger.Debug("source fetch finished",
			slog.String("source", conn.Source().String()),
			slog.Duration("duration", time.Since(start)))
	}()

	items, err = conn.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceFailed, conn.Source(), err)
	}
	return items, nil
}
