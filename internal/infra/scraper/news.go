// Package scraper fetches per-ticker finance headlines from RSS/Atom feeds
// and shapes them into NEWS content items.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/observability/metrics"
	"market-xbot/internal/resilience/circuitbreaker"
	"market-xbot/internal/resilience/retry"
	"market-xbot/internal/utils/text"
)

// DefaultFeedURLTemplate is the per-ticker headline feed. %s is the ticker.
const DefaultFeedURLTemplate = "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US"

const userAgent = "market-xbot/1.0"

// ErrAllFeedsFailed is returned when no ticker feed could be read.
var ErrAllFeedsFailed = errors.New("all news feeds failed")

// NewsConfig lists the feeds to read.
type NewsConfig struct {
	Tickers     []string
	URLTemplate string
}

// NewsFetcher implements ingest.SourceConnector for finance news.
// It reads one feed per ticker; a failing ticker is skipped.
type NewsFetcher struct {
	client         *http.Client
	cfg            NewsConfig
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	logger         *slog.Logger
}

// NewNewsFetcher creates a NewsFetcher with the given HTTP client.
// It automatically configures circuit breaker and retry logic.
func NewNewsFetcher(client *http.Client, cfg NewsConfig, logger *slog.Logger) *NewsFetcher {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultFeedURLTemplate
	}
	rc := retry.FeedFetchConfig().WithLogger(logger)
	rc.OnRetry = metrics.RecordRetry
	return &NewsFetcher{
		client:         client,
		cfg:            cfg,
		circuitBreaker: circuitbreaker.New(circuitbreaker.NewsFeedConfig(), logger),
		retryConfig:    rc,
		logger:         logger,
	}
}

// WithRetryConfig replaces the retry policy. Tests use it to skip sleeps.
func (f *NewsFetcher) WithRetryConfig(cfg retry.Config) *NewsFetcher {
	f.retryConfig = cfg
	return f
}

// Source implements ingest.SourceConnector.
func (f *NewsFetcher) Source() entity.SourceKind {
	return entity.SourceNews
}

// Fetch reads every ticker feed in order. Items are keyed by link (GUID when
// there is no link); an article listed under several tickers is kept once,
// under the first ticker. Fetch fails only when every feed failed.
func (f *NewsFetcher) Fetch(ctx context.Context) ([]entity.ContentItem, error) {
	var (
		items  []entity.ContentItem
		seen   = make(map[string]struct{})
		errs   []error
		failed int
	)

	for _, ticker := range f.cfg.Tickers {
		feedURL := fmt.Sprintf(f.cfg.URLTemplate, ticker)
		entries, err := f.fetchFeed(ctx, feedURL)
		if err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
			f.logger.Warn("news feed fetch failed",
				slog.String("ticker", ticker),
				slog.String("error", logging.SanitizeError(err)))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		added := 0
		for _, it := range entries {
			item := toContentItem(ticker, it)
			if item.ID != "" {
				if _, dup := seen[item.ID]; dup {
					continue
				}
				seen[item.ID] = struct{}{}
			}
			items = append(items, item)
			added++
		}
		f.logger.Debug("news feed fetched", slog.String("ticker", ticker), slog.Int("items", added))
	}

	if len(f.cfg.Tickers) > 0 && failed == len(f.cfg.Tickers) {
		return nil, fmt.Errorf("%w: %w", ErrAllFeedsFailed, errors.Join(errs...))
	}
	return items, nil
}

// fetchFeed retries the feed through the circuit breaker.
func (f *NewsFetcher) fetchFeed(ctx context.Context, feedURL string) ([]*gofeed.Item, error) {
	return retry.Do(ctx, f.retryConfig, func(ctx context.Context) ([]*gofeed.Item, error) {
		items, err := circuitbreaker.Run(f.circuitBreaker, func() ([]*gofeed.Item, error) {
			return f.doFetch(ctx, feedURL)
		})
		if circuitbreaker.IsOpenError(err) {
			f.logger.Warn("news feed circuit breaker open, request rejected",
				slog.String("service", f.circuitBreaker.Name()),
				slog.String("state", f.circuitBreaker.State().String()))
		}
		return items, err
	})
}

// doFetch performs the actual feed fetch without retry or circuit breaker.
func (f *NewsFetcher) doFetch(ctx context.Context, feedURL string) ([]*gofeed.Item, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = userAgent
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &retry.HTTPError{StatusCode: httpErr.StatusCode, Message: httpErr.Status}
		}
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			// empty or cut-off body; the feed host does this under load
			return nil, retry.MarkTransient(err)
		}
		return nil, err
	}
	return feed.Items, nil
}

// toContentItem keys the entry by link, then GUID. An entry with neither
// keeps an empty ID and is rejected by the aggregator.
func toContentItem(ticker string, it *gofeed.Item) entity.ContentItem {
	id := strings.TrimSpace(it.Link)
	if id == "" {
		id = strings.TrimSpace(it.GUID)
	}

	// Content優先、なければDescriptionを使用
	body := it.Content
	if body == "" {
		body = it.Description
	}

	return entity.ContentItem{
		ID:          id,
		Source:      entity.SourceNews,
		TopicTag:    ticker,
		Title:       text.Squash(HTMLToText(it.Title)),
		BodyExcerpt: text.TruncateRunes(HTMLToText(body), entity.MaxExcerptRunes),
		URL:         strings.TrimSpace(it.Link),
	}
}
