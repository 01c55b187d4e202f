// Package forum reads subreddit "hot" listings and shapes the posts into
// FORUM content items.
package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/observability/metrics"
	"market-xbot/internal/resilience/circuitbreaker"
	"market-xbot/internal/resilience/retry"
	"market-xbot/internal/utils/text"
)

const (
	// PublicBaseURL serves listings without credentials.
	PublicBaseURL = "https://www.reddit.com"
	// OAuthBaseURL serves listings for app-only OAuth tokens.
	OAuthBaseURL = "https://oauth.reddit.com"
	// DefaultTokenURL issues app-only tokens.
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	defaultUserAgent = "market-xbot/1.0"
	maxListingBytes  = 4 << 20
)

// ErrAllSubredditsFailed is returned when no listing could be read.
var ErrAllSubredditsFailed = errors.New("all subreddit listings failed")

// Config describes which listings to read and how to authenticate.
type Config struct {
	Subreddits []string
	// Limit is the number of hot posts per subreddit (1-100).
	Limit int

	// ClientID and ClientSecret enable app-only OAuth. Without them the
	// public JSON listing is used.
	ClientID     string
	ClientSecret string

	// BaseURL and TokenURL override the endpoints (tests).
	BaseURL  string
	TokenURL string

	UserAgent string

	// RequestsPerSecond throttles listing calls. 0 means 1 per second.
	RequestsPerSecond float64
}

// OAuthEnabled reports whether credentials are configured.
func (c Config) OAuthEnabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// RedditClient implements ingest.SourceConnector for subreddit listings.
type RedditClient struct {
	cfg            Config
	httpClient     *http.Client
	limiter        *rate.Limiter
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	logger         *slog.Logger
}

// NewRedditClient builds a client on top of base. With credentials the
// returned client fetches and refreshes an app-only token on its own.
func NewRedditClient(ctx context.Context, base *http.Client, cfg Config, logger *slog.Logger) *RedditClient {
	if logger == nil {
		logger = logging.Discard()
	}
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Limit <= 0 || cfg.Limit > 100 {
		cfg.Limit = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}

	httpClient := base
	if cfg.OAuthEnabled() {
		if cfg.BaseURL == "" {
			cfg.BaseURL = OAuthBaseURL
		}
		if cfg.TokenURL == "" {
			cfg.TokenURL = DefaultTokenURL
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		// the token source reuses base (timeouts, tracing) for token requests
		httpClient = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	} else if cfg.BaseURL == "" {
		cfg.BaseURL = PublicBaseURL
	}

	rc := retry.ForumFetchConfig().WithLogger(logger)
	rc.OnRetry = metrics.RecordRetry

	return &RedditClient{
		cfg:            cfg,
		httpClient:     httpClient,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		circuitBreaker: circuitbreaker.New(circuitbreaker.ForumConfig(), logger),
		retryConfig:    rc,
		logger:         logger,
	}
}

// WithRetryConfig replaces the retry policy. Tests use it to skip sleeps.
func (c *RedditClient) WithRetryConfig(cfg retry.Config) *RedditClient {
	c.retryConfig = cfg
	return c
}

// Source implements ingest.SourceConnector.
func (c *RedditClient) Source() entity.SourceKind {
	return entity.SourceForum
}

// Fetch reads every subreddit in order. Stickied posts are skipped; a failing
// subreddit is logged and skipped. Fetch fails only when all of them failed.
func (c *RedditClient) Fetch(ctx context.Context) ([]entity.ContentItem, error) {
	var (
		items  []entity.ContentItem
		errs   []error
		failed int
	)

	for _, sub := range c.cfg.Subreddits {
		posts, err := c.fetchListing(ctx, sub)
		if err != nil {
			failed++
			errs = append(errs, fmt.Errorf("r/%s: %w", sub, err))
			c.logger.Warn("subreddit fetch failed",
				slog.String("subreddit", sub),
				slog.String("error", logging.SanitizeError(err)))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, p := range posts {
			if p.Stickied {
				continue
			}
			items = append(items, p.toContentItem(sub))
		}
	}

	if len(c.cfg.Subreddits) > 0 && failed == len(c.cfg.Subreddits) {
		return nil, fmt.Errorf("%w: %w", ErrAllSubredditsFailed, errors.Join(errs...))
	}
	return items, nil
}

func (c *RedditClient) fetchListing(ctx context.Context, sub string) ([]post, error) {
	return retry.Do(ctx, c.retryConfig, func(ctx context.Context) ([]post, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		return circuitbreaker.Run(c.circuitBreaker, func() ([]post, error) {
			return c.doFetch(ctx, sub)
		})
	})
}

// doFetch performs one listing request without retry or circuit breaker.
func (c *RedditClient) doFetch(ctx context.Context, sub string) ([]post, error) {
	endpoint := fmt.Sprintf("%s/r/%s/hot", strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(sub))
	if !c.cfg.OAuthEnabled() {
		endpoint += ".json"
	}
	q := url.Values{"limit": {fmt.Sprint(c.cfg.Limit)}, "raw_json": {"1"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var l listing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxListingBytes)).Decode(&l); err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("decode listing: %w", err))
	}

	posts := make([]post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		posts = append(posts, child.Data)
	}
	return posts, nil
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Selftext  string  `json:"selftext"`
	Score     float64 `json:"score"`
	Permalink string  `json:"permalink"`
	Stickied  bool    `json:"stickied"`
}

func (p post) toContentItem(sub string) entity.ContentItem {
	link := ""
	if p.Permalink != "" {
		link = "https://reddit.com" + p.Permalink
	}
	return entity.ContentItem{
		ID:          strings.TrimSpace(p.ID),
		Source:      entity.SourceForum,
		TopicTag:    sub,
		Title:       text.Squash(p.Title),
		BodyExcerpt: text.TruncateRunes(text.Squash(p.Selftext), entity.MaxExcerptRunes),
		URL:         link,
		RankHint:    entity.Float64Ptr(p.Score),
	}
}
