// Package publisher posts generated text to the X API v2.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/resilience/circuitbreaker"
)

// DefaultBaseURL is the X API endpoint.
const DefaultBaseURL = "https://api.x.com"

// XConfig contains configuration for the X client.
//
// Requests are signed with OAuth 1.0a user context. Unlike OAuth 2.0 user
// tokens these credentials do not expire, so a long-running scheduler keeps
// posting without a refresh flow.
type XConfig struct {
	// ConsumerKey and ConsumerSecret identify the app (API key and secret).
	ConsumerKey    string
	ConsumerSecret string

	// AccessToken and AccessSecret identify the posting account.
	AccessToken  string
	AccessSecret string

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// APIError is a non-2xx response from the X API.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("x api error (status %d): %s", e.StatusCode, msg)
}

// Denied reports whether the status means the account lacks permission or
// quota to post (401, 402, 403).
func (e *APIError) Denied() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return true
	}
	return false
}

// Unwrap lets errors.Is match entity.ErrPublishDenied for denied statuses.
func (e *APIError) Unwrap() error {
	if e.Denied() {
		return entity.ErrPublishDenied
	}
	return nil
}

type createTweetRequest struct {
	Text string `json:"text"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type problemResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// XClient implements publish.Publisher.
type XClient struct {
	config         XConfig
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *slog.Logger
}

// NewXClient creates an XClient. Requests are signed by an oauth1 transport
// layered over base (which may be nil).
func NewXClient(ctx context.Context, base *http.Client, cfg XConfig, logger *slog.Logger) *XClient {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, base)
	}
	client := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret).
		Client(ctx, oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret))
	client.Timeout = cfg.Timeout

	return &XClient{
		config:         cfg,
		httpClient:     client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.PublishConfig(), logger),
		logger:         logger,
	}
}

// Publish posts text as a single tweet and returns its id. It makes exactly
// one request; denial statuses wrap entity.ErrPublishDenied.
func (x *XClient) Publish(ctx context.Context, text string) (string, error) {
	id, err := circuitbreaker.Run(x.circuitBreaker, func() (string, error) {
		return x.doPublish(ctx, text)
	})
	if circuitbreaker.IsOpenError(err) {
		x.logger.Warn("x api circuit breaker open, request rejected",
			slog.String("service", x.circuitBreaker.Name()))
		return "", fmt.Errorf("x api unavailable: %w", err)
	}
	return id, err
}

func (x *XClient) doPublish(ctx context.Context, text string) (string, error) {
	requestID := uuid.New().String()

	body, err := json.Marshal(createTweetRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal tweet: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.config.BaseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var problem problemResponse
		if json.Unmarshal(respBody, &problem) == nil {
			apiErr.Title = problem.Title
			apiErr.Detail = problem.Detail
		}
		x.logger.DebugContext(ctx, "x api rejected tweet",
			slog.String("request_id", requestID),
			slog.Int("status", resp.StatusCode))
		return "", apiErr
	}

	var created createTweetResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("decode tweet response: %w", err)
	}
	if created.Data.ID == "" {
		return "", errors.New("x api returned no tweet id")
	}

	x.logger.DebugContext(ctx, "x api accepted tweet",
		slog.String("request_id", requestID),
		slog.String("post_id", created.Data.ID))
	return created.Data.ID, nil
}
