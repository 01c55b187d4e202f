package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"market-xbot/internal/observability/logging"
	"market-xbot/internal/resilience/circuitbreaker"
	"market-xbot/internal/resilience/retry"
	"market-xbot/internal/utils/text"
)

// Claude implements analysis.Backend using Anthropic's Messages API.
type Claude struct {
	client          anthropic.Client
	circuitBreaker  *circuitbreaker.CircuitBreaker
	config          Config
	metricsRecorder MetricsRecorder
	logger          *slog.Logger
}

// NewClaude creates a Claude backend. httpClient may be nil. The SDK's own
// retries are disabled so that only the caller's policy applies.
func NewClaude(apiKey string, cfg Config, httpClient *http.Client, logger *slog.Logger) *Claude {
	if logger == nil {
		logger = logging.Discard()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	logger.Info("initialized claude analyzer",
		slog.String("model", cfg.Model),
		slog.Int("max_tokens", cfg.MaxTokens))

	return &Claude{
		client:          anthropic.NewClient(opts...),
		circuitBreaker:  circuitbreaker.New(circuitbreaker.AnalysisConfig("claude-api"), logger),
		config:          cfg,
		metricsRecorder: NewPrometheusMetrics(),
		logger:          logger,
	}
}

// WithMetricsRecorder replaces the Prometheus recorder.
func (c *Claude) WithMetricsRecorder(m MetricsRecorder) *Claude {
	c.metricsRecorder = m
	return c
}

// Name implements analysis.Backend.
func (c *Claude) Name() string { return TypeClaude }

// Generate implements analysis.Backend.
func (c *Claude) Generate(ctx context.Context, system, payload string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	out, err := circuitbreaker.Run(c.circuitBreaker, func() (string, error) {
		return c.doGenerate(ctx, system, payload)
	})
	if circuitbreaker.IsOpenError(err) {
		c.logger.Warn("claude api circuit breaker open, request rejected",
			slog.String("service", c.circuitBreaker.Name()),
			slog.String("state", c.circuitBreaker.State().String()))
		return "", fmt.Errorf("claude api unavailable: %w", err)
	}
	return out, err
}

// doGenerate performs the actual API call without circuit breaker.
func (c *Claude) doGenerate(ctx context.Context, system, payload string) (string, error) {
	requestID := uuid.New().String()
	start := time.Now()

	c.logger.DebugContext(ctx, "sending claude request",
		slog.String("request_id", requestID),
		slog.Int("payload_runes", text.CountRunes(payload)))

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.config.Model),
		MaxTokens:   int64(c.config.MaxTokens),
		Temperature: anthropic.Float(c.config.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(payload)),
		},
	})
	duration := time.Since(start)

	if err != nil {
		c.metricsRecorder.RecordRequest(TypeClaude, "error", duration)
		c.logger.ErrorContext(ctx, "claude request failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", logging.SanitizeError(err)))
		return "", classifyClaudeError(err)
	}
	c.metricsRecorder.RecordRequest(TypeClaude, "success", duration)
	c.metricsRecorder.RecordTokens(TypeClaude, "input", message.Usage.InputTokens)
	c.metricsRecorder.RecordTokens(TypeClaude, "output", message.Usage.OutputTokens)

	var b strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("claude api returned no text content")
	}

	c.logger.InfoContext(ctx, "claude request completed",
		slog.String("request_id", requestID),
		slog.String("stop_reason", string(message.StopReason)),
		slog.Duration("duration", duration))
	return b.String(), nil
}

// classifyClaudeError exposes the HTTP status to the retry policy.
func classifyClaudeError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("claude api error: %w", &retry.HTTPError{
			StatusCode: apiErr.StatusCode,
			Message:    http.StatusText(apiErr.StatusCode),
		})
	}
	return fmt.Errorf("claude api error: %w", err)
}
