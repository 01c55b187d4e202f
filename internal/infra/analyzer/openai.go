package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"market-xbot/internal/observability/logging"
	"market-xbot/internal/resilience/circuitbreaker"
	"market-xbot/internal/resilience/retry"
	"market-xbot/internal/utils/text"
)

// OpenAI implements analysis.Backend using the chat completions API in JSON
// mode.
type OpenAI struct {
	client          *openai.Client
	circuitBreaker  *circuitbreaker.CircuitBreaker
	config          Config
	metricsRecorder MetricsRecorder
	logger          *slog.Logger
}

// NewOpenAI creates an OpenAI backend. httpClient may be nil.
func NewOpenAI(apiKey string, cfg Config, httpClient *http.Client, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = logging.Discard()
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	logger.Info("initialized openai analyzer",
		slog.String("model", cfg.Model),
		slog.Int("max_tokens", cfg.MaxTokens))

	return &OpenAI{
		client:          openai.NewClientWithConfig(clientCfg),
		circuitBreaker:  circuitbreaker.New(circuitbreaker.AnalysisConfig("openai-api"), logger),
		config:          cfg,
		metricsRecorder: NewPrometheusMetrics(),
		logger:          logger,
	}
}

// WithMetricsRecorder replaces the Prometheus recorder.
func (o *OpenAI) WithMetricsRecorder(m MetricsRecorder) *OpenAI {
	o.metricsRecorder = m
	return o
}

// Name implements analysis.Backend.
func (o *OpenAI) Name() string { return TypeOpenAI }

// Generate implements analysis.Backend.
func (o *OpenAI) Generate(ctx context.Context, system, payload string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	out, err := circuitbreaker.Run(o.circuitBreaker, func() (string, error) {
		return o.doGenerate(ctx, system, payload)
	})
	if circuitbreaker.IsOpenError(err) {
		o.logger.Warn("openai api circuit breaker open, request rejected",
			slog.String("service", o.circuitBreaker.Name()),
			slog.String("state", o.circuitBreaker.State().String()))
		return "", fmt.Errorf("openai api unavailable: %w", err)
	}
	return out, err
}

// doGenerate performs the actual API call without circuit breaker.
func (o *OpenAI) doGenerate(ctx context.Context, system, payload string) (string, error) {
	requestID := uuid.New().String()
	start := time.Now()

	o.logger.DebugContext(ctx, "sending openai request",
		slog.String("request_id", requestID),
		slog.Int("payload_runes", text.CountRunes(payload)))

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.config.Model,
		MaxTokens:   o.config.MaxTokens,
		Temperature: float32(o.config.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: payload},
		},
	})
	duration := time.Since(start)

	if err != nil {
		o.metricsRecorder.RecordRequest(TypeOpenAI, "error", duration)
		o.logger.ErrorContext(ctx, "openai request failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", logging.SanitizeError(err)))
		return "", classifyOpenAIError(err)
	}
	o.metricsRecorder.RecordRequest(TypeOpenAI, "success", duration)
	o.metricsRecorder.RecordTokens(TypeOpenAI, "input", int64(resp.Usage.PromptTokens))
	o.metricsRecorder.RecordTokens(TypeOpenAI, "output", int64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai api returned empty response")
	}

	o.logger.InfoContext(ctx, "openai request completed",
		slog.String("request_id", requestID),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
		slog.Duration("duration", duration))
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError exposes the HTTP status to the retry policy.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai api error: %w", &retry.HTTPError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("openai api error: %w", &retry.HTTPError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    http.StatusText(reqErr.HTTPStatusCode),
		})
	}
	return fmt.Errorf("openai api error: %w", err)
}
