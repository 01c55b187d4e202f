package analysis_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/resilience/retry"
	"market-xbot/internal/usecase/analysis"
)

/* ───────── スタブ ───────── */

type stubBackend struct {
	replies  []string
	errs     []error
	calls    int
	payloads []string
	systems  []string
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Generate(_ context.Context, system, payload string) (string, error) {
	i := b.calls
	b.calls++
	b.systems = append(b.systems, system)
	b.payloads = append(b.payloads, payload)
	var err error
	if i < len(b.errs) {
		err = b.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(b.replies) {
		return b.replies[i], nil
	}
	return b.replies[len(b.replies)-1], nil
}

func noSleepRetry() retry.Config {
	cfg := retry.AnalysisConfig()
	cfg.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}

const validReply = `{"post_text":"$NVDA 🐂 上昇の可能性","sentiment":"BULLISH","reason":"決算が好調とみられる。"}`

/* ───────── テスト ───────── */

func TestAnalyze_Success(t *testing.T) {
	backend := &stubBackend{replies: []string{validReply}}
	inv := analysis.NewInvoker(backend, logging.Discard(), analysis.WithRetryConfig(noSleepRetry()))

	got, err := inv.Analyze(context.Background(),
		[]entity.ContentItem{newsItem("a2", "NVDA", "X rallies", "")}, nil)

	require.NoError(t, err)
	assert.Equal(t, entity.SentimentBullish, got.Sentiment)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, analysis.SystemPrompt, backend.systems[0])
	assert.Contains(t, backend.payloads[0], "- [NVDA] X rallies")
}

func TestAnalyze_SinglePayloadForAllItems(t *testing.T) {
	backend := &stubBackend{replies: []string{validReply}}
	inv := analysis.NewInvoker(backend, logging.Discard(), analysis.WithRetryConfig(noSleepRetry()))

	_, err := inv.Analyze(context.Background(),
		[]entity.ContentItem{newsItem("n1", "AAPL", "first", ""), newsItem("n2", "TSLA", "second", "")},
		[]entity.ContentItem{forumItem("f1", "stocks", "third", 10)})

	require.NoError(t, err)
	require.Equal(t, 1, backend.calls)
	for _, s := range []string{"first", "second", "third"} {
		assert.Contains(t, backend.payloads[0], s)
	}
}

func TestAnalyze_RetriesTransientBackendErrors(t *testing.T) {
	backend := &stubBackend{
		errs:    []error{&retry.HTTPError{StatusCode: 529, Message: "overloaded"}, nil},
		replies: []string{"", validReply},
	}
	inv := analysis.NewInvoker(backend, logging.Discard(), analysis.WithRetryConfig(noSleepRetry()))

	_, err := inv.Analyze(context.Background(), []entity.ContentItem{newsItem("a", "NVDA", "t", "")}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestAnalyze_BackendUnavailableAfterRetries(t *testing.T) {
	transient := &retry.HTTPError{StatusCode: 503, Message: "down"}
	backend := &stubBackend{errs: []error{transient, transient, transient, transient}, replies: []string{""}}
	inv := analysis.NewInvoker(backend, logging.Discard(), analysis.WithRetryConfig(noSleepRetry()))

	_, err := inv.Analyze(context.Background(), []entity.ContentItem{newsItem("a", "NVDA", "t", "")}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrBackendUnavailable)
	assert.Equal(t, analysis.OutcomeBackendUnavailable, analysis.Classify(err))
	assert.Equal(t, 3, backend.calls)
	var httpErr *retry.HTTPError
	assert.True(t, errors.As(err, &httpErr))
}

func TestAnalyze_PermanentBackendErrorNotRetried(t *testing.T) {
	backend := &stubBackend{errs: []error{&retry.HTTPError{StatusCode: 401, Message: "bad key"}}, replies: []string{""}}
	inv := analysis.NewInvoker(backend, logging.Discard(), analysis.WithRetryConfig(noSleepRetry()))

	_, err := inv.Analyze(context.Background(), []entity.ContentItem{newsItem("a", "NVDA", "t", "")}, nil)

	assert.ErrorIs(t, err, analysis.ErrBackendUnavailable)
	assert.Equal(t, 1, backend.calls)
}

func TestAnalyze_InvalidSentimentIsNotRetried(t *testing.T) {
	backend := &stubBackend{replies: []string{`{"post_text":"p","sentiment":"NEUTRAL","reason":"r"}`}}
	inv := analysis.NewInvoker(backend, logging.Discard(), analysis.WithRetryConfig(noSleepRetry()))

	got, err := inv.Analyze(context.Background(), []entity.ContentItem{newsItem("a", "NVDA", "t", "")}, nil)

	assert.ErrorIs(t, err, analysis.ErrInvalidSentiment)
	assert.Equal(t, entity.AnalysisResult{}, got)
	assert.Equal(t, 1, backend.calls)
}

func TestAnalyze_Truncates(t *testing.T) {
	backend := &stubBackend{replies: []string{`{"post_text":"` + strings.Repeat("z", 400) + `","sentiment":"BEARISH","reason":"r"}`}}
	inv := analysis.NewInvoker(backend, logging.Discard(), analysis.WithRetryConfig(noSleepRetry()))

	got, err := inv.Analyze(context.Background(), nil, []entity.ContentItem{forumItem("f", "wallstreetbets", "t", 1)})

	require.NoError(t, err)
	assert.True(t, got.Truncated)
	assert.Len(t, got.PostText, 280)
}

func TestAnalyze_NothingToAnalyze(t *testing.T) {
	backend := &stubBackend{replies: []string{validReply}}
	inv := analysis.NewInvoker(backend, logging.Discard())

	_, err := inv.Analyze(context.Background(), nil, nil)

	assert.ErrorIs(t, err, analysis.ErrNothingToAnalyze)
	assert.Zero(t, backend.calls)
}

func TestAnalyze_CustomPayloadLimits(t *testing.T) {
	backend := &stubBackend{replies: []string{validReply}}
	inv := analysis.NewInvoker(backend, logging.Discard(),
		analysis.WithRetryConfig(noSleepRetry()),
		analysis.WithPayloadLimits(analysis.PayloadLimits{MaxItemsPerSource: 1}))

	_, err := inv.Analyze(context.Background(),
		[]entity.ContentItem{newsItem("n1", "AAPL", "kept", ""), newsItem("n2", "AAPL", "dropped", "")}, nil)

	require.NoError(t, err)
	assert.Contains(t, backend.payloads[0], "kept")
	assert.NotContains(t, backend.payloads[0], "dropped")
}
