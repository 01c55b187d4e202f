package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-xbot/internal/observability/logging"
	pkgconfig "market-xbot/internal/pkg/config"
)

var envKeys = []string{
	"SOURCES_FILE", "NEWS_TICKERS", "FORUM_SUBREDDITS", "FORUM_LIMIT", "NEWS_FEED_URL_TEMPLATE",
	"REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET", "REDDIT_BASE_URL",
	"STATE_BACKEND", "STATE_PATH", "STATE_MAX_IDS", "DATABASE_URL",
	"ANALYZER_TYPE", "ANALYZER_MODEL", "ANALYZER_BASE_URL", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
	"PAYLOAD_MAX_ITEMS", "PAYLOAD_EXCERPT_CHARS", "PAYLOAD_MAX_CHARS",
	"PUBLISH_ENABLED", "X_API_KEY", "X_API_SECRET", "X_ACCESS_TOKEN", "X_ACCESS_TOKEN_SECRET", "X_API_BASE_URL",
	"REPORTS_DIR", "CARD_ENABLED", "CARD_FONT",
}

// clearEnv blanks every variable Load reads; blank is treated as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

/* ───────── テスト ───────── */

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load(logging.Discard(), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultCatalog(), cfg.Sources)
	assert.Equal(t, StateConfig{Backend: StateBackendFile, Path: "data/processed_ids.json"}, cfg.State)
	assert.Equal(t, AnalyzerConfig{Type: AnalyzerClaude, APIKey: "sk-ant"}, cfg.Analyzer)
	assert.Equal(t, PayloadConfig{MaxItems: 10, ExcerptChars: 200, MaxChars: 8000}, cfg.Payload)
	assert.False(t, cfg.Publish.Enabled, "publishing defaults off without a token")
	assert.Equal(t, "https://api.x.com", cfg.Publish.BaseURL)
	assert.Equal(t, OutputConfig{ReportsDir: "reports", CardEnabled: true}, cfg.Output)
}

func setXCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("X_API_KEY", "ck")
	t.Setenv("X_API_SECRET", "cs")
	t.Setenv("X_ACCESS_TOKEN", "at")
	t.Setenv("X_ACCESS_TOKEN_SECRET", "as")
}

func TestLoad_PublishDefaultsOnWithCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANALYZER_TYPE", "static")
	setXCredentials(t)

	cfg, err := Load(logging.Discard(), nil)
	require.NoError(t, err)
	assert.True(t, cfg.Publish.Enabled)
	assert.Equal(t, PublishConfig{
		Enabled:        true,
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		AccessToken:    "at",
		AccessSecret:   "as",
		BaseURL:        "https://api.x.com",
	}, cfg.Publish)

	t.Setenv("PUBLISH_ENABLED", "false")
	cfg, err = Load(logging.Discard(), nil)
	require.NoError(t, err)
	assert.False(t, cfg.Publish.Enabled)
}

func TestLoad_FailClosedCredentials(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"claude without key", map[string]string{"ANALYZER_TYPE": "claude"}},
		{"openai without key", map[string]string{"ANALYZER_TYPE": "openai", "ANTHROPIC_API_KEY": "unused"}},
		{"publish without credentials", map[string]string{"ANALYZER_TYPE": "static", "PUBLISH_ENABLED": "true"}},
		{"publish with access token only", map[string]string{"ANALYZER_TYPE": "static", "X_ACCESS_TOKEN": "at"}},
		{"publish without token secret", map[string]string{
			"ANALYZER_TYPE": "static", "X_API_KEY": "ck", "X_API_SECRET": "cs", "X_ACCESS_TOKEN": "at",
		}},
		{"postgres without url", map[string]string{"ANALYZER_TYPE": "static", "STATE_BACKEND": "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(logging.Discard(), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingCredential)
		})
	}
}

func TestLoad_PartialXCredentialsNameMissingKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANALYZER_TYPE", "static")
	t.Setenv("X_ACCESS_TOKEN", "at")

	_, err := Load(logging.Discard(), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "X_API_KEY")
	assert.ErrorContains(t, err, "X_API_SECRET")
	assert.ErrorContains(t, err, "X_ACCESS_TOKEN_SECRET")
	assert.NotContains(t, err.Error(), "X_ACCESS_TOKEN is required")
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANALYZER_TYPE", "gemini")
	_, err := Load(logging.Discard(), nil)
	assert.ErrorContains(t, err, "ANALYZER_TYPE")

	clearEnv(t)
	t.Setenv("ANALYZER_TYPE", "static")
	t.Setenv("STATE_BACKEND", "redis")
	_, err = Load(logging.Discard(), nil)
	assert.ErrorContains(t, err, "STATE_BACKEND")
}

func TestLoad_HalfConfiguredRedditCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANALYZER_TYPE", "static")
	t.Setenv("REDDIT_CLIENT_ID", "id")

	_, err := Load(logging.Discard(), nil)
	assert.ErrorContains(t, err, "REDDIT_CLIENT_SECRET")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANALYZER_TYPE", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-oa")
	t.Setenv("ANALYZER_MODEL", "gpt-test")
	t.Setenv("NEWS_TICKERS", " nvda, ,amd ")
	t.Setenv("FORUM_SUBREDDITS", "stocks")
	t.Setenv("FORUM_LIMIT", "25")
	t.Setenv("STATE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/xbot")
	t.Setenv("STATE_MAX_IDS", "5000")
	t.Setenv("CARD_ENABLED", "false")

	cfg, err := Load(logging.Discard(), nil)
	require.NoError(t, err)

	assert.Equal(t, AnalyzerConfig{Type: AnalyzerOpenAI, APIKey: "sk-oa", Model: "gpt-test"}, cfg.Analyzer)
	assert.Equal(t, []string{"NVDA", "AMD"}, cfg.Sources.Tickers)
	assert.Equal(t, []string{"stocks"}, cfg.Sources.Subreddits)
	assert.Equal(t, 25, cfg.Sources.ForumLimit)
	assert.Equal(t, StateBackendPostgres, cfg.State.Backend)
	assert.Equal(t, 5000, cfg.State.MaxIDs)
	assert.False(t, cfg.Output.CardEnabled)
}

func TestLoad_InvalidTunablesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANALYZER_TYPE", "static")
	t.Setenv("FORUM_LIMIT", "500")
	t.Setenv("PAYLOAD_MAX_ITEMS", "abc")

	reg := prometheus.NewRegistry()
	m := pkgconfig.NewConfigMetrics(reg, "xbot")

	cfg, err := Load(logging.Discard(), m)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Sources.ForumLimit)
	assert.Equal(t, 10, cfg.Payload.MaxItems)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("forum_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("payload_max_items")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackActive))
}

func TestLoad_SourcesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tickers: [AMD]\nsubreddits: [options]\n"), 0o600))
	t.Setenv("ANALYZER_TYPE", "static")
	t.Setenv("SOURCES_FILE", path)

	cfg, err := Load(logging.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AMD"}, cfg.Sources.Tickers)
	assert.Equal(t, []string{"options"}, cfg.Sources.Subreddits)
	assert.Equal(t, DefaultCatalog().FeedURLTemplate, cfg.Sources.FeedURLTemplate)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ANALYZER_TYPE=static\nREPORTS_DIR=out\n"), 0o600))
	t.Setenv("REPORTS_DIR", "")
	require.NoError(t, os.Unsetenv("REPORTS_DIR"))
	require.NoError(t, os.Unsetenv("ANALYZER_TYPE"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "out", os.Getenv("REPORTS_DIR"))
	assert.Equal(t, "static", os.Getenv("ANALYZER_TYPE"))
}
