package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCatalog_OverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
tickers: [AMD, INTC]
feed_url_template: "https://example.com/rss?s=%s"
forum_limit: 50
`)
	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AMD", "INTC"}, cat.Tickers)
	assert.Equal(t, "https://example.com/rss?s=%s", cat.FeedURLTemplate)
	assert.Equal(t, 50, cat.ForumLimit)
	assert.Equal(t, DefaultCatalog().Subreddits, cat.Subreddits)
}

func TestLoadCatalog_EmptyFileKeepsDefaults(t *testing.T) {
	cat, err := LoadCatalog(writeYAML(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), cat)
}

func TestLoadCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "tickerz: [AMD]\n", "parse"},
		{"bad template", "feed_url_template: https://example.com\n", "feed_url_template"},
		{"empty tickers", "tickers: []\n", "ticker"},
		{"limit out of range", "forum_limit: 0\n", "forum_limit"},
		{"not yaml", "tickers: [AMD\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(writeYAML(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read")
}
