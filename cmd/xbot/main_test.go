package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>%[1]s headlines</title>
<item><title>%[1]s rallies on earnings</title><link>https://news.example.com/%[1]s/1</link>
<description>&lt;p&gt;Shares of %[1]s rose sharply.&lt;/p&gt;</description></item>
</channel></rss>`

const listingJSON = `{"kind":"Listing","data":{"children":[
{"kind":"t3","data":{"id":"p1","title":"Daily discussion","selftext":"","score":10,"permalink":"/r/stocks/comments/p1/","stickied":true}},
{"kind":"t3","data":{"id":"p2","title":"Is it time to buy?","selftext":"thoughts","score":321,"permalink":"/r/stocks/comments/p2/","stickied":false}}
]}}`

type cliEnv struct {
	dir       string
	statePath string
	reports   string
}

// setupCLIEnv points every source at local test servers and runs with the
// static analyzer and publication disabled.
func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprintf(w, feedXML, r.URL.Query().Get("s"))
	})
	mux.HandleFunc("/r/stocks/hot.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listingJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &cliEnv{
		dir:       dir,
		statePath: filepath.Join(dir, "data", "processed_ids.json"),
		reports:   filepath.Join(dir, "reports"),
	}

	for _, k := range []string{
		"SOURCES_FILE", "REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET", "DATABASE_URL",
		"ANALYZER_MODEL", "ANALYZER_BASE_URL", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"PAYLOAD_MAX_ITEMS", "PAYLOAD_EXCERPT_CHARS", "PAYLOAD_MAX_CHARS",
		"PUBLISH_ENABLED", "X_API_KEY", "X_API_SECRET", "X_ACCESS_TOKEN", "X_ACCESS_TOKEN_SECRET",
		"X_API_BASE_URL", "CARD_FONT", "STATE_MAX_IDS",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ANALYZER_TYPE", "static")
	t.Setenv("STATE_BACKEND", "file")
	t.Setenv("STATE_PATH", env.statePath)
	t.Setenv("REPORTS_DIR", env.reports)
	t.Setenv("CARD_ENABLED", "true")
	t.Setenv("NEWS_TICKERS", "NVDA,AAPL")
	t.Setenv("NEWS_FEED_URL_TEMPLATE", srv.URL+"/rss?s=%s")
	t.Setenv("FORUM_SUBREDDITS", "stocks")
	t.Setenv("FORUM_LIMIT", "10")
	t.Setenv("REDDIT_BASE_URL", srv.URL)
	return env
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

/* ───────── テスト ───────── */

func TestRunCommand_CompletesThenFindsNothingNew(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := execute(t, "run")
	require.NoError(t, err, out)
	assert.Contains(t, out, ": completed in")
	assert.Contains(t, out, "new: news=2 forum=1")
	assert.Contains(t, out, "$NVDA")
	assert.Contains(t, out, "publish: skipped")
	assert.Contains(t, out, "state: +3 ids, 3 total")

	state, err := os.ReadFile(env.statePath)
	require.NoError(t, err)
	assert.Contains(t, string(state), "https://news.example.com/NVDA/1")
	assert.Contains(t, string(state), "p2")
	assert.NotContains(t, string(state), `"p1"`)

	cards, err := filepath.Glob(filepath.Join(env.reports, "*_NVDA.png"))
	require.NoError(t, err)
	assert.Len(t, cards, 1)
	reports, err := filepath.Glob(filepath.Join(env.reports, "*.md"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	report, err := os.ReadFile(reports[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(report), "# Daily US Stock Report"))

	out, err = execute(t, "run")
	require.NoError(t, err, out)
	assert.Contains(t, out, ": no_new_items in")
	assert.NotContains(t, out, "state:")
}

func TestRunCommand_CorruptStateFails(t *testing.T) {
	env := setupCLIEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(env.statePath), 0o755))
	require.NoError(t, os.WriteFile(env.statePath, []byte("{not json"), 0o600))

	out, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, out, ": failed in")

	data, readErr := os.ReadFile(env.statePath)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestRunCommand_MissingCredentialFails(t *testing.T) {
	setupCLIEnv(t)
	t.Setenv("ANALYZER_TYPE", "claude")

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestRunCommand_DryRunOverridesPublish(t *testing.T) {
	setupCLIEnv(t)
	t.Setenv("X_API_KEY", "ck")
	t.Setenv("X_API_SECRET", "cs")
	t.Setenv("X_ACCESS_TOKEN", "at")
	t.Setenv("X_ACCESS_TOKEN_SECRET", "as")
	t.Setenv("X_API_BASE_URL", "http://127.0.0.1:1")

	out, err := execute(t, "run", "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "publish: skipped [dry run]")
}

func TestStateCommand(t *testing.T) {
	setupCLIEnv(t)

	out, err := execute(t, "state")
	require.NoError(t, err)
	assert.Contains(t, out, "processed ids: 0")

	_, err = execute(t, "run")
	require.NoError(t, err)

	out, err = execute(t, "state", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: file")
	assert.Contains(t, out, "processed ids: 3")
	assert.Contains(t, out, "most recent 1:\n  p2\n")
}

func TestSourcesCommand_ListsCatalog(t *testing.T) {
	setupCLIEnv(t)

	out, err := execute(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "tickers: [NVDA AAPL]")
	assert.Contains(t, out, "subreddits: [stocks] (limit 10)")
}

func TestSourcesCommand_CheckReportsEachSource(t *testing.T) {
	setupCLIEnv(t)
	t.Setenv("FORUM_SUBREDDITS", "stocks,missing")

	out, err := execute(t, "sources", "--check")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5, out)
	assert.Regexp(t, `^SOURCE\s+NAME\s+STATUS`, lines[0])
	assert.Regexp(t, `^NEWS\s+NVDA\s+OK\s+1\s`, lines[1])
	assert.Regexp(t, `^NEWS\s+AAPL\s+OK\s+1\s`, lines[2])
	assert.Regexp(t, `^FORUM\s+r/stocks\s+OK\s`, lines[3])
	assert.Regexp(t, `^FORUM\s+r/missing\s+ERROR\s+0\s.*404`, lines[4])
}
