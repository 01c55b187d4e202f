// Package config assembles the application configuration from the
// environment, an optional .env file and an optional YAML sources catalog.
//
// Tunables are fail-open: an invalid value logs a warning and keeps the
// default. Credentials and backend selection are fail-closed: a selected
// backend without its key is a startup error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	pkgconfig "market-xbot/internal/pkg/config"
)

// State backends.
const (
	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
)

// Analyzer types.
const (
	AnalyzerClaude = "claude"
	AnalyzerOpenAI = "openai"
	AnalyzerStatic = "static"
)

// ErrMissingCredential is returned when an enabled integration has no key.
var ErrMissingCredential = errors.New("missing credential")

// StateConfig selects where processed ids are kept.
type StateConfig struct {
	Backend     string
	Path        string
	MaxIDs      int
	DatabaseURL string
}

// ForumAuth holds optional app-only OAuth credentials and an endpoint
// override.
type ForumAuth struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// AnalyzerConfig selects the analysis backend.
type AnalyzerConfig struct {
	Type    string
	APIKey  string
	Model   string
	BaseURL string
}

// PayloadConfig bounds the text sent to the analyzer.
type PayloadConfig struct {
	MaxItems     int
	ExcerptChars int
	MaxChars     int
}

// PublishConfig controls posting to X. The four credentials form one OAuth
// 1.0a user-context set.
type PublishConfig struct {
	Enabled        bool
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
	BaseURL        string
}

// credentialEnv lists the X credential variables in PublishConfig order.
var credentialEnv = []string{"X_API_KEY", "X_API_SECRET", "X_ACCESS_TOKEN", "X_ACCESS_TOKEN_SECRET"}

func (p PublishConfig) credentials() []string {
	return []string{p.ConsumerKey, p.ConsumerSecret, p.AccessToken, p.AccessSecret}
}

// HasCredentials reports whether any X credential is set.
func (p PublishConfig) HasCredentials() bool {
	for _, v := range p.credentials() {
		if v != "" {
			return true
		}
	}
	return false
}

// OutputConfig controls the card image and daily report.
type OutputConfig struct {
	ReportsDir  string
	CardEnabled bool
	CardFont    string
}

// AppConfig is the complete application configuration.
type AppConfig struct {
	State    StateConfig
	Sources  Catalog
	Forum    ForumAuth
	Analyzer AnalyzerConfig
	Payload  PayloadConfig
	Publish  PublishConfig
	Output   OutputConfig
}

// LoadDotEnv loads variables from the given files without overriding ones
// already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the application configuration. metrics may be nil.
func Load(logger *slog.Logger, metrics *pkgconfig.ConfigMetrics) (*AppConfig, error) {
	fallbackApplied := false
	note := func(field, warning string) {
		fallbackApplied = true
		if metrics != nil {
			metrics.RecordValidationError(field)
			metrics.RecordFallback(field)
		}
		logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}
	intVar := func(key, field string, def, lo, hi int) int {
		r := pkgconfig.LoadEnvInt(key, def, func(v int) error { return pkgconfig.ValidateIntRange(v, lo, hi) })
		if r.FallbackApplied {
			note(field, r.Warning)
		}
		return r.Value
	}
	boolVar := func(key, field string, def bool) bool {
		r := pkgconfig.LoadEnvBool(key, def)
		if r.FallbackApplied {
			note(field, r.Warning)
		}
		return r.Value
	}

	cfg := &AppConfig{}

	// Sources: file first, then env overrides.
	cfg.Sources = DefaultCatalog()
	if path := os.Getenv("SOURCES_FILE"); path != "" {
		cat, err := LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		cfg.Sources = cat
	}
	cfg.Sources.Tickers = upper(pkgconfig.LoadEnvStringList("NEWS_TICKERS", cfg.Sources.Tickers))
	cfg.Sources.Subreddits = pkgconfig.LoadEnvStringList("FORUM_SUBREDDITS", cfg.Sources.Subreddits)
	cfg.Sources.ForumLimit = intVar("FORUM_LIMIT", "forum_limit", cfg.Sources.ForumLimit, 1, 100)
	cfg.Sources.FeedURLTemplate = pkgconfig.LoadEnvString("NEWS_FEED_URL_TEMPLATE", cfg.Sources.FeedURLTemplate)

	cfg.Forum = ForumAuth{
		ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		BaseURL:      os.Getenv("REDDIT_BASE_URL"),
	}

	backend := pkgconfig.LoadEnvWithFallback("STATE_BACKEND", StateBackendFile,
		pkgconfig.ValidateOneOf(StateBackendFile, StateBackendPostgres))
	if backend.FallbackApplied {
		return nil, fmt.Errorf("STATE_BACKEND: %s", backend.Warning)
	}
	cfg.State = StateConfig{
		Backend:     strings.ToLower(backend.Value),
		Path:        pkgconfig.LoadEnvString("STATE_PATH", "data/processed_ids.json"),
		MaxIDs:      intVar("STATE_MAX_IDS", "state_max_ids", 0, 0, 10_000_000),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	analyzerType := pkgconfig.LoadEnvWithFallback("ANALYZER_TYPE", AnalyzerClaude,
		pkgconfig.ValidateOneOf(AnalyzerClaude, AnalyzerOpenAI, AnalyzerStatic))
	if analyzerType.FallbackApplied {
		return nil, fmt.Errorf("ANALYZER_TYPE: %s", analyzerType.Warning)
	}
	cfg.Analyzer = AnalyzerConfig{
		Type:    strings.ToLower(analyzerType.Value),
		Model:   os.Getenv("ANALYZER_MODEL"),
		BaseURL: os.Getenv("ANALYZER_BASE_URL"),
	}
	switch cfg.Analyzer.Type {
	case AnalyzerClaude:
		cfg.Analyzer.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case AnalyzerOpenAI:
		cfg.Analyzer.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg.Payload = PayloadConfig{
		MaxItems:     intVar("PAYLOAD_MAX_ITEMS", "payload_max_items", 10, 1, 100),
		ExcerptChars: intVar("PAYLOAD_EXCERPT_CHARS", "payload_excerpt_chars", 200, 1, 2000),
		MaxChars:     intVar("PAYLOAD_MAX_CHARS", "payload_max_chars", 8000, 500, 100_000),
	}

	cfg.Publish = PublishConfig{
		ConsumerKey:    os.Getenv("X_API_KEY"),
		ConsumerSecret: os.Getenv("X_API_SECRET"),
		AccessToken:    os.Getenv("X_ACCESS_TOKEN"),
		AccessSecret:   os.Getenv("X_ACCESS_TOKEN_SECRET"),
		BaseURL:        pkgconfig.LoadEnvString("X_API_BASE_URL", "https://api.x.com"),
	}
	// A partial credential set still enables publishing so Validate reports
	// what is missing instead of silently running dry.
	cfg.Publish.Enabled = boolVar("PUBLISH_ENABLED", "publish_enabled", cfg.Publish.HasCredentials())

	cfg.Output = OutputConfig{
		ReportsDir:  pkgconfig.LoadEnvString("REPORTS_DIR", "reports"),
		CardEnabled: boolVar("CARD_ENABLED", "card_enabled", true),
		CardFont:    os.Getenv("CARD_FONT"),
	}

	if metrics != nil {
		metrics.SetFallbackActive(fallbackApplied)
		metrics.RecordLoadTimestamp()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the fail-closed rules.
func (c *AppConfig) Validate() error {
	var errs []error

	if err := c.Sources.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.State.Backend {
	case StateBackendFile:
		if c.State.Path == "" {
			errs = append(errs, errors.New("STATE_PATH cannot be empty"))
		}
	case StateBackendPostgres:
		if c.State.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: DATABASE_URL is required for the postgres state backend", ErrMissingCredential))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q", c.State.Backend))
	}

	switch c.Analyzer.Type {
	case AnalyzerClaude:
		if c.Analyzer.APIKey == "" {
			errs = append(errs, fmt.Errorf("%w: ANTHROPIC_API_KEY is required when ANALYZER_TYPE=claude", ErrMissingCredential))
		}
	case AnalyzerOpenAI:
		if c.Analyzer.APIKey == "" {
			errs = append(errs, fmt.Errorf("%w: OPENAI_API_KEY is required when ANALYZER_TYPE=openai", ErrMissingCredential))
		}
	case AnalyzerStatic:
	default:
		errs = append(errs, fmt.Errorf("unknown analyzer type %q", c.Analyzer.Type))
	}

	if c.Publish.Enabled {
		for i, v := range c.Publish.credentials() {
			if v == "" {
				errs = append(errs, fmt.Errorf("%w: %s is required when PUBLISH_ENABLED=true", ErrMissingCredential, credentialEnv[i]))
			}
		}
	}
	if (c.Forum.ClientID == "") != (c.Forum.ClientSecret == "") {
		errs = append(errs, errors.New("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET must be set together"))
	}
	if c.Output.ReportsDir == "" {
		errs = append(errs, errors.New("REPORTS_DIR cannot be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
