package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog lists what the pipeline reads. It has built-in defaults and may be
// replaced field by field from a YAML file:
//
//	tickers: [NVDA, AAPL]
//	feed_url_template: "https://example.com/rss?s=%s"
//	subreddits: [stocks]
//	forum_limit: 25
type Catalog struct {
	Tickers         []string `yaml:"tickers"`
	FeedURLTemplate string   `yaml:"feed_url_template"`
	Subreddits      []string `yaml:"subreddits"`
	ForumLimit      int      `yaml:"forum_limit"`
}

// DefaultCatalog returns the built-in sources.
func DefaultCatalog() Catalog {
	return Catalog{
		Tickers:         []string{"NVDA", "AAPL", "TSLA", "MSFT", "AMZN", "GOOG", "META"},
		FeedURLTemplate: "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US",
		Subreddits:      []string{"wallstreetbets", "stocks", "investing"},
		ForumLimit:      10,
	}
}

// LoadCatalog reads path over the defaults. Keys absent from the file keep
// their default; unknown keys are an error.
// The path parameter is expected to come from a trusted source (env or flag).
func LoadCatalog(path string) (Catalog, error) {
	cat := DefaultCatalog()

	// #nosec G304 -- path comes from SOURCES_FILE, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read sources file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("failed to parse sources file: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("sources file validation failed: %w", err)
	}
	return cat, nil
}

// Validate checks the catalog and reports every problem at once.
func (c Catalog) Validate() error {
	var errs []error
	if len(c.Tickers) == 0 {
		errs = append(errs, errors.New("at least one ticker is required"))
	}
	for _, t := range c.Tickers {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, errors.New("tickers must not be blank"))
			break
		}
	}
	if strings.Count(c.FeedURLTemplate, "%s") != 1 {
		errs = append(errs, fmt.Errorf("feed_url_template must contain exactly one %%s, got %q", c.FeedURLTemplate))
	}
	if len(c.Subreddits) == 0 {
		errs = append(errs, errors.New("at least one subreddit is required"))
	}
	if c.ForumLimit < 1 || c.ForumLimit > 100 {
		errs = append(errs, fmt.Errorf("forum_limit must be within 1-100, got %d", c.ForumLimit))
	}
	return errors.Join(errs...)
}
