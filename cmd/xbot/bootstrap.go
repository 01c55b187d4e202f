package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"market-xbot/internal/config"
	pgRepo "market-xbot/internal/infra/adapter/persistence/postgres"
	"market-xbot/internal/infra/analyzer"
	"market-xbot/internal/infra/db"
	"market-xbot/internal/infra/forum"
	"market-xbot/internal/infra/publisher"
	"market-xbot/internal/infra/render"
	"market-xbot/internal/infra/report"
	"market-xbot/internal/infra/scraper"
	"market-xbot/internal/infra/state"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/observability/tracing"
	"market-xbot/internal/repository"
	"market-xbot/internal/usecase/analysis"
	"market-xbot/internal/usecase/ingest"
	"market-xbot/internal/usecase/pipeline"
	"market-xbot/internal/usecase/publish"
)

// createHTTPClient creates an HTTP client with timeouts, connection pooling
// and a tracing transport. TLS 1.2+ is enforced.
func createHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: tracing.NewTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		}),
	}
}

// openStateStore returns the configured processed id store and a cleanup
// function.
func openStateStore(ctx context.Context, cfg config.StateConfig, logger *slog.Logger) (repository.ProcessedIDRepository, func(), error) {
	switch cfg.Backend {
	case config.StateBackendPostgres:
		database, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.MigrateUp(ctx, database); err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("migrate state schema: %w", err)
		}
		return pgRepo.NewProcessedIDRepo(database, logger), closeDB(database, logger), nil
	default:
		return state.NewJSONFileStore(cfg.Path, logger), func() {}, nil
	}
}

func closeDB(database *sql.DB, logger *slog.Logger) func() {
	return func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}
}

// createBackend creates the analysis backend selected by ANALYZER_TYPE.
func createBackend(cfg config.AnalyzerConfig, client *http.Client, logger *slog.Logger) (analysis.Backend, error) {
	switch cfg.Type {
	case config.AnalyzerClaude:
		ac := analyzer.DefaultClaudeConfig()
		applyAnalyzerOverrides(&ac, cfg)
		if err := ac.Validate(); err != nil {
			return nil, fmt.Errorf("claude analyzer config: %w", err)
		}
		logger.Info("Using Claude API for analysis", slog.String("model", ac.Model))
		return analyzer.NewClaude(cfg.APIKey, ac, client, logger), nil
	case config.AnalyzerOpenAI:
		ac := analyzer.DefaultOpenAIConfig()
		applyAnalyzerOverrides(&ac, cfg)
		if err := ac.Validate(); err != nil {
			return nil, fmt.Errorf("openai analyzer config: %w", err)
		}
		logger.Info("Using OpenAI API for analysis", slog.String("model", ac.Model))
		return analyzer.NewOpenAI(cfg.APIKey, ac, client, logger), nil
	case config.AnalyzerStatic:
		logger.Warn("Using static analyzer, posts are placeholders")
		return analyzer.NewStatic(""), nil
	default:
		return nil, fmt.Errorf("invalid analyzer type %q", cfg.Type)
	}
}

func applyAnalyzerOverrides(ac *analyzer.Config, cfg config.AnalyzerConfig) {
	if cfg.Model != "" {
		ac.Model = cfg.Model
	}
	if cfg.BaseURL != "" {
		ac.BaseURL = cfg.BaseURL
	}
}

// createPublishGate returns a gate around the X client, or a dry-run gate
// when publication is disabled.
func createPublishGate(ctx context.Context, cfg config.PublishConfig, client *http.Client, dryRun bool, logger *slog.Logger) *publish.Gate {
	if dryRun || !cfg.Enabled {
		logger.Info("publication disabled, running dry")
		return publish.NewGate(nil, logger)
	}
	x := publisher.NewXClient(ctx, client, publisher.XConfig{
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		AccessToken:    cfg.AccessToken,
		AccessSecret:   cfg.AccessSecret,
		BaseURL:        cfg.BaseURL,
	}, logger)
	logger.Info("publication enabled", slog.String("endpoint", cfg.BaseURL))
	return publish.NewGate(x, logger)
}

// buildPipeline wires every component of a run. The cleanup function must be
// called once the orchestrator is no longer used.
func buildPipeline(ctx context.Context, cfg *config.AppConfig, dryRun bool, logger *slog.Logger) (*pipeline.Orchestrator, func(), error) {
	client := createHTTPClient(30 * time.Second)

	store, cleanup, err := openStateStore(ctx, cfg.State, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}

	news := scraper.NewNewsFetcher(client, scraper.NewsConfig{
		Tickers:     cfg.Sources.Tickers,
		URLTemplate: cfg.Sources.FeedURLTemplate,
	}, logging.WithComponent(logger, "news"))
	reddit := forum.NewRedditClient(ctx, client, forum.Config{
		Subreddits:   cfg.Sources.Subreddits,
		Limit:        cfg.Sources.ForumLimit,
		ClientID:     cfg.Forum.ClientID,
		ClientSecret: cfg.Forum.ClientSecret,
		BaseURL:      cfg.Forum.BaseURL,
	}, logging.WithComponent(logger, "forum"))

	// analysis requests carry their own deadline and may outlast client
	backend, err := createBackend(cfg.Analyzer, createHTTPClient(2*time.Minute), logging.WithComponent(logger, "analyzer"))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	invoker := analysis.NewInvoker(backend, logger, analysis.WithPayloadLimits(analysis.PayloadLimits{
		MaxItemsPerSource: cfg.Payload.MaxItems,
		MaxExcerptRunes:   cfg.Payload.ExcerptChars,
		MaxTotalRunes:     cfg.Payload.MaxChars,
	}))

	deps := pipeline.Deps{
		State:      store,
		Aggregator: ingest.NewAggregator(logger, news, reddit),
		Analyzer:   invoker,
		Reports:    report.NewMarkdownWriter(cfg.Output.ReportsDir, logger),
		Publisher:  createPublishGate(ctx, cfg.Publish, client, dryRun, logging.WithComponent(logger, "publisher")),
	}
	if cfg.Output.CardEnabled {
		cards, err := render.NewCardRenderer(render.CardConfig{
			Dir:      cfg.Output.ReportsDir,
			FontPath: cfg.Output.CardFont,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create card renderer: %w", err)
		}
		deps.Cards = cards
	}

	opts := pipeline.DefaultOptions()
	opts.MaxIDs = cfg.State.MaxIDs

	return pipeline.New(deps, opts, logger), cleanup, nil
}
