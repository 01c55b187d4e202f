package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"market-xbot/internal/config"
	"market-xbot/internal/domain/entity"
	"market-xbot/internal/infra/forum"
	"market-xbot/internal/infra/scraper"
	"market-xbot/internal/observability/logging"
	"market-xbot/internal/resilience/retry"
)

// sourceDiagnostic is the result of probing one feed or subreddit.
type sourceDiagnostic struct {
	Source   entity.SourceKind
	Name     string
	Status   string // OK, EMPTY or ERROR
	Items    int
	Duration time.Duration
	Err      error
}

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the configured sources, optionally probing each one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !check {
				printCatalog(out, cfg.Sources)
				return nil
			}
			diags := diagnoseSources(cmd.Context(), cfg, ctx.logger)
			printDiagnostics(out, diags)
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Fetch every feed and subreddit once and report its status")
	return cmd
}

func printCatalog(w io.Writer, cat config.Catalog) {
	fmt.Fprintf(w, "news feed: %s\n", cat.FeedURLTemplate)
	fmt.Fprintf(w, "tickers: %v\n", cat.Tickers)
	fmt.Fprintf(w, "subreddits: %v (limit %d)\n", cat.Subreddits, cat.ForumLimit)
}

// diagnoseSources probes each source individually with a single attempt so
// one slow feed does not hide the others.
func diagnoseSources(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) []sourceDiagnostic {
	client := createHTTPClient(15 * time.Second)
	once := retry.Config{Name: "sources-check", MaxAttempts: 1}

	var diags []sourceDiagnostic
	for _, ticker := range cfg.Sources.Tickers {
		f := scraper.NewNewsFetcher(client, scraper.NewsConfig{
			Tickers:     []string{ticker},
			URLTemplate: cfg.Sources.FeedURLTemplate,
		}, logging.WithComponent(logger, "news")).WithRetryConfig(once)
		diags = append(diags, probe(ctx, entity.SourceNews, ticker, f.Fetch))
	}
	for _, sub := range cfg.Sources.Subreddits {
		c := forum.NewRedditClient(ctx, client, forum.Config{
			Subreddits:   []string{sub},
			Limit:        cfg.Sources.ForumLimit,
			ClientID:     cfg.Forum.ClientID,
			ClientSecret: cfg.Forum.ClientSecret,
			BaseURL:      cfg.Forum.BaseURL,
		}, logging.WithComponent(logger, "forum")).WithRetryConfig(once)
		diags = append(diags, probe(ctx, entity.SourceForum, "r/"+sub, c.Fetch))
	}
	return diags
}

func probe(ctx context.Context, source entity.SourceKind, name string, fetch func(context.Context) ([]entity.ContentItem, error)) sourceDiagnostic {
	start := time.Now()
	items, err := fetch(ctx)
	d := sourceDiagnostic{
		Source:   source,
		Name:     name,
		Items:    len(items),
		Duration: time.Since(start),
		Err:      err,
	}
	switch {
	case err != nil:
		d.Status = "ERROR"
	case len(items) == 0:
		d.Status = "EMPTY"
	default:
		d.Status = "OK"
	}
	return d
}

func printDiagnostics(w io.Writer, diags []sourceDiagnostic) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tNAME\tSTATUS\tITEMS\tTIME\tERROR")
	for _, d := range diags {
		errText := ""
		if d.Err != nil {
			errText = d.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			d.Source, d.Name, d.Status, d.Items, d.Duration.Round(time.Millisecond), errText)
	}
	_ = tw.Flush()
}
