package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"market-xbot/internal/usecase/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run",
		Long: `Fetch news and forum posts, analyse the new ones, render the card,
append the daily report and publish. The process exits non-zero only when
the processed id state cannot be read or written, or on an unexpected panic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runOnce(runCtx, ctx, dryRun, cmd.OutOrStdout(), func(c context.Context) (*pipeline.Orchestrator, func(), error) {
				return buildPipeline(c, cfg, dryRun, ctx.logger)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip publication even when X credentials are configured")
	return cmd
}

type pipelineFactory func(ctx context.Context) (*pipeline.Orchestrator, func(), error)

// runOnce builds the pipeline, executes one run and prints the summary. A
// panic anywhere below is logged with its stack and returned as an error.
func runOnce(ctx context.Context, cc *commandContext, dryRun bool, out io.Writer, build pipelineFactory) (err error) {
	logger := cc.logger
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()

	orch, cleanup, err := build(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := orch.Run(ctx)
	printReport(out, rep, dryRun)
	if err != nil {
		return fmt.Errorf("run %s failed: %w", rep.RunID, err)
	}
	return nil
}

func printReport(w io.Writer, rep pipeline.RunReport, dryRun bool) {
	fmt.Fprintf(w, "run %s: %s in %s\n", rep.RunID, rep.Status, rep.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  new: news=%d forum=%d  duplicates=%d  invalid=%d\n",
		rep.NewNews, rep.NewForum, rep.Duplicates, rep.Invalid)
	for _, f := range rep.SourceFailures {
		fmt.Fprintf(w, "  source %s failed: %v\n", f.Source, f.Err)
	}
	if rep.AnalysisOutcome != "" {
		fmt.Fprintf(w, "  analysis: %s\n", rep.AnalysisOutcome)
	}
	if rep.Analysis != nil {
		fmt.Fprintf(w, "  $%s %s %s\n", rep.Ticker, rep.Analysis.Sentiment.Emoji(), rep.Analysis.Sentiment)
		fmt.Fprintf(w, "  post: %s\n", rep.Analysis.PostText)
	}
	if rep.CardPath != "" {
		fmt.Fprintf(w, "  card: %s\n", rep.CardPath)
	}
	if rep.ReportPath != "" {
		fmt.Fprintf(w, "  report: %s\n", rep.ReportPath)
	}
	if rep.Publish.Status != "" {
		line := string(rep.Publish.Status)
		if rep.Publish.PostID != "" {
			line += " (" + rep.Publish.PostID + ")"
		}
		if dryRun {
			line += " [dry run]"
		}
		fmt.Fprintf(w, "  publish: %s\n", line)
	}
	if rep.Committed() {
		fmt.Fprintf(w, "  state: +%d ids, %d total, %d pruned\n", rep.ConsumedIDs, rep.ProcessedIDs, rep.PrunedIDs)
	}
}
