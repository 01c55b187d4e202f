package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"market-xbot/internal/infra/worker"
	"market-xbot/internal/usecase/pipeline"
)

var workerMetrics = sync.OnceValue(func() *worker.WorkerMetrics {
	return worker.NewWorkerMetrics(prometheus.DefaultRegisterer)
})

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		runNow bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on a cron schedule",
		Long: `Run the pipeline on CRON_SCHEDULE in WORKER_TIMEZONE. Liveness and
readiness are served on WORKER_HEALTH_PORT and Prometheus metrics on
METRICS_PORT. A run still in progress when the next one is due is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := workerMetrics()
			workerConfig := worker.LoadConfigFromEnv(logger, metrics)
			logger.Info("worker configuration loaded",
				slog.String("cron_schedule", workerConfig.CronSchedule),
				slog.String("timezone", workerConfig.Timezone),
				slog.Duration("run_timeout", workerConfig.RunTimeout),
				slog.Int("health_port", workerConfig.HealthPort),
				slog.Int("metrics_port", workerConfig.MetricsPort))

			orch, cleanup, err := buildPipeline(sigCtx, cfg, dryRun, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			health := worker.NewHealthServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger)
			scheduler, err := worker.NewScheduler(workerConfig, pipelineJob(orch), metrics, health, logger)
			if err != nil {
				return err
			}

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				if err := health.Start(sigCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("health server failed", slog.Any("error", err))
				}
			}()
			go func() {
				defer wg.Done()
				addr := fmt.Sprintf(":%d", workerConfig.MetricsPort)
				if err := worker.StartMetricsServer(sigCtx, addr, prometheus.DefaultGatherer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server failed", slog.Any("error", err))
				}
			}()

			if runNow {
				logger.Info("running pipeline once at startup")
				scheduler.RunOnce(sigCtx)
			}

			err = scheduler.Start(sigCtx)
			wg.Wait()
			return err
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "Execute one run immediately before waiting for the schedule")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip publication even when X credentials are configured")
	return cmd
}

// pipelineJob adapts an Orchestrator to the scheduler. Only fatal run errors
// are reported as job failures; degraded runs count as successes.
func pipelineJob(orch *pipeline.Orchestrator) worker.Job {
	return func(ctx context.Context) (worker.JobResult, error) {
		rep, err := orch.Run(ctx)
		return worker.JobResult{
			Status:        string(rep.Status),
			ItemsConsumed: rep.ConsumedIDs,
		}, err
	}
}
