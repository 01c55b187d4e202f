package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"market-xbot/internal/config"
	"market-xbot/internal/observability/logging"
	pkgconfig "market-xbot/internal/pkg/config"
)

// configMetrics is process-wide; registering twice on the default registry
// panics.
var configMetrics = sync.OnceValue(func() *pkgconfig.ConfigMetrics {
	return pkgconfig.NewConfigMetrics(prometheus.DefaultRegisterer, "xbot")
})

// commandContext is shared by every subcommand. Configuration is loaded once,
// after the .env file has been applied.
type commandContext struct {
	envFile *string

	logger *slog.Logger

	configOnce sync.Once
	config     *config.AppConfig
	configErr  error
}

func newCommandContext(envFile *string) *commandContext {
	return &commandContext{envFile: envFile, logger: logging.Discard()}
}

// init loads the .env file and builds the logger.
func (c *commandContext) init() error {
	if c.envFile != nil && *c.envFile != "" {
		if err := config.LoadDotEnv(*c.envFile); err != nil {
			return err
		}
	}
	c.logger = logging.New(os.Stderr, logging.OptionsFromEnv())
	slog.SetDefault(c.logger)
	return nil
}

func (c *commandContext) ensureConfig() (*config.AppConfig, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.logger, configMetrics())
		if err != nil {
			c.configErr = fmt.Errorf("load configuration: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}
