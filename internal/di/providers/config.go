// Package providers contains dependency injection providers for the sync server.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/logger"
)

// ProvideConfig provides the application configuration from flags, environment and .env.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	flags, envFile, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(envFile, flags)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting shirosync server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"progress_backend", cfg.Progress.Backend,
	)

	return log, nil
}
