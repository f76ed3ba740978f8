package main

import (
	"encoding/json/jsontext"
	"encoding/json/v2"
	"os"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/di"
	"github.com/shirosync/shirosync-server/internal/logger"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	envFile  string
	dataPath string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the anime sync engine",
		Long:          `Import mapping datasets, run list and library syncs, and inspect matches against the local database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to .env file")
	root.PersistentFlags().StringVar(&opts.dataPath, "data", "", "Data directory (overrides DATA_PATH)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newImportCmd(opts),
		newSyncCmd(opts),
		newMatchCmd(opts),
		newMappingCmd(opts),
	)
	return root
}

// openEngine builds the container with configuration from the CLI flags.
// Logs go to stderr so stdout stays machine readable.
func openEngine(opts *globalOptions) (*do.RootScope, error) {
	cfg, err := config.LoadConfig(opts.envFile, config.Flags{
		"DATA_PATH": opts.dataPath,
		"LOG_LEVEL": opts.logLevel,
	})
	if err != nil {
		return nil, err
	}

	injector := di.NewContainer()
	do.OverrideValue(injector, cfg)
	do.OverrideValue(injector, logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	}))
	return injector, nil
}

// withEngine runs fn against a fresh container and shuts it down afterwards.
func withEngine(opts *globalOptions, fn func(i do.Injector) error) error {
	injector, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer injector.Shutdown() //nolint:errcheck // best effort on exit

	return fn(injector)
}

func printJSON(cmd *cobra.Command, v any) error {
	if err := json.MarshalWrite(cmd.OutOrStdout(), v, jsontext.WithIndent("  ")); err != nil {
		return err
	}
	_, err := cmd.OutOrStdout().Write([]byte("\n"))
	return err
}
