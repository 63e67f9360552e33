package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-hook/internal/config"
	"github.com/phrazzld/scry-hook/internal/platform/logger"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "scry-hook",
		Short:         "Generate study quizzes from documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default ./config.yaml when present)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading SCRY_* variables")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newRunCmd(flags),
		newSkipCmd(flags),
		newTokenCmd(flags),
	)
	return root
}

// load reads configuration and sets up the default logger.
func (f *globalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWithOptions(config.Options{ConfigFile: f.configFile, EnvFile: f.envFile})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return cfg, log, nil
}
