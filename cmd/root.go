package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/panelscore/internal/config"
	"github.com/okian/panelscore/pkg/logger"
)

const app = "panelscore"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool
	json       bool
	logOut     io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logOut: os.Stderr}

	cmd := &cobra.Command{
		Use:          app,
		Short:        "Relevancy and profile scoring for interview panels",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "verbose/debug output")
	cmd.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "json format for logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newRecomputeCmd(opts),
		newSeedCmd(opts),
		newExportCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// setup loads configuration and initializes the global logger from it.
// Flags win over the file and the environment.
func (o *rootOptions) setup(ctx context.Context) (*config.Config, logger.Logger, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if o.json {
		cfg.LogFormat = string(logger.FormatJSON)
	}
	if o.debug {
		cfg.LogLevel = "debug"
	}

	if err := logger.InitWith(o.logOut, logger.Format(cfg.LogFormat)); err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}
