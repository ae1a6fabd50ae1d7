package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/homelab/policyd/internal/config"
	"github.com/jbweber/homelab/policyd/internal/logging"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "policyd",
		Short:        "Insurance policy CRUD service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to a YAML config file (default: ./policyd.yaml or ./configs/policyd.yaml if present)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))

	return cmd
}

// load reads the configuration and builds the logger it describes
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
