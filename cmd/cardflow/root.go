package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"cardflow/internal/app"
	"cardflow/internal/config"
	"cardflow/internal/logging"
)

var version = "dev"

type cliContext struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	cli := &cliContext{}
	root := &cobra.Command{
		Use:           "cardflow",
		Short:         "Process business card images into follow-up emails",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cli.configPath, "config", "cardflow.toml", "path to config file")

	root.AddCommand(
		newSubmitCommand(cli),
		newStatusCommand(cli),
		newRetryCommand(cli),
		newCancelCommand(cli),
		newExportCommand(cli),
		newVersionCommand(),
	)
	return root
}

// build loads config and wires the application for one-shot CLI use.
func (c *cliContext) build(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	return app.Build(ctx, cfg, logger)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cardflow version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("cardflow " + version)
		},
	}
}

func closeQuietly(a *app.App, logger *slog.Logger) {
	if err := a.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
}
