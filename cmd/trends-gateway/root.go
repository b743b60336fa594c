package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/trends-gateway/internal/config"
	"github.com/JakeFAU/trends-gateway/internal/server"
)

// newRootCmd builds the CLI. Running without a subcommand serves HTTP.
func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "trends-gateway",
		Short: "HTTP gateway for search-interest trends with graceful degradation",
		Long: `trends-gateway answers interest-over-time queries from a trends upstream.
Keywords are normalized, geo codes are checked against an allow-list and
failed upstream calls are retried with jitter. When the upstream stays
unavailable the gateway serves a synthetic timeline instead of an error.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, cfgPath)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, cfgPath)
			},
		},
		newKeywordsCmd(&cfgPath),
	)
	return cmd
}

func runServe(cmd *cobra.Command, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := app.Run(cmd.Context()); err != nil {
		return fmt.Errorf("run application: %w", err)
	}
	return nil
}
