package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that runs the bridge daemon.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OpenBridge daemon",
		Long: `Start the HTTP bridge.

The daemon serves the Responses API on the configured address, translates
each request into a Chat Completions call against the upstream, and shuts
down gracefully on SIGINT or SIGTERM.`,
		Example: `  # Start with defaults (requires OPENROUTER_API_KEY)
  openbridge serve

  # Start with a config file
  openbridge serve --config openbridge.yaml

  # Override the listen address
  openbridge serve --host 0.0.0.0 --port 8080

  # Start with debug logging
  openbridge serve --config openbridge.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), serveOptions{
				ConfigPath: configPath,
				Host:       host,
				Port:       port,
				Debug:      debug,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
