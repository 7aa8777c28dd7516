// Package main provides the CLI entry point for the OpenBridge daemon.
//
// OpenBridge exposes the OpenAI Responses API (POST /v1/responses with SSE
// streaming, tool calls, and previous_response_id chaining) on top of an
// OpenRouter-compatible Chat Completions upstream, so Responses-native
// clients can talk to any model the upstream serves.
//
// # Basic Usage
//
// Start the bridge:
//
//	openbridge serve --config openbridge.yaml
//
// Validate a configuration file:
//
//	openbridge config validate --config openbridge.yaml
//
// Print the configuration JSON schema:
//
//	openbridge config schema
//
// # Environment Variables
//
// Configuration can be provided via environment variables:
//
//   - OPENROUTER_API_KEY: upstream API key (required)
//   - OPENROUTER_BASE_URL: upstream API root (default: https://openrouter.ai/api/v1)
//   - OPENBRIDGE_HOST / OPENBRIDGE_PORT: listen address
//   - OPENBRIDGE_CLIENT_API_KEY: key required from clients when set
//   - OPENBRIDGE_STATE_BACKEND: conversation store backend (memory|redis|disabled)
//   - OPENBRIDGE_REDIS_URL: redis connection string for the redis backend
//   - OPENBRIDGE_LOG_LEVEL / OPENBRIDGE_LOG_FORMAT: logging controls
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

// main is the entry point for the OpenBridge CLI.
func main() {
	// Configure structured logging with JSON output for production parsing.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	serveCmd := buildServeCmd()

	rootCmd := &cobra.Command{
		Use:   "openbridge",
		Short: "OpenBridge - Responses API bridge for Chat Completions upstreams",
		Long: `OpenBridge translates the OpenAI Responses API onto an OpenRouter-style
Chat Completions upstream.

Clients speak POST /v1/responses (with SSE streaming, tool calls, and
previous_response_id chaining) while the bridge handles model aliasing,
tool virtualization, retries, and conversation state.

Running openbridge with no subcommand starts the daemon, same as
"openbridge serve".

Documentation: https://github.com/haasonsaas/openbridge`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serveCmd.RunE,
	}
	// The bare invocation serves, so it accepts the serve flags. The flag
	// values are shared with the serve subcommand.
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.AddCommand(
		serveCmd,
		buildConfigCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "openbridge %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
