package main

import (
	"fmt"

	"github.com/haasonsaas/openbridge/internal/config"
	"github.com/spf13/cobra"
)

// =============================================================================
// Config Command Handlers
// =============================================================================

// runConfigValidate loads the configuration and prints the effective settings.
func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration OK")
	fmt.Fprintf(out, "  listen:        %s (tls: %v)\n", cfg.Addr(), cfg.TLSEnabled())
	fmt.Fprintf(out, "  upstream:      %s\n", cfg.Upstream.BaseURL)
	fmt.Fprintf(out, "  state backend: %s\n", cfg.State.Backend)
	fmt.Fprintf(out, "  trace enabled: %v\n", cfg.Trace.Enabled)
	fmt.Fprintf(out, "  client auth:   %v\n", cfg.Server.ClientAPIKey != "")
	return nil
}

// runConfigSchema prints the configuration JSON schema.
func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return nil
}
