package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Config Commands
// =============================================================================

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
		Long: `Inspect and validate OpenBridge configuration.

The bridge reads a YAML file plus OPENBRIDGE_* / OPENROUTER_* environment
overrides; these commands show what the daemon would actually run with.`,
	}

	cmd.AddCommand(buildConfigValidateCmd())
	cmd.AddCommand(buildConfigSchemaCmd())

	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Load the configuration the way the serve command would (file, environment
overrides, defaults) and report the effective settings or the first error.`,
		Example: `  # Validate the environment-only configuration
  openbridge config validate

  # Validate a config file
  openbridge config validate --config openbridge.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		Long: `Print a JSON schema describing every configuration field.

The schema is suitable for editor completion and CI-side validation of
openbridge.yaml files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}

	return cmd
}
