package main

import (
	"fmt"

	"github.com/open-edge-platform/artifactory-fetch/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage global configuration for artifactory-fetch.

Available commands:
  init    Initialize a new configuration file with default values
  show    Print the effective configuration`,
	}

	configCmd.AddCommand(createConfigInitCommand())
	configCmd.AddCommand(createConfigShowCommand())

	return configCmd
}

// createConfigInitCommand creates the config init subcommand
func createConfigInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config will be created in the current directory as artifactory-fetch.yml

Examples:
  # Create config in current directory
  artifactory-fetch config init

  # Create config in user's home directory
  artifactory-fetch config init ~/.config/artifactory-fetch/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}

	return initCmd
}

// executeConfigInit handles the config init command logic
func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "artifactory-fetch.yml"
	if len(args) > 0 {
		configPath = args[0]
	}

	defaultConfig := config.DefaultGlobalConfig()
	if serverURL != "" {
		defaultConfig.Server.URL = serverURL
	}

	if err := defaultConfig.SaveGlobalConfigWithComments(configPath); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	fmt.Fprintf(out, "\nDefault configuration settings:\n")
	fmt.Fprintf(out, "  Server URL: %s\n", defaultConfig.Server.URL)
	fmt.Fprintf(out, "  Workers: %d\n", defaultConfig.Workers)
	fmt.Fprintf(out, "  Download Directory: %s\n", defaultConfig.DownloadDir)
	fmt.Fprintf(out, "  Verify Checksums: %t\n", defaultConfig.VerifyChecksums)
	fmt.Fprintf(out, "  Log Level: %s\n", defaultConfig.Logging.Level)
	fmt.Fprintf(out, "\nEdit the configuration file to customize these settings.\n")

	return nil
}

// createConfigShowCommand creates the config show subcommand
func createConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after the config file and command-line overrides are applied. Tokens are redacted.",
		Args:  cobra.NoArgs,
		RunE:  executeConfigShow,
	}
}

// executeConfigShow handles the config show command logic
func executeConfigShow(cmd *cobra.Command, args []string) error {
	effective := *config.Global()
	if effective.Server.Token != "" {
		effective.Server.Token = redacted
	}

	data, err := yaml.Marshal(&effective)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if actualConfigFile != "" {
		fmt.Fprintf(out, "# source: %s\n", actualConfigFile)
	} else {
		fmt.Fprintln(out, "# source: built-in defaults")
	}
	_, err = out.Write(data)
	return err
}
