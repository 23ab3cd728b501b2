package main

import (
	"encoding/json"
	"fmt"

	"github.com/open-edge-platform/artifactory-fetch/internal/artifactory"
	"github.com/spf13/cobra"
	k8syaml "sigs.k8s.io/yaml"
)

var infoOutput string = "json"

// createInfoCommand creates the info subcommand
func createInfoCommand() *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info PATH",
		Short: "Show storage metadata of an artifact",
		Long: `Show the metadata the storage API holds for an artifact: URIs, repository,
timestamps, size, MIME type and checksums.

PATH is relative to the /artifactory root and starts with the repository key.

Examples:
  artifactory-fetch info libs-release-local/org/acme/app/1.0/app-1.0.jar
  artifactory-fetch info generic-local/tools/cli.tar.gz -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: executeInfo,
	}

	infoCmd.Flags().StringVarP(&infoOutput, "output", "o", "json", "Output format (json, yaml)")
	return infoCmd
}

// executeInfo handles the info command logic
func executeInfo(cmd *cobra.Command, args []string) error {
	if infoOutput != "json" && infoOutput != "yaml" {
		return fmt.Errorf("unsupported output format %q (supported: json, yaml)", infoOutput)
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	info, err := client.FileInfo(cmd.Context(), artifactory.PathOf(args[0]))
	if err != nil {
		return fmt.Errorf("failed to fetch metadata for %s: %w", args[0], err)
	}

	var out []byte
	switch infoOutput {
	case "yaml":
		out, err = k8syaml.Marshal(info)
	default:
		out, err = json.MarshalIndent(info, "", "  ")
		out = append(out, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to render metadata: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(out)
	return err
}
