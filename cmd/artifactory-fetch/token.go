package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/open-edge-platform/artifactory-fetch/internal/auth"
	"github.com/open-edge-platform/artifactory-fetch/internal/config"
	"github.com/spf13/cobra"
)

// createTokenCommand creates the token subcommand
func createTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect the configured access token",
		Long: `Decode the access token that would be sent as the bearer credential and
show its subject, issuer, scope and expiry. The signature is not checked.

The token is taken from --token, then the ` + config.TokenEnvVar + ` environment
variable, then server.token or server.token_file in the configuration file.`,
		Args: cobra.NoArgs,
		RunE: executeToken,
	}

	return tokenCmd
}

// executeToken handles the token command logic
func executeToken(cmd *cobra.Command, args []string) error {
	token, err := resolveToken()
	if err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("no access token configured")
	}

	info, err := auth.InspectToken(token)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if info.Opaque {
		fmt.Fprintln(out, "Opaque token (reference token or API key); no claims to show")
		return nil
	}

	fmt.Fprintf(out, "Algorithm: %s\n", info.Algorithm)
	fmt.Fprintf(out, "Subject:   %s\n", info.Subject)
	fmt.Fprintf(out, "Issuer:    %s\n", info.Issuer)
	if len(info.Audience) > 0 {
		fmt.Fprintf(out, "Audience:  %s\n", strings.Join(info.Audience, ", "))
	}
	if info.Scope != "" {
		fmt.Fprintf(out, "Scope:     %s\n", info.Scope)
	}
	if !info.IssuedAt.IsZero() {
		fmt.Fprintf(out, "Issued:    %s\n", info.IssuedAt.UTC().Format(time.RFC3339))
	}
	if info.ExpiresAt.IsZero() {
		fmt.Fprintln(out, "Expires:   never")
		return nil
	}

	fmt.Fprintf(out, "Expires:   %s\n", info.ExpiresAt.UTC().Format(time.RFC3339))
	if info.Expired(time.Now()) {
		return fmt.Errorf("access token expired at %s", info.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}
