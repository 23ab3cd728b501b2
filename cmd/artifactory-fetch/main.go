package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/open-edge-platform/artifactory-fetch/internal/artifactory"
	"github.com/open-edge-platform/artifactory-fetch/internal/config"
	"github.com/open-edge-platform/artifactory-fetch/internal/config/version"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/logger"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/network"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/security"
	"github.com/spf13/cobra"
)

// Command-line flags that can override config file settings
var (
	configFile  string = "" // Path to config file
	logLevel    string = "" // Empty means use config file value
	logFilePath string = "" // Empty means use config file value
	serverURL   string = "" // Empty means use config file value
	tokenFlag   string = "" // Empty means env var, then config file

	actualConfigFile string
	loggerCleanup    func()
)

func main() {
	rootCmd := createRootCommand()

	err := rootCmd.Execute()
	if loggerCleanup != nil {
		loggerCleanup()
	}
	if err != nil {
		os.Exit(1)
	}
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	// Parent hooks must run too: the root loads the config and every
	// command validates its own input.
	cobra.EnableTraverseRunHooks = true

	rootCmd := &cobra.Command{
		Use:   "artifactory-fetch",
		Short: "Fetch artifacts and metadata from a JFrog Artifactory instance",
		Long: `artifactory-fetch reads file metadata from the Artifactory storage API and
downloads artifacts with progress reporting, optional checksum and signature
verification and in-place decompression.

Use 'artifactory-fetch --help' to see available commands.
Use 'artifactory-fetch <command> --help' for more information about a command.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFilePath, "log-file", "",
		"Log file path to tee logs (overrides configuration file)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "",
		"Artifactory base URL, e.g. https://repo.example.com (overrides configuration file)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "",
		"Access token (overrides "+config.TokenEnvVar+" and configuration file)")

	// Add all subcommands
	rootCmd.AddCommand(createInfoCommand())
	rootCmd.AddCommand(createPullCommand())
	rootCmd.AddCommand(createTokenCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createVersionCommand())

	security.AttachRecursive(rootCmd, security.DefaultLimits())
	return rootCmd
}

// initConfig loads the configuration file, applies flag overrides and
// sets up the logger.
func initConfig() error {
	actualConfigFile = configFile
	if actualConfigFile == "" {
		actualConfigFile = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(actualConfigFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	if logLevel != "" {
		globalConfig.Logging.Level = logLevel
	}
	if logFilePath != "" {
		globalConfig.Logging.File = logFilePath
	}
	if serverURL != "" {
		globalConfig.Server.URL = serverURL
	}
	config.SetGlobal(globalConfig)

	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    config.LogLevel(),
		FilePath: globalConfig.Logging.File,
	})
	if err != nil {
		return err
	}
	loggerCleanup = cleanup

	log := logger.Logger()
	if actualConfigFile != "" {
		log.Debugf("Using configuration from: %s", actualConfigFile)
	}
	log.Debugf("Config: url=%s, workers=%d, download_dir=%s, verify=%t",
		globalConfig.Server.URL, globalConfig.Workers, globalConfig.DownloadDir, globalConfig.VerifyChecksums)
	return nil
}

// resolveToken applies the precedence flag > environment > config.
func resolveToken() (string, error) {
	if tokenFlag != "" {
		return strings.TrimSpace(tokenFlag), nil
	}
	return config.Global().ResolveToken()
}

// newClient builds an Artifactory client from the effective configuration.
func newClient() (*artifactory.Client, error) {
	cfg := config.Global()
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("no server URL configured: set server.url in the config file or pass --url")
	}

	httpClient, err := newHTTPClient(cfg.Server)
	if err != nil {
		return nil, err
	}
	client := artifactory.New(strings.TrimSuffix(cfg.Server.URL, "/"), artifactory.WithHTTPClient(httpClient))

	token, err := resolveToken()
	if err != nil {
		return nil, err
	}
	if token == "" {
		logger.Logger().Debugf("no access token configured, requests are anonymous")
		return client, nil
	}
	return client.WithBearer(token)
}

func newHTTPClient(server config.ServerConfig) (*http.Client, error) {
	var hc *http.Client
	if server.CAFile == "" && !server.InsecureSkipVerify {
		hc = network.NewSecureHTTPClient()
	} else {
		tlsConf := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: server.InsecureSkipVerify, // #nosec G402 -- opt-in via config
		}
		if server.CAFile != "" {
			pem, err := security.SafeReadFile(server.CAFile, security.ResolveSymlinks)
			if err != nil {
				return nil, fmt.Errorf("reading CA file: %w", err)
			}
			pool, err := x509.SystemCertPool()
			if err != nil || pool == nil {
				pool = x509.NewCertPool()
			}
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", server.CAFile)
			}
			tlsConf.RootCAs = pool
		}
		if server.InsecureSkipVerify {
			logger.Logger().Warnf("TLS certificate verification is disabled")
		}
		hc = network.NewHTTPClientWithTLS(tlsConf)
	}

	hc.Transport = &userAgentTransport{base: hc.Transport, agent: version.UserAgent()}
	return hc, nil
}

// userAgentTransport stamps outgoing requests with the tool's User-Agent.
type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
