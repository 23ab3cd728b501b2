package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/open-edge-platform/artifactory-fetch/internal/config/validate"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/logger"
	"github.com/open-edge-platform/artifactory-fetch/internal/utils/security"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

// TokenEnvVar overrides any configured bearer token.
const TokenEnvVar = "ARTIFACTORY_TOKEN"

// GlobalConfig holds tool-level settings shared by every command.
type GlobalConfig struct {
	Server          ServerConfig  `yaml:"server" json:"server"`
	Workers         int           `yaml:"workers" json:"workers"`                                 // Concurrent downloads (1-100, default: 4)
	DownloadDir     string        `yaml:"download_dir" json:"download_dir"`                       // Where pulled artifacts are written (default: ./downloads)
	VerifyChecksums bool          `yaml:"verify_checksums" json:"verify_checksums"`               // Compare pulled files against storage API checksums
	Decompress      bool          `yaml:"decompress" json:"decompress"`                           // Expand .gz/.xz/.zst artifacts after pulling
	SignatureKey    string        `yaml:"signature_key,omitempty" json:"signature_key,omitempty"` // Armored public key used to check <artifact>.asc
	Logging         LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig describes the Artifactory instance.
type ServerConfig struct {
	URL                string `yaml:"url" json:"url"`
	Token              string `yaml:"token,omitempty" json:"token,omitempty"`
	TokenFile          string `yaml:"token_file,omitempty" json:"token_file,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty" json:"insecure_skip_verify,omitempty"`
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // debug, info (default), warn, error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

var (
	globalInstance *GlobalConfig
	globalMutex    sync.RWMutex
)

// SetGlobal sets the global config instance (call once at startup in main.go)
func SetGlobal(config *GlobalConfig) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalInstance = config
}

// Global returns the global config instance, falling back to defaults.
func Global() *GlobalConfig {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalInstance == nil {
		globalInstance = DefaultGlobalConfig()
	}
	return globalInstance
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Workers:         4,
		DownloadDir:     "./downloads",
		VerifyChecksums: true,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadGlobalConfig loads configuration from configPath on top of the
// defaults. An empty or missing path yields the defaults.
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	log := logger.Logger()
	config := DefaultGlobalConfig()
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return config, nil
		}
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	// Validate the document as written so unknown keys are caught.
	jsonData, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}
	if string(jsonData) != "null" {
		if err := validate.ValidateConfigJSON(jsonData); err != nil {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Debugf("Loaded configuration from %s", configPath)
	return config, nil
}

// Validate checks the configuration for consistency. It does not set
// defaults; that is DefaultGlobalConfig's job.
func (gc *GlobalConfig) Validate() error {
	if gc.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0, got %d", gc.Workers)
	}
	if gc.Workers > 100 {
		return fmt.Errorf("workers cannot exceed 100, got %d", gc.Workers)
	}
	if gc.DownloadDir == "" {
		return fmt.Errorf("download_dir cannot be empty")
	}
	if gc.Server.Token != "" && gc.Server.TokenFile != "" {
		return fmt.Errorf("server.token and server.token_file are mutually exclusive")
	}
	if err := security.ValidateHeaderValue("server.token", gc.Server.Token); err != nil {
		return err
	}

	switch gc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", gc.Logging.Level)
	}
	gc.Logging.File = strings.TrimSpace(gc.Logging.File)

	return security.ValidateStructStrings(gc, security.DefaultLimits())
}

// ResolveToken returns the bearer token to use. The environment variable
// wins over the config file; token_file is read and trimmed.
func (gc *GlobalConfig) ResolveToken() (string, error) {
	if tok, ok := os.LookupEnv(TokenEnvVar); ok && tok != "" {
		return strings.TrimSpace(tok), nil
	}
	if gc.Server.Token != "" {
		return gc.Server.Token, nil
	}
	if gc.Server.TokenFile == "" {
		return "", nil
	}

	data, err := security.SafeReadFile(gc.Server.TokenFile, security.ResolveSymlinks)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveGlobalConfigWithComments writes the configuration with descriptive
// comments. Used by `config init`.
func (gc *GlobalConfig) SaveGlobalConfigWithComments(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}

	if dir := filepath.Dir(configPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	rendered := gc.renderCommentedYAML()
	jsonData, err := k8syaml.YAMLToJSON([]byte(rendered))
	if err != nil {
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	// 0600: the file may hold a token.
	if err := security.SafeWriteFile(configPath, []byte(rendered), 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# artifactory-fetch - Global Configuration\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  url: %q\n", gc.Server.URL)
	b.WriteString("  # Base URL of the Artifactory instance, without the /artifactory suffix\n")
	if gc.Server.Token != "" {
		fmt.Fprintf(&b, "  token: %q\n", gc.Server.Token)
	}
	if gc.Server.TokenFile != "" {
		fmt.Fprintf(&b, "  token_file: %q\n", gc.Server.TokenFile)
	}
	b.WriteString("  # Access token: set token, token_file, or the " + TokenEnvVar + " environment variable\n")
	if gc.Server.CAFile != "" {
		fmt.Fprintf(&b, "  ca_file: %q\n", gc.Server.CAFile)
	}
	if gc.Server.InsecureSkipVerify {
		b.WriteString("  insecure_skip_verify: true\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "workers: %d\n", gc.Workers)
	b.WriteString("# Number of concurrent downloads when pulling several artifacts (1-100)\n\n")

	fmt.Fprintf(&b, "download_dir: %q\n", gc.DownloadDir)
	b.WriteString("# Directory pulled artifacts are written to\n\n")

	fmt.Fprintf(&b, "verify_checksums: %t\n", gc.VerifyChecksums)
	b.WriteString("# Compare MD5/SHA-1/SHA-256 of pulled files with the storage API\n\n")

	fmt.Fprintf(&b, "decompress: %t\n", gc.Decompress)
	b.WriteString("# Expand .gz, .xz and .zst artifacts next to the downloaded file\n\n")

	if gc.SignatureKey != "" {
		fmt.Fprintf(&b, "signature_key: %q\n", gc.SignatureKey)
		b.WriteString("# Armored OpenPGP public key; <artifact>.asc is fetched and checked\n\n")
	}

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	b.WriteString("  # debug, info, warn or error\n")
	if gc.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
	}

	return b.String()
}

// GetConfigPaths returns the standard configuration file paths to check
func GetConfigPaths() []string {
	paths := []string{
		"artifactory-fetch.yml",
		".artifactory-fetch.yml",
		"artifactory-fetch.yaml",
		".artifactory-fetch.yaml",
	}

	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "artifactory-fetch", "config.yml"),
			filepath.Join(homeDir, ".config", "artifactory-fetch", "config.yaml"),
		)
	}

	return append(paths,
		"/etc/artifactory-fetch/config.yml",
		"/etc/artifactory-fetch/config.yaml",
	)
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func Workers() int {
	return Global().Workers
}

// DownloadDir returns the absolute download directory.
func DownloadDir() (string, error) {
	dir, err := filepath.Abs(Global().DownloadDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve download directory: %w", err)
	}
	return dir, nil
}

// EnsureDownloadDir creates the download directory if needed.
func EnsureDownloadDir() (string, error) {
	dir, err := DownloadDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory %s: %w", dir, err)
	}
	return dir, nil
}

func LogLevel() string {
	return Global().Logging.Level
}
