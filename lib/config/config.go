// Copyright 2026 The Showroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the showroom
// server.
//
// Configuration is loaded from a single file specified by:
//   - SHOWROOM_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/showroom3d/showroom/glbpack"
)

// Config is the master configuration for showroomd.
type Config struct {
	// Listen configures the listening addresses.
	Listen ListenConfig `yaml:"listen"`

	// Storage configures the asset store and metadata index.
	Storage StorageConfig `yaml:"storage"`

	// Upload configures the direct-upload path.
	Upload UploadConfig `yaml:"upload"`

	// SeedManifest is the path to the curated-model manifest loaded at
	// startup. Empty disables seeding.
	SeedManifest string `yaml:"seed_manifest"`
}

// ListenConfig configures the listening addresses.
type ListenConfig struct {
	// Session is the TCP address for the bidirectional event channel.
	// Default: :7421
	Session string `yaml:"session"`

	// HTTP is the address for the asset HTTP surface (signed uploads
	// and public downloads). Default: :7422
	HTTP string `yaml:"http"`
}

// StorageConfig configures the asset store and metadata index.
type StorageConfig struct {
	// Root is the asset store directory.
	Root string `yaml:"root"`

	// IndexPath is the SQLite metadata index file.
	IndexPath string `yaml:"index_path"`

	// PublicBaseURL is the externally reachable base URL of the asset
	// HTTP surface. Signed upload URLs and public model URLs are
	// derived from it.
	PublicBaseURL string `yaml:"public_base_url"`

	// Codec selects the model compression codec: "zstd", "lz4", or
	// "none". Default: zstd
	Codec string `yaml:"codec"`
}

// UploadConfig configures the direct-upload path.
type UploadConfig struct {
	// SigningSecretFile is the path to the upload-URL signing secret.
	// The file's raw bytes are the master secret.
	SigningSecretFile string `yaml:"signing_secret_file"`

	// URLTTL is how long a signed upload URL stays valid.
	// Default: 5m
	URLTTL string `yaml:"url_ttl"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback - the
// config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "showroom")

	return &Config{
		Listen: ListenConfig{
			Session: ":7421",
			HTTP:    ":7422",
		},
		Storage: StorageConfig{
			Root:          filepath.Join(defaultRoot, "assets"),
			IndexPath:     filepath.Join(defaultRoot, "index.db"),
			PublicBaseURL: "http://localhost:7422",
			Codec:         "zstd",
		},
		Upload: UploadConfig{
			SigningSecretFile: filepath.Join(defaultRoot, "signing.secret"),
			URLTTL:            "5m",
		},
	}
}

// Load loads configuration from the SHOWROOM_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if SHOWROOM_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("SHOWROOM_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SHOWROOM_CONFIG environment variable not set; " +
			"set it to the path of your showroom.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Storage.Root = expandVars(c.Storage.Root, vars)
	c.Storage.IndexPath = expandVars(c.Storage.IndexPath, vars)
	c.Upload.SigningSecretFile = expandVars(c.Upload.SigningSecretFile, vars)
	c.SeedManifest = expandVars(c.SeedManifest, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Session == "" {
		errs = append(errs, fmt.Errorf("listen.session is required"))
	}
	if c.Listen.HTTP == "" {
		errs = append(errs, fmt.Errorf("listen.http is required"))
	}
	if c.Storage.Root == "" {
		errs = append(errs, fmt.Errorf("storage.root is required"))
	}
	if c.Storage.IndexPath == "" {
		errs = append(errs, fmt.Errorf("storage.index_path is required"))
	}
	if c.Storage.PublicBaseURL == "" {
		errs = append(errs, fmt.Errorf("storage.public_base_url is required"))
	}
	if _, err := glbpack.ParseCodec(c.Storage.Codec); err != nil {
		errs = append(errs, fmt.Errorf("storage.codec: %w", err))
	}
	if c.Upload.SigningSecretFile == "" {
		errs = append(errs, fmt.Errorf("upload.signing_secret_file is required"))
	}
	if _, err := c.ParsedURLTTL(); err != nil {
		errs = append(errs, fmt.Errorf("upload.url_ttl: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParsedURLTTL returns the signed-URL lifetime as a duration.
func (c *Config) ParsedURLTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Upload.URLTTL)
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", ttl)
	}
	return ttl, nil
}

// ParsedCodec returns the configured compression codec.
func (c *Config) ParsedCodec() (glbpack.Codec, error) {
	return glbpack.ParseCodec(c.Storage.Codec)
}

// SigningSecret reads the signing secret file.
func (c *Config) SigningSecret() ([]byte, error) {
	secret, err := os.ReadFile(c.Upload.SigningSecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading signing secret: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret file %s is empty", c.Upload.SigningSecretFile)
	}
	return secret, nil
}

// EnsurePaths creates the storage directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Storage.Root,
		filepath.Dir(c.Storage.IndexPath),
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
