// Package config handles loading application configuration from a YAML
// file with environment variable overrides.
//
// Config file format (folio.yaml):
//
//	listen_addr: ":8080"
//	books_dir: "./books"
//	quarantine_dir: "./quarantine"
//	max_upload_size: 104857600
//	allowed_extensions: "epub,pdf,mobi,azw3,cbz,txt,html,rtf,fb2"
//
// Configuration sources, in increasing priority order:
//  1. Built-in defaults
//  2. YAML config file (located by FindConfigFile or explicit path)
//  3. Environment variables (FOLIO_LISTEN_ADDR, FOLIO_BOOKS_DIR, …)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// ListenAddr is the TCP address for the HTTP server (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr" envconfig:"LISTEN_ADDR" validate:"required"`

	// BooksDir is where accepted book files are stored and scanned.
	BooksDir string `yaml:"books_dir" envconfig:"BOOKS_DIR" validate:"required"`

	// DataDir holds the catalog database and the cover blob store.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`

	// QuarantineDir is where rejected files are moved with their audit
	// log entries.
	QuarantineDir string `yaml:"quarantine_dir" envconfig:"QUARANTINE_DIR" validate:"required"`

	// MaxUploadSize is the maximum accepted file size in bytes.
	MaxUploadSize int64 `yaml:"max_upload_size" envconfig:"MAX_UPLOAD_SIZE" validate:"gt=0"`

	// AllowedExtensions is the comma-separated extension allow-list.
	AllowedExtensions string `yaml:"allowed_extensions" envconfig:"ALLOWED_EXTENSIONS" validate:"required"`

	// ScanEnabled gates the external malware scan step.
	ScanEnabled bool `yaml:"scan_enabled" envconfig:"SCAN_ENABLED"`

	// ScanMaxSize is the largest file handed to the external scanner.
	ScanMaxSize int64 `yaml:"scan_max_size" envconfig:"SCAN_MAX_SIZE"`

	// ScanOnStart triggers a books-directory scan at startup.
	ScanOnStart bool `yaml:"scan_on_start" envconfig:"SCAN_ON_START"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		ListenAddr:        ":8080",
		BooksDir:          "./books",
		DataDir:           "./data",
		QuarantineDir:     "./quarantine",
		MaxUploadSize:     100 << 20,
		AllowedExtensions: "epub,pdf,mobi,azw3,cbz,txt,html,rtf,fb2",
		ScanMaxSize:       25 << 20,
		ScanOnStart:       true,
		LogLevel:          "info",
	}
}

// Load reads configuration from the YAML file at path (if non-empty),
// then applies FOLIO_* environment overrides on top and validates the
// result. If path is empty, only defaults and environment variables
// are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	// Environment variables always override file values so that Docker /
	// systemd overrides still work even when a config file is present.
	if err := envconfig.Process("folio", &cfg); err != nil {
		return cfg, fmt.Errorf("environment overrides: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Extensions returns the parsed allow-list: lowercase, trimmed, dots
// stripped, empties dropped.
func (c Config) Extensions() []string {
	var out []string
	for _, raw := range strings.Split(c.AllowedExtensions, ",") {
		ext := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), ".")))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

// FindConfigFile returns the path to the first config file found in the
// standard search order, or "" if none is found.
//
// Search order:
//  1. FOLIO_CONFIG environment variable (explicit override)
//  2. ./folio.yaml (current working directory)
//  3. ~/.config/folio/config.yaml (XDG user config)
func FindConfigFile() string {
	if p := os.Getenv("FOLIO_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("folio.yaml"); err == nil {
		return "folio.yaml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "folio", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
