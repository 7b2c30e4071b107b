// Package config loads the server's YAML configuration, with CLI flag
// overrides layered on top, mirroring the teacher's load/parse/apply
// split without its downstream-server store-upsert concerns (this core
// has no persisted store to reconcile against).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server's full runtime configuration.
type Config struct {
	ListenAddr           string        `yaml:"listen_addr"`
	EntryPoint           string        `yaml:"entry_point"`
	TLSCertFile          string        `yaml:"tls_cert_file,omitempty"`
	TLSKeyFile           string        `yaml:"tls_key_file,omitempty"`
	SessionTimeout       time.Duration `yaml:"session_timeout"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	RequireAuth          bool          `yaml:"require_auth"`
	AuthorizationServers []string      `yaml:"authorization_servers,omitempty"`
	ScopesSupported      []string      `yaml:"scopes_supported,omitempty"`
	LogLevel             string        `yaml:"log_level"`
	ServerName           string        `yaml:"server_name"`
	ServerVersion        string        `yaml:"server_version"`
}

// Default returns the built-in configuration used when no file is
// supplied.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8443",
		EntryPoint:     "/mcp",
		SessionTimeout: 5 * time.Minute,
		SweepInterval:  30 * time.Second,
		LogLevel:       "info",
		ServerName:     "relaymcp",
		ServerVersion:  "0.1.0",
	}
}

// LoadFile reads and parses a YAML config file, applying it on top of
// Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config data on top of the default configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if cfg.EntryPoint == "" {
		return fmt.Errorf("entry_point is required")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return fmt.Errorf("tls_cert_file and tls_key_file must both be set or both be empty")
	}
	return nil
}

// ApplyFlags overrides cfg's fields from CLI flags, mirroring the
// teacher's applyFlags convention of CLI taking precedence over file.
func ApplyFlags(cfg *Config, listenAddr, entryPoint, certFile, keyFile string, requireAuth bool) {
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if entryPoint != "" {
		cfg.EntryPoint = entryPoint
	}
	if certFile != "" {
		cfg.TLSCertFile = certFile
	}
	if keyFile != "" {
		cfg.TLSKeyFile = keyFile
	}
	if requireAuth {
		cfg.RequireAuth = true
	}
}
