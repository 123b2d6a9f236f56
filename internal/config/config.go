// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the client configuration from
// ~/.kurukshetram/kurukshetram.yaml, with hot reload for the relay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultDirName is the dot-directory under the user's home.
const DefaultDirName = ".kurukshetram"

// DefaultFileName is the config file name inside DefaultDirName.
const DefaultFileName = "kurukshetram.yaml"

// Config is the full client configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation; hot reload delivers a fresh value instead of mutating.
type Config struct {
	// Upstream configures the CMS API connection.
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`

	// Proxy configures the local relay.
	Proxy ProxyConfig `json:"proxy" yaml:"proxy"`

	// Storage configures the durable key-value store.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Defaults configures the selection fallbacks used during hydration.
	Defaults DefaultsConfig `json:"defaults" yaml:"defaults"`

	// Observability contains logging and tracing settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// UpstreamConfig contains CMS API settings.
type UpstreamConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" validate:"gte=0,lte=10"`
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base" validate:"gte=0"`
}

// ProxyConfig contains relay settings.
type ProxyConfig struct {
	ListenAddr     string  `json:"listen_addr" yaml:"listen_addr" validate:"required"`
	AllowedOrigins string  `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      float64 `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	RateBurst      int     `json:"rate_burst" yaml:"rate_burst" validate:"gte=0"`
}

// StorageConfig contains key-value store settings.
type StorageConfig struct {
	Path     string `json:"path" yaml:"path"`
	InMemory bool   `json:"in_memory" yaml:"in_memory"`
}

// DefaultsConfig contains selection hydration fallbacks.
type DefaultsConfig struct {
	Language string `json:"language" yaml:"language" validate:"required"`
	State    string `json:"state" yaml:"state"`
	District string `json:"district" yaml:"district"`
}

// ObservabilityConfig contains logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	TracingEnabled bool   `json:"tracing_enabled" yaml:"tracing_enabled"`
	OTLPEndpoint   string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
}

// DefaultConfig returns the default configuration.
//
// Outputs:
//   - Config: defaults that work against a locally relayed upstream.
func DefaultConfig() Config {
	return Config{
		Upstream: UpstreamConfig{
			BaseURL:     "http://localhost:8480/api",
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			BackoffBase: 1 * time.Second,
		},
		Proxy: ProxyConfig{
			ListenAddr:     ":8480",
			AllowedOrigins: "*",
			RateLimit:      50,
			RateBurst:      100,
		},
		Storage: StorageConfig{},
		Defaults: DefaultsConfig{
			Language: "English",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home: %w", err)
	}
	return filepath.Join(home, DefaultDirName, DefaultFileName), nil
}

// Load reads a config file, layering it over DefaultConfig and validating
// the result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks structural constraints.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Save writes the config, creating the parent directory as needed.
func Save(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
