// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the engine configuration.
//
// Non-secret options come from an optional config file and DACSYNC_* env
// variables via viper. Secrets (identity username, identity password, token
// verification key) are read from the environment only and never logged.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values for the recognized options.
const (
	DefaultMaxRequestLimit    = 3
	DefaultMaxRequestInterval = 1000 * time.Millisecond
	DefaultPageLimit          = 50
	DefaultPageOffset         = 50
	DefaultMaxBatchSize       = 2000
)

// Config carries every recognized option of the reconciliation engine.
type Config struct {
	// APIBaseURL is the base URL for the DAC platform API.
	APIBaseURL string `mapstructure:"apiBaseUrl"`

	// AuthBaseURL is the base URL of the identity provider.
	AuthBaseURL string `mapstructure:"authBaseUrl"`

	// AuthRealmName is the realm path segment of the token endpoint.
	AuthRealmName string `mapstructure:"authRealmName"`

	// ClientID is the client id sent in the token request body.
	ClientID string `mapstructure:"clientId"`

	// DacID is the DAC accession id to reconcile.
	DacID string `mapstructure:"dacId"`

	// MaxRequestLimit is the number of outbound requests allowed per interval.
	MaxRequestLimit int `mapstructure:"maxRequestLimit"`

	// MaxRequestIntervalMS is the throttle interval window in milliseconds.
	MaxRequestIntervalMS int `mapstructure:"maxRequestInterval"`

	// DefaultPageLimit is the page size for dataset permission pagination.
	DefaultPageLimit int `mapstructure:"defaultPageLimit"`

	// DefaultPageOffset is the pagination step for dataset permissions.
	DefaultPageOffset int `mapstructure:"defaultPageOffset"`

	// MaxBatchSize is the ceiling on single-batch mutations.
	MaxBatchSize int `mapstructure:"maxBatchSize"`

	// DatabasePath is the path to the authoritative application database.
	DatabasePath string `mapstructure:"databasePath"`

	// MetricsAddress optionally serves Prometheus metrics during a run ("" disables).
	MetricsAddress string `mapstructure:"metricsAddress"`

	// Secrets, environment-only.
	AuthUsername  string `mapstructure:"authUsername"`
	AuthPassword  string `mapstructure:"authPassword"`
	AuthPublicKey string `mapstructure:"authPublicKey"`
}

// MaxRequestInterval returns the throttle window as a duration.
func (c *Config) MaxRequestInterval() time.Duration {
	return time.Duration(c.MaxRequestIntervalMS) * time.Millisecond
}

// TokenEndpoint returns the fully qualified token endpoint URL.
func (c *Config) TokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
		strings.TrimSuffix(c.AuthBaseURL, "/"), c.AuthRealmName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("maxRequestLimit", DefaultMaxRequestLimit)
	v.SetDefault("maxRequestInterval", int(DefaultMaxRequestInterval.Milliseconds()))
	v.SetDefault("defaultPageLimit", DefaultPageLimit)
	v.SetDefault("defaultPageOffset", DefaultPageOffset)
	v.SetDefault("maxBatchSize", DefaultMaxBatchSize)
	v.SetDefault("databasePath", "dacsync.db")
}

// Load reads the configuration from the given file (optional) and the
// environment, applies defaults, and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DACSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about; bind the
	// secret keys explicitly since they have no default and no file entry.
	for _, key := range []string{
		"apiBaseUrl", "authBaseUrl", "authRealmName", "clientId", "dacId",
		"authUsername", "authPassword", "authPublicKey",
		"databasePath", "metricsAddress",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every required option is present and coherent.
func (c *Config) Validate() error {
	var missing []string
	if c.APIBaseURL == "" {
		missing = append(missing, "apiBaseUrl")
	}
	if c.AuthBaseURL == "" {
		missing = append(missing, "authBaseUrl")
	}
	if c.AuthRealmName == "" {
		missing = append(missing, "authRealmName")
	}
	if c.ClientID == "" {
		missing = append(missing, "clientId")
	}
	if c.DacID == "" {
		missing = append(missing, "dacId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.MaxRequestLimit <= 0 {
		return fmt.Errorf("maxRequestLimit must be positive, got %d", c.MaxRequestLimit)
	}
	if c.MaxRequestIntervalMS <= 0 {
		return fmt.Errorf("maxRequestInterval must be positive, got %d", c.MaxRequestIntervalMS)
	}
	if c.DefaultPageLimit <= 0 {
		return fmt.Errorf("defaultPageLimit must be positive, got %d", c.DefaultPageLimit)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("maxBatchSize must be positive, got %d", c.MaxBatchSize)
	}
	return nil
}
