// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const minimalConfig = `
apiBaseUrl: https://api.example.org
authBaseUrl: https://auth.example.org
authRealmName: dac
clientId: dacsync
dacId: EGAC00000000001
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxRequestLimit, cfg.MaxRequestLimit)
	assert.Equal(t, time.Second, cfg.MaxRequestInterval())
	assert.Equal(t, DefaultPageLimit, cfg.DefaultPageLimit)
	assert.Equal(t, DefaultPageOffset, cfg.DefaultPageOffset)
	assert.Equal(t, DefaultMaxBatchSize, cfg.MaxBatchSize)
	assert.Equal(t, "dacsync.db", cfg.DatabasePath)
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(writeConfigFile(t, "apiBaseUrl: https://api.example.org\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authBaseUrl")
	assert.Contains(t, err.Error(), "dacId")
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("DACSYNC_AUTHUSERNAME", "svc-user")
	t.Setenv("DACSYNC_AUTHPASSWORD", "hunter2")

	cfg, err := Load(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "svc-user", cfg.AuthUsername)
	assert.Equal(t, "hunter2", cfg.AuthPassword)
}

func TestTokenEndpoint(t *testing.T) {
	t.Parallel()

	cfg := &Config{AuthBaseURL: "https://auth.example.org/", AuthRealmName: "dac"}
	assert.Equal(t,
		"https://auth.example.org/realms/dac/protocol/openid-connect/token",
		cfg.TokenEndpoint())
}

func TestValidateRejectsNonPositiveThrottle(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		APIBaseURL:      "https://api.example.org",
		AuthBaseURL:     "https://auth.example.org",
		AuthRealmName:   "dac",
		ClientID:        "dacsync",
		DacID:           "EGAC00000000001",
		MaxRequestLimit: 0,
	}
	require.Error(t, cfg.Validate())
}
