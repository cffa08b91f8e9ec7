// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisage-dev/aisage/internal/config"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8480", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "openai/gpt-4.1-mini", cfg.Models.Default)
	assert.Equal(t, 10, cfg.Agent.MaxToolCallsPerTurn)
	assert.Equal(t, 50, cfg.Agent.ActiveWindow)
	assert.Equal(t, 6, cfg.Agent.DemoProfileMonths)
	assert.Equal(t, 15*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, 60*time.Second, cfg.Agent.ModelTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aisage.yaml")
	content := `
server:
  listen: "0.0.0.0:9090"
storage:
  backend: memory
providers:
  anthropic:
    api_key: test-key
models:
  default: anthropic/claude-sonnet-4-5
agent:
  max_tool_calls_per_turn: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Listen)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Models.Default)
	assert.Equal(t, "test-key", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, 4, cfg.Agent.MaxToolCallsPerTurn)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, aisageerr.CodeConfigLoadReadFailure, aisageerr.CodeOf(err))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AISAGE_SERVER_LISTEN", "127.0.0.1:7001")
	t.Setenv("AISAGE_STORAGE_BACKEND", "memory")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7001", cfg.Server.Listen)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Server:  config.ServerConfig{Listen: "127.0.0.1:8480"},
			Storage: config.StorageConfig{Backend: "memory"},
			Models:  config.ModelsConfig{Default: "openai/gpt-4.1-mini"},
			Agent: config.AgentConfig{
				MaxToolCallsPerTurn: 10,
				ActiveWindow:        50,
				DemoProfileMonths:   6,
				ToolTimeout:         15 * time.Second,
				ModelTimeout:        time.Minute,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "empty listen",
			mutate:  func(c *config.Config) { c.Server.Listen = "" },
			wantErr: "server.listen must not be empty",
		},
		{
			name:    "listen missing port",
			mutate:  func(c *config.Config) { c.Server.Listen = "localhost" },
			wantErr: "server.listen must be a valid host:port",
		},
		{
			name:    "listen port out of range",
			mutate:  func(c *config.Config) { c.Server.Listen = "localhost:70000" },
			wantErr: "port must be between 1 and 65535",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *config.Config) { c.Storage.Backend = "postgres" },
			wantErr: "storage.backend must be one of",
		},
		{
			name: "sqlite requires session path",
			mutate: func(c *config.Config) {
				c.Storage.Backend = "sqlite"
				c.Storage.AuditPath = "audit.db"
			},
			wantErr: "storage.session_path must not be empty",
		},
		{
			name:    "empty default model",
			mutate:  func(c *config.Config) { c.Models.Default = "" },
			wantErr: "models.default must not be empty",
		},
		{
			name:    "default model missing provider prefix",
			mutate:  func(c *config.Config) { c.Models.Default = "gpt-4.1-mini" },
			wantErr: "provider/model",
		},
		{
			name: "default model references unconfigured provider",
			mutate: func(c *config.Config) {
				c.Providers = map[string]config.ProviderConfig{
					"anthropic": {APIKey: "k"},
				}
				c.Models.Default = "openai/gpt-4.1-mini"
			},
			wantErr: "not configured",
		},
		{
			name:    "zero tool call budget",
			mutate:  func(c *config.Config) { c.Agent.MaxToolCallsPerTurn = 0 },
			wantErr: "max_tool_calls_per_turn must be greater than 0",
		},
		{
			name:    "zero active window",
			mutate:  func(c *config.Config) { c.Agent.ActiveWindow = -1 },
			wantErr: "active_window must be greater than 0",
		},
		{
			name:    "zero tool timeout",
			mutate:  func(c *config.Config) { c.Agent.ToolTimeout = 0 },
			wantErr: "tool_timeout must be greater than 0",
		},
		{
			name:    "negative model timeout",
			mutate:  func(c *config.Config) { c.Agent.ModelTimeout = -time.Second },
			wantErr: "model_timeout must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.wantErr) {
					found = true
					break
				}
			}
			assert.True(t, found, "expected an error containing %q, got %v", tt.wantErr, errs)
		})
	}
}

func TestGuardRules(t *testing.T) {
	cfg := &config.Config{}
	rules, err := cfg.GuardRules()
	require.NoError(t, err)
	assert.NotEmpty(t, rules)

	cfg.Guard.RulesFile = filepath.Join(t.TempDir(), "missing-rules.yaml")
	_, err = cfg.GuardRules()
	require.Error(t, err)
}
