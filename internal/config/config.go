// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

// Package config loads and validates the service configuration from file
// and environment (prefix AISAGE_).
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aisage-dev/aisage/internal/guard"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// Config is the top-level Aisage configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    ModelsConfig              `mapstructure:"models"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Agent     AgentConfig               `mapstructure:"agent"`
	Guard     GuardConfig               `mapstructure:"guard"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig controls model routing.
type ModelsConfig struct {
	Default string `mapstructure:"default"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	SessionPath string `mapstructure:"session_path"`
	AuditPath   string `mapstructure:"audit_path"`
}

// AgentConfig bounds the turn pipeline.
type AgentConfig struct {
	MaxToolCallsPerTurn int           `mapstructure:"max_tool_calls_per_turn"`
	ActiveWindow        int           `mapstructure:"active_window"`
	SystemPrompt        string        `mapstructure:"system_prompt"`
	DemoProfileMonths   int           `mapstructure:"demo_profile_months"`
	ToolTimeout         time.Duration `mapstructure:"tool_timeout"`
	ModelTimeout        time.Duration `mapstructure:"model_timeout"`
}

// GuardConfig configures the admission and output guards.
type GuardConfig struct {
	// RulesFile optionally replaces the built-in intent rule tables.
	RulesFile string `mapstructure:"rules_file"`
	// CrisisChannels override the distress signpost services.
	CrisisChannels []guard.CrisisChannel `mapstructure:"crisis_channels"`
	// DisclaimerVocabulary overrides the regulated-adjacent trigger terms.
	DisclaimerVocabulary []string `mapstructure:"disclaimer_vocabulary"`
	// DisclaimerNotice overrides the appended notice text.
	DisclaimerNotice string `mapstructure:"disclaimer_notice"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix AISAGE_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:8480")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.session_path", "aisage-sessions.db")
	v.SetDefault("storage.audit_path", "aisage-audit.db")
	v.SetDefault("models.default", "openai/gpt-4.1-mini")
	v.SetDefault("agent.max_tool_calls_per_turn", 10)
	v.SetDefault("agent.active_window", 50)
	v.SetDefault("agent.demo_profile_months", 6)
	v.SetDefault("agent.tool_timeout", 15*time.Second)
	v.SetDefault("agent.model_timeout", 60*time.Second)

	// Environment
	v.SetEnvPrefix("AISAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, aisageerr.Wrapf(err, aisageerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, aisageerr.Wrap(err, aisageerr.CodeConfigValidateInvalidValue, "unmarshalling config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, aisageerr.Wrap(errors.Join(errs...), aisageerr.CodeConfigValidateInvalidValue, "validating config")
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns every
// validation error found, not just the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateAgent()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err,
		))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q",
			portStr,
		))
	} else if port < 1 || port > 65535 {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d",
			port,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend,
		))
	}

	if c.Storage.Backend == "sqlite" {
		if c.Storage.SessionPath == "" {
			errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue, "config: storage.session_path must not be empty for the sqlite backend"))
		}
		if c.Storage.AuditPath == "" {
			errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue, "config: storage.audit_path must not be empty for the sqlite backend"))
		}
	}

	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Models.Default == "" {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue, "config: models.default must not be empty"))
	} else if !strings.Contains(c.Models.Default, "/") {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: models.default must be in \"provider/model\" format, got %q",
			c.Models.Default,
		))
	} else if c.Providers != nil {
		// Only cross-reference providers when the providers section
		// exists; defaults-only installs leave it nil.
		providerName := providerFromModel(c.Models.Default)
		if _, ok := c.Providers[providerName]; !ok {
			errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
				"config: models.default %q references provider %q which is not configured",
				c.Models.Default, providerName,
			))
		}
	}

	return errs
}

func (c *Config) validateAgent() []error {
	var errs []error

	if c.Agent.MaxToolCallsPerTurn <= 0 {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: agent.max_tool_calls_per_turn must be greater than 0, got %d",
			c.Agent.MaxToolCallsPerTurn,
		))
	}

	if c.Agent.ActiveWindow <= 0 {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: agent.active_window must be greater than 0, got %d",
			c.Agent.ActiveWindow,
		))
	}

	if c.Agent.DemoProfileMonths <= 0 {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: agent.demo_profile_months must be greater than 0, got %d",
			c.Agent.DemoProfileMonths,
		))
	}

	if c.Agent.ToolTimeout <= 0 {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: agent.tool_timeout must be greater than 0, got %s",
			c.Agent.ToolTimeout,
		))
	}

	if c.Agent.ModelTimeout <= 0 {
		errs = append(errs, aisageerr.Errorf(aisageerr.CodeConfigValidateInvalidValue,
			"config: agent.model_timeout must be greater than 0, got %s",
			c.Agent.ModelTimeout,
		))
	}

	return errs
}

// GuardRules loads the configured rule file, falling back to the built-in
// tables when no file is set.
func (c *Config) GuardRules() ([]guard.Rule, error) {
	if c.Guard.RulesFile == "" {
		return guard.DefaultRules(), nil
	}
	return guard.LoadRules(c.Guard.RulesFile)
}

// providerFromModel extracts the provider prefix from a "provider/model"
// string.
func providerFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}
