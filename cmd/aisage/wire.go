// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/aisage-dev/aisage/internal/agent"
	"github.com/aisage-dev/aisage/internal/config"
	"github.com/aisage-dev/aisage/internal/guard"
	"github.com/aisage-dev/aisage/internal/provider"
	anthropicprov "github.com/aisage-dev/aisage/internal/provider/anthropic"
	openaiprov "github.com/aisage-dev/aisage/internal/provider/openai"
	"github.com/aisage-dev/aisage/internal/server"
	"github.com/aisage-dev/aisage/internal/store"
	"github.com/aisage-dev/aisage/internal/store/sqlite"
	"github.com/aisage-dev/aisage/internal/tools"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server    *server.Server
	Loop      *agent.Loop
	Sessions  *agent.SessionManager
	Providers *provider.Registry
	Desk      *tools.AdviserDesk

	sessionStore store.SessionStore
	auditStore   store.AuditStore
}

// WireApp creates all subsystems and wires them together.
func WireApp(cfg *config.Config) (*App, error) {
	sessionStore, auditStore, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	closeStores := func() {
		_ = sessionStore.Close()
		_ = auditStore.Close()
	}

	// Guards.
	rules, err := cfg.GuardRules()
	if err != nil {
		closeStores()
		return nil, aisageerr.Wrap(err, aisageerr.CodeCLISetupFailure, "loading guard rules")
	}
	classifier, err := guard.NewClassifier(rules)
	if err != nil {
		closeStores()
		return nil, aisageerr.Wrap(err, aisageerr.CodeCLISetupFailure, "compiling guard rules")
	}
	inputGuard := guard.NewInputGuard(classifier, cfg.Guard.CrisisChannels)
	disclaimer := guard.NewDisclaimerInjector(cfg.Guard.DisclaimerVocabulary, cfg.Guard.DisclaimerNotice)

	// Providers.
	providers := provider.NewRegistry()
	registerBuiltinProviders(cfg, providers)
	if cfg.Models.Default != "" {
		// A missing provider key is not fatal at startup; turns fail with
		// a routing error until one is configured.
		if err := providers.SetDefault(cfg.Models.Default); err != nil {
			slog.Warn("default model unavailable until its provider is configured",
				"model", cfg.Models.Default, "error", err)
		}
	}

	// Tools.
	desk := tools.NewAdviserDesk()
	toolReg := newToolRegistry(cfg, desk)

	dispatcher, err := agent.NewToolDispatcher(agent.ToolDispatcherConfig{
		Registry:       toolReg,
		DefaultTimeout: cfg.Agent.ToolTimeout,
	})
	if err != nil {
		closeStores()
		return nil, aisageerr.Wrap(err, aisageerr.CodeCLISetupFailure, "creating tool dispatcher")
	}

	sessions := agent.NewSessionManager(sessionStore)

	loop := agent.NewLoop(agent.LoopConfig{
		SessionManager:      sessions,
		Providers:           providers,
		InputGuard:          inputGuard,
		OutputGuard:         guard.NewOutputGuard(),
		Disclaimer:          disclaimer,
		ToolDispatcher:      dispatcher,
		ToolRegistry:        toolReg,
		AuditStore:          auditStore,
		Escalator:           desk,
		SystemPrompt:        cfg.Agent.SystemPrompt,
		MaxToolCallsPerTurn: cfg.Agent.MaxToolCallsPerTurn,
		ActiveWindow:        cfg.Agent.ActiveWindow,
		ModelCallTimeout:    cfg.Agent.ModelTimeout,
	})

	srv, err := server.New(server.Config{ListenAddr: cfg.Server.Listen}, server.Deps{
		Sessions: sessions,
		Loop:     loop,
		Audit:    auditStore,
	})
	if err != nil {
		closeStores()
		return nil, aisageerr.Wrap(err, aisageerr.CodeCLISetupFailure, "creating server")
	}

	return &App{
		Server:       srv,
		Loop:         loop,
		Sessions:     sessions,
		Providers:    providers,
		Desk:         desk,
		sessionStore: sessionStore,
		auditStore:   auditStore,
	}, nil
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	var errs []error
	if err := a.Providers.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.sessionStore.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.auditStore.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func openStores(cfg *config.Config) (store.SessionStore, store.AuditStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemorySessionStore(), store.NewMemoryAuditStore(), nil
	case "sqlite":
		ss, err := sqlite.NewSessionStore(cfg.Storage.SessionPath)
		if err != nil {
			return nil, nil, aisageerr.Wrapf(err, aisageerr.CodeCLISetupFailure, "opening session store %s", cfg.Storage.SessionPath)
		}
		as, err := sqlite.NewAuditStore(cfg.Storage.AuditPath)
		if err != nil {
			_ = ss.Close()
			return nil, nil, aisageerr.Wrapf(err, aisageerr.CodeCLISetupFailure, "opening audit store %s", cfg.Storage.AuditPath)
		}
		return ss, as, nil
	default:
		return nil, nil, aisageerr.Errorf(aisageerr.CodeCLISetupFailure, "unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newToolRegistry builds the full coaching tool set over the demo profile
// store. The store is swapped for the transaction API in production.
func newToolRegistry(cfg *config.Config, desk *tools.AdviserDesk) *tools.Registry {
	profiles := tools.NewDemoProfileStore(cfg.Agent.DemoProfileMonths)

	reg := tools.NewRegistry()
	reg.Register(tools.NewSpendingInsightsTool(profiles))
	reg.Register(tools.NewCategoryDetailTool(profiles))
	reg.Register(tools.NewSavingsOpportunitiesTool(profiles))
	reg.Register(tools.NewFinancialHealthTool(profiles))
	reg.Register(tools.NewMortgageAffordabilityTool(profiles))
	reg.Register(tools.NewDebtSavingsTool(profiles))
	reg.Register(tools.NewBudgetPlannerTool(profiles))
	reg.Register(tools.NewProductEligibilityTool(profiles))
	reg.Register(tools.NewLifeEventTool(profiles))
	reg.Register(tools.NewKnowledgeBaseTool())
	reg.Register(tools.NewAdviserHandoffTool(desk, nil))
	return reg
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders iterates configured providers and registers
// matching built-in implementations. Unknown names or empty API keys are
// logged and skipped so a partial config still starts.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry) {
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			slog.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		slog.Info("registered provider", "provider", name)
	}
}
