// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package provider

import (
	"context"
	"strings"
	"sync"

	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// Registry manages provider registration and lookup. The coaching service
// runs against a single configured default "provider/model" ref; explicit
// refs are accepted for operator tooling and tests.
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	defaultRef string // "provider/model" format
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, aisageerr.New(
			aisageerr.CodeProviderNotFound,
			"provider not found: "+name,
			aisageerr.FieldProvider(name),
		)
	}
	return p, nil
}

// SetDefault sets the default "provider/model" reference. Returns an error
// if the provider portion of the ref is not registered.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provName, _ := parseRef(ref)
	if _, ok := r.providers[provName]; !ok {
		return aisageerr.New(
			aisageerr.CodeProviderNotFound,
			"SetDefault: provider not registered: "+provName,
			aisageerr.FieldProvider(provName),
		)
	}
	r.defaultRef = ref
	return nil
}

// Resolve selects a provider and model for the given ref. An empty or
// "default" ref uses the configured default. Explicit refs must use the
// "provider/model" format.
func (r *Registry) Resolve(ctx context.Context, ref string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ref == "" || ref == "default" {
		ref = r.defaultRef
	}
	if ref == "" {
		return nil, "", aisageerr.New(
			aisageerr.CodeProviderNoDefault,
			"no default provider configured",
		)
	}
	if !strings.Contains(ref, "/") {
		return nil, "", aisageerr.Errorf(
			aisageerr.CodeProviderRequestInvalid,
			"model ref %q must use provider/model format", ref,
		)
	}

	providerName, model := parseRef(ref)
	p, ok := r.providers[providerName]
	if !ok {
		return nil, "", aisageerr.New(
			aisageerr.CodeProviderNotFound,
			"provider not found: "+providerName,
			aisageerr.FieldProvider(providerName),
		)
	}

	if !p.Available(ctx) {
		return nil, "", aisageerr.New(
			aisageerr.CodeProviderUpstreamFailure,
			"provider unavailable: "+providerName,
			aisageerr.FieldProvider(providerName),
		)
	}

	return p, model, nil
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return aisageerr.Join(errs...)
	}
	return nil
}

// parseRef splits a "provider/model" reference on the first "/".
func parseRef(ref string) (providerName, model string) {
	idx := strings.Index(ref, "/")
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}
