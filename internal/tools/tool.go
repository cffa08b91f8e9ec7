// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

// Package tools implements the deterministic fact tools the coaching loop
// exposes to the model. Every monetary figure a tool emits is a canonical
// currency string produced from integer pence; tools never do arithmetic
// in floats and never return a figure they did not compute from customer
// data. The model narrates these facts, it does not create them.
package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aisage-dev/aisage/internal/provider"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// Tool is a deterministic fact producer. Execute parses its own arguments
// from raw JSON; a fact that cannot be computed from the available data
// returns a typed error (CodeToolFactUnavailable), never a guess.
type Tool interface {
	Definition() provider.ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error)
}

// FactBundle is the structured result of one tool execution. Facts must be
// JSON-serialisable; monetary values inside are canonical currency strings.
type FactBundle struct {
	Tool  string
	Facts any
}

// Content serialises the facts for the tool result message.
func (b *FactBundle) Content() (string, error) {
	raw, err := json.Marshal(b.Facts)
	if err != nil {
		return "", aisageerr.Wrapf(err, aisageerr.CodeToolExecuteFailure, "marshalling %s facts", b.Tool)
	}
	return string(raw), nil
}

// Registry is a thread-safe map of tool name to implementation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool under its definition name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Definition().Name] = t
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, aisageerr.New(
			aisageerr.CodeToolNotFound,
			"tool not found: "+name,
			aisageerr.FieldTool(name),
		)
	}
	return t, nil
}

// Definitions returns all registered tool definitions for inclusion in
// ChatRequest.Tools. The returned slice is safe for concurrent use.
func (r *Registry) Definitions() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]provider.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// decodeArgs parses tool arguments, treating empty input as an empty object.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return aisageerr.Wrap(err, aisageerr.CodeToolArgumentsInvalid, "parsing tool arguments")
	}
	return nil
}
