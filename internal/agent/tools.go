// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/aisage-dev/aisage/internal/tools"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// ToolCallRequest represents one tool invocation requested by the model.
type ToolCallRequest struct {
	ToolName   string
	Arguments  string // JSON
	SessionID  string
	CustomerID string
	TurnID     string // budget scoping key
}

// ToolResult holds the serialised facts from a tool execution.
type ToolResult struct {
	Content    string
	DurationMS int64
}

// ToolDispatcherConfig holds dependencies for ToolDispatcher.
type ToolDispatcherConfig struct {
	Registry       *tools.Registry
	Logger         *slog.Logger
	DefaultTimeout time.Duration
}

// turnBudget tracks call count for a single turn.
type turnBudget struct {
	count atomic.Int64
}

// ToolDispatcher dispatches tool calls with per-turn budgets and timeouts.
// Budgets are keyed by TurnID so concurrent turns never share a counter.
type ToolDispatcher struct {
	registry       *tools.Registry
	logger         *slog.Logger
	defaultTimeout time.Duration

	// turnBudgets tracks per-turn call counts keyed by TurnID.
	turnBudgets sync.Map // map[string]*turnBudget
}

// NewToolDispatcher creates a ToolDispatcher with the given configuration.
func NewToolDispatcher(cfg ToolDispatcherConfig) (*ToolDispatcher, error) {
	if cfg.Registry == nil {
		return nil, aisageerr.New(aisageerr.CodeAgentTurnInvalidInput, "Registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ToolDispatcher{
		registry:       cfg.Registry,
		logger:         logger,
		defaultTimeout: cfg.DefaultTimeout,
	}, nil
}

// ClearTurn removes the budget entry for the given turn ID, freeing memory.
// Call this after a turn completes.
func (d *ToolDispatcher) ClearTurn(turnID string) {
	d.turnBudgets.Delete(turnID)
}

// Execute dispatches a single tool call with timeout and logging.
func (d *ToolDispatcher) Execute(ctx context.Context, req ToolCallRequest) (*ToolResult, error) {
	tool, err := d.registry.Get(req.ToolName)
	if err != nil {
		d.logToolExecution(req, "unknown_tool", 0)
		return nil, err
	}

	// The session owner is authoritative. A model-supplied customer_id is
	// always overwritten so tools never read another customer's facts.
	req.Arguments = stampCustomerID(req.Arguments, req.CustomerID)

	execCtx := ctx
	if d.defaultTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, d.defaultTimeout)
		defer cancel()
	}

	started := time.Now()
	bundle, err := tool.Execute(execCtx, []byte(req.Arguments))
	elapsed := time.Since(started).Milliseconds()
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			d.logToolExecution(req, "timeout", elapsed)
			return nil, aisageerr.Wrapf(err, aisageerr.CodeToolTimeout, "tool %q execution timeout", req.ToolName)
		}
		d.logToolExecution(req, "error", elapsed)
		return nil, err
	}

	content, err := bundle.Content()
	if err != nil {
		d.logToolExecution(req, "error", elapsed)
		return nil, err
	}

	d.logToolExecution(req, "ok", elapsed)

	return &ToolResult{
		Content:    content,
		DurationMS: elapsed,
	}, nil
}

// ExecuteForTurn wraps Execute with per-turn budget tracking. Each unique
// TurnID gets its own independent budget counter.
func (d *ToolDispatcher) ExecuteForTurn(ctx context.Context, req ToolCallRequest, maxCalls int) (*ToolResult, error) {
	if req.TurnID == "" {
		return nil, aisageerr.New(
			aisageerr.CodeAgentTurnInvalidInput,
			"TurnID is required for budget tracking",
		)
	}

	// LoadOrStore guarantees the value is *turnBudget because we only ever
	// store values of that type.
	budget, _ := d.turnBudgets.LoadOrStore(req.TurnID, &turnBudget{})
	tb := budget.(*turnBudget)

	count := tb.count.Add(1)
	if int(count) > maxCalls {
		return nil, aisageerr.New(
			aisageerr.CodeToolBudgetExceeded,
			"tool call budget exceeded",
			aisageerr.FieldTool(req.ToolName),
			aisageerr.FieldSessionID(req.SessionID),
		)
	}

	return d.Execute(ctx, req)
}

// stampCustomerID overwrites the customer_id argument with the session
// owner's ID. Malformed argument JSON passes through untouched so the tool
// reports the validation failure itself.
func stampCustomerID(arguments, customerID string) string {
	if customerID == "" {
		return arguments
	}
	if arguments == "" {
		arguments = "{}"
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return arguments
	}
	args["customer_id"] = customerID

	stamped, err := json.Marshal(args)
	if err != nil {
		return arguments
	}
	return string(stamped)
}

// logToolExecution records one dispatch outcome. Arguments are truncated to
// bound log size; the walk back finds a valid UTF-8 rune boundary.
func (d *ToolDispatcher) logToolExecution(req ToolCallRequest, result string, durationMS int64) {
	const maxArgLen = 1024
	args := req.Arguments
	if len(args) > maxArgLen {
		i := maxArgLen
		for i > 0 && !utf8.RuneStart(args[i]) {
			i--
		}
		args = args[:i]
	}

	d.logger.Info("tool dispatched",
		slog.String("tool", req.ToolName),
		slog.String("session_id", req.SessionID),
		slog.String("turn_id", req.TurnID),
		slog.String("result", result),
		slog.Int64("duration_ms", durationMS),
		slog.String("arguments", args),
	)
}
