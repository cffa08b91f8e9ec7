// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package store

import (
	"time"
)

// --- Session types ---

// SessionStatus represents the lifecycle state of a coaching session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// Session represents one customer's coaching conversation.
type Session struct {
	ID            string
	CustomerID    string
	ModelOverride string
	Status        SessionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// --- Message types ---

// MessageRole identifies the sender of a message in a session.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	MessageRoleTool      MessageRole = "tool"
)

// Message represents a single message in a session conversation.
type Message struct {
	ID         string
	SessionID  string
	Role       MessageRole
	Content    string
	ToolCallID string
	ToolName   string
	CreatedAt  time.Time
	Metadata   map[string]string
}

// --- Audit types ---

// TurnRecord is the audit trail for one processed customer turn: the input
// verdict, every tool invocation, the grounding outcome, and the shape of
// the final response. One record per turn, written after the turn resolves.
type TurnRecord struct {
	ID         string
	SessionID  string
	TurnID     string
	CustomerID string

	// Input guard outcome.
	InputVerdict  string
	IntentRule    string
	ReasonCode    string

	// Tool loop outcome.
	ToolInvocations []ToolInvocationRecord
	ModelCalls      int
	LoopExhausted   bool

	// Grounding outcome.
	CertifiedAmounts  []string
	UngroundedAmounts []string
	RetryUsed         bool
	FallbackUsed      bool

	DisclaimerAdded bool
	EscalationID    string
	CreatedAt       time.Time
}

// ToolInvocationRecord captures one tool execution inside a turn.
type ToolInvocationRecord struct {
	Tool       string
	Arguments  string // JSON as received from the model
	Outcome    string // "ok" or an error code
	DurationMS int64
}

// TurnFilter specifies criteria for querying turn records.
type TurnFilter struct {
	SessionID  string
	CustomerID string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// --- Query options ---

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}
