// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

// Package store defines the persistence interfaces for coaching sessions,
// their message history, and the per-turn audit trail.
package store

import "context"

// SessionStore manages coaching sessions and the active message window.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, customerID string, opts ListOpts) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Active message window (last N messages in LLM context).
	AppendMessage(ctx context.Context, sessionID string, msg *Message) error
	GetActiveWindow(ctx context.Context, sessionID string, limit int) ([]*Message, error)

	Close() error
}

// AuditStore persists the per-turn audit trail. Records are append-only.
type AuditStore interface {
	AppendTurn(ctx context.Context, rec *TurnRecord) error
	QueryTurns(ctx context.Context, filter TurnFilter) ([]*TurnRecord, error)
	Close() error
}
