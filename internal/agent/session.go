// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aisage-dev/aisage/internal/store"
)

// SessionManager provides high-level operations on coaching sessions,
// delegating persistence to a store.SessionStore. It also owns the
// per-session turn locks: a session processes one turn at a time.
type SessionManager struct {
	ss store.SessionStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessionManager returns a SessionManager backed by the given store.
func NewSessionManager(ss store.SessionStore) *SessionManager {
	return &SessionManager{
		ss:    ss,
		locks: make(map[string]*sync.Mutex),
	}
}

// Create initialises a new active session for the given customer.
func (m *SessionManager) Create(ctx context.Context, customerID, modelOverride string) (*store.Session, error) {
	now := time.Now()
	session := &store.Session{
		ID:            uuid.New().String(),
		CustomerID:    customerID,
		ModelOverride: modelOverride,
		Status:        store.SessionStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.ss.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Get retrieves a session by ID.
func (m *SessionManager) Get(ctx context.Context, id string) (*store.Session, error) {
	return m.ss.GetSession(ctx, id)
}

// List returns the customer's sessions.
func (m *SessionManager) List(ctx context.Context, customerID string) ([]*store.Session, error) {
	return m.ss.ListSessions(ctx, customerID, store.ListOpts{})
}

// End marks a session as ended and updates its timestamp.
func (m *SessionManager) End(ctx context.Context, id string) error {
	session, err := m.ss.GetSession(ctx, id)
	if err != nil {
		return err
	}

	session.Status = store.SessionStatusEnded
	session.UpdatedAt = time.Now()

	return m.ss.UpdateSession(ctx, session)
}

// AppendMessage persists one message to the session transcript.
func (m *SessionManager) AppendMessage(ctx context.Context, sessionID string, msg *store.Message) error {
	return m.ss.AppendMessage(ctx, sessionID, msg)
}

// GetActiveWindow returns the most recent messages in chronological order.
func (m *SessionManager) GetActiveWindow(ctx context.Context, sessionID string, limit int) ([]*store.Message, error) {
	return m.ss.GetActiveWindow(ctx, sessionID, limit)
}

// Acquire takes the session's turn lock and returns its release func.
// Concurrent turns on the same session serialize here; turns on different
// sessions proceed in parallel.
func (m *SessionManager) Acquire(sessionID string) func() {
	m.mu.Lock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
