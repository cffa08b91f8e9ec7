// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// Compile-time interface checks.
var (
	_ SessionStore = (*MemorySessionStore)(nil)
	_ AuditStore   = (*MemoryAuditStore)(nil)
)

// MemorySessionStore is an in-memory SessionStore used by tests and the
// single-shot CLI, where persistence across restarts is not needed.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*Message // sessionID -> messages in append order
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
	}
}

func (s *MemorySessionStore) CreateSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return aisageerr.New(
			aisageerr.CodeStoreConflict,
			"session already exists: "+session.ID,
			aisageerr.FieldSessionID(session.ID),
		)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, aisageerr.New(
			aisageerr.CodeStoreSessionNotFound,
			"session not found: "+id,
			aisageerr.FieldSessionID(id),
		)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemorySessionStore) UpdateSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return aisageerr.New(
			aisageerr.CodeStoreSessionNotFound,
			"session not found: "+session.ID,
			aisageerr.FieldSessionID(session.ID),
		)
	}
	cp := *session
	cp.UpdatedAt = time.Now()
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) ListSessions(_ context.Context, customerID string, opts ListOpts) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, sess := range s.sessions {
		if sess.CustomerID == customerID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return paginate(out, opts), nil
}

func (s *MemorySessionStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return aisageerr.New(
			aisageerr.CodeStoreSessionNotFound,
			"session not found: "+id,
			aisageerr.FieldSessionID(id),
		)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *MemorySessionStore) AppendMessage(_ context.Context, sessionID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return aisageerr.New(
			aisageerr.CodeStoreSessionNotFound,
			"session not found: "+sessionID,
			aisageerr.FieldSessionID(sessionID),
		)
	}
	cp := *msg
	cp.SessionID = sessionID
	s.messages[sessionID] = append(s.messages[sessionID], &cp)
	return nil
}

func (s *MemorySessionStore) GetActiveWindow(_ context.Context, sessionID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *MemorySessionStore) Close() error { return nil }

// MemoryAuditStore is an in-memory AuditStore. Append-only.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records []*TurnRecord
}

// NewMemoryAuditStore creates an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) AppendTurn(_ context.Context, rec *TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records = append(s.records, &cp)
	return nil
}

func (s *MemoryAuditStore) QueryTurns(_ context.Context, filter TurnFilter) ([]*TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first, matching the sqlite backend.
	var out []*TurnRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if filter.SessionID != "" && rec.SessionID != filter.SessionID {
			continue
		}
		if filter.CustomerID != "" && rec.CustomerID != filter.CustomerID {
			continue
		}
		if !filter.From.IsZero() && rec.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && rec.CreatedAt.After(filter.To) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}

	opts := ListOpts{Limit: filter.Limit, Offset: filter.Offset}
	return paginate(out, opts), nil
}

func (s *MemoryAuditStore) Close() error { return nil }

// paginate applies Offset/Limit to a slice. A zero Limit means no limit.
func paginate[T any](in []T, opts ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && len(in) > opts.Limit {
		in = in[:opts.Limit]
	}
	return in
}
