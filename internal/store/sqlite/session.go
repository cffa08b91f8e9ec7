// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

// Package sqlite provides SQLite-backed implementations of the store
// interfaces. The schema is created on open; there is no separate
// migration tooling.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aisage-dev/aisage/internal/store"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// Compile-time interface check.
var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore backed by SQLite.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore opens (or creates) a SQLite database at dbPath and
// initialises the sessions and messages tables.
func NewSessionStore(dbPath string) (*SessionStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrateSessions(db); err != nil {
		db.Close()
		return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "migrating sqlite db")
	}

	return &SessionStore{db: db}, nil
}

func migrateSessions(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	customer_id    TEXT NOT NULL,
	model_override TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_customer ON sessions(customer_id);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	tool_call_id TEXT NOT NULL DEFAULT '',
	tool_name    TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) CreateSession(ctx context.Context, session *store.Session) error {
	const q = `INSERT INTO sessions (id, customer_id, model_override, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		session.ID,
		session.CustomerID,
		session.ModelOverride,
		string(session.Status),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "creating session %s", session.ID)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `SELECT id, customer_id, model_override, status, created_at, updated_at
FROM sessions WHERE id = ?`

	var sess store.Session
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&sess.ID,
		&sess.CustomerID,
		&sess.ModelOverride,
		&sess.Status,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, aisageerr.New(
			aisageerr.CodeStoreSessionNotFound,
			"session not found: "+id,
			aisageerr.FieldSessionID(id),
		)
	}
	if err != nil {
		return nil, aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "getting session %s", id)
	}

	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)

	return &sess, nil
}

func (s *SessionStore) UpdateSession(ctx context.Context, session *store.Session) error {
	const q = `UPDATE sessions SET customer_id = ?, model_override = ?, status = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		session.CustomerID,
		session.ModelOverride,
		string(session.Status),
		formatTime(time.Now()),
		session.ID,
	)
	if err != nil {
		return aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "updating session %s", session.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "checking rows affected for session %s", session.ID)
	}
	if rows == 0 {
		return aisageerr.New(
			aisageerr.CodeStoreSessionNotFound,
			"session not found: "+session.ID,
			aisageerr.FieldSessionID(session.ID),
		)
	}
	return nil
}

func (s *SessionStore) ListSessions(ctx context.Context, customerID string, opts store.ListOpts) ([]*store.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT id, customer_id, model_override, status, created_at, updated_at
FROM sessions WHERE customer_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, customerID, limit, opts.Offset)
	if err != nil {
		return nil, aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "listing sessions for customer %s", customerID)
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		var sess store.Session
		var createdAt, updatedAt string
		if err := rows.Scan(
			&sess.ID,
			&sess.CustomerID,
			&sess.ModelOverride,
			&sess.Status,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "scanning session row")
		}
		sess.CreatedAt = parseTime(createdAt)
		sess.UpdatedAt = parseTime(updatedAt)
		sessions = append(sessions, &sess)
	}

	return sessions, rows.Err()
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "deleting session %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "checking rows affected for session %s", id)
	}
	if rows == 0 {
		return aisageerr.New(
			aisageerr.CodeStoreSessionNotFound,
			"session not found: "+id,
			aisageerr.FieldSessionID(id),
		)
	}
	return nil
}

func (s *SessionStore) AppendMessage(ctx context.Context, sessionID string, msg *store.Message) error {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return aisageerr.Wrap(err, aisageerr.CodeStoreMessageInvalid, "marshalling message metadata")
	}

	const q = `INSERT INTO messages (id, session_id, role, content, tool_call_id, tool_name, created_at, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		msg.ID,
		sessionID,
		string(msg.Role),
		msg.Content,
		msg.ToolCallID,
		msg.ToolName,
		formatTime(msg.CreatedAt),
		string(metadata),
	)
	if err != nil {
		return aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "appending message %s to session %s", msg.ID, sessionID)
	}
	return nil
}

func (s *SessionStore) GetActiveWindow(ctx context.Context, sessionID string, limit int) ([]*store.Message, error) {
	// Sub-select the N most recent, then re-order chronologically.
	const q = `SELECT id, session_id, role, content, tool_call_id, tool_name, created_at, metadata
FROM (
	SELECT id, session_id, role, content, tool_call_id, tool_name, created_at, metadata
	FROM messages WHERE session_id = ?
	ORDER BY created_at DESC LIMIT ?
) ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "getting active window for session %s", sessionID)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		var msg store.Message
		var createdAt, metaJSON string
		if err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Content,
			&msg.ToolCallID,
			&msg.ToolName,
			&createdAt,
			&metaJSON,
		); err != nil {
			return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "scanning message row")
		}
		msg.CreatedAt = parseTime(createdAt)
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &msg.Metadata); err != nil {
				return nil, aisageerr.Wrap(err, aisageerr.CodeStoreMessageInvalid, "unmarshalling message metadata")
			}
		}
		msgs = append(msgs, &msg)
	}

	return msgs, rows.Err()
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
