// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aisage-dev/aisage/internal/store"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// Compile-time interface check.
var _ store.AuditStore = (*AuditStore)(nil)

// AuditStore implements store.AuditStore backed by SQLite. Turn records are
// append-only; slice-valued fields are stored as JSON columns.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore opens (or creates) a SQLite database at dbPath and
// initialises the turns table.
func NewAuditStore(dbPath string) (*AuditStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrateTurns(db); err != nil {
		db.Close()
		return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "migrating sqlite db")
	}

	return &AuditStore{db: db}, nil
}

func migrateTurns(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL,
	turn_id            TEXT NOT NULL,
	customer_id        TEXT NOT NULL,
	input_verdict      TEXT NOT NULL DEFAULT '',
	intent_rule        TEXT NOT NULL DEFAULT '',
	reason_code        TEXT NOT NULL DEFAULT '',
	tool_invocations   TEXT NOT NULL DEFAULT '[]',
	model_calls        INTEGER NOT NULL DEFAULT 0,
	loop_exhausted     INTEGER NOT NULL DEFAULT 0,
	certified_amounts  TEXT NOT NULL DEFAULT '[]',
	ungrounded_amounts TEXT NOT NULL DEFAULT '[]',
	retry_used         INTEGER NOT NULL DEFAULT 0,
	fallback_used      INTEGER NOT NULL DEFAULT 0,
	disclaimer_added   INTEGER NOT NULL DEFAULT 0,
	escalation_id      TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_turns_customer ON turns(customer_id, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

func (s *AuditStore) AppendTurn(ctx context.Context, rec *store.TurnRecord) error {
	invocations, err := json.Marshal(rec.ToolInvocations)
	if err != nil {
		return aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "marshalling tool invocations")
	}
	certified, err := json.Marshal(rec.CertifiedAmounts)
	if err != nil {
		return aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "marshalling certified amounts")
	}
	ungrounded, err := json.Marshal(rec.UngroundedAmounts)
	if err != nil {
		return aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "marshalling ungrounded amounts")
	}

	const q = `INSERT INTO turns (id, session_id, turn_id, customer_id, input_verdict, intent_rule, reason_code,
tool_invocations, model_calls, loop_exhausted, certified_amounts, ungrounded_amounts,
retry_used, fallback_used, disclaimer_added, escalation_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		rec.ID,
		rec.SessionID,
		rec.TurnID,
		rec.CustomerID,
		rec.InputVerdict,
		rec.IntentRule,
		rec.ReasonCode,
		string(invocations),
		rec.ModelCalls,
		boolToInt(rec.LoopExhausted),
		string(certified),
		string(ungrounded),
		boolToInt(rec.RetryUsed),
		boolToInt(rec.FallbackUsed),
		boolToInt(rec.DisclaimerAdded),
		rec.EscalationID,
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return aisageerr.Wrapf(err, aisageerr.CodeStoreDatabaseFailure, "appending turn %s", rec.ID)
	}
	return nil
}

func (s *AuditStore) QueryTurns(ctx context.Context, filter store.TurnFilter) ([]*store.TurnRecord, error) {
	q := `SELECT id, session_id, turn_id, customer_id, input_verdict, intent_rule, reason_code,
tool_invocations, model_calls, loop_exhausted, certified_amounts, ungrounded_amounts,
retry_used, fallback_used, disclaimer_added, escalation_id, created_at
FROM turns WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		q += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.CustomerID != "" {
		q += ` AND customer_id = ?`
		args = append(args, filter.CustomerID)
	}
	if !filter.From.IsZero() {
		q += ` AND created_at >= ?`
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		q += ` AND created_at <= ?`
		args = append(args, formatTime(filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "querying turns")
	}
	defer rows.Close()

	var records []*store.TurnRecord
	for rows.Next() {
		var rec store.TurnRecord
		var invocations, certified, ungrounded, createdAt string
		var loopExhausted, retryUsed, fallbackUsed, disclaimerAdded int
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.TurnID,
			&rec.CustomerID,
			&rec.InputVerdict,
			&rec.IntentRule,
			&rec.ReasonCode,
			&invocations,
			&rec.ModelCalls,
			&loopExhausted,
			&certified,
			&ungrounded,
			&retryUsed,
			&fallbackUsed,
			&disclaimerAdded,
			&rec.EscalationID,
			&createdAt,
		); err != nil {
			return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "scanning turn row")
		}
		if err := json.Unmarshal([]byte(invocations), &rec.ToolInvocations); err != nil {
			return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "unmarshalling tool invocations")
		}
		if err := json.Unmarshal([]byte(certified), &rec.CertifiedAmounts); err != nil {
			return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "unmarshalling certified amounts")
		}
		if err := json.Unmarshal([]byte(ungrounded), &rec.UngroundedAmounts); err != nil {
			return nil, aisageerr.Wrap(err, aisageerr.CodeStoreDatabaseFailure, "unmarshalling ungrounded amounts")
		}
		rec.LoopExhausted = loopExhausted != 0
		rec.RetryUsed = retryUsed != 0
		rec.FallbackUsed = fallbackUsed != 0
		rec.DisclaimerAdded = disclaimerAdded != 0
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
