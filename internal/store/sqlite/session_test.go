// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aisage-dev/aisage/internal/store"
	"github.com/aisage-dev/aisage/internal/store/sqlite"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_CRUD(t *testing.T) {
	ctx := context.Background()
	db := testDBPath(t, "sessions")
	ss, err := sqlite.NewSessionStore(db)
	require.NoError(t, err)
	defer ss.Close()

	session := &store.Session{
		ID:         "sess-1",
		CustomerID: "cust-1",
		Status:     store.SessionStatusActive,
		CreatedAt:  time.Now().Truncate(time.Millisecond),
		UpdatedAt:  time.Now().Truncate(time.Millisecond),
	}

	// Create
	err = ss.CreateSession(ctx, session)
	require.NoError(t, err)

	// Get
	got, err := ss.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.CustomerID, got.CustomerID)
	assert.Equal(t, store.SessionStatusActive, got.Status)

	// Update
	session.Status = store.SessionStatusEnded
	err = ss.UpdateSession(ctx, session)
	require.NoError(t, err)

	got, err = ss.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, store.SessionStatusEnded, got.Status)

	// List
	sessions, err := ss.ListSessions(ctx, "cust-1", store.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	// Delete
	err = ss.DeleteSession(ctx, "sess-1")
	require.NoError(t, err)

	_, err = ss.GetSession(ctx, "sess-1")
	require.Error(t, err)
	assert.True(t, aisageerr.IsNotFound(err))
}

func TestSessionStore_ActiveWindow(t *testing.T) {
	ctx := context.Background()
	db := testDBPath(t, "sessions-window")
	ss, err := sqlite.NewSessionStore(db)
	require.NoError(t, err)
	defer ss.Close()

	err = ss.CreateSession(ctx, &store.Session{
		ID:         "sess-1",
		CustomerID: "cust-1",
		Status:     store.SessionStatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		msg := &store.Message{
			ID:        fmt.Sprintf("msg-%d", i),
			SessionID: "sess-1",
			Role:      store.MessageRoleUser,
			Content:   fmt.Sprintf("Message %d", i),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		err = ss.AppendMessage(ctx, "sess-1", msg)
		require.NoError(t, err)
	}

	// Last 3 messages, chronological order.
	msgs, err := ss.GetActiveWindow(ctx, "sess-1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg-2", msgs[0].ID)
	assert.Equal(t, "msg-4", msgs[2].ID)
}

func TestSessionStore_MessageMetadata(t *testing.T) {
	ctx := context.Background()
	db := testDBPath(t, "sessions-meta")
	ss, err := sqlite.NewSessionStore(db)
	require.NoError(t, err)
	defer ss.Close()

	require.NoError(t, ss.CreateSession(ctx, &store.Session{
		ID:         "sess-1",
		CustomerID: "cust-1",
		Status:     store.SessionStatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}))

	msg := &store.Message{
		ID:        "msg-1",
		SessionID: "sess-1",
		Role:      store.MessageRoleTool,
		Content:   `{"total":"£450.00"}`,
		ToolName:  "spending_insights",
		CreatedAt: time.Now(),
		Metadata:  map[string]string{"turn_id": "turn-1"},
	}
	require.NoError(t, ss.AppendMessage(ctx, "sess-1", msg))

	msgs, err := ss.GetActiveWindow(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "spending_insights", msgs[0].ToolName)
	assert.Equal(t, "turn-1", msgs[0].Metadata["turn_id"])
}
