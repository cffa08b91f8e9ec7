// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aisage-dev/aisage/internal/store"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore_CRUD(t *testing.T) {
	ctx := context.Background()
	ss := store.NewMemorySessionStore()

	session := &store.Session{
		ID:         "sess-1",
		CustomerID: "cust-1",
		Status:     store.SessionStatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, ss.CreateSession(ctx, session))

	err := ss.CreateSession(ctx, session)
	require.Error(t, err)
	assert.True(t, aisageerr.IsConflict(err))

	got, err := ss.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CustomerID)

	session.Status = store.SessionStatusEnded
	require.NoError(t, ss.UpdateSession(ctx, session))
	got, err = ss.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, store.SessionStatusEnded, got.Status)

	require.NoError(t, ss.DeleteSession(ctx, "sess-1"))
	_, err = ss.GetSession(ctx, "sess-1")
	require.Error(t, err)
	assert.True(t, aisageerr.IsNotFound(err))
}

func TestMemorySessionStore_ActiveWindow(t *testing.T) {
	ctx := context.Background()
	ss := store.NewMemorySessionStore()

	require.NoError(t, ss.CreateSession(ctx, &store.Session{
		ID:         "sess-1",
		CustomerID: "cust-1",
		Status:     store.SessionStatusActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, ss.AppendMessage(ctx, "sess-1", &store.Message{
			ID:      fmt.Sprintf("msg-%d", i),
			Role:    store.MessageRoleUser,
			Content: fmt.Sprintf("Message %d", i),
		}))
	}

	msgs, err := ss.GetActiveWindow(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg-3", msgs[0].ID)
	assert.Equal(t, "msg-4", msgs[1].ID)

	err = ss.AppendMessage(ctx, "absent", &store.Message{ID: "m"})
	require.Error(t, err)
	assert.True(t, aisageerr.IsNotFound(err))
}

func TestMemoryAuditStore_Query(t *testing.T) {
	ctx := context.Background()
	as := store.NewMemoryAuditStore()

	for i, sess := range []string{"sess-a", "sess-b", "sess-a"} {
		require.NoError(t, as.AppendTurn(ctx, &store.TurnRecord{
			ID:        fmt.Sprintf("rec-%d", i),
			SessionID: sess,
			CreatedAt: time.Now(),
		}))
	}

	got, err := as.QueryTurns(ctx, store.TurnFilter{SessionID: "sess-a"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	limited, err := as.QueryTurns(ctx, store.TurnFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
