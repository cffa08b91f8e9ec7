// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/aisage-dev/aisage/internal/store"
	"github.com/aisage-dev/aisage/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	db := testDBPath(t, "audit")
	as, err := sqlite.NewAuditStore(db)
	require.NoError(t, err)
	defer as.Close()

	rec := &store.TurnRecord{
		ID:           "rec-1",
		SessionID:    "sess-1",
		TurnID:       "turn-1",
		CustomerID:   "cust-1",
		InputVerdict: "pass",
		ToolInvocations: []store.ToolInvocationRecord{
			{Tool: "spending_insights", Arguments: `{"period":"month"}`, Outcome: "ok", DurationMS: 12},
		},
		ModelCalls:       2,
		CertifiedAmounts: []string{"£450.00", "£1250.00"},
		RetryUsed:        true,
		DisclaimerAdded:  true,
		CreatedAt:        time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, as.AppendTurn(ctx, rec))

	got, err := as.QueryTurns(ctx, store.TurnFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pass", got[0].InputVerdict)
	assert.Equal(t, []string{"£450.00", "£1250.00"}, got[0].CertifiedAmounts)
	assert.True(t, got[0].RetryUsed)
	assert.True(t, got[0].DisclaimerAdded)
	require.Len(t, got[0].ToolInvocations, 1)
	assert.Equal(t, "spending_insights", got[0].ToolInvocations[0].Tool)
}

func TestAuditStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	db := testDBPath(t, "audit-filters")
	as, err := sqlite.NewAuditStore(db)
	require.NoError(t, err)
	defer as.Close()

	base := time.Now().Truncate(time.Millisecond)
	for i, sess := range []string{"sess-a", "sess-a", "sess-b"} {
		require.NoError(t, as.AppendTurn(ctx, &store.TurnRecord{
			ID:           "rec-" + sess + string(rune('0'+i)),
			SessionID:    sess,
			TurnID:       "turn-1",
			CustomerID:   "cust-1",
			InputVerdict: "pass",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	bySession, err := as.QueryTurns(ctx, store.TurnFilter{SessionID: "sess-a"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	byCustomer, err := as.QueryTurns(ctx, store.TurnFilter{CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.Len(t, byCustomer, 3)

	limited, err := as.QueryTurns(ctx, store.TurnFilter{CustomerID: "cust-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	since, err := as.QueryTurns(ctx, store.TurnFilter{From: base.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, since, 1)
}
