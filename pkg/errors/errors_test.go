// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := aisageerr.New(aisageerr.CodeGuardInputBlocked, "blocked")
	assert.Equal(t, aisageerr.CodeGuardInputBlocked, aisageerr.CodeOf(err))

	assert.Equal(t, aisageerr.Code(""), aisageerr.CodeOf(nil))
	assert.Equal(t, aisageerr.Code(""), aisageerr.CodeOf(stderrors.New("plain")))
}

func TestWrapPreservesCode(t *testing.T) {
	inner := aisageerr.New(aisageerr.CodeToolFactUnavailable, "no data")
	outer := aisageerr.Wrapf(inner, aisageerr.CodeAgentTurnFailure, "turn %s", "t-1")

	require.Error(t, outer)
	assert.Equal(t, aisageerr.CodeAgentTurnFailure, aisageerr.CodeOf(outer))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, aisageerr.Wrap(nil, aisageerr.CodeAgentTurnFailure, "ignored"))
	assert.NoError(t, aisageerr.Wrapf(nil, aisageerr.CodeAgentTurnFailure, "ignored"))
	assert.NoError(t, aisageerr.With(nil, aisageerr.Field("k", "v")))
}

func TestFieldsOf(t *testing.T) {
	err := aisageerr.New(aisageerr.CodeToolExecuteFailure, "boom",
		aisageerr.FieldTool("get_spending_insights"),
		aisageerr.FieldSessionID("s-1"),
	)

	fields := aisageerr.FieldsOf(err)
	assert.Equal(t, "get_spending_insights", fields["tool"])
	assert.Equal(t, "s-1", fields["session_id"])
}

func TestClassifiers(t *testing.T) {
	assert.True(t, aisageerr.IsNotFound(aisageerr.New(aisageerr.CodeStoreSessionNotFound, "x")))
	assert.True(t, aisageerr.IsInvalidInput(aisageerr.New(aisageerr.CodeToolArgumentsInvalid, "x")))
	assert.True(t, aisageerr.IsTimeout(aisageerr.New(aisageerr.CodeProviderCallTimeout, "x")))
	assert.True(t, aisageerr.IsBudgetExceeded(aisageerr.New(aisageerr.CodeToolBudgetExceeded, "x")))
	assert.True(t, aisageerr.IsUpstreamFailure(aisageerr.New(aisageerr.CodeProviderUpstreamFailure, "x")))
	assert.True(t, aisageerr.IsFactUnavailable(aisageerr.New(aisageerr.CodeToolFactUnavailable, "x")))

	assert.False(t, aisageerr.IsNotFound(nil))
	assert.False(t, aisageerr.IsFactUnavailable(aisageerr.New(aisageerr.CodeToolExecuteFailure, "x")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", aisageerr.New(aisageerr.CodeStoreSessionNotFound, "x"), http.StatusNotFound},
		{"invalid input", aisageerr.New(aisageerr.CodeServerRequestInvalid, "x"), http.StatusBadRequest},
		{"forbidden", aisageerr.New(aisageerr.CodeAgentSessionBoundaryMismatch, "x"), http.StatusForbidden},
		{"budget", aisageerr.New(aisageerr.CodeToolBudgetExceeded, "x"), http.StatusTooManyRequests},
		{"timeout", aisageerr.New(aisageerr.CodeProviderCallTimeout, "x"), http.StatusGatewayTimeout},
		{"upstream", aisageerr.New(aisageerr.CodeProviderUpstreamFailure, "x"), http.StatusBadGateway},
		{"fallback", aisageerr.New(aisageerr.CodeAgentTurnFailure, "x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aisageerr.HTTPStatus(tt.err))
		})
	}
}
