// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisage-dev/aisage/internal/agent"
	"github.com/aisage-dev/aisage/internal/guard"
	"github.com/aisage-dev/aisage/internal/provider"
	"github.com/aisage-dev/aisage/internal/server"
	"github.com/aisage-dev/aisage/internal/store"
	"github.com/aisage-dev/aisage/internal/tools"
)

// cannedProvider replies with the same narration on every Chat call.
type cannedProvider struct {
	text string
}

func (p *cannedProvider) Name() string                   { return "canned" }
func (p *cannedProvider) Available(context.Context) bool { return true }
func (p *cannedProvider) Close() error                   { return nil }

func (p *cannedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: "test-model"}}, nil
}

func (p *cannedProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Provider: "canned", Available: true}, nil
}

func (p *cannedProvider) Chat(_ context.Context, _ provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, 2)
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: p.text}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	classifier, err := guard.NewClassifier(guard.DefaultRules())
	require.NoError(t, err)

	providers := provider.NewRegistry()
	providers.Register("canned", &cannedProvider{text: "Let's look at your spending together."})
	require.NoError(t, providers.SetDefault("canned/test-model"))

	toolReg := tools.NewRegistry()
	dispatcher, err := agent.NewToolDispatcher(agent.ToolDispatcherConfig{Registry: toolReg})
	require.NoError(t, err)

	sessions := agent.NewSessionManager(store.NewMemorySessionStore())
	audit := store.NewMemoryAuditStore()

	loop := agent.NewLoop(agent.LoopConfig{
		SessionManager: sessions,
		Providers:      providers,
		InputGuard:     guard.NewInputGuard(classifier, nil),
		OutputGuard:    guard.NewOutputGuard(),
		Disclaimer:     guard.NewDisclaimerInjector(nil, ""),
		ToolDispatcher: dispatcher,
		ToolRegistry:   toolReg,
		AuditStore:     audit,
		Escalator:      tools.NewAdviserDesk(),
	})

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{
		Sessions: sessions,
		Loop:     loop,
		Audit:    audit,
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createSession(t *testing.T, handler http.Handler, customerID string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", map[string]string{"customer_id": customerID})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestCreateSession(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/sessions", map[string]string{"customer_id": "cust-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "cust-1", body["customer_id"])
	assert.Equal(t, "active", body["status"])
	assert.NotEmpty(t, body["id"])
}

func TestCreateSessionRequiresCustomerID(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "server.request.invalid", errBody["code"])
}

func TestGetSessionNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	srv := newTestServer(t)
	createSession(t, srv.Handler(), "cust-1")
	createSession(t, srv.Handler(), "cust-1")
	createSession(t, srv.Handler(), "cust-2")

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/sessions?customer_id=cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions, ok := decodeBody(t, rec)["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 2)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/sessions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndSession(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv.Handler(), "cust-1")

	rec := doJSON(t, srv.Handler(), http.MethodPost, fmt.Sprintf("/v1/sessions/%s/end", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ended", decodeBody(t, rec)["status"])

	// Ended sessions refuse further turns.
	rec = doJSON(t, srv.Handler(), http.MethodPost, fmt.Sprintf("/v1/sessions/%s/messages", id),
		map[string]string{"customer_id": "cust-1", "content": "hello"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPostMessage(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv.Handler(), "cust-1")

	rec := doJSON(t, srv.Handler(), http.MethodPost, fmt.Sprintf("/v1/sessions/%s/messages", id),
		map[string]string{"customer_id": "cust-1", "content": "How is my spending looking this month?"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "pass", body["verdict"])
	assert.Contains(t, body["content"], "spending")
	assert.NotEmpty(t, body["turn_id"])
}

func TestPostMessageBlockedInput(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv.Handler(), "cust-1")

	rec := doJSON(t, srv.Handler(), http.MethodPost, fmt.Sprintf("/v1/sessions/%s/messages", id),
		map[string]string{"customer_id": "cust-1", "content": "Who is the prime minister?"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "block", body["verdict"])
	assert.Contains(t, body["content"], "financial coach")
}

func TestPostMessageWrongCustomer(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv.Handler(), "cust-1")

	rec := doJSON(t, srv.Handler(), http.MethodPost, fmt.Sprintf("/v1/sessions/%s/messages", id),
		map[string]string{"customer_id": "cust-2", "content": "hello"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListTurns(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv.Handler(), "cust-1")

	rec := doJSON(t, srv.Handler(), http.MethodPost, fmt.Sprintf("/v1/sessions/%s/messages", id),
		map[string]string{"customer_id": "cust-1", "content": "How can I save more each month?"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, fmt.Sprintf("/v1/sessions/%s/turns", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	turns, ok := decodeBody(t, rec)["turns"].([]any)
	require.True(t, ok)
	require.Len(t, turns, 1)
	turn, ok := turns[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pass", turn["input_verdict"])

	rec = doJSON(t, srv.Handler(), http.MethodGet, fmt.Sprintf("/v1/sessions/%s/turns?limit=bad", id), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
