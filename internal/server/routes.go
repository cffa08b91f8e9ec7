// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aisage-dev/aisage/internal/agent"
	"github.com/aisage-dev/aisage/internal/store"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

const maxRequestBody = 64 * 1024

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/end", s.handleEndSession)
		r.Post("/sessions/{id}/messages", s.handlePostMessage)
		r.Get("/sessions/{id}/turns", s.handleListTurns)
	})
}

// --- Views ---

type sessionView struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Model      string    `json:"model,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toSessionView(sess *store.Session) sessionView {
	return sessionView{
		ID:         sess.ID,
		CustomerID: sess.CustomerID,
		Model:      sess.ModelOverride,
		Status:     string(sess.Status),
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
	}
}

type usageView struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type turnReply struct {
	SessionID    string     `json:"session_id"`
	TurnID       string     `json:"turn_id"`
	Content      string     `json:"content"`
	Verdict      string     `json:"verdict"`
	EscalationID string     `json:"escalation_id,omitempty"`
	FallbackUsed bool       `json:"fallback_used"`
	Usage        *usageView `json:"usage,omitempty"`
}

type toolInvocationView struct {
	Tool       string `json:"tool"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
}

type turnRecordView struct {
	TurnID            string               `json:"turn_id"`
	InputVerdict      string               `json:"input_verdict"`
	IntentRule        string               `json:"intent_rule,omitempty"`
	ReasonCode        string               `json:"reason_code,omitempty"`
	ToolInvocations   []toolInvocationView `json:"tool_invocations,omitempty"`
	ModelCalls        int                  `json:"model_calls"`
	LoopExhausted     bool                 `json:"loop_exhausted"`
	CertifiedAmounts  []string             `json:"certified_amounts,omitempty"`
	UngroundedAmounts []string             `json:"ungrounded_amounts,omitempty"`
	RetryUsed         bool                 `json:"retry_used"`
	FallbackUsed      bool                 `json:"fallback_used"`
	DisclaimerAdded   bool                 `json:"disclaimer_added"`
	EscalationID      string               `json:"escalation_id,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

func toTurnRecordView(rec *store.TurnRecord) turnRecordView {
	view := turnRecordView{
		TurnID:            rec.TurnID,
		InputVerdict:      rec.InputVerdict,
		IntentRule:        rec.IntentRule,
		ReasonCode:        rec.ReasonCode,
		ModelCalls:        rec.ModelCalls,
		LoopExhausted:     rec.LoopExhausted,
		CertifiedAmounts:  rec.CertifiedAmounts,
		UngroundedAmounts: rec.UngroundedAmounts,
		RetryUsed:         rec.RetryUsed,
		FallbackUsed:      rec.FallbackUsed,
		DisclaimerAdded:   rec.DisclaimerAdded,
		EscalationID:      rec.EscalationID,
		CreatedAt:         rec.CreatedAt,
	}
	for _, inv := range rec.ToolInvocations {
		view.ToolInvocations = append(view.ToolInvocations, toolInvocationView{
			Tool:       inv.Tool,
			Outcome:    inv.Outcome,
			DurationMS: inv.DurationMS,
		})
	}
	return view
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	CustomerID string `json:"customer_id"`
	Model      string `json:"model"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.CustomerID == "" {
		s.writeError(w, aisageerr.New(aisageerr.CodeServerRequestInvalid, "customer_id is required"))
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.CustomerID, req.Model)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toSessionView(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionView(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		s.writeError(w, aisageerr.New(aisageerr.CodeServerRequestInvalid, "customer_id query parameter is required"))
		return
	}

	list, err := s.sessions.List(r.Context(), customerID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]sessionView, 0, len(list))
	for _, sess := range list {
		views = append(views, toSessionView(sess))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.End(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "ended"})
}

type postMessageRequest struct {
	CustomerID string `json:"customer_id"`
	Content    string `json:"content"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	out, err := s.loop.ProcessMessage(r.Context(), agent.InboundMessage{
		SessionID:  chi.URLParam(r, "id"),
		CustomerID: req.CustomerID,
		Content:    req.Content,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	reply := turnReply{
		SessionID:    out.SessionID,
		TurnID:       out.TurnID,
		Content:      out.Content,
		Verdict:      string(out.Verdict),
		EscalationID: out.EscalationID,
		FallbackUsed: out.FallbackUsed,
	}
	if out.Usage != nil {
		reply.Usage = &usageView{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
		}
	}
	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	filter := store.TurnFilter{SessionID: chi.URLParam(r, "id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, aisageerr.New(aisageerr.CodeServerRequestInvalid, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	records, err := s.audit.QueryTurns(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]turnRecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, toTurnRecordView(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"turns": views})
}

// --- Helpers ---

func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return aisageerr.Wrap(err, aisageerr.CodeServerRequestInvalid, "decoding request body")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := aisageerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: errorBody{
		Code:    string(aisageerr.CodeOf(err)),
		Message: err.Error(),
	}})
}
