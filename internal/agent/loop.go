// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

// Package agent wires the guard chain, the grounding ledger and the bounded
// tool loop into the per-turn processing pipeline.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aisage-dev/aisage/internal/grounding"
	"github.com/aisage-dev/aisage/internal/guard"
	"github.com/aisage-dev/aisage/internal/provider"
	"github.com/aisage-dev/aisage/internal/store"
	toolspkg "github.com/aisage-dev/aisage/internal/tools"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// defaultMaxToolCallsPerTurn caps tool dispatches in a single turn when
// MaxToolCallsPerTurn is not configured.
const defaultMaxToolCallsPerTurn = 10

// maxToolLoopIterations is the maximum number of tool-loop iterations
// (LLM call → tool dispatch → re-call) before the loop is terminated.
const maxToolLoopIterations = 5

// defaultActiveWindowSize is how many recent messages are replayed to the
// model when ActiveWindow is not configured.
const defaultActiveWindowSize = 50

// defaultModelCallTimeout bounds a single provider chat call when
// ModelCallTimeout is not configured.
const defaultModelCallTimeout = 60 * time.Second

// DefaultSystemPrompt is the coaching persona and grounding contract sent
// on every turn.
const DefaultSystemPrompt = "You are Sage, a supportive UK financial coaching assistant. " +
	"You help customers understand their spending, savings and financial options using their " +
	"real transaction data, which you access through tools. Every monetary figure you state " +
	"must come verbatim from a tool result in this conversation; never invent or estimate " +
	"pound amounts. You provide guidance and education, not regulated financial advice. " +
	"Keep answers warm, plain-spoken and specific to the customer's data."

// InboundMessage is the input to one turn.
type InboundMessage struct {
	SessionID  string
	CustomerID string
	Content    string
}

// OutboundMessage is the result of one turn.
type OutboundMessage struct {
	SessionID string
	TurnID    string
	Content   string
	Usage     *provider.Usage

	// Verdict is the input-guard outcome for the turn.
	Verdict guard.Verdict
	// EscalationID is set when the turn filed an adviser handoff.
	EscalationID string
	// FallbackUsed marks that the safe fallback replaced model narration.
	FallbackUsed bool
}

// LoopConfig holds dependencies for the Loop.
type LoopConfig struct {
	SessionManager *SessionManager
	Providers      *provider.Registry
	InputGuard     *guard.InputGuard
	OutputGuard    *guard.OutputGuard
	Disclaimer     *guard.DisclaimerInjector
	ToolDispatcher *ToolDispatcher
	ToolRegistry   *toolspkg.Registry
	AuditStore     store.AuditStore
	Escalator      toolspkg.Escalator
	Logger         *slog.Logger

	SystemPrompt        string
	MaxToolCallsPerTurn int
	ActiveWindow        int
	ModelCallTimeout    time.Duration
}

// Loop is the per-turn processing pipeline: admission guard, bounded tool
// loop with ledger certification, output guard with one corrective retry,
// disclaimer injection, audit.
type Loop struct {
	sessions            *SessionManager
	providers           *provider.Registry
	inputGuard          *guard.InputGuard
	outputGuard         *guard.OutputGuard
	disclaimer          *guard.DisclaimerInjector
	dispatcher          *ToolDispatcher
	toolRegistry        *toolspkg.Registry
	auditStore          store.AuditStore
	escalator           toolspkg.Escalator
	logger              *slog.Logger
	systemPrompt        string
	maxToolCallsPerTurn int
	activeWindow        int
	modelCallTimeout    time.Duration
}

// NewLoop creates a Loop with the given dependencies.
func NewLoop(cfg LoopConfig) *Loop {
	maxCalls := cfg.MaxToolCallsPerTurn
	if maxCalls <= 0 {
		maxCalls = defaultMaxToolCallsPerTurn
	}
	window := cfg.ActiveWindow
	if window <= 0 {
		window = defaultActiveWindowSize
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	callTimeout := cfg.ModelCallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultModelCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		sessions:            cfg.SessionManager,
		providers:           cfg.Providers,
		inputGuard:          cfg.InputGuard,
		outputGuard:         cfg.OutputGuard,
		disclaimer:          cfg.Disclaimer,
		dispatcher:          cfg.ToolDispatcher,
		toolRegistry:        cfg.ToolRegistry,
		auditStore:          cfg.AuditStore,
		escalator:           cfg.Escalator,
		logger:              logger,
		systemPrompt:        prompt,
		maxToolCallsPerTurn: maxCalls,
		activeWindow:        window,
		modelCallTimeout:    callTimeout,
	}
}

// turnState accumulates everything one turn produces. It is created per
// turn and discarded with it, so a cancelled turn can never leak certified
// amounts into the next one.
type turnState struct {
	id          string
	ledger      *grounding.Ledger
	invocations []store.ToolInvocationRecord
	toolOutputs []string
	ungrounded  []string
	modelCalls  int
	usage       *provider.Usage

	loopExhausted bool
	retryUsed     bool
	fallbackUsed  bool
}

func newTurnState() *turnState {
	return &turnState{
		id:     uuid.New().String(),
		ledger: grounding.NewLedger(),
	}
}

// addUsage accumulates token counts across the turn's model calls.
func (t *turnState) addUsage(u *provider.Usage) {
	if t.usage == nil {
		t.usage = &provider.Usage{}
	}
	t.usage.InputTokens += u.InputTokens
	t.usage.OutputTokens += u.OutputTokens
	t.usage.CacheReadTokens += u.CacheReadTokens
	t.usage.CacheWriteTokens += u.CacheWriteTokens
}

// ProcessMessage executes one turn end to end. Every path through it,
// including refusals, persists the transcript and appends a TurnRecord.
func (l *Loop) ProcessMessage(ctx context.Context, msg InboundMessage) (*OutboundMessage, error) {
	if err := l.validateInput(msg); err != nil {
		return nil, err
	}

	unlock := l.sessions.Acquire(msg.SessionID)
	defer unlock()

	session, err := l.sessions.Get(ctx, msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := l.validateSessionBoundary(session, msg); err != nil {
		return nil, err
	}
	if err := l.validateSessionStatus(session); err != nil {
		return nil, err
	}

	turn := newTurnState()
	defer l.dispatcher.ClearTurn(turn.id)

	// Admission: classify before any model call.
	decision := l.inputGuard.Admit(msg.Content)
	if decision.Verdict != guard.VerdictPass {
		return l.refuse(ctx, msg, turn, decision)
	}

	messages, err := l.prepare(ctx, msg)
	if err != nil {
		return nil, aisageerr.Wrapf(err, aisageerr.CodeAgentTurnFailure, "prepare: session %s", msg.SessionID)
	}

	text, err := l.converse(ctx, msg, session, turn, messages)
	if err != nil {
		return nil, err
	}

	final := l.disclaimer.Inject(text, turn.toolOutputs...)
	disclaimerAdded := final != text

	out, err := l.respond(ctx, msg.SessionID, turn, final)
	if err != nil {
		return nil, aisageerr.Wrapf(err, aisageerr.CodeAgentTurnFailure, "respond: session %s", msg.SessionID)
	}
	out.Verdict = decision.Verdict

	l.audit(ctx, msg, turn, decision, disclaimerAdded, "")

	return out, nil
}

func (l *Loop) validateInput(msg InboundMessage) error {
	var missing []string
	if msg.SessionID == "" {
		missing = append(missing, "SessionID")
	}
	if msg.CustomerID == "" {
		missing = append(missing, "CustomerID")
	}
	if strings.TrimSpace(msg.Content) == "" {
		missing = append(missing, "Content")
	}

	if len(missing) > 0 {
		return aisageerr.New(
			aisageerr.CodeAgentTurnInvalidInput,
			"missing required fields: "+strings.Join(missing, ", "),
			aisageerr.FieldSessionID(msg.SessionID),
			aisageerr.FieldCustomerID(msg.CustomerID),
		)
	}
	return nil
}

// validateSessionBoundary ensures the loaded session belongs to the
// customer named in the inbound message. This MUST hold before any store
// writes so one customer can never write into another's transcript.
func (l *Loop) validateSessionBoundary(session *store.Session, msg InboundMessage) error {
	if session.CustomerID != msg.CustomerID {
		return aisageerr.New(
			aisageerr.CodeAgentSessionBoundaryMismatch,
			"session does not belong to this customer",
			aisageerr.FieldSessionID(session.ID),
			aisageerr.FieldCustomerID(msg.CustomerID),
		)
	}
	return nil
}

func (l *Loop) validateSessionStatus(session *store.Session) error {
	if session.Status != store.SessionStatusActive {
		return aisageerr.New(
			aisageerr.CodeAgentSessionInactive,
			"session is "+string(session.Status)+", only active sessions accept messages",
			aisageerr.FieldSessionID(session.ID),
		)
	}
	return nil
}

// refuse handles BLOCK and REDIRECT verdicts: persist the exchange, file
// the escalation if the decision calls for one, audit, and return the
// pre-approved response. No model call is made on this path.
func (l *Loop) refuse(ctx context.Context, msg InboundMessage, turn *turnState, decision guard.Decision) (*OutboundMessage, error) {
	if err := l.persistExchange(ctx, msg, decision.Response); err != nil {
		return nil, aisageerr.Wrapf(err, aisageerr.CodeAgentTurnFailure, "persisting refusal: session %s", msg.SessionID)
	}

	var escalationID string
	if decision.Escalate && l.escalator != nil {
		id, err := l.escalator.Escalate(ctx, decision.ReasonCode, toolspkg.HandoffContext{
			SessionID:  msg.SessionID,
			CustomerID: msg.CustomerID,
			Summary:    "Input guard redirect: " + decision.Reason,
		})
		if err != nil {
			// The customer still gets the signpost; the missed handoff is
			// logged for follow-up.
			l.logger.Error("escalation failed",
				slog.Any("error", err),
				slog.String("session_id", msg.SessionID),
				slog.String("reason_code", decision.ReasonCode))
		} else {
			escalationID = id
		}
	}

	l.audit(ctx, msg, turn, decision, false, escalationID)

	return &OutboundMessage{
		SessionID:    msg.SessionID,
		TurnID:       turn.id,
		Content:      decision.Response,
		Verdict:      decision.Verdict,
		EscalationID: escalationID,
	}, nil
}

// persistExchange appends the user message and a canned assistant reply.
func (l *Loop) persistExchange(ctx context.Context, msg InboundMessage, response string) error {
	now := time.Now()
	userMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: msg.SessionID,
		Role:      store.MessageRoleUser,
		Content:   msg.Content,
		CreatedAt: now,
	}
	if err := l.sessions.AppendMessage(ctx, msg.SessionID, userMsg); err != nil {
		return err
	}
	assistantMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: msg.SessionID,
		Role:      store.MessageRoleAssistant,
		Content:   response,
		CreatedAt: now,
	}
	return l.sessions.AppendMessage(ctx, msg.SessionID, assistantMsg)
}

// prepare appends the user message and builds the model message array:
// system prompt, then the active window (which includes the message just
// appended).
func (l *Loop) prepare(ctx context.Context, msg InboundMessage) ([]provider.Message, error) {
	userMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: msg.SessionID,
		Role:      store.MessageRoleUser,
		Content:   msg.Content,
		CreatedAt: time.Now(),
	}
	if err := l.sessions.AppendMessage(ctx, msg.SessionID, userMsg); err != nil {
		return nil, err
	}

	history, err := l.sessions.GetActiveWindow(ctx, msg.SessionID, l.activeWindow)
	if err != nil {
		return nil, err
	}

	messages := []provider.Message{
		{Role: provider.MessageRoleSystem, Content: l.systemPrompt},
	}
	for _, m := range history {
		messages = append(messages, provider.Message{
			Role:       provider.MessageRole(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		})
	}

	return messages, nil
}

// converse runs the bounded tool loop and the output guard. The returned
// narration has passed verification, or is the safe fallback.
func (l *Loop) converse(ctx context.Context, msg InboundMessage, session *store.Session, turn *turnState, messages []provider.Message) (string, error) {
	// A life-event mention gets a deterministic scan before the first model
	// call, so detected events read as observed facts, not hypotheticals.
	if l.shouldScanLifeEvents(msg.Content) {
		// The dispatcher stamps the session owner's customer_id into the
		// arguments, so the synthetic call needs none of its own.
		var err error
		messages, err = l.dispatchToolCalls(ctx, msg, turn, messages, "", []*provider.ToolCall{{
			ID:        uuid.New().String(),
			Name:      toolspkg.LifeEventToolName,
			Arguments: `{}`,
		}})
		if err != nil {
			return "", err
		}
	}

	text, toolCalls, err := l.callModel(ctx, session, turn, messages)
	if err != nil {
		return "", err
	}

	// Inner tool loop: dispatch, certify, re-call.
	iteration := 0
	for len(toolCalls) > 0 {
		if iteration >= maxToolLoopIterations {
			// The model is still asking for tools after the final
			// iteration; answer with the fallback rather than loop on.
			turn.loopExhausted = true
			turn.fallbackUsed = true
			l.logger.Warn("tool loop exhausted",
				slog.String("session_id", msg.SessionID),
				slog.String("turn_id", turn.id),
				slog.Int("iterations", iteration))
			return guard.SafeFallbackResponse, nil
		}
		iteration++

		messages, err = l.dispatchToolCalls(ctx, msg, turn, messages, text, toolCalls)
		if err != nil {
			return "", err
		}

		text, toolCalls, err = l.callModel(ctx, session, turn, messages)
		if err != nil {
			return "", err
		}
	}

	return l.verify(ctx, msg, session, turn, messages, text)
}

// callModel resolves the session's provider, runs one chat call bounded by
// the model-call timeout and drains the event stream.
func (l *Loop) callModel(ctx context.Context, session *store.Session, turn *turnState, messages []provider.Message) (string, []*provider.ToolCall, error) {
	prov, model, err := l.providers.Resolve(ctx, session.ModelOverride)
	if err != nil {
		return "", nil, err
	}

	req := provider.ChatRequest{
		Model:        model,
		Messages:     messages,
		Tools:        l.toolRegistry.Definitions(),
		SystemPrompt: l.systemPrompt,
	}

	callCtx, cancel := context.WithTimeout(ctx, l.modelCallTimeout)
	defer cancel()

	eventCh, err := prov.Chat(callCtx, req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", nil, aisageerr.Wrapf(err, aisageerr.CodeProviderCallTimeout, "chat call to %s timed out after %s", prov.Name(), l.modelCallTimeout)
		}
		return "", nil, aisageerr.Wrapf(err, aisageerr.CodeProviderUpstreamFailure, "chat call to %s", prov.Name())
	}
	turn.modelCalls++

	var buf strings.Builder
	var toolCalls []*provider.ToolCall
	var streamErr error
	for ev := range eventCh {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			buf.WriteString(ev.Text)
		case provider.EventTypeToolCall:
			if ev.ToolCall != nil {
				toolCalls = append(toolCalls, ev.ToolCall)
			}
		case provider.EventTypeUsage:
			if ev.Usage != nil {
				turn.addUsage(ev.Usage)
			}
		case provider.EventTypeError:
			// Partial text is discarded when the stream fails.
			streamErr = aisageerr.New(aisageerr.CodeProviderUpstreamFailure, ev.Error)
		}
	}
	if streamErr != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", nil, aisageerr.Wrap(streamErr, aisageerr.CodeProviderCallTimeout, "chat call to "+prov.Name()+" timed out")
		}
		return "", nil, streamErr
	}

	return buf.String(), toolCalls, nil
}

// shouldScanLifeEvents reports whether the inbound text names a life change
// and the scanner tool is registered.
func (l *Loop) shouldScanLifeEvents(content string) bool {
	if _, err := l.toolRegistry.Get(toolspkg.LifeEventToolName); err != nil {
		return false
	}
	return toolspkg.LifeEventTriggers.MatchString(content)
}

// dispatchToolCalls executes each requested tool, certifies the result
// into the turn ledger and appends the exchange to the message history.
func (l *Loop) dispatchToolCalls(ctx context.Context, msg InboundMessage, turn *turnState, messages []provider.Message, text string, toolCalls []*provider.ToolCall) ([]provider.Message, error) {
	// Interim narration emitted alongside tool calls stays in the
	// history so the conversation remains coherent on re-call.
	if text != "" {
		interim := &store.Message{
			ID:        uuid.New().String(),
			SessionID: msg.SessionID,
			Role:      store.MessageRoleAssistant,
			Content:   text,
			CreatedAt: time.Now(),
		}
		if err := l.sessions.AppendMessage(ctx, msg.SessionID, interim); err != nil {
			return nil, aisageerr.Wrapf(err, aisageerr.CodeAgentTurnFailure, "persisting assistant message: session %s", msg.SessionID)
		}
		messages = append(messages, provider.Message{
			Role:    provider.MessageRoleAssistant,
			Content: text,
		})
	}

	for _, tc := range toolCalls {
		req := ToolCallRequest{
			ToolName:   tc.Name,
			Arguments:  tc.Arguments,
			SessionID:  msg.SessionID,
			CustomerID: msg.CustomerID,
			TurnID:     turn.id,
		}

		result, err := l.dispatcher.ExecuteForTurn(ctx, req, l.maxToolCallsPerTurn)

		var resultContent string
		var outcome string
		var durationMS int64
		if err != nil {
			// The model sees a typed failure message and can degrade
			// gracefully; no amounts means nothing gets certified.
			resultContent = fmt.Sprintf("error: the %s tool is unavailable for this request (%s)", tc.Name, aisageerr.CodeOf(err))
			outcome = "error"
		} else {
			resultContent = result.Content
			outcome = "ok"
			durationMS = result.DurationMS
			// Certification: every figure a tool emitted this turn
			// becomes quotable by the model.
			turn.ledger.CertifyText(resultContent)
			turn.toolOutputs = append(turn.toolOutputs, resultContent)
		}

		turn.invocations = append(turn.invocations, store.ToolInvocationRecord{
			Tool:       tc.Name,
			Arguments:  tc.Arguments,
			Outcome:    outcome,
			DurationMS: durationMS,
		})

		toolMsg := &store.Message{
			ID:         uuid.New().String(),
			SessionID:  msg.SessionID,
			Role:       store.MessageRoleTool,
			Content:    resultContent,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			CreatedAt:  time.Now(),
		}
		if err := l.sessions.AppendMessage(ctx, msg.SessionID, toolMsg); err != nil {
			return nil, aisageerr.Wrapf(err, aisageerr.CodeAgentTurnFailure, "persisting tool result: session %s", msg.SessionID)
		}

		messages = append(messages, provider.Message{
			Role:       provider.MessageRoleTool,
			Content:    resultContent,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
		})
	}

	return messages, nil
}

// verify checks the narration against the turn ledger. On failure the
// turn gets exactly one corrective retry: a full loop pass in which the
// model may call tools, their results are certified into the ledger, and
// the resulting narration is re-verified. A second failure returns the
// safe fallback. The retry is deliberately separate from the tool-loop
// iteration counter.
func (l *Loop) verify(ctx context.Context, msg InboundMessage, session *store.Session, turn *turnState, messages []provider.Message, text string) (string, error) {
	decision := l.outputGuard.Verify(text, turn.ledger)
	if decision.Verdict == guard.VerdictPass {
		return text, nil
	}

	for _, a := range guard.UngroundedAmounts(text, turn.ledger) {
		turn.ungrounded = append(turn.ungrounded, string(a))
	}

	turn.retryUsed = true
	l.logger.Warn("ungrounded narration, retrying",
		slog.String("session_id", session.ID),
		slog.String("turn_id", turn.id),
		slog.String("reason", decision.Reason))

	messages = append(messages,
		provider.Message{Role: provider.MessageRoleAssistant, Content: text},
		provider.Message{Role: provider.MessageRoleUser, Content: guard.CorrectiveInstruction},
	)

	retryText, toolCalls, err := l.callModel(ctx, session, turn, messages)
	if err != nil {
		return "", err
	}
	// The corrective instruction tells the model to fetch verified figures,
	// so one round of tool calls is honoured: dispatch, certify, re-call.
	if len(toolCalls) > 0 {
		messages, err = l.dispatchToolCalls(ctx, msg, turn, messages, retryText, toolCalls)
		if err != nil {
			return "", err
		}
		retryText, toolCalls, err = l.callModel(ctx, session, turn, messages)
		if err != nil {
			return "", err
		}
		if len(toolCalls) > 0 {
			// Still asking for tools after the retry pass; give up.
			turn.fallbackUsed = true
			return guard.SafeFallbackResponse, nil
		}
	}

	if retry := l.outputGuard.Verify(retryText, turn.ledger); retry.Verdict == guard.VerdictPass {
		return retryText, nil
	}

	turn.fallbackUsed = true
	return guard.SafeFallbackResponse, nil
}

func (l *Loop) respond(ctx context.Context, sessionID string, turn *turnState, text string) (*OutboundMessage, error) {
	assistantMsg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      store.MessageRoleAssistant,
		Content:   text,
		CreatedAt: time.Now(),
		Metadata:  map[string]string{"turn_id": turn.id},
	}
	if err := l.sessions.AppendMessage(ctx, sessionID, assistantMsg); err != nil {
		return nil, err
	}

	return &OutboundMessage{
		SessionID:    sessionID,
		TurnID:       turn.id,
		Content:      text,
		Usage:        turn.usage,
		FallbackUsed: turn.fallbackUsed,
	}, nil
}

// audit appends the turn's full record. Best-effort: a failed audit write
// is logged, never surfaced to the customer.
func (l *Loop) audit(ctx context.Context, msg InboundMessage, turn *turnState, decision guard.Decision, disclaimerAdded bool, escalationID string) {
	if l.auditStore == nil {
		return
	}

	certified := make([]string, 0, turn.ledger.Len())
	for _, a := range turn.ledger.Amounts() {
		certified = append(certified, string(a))
	}

	record := &store.TurnRecord{
		ID:                uuid.New().String(),
		SessionID:         msg.SessionID,
		TurnID:            turn.id,
		CustomerID:        msg.CustomerID,
		InputVerdict:      string(decision.Verdict),
		IntentRule:        decision.Rule,
		ReasonCode:        decision.ReasonCode,
		ToolInvocations:   turn.invocations,
		ModelCalls:        turn.modelCalls,
		LoopExhausted:     turn.loopExhausted,
		CertifiedAmounts:  certified,
		UngroundedAmounts: turn.ungrounded,
		RetryUsed:         turn.retryUsed,
		FallbackUsed:      turn.fallbackUsed,
		DisclaimerAdded:   disclaimerAdded,
		EscalationID:      escalationID,
		CreatedAt:         time.Now().UTC(),
	}

	if err := l.auditStore.AppendTurn(ctx, record); err != nil {
		l.logger.Error("audit append failed",
			slog.Any("error", err),
			slog.String("session_id", msg.SessionID),
			slog.String("turn_id", turn.id))
	}
}
