// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aisage-dev/aisage/internal/provider"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// handoffReason describes why a conversation is being routed to a human
// adviser and how urgently.
type handoffReason struct {
	Label    string
	Priority string
	Note     string
}

var handoffReasons = map[string]handoffReason{
	"regulated_advice": {
		Label:    "Regulated financial advice requested",
		Priority: "standard",
		Note:     "Customer asked for a personal recommendation that requires a qualified adviser.",
	},
	"mortgage_advice": {
		Label:    "Mortgage advice beyond illustration",
		Priority: "standard",
		Note:     "Customer wants product-specific mortgage advice, not just an affordability illustration.",
	},
	"pension_transfer": {
		Label:    "Pension transfer or drawdown query",
		Priority: "standard",
		Note:     "Pension transfers are regulated advice. Route to a pensions specialist.",
	},
	"financial_distress": {
		Label:    "Financial distress signposted",
		Priority: "urgent",
		Note:     "Input guard detected crisis language. Customer was signposted to free debt support.",
	},
	"vulnerability": {
		Label:    "Possible customer vulnerability",
		Priority: "urgent",
		Note:     "Signals of financial distress or vulnerability. Handle with care protocols.",
	},
	"bereavement": {
		Label:    "Bereavement support",
		Priority: "urgent",
		Note:     "Customer mentioned a bereavement. Route to the bereavement support team.",
	},
	"complaint": {
		Label:    "Complaint raised",
		Priority: "urgent",
		Note:     "Customer wishes to complain. Follow the formal complaints procedure.",
	},
	"complex_needs": {
		Label:    "Complex financial situation",
		Priority: "standard",
		Note:     "The situation spans products or circumstances the assistant cannot assess.",
	},
	"customer_request": {
		Label:    "Customer asked for a human",
		Priority: "standard",
		Note:     "Customer explicitly asked to speak to a person.",
	},
}

var handoffChannels = []map[string]string{
	{"channel": "phone", "detail": "Call us on 0800 072 7000, Monday to Saturday 8am-8pm."},
	{"channel": "callback", "detail": "Book a callback from an adviser at a time that suits you."},
	{"channel": "branch", "detail": "Book an appointment at your nearest branch."},
	{"channel": "video", "detail": "Video appointments are available for mortgage and savings reviews."},
}

// HandoffContext carries what the adviser needs to pick the conversation
// up without the customer repeating themselves.
type HandoffContext struct {
	SessionID   string
	CustomerID  string
	Summary     string
	RecentTurns []string
}

// Escalator files a handoff to a human adviser and returns its reference.
type Escalator interface {
	Escalate(ctx context.Context, reasonCode string, turnContext HandoffContext) (string, error)
}

// HandoffRecord is a filed escalation.
type HandoffRecord struct {
	Reference   string
	ReasonCode  string
	Priority    string
	Context     HandoffContext
	CreatedAt   time.Time
	AdviserNote string
}

// AdviserDesk is an in-process Escalator that assigns references and
// keeps filed handoffs for inspection. A deployment would forward these
// to a CRM queue instead.
type AdviserDesk struct {
	mu      sync.Mutex
	records []HandoffRecord
	now     func() time.Time
}

func NewAdviserDesk() *AdviserDesk {
	return &AdviserDesk{now: time.Now}
}

var _ Escalator = (*AdviserDesk)(nil)

func (d *AdviserDesk) Escalate(ctx context.Context, reasonCode string, turnContext HandoffContext) (string, error) {
	reason, ok := handoffReasons[reasonCode]
	if !ok {
		reason = handoffReasons["complex_needs"]
		reasonCode = "complex_needs"
	}
	ref := "AH-" + strings.ToUpper(uuid.NewString()[:8])
	d.mu.Lock()
	d.records = append(d.records, HandoffRecord{
		Reference:   ref,
		ReasonCode:  reasonCode,
		Priority:    reason.Priority,
		Context:     turnContext,
		CreatedAt:   d.now(),
		AdviserNote: reason.Note,
	})
	d.mu.Unlock()
	return ref, nil
}

// Records returns a copy of every filed handoff.
func (d *AdviserDesk) Records() []HandoffRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]HandoffRecord, len(d.records))
	copy(out, d.records)
	return out
}

type handoffArgs struct {
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason"`
	Summary    string `json:"summary"`
}

// AdviserHandoffTool lets the model hand the conversation to a human
// adviser mid-turn, for example when a question crosses into regulated
// territory.
type AdviserHandoffTool struct {
	escalator Escalator
	sessionID func(ctx context.Context) string
}

// NewAdviserHandoffTool creates the tool. sessionID extracts the current
// session from the request context and may be nil.
func NewAdviserHandoffTool(escalator Escalator, sessionID func(ctx context.Context) string) *AdviserHandoffTool {
	return &AdviserHandoffTool{escalator: escalator, sessionID: sessionID}
}

func (t *AdviserHandoffTool) Definition() provider.ToolDefinition {
	reasons := make([]any, 0, len(handoffReasons))
	for code := range handoffReasons {
		reasons = append(reasons, code)
	}
	return provider.ToolDefinition{
		Name:        "escalate_to_adviser",
		Description: "Hand the conversation to a human adviser. Use when the customer needs regulated advice, shows signs of vulnerability, wants to complain, or asks for a person.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{"type": "string"},
				"reason":      map[string]any{"type": "string", "enum": reasons},
				"summary":     map[string]any{"type": "string", "description": "One-paragraph summary of the conversation so far for the adviser."},
			},
			"required": []any{"customer_id", "reason"},
		},
	}
}

func (t *AdviserHandoffTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in handoffArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	reason, ok := handoffReasons[in.Reason]
	if !ok {
		return nil, aisageerr.New(aisageerr.CodeToolArgumentsInvalid,
			fmt.Sprintf("unknown handoff reason %q", in.Reason))
	}

	var sessionID string
	if t.sessionID != nil {
		sessionID = t.sessionID(ctx)
	}
	ref, err := t.escalator.Escalate(ctx, in.Reason, HandoffContext{
		SessionID:  sessionID,
		CustomerID: in.CustomerID,
		Summary:    in.Summary,
	})
	if err != nil {
		return nil, aisageerr.Wrap(err, aisageerr.CodeToolExecuteFailure, "filing adviser handoff")
	}

	return &FactBundle{
		Tool: "escalate_to_adviser",
		Facts: map[string]any{
			"reference":    ref,
			"reason":       reason.Label,
			"priority":     reason.Priority,
			"adviser_note": reason.Note,
			"channels":     handoffChannels,
			"next_step":    fmt.Sprintf("Quote reference %s when you get in touch and the adviser will have the context.", ref),
		},
	}, nil
}
