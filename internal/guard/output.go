// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package guard

import (
	"fmt"

	"github.com/aisage-dev/aisage/internal/grounding"
)

// SafeFallbackResponse is returned when narration fails grounding twice in
// one turn. It deliberately contains no monetary figures.
const SafeFallbackResponse = "I wasn't able to verify the figures for that answer against your " +
	"transaction data, so I'd rather not guess. Please try asking again, or I can connect you " +
	"with one of our team."

// CorrectiveInstruction is appended to the conversation before the single
// grounding retry. It asks for re-derivation from tool output, not a
// rephrase of the rejected text.
const CorrectiveInstruction = "Your previous answer cited monetary figures that did not come from " +
	"tool output. Call the appropriate tool to retrieve the customer's verified figures, " +
	"then answer citing only tool-provided figures."

// OutputGuard verifies that every monetary figure in a candidate narration
// was certified into the turn's ledger by a tool execution. It holds no
// state; the ledger is read-only here.
type OutputGuard struct{}

// NewOutputGuard returns an OutputGuard.
func NewOutputGuard() *OutputGuard {
	return &OutputGuard{}
}

// Verify extracts all monetary figures from the narration and checks each
// against the ledger. Extraction uses the same canonicalization as the
// ledger writer, so formatting variants ("£1,234.56" vs "£1234.56") cannot
// produce false failures.
func (g *OutputGuard) Verify(narration string, ledger *grounding.Ledger) Decision {
	ungrounded := UngroundedAmounts(narration, ledger)
	if len(ungrounded) > 0 {
		return Decision{
			Verdict:  VerdictFail,
			Category: IntentInScope,
			Reason:   fmt.Sprintf("narration cites %d monetary figure(s) not certified by any tool this turn", len(ungrounded)),
		}
	}

	return Decision{
		Verdict:  VerdictPass,
		Category: IntentInScope,
		Reason:   "all cited figures are tool-certified",
	}
}

// UngroundedAmounts returns the distinct figures in the narration that are
// absent from the ledger, in first-appearance order. A token that matches
// the currency grammar but fails canonicalization can never have been
// certified, so it is reported raw rather than dropped. Exposed for audit
// logging alongside the verdict.
func UngroundedAmounts(narration string, ledger *grounding.Ledger) []grounding.Amount {
	var out []grounding.Amount
	seen := make(map[grounding.Amount]struct{})
	for _, token := range grounding.ExtractTokens(narration) {
		amt, ok := grounding.Canonicalize(token)
		if ok && ledger.Contains(amt) {
			continue
		}
		if !ok {
			amt = grounding.Amount(token)
		}
		if _, dup := seen[amt]; dup {
			continue
		}
		seen[amt] = struct{}{}
		out = append(out, amt)
	}
	return out
}
