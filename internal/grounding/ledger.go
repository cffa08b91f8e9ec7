// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package grounding

import "sort"

// Ledger is the per-turn set of monetary figures certified by deterministic
// tool executions. A Ledger is created at the start of turn processing,
// owned exclusively by the orchestration loop for the duration of that turn,
// read by the output guard, and discarded with the turn. It is never shared
// across turns or sessions, so no locking is required.
//
// Invariant: an amount is contained iff it was certified by a tool result in
// the current turn. Narration text is never a certifying source.
type Ledger struct {
	certified map[Amount]struct{}
}

// NewLedger returns an empty per-turn ledger.
func NewLedger() *Ledger {
	return &Ledger{certified: make(map[Amount]struct{})}
}

// Certify records canonical amounts produced by a tool execution.
// Append-only within a turn.
func (l *Ledger) Certify(amounts ...Amount) {
	for _, a := range amounts {
		l.certified[a] = struct{}{}
	}
}

// CertifyText extracts every monetary figure from a tool result payload and
// certifies it. Returns the amounts certified, for audit.
func (l *Ledger) CertifyText(text string) []Amount {
	amounts := Extract(text)
	l.Certify(amounts...)
	return amounts
}

// Contains reports whether the amount was certified during this turn.
func (l *Ledger) Contains(a Amount) bool {
	_, ok := l.certified[a]
	return ok
}

// Len returns the number of distinct certified amounts.
func (l *Ledger) Len() int {
	return len(l.certified)
}

// Amounts returns the certified amounts in lexical order, for audit output.
func (l *Ledger) Amounts() []Amount {
	out := make([]Amount, 0, len(l.certified))
	for a := range l.certified {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
