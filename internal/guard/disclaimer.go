// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package guard

import "strings"

// DefaultDisclaimerNotice is the fixed regulatory notice appended when a
// response touches regulated-adjacent topics.
const DefaultDisclaimerNotice = "\n\n---\nThis is financial guidance based on your transaction data, " +
	"not regulated financial advice. For personalised investment or borrowing advice, please speak " +
	"to a qualified financial adviser."

// DefaultDisclaimerVocabulary are the regulated-adjacent terms that trigger
// the notice.
func DefaultDisclaimerVocabulary() []string {
	return []string{
		"mortgage", "pension", "isa", "loan", "invest", "investment",
		"bond", "fund", "annuity", "borrow", "remortgage", "interest rate",
		"savings account", "credit card",
	}
}

// DisclaimerInjector appends the regulatory notice when narration or the
// turn's certified tool results reference the configured vocabulary.
type DisclaimerInjector struct {
	vocabulary []string
	notice     string
}

// NewDisclaimerInjector builds an injector; empty arguments fall back to the
// defaults.
func NewDisclaimerInjector(vocabulary []string, notice string) *DisclaimerInjector {
	if len(vocabulary) == 0 {
		vocabulary = DefaultDisclaimerVocabulary()
	}
	if notice == "" {
		notice = DefaultDisclaimerNotice
	}
	lowered := make([]string, len(vocabulary))
	for i, term := range vocabulary {
		lowered[i] = strings.ToLower(term)
	}
	return &DisclaimerInjector{vocabulary: lowered, notice: notice}
}

// Inject appends the notice exactly once when the narration or any tool
// result text touches the vocabulary. Idempotent: already-annotated text is
// returned unchanged.
func (d *DisclaimerInjector) Inject(narration string, toolResults ...string) string {
	if strings.Contains(narration, d.notice) {
		return narration
	}

	if d.touches(narration) {
		return narration + d.notice
	}
	for _, result := range toolResults {
		if d.touches(result) {
			return narration + d.notice
		}
	}
	return narration
}

func (d *DisclaimerInjector) touches(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range d.vocabulary {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
