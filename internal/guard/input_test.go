// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package guard_test

import (
	"testing"

	"github.com/aisage-dev/aisage/internal/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInputGuard(t *testing.T) *guard.InputGuard {
	t.Helper()
	classifier, err := guard.NewClassifier(guard.DefaultRules())
	require.NoError(t, err)
	return guard.NewInputGuard(classifier, nil)
}

func TestInputGuard_Admit(t *testing.T) {
	g := newInputGuard(t)

	tests := []struct {
		name     string
		text     string
		verdict  guard.Verdict
		category guard.IntentCategory
	}{
		{
			name:     "distress without apostrophe",
			text:     "I cant pay my rent",
			verdict:  guard.VerdictRedirect,
			category: guard.IntentFinancialDistress,
		},
		{
			name:     "distress with apostrophe",
			text:     "I can't afford my bills this month",
			verdict:  guard.VerdictRedirect,
			category: guard.IntentFinancialDistress,
		},
		{
			name:     "distress with typographic apostrophe",
			text:     "I can’t pay my mortgage anymore",
			verdict:  guard.VerdictRedirect,
			category: guard.IntentFinancialDistress,
		},
		{
			name:     "insolvency language",
			text:     "the bailiffs are coming next week",
			verdict:  guard.VerdictRedirect,
			category: guard.IntentFinancialDistress,
		},
		{
			name:     "regulated product recommendation",
			text:     "Which ISA should I pick?",
			verdict:  guard.VerdictRedirect,
			category: guard.IntentRegulatedAdvice,
		},
		{
			name:     "regulated investment instruction",
			text:     "should I invest in index funds",
			verdict:  guard.VerdictRedirect,
			category: guard.IntentRegulatedAdvice,
		},
		{
			name:     "regulated superlative phrasing",
			text:     "what's the best rate on the market right now",
			verdict:  guard.VerdictRedirect,
			category: guard.IntentRegulatedAdvice,
		},
		{
			name:     "regulated borrowing decision",
			text:     "can I afford to remortgage this year",
			verdict:  guard.VerdictRedirect,
			category: guard.IntentRegulatedAdvice,
		},
		{
			name:     "out of scope general knowledge",
			text:     "What is the capital of France?",
			verdict:  guard.VerdictBlock,
			category: guard.IntentOutOfScope,
		},
		{
			name:     "out of scope entertainment",
			text:     "did you watch the football match last night",
			verdict:  guard.VerdictBlock,
			category: guard.IntentOutOfScope,
		},
		{
			name:     "in scope spending question",
			text:     "How much am I spending on groceries?",
			verdict:  guard.VerdictPass,
			category: guard.IntentInScope,
		},
		{
			name:     "in scope savings question",
			text:     "help me build up my savings",
			verdict:  guard.VerdictPass,
			category: guard.IntentInScope,
		},
		{
			name:     "neutral text passes",
			text:     "hello there",
			verdict:  guard.VerdictPass,
			category: guard.IntentInScope,
		},
		{
			name:     "financial term beats off-topic signal",
			text:     "what's the weather like for my budget shopping trip",
			verdict:  guard.VerdictPass,
			category: guard.IntentInScope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := g.Admit(tt.text)
			assert.Equal(t, tt.verdict, decision.Verdict)
			assert.Equal(t, tt.category, decision.Category)
			if decision.Verdict != guard.VerdictPass {
				assert.NotEmpty(t, decision.Response, "refusals must carry a pre-approved response")
				assert.NotEmpty(t, decision.Rule, "refusals must name the fired rule")
			}
		})
	}
}

// A message matching both distress and regulated-advice patterns must take
// the distress path, never the compliance refusal.
func TestInputGuard_DistressPrecedesRegulatedAdvice(t *testing.T) {
	g := newInputGuard(t)

	inputs := []string{
		"I cant pay my loan, should I sell my shares?",
		"which mortgage should I pick, I cannot afford my rent as it is",
	}

	for _, text := range inputs {
		decision := g.Admit(text)
		assert.Equal(t, guard.VerdictRedirect, decision.Verdict, text)
		assert.Equal(t, guard.IntentFinancialDistress, decision.Category, text)
		assert.Equal(t, guard.ReasonCodeFinancialDistress, decision.ReasonCode, text)
	}
}

func TestInputGuard_DistressResponseListsAllChannels(t *testing.T) {
	channels := []guard.CrisisChannel{
		{Name: "MoneyHelper", Phone: "0800 138 7777", URL: "moneyhelper.org.uk"},
		{Name: "StepChange Debt Charity", Phone: "0800 138 1111", URL: "stepchange.org"},
		{Name: "National Debtline", Phone: "0808 808 4000", URL: "nationaldebtline.org"},
	}
	classifier, err := guard.NewClassifier(guard.DefaultRules())
	require.NoError(t, err)
	g := guard.NewInputGuard(classifier, channels)

	decision := g.Admit("I cant pay my rent")
	require.Equal(t, guard.VerdictRedirect, decision.Verdict)

	for _, ch := range channels {
		assert.Contains(t, decision.Response, ch.Name)
		assert.Contains(t, decision.Response, ch.Phone)
		assert.Contains(t, decision.Response, ch.URL)
	}
}

func TestInputGuard_RedirectsCarryEscalation(t *testing.T) {
	g := newInputGuard(t)

	distress := g.Admit("I cant pay my rent")
	assert.True(t, distress.Escalate)
	assert.Equal(t, guard.ReasonCodeFinancialDistress, distress.ReasonCode)

	regulated := g.Admit("Which ISA should I pick?")
	assert.True(t, regulated.Escalate)
	assert.Equal(t, guard.ReasonCodeRegulatedAdvice, regulated.ReasonCode)

	blocked := g.Admit("who won the world cup")
	assert.False(t, blocked.Escalate)
}

// Both scope signals are recorded on PASS decisions so the tie-break is
// auditable.
func TestInputGuard_ScopeSignalsSurfaced(t *testing.T) {
	g := newInputGuard(t)

	decision := g.Admit("what's the weather like for my budget shopping trip")
	assert.Equal(t, guard.VerdictPass, decision.Verdict)
	assert.True(t, decision.Financial)
	assert.True(t, decision.OutOfScope)
}

func TestNormalizeStripsZeroWidth(t *testing.T) {
	g := newInputGuard(t)

	// Zero-width space inserted to evade the distress pattern.
	decision := g.Admit("I ca​nt pay my rent")
	assert.Equal(t, guard.VerdictRedirect, decision.Verdict)
	assert.Equal(t, guard.IntentFinancialDistress, decision.Category)
}

func TestNormalizeStripsInvisibleCharacters(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"zero-width space":     {"dro​wning", "drowning"},
		"zero-width joiner":    {"debt‍", "debt"},
		"byte order mark":      {"\uFEFFcant pay", "cant pay"},
		"soft hyphen":          {"mort­gage", "mortgage"},
		"word joiner":          {"bai⁠liffs", "bailiffs"},
		"curly apostrophe":     {"can’t pay", "can't pay"},
		"plain text untouched": {"help with my budget", "help with my budget"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, guard.Normalize(tc.in))
		})
	}
}
