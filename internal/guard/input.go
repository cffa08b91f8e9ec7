// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package guard

import "strings"

// Verdict is the outcome of a guard check.
type Verdict string

const (
	// VerdictPass admits the message to the orchestration loop.
	VerdictPass Verdict = "pass"
	// VerdictBlock refuses with a fixed message; no model call is made.
	VerdictBlock Verdict = "block"
	// VerdictRedirect refuses with a category-specific fixed message and,
	// for some categories, triggers an escalation side effect.
	VerdictRedirect Verdict = "redirect"
	// VerdictFail marks ungrounded content detected on the output side.
	VerdictFail Verdict = "fail"
)

// Decision is the result of one guard evaluation. Both scope signals are
// surfaced so the admission boolean is auditable after the fact.
type Decision struct {
	Verdict  Verdict
	Category IntentCategory
	// Rule is the name of the lexical pattern that fired, for audit.
	Rule   string
	Reason string
	// Response is the pre-approved text to return for BLOCK/REDIRECT.
	Response string
	// Escalate is set on REDIRECTs that must invoke the escalation
	// interface; ReasonCode is the code to escalate with.
	Escalate   bool
	ReasonCode string

	// Financial and OutOfScope are the two independent scope signals.
	Financial  bool
	OutOfScope bool
}

// CrisisChannel is one configured crisis-support service. The distress
// response must list every configured channel verbatim.
type CrisisChannel struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Phone string `mapstructure:"phone" yaml:"phone"`
	URL   string `mapstructure:"url" yaml:"url"`
}

// DefaultCrisisChannels returns the UK free debt-support services listed in
// the distress signpost.
func DefaultCrisisChannels() []CrisisChannel {
	return []CrisisChannel{
		{Name: "MoneyHelper", Phone: "0800 138 7777", URL: "moneyhelper.org.uk"},
		{Name: "StepChange Debt Charity", Phone: "0800 138 1111", URL: "stepchange.org"},
		{Name: "National Debtline", Phone: "0808 808 4000", URL: "nationaldebtline.org"},
	}
}

// Fixed pre-approved responses. Every refusal path returns one of these;
// internal detail never reaches the customer.
const (
	regulatedAdviceResponse = "That's a great question, but it falls into regulated financial advice " +
		"territory which I can't provide. I can connect you with one of our qualified financial " +
		"advisers who can give you a personalised recommendation. Would you like me to arrange that?"

	outOfScopeResponse = "I'm your financial coach, so I can only help with questions about your " +
		"money, spending, savings and financial wellbeing. Is there something about your finances " +
		"I can help you with today?"

	distressPreamble = "I'm sorry to hear you're going through a difficult time. Before we look at " +
		"your finances together, I want to make sure you know about some free, confidential support " +
		"that's available to you:\n\n"

	distressClosing = "\nThese services are completely free and can help with debt advice, budgeting " +
		"and negotiating with creditors. Would you still like me to look at your transaction data to " +
		"help identify where we can make improvements?"
)

// Escalation reason codes attached to REDIRECT decisions.
const (
	ReasonCodeRegulatedAdvice   = "regulated_advice"
	ReasonCodeFinancialDistress = "financial_distress"
)

// InputGuard composes the intent classifiers into one admission decision.
type InputGuard struct {
	classifier *Classifier
	channels   []CrisisChannel
}

// NewInputGuard builds an InputGuard over the given rule table and crisis
// channels. Nil channels fall back to the defaults.
func NewInputGuard(classifier *Classifier, channels []CrisisChannel) *InputGuard {
	if len(channels) == 0 {
		channels = DefaultCrisisChannels()
	}
	return &InputGuard{classifier: classifier, channels: channels}
}

// Admit classifies a user message before it can reach the model. Evaluation
// order is fixed and first match wins:
//
//  1. financial distress — REDIRECT with the support signpost. Checked
//     before the regulated-advice rule so a distressed user is offered help,
//     not a compliance refusal.
//  2. regulated advice — REDIRECT to adviser escalation.
//  3. out-of-scope and not financial — BLOCK with a fixed refusal.
//  4. otherwise — PASS.
//
// BLOCK and REDIRECT outcomes never cause a model or tool call.
func (g *InputGuard) Admit(text string) Decision {
	normalized := Normalize(text)

	if rule, ok := g.classifier.Match(IntentFinancialDistress, normalized); ok {
		return Decision{
			Verdict:    VerdictRedirect,
			Category:   IntentFinancialDistress,
			Rule:       rule,
			Reason:     "message indicates potential financial distress",
			Response:   g.distressResponse(),
			Escalate:   true,
			ReasonCode: ReasonCodeFinancialDistress,
		}
	}

	if rule, ok := g.classifier.Match(IntentRegulatedAdvice, normalized); ok {
		return Decision{
			Verdict:    VerdictRedirect,
			Category:   IntentRegulatedAdvice,
			Rule:       rule,
			Reason:     "message requests regulated financial advice",
			Response:   regulatedAdviceResponse,
			Escalate:   true,
			ReasonCode: ReasonCodeRegulatedAdvice,
		}
	}

	// Scope is decided by two independent signals combined explicitly.
	// A message matching both financial-context and out-of-scope rules
	// passes: the financial signal wins the tie.
	_, financial := g.classifier.Match(IntentFinancialContext, normalized)
	oosRule, outOfScope := g.classifier.Match(IntentOutOfScope, normalized)

	if outOfScope && !financial {
		return Decision{
			Verdict:    VerdictBlock,
			Category:   IntentOutOfScope,
			Rule:       oosRule,
			Reason:     "message is outside financial coaching scope",
			Response:   outOfScopeResponse,
			Financial:  financial,
			OutOfScope: outOfScope,
		}
	}

	return Decision{
		Verdict:    VerdictPass,
		Category:   IntentInScope,
		Reason:     "message passed all input checks",
		Financial:  financial,
		OutOfScope: outOfScope,
	}
}

// distressResponse renders the support signpost with every configured
// channel listed verbatim.
func (g *InputGuard) distressResponse() string {
	var b strings.Builder
	b.WriteString(distressPreamble)
	for _, ch := range g.channels {
		b.WriteString("- ")
		b.WriteString(ch.Name)
		b.WriteString(": ")
		b.WriteString(ch.Phone)
		b.WriteString(" | ")
		b.WriteString(ch.URL)
		b.WriteString("\n")
	}
	b.WriteString(distressClosing)
	return b.String()
}
