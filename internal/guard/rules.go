// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

// Package guard implements the admission and verification layers around the
// coaching loop: intent classification of user input, grounding verification
// of model narration, and regulatory disclaimer injection. Detection is
// declarative — a versioned rule table of (name, category, pattern) — so
// adding a rule never touches control flow.
package guard

import (
	"os"
	"regexp"

	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
	"gopkg.in/yaml.v3"
)

// IntentCategory classifies one user message. Categories are mutually
// exclusive per message; precedence is fixed by InputGuard.Admit.
type IntentCategory string

const (
	// IntentFinancialDistress matches crisis language: inability to pay,
	// debt collection, insolvency. Highest precedence.
	IntentFinancialDistress IntentCategory = "financial_distress"
	// IntentRegulatedAdvice matches requests for a specific product,
	// investment, tax or legal recommendation.
	IntentRegulatedAdvice IntentCategory = "regulated_advice"
	// IntentOutOfScope matches clearly non-financial topics.
	IntentOutOfScope IntentCategory = "out_of_scope"
	// IntentFinancialContext is the broad affirmative signal used only to
	// suppress out-of-scope blocking; it never produces a verdict itself.
	IntentFinancialContext IntentCategory = "financial_context"
	// IntentInScope is the residual category for admitted messages.
	IntentInScope IntentCategory = "in_scope"
)

// Valid reports whether the category is a known classifier category.
// IntentInScope is a verdict-side residual, not a rule category.
func (c IntentCategory) Valid() bool {
	switch c {
	case IntentFinancialDistress, IntentRegulatedAdvice, IntentOutOfScope, IntentFinancialContext:
		return true
	default:
		return false
	}
}

// Rule is one declarative detection pattern.
type Rule struct {
	Name     string
	Category IntentCategory
	Pattern  *regexp.Regexp
}

// ruleFile is the on-disk YAML shape of a versioned rule table.
type ruleFile struct {
	Version int `yaml:"version"`
	Rules   []struct {
		Name     string `yaml:"name"`
		Category string `yaml:"category"`
		Pattern  string `yaml:"pattern"`
	} `yaml:"rules"`
}

// LoadRules reads a versioned rule table from a YAML file and compiles it.
// Used to ship detection-rule updates without a code change.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, aisageerr.Wrapf(err, aisageerr.CodeGuardRuleFileInvalid, "reading rule file %s", path)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, aisageerr.Wrapf(err, aisageerr.CodeGuardRuleFileInvalid, "parsing rule file %s", path)
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for i, r := range rf.Rules {
		cat := IntentCategory(r.Category)
		if !cat.Valid() {
			return nil, aisageerr.Errorf(aisageerr.CodeGuardRuleFileInvalid, "rule %d (%s): unknown category %q", i, r.Name, r.Category)
		}
		pattern, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, aisageerr.Wrapf(err, aisageerr.CodeGuardRuleInvalid, "rule %d (%s): compiling pattern", i, r.Name)
		}
		rules = append(rules, Rule{Name: r.Name, Category: cat, Pattern: pattern})
	}
	return rules, nil
}

// DefaultRules returns the built-in rule table for all four categories.
func DefaultRules() []Rule {
	var rules []Rule
	rules = append(rules, DistressRules()...)
	rules = append(rules, RegulatedAdviceRules()...)
	rules = append(rules, OutOfScopeRules()...)
	rules = append(rules, FinancialContextRules()...)
	return rules
}

// DistressRules detect financial hardship requiring proactive support
// signposting. Contraction variants are matched with and without the
// apostrophe ("can't" and "cant").
func DistressRules() []Rule {
	return []Rule{
		{
			Name:     "cannot_pay_essentials",
			Category: IntentFinancialDistress,
			Pattern:  regexp.MustCompile(`(?i)\b(can't|cant|cannot|struggle to|struggling to)\b.*\b(pay|afford)\b.*\b(bills?|rent|mortgage|loans?|debts?)\b`),
		},
		{
			Name:     "insolvency_language",
			Category: IntentFinancialDistress,
			Pattern:  regexp.MustCompile(`(?i)\b(bailiffs?|debt collectors?|repossession|eviction|bankruptcy|bankrupt|insolvent|iva)\b`),
		},
		{
			Name:     "overwhelmed_by_debt",
			Category: IntentFinancialDistress,
			Pattern:  regexp.MustCompile(`(?i)\b(overwhelmed|drowning)\b.*\b(debts?|money|bills|finances?)\b`),
		},
		{
			Name:     "money_crisis",
			Category: IntentFinancialDistress,
			Pattern:  regexp.MustCompile(`(?i)\b(desperate|crisis|emergency)\b.*\b(money|financial|cash|funds?)\b`),
		},
		{
			Name:     "ends_meet",
			Category: IntentFinancialDistress,
			Pattern:  regexp.MustCompile(`(?i)\b(can't|cant|cannot)\s+(make|meet)\s+ends\b`),
		},
	}
}

// RegulatedAdviceRules detect requests for a specific product, investment,
// tax or legal recommendation, including indirect phrasing ("which X should
// I", "pick me a", superlative-plus-product).
func RegulatedAdviceRules() []Rule {
	return []Rule{
		{
			Name:     "investment_instruction",
			Category: IntentRegulatedAdvice,
			Pattern:  regexp.MustCompile(`(?i)\b(should i|shall i|tell me to)\b.*\b(invest|buy|sell|stocks?|shares?|isa|pension|funds?)\b`),
		},
		{
			Name:     "stock_picking",
			Category: IntentRegulatedAdvice,
			Pattern:  regexp.MustCompile(`(?i)\bwhat (stocks?|shares?|funds?|etfs?)\b.*\b(buy|invest|pick|choose)\b`),
		},
		{
			Name:     "product_recommendation",
			Category: IntentRegulatedAdvice,
			Pattern:  regexp.MustCompile(`(?i)\bwhich (mortgage|loan|credit card|insurance|isa|pension|funds?|providers?)\b.*\b(should i|best for me|recommend|pick|choose)\b`),
		},
		{
			Name:     "pick_me_a_product",
			Category: IntentRegulatedAdvice,
			Pattern:  regexp.MustCompile(`(?i)\bpick (me )?(a|an|the) (mortgage|loan|credit card|insurance|isa|pension|fund|stock|share)\b`),
		},
		{
			Name:     "best_product_superlative",
			Category: IntentRegulatedAdvice,
			Pattern:  regexp.MustCompile(`(?i)\bbest (rates?|deals?|products?|providers?|isa|mortgage|pension|funds?|credit card)\b`),
		},
		{
			Name:     "tax_advice",
			Category: IntentRegulatedAdvice,
			Pattern:  regexp.MustCompile(`(?i)\b(tax advice|tax planning|inheritance tax|capital gains)\b`),
		},
		{
			Name:     "legal_advice",
			Category: IntentRegulatedAdvice,
			Pattern:  regexp.MustCompile(`(?i)\b(legal advice|legal claim|sue|lawsuit)\b`),
		},
		{
			Name:     "borrowing_decision",
			Category: IntentRegulatedAdvice,
			Pattern:  regexp.MustCompile(`(?i)\b(should i|can i afford to)\b.*\b(borrow|take out a loan|remortgage)\b`),
		},
	}
}

// OutOfScopeRules detect clearly non-financial topics. These fire only when
// the message carries no financial-context signal; the combination is an
// explicit boolean in InputGuard.Admit, not a pattern-order effect.
func OutOfScopeRules() []Rule {
	return []Rule{
		{
			Name:     "general_knowledge",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\b(capital (city|of)|largest (city|country|continent)|population of|where is)\b`),
		},
		{
			Name:     "who_questions",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\bwho (is|was|invented|discovered|wrote|directed|won)\b`),
		},
		{
			Name:     "science_topics",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\b(formula|equation|periodic table|chemical|atoms?|molecules?|planets?|galaxy|evolution)\b`),
		},
		{
			Name:     "history_culture",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\b(world war|history of|ancient|medieval|renaissance)\b`),
		},
		{
			Name:     "entertainment_sport",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\b(novels?|films?|movies?|songs?|albums?|actors?|directors?|football|cricket|rugby|match|score|goal)\b`),
		},
		{
			Name:     "food_lifestyle",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\b(recipes?|ingredients?|cook|bake|calories|workout|gym)\b`),
		},
		{
			Name:     "technology_general",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\b(programming language|javascript|python|html|css|linux|windows|android|iphone)\b`),
		},
		{
			Name:     "weather_travel",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\b(weather|forecast|temperature|climate|best (place|country|city|hotel|restaurant|flight) to)\b`),
		},
		{
			Name:     "politics_religion",
			Category: IntentOutOfScope,
			Pattern:  regexp.MustCompile(`(?i)\b(politics|political party|election|prime minister|president|religion)\b`),
		},
	}
}

// FinancialContextRules are the broad affirmative signal that a message is
// about the customer's money. Used only to suppress out-of-scope blocking.
func FinancialContextRules() []Rule {
	return []Rule{
		{
			Name:     "spending_terms",
			Category: IntentFinancialContext,
			Pattern:  regexp.MustCompile(`(?i)\b(spend|spending|spent)\b`),
		},
		{
			Name:     "saving_terms",
			Category: IntentFinancialContext,
			Pattern:  regexp.MustCompile(`(?i)\b(save|saving|savings)\b`),
		},
		{
			Name:     "budget_terms",
			Category: IntentFinancialContext,
			Pattern:  regexp.MustCompile(`(?i)\b(budget|budgeting)\b`),
		},
		{
			Name:     "income_terms",
			Category: IntentFinancialContext,
			Pattern:  regexp.MustCompile(`(?i)\b(income|salary|wage|earn)\b`),
		},
		{
			Name:     "credit_terms",
			Category: IntentFinancialContext,
			Pattern:  regexp.MustCompile(`(?i)\b(debts?|loans?|mortgage|credit)\b`),
		},
		{
			Name:     "banking_terms",
			Category: IntentFinancialContext,
			Pattern:  regexp.MustCompile(`(?i)\b(bank|account|balance|transactions?)\b`),
		},
		{
			Name:     "money_terms",
			Category: IntentFinancialContext,
			Pattern:  regexp.MustCompile(`(?i)\b(money|finance|financial|cost|price|afford)\b`),
		},
		{
			Name:     "product_terms",
			Category: IntentFinancialContext,
			Pattern:  regexp.MustCompile(`(?i)\b(health score|insurance premium|subscriptions?)\b`),
		},
	}
}
