// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/aisage-dev/aisage/internal/provider"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// guidanceEntry is one retrievable snippet of educational content. The
// corpus ships with the binary so answers stay reproducible.
type guidanceEntry struct {
	ID       string
	Title    string
	Source   string
	Keywords []string
	Content  string
}

var guidanceCorpus = []guidanceEntry{
	{
		ID:       "emergency-fund",
		Title:    "Building an emergency fund",
		Source:   "Aisage Money Guides: Savings basics",
		Keywords: []string{"emergency", "fund", "buffer", "rainy", "safety", "unexpected"},
		Content:  "An emergency fund covers unexpected costs without borrowing. A common guideline is three months of essential spending held in an instant-access savings account. Start small: a standing order on payday builds the habit, and the pot grows without further decisions.",
	},
	{
		ID:       "isa-basics",
		Title:    "How Cash ISAs work",
		Source:   "Aisage Money Guides: Tax-free saving",
		Keywords: []string{"isa", "tax", "allowance", "cash", "tax-free"},
		Content:  "A Cash ISA is a savings account where interest is free of UK income tax. Each tax year has an overall ISA allowance shared across ISA types. Money can usually be withdrawn, but whether replacing it uses more allowance depends on whether the ISA is flexible.",
	},
	{
		ID:       "budgeting-503020",
		Title:    "The 50/30/20 budgeting rule",
		Source:   "Aisage Money Guides: Budgeting",
		Keywords: []string{"budget", "budgeting", "50/30/20", "needs", "wants", "plan"},
		Content:  "The 50/30/20 rule splits take-home pay into roughly 50% for needs (rent, bills, groceries), 30% for wants, and 20% for savings or debt repayment. It is a starting point rather than a law: the useful part is deciding the split before the month starts.",
	},
	{
		ID:       "debt-avalanche",
		Title:    "Paying down debt: avalanche and snowball",
		Source:   "Aisage Money Guides: Borrowing",
		Keywords: []string{"debt", "credit", "card", "avalanche", "snowball", "repay", "overpay", "interest"},
		Content:  "The avalanche method pays the highest-interest debt first, which minimises total interest. The snowball method clears the smallest balance first, which builds momentum. Either works; the best method is the one you stick to. Always keep up minimum payments on every debt.",
	},
	{
		ID:       "mortgage-overpayment",
		Title:    "Overpaying a mortgage",
		Source:   "Aisage Money Guides: Mortgages",
		Keywords: []string{"mortgage", "overpay", "overpayment", "term", "early", "repayment"},
		Content:  "Most mortgages allow overpayments of up to 10% of the outstanding balance per year without an early repayment charge. Overpaying shortens the term and reduces total interest, but check the charge-free limit first and keep an emergency fund before committing spare cash.",
	},
	{
		ID:       "subscriptions-audit",
		Title:    "Auditing subscriptions",
		Source:   "Aisage Money Guides: Everyday spending",
		Keywords: []string{"subscription", "subscriptions", "recurring", "streaming", "cancel", "audit"},
		Content:  "Recurring payments quietly accumulate. Once a year, list every subscription from your statements and ask which you used in the last month. Cancelling two unused services of £10.00 each frees £240.00 a year, and annual billing is often cheaper for the ones you keep.",
	},
	{
		ID:       "savings-rate",
		Title:    "What is a savings rate?",
		Source:   "Aisage Money Guides: Savings basics",
		Keywords: []string{"savings", "rate", "percent", "income", "save"},
		Content:  "Your savings rate is the share of take-home income you save each month. Around 20% is a common long-term target, but any consistent positive rate compounds. Automating the transfer on payday is the single most effective way to raise it.",
	},
	{
		ID:       "credit-score",
		Title:    "Understanding credit scores",
		Source:   "Aisage Money Guides: Borrowing",
		Keywords: []string{"credit", "score", "rating", "file", "history", "report"},
		Content:  "A credit score summarises how lenders view your borrowing history. Paying on time, keeping card balances well below their limits, and being on the electoral roll all help. Checking your own report is free and does not affect the score.",
	},
	{
		ID:       "pension-basics",
		Title:    "Workplace pension basics",
		Source:   "Aisage Money Guides: Retirement",
		Keywords: []string{"pension", "retirement", "workplace", "contribution", "employer"},
		Content:  "Workplace pensions add employer contributions and tax relief on top of your own payments, which makes them hard to beat for long-term saving. Opting out usually means giving up free money. Specific pension advice is regulated, so for decisions about transfers or drawdown speak to a qualified adviser.",
	},
	{
		ID:       "energy-bills",
		Title:    "Reducing household bills",
		Source:   "Aisage Money Guides: Everyday spending",
		Keywords: []string{"bills", "energy", "utilities", "gas", "electricity", "broadband", "switch"},
		Content:  "Fixed household bills respond to an annual review: compare energy tariffs when a fix ends, haggle or switch broadband at contract end, and check you are not paying for unused insurance add-ons. An hour of admin often saves more than a month of small spending cuts.",
	},
}

type knowledgeArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// KnowledgeBaseTool ranks the built-in guidance corpus against a query
// with simple keyword overlap scoring.
type KnowledgeBaseTool struct{}

func NewKnowledgeBaseTool() *KnowledgeBaseTool {
	return &KnowledgeBaseTool{}
}

func (t *KnowledgeBaseTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "search_guidance",
		Description: "Search the built-in library of general money guidance (budgeting, savings, debt, mortgages, pensions). Returns ranked snippets with their source.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer", "description": "Maximum results, default 3."},
			},
			"required": []any{"query"},
		},
	}
}

func (t *KnowledgeBaseTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in knowledgeArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, aisageerr.New(aisageerr.CodeToolArgumentsInvalid, "query must not be empty")
	}
	limit := in.Limit
	if limit <= 0 || limit > 5 {
		limit = 3
	}

	terms := queryTerms(in.Query)
	type scored struct {
		entry guidanceEntry
		score int
	}
	var ranked []scored
	for _, e := range guidanceCorpus {
		s := scoreEntry(e, terms)
		if s > 0 {
			ranked = append(ranked, scored{entry: e, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]map[string]any, 0, len(ranked))
	for _, r := range ranked {
		results = append(results, map[string]any{
			"title":   r.entry.Title,
			"content": r.entry.Content,
			"source":  r.entry.Source,
		})
	}

	return &FactBundle{
		Tool: "search_guidance",
		Facts: map[string]any{
			"query":   in.Query,
			"results": results,
		},
	}, nil
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '/'
	})
	terms := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// scoreEntry counts keyword hits, weighting exact keyword matches above
// title and body occurrences.
func scoreEntry(e guidanceEntry, terms []string) int {
	title := strings.ToLower(e.Title)
	body := strings.ToLower(e.Content)
	score := 0
	for _, term := range terms {
		for _, kw := range e.Keywords {
			if term == kw || strings.HasPrefix(kw, term) {
				score += 3
				break
			}
		}
		if strings.Contains(title, term) {
			score += 2
		}
		if strings.Contains(body, term) {
			score++
		}
	}
	return score
}
