// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aisage-dev/aisage/internal/grounding"
	"github.com/aisage-dev/aisage/internal/provider"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// SpendingInsightsTool aggregates the customer's recent spending into
// verified monthly and per-category figures.
type SpendingInsightsTool struct {
	profiles ProfileStore
}

// NewSpendingInsightsTool creates the tool over a profile source.
func NewSpendingInsightsTool(profiles ProfileStore) *SpendingInsightsTool {
	return &SpendingInsightsTool{profiles: profiles}
}

func (t *SpendingInsightsTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "get_spending_insights",
		Description: "Aggregate verified spending, income and surplus figures for the customer over recent months. Use this before discussing any amounts.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{"type": "string"},
				"months":      map[string]any{"type": "integer", "description": "analysis window in months, default 3"},
			},
			"required": []any{"customer_id"},
		},
	}
}

type spendingArgs struct {
	CustomerID string `json:"customer_id"`
	Months     int    `json:"months"`
}

func (t *SpendingInsightsTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in spendingArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	insights := NewAnalyser(profile).FullInsights(in.Months)

	categories := make([]map[string]any, 0, len(insights.TopCategories))
	for i, c := range insights.TopCategories {
		if i >= 6 {
			break
		}
		categories = append(categories, map[string]any{
			"category":          string(c.Category),
			"total_spend":       grounding.FromPence(c.TotalPence),
			"transaction_count": c.Count,
			"average_per_txn":   grounding.FromPence(c.AveragePence),
			"largest_single":    grounding.FromPence(c.LargestPence),
			"merchants":         c.Merchants,
		})
	}

	timeline := make([]map[string]any, 0, len(insights.Monthly))
	for _, m := range insights.Monthly {
		timeline = append(timeline, map[string]any{
			"month":   m.Label(),
			"income":  grounding.FromPence(m.CreditPence),
			"spend":   grounding.FromPence(m.DebitPence),
			"surplus": grounding.FromPence(m.NetPence),
		})
	}

	return &FactBundle{
		Tool: "get_spending_insights",
		Facts: map[string]any{
			"customer_id":               insights.CustomerID,
			"analysis_period_months":    insights.PeriodMonths,
			"average_monthly_spend":     grounding.FromPence(insights.AvgSpendPence),
			"average_monthly_income":    grounding.FromPence(insights.AvgIncomePence),
			"average_monthly_surplus":   grounding.FromPence(insights.AvgSurplusPence),
			"current_balance_estimate":  grounding.FromPence(insights.BalancePence),
			"subscription_monthly_cost": grounding.FromPence(insights.SubscriptionPence),
			"spend_trend":               insights.Trend,
			"highest_spend_month":       insights.HighestSpendMonth,
			"lowest_spend_month":        insights.LowestSpendMonth,
			"top_categories":            categories,
			"monthly_timeline":          timeline,
		},
	}, nil
}

// CategoryDetailTool breaks one spending category down by merchant and
// transaction.
type CategoryDetailTool struct {
	profiles ProfileStore
}

// NewCategoryDetailTool creates the tool over a profile source.
func NewCategoryDetailTool(profiles ProfileStore) *CategoryDetailTool {
	return &CategoryDetailTool{profiles: profiles}
}

func (t *CategoryDetailTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "get_category_detail",
		Description: "Break down one spending category (e.g. eating_out, groceries, subscriptions) into merchants and individual transactions.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{"type": "string"},
				"category":    map[string]any{"type": "string"},
				"months":      map[string]any{"type": "integer"},
			},
			"required": []any{"customer_id", "category"},
		},
	}
}

type categoryArgs struct {
	CustomerID string `json:"customer_id"`
	Category   string `json:"category"`
	Months     int    `json:"months"`
}

func (t *CategoryDetailTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in categoryArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Category == "" {
		return nil, aisageerr.New(aisageerr.CodeToolArgumentsInvalid, "category is required")
	}
	if !knownCategory(Category(in.Category)) {
		return nil, aisageerr.New(aisageerr.CodeToolArgumentsInvalid, "unknown category: "+in.Category)
	}
	if in.Months <= 0 {
		in.Months = 3
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	txns := NewAnalyser(profile).CategoryTransactions(Category(in.Category), in.Months)

	var total int64
	byMerchant := make(map[string]int64)
	txnFacts := make([]map[string]any, 0, len(txns))
	for _, txn := range txns {
		amount := -txn.AmountPence
		total += amount
		byMerchant[txn.Merchant] += amount
		txnFacts = append(txnFacts, map[string]any{
			"date":     txn.Date.Format("2006-01-02"),
			"merchant": txn.Merchant,
			"amount":   grounding.FromPence(amount),
		})
	}

	merchants := make([]map[string]any, 0, len(byMerchant))
	for m, v := range byMerchant {
		merchants = append(merchants, map[string]any{"merchant": m, "total": grounding.FromPence(v)})
	}

	return &FactBundle{
		Tool: "get_category_detail",
		Facts: map[string]any{
			"category":          in.Category,
			"period_months":     in.Months,
			"total_spend":       grounding.FromPence(total),
			"transaction_count": len(txns),
			"average_per_month": grounding.FromPence(total / int64(in.Months)),
			"top_merchants":     merchants,
			"transactions":      txnFacts,
		},
	}, nil
}

// SavingsOpportunitiesTool flags concrete reduction candidates from the
// spending data. Thresholds follow common budgeting guidance; every figure
// in the output is computed, not estimated.
type SavingsOpportunitiesTool struct {
	profiles ProfileStore
}

// NewSavingsOpportunitiesTool creates the tool over a profile source.
func NewSavingsOpportunitiesTool(profiles ProfileStore) *SavingsOpportunitiesTool {
	return &SavingsOpportunitiesTool{profiles: profiles}
}

func (t *SavingsOpportunitiesTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "get_savings_opportunities",
		Description: "Identify data-backed monthly savings opportunities with exact amounts.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{"type": "string"},
			},
			"required": []any{"customer_id"},
		},
	}
}

func (t *SavingsOpportunitiesTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in spendingArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	insights := NewAnalyser(profile).FullInsights(3)

	var opportunities []map[string]any

	// Eating out above 30% of grocery spend.
	var eatingOut, groceries int64
	for _, c := range insights.TopCategories {
		switch c.Category {
		case CategoryEatingOut:
			eatingOut = c.TotalPence
		case CategoryGroceries:
			groceries = c.TotalPence
		}
	}
	if groceries > 0 && eatingOut*100 > groceries*30 {
		monthly := eatingOut / int64(insights.PeriodMonths)
		saving := monthly * 30 / 100
		opportunities = append(opportunities, map[string]any{
			"area":                     "eating_out",
			"monthly_spend":            grounding.FromPence(monthly),
			"potential_monthly_saving": grounding.FromPence(saving),
			"annual_saving":            grounding.FromPence(saving * 12),
			"tip":                      "Reducing eating out by 30% would free up this amount each month.",
		})
	}

	// Subscriptions above £50/month.
	if insights.SubscriptionPence > 5000 {
		saving := insights.SubscriptionPence * 25 / 100
		opportunities = append(opportunities, map[string]any{
			"area":                     "subscriptions",
			"monthly_spend":            grounding.FromPence(insights.SubscriptionPence),
			"potential_monthly_saving": grounding.FromPence(saving),
			"annual_saving":            grounding.FromPence(saving * 12),
			"tip":                      "Review unused subscriptions, a common source of silent spending.",
		})
	}

	// Savings rate below 10% of income.
	if insights.AvgIncomePence > 0 && insights.SavingsRatePermille() < 100 {
		gap := insights.AvgIncomePence*20/100 - insights.AvgSurplusPence
		opportunities = append(opportunities, map[string]any{
			"area":         "savings_rate",
			"current_rate": fmt.Sprintf("%.1f%%", float64(insights.SavingsRatePermille())/10),
			"target_rate":  "20%",
			"gap_monthly":  grounding.FromPence(gap),
			"tip":          "Common guidance suggests saving at least 20% of take-home pay.",
		})
	}

	return &FactBundle{
		Tool: "get_savings_opportunities",
		Facts: map[string]any{
			"monthly_surplus":   grounding.FromPence(insights.AvgSurplusPence),
			"opportunities":     opportunities,
			"opportunity_count": len(opportunities),
		},
	}, nil
}
