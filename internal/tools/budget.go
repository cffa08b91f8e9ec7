// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aisage-dev/aisage/internal/grounding"
	"github.com/aisage-dev/aisage/internal/provider"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// 50/30/20 bucket shares in percent of net income.
const (
	needsSharePct   = 50
	wantsSharePct   = 30
	savingsSharePct = 20

	// varianceBandPct is the tolerance either side of a bucket target
	// before it is flagged over or under.
	varianceBandPct = 5

	defaultGoalMonths = 12
)

type budgetArgs struct {
	CustomerID string `json:"customer_id"`
	GoalName   string `json:"goal_name"`
	GoalTarget int64  `json:"goal_target_pounds"`
	GoalMonths int    `json:"goal_months"`
}

// BudgetPlannerTool builds a 50/30/20 budget from observed spending and
// optionally evaluates a named savings goal against the available surplus.
type BudgetPlannerTool struct {
	profiles ProfileStore
}

func NewBudgetPlannerTool(profiles ProfileStore) *BudgetPlannerTool {
	return &BudgetPlannerTool{profiles: profiles}
}

func (t *BudgetPlannerTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "build_budget_plan",
		Description: "Build a 50/30/20 budget plan from the customer's observed income and spending, comparing actuals to targets per bucket. Optionally plans a named savings goal.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id":        map[string]any{"type": "string"},
				"goal_name":          map[string]any{"type": "string", "description": "Optional savings goal, e.g. holiday fund."},
				"goal_target_pounds": map[string]any{"type": "integer", "description": "Goal target amount in whole pounds."},
				"goal_months":        map[string]any{"type": "integer", "description": "Months to reach the goal, default 12."},
			},
			"required": []any{"customer_id"},
		},
	}
}

func (t *BudgetPlannerTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in budgetArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.GoalName != "" && in.GoalTarget <= 0 {
		return nil, aisageerr.New(aisageerr.CodeToolArgumentsInvalid, "goal_target_pounds must be positive when goal_name is set")
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	insights := NewAnalyser(profile).FullInsights(3)

	income := insights.AvgIncomePence
	if income <= 0 {
		return nil, aisageerr.New(aisageerr.CodeToolFactUnavailable, "no income observed in recent transactions")
	}

	// Category totals cover the whole window; divide down to monthly.
	monthsObserved := int64(len(insights.Monthly))
	if monthsObserved == 0 {
		return nil, aisageerr.New(aisageerr.CodeToolFactUnavailable, "no transactions in the analysis window")
	}
	var needsActual, wantsActual int64
	needsBreakdown := map[Category]int64{}
	wantsBreakdown := map[Category]int64{}
	for _, c := range insights.TopCategories {
		monthly := c.TotalPence / monthsObserved
		if essentialCategories[c.Category] {
			needsActual += monthly
			needsBreakdown[c.Category] = monthly
		} else if discretionaryCategories[c.Category] {
			wantsActual += monthly
			wantsBreakdown[c.Category] = monthly
		}
	}
	savingsActual := income - needsActual - wantsActual
	if savingsActual < 0 {
		savingsActual = 0
	}

	buckets := []map[string]any{
		bucketPlan("needs", needsSharePct, income, needsActual, needsBreakdown),
		bucketPlan("wants", wantsSharePct, income, wantsActual, wantsBreakdown),
		bucketPlan("savings", savingsSharePct, income, savingsActual, nil),
	}

	surplus := income - needsActual - wantsActual
	var recommendations []string
	if wantsActual > income*wantsSharePct/100 {
		over := wantsActual - income*wantsSharePct/100
		recommendations = append(recommendations,
			fmt.Sprintf("Discretionary spending is %s over the 30%% target. Trimming eating out or subscriptions would close most of the gap.", grounding.FromPence(over)))
	}
	if needsActual > income*needsSharePct/100 {
		recommendations = append(recommendations,
			"Essential costs exceed half of income. Reviewing utility tariffs and transport costs may free up headroom.")
	}
	if surplus >= income*savingsSharePct/100 {
		recommendations = append(recommendations,
			fmt.Sprintf("The current surplus of %s per month already meets the 20%% savings target. A standing order on payday makes it automatic.", grounding.FromPence(surplus)))
	}

	facts := map[string]any{
		"customer_id":            insights.CustomerID,
		"average_monthly_income": grounding.FromPence(income),
		"framework":              "50/30/20",
		"buckets":                buckets,
		"monthly_surplus":        grounding.FromPence(surplus),
		"recommendations":        recommendations,
	}

	if in.GoalName != "" {
		facts["goal_plan"] = goalPlan(in, surplus)
	}

	return &FactBundle{Tool: "build_budget_plan", Facts: facts}, nil
}

func bucketPlan(name string, sharePct int, incomePence, actualPence int64, breakdown map[Category]int64) map[string]any {
	target := incomePence * int64(sharePct) / 100
	band := target * varianceBandPct / 100
	status := "on_track"
	if actualPence > target+band {
		status = "over"
	} else if actualPence < target-band {
		status = "under"
	}
	plan := map[string]any{
		"bucket":     name,
		"target_pct": fmt.Sprintf("%d%%", sharePct),
		"target":     grounding.FromPence(target),
		"actual":     grounding.FromPence(actualPence),
		"status":     status,
	}
	if len(breakdown) > 0 {
		cats := make([]Category, 0, len(breakdown))
		for c := range breakdown {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool { return breakdown[cats[i]] > breakdown[cats[j]] })
		items := make([]map[string]any, 0, len(cats))
		for _, c := range cats {
			items = append(items, map[string]any{
				"category": string(c),
				"amount":   grounding.FromPence(breakdown[c]),
			})
		}
		plan["breakdown"] = items
	}
	return plan
}

func goalPlan(in budgetArgs, surplusPence int64) map[string]any {
	months := in.GoalMonths
	if months <= 0 {
		months = defaultGoalMonths
	}
	targetPence := in.GoalTarget * 100
	requiredMonthly := targetPence / int64(months)
	if targetPence%int64(months) != 0 {
		requiredMonthly++
	}
	achievable := requiredMonthly <= surplusPence

	plan := map[string]any{
		"goal":             in.GoalName,
		"target":           grounding.FromPence(targetPence),
		"timeline_months":  months,
		"monthly_required": grounding.FromPence(requiredMonthly),
		"achievable":       achievable,
	}
	if !achievable {
		plan["monthly_shortfall"] = grounding.FromPence(requiredMonthly - surplusPence)
		if surplusPence > 0 {
			stretched := (targetPence + surplusPence - 1) / surplusPence
			plan["months_at_current_surplus"] = int(stretched)
		}
	}
	return plan
}
