// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisage-dev/aisage/internal/grounding"
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

func execFacts(t *testing.T, tool Tool, args string) map[string]any {
	t.Helper()
	bundle, err := tool.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	content, err := bundle.Content()
	require.NoError(t, err)

	// Every monetary figure a tool emits must already be canonical.
	for _, amt := range grounding.Extract(content) {
		_, ok := grounding.Canonicalize(string(amt))
		assert.True(t, ok, "amount %q must canonicalize", amt)
	}

	var facts map[string]any
	require.NoError(t, json.Unmarshal([]byte(content), &facts))
	return facts
}

func TestSpendingInsightsTool(t *testing.T) {
	tool := NewSpendingInsightsTool(NewDemoProfileStore(6))
	facts := execFacts(t, tool, `{"customer_id":"cust-1"}`)

	assert.Equal(t, "£3200.00", facts["average_monthly_income"])
	assert.Contains(t, facts, "average_monthly_spend")
	assert.Contains(t, facts, "current_balance_estimate")
	assert.Contains(t, []any{"increasing", "decreasing", "stable"}, facts["spend_trend"])

	cats, ok := facts["top_categories"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, cats)
	assert.LessOrEqual(t, len(cats), 6)
}

func TestSpendingInsightsToolRequiresCustomer(t *testing.T) {
	tool := NewSpendingInsightsTool(NewDemoProfileStore(6))
	_, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, aisageerr.IsFactUnavailable(err))
}

func TestCategoryDetailTool(t *testing.T) {
	tool := NewCategoryDetailTool(NewDemoProfileStore(6))
	facts := execFacts(t, tool, `{"customer_id":"cust-1","category":"groceries"}`)

	assert.Equal(t, "groceries", facts["category"])
	txns, ok := facts["transactions"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, txns)
	first, ok := txns[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, first, "merchant")
	assert.Contains(t, first, "amount")
}

func TestCategoryDetailToolUnknownCategory(t *testing.T) {
	tool := NewCategoryDetailTool(NewDemoProfileStore(6))
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"customer_id":"cust-1","category":"yachts"}`))
	require.Error(t, err)
	assert.True(t, aisageerr.HasCode(err, aisageerr.CodeToolArgumentsInvalid))
}

func TestKnownCategoryCoversFullTaxonomy(t *testing.T) {
	for _, c := range []Category{
		CategoryGroceries, CategoryEatingOut, CategorySalary,
		CategorySavingsTransfer, CategoryCashWithdrawal, CategoryOther,
	} {
		assert.True(t, knownCategory(c), "category %q should be known", c)
	}
	assert.False(t, knownCategory(Category("yachts")))
}

func TestFinancialHealthTool(t *testing.T) {
	tool := NewFinancialHealthTool(NewDemoProfileStore(6))
	facts := execFacts(t, tool, `{"customer_id":"cust-1"}`)

	score, ok := facts["overall_score"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, float64(0))
	assert.LessOrEqual(t, score, float64(100))
	assert.Contains(t, []any{"A", "B", "C", "D"}, facts["overall_grade"])
	assert.NotEmpty(t, facts["summary"])

	pillars, ok := facts["pillars"].([]any)
	require.True(t, ok)
	require.Len(t, pillars, 5)
	var total float64
	for _, p := range pillars {
		pm, ok := p.(map[string]any)
		require.True(t, ok)
		assert.NotEmpty(t, pm["explanation"])
		assert.LessOrEqual(t, pm["score"].(float64), pm["max_score"].(float64))
		total += pm["score"].(float64)
	}
	assert.Equal(t, score, total, "overall score is the pillar sum")
}

func TestMortgageAffordabilityTool(t *testing.T) {
	tool := NewMortgageAffordabilityTool(NewDemoProfileStore(6))
	facts := execFacts(t, tool, `{"customer_id":"cust-1"}`)

	// Net £3,200.00/mo grosses up to £53,333.33/yr and 4.5x of that.
	assert.Equal(t, "£53333.33", facts["estimated_gross_annual"])
	assert.Equal(t, "£239999.98", facts["max_borrowing_estimate"])
	assert.Equal(t, "£1120.00", facts["max_affordable_payment"])

	scenarios, ok := facts["scenarios"].([]any)
	require.True(t, ok)
	require.Len(t, scenarios, 3)
	for _, s := range scenarios {
		sm := s.(map[string]any)
		assert.Contains(t, sm, "stressed_monthly_payment")
		assert.Contains(t, sm, "is_affordable")
	}
	assert.NotContains(t, facts, "requested_assessment")
}

func TestMortgageAffordabilityToolRequestedProperty(t *testing.T) {
	tool := NewMortgageAffordabilityTool(NewDemoProfileStore(6))
	facts := execFacts(t, tool, `{"customer_id":"cust-1","property_value_pounds":250000,"deposit_pounds":50000}`)

	req, ok := facts["requested_assessment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "£200000.00", req["loan_required"])
	assert.Equal(t, "80.0%", req["loan_to_value"])
	assert.Equal(t, true, req["within_borrowing_range"])
}

func TestMonthlyPaymentPence(t *testing.T) {
	// £200,000 over 25 years at 4.79% is about £1,144.84/mo by the
	// standard annuity formula.
	got := monthlyPaymentPence(20000000, 479, 25)
	assert.InDelta(t, 114484, got, 50)

	assert.Zero(t, monthlyPaymentPence(0, 479, 25))
	assert.Equal(t, int64(1000), monthlyPaymentPence(120000, 0, 10))
}

func TestDebtSavingsTool(t *testing.T) {
	tool := NewDebtSavingsTool(NewDemoProfileStore(6))

	t.Run("high rate debt wins", func(t *testing.T) {
		facts := execFacts(t, tool, `{"customer_id":"cust-1","debt_balance_pounds":3000,"debt_rate_pct":22.9,"savings_rate_pct":4.2,"monthly_amount_pounds":200}`)
		assert.Equal(t, "pay_debt_first", facts["recommendation"])

		payoff, ok := facts["debt_payoff"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, payoff["clears_debt"])
		assert.Positive(t, payoff["months_to_clear"].(float64))
	})

	t.Run("savings rate beats debt rate", func(t *testing.T) {
		facts := execFacts(t, tool, `{"customer_id":"cust-1","debt_balance_pounds":5000,"debt_rate_pct":2.9,"savings_rate_pct":4.5,"monthly_amount_pounds":200}`)
		assert.Equal(t, "save_first", facts["recommendation"])
	})

	t.Run("close rates split", func(t *testing.T) {
		facts := execFacts(t, tool, `{"customer_id":"cust-1","debt_balance_pounds":5000,"debt_rate_pct":5.0,"savings_rate_pct":4.5,"monthly_amount_pounds":200}`)
		assert.Equal(t, "split", facts["recommendation"])
	})

	t.Run("payment below interest never clears", func(t *testing.T) {
		facts := execFacts(t, tool, `{"customer_id":"cust-1","debt_balance_pounds":50000,"debt_rate_pct":30,"monthly_amount_pounds":100,"savings_rate_pct":4}`)
		payoff, ok := facts["debt_payoff"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, false, payoff["clears_debt"])
	})

	t.Run("rejects non-positive balance", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), json.RawMessage(`{"customer_id":"cust-1","debt_balance_pounds":0,"debt_rate_pct":5,"savings_rate_pct":4}`))
		require.Error(t, err)
		assert.True(t, aisageerr.HasCode(err, aisageerr.CodeToolArgumentsInvalid))
	})
}

func TestBudgetPlannerTool(t *testing.T) {
	tool := NewBudgetPlannerTool(NewDemoProfileStore(6))
	facts := execFacts(t, tool, `{"customer_id":"cust-1"}`)

	assert.Equal(t, "50/30/20", facts["framework"])
	buckets, ok := facts["buckets"].([]any)
	require.True(t, ok)
	require.Len(t, buckets, 3)
	for _, b := range buckets {
		bm := b.(map[string]any)
		assert.Contains(t, []any{"on_track", "over", "under"}, bm["status"])
	}
	assert.NotContains(t, facts, "goal_plan")
}

func TestBudgetPlannerToolGoal(t *testing.T) {
	tool := NewBudgetPlannerTool(NewDemoProfileStore(6))

	t.Run("achievable goal", func(t *testing.T) {
		facts := execFacts(t, tool, `{"customer_id":"cust-1","goal_name":"holiday fund","goal_target_pounds":1200,"goal_months":12}`)
		goal, ok := facts["goal_plan"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "£100.00", goal["monthly_required"])
		assert.Equal(t, true, goal["achievable"])
	})

	t.Run("unreachable goal reports shortfall", func(t *testing.T) {
		facts := execFacts(t, tool, `{"customer_id":"cust-1","goal_name":"house deposit","goal_target_pounds":60000,"goal_months":6}`)
		goal, ok := facts["goal_plan"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, false, goal["achievable"])
		assert.Contains(t, goal, "monthly_shortfall")
	})

	t.Run("goal requires target", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), json.RawMessage(`{"customer_id":"cust-1","goal_name":"holiday"}`))
		require.Error(t, err)
		assert.True(t, aisageerr.HasCode(err, aisageerr.CodeToolArgumentsInvalid))
	})
}

func TestProductEligibilityTool(t *testing.T) {
	tool := NewProductEligibilityTool(NewDemoProfileStore(6))
	facts := execFacts(t, tool, `{"customer_id":"cust-1"}`)

	products, ok := facts["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 5)
	assert.NotEmpty(t, facts["caveat"])

	seenIneligible := false
	for _, p := range products {
		pm := p.(map[string]any)
		eligible := pm["appears_eligible"].(bool)
		if !eligible {
			seenIneligible = true
		} else {
			assert.False(t, seenIneligible, "eligible products sort first")
			assert.Equal(t, "may qualify", pm["signal"])
		}
	}
}

func TestProductEligibilityToolSingleProduct(t *testing.T) {
	tool := NewProductEligibilityTool(NewDemoProfileStore(6))
	facts := execFacts(t, tool, `{"customer_id":"cust-1","product_id":"personal_loan"}`)

	products, ok := facts["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 1)
	pm := products[0].(map[string]any)
	assert.Equal(t, "personal_loan", pm["product_id"])

	// The credit assessment gap alone does not make the product
	// ineligible when income was verified.
	gaps := pm["gaps"].([]any)
	require.NotEmpty(t, gaps)
	assert.Equal(t, true, pm["appears_eligible"])
}

func TestAppearsEligible(t *testing.T) {
	tests := []struct {
		name  string
		check productCheck
		want  bool
	}{
		{"no gaps", productCheck{criteriaMet: []string{"income ok"}}, true},
		{"hard gap", productCheck{criteriaMet: []string{"income ok"}, gaps: []string{"needs more income"}}, false},
		{"credit gap only", productCheck{criteriaMet: []string{"income ok"}, gaps: []string{"requires credit assessment"}}, true},
		{"credit gap with nothing verified", productCheck{gaps: []string{"requires credit assessment"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, appearsEligible(tt.check))
		})
	}
}

func TestKnowledgeBaseTool(t *testing.T) {
	tool := NewKnowledgeBaseTool()

	t.Run("ranks relevant guidance first", func(t *testing.T) {
		facts := execFacts(t, tool, `{"query":"how big should my emergency fund be"}`)
		results, ok := facts["results"].([]any)
		require.True(t, ok)
		require.NotEmpty(t, results)
		first := results[0].(map[string]any)
		assert.Contains(t, strings.ToLower(first["title"].(string)), "emergency")
		assert.NotEmpty(t, first["source"])
	})

	t.Run("no matches yields empty results", func(t *testing.T) {
		facts := execFacts(t, tool, `{"query":"quantum chromodynamics"}`)
		assert.Empty(t, facts["results"])
	})

	t.Run("empty query rejected", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"  "}`))
		require.Error(t, err)
		assert.True(t, aisageerr.HasCode(err, aisageerr.CodeToolArgumentsInvalid))
	})
}

func TestAdviserHandoffTool(t *testing.T) {
	desk := NewAdviserDesk()
	tool := NewAdviserHandoffTool(desk, nil)

	facts := execFacts(t, tool, `{"customer_id":"cust-1","reason":"vulnerability","summary":"customer mentioned missed rent"}`)

	ref, ok := facts["reference"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(ref, "AH-"))
	assert.Equal(t, "urgent", facts["priority"])
	assert.NotEmpty(t, facts["channels"])

	records := desk.Records()
	require.Len(t, records, 1)
	assert.Equal(t, ref, records[0].Reference)
	assert.Equal(t, "vulnerability", records[0].ReasonCode)
	assert.Equal(t, "customer mentioned missed rent", records[0].Context.Summary)
}

func TestAdviserHandoffToolUnknownReason(t *testing.T) {
	tool := NewAdviserHandoffTool(NewAdviserDesk(), nil)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"customer_id":"cust-1","reason":"boredom"}`))
	require.Error(t, err)
	assert.True(t, aisageerr.HasCode(err, aisageerr.CodeToolArgumentsInvalid))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	store := NewDemoProfileStore(6)
	reg.Register(NewSpendingInsightsTool(store))
	reg.Register(NewKnowledgeBaseTool())

	got, err := reg.Get("get_spending_insights")
	require.NoError(t, err)
	assert.Equal(t, "get_spending_insights", got.Definition().Name)

	_, err = reg.Get("no_such_tool")
	require.Error(t, err)
	assert.True(t, aisageerr.HasCode(err, aisageerr.CodeToolNotFound))

	defs := reg.Definitions()
	assert.Len(t, defs, 2)
}
