// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/aisage-dev/aisage/internal/grounding"
	"github.com/aisage-dev/aisage/internal/provider"
)

// Indicative illustration rates in basis points. These are not offers.
const (
	rateTwoYearFixedBPS  = 499
	rateFiveYearFixedBPS = 479
	rateTrackerBPS       = 519
	stressMarginBPS      = 300

	defaultMortgageTermYears = 25
	loanToIncomeMultipleX10  = 45 // 4.5x gross annual income
	paymentCapPctOfNet       = 35
)

type mortgageArgs struct {
	CustomerID    string `json:"customer_id"`
	PropertyValue int64  `json:"property_value_pounds"`
	Deposit       int64  `json:"deposit_pounds"`
	TermYears     int    `json:"term_years"`
}

// MortgageAffordabilityTool produces a deterministic affordability
// illustration from observed income and spend. It never quotes live
// products: every rate is labelled indicative.
type MortgageAffordabilityTool struct {
	profiles ProfileStore
}

func NewMortgageAffordabilityTool(profiles ProfileStore) *MortgageAffordabilityTool {
	return &MortgageAffordabilityTool{profiles: profiles}
}

func (t *MortgageAffordabilityTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "assess_mortgage_affordability",
		Description: "Estimate an indicative mortgage borrowing range and stressed monthly payments from the customer's observed income and spending. Optionally assess a specific property value and deposit.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id":           map[string]any{"type": "string"},
				"property_value_pounds": map[string]any{"type": "integer", "description": "Optional target property value in whole pounds."},
				"deposit_pounds":        map[string]any{"type": "integer", "description": "Optional available deposit in whole pounds."},
				"term_years":            map[string]any{"type": "integer", "description": "Mortgage term in years, default 25."},
			},
			"required": []any{"customer_id"},
		},
	}
}

func (t *MortgageAffordabilityTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in mortgageArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	term := in.TermYears
	if term <= 0 {
		term = defaultMortgageTermYears
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	insights := NewAnalyser(profile).FullInsights(3)

	netMonthly := insights.AvgIncomePence
	// Approximate gross from net take-home assuming a 28% overall
	// deduction rate for a basic-rate taxpayer.
	grossAnnual := netMonthly * 12 * 100 / 72
	maxLoan := grossAnnual * loanToIncomeMultipleX10 / 10
	maxAffordablePayment := netMonthly * paymentCapPctOfNet / 100

	scenarios := []map[string]any{}
	for _, s := range []struct {
		name string
		bps  int
	}{
		{"2yr_fixed", rateTwoYearFixedBPS},
		{"5yr_fixed", rateFiveYearFixedBPS},
		{"tracker", rateTrackerBPS},
	} {
		payment := monthlyPaymentPence(maxLoan, s.bps, term)
		stressed := monthlyPaymentPence(maxLoan, s.bps+stressMarginBPS, term)
		scenarios = append(scenarios, map[string]any{
			"product":                  s.name,
			"indicative_rate":          fmt.Sprintf("%.2f%%", float64(s.bps)/100),
			"monthly_payment":          grounding.FromPence(payment),
			"stressed_rate":            fmt.Sprintf("%.2f%%", float64(s.bps+stressMarginBPS)/100),
			"stressed_monthly_payment": grounding.FromPence(stressed),
			"is_affordable":            stressed <= maxAffordablePayment,
		})
	}

	facts := map[string]any{
		"customer_id":              insights.CustomerID,
		"estimated_net_monthly":    grounding.FromPence(netMonthly),
		"estimated_gross_annual":   grounding.FromPence(grossAnnual),
		"max_borrowing_estimate":   grounding.FromPence(maxLoan),
		"loan_to_income_multiple":  "4.5x",
		"max_affordable_payment":   grounding.FromPence(maxAffordablePayment),
		"term_years":               term,
		"scenarios":                scenarios,
		"suggested_deposit_5pct":   grounding.FromPence(maxLoan * 5 / 95),
		"suggested_deposit_10pct":  grounding.FromPence(maxLoan * 10 / 90),
		"average_monthly_spending": grounding.FromPence(insights.AvgSpendPence),
		"note":                     "Indicative illustration only. Actual lending decisions depend on a full affordability and credit assessment by a lender.",
	}

	if in.PropertyValue > 0 {
		propertyPence := in.PropertyValue * 100
		depositPence := in.Deposit * 100
		requested := propertyPence - depositPence
		if requested < 0 {
			requested = 0
		}
		var ltvPct float64
		if propertyPence > 0 {
			ltvPct = float64(requested) * 100 / float64(propertyPence)
		}
		payment := monthlyPaymentPence(requested, rateFiveYearFixedBPS, term)
		stressed := monthlyPaymentPence(requested, rateFiveYearFixedBPS+stressMarginBPS, term)
		facts["requested_assessment"] = map[string]any{
			"property_value":           grounding.FromPence(propertyPence),
			"deposit":                  grounding.FromPence(depositPence),
			"loan_required":            grounding.FromPence(requested),
			"loan_to_value":            fmt.Sprintf("%.1f%%", ltvPct),
			"within_borrowing_range":   requested <= maxLoan,
			"monthly_payment_5yr":      grounding.FromPence(payment),
			"stressed_monthly_payment": grounding.FromPence(stressed),
			"is_affordable":            stressed <= maxAffordablePayment,
		}
	}

	return &FactBundle{Tool: "assess_mortgage_affordability", Facts: facts}, nil
}

// monthlyPaymentPence computes the standard annuity repayment for a loan
// at an annual rate in basis points over a term in years, rounded to the
// nearest penny.
func monthlyPaymentPence(loanPence int64, rateBPS int, termYears int) int64 {
	if loanPence <= 0 || termYears <= 0 {
		return 0
	}
	months := termYears * 12
	monthlyRate := float64(rateBPS) / 10000 / 12
	if monthlyRate == 0 {
		return loanPence / int64(months)
	}
	factor := math.Pow(1+monthlyRate, float64(months))
	payment := float64(loanPence) * monthlyRate * factor / (factor - 1)
	return int64(math.Round(payment))
}
