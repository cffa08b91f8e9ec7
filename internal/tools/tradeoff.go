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
	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// amortisationCapMonths guards the repayment simulation against payments
// that never clear the balance.
const amortisationCapMonths = 600

type tradeoffArgs struct {
	CustomerID       string  `json:"customer_id"`
	DebtBalance      int64   `json:"debt_balance_pounds"`
	DebtRatePct      float64 `json:"debt_rate_pct"`
	SavingsRatePct   float64 `json:"savings_rate_pct"`
	MonthlyAmount    int64   `json:"monthly_amount_pounds"`
	DebtIsMortgage   bool    `json:"debt_is_mortgage"`
	RemainingTermYrs int     `json:"remaining_term_years"`
}

// DebtSavingsTool compares directing a monthly amount at a debt versus
// a savings account, using simple monthly compounding for both sides.
type DebtSavingsTool struct {
	profiles ProfileStore
}

func NewDebtSavingsTool(profiles ProfileStore) *DebtSavingsTool {
	return &DebtSavingsTool{profiles: profiles}
}

func (t *DebtSavingsTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "analyse_debt_vs_savings",
		Description: "Compare putting a monthly amount towards paying down a debt versus saving it, including interest saved, interest earned and a rate-based recommendation.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id":           map[string]any{"type": "string"},
				"debt_balance_pounds":   map[string]any{"type": "integer"},
				"debt_rate_pct":         map[string]any{"type": "number", "description": "Annual interest rate on the debt, e.g. 22.9."},
				"savings_rate_pct":      map[string]any{"type": "number", "description": "Annual savings interest rate, e.g. 4.2."},
				"monthly_amount_pounds": map[string]any{"type": "integer", "description": "Monthly amount available. Defaults to the observed average surplus."},
				"debt_is_mortgage":      map[string]any{"type": "boolean"},
				"remaining_term_years":  map[string]any{"type": "integer"},
			},
			"required": []any{"customer_id", "debt_balance_pounds", "debt_rate_pct", "savings_rate_pct"},
		},
	}
}

func (t *DebtSavingsTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in tradeoffArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.DebtBalance <= 0 {
		return nil, aisageerr.New(aisageerr.CodeToolArgumentsInvalid, "debt_balance_pounds must be positive")
	}
	if in.DebtRatePct < 0 || in.SavingsRatePct < 0 {
		return nil, aisageerr.New(aisageerr.CodeToolArgumentsInvalid, "interest rates must not be negative")
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	insights := NewAnalyser(profile).FullInsights(3)

	monthlyPence := in.MonthlyAmount * 100
	if monthlyPence <= 0 {
		monthlyPence = insights.AvgSurplusPence
	}
	if monthlyPence <= 0 {
		return nil, aisageerr.New(aisageerr.CodeToolFactUnavailable, "no monthly surplus available to allocate")
	}

	debtPence := in.DebtBalance * 100
	months, interestPaid := amortise(debtPence, in.DebtRatePct, monthlyPence)

	// Interest earned by saving the same amount monthly over the payoff
	// horizon, compounded monthly.
	horizon := months
	if horizon <= 0 || horizon > amortisationCapMonths {
		horizon = amortisationCapMonths
	}
	saved := futureValuePence(monthlyPence, in.SavingsRatePct, horizon)
	contributed := monthlyPence * int64(horizon)
	interestEarned := saved - contributed

	rateDiff := in.DebtRatePct - in.SavingsRatePct
	var recommendation, reason string
	switch {
	case rateDiff > 2:
		recommendation = "pay_debt_first"
		reason = fmt.Sprintf("The debt rate (%.1f%%) is well above the savings rate (%.1f%%), so repaying it first saves more than saving earns.", in.DebtRatePct, in.SavingsRatePct)
	case rateDiff < -0.5:
		recommendation = "save_first"
		reason = fmt.Sprintf("The savings rate (%.1f%%) beats the debt rate (%.1f%%), so money works harder in savings while making minimum repayments.", in.SavingsRatePct, in.DebtRatePct)
	default:
		recommendation = "split"
		reason = fmt.Sprintf("The rates are close (debt %.1f%%, savings %.1f%%): splitting the amount builds a buffer while still reducing the debt.", in.DebtRatePct, in.SavingsRatePct)
	}

	facts := map[string]any{
		"customer_id":              insights.CustomerID,
		"monthly_amount":           grounding.FromPence(monthlyPence),
		"debt_balance":             grounding.FromPence(debtPence),
		"debt_rate":                fmt.Sprintf("%.1f%%", in.DebtRatePct),
		"savings_rate":             fmt.Sprintf("%.1f%%", in.SavingsRatePct),
		"recommendation":           recommendation,
		"reason":                   reason,
		"interest_earned_if_saved": grounding.FromPence(interestEarned),
		"savings_value_at_horizon": grounding.FromPence(saved),
	}

	if months > amortisationCapMonths {
		facts["debt_payoff"] = map[string]any{
			"clears_debt": false,
			"note":        "At this monthly amount the payment does not outpace the interest, so the balance never clears. A larger payment or a lower rate is needed.",
		}
	} else {
		facts["debt_payoff"] = map[string]any{
			"clears_debt":     true,
			"months_to_clear": months,
			"interest_paid":   grounding.FromPence(interestPaid),
		}
	}

	if in.DebtIsMortgage && in.RemainingTermYrs > 0 && months <= amortisationCapMonths {
		savedMonths := in.RemainingTermYrs*12 - months
		if savedMonths < 0 {
			savedMonths = 0
		}
		facts["mortgage_term_reduction_months"] = savedMonths
	}

	return &FactBundle{Tool: "analyse_debt_vs_savings", Facts: facts}, nil
}

// amortise simulates monthly repayment of a debt. It returns the number of
// months to clear the balance and the total interest paid. If the payment
// never outpaces the interest it returns a month count above the cap.
func amortise(balancePence int64, annualRatePct float64, paymentPence int64) (int, int64) {
	monthlyRate := annualRatePct / 100 / 12
	balance := float64(balancePence)
	var interestPaid float64
	for month := 1; month <= amortisationCapMonths; month++ {
		interest := balance * monthlyRate
		if float64(paymentPence) <= interest {
			return amortisationCapMonths + 1, int64(math.Round(interestPaid))
		}
		interestPaid += interest
		balance = balance + interest - float64(paymentPence)
		if balance <= 0 {
			return month, int64(math.Round(interestPaid))
		}
	}
	return amortisationCapMonths + 1, int64(math.Round(interestPaid))
}

// futureValuePence computes the value of a monthly contribution compounded
// monthly at an annual rate over a number of months.
func futureValuePence(monthlyPence int64, annualRatePct float64, months int) int64 {
	monthlyRate := annualRatePct / 100 / 12
	var value float64
	for i := 0; i < months; i++ {
		value = (value + float64(monthlyPence)) * (1 + monthlyRate)
	}
	return int64(math.Round(value))
}
