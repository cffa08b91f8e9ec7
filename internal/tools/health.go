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

// Pillar weights for the financial health score (sums to 100).
const (
	maxSavingsRateScore      = 30
	maxSpendStabilityScore   = 20
	maxEssentialsRatioScore  = 20
	maxSubscriptionLoadScore = 15
	maxSurplusBufferScore    = 15
)

// healthPillar is one scored component of the overall report. The
// explanation is assembled from computed figures, not generated.
type healthPillar struct {
	Name        string `json:"name"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"max_score"`
	Grade       string `json:"grade"`
	Explanation string `json:"explanation"`
}

func healthGrade(score, maxScore int) string {
	ratio := float64(score) / float64(maxScore)
	switch {
	case ratio >= 0.85:
		return "A"
	case ratio >= 0.70:
		return "B"
	case ratio >= 0.50:
		return "C"
	default:
		return "D"
	}
}

var gradeSummaries = map[string]string{
	"A": "Your finances are in great shape. Keep it up.",
	"B": "Good financial health with a few areas to optimise.",
	"C": "Some improvements could significantly boost your position.",
	"D": "Your finances need attention. Let's identify quick wins.",
}

// FinancialHealthTool computes a rule-based 0-100 score across five
// pillars. Fully deterministic so every grade can be traced back to a
// transaction-derived metric.
type FinancialHealthTool struct {
	profiles ProfileStore
}

// NewFinancialHealthTool creates the tool over a profile source.
func NewFinancialHealthTool(profiles ProfileStore) *FinancialHealthTool {
	return &FinancialHealthTool{profiles: profiles}
}

func (t *FinancialHealthTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "get_financial_health_score",
		Description: "Compute the customer's rule-based financial health score (0-100 with grade A-D) across savings rate, spend stability, essentials balance, subscription load and emergency buffer.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{"type": "string"},
			},
			"required": []any{"customer_id"},
		},
	}
}

func (t *FinancialHealthTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in spendingArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	insights := NewAnalyser(profile).FullInsights(3)

	var pillars []healthPillar

	// 1. Savings rate.
	ratePermille := insights.SavingsRatePermille()
	ratePct := float64(ratePermille) / 10
	var srScore int
	var srText string
	switch {
	case ratePermille >= 200:
		srScore = maxSavingsRateScore
		srText = fmt.Sprintf("Excellent: saving %.1f%% of income (target: 20%% or more).", ratePct)
	case ratePermille >= 100:
		srScore = 20
		srText = fmt.Sprintf("Good: saving %.1f%% of income. Aim for 20%% to score higher.", ratePct)
	case ratePermille >= 50:
		srScore = 10
		srText = fmt.Sprintf("Fair: saving %.1f%% of income. Small increases make a big difference.", ratePct)
	default:
		srScore = int(max64(0, ratePermille/10))
		srText = fmt.Sprintf("Needs attention: saving only %.1f%% of income. Consider a savings pot.", ratePct)
	}
	pillars = append(pillars, healthPillar{
		Name: "Savings Rate", Score: srScore, MaxScore: maxSavingsRateScore,
		Grade: healthGrade(srScore, maxSavingsRateScore), Explanation: srText,
	})

	// 2. Spend stability (coefficient of variation of monthly spend).
	cv := spendVariationPct(insights.Monthly)
	var ssScore int
	var ssText string
	switch {
	case cv < 10:
		ssScore = maxSpendStabilityScore
		ssText = fmt.Sprintf("Very stable spending (variation: %.1f%%). Great budgeting consistency.", cv)
	case cv < 20:
		ssScore = 15
		ssText = fmt.Sprintf("Mostly stable (variation: %.1f%%). Minor month-to-month swings.", cv)
	case cv < 35:
		ssScore = 8
		ssText = fmt.Sprintf("Moderate variation (%.1f%%): some months spend significantly more.", cv)
	default:
		ssScore = 3
		ssText = fmt.Sprintf("High variation (%.1f%%): spending is unpredictable. A monthly budget could help.", cv)
	}
	pillars = append(pillars, healthPillar{
		Name: "Spend Stability", Score: ssScore, MaxScore: maxSpendStabilityScore,
		Grade: healthGrade(ssScore, maxSpendStabilityScore), Explanation: ssText,
	})

	// 3. Essentials ratio.
	var essentialsTotal, spendTotal int64
	for _, c := range insights.TopCategories {
		spendTotal += c.TotalPence
		if essentialCategories[c.Category] {
			essentialsTotal += c.TotalPence
		}
	}
	var essentialsPct float64
	if spendTotal > 0 {
		essentialsPct = float64(essentialsTotal) * 100 / float64(spendTotal)
	}
	var erScore int
	var erText string
	switch {
	case essentialsPct <= 60:
		erScore = maxEssentialsRatioScore
		erText = fmt.Sprintf("Healthy balance: %.1f%% on essentials, leaving room for savings.", essentialsPct)
	case essentialsPct <= 75:
		erScore = 13
		erText = fmt.Sprintf("%.1f%% of spend on essentials: limited discretionary headroom.", essentialsPct)
	default:
		erScore = 5
		erText = fmt.Sprintf("%.1f%% on essentials is high. Review fixed costs where possible.", essentialsPct)
	}
	pillars = append(pillars, healthPillar{
		Name: "Essentials Balance", Score: erScore, MaxScore: maxEssentialsRatioScore,
		Grade: healthGrade(erScore, maxEssentialsRatioScore), Explanation: erText,
	})

	// 4. Subscription load.
	var subPct float64
	if insights.AvgIncomePence > 0 {
		subPct = float64(insights.SubscriptionPence) * 100 / float64(insights.AvgIncomePence)
	}
	subCost := grounding.FromPence(insights.SubscriptionPence)
	var subScore int
	var subText string
	switch {
	case subPct <= 3:
		subScore = maxSubscriptionLoadScore
		subText = fmt.Sprintf("Low subscription load (%.1f%% of income = %s/mo).", subPct, subCost)
	case subPct <= 6:
		subScore = 10
		subText = fmt.Sprintf("Moderate subscriptions (%.1f%% of income = %s/mo). Worth an annual review.", subPct, subCost)
	default:
		subScore = 4
		subText = fmt.Sprintf("High subscription load (%.1f%% of income = %s/mo). Consider consolidating.", subPct, subCost)
	}
	pillars = append(pillars, healthPillar{
		Name: "Subscription Load", Score: subScore, MaxScore: maxSubscriptionLoadScore,
		Grade: healthGrade(subScore, maxSubscriptionLoadScore), Explanation: subText,
	})

	// 5. Surplus buffer (months of spend covered by current balance).
	var monthsBuffer float64
	if insights.AvgSpendPence > 0 {
		monthsBuffer = float64(insights.BalancePence) / float64(insights.AvgSpendPence)
	}
	var bufScore int
	var bufText string
	switch {
	case monthsBuffer >= 3:
		bufScore = maxSurplusBufferScore
		bufText = fmt.Sprintf("Strong buffer: %.1f months of expenses in account (target: 3 months or more).", monthsBuffer)
	case monthsBuffer >= 1:
		bufScore = 8
		bufText = fmt.Sprintf("%.1f months buffer. Building to 3 months provides a solid safety net.", monthsBuffer)
	default:
		bufScore = 3
		bufText = fmt.Sprintf("Low buffer (%.1f months). Priority: build an emergency fund.", monthsBuffer)
	}
	pillars = append(pillars, healthPillar{
		Name: "Emergency Buffer", Score: bufScore, MaxScore: maxSurplusBufferScore,
		Grade: healthGrade(bufScore, maxSurplusBufferScore), Explanation: bufText,
	})

	overall := 0
	for _, p := range pillars {
		overall += p.Score
	}
	grade := healthGrade(overall, 100)

	return &FactBundle{
		Tool: "get_financial_health_score",
		Facts: map[string]any{
			"customer_id":      insights.CustomerID,
			"overall_score":    overall,
			"overall_grade":    grade,
			"summary":          gradeSummaries[grade],
			"pillars":          pillars,
			"savings_rate_pct": fmt.Sprintf("%.1f%%", ratePct),
			"months_buffer":    fmt.Sprintf("%.1f", monthsBuffer),
		},
	}, nil
}

// spendVariationPct computes the coefficient of variation of monthly spend
// as a percentage.
func spendVariationPct(monthly []MonthlySummary) float64 {
	if len(monthly) < 2 {
		return 0
	}
	var total float64
	for _, m := range monthly {
		total += float64(m.DebitPence)
	}
	mean := total / float64(len(monthly))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, m := range monthly {
		d := float64(m.DebitPence) - mean
		variance += d * d
	}
	variance /= float64(len(monthly))
	return math.Sqrt(variance) / mean * 100
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
