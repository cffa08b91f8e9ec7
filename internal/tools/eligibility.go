// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aisage-dev/aisage/internal/grounding"
	"github.com/aisage-dev/aisage/internal/provider"
)

// eligibilityCaveat accompanies every eligibility check. The screen is a
// guide, not an application decision.
const eligibilityCaveat = "This is an indicative check based on transaction history only. Eligibility is confirmed when you apply, and some products require a credit assessment."

type productCheck struct {
	criteriaMet []string
	gaps        []string
}

type product struct {
	id          string
	name        string
	description string
	check       func(insights *SpendingInsights) productCheck
}

// catalogue is the static set of screenable products. Criteria use only
// figures derivable from transactions.
var catalogue = []product{
	{
		id:          "club_sage_account",
		name:        "Club Sage Current Account",
		description: "Rewards current account with cashback on household bills.",
		check: func(in *SpendingInsights) productCheck {
			var c productCheck
			if in.AvgIncomePence >= 150000 {
				c.criteriaMet = append(c.criteriaMet, fmt.Sprintf("Monthly income of %s meets the £1,500.00 minimum deposit requirement.", grounding.FromPence(in.AvgIncomePence)))
			} else {
				c.gaps = append(c.gaps, fmt.Sprintf("Requires £1,500.00 paid in monthly; observed income is %s.", grounding.FromPence(in.AvgIncomePence)))
			}
			return c
		},
	},
	{
		id:          "easy_saver",
		name:        "Easy Saver",
		description: "Instant-access savings account with no minimum balance.",
		check: func(in *SpendingInsights) productCheck {
			var c productCheck
			if in.AvgSurplusPence >= 5000 {
				c.criteriaMet = append(c.criteriaMet, fmt.Sprintf("Average monthly surplus of %s supports regular deposits of £50.00 or more.", grounding.FromPence(in.AvgSurplusPence)))
			} else {
				c.gaps = append(c.gaps, fmt.Sprintf("A monthly surplus of at least £50.00 is recommended; observed surplus is %s.", grounding.FromPence(in.AvgSurplusPence)))
			}
			return c
		},
	},
	{
		id:          "monthly_saver",
		name:        "Monthly Saver",
		description: "Fixed-rate regular saver, £25.00 to £400.00 per month for 12 months.",
		check: func(in *SpendingInsights) productCheck {
			var c productCheck
			switch {
			case in.AvgSurplusPence >= 2500 && in.AvgSurplusPence <= 40000:
				c.criteriaMet = append(c.criteriaMet, fmt.Sprintf("Surplus of %s fits the £25.00-£400.00 monthly deposit range.", grounding.FromPence(in.AvgSurplusPence)))
			case in.AvgSurplusPence > 40000:
				c.criteriaMet = append(c.criteriaMet, "Surplus exceeds the £400.00 monthly cap, so the full allowance is affordable.")
			default:
				c.gaps = append(c.gaps, fmt.Sprintf("Requires at least £25.00 per month; observed surplus is %s.", grounding.FromPence(in.AvgSurplusPence)))
			}
			return c
		},
	},
	{
		id:          "cash_isa",
		name:        "Cash ISA",
		description: "Tax-free savings up to the annual ISA allowance.",
		check: func(in *SpendingInsights) productCheck {
			var c productCheck
			if in.AvgSurplusPence >= 5000 {
				c.criteriaMet = append(c.criteriaMet, fmt.Sprintf("Surplus of %s supports meaningful tax-free saving.", grounding.FromPence(in.AvgSurplusPence)))
			} else {
				c.gaps = append(c.gaps, "A regular surplus of £50.00 or more makes an ISA worthwhile; the observed surplus is below that.")
			}
			return c
		},
	},
	{
		id:          "personal_loan",
		name:        "Personal Loan",
		description: "Unsecured loan from £1,000.00 to £25,000.00.",
		check: func(in *SpendingInsights) productCheck {
			var c productCheck
			if in.AvgIncomePence >= 100000 {
				c.criteriaMet = append(c.criteriaMet, fmt.Sprintf("Monthly income of %s meets the £1,000.00 minimum.", grounding.FromPence(in.AvgIncomePence)))
			} else {
				c.gaps = append(c.gaps, fmt.Sprintf("Requires monthly income of £1,000.00 or more; observed income is %s.", grounding.FromPence(in.AvgIncomePence)))
			}
			c.gaps = append(c.gaps, "Debt-to-income ratio requires credit assessment — cannot be verified from transactions alone.")
			return c
		},
	},
}

type eligibilityArgs struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
}

// ProductEligibilityTool screens the product catalogue against a
// customer's observed income and surplus, reporting criteria met and
// gaps. Language stays indicative ("may qualify"), never promissory.
type ProductEligibilityTool struct {
	profiles ProfileStore
}

func NewProductEligibilityTool(profiles ProfileStore) *ProductEligibilityTool {
	return &ProductEligibilityTool{profiles: profiles}
}

func (t *ProductEligibilityTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name:        "check_product_eligibility",
		Description: "Screen savings and borrowing products against the customer's observed income and surplus. Returns criteria met, gaps and an indicative eligibility signal per product.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{"type": "string"},
				"product_id":  map[string]any{"type": "string", "description": "Optional: restrict the check to one product."},
			},
			"required": []any{"customer_id"},
		},
	}
}

func (t *ProductEligibilityTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in eligibilityArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	insights := NewAnalyser(profile).FullInsights(3)

	var results []map[string]any
	for _, p := range catalogue {
		if in.ProductID != "" && p.id != in.ProductID {
			continue
		}
		c := p.check(insights)
		eligible := appearsEligible(c)
		signal := "unlikely to qualify at present"
		if eligible {
			signal = "may qualify"
		}
		results = append(results, map[string]any{
			"product_id":       p.id,
			"product":          p.name,
			"description":      p.description,
			"criteria_met":     c.criteriaMet,
			"gaps":             c.gaps,
			"appears_eligible": eligible,
			"signal":           signal,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i]["appears_eligible"].(bool) && !results[j]["appears_eligible"].(bool)
	})

	return &FactBundle{
		Tool: "check_product_eligibility",
		Facts: map[string]any{
			"customer_id": insights.CustomerID,
			"products":    results,
			"caveat":      eligibilityCaveat,
		},
	}, nil
}

// appearsEligible holds when every checkable criterion is met. Gaps that
// only defer to a credit assessment do not count against the customer as
// long as something was positively verified.
func appearsEligible(c productCheck) bool {
	if len(c.gaps) == 0 {
		return true
	}
	if len(c.criteriaMet) == 0 {
		return false
	}
	for _, g := range c.gaps {
		if !strings.Contains(g, "credit assessment") {
			return false
		}
	}
	return true
}
