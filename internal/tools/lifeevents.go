// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aisage-dev/aisage/internal/grounding"
	"github.com/aisage-dev/aisage/internal/provider"
)

// LifeEventToolName is the registered name of the life-event scanner.
const LifeEventToolName = "detect_life_events"

// LifeEventTriggers matches customer phrasing that warrants a deterministic
// life-event scan before the model responds, so detected events are
// presented as observed facts rather than hypotheticals.
var LifeEventTriggers = regexp.MustCompile(`(?i)\b(baby|babies|pregnant|pregnancy|nursery|childcare|child care|` +
	`moving home|new house|first home|buying a house|buy a house|` +
	`new job|lost my job|redundan\w*|pay rise|salary|promotion|` +
	`getting married|marriage|wedding|` +
	`new rent|renting|moving out)\b`)

// lifeEventScanDays is the transaction window the detectors cover.
const lifeEventScanDays = 120

// highConfidenceThreshold marks events solid enough to state outright.
const highConfidenceThreshold = 0.70

// Merchant keyword registries, matched case-insensitively as substrings.
var (
	nurseryKeywords = []string{
		"nursery", "daycare", "day care", "childcare", "child care",
		"little stars", "tiny tots", "busy bees",
	}
	babyEquipmentKeywords = []string{
		"mothercare", "mamas and papas", "kiddicare", "pram",
		"bugaboo", "icandy", "stokke",
	}
	propertyKeywords = []string{
		"solicitor", "conveyanc", "surveyor", "stamp duty", "sdlt",
		"land registry", "arrangement fee", "valuation fee",
	}
	rentKeywords = []string{
		"rent", "letting", "landlord", "estate agent", "openrent", "spareroom",
	}
)

// lifeEvent is one detection: the pattern matched, how sure the rules are,
// and the transaction evidence that triggered it.
type lifeEvent struct {
	Type              string
	Confidence        float64
	DetectedOn        time.Time
	Evidence          []string
	Coaching          string
	NeedsConfirmation bool
}

// LifeEventTool scans transaction patterns for probable life events: a new
// baby, a property purchase, an income change, a new rental. Detection is
// rule-based and fully explainable; no model is involved at any stage.
type LifeEventTool struct {
	profiles ProfileStore
}

// NewLifeEventTool creates the tool over a profile source.
func NewLifeEventTool(profiles ProfileStore) *LifeEventTool {
	return &LifeEventTool{profiles: profiles}
}

func (t *LifeEventTool) Definition() provider.ToolDefinition {
	return provider.ToolDefinition{
		Name: LifeEventToolName,
		Description: "Scan recent transactions for probable life events (new baby, property purchase, " +
			"income change, new rental) with confidence scores and evidence. Call this first whenever " +
			"the customer mentions a life change. Acknowledge high-confidence events as something " +
			"already seen in their transactions, and ask for confirmation when the result requires it.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{"type": "string"},
			},
			"required": []any{"customer_id"},
		},
	}
}

type lifeEventArgs struct {
	CustomerID string `json:"customer_id"`
}

func (t *LifeEventTool) Execute(ctx context.Context, args json.RawMessage) (*FactBundle, error) {
	var in lifeEventArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	profile, err := t.profiles.Profile(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	events := detectLifeEvents(profile.Transactions)

	var highConfidence int
	eventFacts := make([]map[string]any, 0, len(events))
	for _, e := range events {
		if e.Confidence >= highConfidenceThreshold {
			highConfidence++
		}
		eventFacts = append(eventFacts, map[string]any{
			"event_type":                     e.Type,
			"confidence":                     fmt.Sprintf("%.0f%%", e.Confidence*100),
			"detected_date":                  e.DetectedOn.Format("2006-01-02"),
			"evidence":                       e.Evidence,
			"suggested_coaching":             e.Coaching,
			"requires_customer_confirmation": e.NeedsConfirmation,
		})
	}

	return &FactBundle{
		Tool: LifeEventToolName,
		Facts: map[string]any{
			"events_detected":        len(events),
			"high_confidence_events": highConfidence,
			"scan_period_days":       lifeEventScanDays,
			"detected_events":        eventFacts,
		},
	}, nil
}

// detectLifeEvents runs every detection rule over the history. Windows are
// anchored on the latest transaction date so the scan is deterministic for
// a given history.
func detectLifeEvents(txns []Transaction) []lifeEvent {
	if len(txns) == 0 {
		return nil
	}

	ref := txns[0].Date
	for _, txn := range txns {
		if txn.Date.After(ref) {
			ref = txn.Date
		}
	}

	var events []lifeEvent
	for _, detect := range []func([]Transaction, time.Time) *lifeEvent{
		detectNewBaby,
		detectPropertyPurchase,
		detectIncomeChange,
		detectNewRental,
	} {
		if e := detect(txns, ref); e != nil {
			events = append(events, *e)
		}
	}
	return events
}

func merchantMatches(merchant string, keywords []string) bool {
	m := strings.ToLower(merchant)
	for _, k := range keywords {
		if strings.Contains(m, k) {
			return true
		}
	}
	return false
}

func detectNewBaby(txns []Transaction, ref time.Time) *lifeEvent {
	cutoff := ref.AddDate(0, 0, -90)

	var nursery, equipment []Transaction
	for _, txn := range txns {
		if txn.Date.Before(cutoff) || txn.AmountPence >= 0 {
			continue
		}
		if merchantMatches(txn.Merchant, nurseryKeywords) {
			nursery = append(nursery, txn)
		}
		if merchantMatches(txn.Merchant, babyEquipmentKeywords) {
			equipment = append(equipment, txn)
		}
	}

	confidence := 0.0
	first := ref
	var evidence []string

	if len(nursery) >= 2 {
		confidence += 0.60
		evidence = append(evidence, fmt.Sprintf("%d nursery/childcare payments detected", len(nursery)))
		for _, txn := range nursery {
			if txn.Date.Before(first) {
				first = txn.Date
			}
		}
	}
	if len(equipment) > 0 {
		confidence = min(1.0, confidence+0.25)
		var total int64
		for _, txn := range equipment {
			total += -txn.AmountPence
			if txn.Date.Before(first) {
				first = txn.Date
			}
		}
		evidence = append(evidence, "Baby equipment purchases totalling "+string(grounding.FromPence(total)))
	}

	if confidence < 0.40 {
		return nil
	}
	return &lifeEvent{
		Type:       "new_baby",
		Confidence: confidence,
		DetectedOn: first,
		Evidence:   evidence,
		Coaching: "Starting a family changes the financial picture significantly. Offer to review " +
			"the budget for childcare costs, check the emergency fund, and point to government " +
			"support such as Tax-Free Childcare and Child Benefit.",
		NeedsConfirmation: true,
	}
}

// largePaymentThresholdPence marks payments big enough to signal a property
// transaction alongside solicitor or surveyor fees.
const largePaymentThresholdPence int64 = 500000

func detectPropertyPurchase(txns []Transaction, ref time.Time) *lifeEvent {
	cutoff := ref.AddDate(0, 0, -lifeEventScanDays)

	var property []Transaction
	var largePayments int
	for _, txn := range txns {
		if txn.Date.Before(cutoff) || txn.AmountPence >= 0 {
			continue
		}
		if merchantMatches(txn.Merchant, propertyKeywords) {
			property = append(property, txn)
		}
		if -txn.AmountPence > largePaymentThresholdPence {
			largePayments++
		}
	}

	confidence := 0.0
	first := ref
	var evidence []string

	if len(property) > 0 {
		confidence += 0.55
		merchants := make([]string, 0, 3)
		for _, txn := range property {
			if len(merchants) < 3 {
				merchants = append(merchants, txn.Merchant)
			}
			if txn.Date.Before(first) {
				first = txn.Date
			}
		}
		evidence = append(evidence, "Property-related payments: "+strings.Join(merchants, ", "))
	}
	if largePayments > 0 {
		confidence = min(1.0, confidence+0.25)
		evidence = append(evidence, fmt.Sprintf("%d large payment(s) above the property threshold", largePayments))
	}

	if confidence < 0.40 {
		return nil
	}
	return &lifeEvent{
		Type:       "property_purchase",
		Confidence: confidence,
		DetectedOn: first,
		Evidence:   evidence,
		Coaching: "Buying a home is one of the biggest financial events there is. Offer to review " +
			"the new monthly budget including mortgage, utility and maintenance costs, and check " +
			"the emergency fund accounts for homeownership.",
		NeedsConfirmation: true,
	}
}

func detectIncomeChange(txns []Transaction, _ time.Time) *lifeEvent {
	var credits []Transaction
	for _, txn := range txns {
		if txn.AmountPence > 0 && txn.Category == CategorySalary {
			credits = append(credits, txn)
		}
	}
	if len(credits) < 4 {
		return nil
	}
	sort.Slice(credits, func(i, j int) bool { return credits[i].Date.Before(credits[j].Date) })

	recent := credits[len(credits)-2:]
	older := credits[len(credits)-4 : len(credits)-2]
	recentAvg := (recent[0].AmountPence + recent[1].AmountPence) / 2
	olderAvg := (older[0].AmountPence + older[1].AmountPence) / 2
	if olderAvg == 0 {
		return nil
	}

	changePct := float64(recentAvg-olderAvg) / float64(olderAvg) * 100
	direction := "increased"
	if changePct < 0 {
		direction = "decreased"
		changePct = -changePct
	}
	if changePct < 5 {
		return nil
	}

	coaching := "An increase is a good opportunity to boost savings or pay down debt faster."
	if direction == "decreased" {
		coaching = "A drop in income may mean reviewing the budget to protect essential spending."
	}

	return &lifeEvent{
		Type:       "income_change",
		Confidence: min(0.90, changePct/20),
		DetectedOn: recent[0].Date,
		Evidence: []string{
			fmt.Sprintf("Income %s by approximately %.1f%%", direction, changePct),
			fmt.Sprintf("Previous average: %s, recent average: %s",
				grounding.FromPence(olderAvg), grounding.FromPence(recentAvg)),
		},
		Coaching:          "The customer's salary appears to have " + direction + " recently. " + coaching,
		NeedsConfirmation: true,
	}
}

func detectNewRental(txns []Transaction, ref time.Time) *lifeEvent {
	cutoff := ref.AddDate(0, 0, -60)
	olderCutoff := ref.AddDate(0, 0, -120)

	var recent []Transaction
	var historical int
	for _, txn := range txns {
		if txn.AmountPence >= 0 || !merchantMatches(txn.Merchant, rentKeywords) {
			continue
		}
		switch {
		case !txn.Date.Before(cutoff):
			recent = append(recent, txn)
		case !txn.Date.Before(olderCutoff):
			historical++
		}
	}

	// Two recent rent payments with none in the prior window marks a new
	// tenancy, not an ongoing one.
	if len(recent) < 2 || historical > 0 {
		return nil
	}

	var total int64
	first := recent[0].Date
	for _, txn := range recent {
		total += -txn.AmountPence
		if txn.Date.Before(first) {
			first = txn.Date
		}
	}
	monthly := total / int64(len(recent))

	return &lifeEvent{
		Type:       "new_rental",
		Confidence: 0.75,
		DetectedOn: first,
		Evidence: []string{
			fmt.Sprintf("New recurring rent payment detected (~%s/month)", grounding.FromPence(monthly)),
			"No rent payments in the previous period",
		},
		Coaching: "The customer appears to have recently started renting, a significant new fixed " +
			"cost. Offer to adjust the budget for it and check savings headroom remains adequate.",
		NeedsConfirmation: true,
	}
}
