// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedProfileStore serves a hand-built history so detection windows are
// fully controlled by the test.
type fixedProfileStore struct {
	profile *CustomerProfile
}

func (s *fixedProfileStore) Profile(context.Context, string) (*CustomerProfile, error) {
	return s.profile, nil
}

func eventTxn(date time.Time, merchant string, category Category, amountPence int64) Transaction {
	return Transaction{
		ID:          merchant + date.Format("20060102"),
		Date:        date,
		AmountPence: amountPence,
		Merchant:    merchant,
		Category:    category,
		Channel:     "card",
	}
}

var eventRef = time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

func TestDetectLifeEventsNewBaby(t *testing.T) {
	txns := []Transaction{
		eventTxn(eventRef, "Tesco", CategoryGroceries, -4500),
		eventTxn(eventRef.AddDate(0, 0, -20), "Little Stars Nursery", CategoryOther, -54000),
		eventTxn(eventRef.AddDate(0, 0, -50), "Little Stars Nursery", CategoryOther, -54000),
		eventTxn(eventRef.AddDate(0, 0, -40), "Mamas and Papas", CategoryShopping, -25000),
	}

	events := detectLifeEvents(txns)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "new_baby", e.Type)
	assert.InDelta(t, 0.85, e.Confidence, 0.001)
	assert.True(t, e.NeedsConfirmation)
	require.Len(t, e.Evidence, 2)
	assert.Contains(t, e.Evidence[0], "2 nursery/childcare payments")
	assert.Contains(t, e.Evidence[1], "£250.00")
}

func TestDetectLifeEventsPropertyPurchase(t *testing.T) {
	txns := []Transaction{
		eventTxn(eventRef, "Tesco", CategoryGroceries, -4500),
		eventTxn(eventRef.AddDate(0, 0, -30), "Smith & Co Solicitors", CategoryOther, -150000),
		eventTxn(eventRef.AddDate(0, 0, -28), "Deposit Transfer", CategoryOther, -2500000),
	}

	events := detectLifeEvents(txns)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "property_purchase", e.Type)
	assert.InDelta(t, 0.80, e.Confidence, 0.001)
	assert.Contains(t, e.Evidence[0], "Smith & Co Solicitors")
}

func TestDetectLifeEventsIncomeChange(t *testing.T) {
	txns := []Transaction{
		eventTxn(eventRef, "Tesco", CategoryGroceries, -4500),
		eventTxn(eventRef.AddDate(0, -4, 0), "Acme Corp Payroll", CategorySalary, 300000),
		eventTxn(eventRef.AddDate(0, -3, 0), "Acme Corp Payroll", CategorySalary, 300000),
		eventTxn(eventRef.AddDate(0, -2, 0), "Acme Corp Payroll", CategorySalary, 330000),
		eventTxn(eventRef.AddDate(0, -1, 0), "Acme Corp Payroll", CategorySalary, 330000),
	}

	events := detectLifeEvents(txns)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "income_change", e.Type)
	assert.InDelta(t, 0.50, e.Confidence, 0.001)
	assert.Contains(t, e.Evidence[0], "increased")
	assert.Contains(t, e.Evidence[1], "£3000.00")
	assert.Contains(t, e.Evidence[1], "£3300.00")
}

func TestDetectLifeEventsStableIncomeIgnored(t *testing.T) {
	txns := []Transaction{
		eventTxn(eventRef.AddDate(0, -4, 0), "Acme Corp Payroll", CategorySalary, 300000),
		eventTxn(eventRef.AddDate(0, -3, 0), "Acme Corp Payroll", CategorySalary, 300000),
		eventTxn(eventRef.AddDate(0, -2, 0), "Acme Corp Payroll", CategorySalary, 306000),
		eventTxn(eventRef.AddDate(0, -1, 0), "Acme Corp Payroll", CategorySalary, 306000),
	}

	assert.Empty(t, detectLifeEvents(txns))
}

func TestDetectLifeEventsNewRental(t *testing.T) {
	txns := []Transaction{
		eventTxn(eventRef, "Foxtons Letting", CategoryOther, -120000),
		eventTxn(eventRef.AddDate(0, 0, -28), "Foxtons Letting", CategoryOther, -120000),
	}

	events := detectLifeEvents(txns)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "new_rental", e.Type)
	assert.InDelta(t, 0.75, e.Confidence, 0.001)
	assert.Contains(t, e.Evidence[0], "£1200.00")
}

func TestDetectLifeEventsOngoingRentalIgnored(t *testing.T) {
	txns := []Transaction{
		eventTxn(eventRef, "Foxtons Letting", CategoryOther, -120000),
		eventTxn(eventRef.AddDate(0, 0, -28), "Foxtons Letting", CategoryOther, -120000),
		// Same landlord three months back: an ongoing tenancy, not a move.
		eventTxn(eventRef.AddDate(0, 0, -90), "Foxtons Letting", CategoryOther, -120000),
	}

	assert.Empty(t, detectLifeEvents(txns))
}

func TestLifeEventToolExecute(t *testing.T) {
	store := &fixedProfileStore{profile: &CustomerProfile{
		CustomerID: "cust-1",
		Transactions: []Transaction{
			eventTxn(eventRef, "Tesco", CategoryGroceries, -4500),
			eventTxn(eventRef.AddDate(0, 0, -20), "Busy Bees Childcare", CategoryOther, -48000),
			eventTxn(eventRef.AddDate(0, 0, -50), "Busy Bees Childcare", CategoryOther, -48000),
		},
	}}
	tool := NewLifeEventTool(store)

	facts := execFacts(t, tool, `{"customer_id":"cust-1"}`)
	assert.Equal(t, float64(1), facts["events_detected"])
	assert.Equal(t, float64(120), facts["scan_period_days"])

	detected, ok := facts["detected_events"].([]any)
	require.True(t, ok)
	require.Len(t, detected, 1)
	event, ok := detected[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new_baby", event["event_type"])
	assert.Equal(t, "60%", event["confidence"])
	assert.Equal(t, true, event["requires_customer_confirmation"])
	assert.NotEmpty(t, event["suggested_coaching"])
}

// The demo profile has no life-event merchants and a flat salary, so a scan
// over it is clean.
func TestLifeEventToolDemoProfileClean(t *testing.T) {
	tool := NewLifeEventTool(NewDemoProfileStore(6))

	facts := execFacts(t, tool, `{"customer_id":"cust-1"}`)
	assert.Equal(t, float64(0), facts["events_detected"])
	assert.Equal(t, float64(0), facts["high_confidence_events"])
}

func TestLifeEventTriggers(t *testing.T) {
	matches := []string{
		"We've just had a baby",
		"I got a pay rise last month",
		"we're getting married next spring",
		"I've started renting a new flat",
		"my salary changed",
	}
	for _, s := range matches {
		assert.True(t, LifeEventTriggers.MatchString(s), "should trigger: %q", s)
	}

	misses := []string{
		"How much did I spend on groceries?",
		"Can I afford a holiday this year?",
	}
	for _, s := range misses {
		assert.False(t, LifeEventTriggers.MatchString(s), "should not trigger: %q", s)
	}
}
