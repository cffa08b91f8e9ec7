// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"context"
	"fmt"
	"time"

	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
)

// Category classifies a transaction for spending analysis.
type Category string

const (
	CategoryGroceries       Category = "groceries"
	CategoryEatingOut       Category = "eating_out"
	CategoryTransport       Category = "transport"
	CategoryUtilities       Category = "utilities"
	CategorySubscriptions   Category = "subscriptions"
	CategoryShopping        Category = "shopping"
	CategoryEntertainment   Category = "entertainment"
	CategoryHealth          Category = "health"
	CategorySalary          Category = "salary"
	CategorySavingsTransfer Category = "savings_transfer"
	CategoryCashWithdrawal  Category = "cash_withdrawal"
	CategoryOther           Category = "other"
)

// essentialCategories and discretionaryCategories partition debit categories
// for the health score and budget plan.
var essentialCategories = map[Category]bool{
	CategoryGroceries: true,
	CategoryUtilities: true,
	CategoryTransport: true,
	CategoryHealth:    true,
}

var discretionaryCategories = map[Category]bool{
	CategoryEatingOut:      true,
	CategoryEntertainment:  true,
	CategoryShopping:       true,
	CategorySubscriptions:  true,
	CategoryCashWithdrawal: true,
	CategoryOther:          true,
}

func knownCategory(c Category) bool {
	return essentialCategories[c] || discretionaryCategories[c] ||
		c == CategorySalary || c == CategorySavingsTransfer
}

// Transaction is one bank transaction. AmountPence is negative for debits
// and positive for credits; all monetary values are integer pence.
type Transaction struct {
	ID                string
	Date              time.Time
	AmountPence       int64
	Merchant          string
	Category          Category
	Channel           string // "card", "direct_debit", "bacs", "atm"
	BalanceAfterPence int64
}

// CustomerProfile is one customer's transaction history, oldest first.
type CustomerProfile struct {
	CustomerID   string
	Name         string
	Transactions []Transaction
}

// ProfileStore resolves a customer's transaction profile. In production this
// fronts the transaction API; the demo store generates a fixed profile.
type ProfileStore interface {
	Profile(ctx context.Context, customerID string) (*CustomerProfile, error)
}

// DemoProfileStore serves a deterministic generated profile for any customer
// ID, so demos and tests are reproducible without live banking data.
type DemoProfileStore struct {
	months int
	now    func() time.Time
}

// NewDemoProfileStore creates a demo store with the given months of history.
func NewDemoProfileStore(months int) *DemoProfileStore {
	if months <= 0 {
		months = 6
	}
	return &DemoProfileStore{months: months, now: time.Now}
}

func (s *DemoProfileStore) Profile(_ context.Context, customerID string) (*CustomerProfile, error) {
	if customerID == "" {
		return nil, aisageerr.New(aisageerr.CodeToolFactUnavailable, "customer id is required")
	}
	return generateProfile(customerID, s.months, s.now()), nil
}

// monthlyPattern is the fixed spend pattern used by the demo generator.
// AmountPence values are per-transaction debits.
var monthlyPattern = []struct {
	category    Category
	merchant    string
	channel     string
	day         int
	amountPence int64
}{
	{CategoryUtilities, "British Gas", "direct_debit", 1, 11200},
	{CategoryUtilities, "Thames Water", "direct_debit", 1, 3850},
	{CategoryGroceries, "Tesco", "card", 2, 6240},
	{CategoryEatingOut, "Pret a Manger", "card", 3, 1245},
	{CategorySubscriptions, "Netflix", "direct_debit", 4, 1099},
	{CategoryTransport, "TfL", "card", 5, 14280},
	{CategorySubscriptions, "Spotify", "direct_debit", 7, 1199},
	{CategoryCashWithdrawal, "ATM Withdrawal", "atm", 8, 5000},
	{CategoryGroceries, "Sainsbury's", "card", 9, 5485},
	{CategorySubscriptions, "Gym Membership", "direct_debit", 10, 3500},
	{CategoryEatingOut, "Deliveroo", "card", 11, 2890},
	{CategoryShopping, "Amazon", "card", 13, 4670},
	{CategoryUtilities, "BT Broadband", "direct_debit", 15, 3299},
	{CategoryGroceries, "Aldi", "card", 16, 4310},
	{CategoryHealth, "Boots", "card", 17, 1860},
	{CategoryEatingOut, "Nando's", "card", 19, 3445},
	{CategoryTransport, "Shell", "card", 20, 5510},
	{CategoryEntertainment, "Odeon Cinema", "card", 21, 2380},
	{CategoryGroceries, "Waitrose", "card", 23, 7150},
	{CategoryShopping, "ASOS", "card", 25, 6125},
}

const demoSalaryPence int64 = 320000

// generateProfile builds a deterministic transaction history ending at ref.
// Each month repeats the fixed pattern with a small month-dependent drift so
// trend and stability metrics have real variation to work with.
func generateProfile(customerID string, months int, ref time.Time) *CustomerProfile {
	profile := &CustomerProfile{
		CustomerID: customerID,
		Name:       "Demo Customer",
	}

	balance := int64(450000)
	seq := 0
	start := monthStart(ref).AddDate(0, -(months - 1), 0)

	for m := 0; m < months; m++ {
		month := start.AddDate(0, m, 0)

		// Salary lands on the 28th of the prior month in reality; keep it
		// simple and credit on the 1st.
		balance += demoSalaryPence
		profile.Transactions = append(profile.Transactions, Transaction{
			ID:                fmt.Sprintf("%s-txn-%04d", customerID, seq),
			Date:              month,
			AmountPence:       demoSalaryPence,
			Merchant:          "Acme Corp Payroll",
			Category:          CategorySalary,
			Channel:           "bacs",
			BalanceAfterPence: balance,
		})
		seq++

		for _, p := range monthlyPattern {
			day := p.day
			txDate := time.Date(month.Year(), month.Month(), day, 0, 0, 0, 0, time.UTC)
			if txDate.After(ref) {
				continue
			}
			// Month-dependent drift, at most a few pounds either way.
			drift := int64((m*7+p.day)%9-4) * 100
			amount := p.amountPence + drift
			if amount < 100 {
				amount = p.amountPence
			}
			balance -= amount
			profile.Transactions = append(profile.Transactions, Transaction{
				ID:                fmt.Sprintf("%s-txn-%04d", customerID, seq),
				Date:              txDate,
				AmountPence:       -amount,
				Merchant:          p.merchant,
				Category:          p.category,
				Channel:           p.channel,
				BalanceAfterPence: balance,
			})
			seq++
		}
	}

	return profile
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
