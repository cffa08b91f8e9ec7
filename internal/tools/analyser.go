// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package tools

import (
	"fmt"
	"sort"
	"time"
)

// CategorySummary aggregates debits for one category.
type CategorySummary struct {
	Category     Category
	TotalPence   int64
	Count        int
	AveragePence int64
	LargestPence int64
	Merchants    []string
}

// MonthlySummary aggregates one calendar month.
type MonthlySummary struct {
	Year        int
	Month       time.Month
	DebitPence  int64
	CreditPence int64
	NetPence    int64 // credit - debit
	ByCategory  map[Category]int64
}

// Label formats the month as "YYYY-MM".
func (m MonthlySummary) Label() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// SpendingInsights is the full deterministic analysis of a profile over a
// recent window. All pence fields are exact integer arithmetic.
type SpendingInsights struct {
	CustomerID        string
	PeriodMonths      int
	AvgSpendPence     int64
	AvgIncomePence    int64
	AvgSurplusPence   int64
	BalancePence      int64
	TopCategories     []CategorySummary
	Monthly           []MonthlySummary
	Trend             string // "increasing" | "decreasing" | "stable"
	HighestSpendMonth string
	LowestSpendMonth  string
	SubscriptionPence int64 // average monthly subscription cost
}

// SavingsRatePermille returns the savings rate as parts per thousand of
// income, or 0 when there is no income.
func (s *SpendingInsights) SavingsRatePermille() int64 {
	if s.AvgIncomePence <= 0 {
		return 0
	}
	return s.AvgSurplusPence * 1000 / s.AvgIncomePence
}

// trendThresholdPence is the average month-on-month change below which
// spending counts as stable.
const trendThresholdPence int64 = 5000

// Analyser computes spending facts from raw transactions. It performs no
// estimation: every output is derived from the records it was given.
type Analyser struct {
	profile *CustomerProfile
	now     func() time.Time
}

// NewAnalyser creates an Analyser over the given profile.
func NewAnalyser(profile *CustomerProfile) *Analyser {
	return &Analyser{profile: profile, now: time.Now}
}

// FullInsights analyses the last `months` months of the profile.
func (a *Analyser) FullInsights(months int) *SpendingInsights {
	if months <= 0 {
		months = 3
	}
	cutoff := a.monthsAgo(months)

	monthly := a.monthlySummaries(cutoff)
	categories := a.categorySummaries(cutoff)

	var spendTotal, incomeTotal int64
	debits := make([]int64, 0, len(monthly))
	for _, m := range monthly {
		spendTotal += m.DebitPence
		incomeTotal += m.CreditPence
		debits = append(debits, m.DebitPence)
	}

	n := int64(len(monthly))
	var avgSpend, avgIncome int64
	if n > 0 {
		avgSpend = spendTotal / n
		avgIncome = incomeTotal / n
	}

	var subscriptionTotal int64
	for _, c := range categories {
		if c.Category == CategorySubscriptions {
			subscriptionTotal = c.TotalPence
		}
	}
	var subscriptionMonthly int64
	if n > 0 {
		subscriptionMonthly = subscriptionTotal / n
	}

	highest, lowest := minMaxMonths(monthly)

	return &SpendingInsights{
		CustomerID:        a.profile.CustomerID,
		PeriodMonths:      months,
		AvgSpendPence:     avgSpend,
		AvgIncomePence:    avgIncome,
		AvgSurplusPence:   avgIncome - avgSpend,
		BalancePence:      a.latestBalance(),
		TopCategories:     categories,
		Monthly:           monthly,
		Trend:             computeTrend(debits),
		HighestSpendMonth: highest,
		LowestSpendMonth:  lowest,
		SubscriptionPence: subscriptionMonthly,
	}
}

// CategoryTransactions returns debits in the category within the window,
// most recent first.
func (a *Analyser) CategoryTransactions(category Category, months int) []Transaction {
	if months <= 0 {
		months = 3
	}
	cutoff := a.monthsAgo(months)

	var txns []Transaction
	for _, t := range a.profile.Transactions {
		if t.AmountPence < 0 && t.Category == category && !t.Date.Before(cutoff) {
			txns = append(txns, t)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].Date.After(txns[j].Date) })
	return txns
}

func (a *Analyser) monthlySummaries(cutoff time.Time) []MonthlySummary {
	type key struct {
		year  int
		month time.Month
	}
	bucket := make(map[key]*MonthlySummary)

	for _, t := range a.profile.Transactions {
		if t.Date.Before(cutoff) {
			continue
		}
		k := key{t.Date.Year(), t.Date.Month()}
		m, ok := bucket[k]
		if !ok {
			m = &MonthlySummary{Year: k.year, Month: k.month, ByCategory: make(map[Category]int64)}
			bucket[k] = m
		}
		if t.AmountPence < 0 {
			m.DebitPence += -t.AmountPence
			m.ByCategory[t.Category] += -t.AmountPence
		} else {
			m.CreditPence += t.AmountPence
		}
	}

	out := make([]MonthlySummary, 0, len(bucket))
	for _, m := range bucket {
		m.NetPence = m.CreditPence - m.DebitPence
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

func (a *Analyser) categorySummaries(cutoff time.Time) []CategorySummary {
	type agg struct {
		total, largest int64
		count          int
		merchants      map[string]bool
	}
	bucket := make(map[Category]*agg)

	for _, t := range a.profile.Transactions {
		if t.AmountPence >= 0 || t.Date.Before(cutoff) {
			continue
		}
		amount := -t.AmountPence
		c, ok := bucket[t.Category]
		if !ok {
			c = &agg{merchants: make(map[string]bool)}
			bucket[t.Category] = c
		}
		c.total += amount
		c.count++
		if amount > c.largest {
			c.largest = amount
		}
		c.merchants[t.Merchant] = true
	}

	out := make([]CategorySummary, 0, len(bucket))
	for cat, c := range bucket {
		merchants := make([]string, 0, len(c.merchants))
		for m := range c.merchants {
			merchants = append(merchants, m)
		}
		sort.Strings(merchants)
		out = append(out, CategorySummary{
			Category:     cat,
			TotalPence:   c.total,
			Count:        c.count,
			AveragePence: c.total / int64(c.count),
			LargestPence: c.largest,
			Merchants:    merchants,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPence > out[j].TotalPence })
	return out
}

func (a *Analyser) latestBalance() int64 {
	var latest time.Time
	var balance int64
	for _, t := range a.profile.Transactions {
		if !t.Date.Before(latest) {
			latest = t.Date
			balance = t.BalanceAfterPence
		}
	}
	return balance
}

func (a *Analyser) monthsAgo(months int) time.Time {
	t := a.now()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
}

func computeTrend(monthlyDebits []int64) string {
	if len(monthlyDebits) < 2 {
		return "stable"
	}
	var diffTotal int64
	for i := 1; i < len(monthlyDebits); i++ {
		diffTotal += monthlyDebits[i] - monthlyDebits[i-1]
	}
	avgDiff := diffTotal / int64(len(monthlyDebits)-1)
	switch {
	case avgDiff > trendThresholdPence:
		return "increasing"
	case avgDiff < -trendThresholdPence:
		return "decreasing"
	default:
		return "stable"
	}
}

func minMaxMonths(monthly []MonthlySummary) (highest, lowest string) {
	if len(monthly) == 0 {
		return "n/a", "n/a"
	}
	hi, lo := monthly[0], monthly[0]
	for _, m := range monthly[1:] {
		if m.DebitPence > hi.DebitPence {
			hi = m
		}
		if m.DebitPence < lo.DebitPence {
			lo = m
		}
	}
	return hi.Label(), lo.Label()
}
