// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

// Package grounding implements the anti-hallucination data plane: monetary
// figure extraction, canonicalization, and the per-turn certified-amount
// ledger. The same extractor feeds both the ledger writer (tool results)
// and the output guard (model narration); the central grounding invariant
// depends on the two sides sharing one canonical form.
package grounding

import (
	"regexp"
	"strconv"
	"strings"
)

// Amount is a canonicalized monetary figure string: currency symbol,
// no thousands separators, exactly two decimal places ("£1234.56").
type Amount string

// Symbol is the currency symbol recognised by the extractor.
const Symbol = "£"

// amountPattern matches the currency grammar
// <symbol><digits>[,<digits>]*[.<digits>{1,2}]. A trailing single decimal
// digit is accepted so that "£1234.5" canonicalizes to "£1234.50" rather
// than being split into "£1234" plus stray text.
var amountPattern = regexp.MustCompile(`£\d[\d,]*(?:\.\d{1,2})?`)

// Extract returns the ordered sequence of canonical amounts found in text.
// It never fails; text with no monetary tokens yields an empty slice.
// Tokens that match the grammar but do not canonicalize are dropped; callers
// that must not lose them use ExtractTokens.
func Extract(text string) []Amount {
	raw := ExtractTokens(text)
	if len(raw) == 0 {
		return nil
	}

	amounts := make([]Amount, 0, len(raw))
	for _, token := range raw {
		if amt, ok := Canonicalize(token); ok {
			amounts = append(amounts, amt)
		}
	}
	return amounts
}

// ExtractTokens returns the raw currency tokens in text, in order, including
// tokens that fail canonicalization.
func ExtractTokens(text string) []string {
	return amountPattern.FindAllString(text, -1)
}

// Canonicalize normalizes one currency token. Thousands separators are
// stripped and the fraction padded to two digits, so "£1,234.5" and
// "£1234.50" map to the same Amount. Returns false for tokens that do not
// parse as a monetary figure.
func Canonicalize(token string) (Amount, bool) {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, Symbol)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return "", false
	}

	whole := s
	frac := "00"
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole = s[:idx]
		frac = s[idx+1:]
		switch len(frac) {
		case 1:
			frac += "0"
		case 2:
		default:
			return "", false
		}
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return "", false
	}
	fracPence, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return "", false
	}

	return FromPence(units*100 + fracPence), true
}

// FromPence formats an integer number of pence as a canonical Amount.
// Tool math runs entirely in pence; this is the only formatting path, so
// tool outputs are canonical by construction.
func FromPence(pence int64) Amount {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return Amount(sign + Symbol + strconv.FormatInt(pence/100, 10) + "." + pad2(pence%100))
}

// Pence returns the integer pence value of a canonical Amount.
func (a Amount) Pence() int64 {
	s := strings.TrimPrefix(string(a), "-")
	neg := len(s) != len(a)
	s = strings.TrimPrefix(s, Symbol)
	whole, frac, _ := strings.Cut(s, ".")

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0
	}
	fracPence, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0
	}

	pence := units*100 + fracPence
	if neg {
		pence = -pence
	}
	return pence
}

func (a Amount) String() string { return string(a) }

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
