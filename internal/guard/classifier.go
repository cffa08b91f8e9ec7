// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package guard

import (
	"strings"

	aisageerr "github.com/aisage-dev/aisage/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Classifier evaluates a compiled rule table. Classifiers are pure: they
// hold no per-call state and are safe for concurrent use.
type Classifier struct {
	byCategory map[IntentCategory][]Rule
}

// NewClassifier validates and indexes a rule table.
func NewClassifier(rules []Rule) (*Classifier, error) {
	byCategory := make(map[IntentCategory][]Rule)
	for i, r := range rules {
		if r.Name == "" {
			return nil, aisageerr.Errorf(aisageerr.CodeGuardRuleInvalid, "rule %d has empty name", i)
		}
		if !r.Category.Valid() {
			return nil, aisageerr.Errorf(aisageerr.CodeGuardRuleInvalid, "rule %d (%s) has invalid category %q", i, r.Name, r.Category)
		}
		if r.Pattern == nil {
			return nil, aisageerr.Errorf(aisageerr.CodeGuardRuleInvalid, "rule %d (%s) has nil pattern", i, r.Name)
		}
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}
	return &Classifier{byCategory: byCategory}, nil
}

// Match reports whether any rule in the category fires on the (already
// normalized) text, and if so which rule, for audit.
func (c *Classifier) Match(category IntentCategory, text string) (string, bool) {
	for _, rule := range c.byCategory[category] {
		if rule.Pattern.MatchString(text) {
			return rule.Name, true
		}
	}
	return "", false
}

// invisibleCharReplacer strips zero-width and other invisible Unicode
// characters, and folds the typographic apostrophe to ASCII so contraction
// rules match both forms. Allocated once at package init.
var invisibleCharReplacer = strings.NewReplacer(
	"\u200B", "", // zero-width space
	"\u200C", "", // zero-width non-joiner
	"\u200D", "", // zero-width joiner
	"\uFEFF", "", // zero-width no-break space / BOM
	"\u00AD", "", // soft hyphen
	"\u2060", "", // word joiner
	"\u2019", "'", // right single quotation mark
)

// Normalize applies NFKC normalization and strips invisible characters to
// reduce evasion via Unicode homoglyphs. All guard matching runs over the
// normalized form.
func Normalize(s string) string {
	s = invisibleCharReplacer.Replace(s)
	return norm.NFKC.String(s)
}
