// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package guard_test

import (
	"strings"
	"testing"

	"github.com/aisage-dev/aisage/internal/guard"
	"github.com/stretchr/testify/assert"
)

func TestDisclaimerInjector_Inject(t *testing.T) {
	d := guard.NewDisclaimerInjector(nil, "")

	tests := []struct {
		name      string
		narration string
		results   []string
		want      bool
	}{
		{
			name:      "mortgage term triggers",
			narration: "Overpaying your mortgage would save interest.",
			want:      true,
		},
		{
			name:      "isa term triggers case-insensitively",
			narration: "An ISA shelters interest from tax.",
			want:      true,
		},
		{
			name:      "plain coaching text does not trigger",
			narration: "Your groceries spend is steady.",
			want:      false,
		},
		{
			name:      "tool result vocabulary triggers even when narration avoids it",
			narration: "Based on your figures, the monthly payment fits your surplus.",
			results:   []string{`{"product": "2-year fixed mortgage scenario"}`},
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := d.Inject(tt.narration, tt.results...)
			if tt.want {
				assert.True(t, strings.HasSuffix(out, guard.DefaultDisclaimerNotice))
			} else {
				assert.Equal(t, tt.narration, out)
			}
		})
	}
}

// inject(inject(x)) == inject(x).
func TestDisclaimerInjector_Idempotent(t *testing.T) {
	d := guard.NewDisclaimerInjector(nil, "")

	once := d.Inject("Your pension contributions look healthy.")
	twice := d.Inject(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, guard.DefaultDisclaimerNotice))
}

func TestDisclaimerInjector_CustomVocabulary(t *testing.T) {
	d := guard.NewDisclaimerInjector([]string{"crypto"}, "\n\n[notice]")

	assert.Equal(t, "thoughts on crypto\n\n[notice]", d.Inject("thoughts on crypto"))
	// Default vocabulary is replaced, not extended.
	assert.Equal(t, "about your mortgage", d.Inject("about your mortgage"))
}
