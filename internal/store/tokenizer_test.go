package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_SplitsAndFolds(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "whitespace",
			input:  "Wire Transfer Fee",
			expect: []string{"wire", "transfer", "fee"},
		},
		{
			name:   "punctuation boundaries",
			input:  "fee: $25.00 (domestic)",
			expect: []string{"fee", "25", "00", "domestic"},
		},
		{
			name:   "percent kept inside token",
			input:  "APY 5%",
			expect: []string{"apy", "5%"},
		},
		{
			name:   "slash kept inside token",
			input:  "support 24/7",
			expect: []string{"support", "24/7"},
		},
		{
			name:   "hyphen kept inside token",
			input:  "t-bill ladder",
			expect: []string{"t-bill", "ladder"},
		},
		{
			name:   "pure punctuation dropped",
			input:  "--- %% //",
			expect: nil,
		},
		{
			name:   "empty input",
			input:  "",
			expect: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_UnicodeLetters(t *testing.T) {
	tokens := Tokenize("Überweisung an Müller")

	assert.Equal(t, []string{"überweisung", "an", "müller"}, tokens)
}
