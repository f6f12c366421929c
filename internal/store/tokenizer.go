package store

import (
	"strings"
	"unicode"
)

// isTokenRune reports whether r belongs inside a token. Financial symbols
// %, / and - are kept token-internal so values like "0.5%", "24/7" and
// "t-bill" survive tokenization.
func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) ||
		r == '%' || r == '/' || r == '-'
}

// Tokenize splits text on non-alphanumeric boundaries, case-folded.
// Tokens carrying no letter or digit at all (pure punctuation runs) are
// dropped.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := strings.ToLower(current.String())
		current.Reset()
		if hasAlnum(tok) {
			tokens = append(tokens, tok)
		}
	}

	for _, r := range text {
		if isTokenRune(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
