package deckimport

import (
	"testing"
)

// BenchmarkParse_CleanJSON measures the fast path: the whole output is JSON.
func BenchmarkParse_CleanJSON(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(merenDeck, ParseOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParse_FencedProse measures extraction from chatty, fenced output.
func BenchmarkParse_FencedProse(b *testing.B) {
	raw := "Sure! Here is your deck:\n\n```json\n" + merenDeck + "\n```\n\nLet me know if you want changes {like this}."
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(raw, ParseOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
