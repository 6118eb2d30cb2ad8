package fuzzy

import (
	"fmt"
	"testing"
)

func BenchmarkRank(b *testing.B) {
	candidates := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		candidates = append(candidates, fmt.Sprintf("Sakura-Tribe Card %d", i))
	}
	candidates = append(candidates, "Sakura-Tribe Elder")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Rank("Sakura Tribe Elder", candidates, DefaultOptions())
	}
}
