package fuzzy

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		target  string
		wantMin int
		wantMax int
	}{
		{"exact", "Sol Ring", "Sol Ring", 100, 100},
		{"case and punctuation", "urzas saga", "Urza's Saga", 100, 100},
		{"front face", "Delver of Secrets", "Delver of Secrets // Insectile Aberration", 95, 95},
		{"prefix", "Llanowar", "Llanowar Elves", 85, 85},
		{"one typo", "Llanowar Elfs", "Llanowar Elves", 80, 99},
		{"unrelated", "Counterspell", "Forest", 0, 30},
		{"empty", "", "Forest", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.query, tt.target)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Score(%q, %q) = %d, want in [%d, %d]", tt.query, tt.target, got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestRank(t *testing.T) {
	candidates := []string{"Forest", "Llanowar Elves", "Llanowar Wastes", "Elvish Mystic"}

	results := Rank("Llanowar Elfs", candidates, DefaultOptions())
	if len(results) == 0 {
		t.Fatal("expected at least one match")
	}
	if results[0].Name != "Llanowar Elves" {
		t.Errorf("best match = %q, want Llanowar Elves", results[0].Name)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted: %v", results)
		}
	}
}

func TestRank_MaxResults(t *testing.T) {
	candidates := []string{"Forest", "Forest", "Forest"}
	results := Rank("Forest", candidates, Options{MaxResults: 2})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Index != 0 || results[1].Index != 1 {
		t.Errorf("ties should keep input order, got %+v", results)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"forest", "forest", 0},
		{"æther", "aether", 2},
	}
	for _, tt := range tests {
		if got := levenshteinDistance([]rune(tt.a), []rune(tt.b)); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
