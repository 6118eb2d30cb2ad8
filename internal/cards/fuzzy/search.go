// Package fuzzy scores how closely a proposed card name matches a real one.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"
)

// Match is a scored candidate name.
type Match struct {
	Name  string
	Score int // 0-100
	Index int
}

// Options configures Rank.
type Options struct {
	// MaxResults limits the number of results returned (0 = unlimited)
	MaxResults int
	// MinScore drops candidates below this score (0-100)
	MinScore int
}

// DefaultOptions returns the options used for card-name rescue.
func DefaultOptions() Options {
	return Options{
		MaxResults: 10,
		MinScore:   30,
	}
}

// Rank scores every candidate against query and returns them best first.
// Ties keep the candidates' original order.
func Rank(query string, candidates []string, options Options) []Match {
	results := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		score := Score(query, c)
		if score >= options.MinScore {
			results = append(results, Match{Name: c, Score: score, Index: i})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if options.MaxResults > 0 && len(results) > options.MaxResults {
		results = results[:options.MaxResults]
	}
	return results
}

// Score returns a similarity between 0 and 100. Comparison ignores case,
// punctuation and repeated whitespace, so "Urzas Saga" scores 100 against
// "Urza's Saga".
func Score(query, target string) int {
	q := normalize(query)
	t := normalize(target)

	if q == t {
		return 100
	}
	if len(q) == 0 || len(t) == 0 {
		return 0
	}

	// Double-faced cards are named "Front // Back"; a query for the front face
	// is a strong match.
	if front, _, ok := strings.Cut(t, " // "); ok && front == q {
		return 95
	}

	if strings.HasPrefix(t, q) {
		return 85
	}

	if strings.Contains(t, q) {
		return 70 + (len([]rune(q)) * 10 / len([]rune(t)))
	}

	distance := levenshteinDistance([]rune(q), []rune(t))
	maxLen := max(len([]rune(q)), len([]rune(t)))

	similarity := 100 - (distance * 100 / maxLen)
	if similarity < 0 {
		return 0
	}
	return similarity
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r == '\'' || r == ',' || r == '.' || r == ':' || r == '!' || r == '"':
			continue
		case unicode.IsSpace(r):
			if !space {
				b.WriteRune(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// levenshteinDistance is the minimum number of single-rune edits that turn s1 into s2.
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}
