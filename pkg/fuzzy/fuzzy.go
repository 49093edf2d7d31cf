package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LevenshteinDistance is the edit distance between two strings after
// normalization (case, accents, whitespace).
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(normalizeString(s1))
	r2 := []rune(normalizeString(s2))
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

// ProfileScore ranks a profile against a dashboard search query.
// Zero means no match.
func ProfileScore(query, name, email, phone string) float64 {
	query = normalizeString(query)
	if query == "" {
		return 0
	}
	var score float64

	name = normalizeString(name)
	words := strings.Fields(name)
	switch {
	case strings.Contains(name, query):
		score += 100
		for _, w := range words {
			if w == query {
				score += 50
				break
			}
		}
	default:
		for _, w := range words {
			if d := LevenshteinDistance(query, w); d <= 2 {
				score += 50 - float64(d)*15
			}
			if strings.HasPrefix(w, query) {
				score += 40
			}
		}
	}

	email = normalizeString(email)
	if strings.Contains(email, query) {
		score += 60
	} else if local, _, ok := strings.Cut(email, "@"); ok && local != "" && strings.HasPrefix(local, query) {
		score += 30
	}

	if phone != "" && strings.Contains(phone, strings.TrimPrefix(query, "+")) {
		score += 60
	}
	return score
}

// SameName reports whether two full names are within threshold edits.
// Empty names never match.
func SameName(a, b string, threshold int) bool {
	a, b = normalizeString(a), normalizeString(b)
	if a == "" || b == "" {
		return false
	}
	return LevenshteinDistance(a, b) <= threshold
}

// đ has no canonical decomposition
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), runes.Map(func(r rune) rune {
	if r == 'đ' {
		return 'd'
	}
	return r
}), norm.NFC)

func normalizeString(s string) string {
	out, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}
