package matcher

import (
	"github.com/shirosync/shirosync-server/internal/normalize"
)

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity returns (maxLen - distance) / maxLen for two already normalized strings.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	return float64(maxLen-Levenshtein(a, b)) / float64(maxLen)
}

// NormalizeTitle is the normalization applied before any title comparison.
func NormalizeTitle(s string) string {
	return normalize.MatchTitle(s)
}

// TitleSimilarity is the best Similarity between any title in a and any title in b.
func TitleSimilarity(a, b []string) float64 {
	best := 0.0
	for _, x := range a {
		nx := NormalizeTitle(x)
		if nx == "" {
			continue
		}
		for _, y := range b {
			ny := NormalizeTitle(y)
			if ny == "" {
				continue
			}
			if s := Similarity(nx, ny); s > best {
				best = s
			}
		}
	}
	return best
}
