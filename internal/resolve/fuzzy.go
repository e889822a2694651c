package resolve

import (
	"math"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// TokenSortRatio scores two strings 0-100 after sorting their words, making
// the comparison insensitive to word order ("care center sunrise" vs
// "sunrise care center" scores 100).
func TokenSortRatio(a, b string) int {
	sa := sortTokens(a)
	sb := sortTokens(b)
	if sa == "" && sb == "" {
		return 0
	}
	return toScore(levenshtein.Similarity(sa, sb, nil))
}

// PartialRatio scores the best alignment of the shorter string against any
// equal-length window of the longer one, 0-100. A string fully contained in
// the other scores 100.
func PartialRatio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == len(long) {
		return toScore(levenshtein.Similarity(short, long, nil))
	}

	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		sim := levenshtein.Similarity(short, long[i:i+len(short)], nil)
		if sim > best {
			best = sim
			if best == 1.0 {
				break
			}
		}
	}
	return toScore(best)
}

func sortTokens(s string) string {
	words := strings.Fields(s)
	sort.Strings(words)
	return strings.Join(words, " ")
}

func toScore(sim float64) int {
	return int(math.Round(sim * 100))
}
