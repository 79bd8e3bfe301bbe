// Package similarity implements the edit-distance matching used to flag
// lookalike package names.
package similarity

import "strings"

// Distance returns the Levenshtein edit distance between a and b, computed
// over runes so multi-byte names compare correctly.
func Distance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Match is the closest existing name found for a candidate.
type Match struct {
	Name     string
	Distance int
}

// Closest scans names for the single entry nearest to candidate with an edit
// distance strictly below threshold. Comparison is case-insensitive but the
// returned name keeps its original casing. Exact matches (distance 0) are
// skipped; an identical name is a republish, not an impersonation. Ties keep
// the first name encountered. The second return is false when nothing
// qualifies.
func Closest(candidate string, names []string, threshold int) (Match, bool) {
	lower := strings.ToLower(candidate)
	best := Match{Distance: threshold}
	found := false
	for _, name := range names {
		d := Distance(lower, strings.ToLower(name))
		if d == 0 {
			continue
		}
		if d < best.Distance {
			best = Match{Name: name, Distance: d}
			found = true
		}
	}
	return best, found
}
