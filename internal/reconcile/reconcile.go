// Package reconcile pairs extracted image filenames with answer-file keys.
// Keys rarely match filenames exactly, so matching runs through a ladder of
// progressively fuzzier strategies.
package reconcile

import (
	"strings"
	"unicode"

	"github.com/inkstone-dev/inkstone/internal/answers"
)

// Match resolves filename against the mapping's keys, trying in order:
//
//  1. exact key match on the full filename
//  2. exact key match with the extension stripped
//  3. numeric-suffix match for names shaped like one non-digit character
//     followed by digits (A007 matches any key ending in 007)
//  4. longest-common-substring similarity, accepted only when the common
//     run covers strictly more than half of the longer string
//
// Ties inside a tier resolve to the first key in the mapping's own entry
// order. An empty string means no key matched.
func Match(filename string, m *answers.Mapping) string {
	if m == nil || m.Len() == 0 {
		return ""
	}
	keys := m.Keys()
	index := make(map[string]bool, len(keys))
	for _, key := range keys {
		index[key] = true
	}

	if index[filename] {
		return filename
	}

	stem := stripExt(filename)
	if index[stem] {
		return stem
	}

	if suffix := numericSuffix(stem); suffix != "" {
		for _, key := range keys {
			if strings.HasSuffix(stripExt(key), suffix) {
				return key
			}
		}
	}

	best := ""
	bestScore := 0.0
	for _, key := range keys {
		score := similarity(stem, stripExt(key))
		if score > bestScore {
			best = key
			bestScore = score
		}
	}
	if bestScore > 0.5 {
		return best
	}
	return ""
}

// BuildKeyMap resolves every filename up front so the processing loop does a
// single map lookup per item. Unmatched filenames are absent from the result.
func BuildKeyMap(filenames []string, m *answers.Mapping) map[string]string {
	out := make(map[string]string, len(filenames))
	for _, name := range filenames {
		if key := Match(name, m); key != "" {
			out[name] = key
		}
	}
	return out
}

func stripExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// numericSuffix returns the digit run of a name shaped as exactly one
// non-digit character followed by digits, or "" for any other shape.
func numericSuffix(stem string) string {
	runes := []rune(stem)
	if len(runes) < 2 || unicode.IsDigit(runes[0]) {
		return ""
	}
	for _, r := range runes[1:] {
		if !unicode.IsDigit(r) {
			return ""
		}
	}
	return string(runes[1:])
}

// similarity scores two strings as the length of their longest common
// substring divided by the length of the longer string, both measured in
// runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	common := longestCommonSubstring(ra, rb)
	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	return float64(common) / float64(longer)
}

func longestCommonSubstring(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best = cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return best
}
