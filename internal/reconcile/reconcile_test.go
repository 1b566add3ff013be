package reconcile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkstone-dev/inkstone/internal/answers"
)

func mappingFromJSON(t *testing.T, raw string) *answers.Mapping {
	t.Helper()
	path := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	m, err := answers.Load(path, answers.Options{})
	require.NoError(t, err)
	return m
}

func TestMatchExactFilename(t *testing.T) {
	m := mappingFromJSON(t, `{"img001.jpg": "A", "img002.jpg": "B"}`)
	require.Equal(t, "img001.jpg", Match("img001.jpg", m))
}

func TestMatchStrippedExtension(t *testing.T) {
	m := mappingFromJSON(t, `{"img001": "A"}`)
	require.Equal(t, "img001", Match("img001.jpg", m))
}

func TestMatchNumericSuffix(t *testing.T) {
	m := mappingFromJSON(t, `{"scan_007": "A", "scan_008": "B"}`)
	require.Equal(t, "scan_007", Match("A007.jpg", m))
}

func TestMatchNumericSuffixAnySingleCharPrefix(t *testing.T) {
	// Any single non-digit character followed by digits qualifies for tier 3.
	m := mappingFromJSON(t, `{"scan_007": "A"}`)
	require.Equal(t, "scan_007", Match("_007.jpg", m))
	require.Equal(t, "scan_007", Match("-007.jpg", m))
}

func TestMatchNumericSuffixRejectsOtherShapes(t *testing.T) {
	// Two leading letters is not the one-char-then-digits shape, and the
	// fuzzy tier scores exactly half, so nothing matches.
	m := mappingFromJSON(t, `{"x12": "A"}`)
	require.Equal(t, "", Match("AB12.jpg", m))

	// A leading digit disqualifies the shape as well.
	m2 := mappingFromJSON(t, `{"scan_007": "A"}`)
	require.Equal(t, "", Match("1007.jpg", m2))
}

func TestMatchFuzzyAboveHalf(t *testing.T) {
	m := mappingFromJSON(t, `{"character_sample_42": "A"}`)
	require.Equal(t, "character_sample_42", Match("character_sample42.jpg", m))
}

func TestMatchFuzzyExactlyHalfRejected(t *testing.T) {
	// Common substring "xyz" over length 6: score is exactly 0.5, which must
	// not match (the threshold is strict).
	m := mappingFromJSON(t, `{"xyz999": "A"}`)
	require.Equal(t, "", Match("xyz123.jpg", m))
}

func TestMatchTieBreaksByEntryOrder(t *testing.T) {
	first := `{"sample_a_01": "A", "sample_b_01": "B"}`
	m := mappingFromJSON(t, first)
	got := Match("sample__01.png", m)
	require.Equal(t, "sample_a_01", got)

	// Same keys in reverse insertion order flip the winner.
	reversed := `{"sample_b_01": "B", "sample_a_01": "A"}`
	m2 := mappingFromJSON(t, reversed)
	require.Equal(t, "sample_b_01", Match("sample__01.png", m2))
}

func TestMatchEmptyMapping(t *testing.T) {
	require.Equal(t, "", Match("anything.jpg", answers.Empty()))
	require.Equal(t, "", Match("anything.jpg", nil))
}

func TestBuildKeyMapSkipsUnmatched(t *testing.T) {
	m := mappingFromJSON(t, `{"img001.jpg": "A"}`)
	got := BuildKeyMap([]string{"img001.jpg", "unrelated_zz.png"}, m)
	require.Equal(t, map[string]string{"img001.jpg": "img001.jpg"}, got)
}

func TestLongestCommonSubstring(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "abc", 0},
		{"abc", "abc", 3},
		{"xyz123", "xyz999", 3},
		{"abcdef", "zabcq", 3},
		{"汉字样本", "字样", 2},
	}
	for _, tc := range cases {
		got := longestCommonSubstring([]rune(tc.a), []rune(tc.b))
		require.Equal(t, tc.want, got, "lcs(%q,%q)", tc.a, tc.b)
	}
}

func TestMatchDeterministicAcrossRuns(t *testing.T) {
	entries := map[string]string{}
	for _, k := range []string{"k_01", "k_02", "k_03", "k_04"} {
		entries[k] = "A"
	}
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	m := mappingFromJSON(t, string(raw))
	first := Match("k__01.jpg", m)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Match("k__01.jpg", m))
	}
}
