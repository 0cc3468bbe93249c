package token

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		text  string
		want  int
	}{
		{name: "empty", ratio: 3.5, text: "", want: 0},
		{name: "single char rounds up", ratio: 3.5, text: "a", want: 1},
		{name: "exact multiple", ratio: 4.0, text: "abcdefgh", want: 2},
		{name: "one over multiple", ratio: 4.0, text: "abcdefghi", want: 3},
		{name: "default ratio seven chars", ratio: 3.5, text: "abcdefg", want: 2},
		{name: "multibyte counts bytes", ratio: 4.0, text: "αβγδ", want: 2}, // 8 bytes
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			est := NewEstimator(tc.ratio)
			assert.Equal(t, tc.want, est.Estimate(tc.text))
		})
	}
}

func TestNewEstimator_GuardsRatio(t *testing.T) {
	est := NewEstimator(0)
	// 7 chars at the default 3.5 chars/token is exactly 2 tokens.
	assert.Equal(t, 2, est.Estimate("abcdefg"))

	est = NewEstimator(-1)
	assert.Equal(t, 2, est.Estimate("abcdefg"))
}

func TestFits(t *testing.T) {
	est := NewEstimator(4.0)
	assert.True(t, est.Fits("abcd", 1))
	assert.False(t, est.Fits("abcde", 1))
	assert.True(t, est.Fits("", 0))
}

func TestTruncate_WithinBudgetUnchanged(t *testing.T) {
	est := NewEstimator(4.0)
	text := "Glucose 95 mg/dL\nHemoglobin 13.5 g/dL"
	assert.Equal(t, text, est.Truncate(text, 100))
}

func TestTruncate_DropsTrailingLines(t *testing.T) {
	est := NewEstimator(4.0)
	lines := []string{
		strings.Repeat("a", 16), // 4 tokens
		strings.Repeat("b", 16),
		strings.Repeat("c", 16),
	}
	text := strings.Join(lines, "\n")

	got := est.Truncate(text, 9) // room for two lines plus the join
	assert.Equal(t, lines[0]+"\n"+lines[1], got)
	assert.LessOrEqual(t, est.Estimate(got), 9)
}

func TestTruncate_SingleLongLineCutMidLine(t *testing.T) {
	est := NewEstimator(4.0)
	text := strings.Repeat("x", 100)

	got := est.Truncate(text, 5)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, est.Estimate(got), 5)
	assert.True(t, strings.HasPrefix(text, got))
}

func TestTruncate_RuneBoundary(t *testing.T) {
	est := NewEstimator(4.0)
	text := strings.Repeat("α", 50) // 2 bytes each

	got := est.Truncate(text, 3) // 12-byte budget, aligned with the 2-byte runes
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, est.Estimate(got), 3)

	// A budget landing mid-rune must back up to the previous boundary.
	odd := est.Truncate("日本語のテキスト", 1) // 3.5-byte budget within a 3-byte-rune string
	assert.True(t, utf8.ValidString(odd))
	assert.LessOrEqual(t, est.Estimate(odd), 1)
}

func TestTruncate_NonPositiveBudget(t *testing.T) {
	est := NewEstimator(4.0)
	assert.Equal(t, "", est.Truncate("anything", 0))
	assert.Equal(t, "", est.Truncate("anything", -3))
}

func TestTruncate_ResultNeverExceedsBudget(t *testing.T) {
	est := NewEstimator(3.5)
	text := strings.Repeat("Total Cholesterol 180 mg/dL\n", 40)
	for budget := 1; budget <= 60; budget += 7 {
		got := est.Truncate(text, budget)
		assert.LessOrEqual(t, est.Estimate(got), budget, "budget %d", budget)
	}
}
