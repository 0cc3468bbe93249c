// Package token approximates LLM token costs for budgeting decisions.
//
// The estimator applies a fixed characters-per-token ratio instead of a real
// tokenizer. Byte length is used on purpose: it over-counts multi-byte runes,
// so the estimate stays a safe upper bound for chunk sizing and prompt
// truncation.
package token

import (
	"strings"
	"unicode/utf8"
)

const defaultCharsPerToken = 3.5

// Estimator converts text spans to approximate token counts.
type Estimator struct {
	charsPerToken float64
}

// NewEstimator returns an estimator with the given characters-per-token
// ratio. Non-positive ratios fall back to the default.
func NewEstimator(charsPerToken float64) *Estimator {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return &Estimator{charsPerToken: charsPerToken}
}

// Estimate returns the approximate token count of text, rounding up.
func (e *Estimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := int(float64(len(text)) / e.charsPerToken)
	if float64(n)*e.charsPerToken < float64(len(text)) {
		n++
	}
	return n
}

// Fits reports whether text stays within a token budget.
func (e *Estimator) Fits(text string, budget int) bool {
	return e.Estimate(text) <= budget
}

// Truncate shortens text so its estimated token count does not exceed
// maxTokens. Whole lines are dropped from the end first; only when the first
// line alone exceeds the budget is it cut mid-line, always on a rune
// boundary. A non-positive budget yields the empty string.
func (e *Estimator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if e.Fits(text, maxTokens) {
		return text
	}

	maxBytes := int(float64(maxTokens) * e.charsPerToken)
	lines := strings.Split(text, "\n")

	size := 0
	kept := 0
	for _, line := range lines {
		need := len(line)
		if kept > 0 {
			need++ // joining newline
		}
		if size+need > maxBytes {
			break
		}
		size += need
		kept++
	}

	if kept == 0 {
		return cutAtRuneBoundary(lines[0], maxBytes)
	}
	return strings.Join(lines[:kept], "\n")
}

func cutAtRuneBoundary(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
