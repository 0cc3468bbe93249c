// Package tracker carries the accumulated extraction state threaded through
// a document's gateway calls: which biomarkers are already known, example
// line patterns for delta prompts, and token accounting. The tracker is a
// pure data transform; Update never mutates its receiver and performs no
// I/O.
package tracker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// maxPatterns caps the example pattern list. Delta prompts only ever show a
// few, so growth beyond this is wasted memory.
const maxPatterns = 8

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Section records where in the document extraction currently is.
type Section struct {
	// Page is the highest page an update has seen.
	Page int `json:"page"`
	// Candidates is the running count of accepted candidates.
	Candidates int `json:"candidates"`
}

// Context is the per-document extraction state. The zero value is valid;
// NewContext returns it explicitly. Contexts are value types: Update and
// Merge return fresh copies and never alias the inputs' maps or slices.
type Context struct {
	// CallCount is the number of gateway calls folded in. Fallback results
	// bypass the tracker, so this counts gateway traffic only.
	CallCount int `json:"call_count"`

	// TokensIn and TokensOut accumulate gateway token usage.
	TokensIn  int `json:"tokens_in"`
	TokensOut int `json:"tokens_out"`

	// KnownBiomarkers maps the lowercase normalized name to the most recent
	// sighting. Later pages overwrite earlier ones; equal pages keep the
	// existing entry.
	KnownBiomarkers map[string]biomarker.Candidate `json:"known_biomarkers"`

	// Patterns holds example result lines ("Glucose: 95 mg/dL") for delta
	// prompts, in discovery order. At most one is added per update.
	Patterns []string `json:"patterns"`

	// Section is the current position summary.
	Section Section `json:"section"`

	// ConfidenceThreshold is the document's acceptance floor, fixed at
	// pipeline start. Update passes it through unchanged.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
}

// NewContext returns the zero extraction state for a fresh document.
func NewContext() Context {
	return Context{}
}

// Known reports whether a biomarker name has already been extracted.
func (c Context) Known(name string) bool {
	_, ok := c.KnownBiomarkers[normalizeName(name)]
	return ok
}

// KnownNames returns the sorted normalized names already extracted.
func (c Context) KnownNames() []string {
	names := make([]string, 0, len(c.KnownBiomarkers))
	for name := range c.KnownBiomarkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// Update folds one gateway call's results into the state and returns the new
// Context. The receiver is left untouched. A candidate replaces an existing
// entry of the same name only when its page is strictly greater. At most one
// new example pattern is appended per call.
func (c Context) Update(candidates []biomarker.Candidate, page, tokensIn, tokensOut int) Context {
	next := c.clone()
	next.CallCount++
	next.TokensIn += tokensIn
	next.TokensOut += tokensOut

	for _, cand := range candidates {
		key := cand.NormalizedName()
		if key == "" {
			continue
		}
		existing, ok := next.KnownBiomarkers[key]
		if !ok || cand.Page > existing.Page {
			next.KnownBiomarkers[key] = cand
		}
	}

	next.appendOnePattern(candidates)

	if page > next.Section.Page {
		next.Section.Page = page
	}
	next.Section.Candidates += len(candidates)

	return next
}

// appendOnePattern adds the first candidate's pattern not already present.
func (c *Context) appendOnePattern(candidates []biomarker.Candidate) {
	if len(c.Patterns) >= maxPatterns {
		return
	}
	for _, cand := range candidates {
		p := patternFor(cand)
		if p == "" || c.hasPattern(p) {
			continue
		}
		c.Patterns = append(c.Patterns, p)
		return
	}
}

func (c *Context) hasPattern(p string) bool {
	for _, existing := range c.Patterns {
		if existing == p {
			return true
		}
	}
	return false
}

// patternFor renders a candidate as the example line shown in delta prompts.
func patternFor(c biomarker.Candidate) string {
	if c.Name == "" || c.Value.Raw == "" {
		return ""
	}
	if c.Unit == "" {
		return fmt.Sprintf("%s: %s", c.Name, c.Value.Raw)
	}
	return fmt.Sprintf("%s: %s %s", c.Name, c.Value.Raw, c.Unit)
}

// ---------------------------------------------------------------------------
// Merge
// ---------------------------------------------------------------------------

// Merge combines two contexts produced over disjoint chunk sets, such as the
// shards of a concurrent run. Counts add; for biomarkers known to both, the
// later page wins, with ties broken by higher confidence and then by raw
// value, so the merged set is independent of processing order.
func Merge(a, b Context) Context {
	out := a.clone()
	out.CallCount += b.CallCount
	out.TokensIn += b.TokensIn
	out.TokensOut += b.TokensOut

	for key, cand := range b.KnownBiomarkers {
		existing, ok := out.KnownBiomarkers[key]
		if !ok || wins(cand, existing) {
			out.KnownBiomarkers[key] = cand
		}
	}

	out.Patterns = mergePatterns(a.Patterns, b.Patterns)

	if b.Section.Page > out.Section.Page {
		out.Section.Page = b.Section.Page
	}
	out.Section.Candidates += b.Section.Candidates

	// Document-constant; shards carry the same value.
	if out.ConfidenceThreshold == 0 {
		out.ConfidenceThreshold = b.ConfidenceThreshold
	}

	return out
}

// wins reports whether x beats y under the merge total order: later page,
// then higher confidence, then greater raw value, then greater unit.
func wins(x, y biomarker.Candidate) bool {
	if x.Page != y.Page {
		return x.Page > y.Page
	}
	if x.Confidence != y.Confidence {
		return x.Confidence > y.Confidence
	}
	if x.Value.Raw != y.Value.Raw {
		return x.Value.Raw > y.Value.Raw
	}
	return x.Unit > y.Unit
}

// mergePatterns unions both lists into sorted order. Sorting trades the
// discovery order for a result that does not depend on merge order.
func mergePatterns(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	if len(out) > maxPatterns {
		out = out[:maxPatterns]
	}
	return out
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// clone deep-copies the context so updates never alias the original.
func (c Context) clone() Context {
	out := c
	out.KnownBiomarkers = make(map[string]biomarker.Candidate, len(c.KnownBiomarkers))
	for k, v := range c.KnownBiomarkers {
		out.KnownBiomarkers[k] = v
	}
	out.Patterns = append([]string(nil), c.Patterns...)
	return out
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
