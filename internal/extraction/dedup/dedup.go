// Package dedup collapses the complete candidate set to one survivor per
// (normalized name, value, normalized unit) group. It runs once, after all
// chunks; the tracker's working map is advisory, this is the authoritative
// merge.
package dedup

import (
	"sort"

	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// Merge returns exactly one candidate per dedup group: the highest
// confidence, with ties broken by the latest source page. Output is ordered
// by page, then normalized name, then unit, so equal inputs give equal
// outputs. Merge is idempotent; re-running it on its own output changes
// nothing.
func Merge(cands []biomarker.Candidate) []biomarker.Candidate {
	if len(cands) == 0 {
		return nil
	}

	groups := make(map[string]biomarker.Candidate, len(cands))
	for _, c := range cands {
		key := c.DedupKey()
		existing, ok := groups[key]
		if !ok || survives(c, existing) {
			groups[key] = c
		}
	}

	out := make([]biomarker.Candidate, 0, len(groups))
	for _, c := range groups {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		ni, nj := out[i].NormalizedName(), out[j].NormalizedName()
		if ni != nj {
			return ni < nj
		}
		return out[i].NormalizedUnit() < out[j].NormalizedUnit()
	})
	return out
}

// survives reports whether x replaces y within a dedup group.
func survives(x, y biomarker.Candidate) bool {
	if x.Confidence != y.Confidence {
		return x.Confidence > y.Confidence
	}
	return x.Page > y.Page
}
