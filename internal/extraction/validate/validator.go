// Package validate is the ingestion boundary between loosely-typed gateway
// output and the strict candidate model, and the confidence scorer every
// candidate passes through before merge. Non-conforming input is counted and
// dropped; this package never fails a document.
package validate

import (
	"context"
	"math"
	"strings"

	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

// Validator converts raw candidates into strict ones and scores them.
type Validator interface {
	// Ingest vets a gateway batch. Page and fromTable describe the source
	// chunk. The second return is the rejection count.
	Ingest(ctx context.Context, raws []RawCandidate, page int, fromTable bool) ([]biomarker.Candidate, int)

	// Score assigns each candidate its confidence against the known prior
	// set, then drops sub-threshold candidates. The second return is the
	// dropped count. Any confidence the source claimed is overwritten.
	Score(ctx context.Context, cands []biomarker.Candidate, known map[string]biomarker.Candidate) ([]biomarker.Candidate, int)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type validator struct {
	cfg     *Config
	logger  logging.Logger
	metrics common.Metrics
}

var _ Validator = (*validator)(nil)

// NewValidator builds a Validator. A nil config takes defaults.
func NewValidator(cfg *Config, logger logging.Logger, metrics common.Metrics) (Validator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &validator{
		cfg:     cfg,
		logger:  logging.OrNop(logger).Named("validate"),
		metrics: metrics,
	}, nil
}

func (v *validator) Ingest(ctx context.Context, raws []RawCandidate, page int, fromTable bool) ([]biomarker.Candidate, int) {
	out := make([]biomarker.Candidate, 0, len(raws))
	rejected := 0

	for _, raw := range raws {
		cand, reason := v.ingestOne(raw, page, fromTable)
		if reason != "" {
			rejected++
			v.metrics.RecordValidation(ctx, false, reason)
			v.logger.Debug("candidate rejected at ingestion",
				logging.String("name", raw.Name),
				logging.String("reason", reason),
				logging.Int("page", page))
			continue
		}
		v.metrics.RecordValidation(ctx, true, "")
		out = append(out, cand)
	}
	return out, rejected
}

// ingestOne vets a single raw candidate. A non-empty reason means rejection.
func (v *validator) ingestOne(raw RawCandidate, page int, fromTable bool) (biomarker.Candidate, string) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return biomarker.Candidate{}, "missing_name"
	}

	value, ok := coerceValue(raw.Value)
	if !ok {
		return biomarker.Candidate{}, "invalid_value"
	}

	cand := biomarker.Candidate{
		Name:           name,
		Value:          value,
		Unit:           strings.TrimSpace(raw.Unit),
		ReferenceRange: coerceRange(raw.ReferenceRange),
		Category:       coerceCategory(raw.Category),
		IsAbnormal:     coerceAbnormal(raw.IsAbnormal),
		Page:           page,
		FromTable:      fromTable,
	}
	if !cand.IsAbnormal {
		cand.IsAbnormal = outsideRange(cand.Value, cand.ReferenceRange)
	}
	return cand, ""
}

func (v *validator) Score(ctx context.Context, cands []biomarker.Candidate, known map[string]biomarker.Candidate) ([]biomarker.Candidate, int) {
	out := make([]biomarker.Candidate, 0, len(cands))
	dropped := 0

	for _, cand := range cands {
		cand.Confidence = v.scoreOne(cand, known)
		if cand.Confidence < v.cfg.ConfidenceThreshold {
			dropped++
			v.metrics.RecordValidation(ctx, false, "sub_threshold")
			v.logger.Debug("candidate below confidence threshold",
				logging.String("name", cand.Name),
				logging.Float64("confidence", cand.Confidence),
				logging.Int("page", cand.Page))
			continue
		}
		out = append(out, cand)
	}
	return out, dropped
}

// scoreOne computes the heuristic confidence for one candidate.
func (v *validator) scoreOne(c biomarker.Candidate, known map[string]biomarker.Candidate) float64 {
	score := v.cfg.BaseScore

	if c.Name != "" && valuePresent(c.Value) && c.Unit != "" {
		score += v.cfg.CompleteBonus
	} else {
		score -= v.cfg.IncompletePenalty
	}
	if !c.ReferenceRange.IsZero() {
		score += v.cfg.RangeBonus
	}
	if c.FromTable {
		score += v.cfg.TableBonus
	}

	if prior, ok := known[c.NormalizedName()]; ok {
		switch {
		case c.Value.Key() == prior.Value.Key() && c.NormalizedUnit() == prior.NormalizedUnit():
			score -= v.cfg.DuplicatePenalty
		case contradicts(c.Value, prior.Value, v.cfg.ContradictionRatio):
			score -= v.cfg.ContradictionPenalty
		}
	}

	return clamp01(score)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func valuePresent(v biomarker.Value) bool {
	return v.IsNumeric || v.Qualitative != biomarker.QualNone || strings.TrimSpace(v.Raw) != ""
}

// contradicts reports whether two numeric values differ by more than ratio
// relative to the larger magnitude. Qualitative values never contradict.
func contradicts(a, b biomarker.Value, ratio float64) bool {
	if !a.IsNumeric || !b.IsNumeric {
		return false
	}
	larger := math.Max(math.Abs(a.Numeric), math.Abs(b.Numeric))
	if larger == 0 {
		return false
	}
	return math.Abs(a.Numeric-b.Numeric)/larger > ratio
}

// outsideRange reports whether a numeric value falls outside its captured
// reference bounds.
func outsideRange(v biomarker.Value, r biomarker.ReferenceRange) bool {
	if !v.IsNumeric {
		return false
	}
	if r.Low != nil && v.Numeric < *r.Low {
		return true
	}
	if r.High != nil && v.Numeric > *r.High {
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
