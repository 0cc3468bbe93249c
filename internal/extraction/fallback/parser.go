// Package fallback is the deterministic line parser used when the gateway is
// disabled, unavailable, or repeatedly returning nothing. It trades recall
// for precision: layered line regexes plus a name vetting table keep layout
// noise out at the cost of missing unusual result formats.
package fallback

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/extraction/validate"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

// Parser extracts biomarkers and report metadata without the gateway.
type Parser interface {
	// Parse scans text line by line and returns every candidate that
	// survives the vetting rules. Confidence is left unset; the scorer
	// assigns it.
	Parse(ctx context.Context, text string, page int) []biomarker.Candidate

	// RecoverMetadata reads report-level fields (lab name, report date,
	// patient fields) from raw pages with deterministic patterns only.
	RecoverMetadata(ctx context.Context, pages []report.RawPage) biomarker.ReportMetadata
}

// ---------------------------------------------------------------------------
// Line grammar
// ---------------------------------------------------------------------------

// The three line layers, most specific first. Every pattern captures
// exactly (name, value, unit, range); the range group may be empty.
var lineLayers = []*regexp.Regexp{
	// <name>: <value> <unit> [(<range>)]
	regexp.MustCompile(`^\s*([^:]{2,}?)\s*:\s*((?i:[0-9][0-9.,]*|nil|negative|positive|trace))\s+([^\s():]+)\s*(?:\(([^()]*)\))?\s*$`),
	// <name> <value> <unit> <range> with an unparenthesized range tail
	regexp.MustCompile(`^\s*([A-Za-z)(][A-Za-z0-9 .,():/%'+-]*?)\s+((?i:[0-9][0-9.,]*|nil|negative|positive|trace))\s+([^\s()]+)\s+([0-9][0-9.,]*\s*(?:-|–|to)\s*[0-9][0-9.,]*|[<>]=?\s*[0-9][0-9.,]*|(?i:up\s*to)\s*[0-9][0-9.,]*)\s*$`),
	// <name> <value> <unit> [(<range>)]
	regexp.MustCompile(`^\s*([A-Za-z)(][A-Za-z0-9 .,():/%'+-]*?)\s+((?i:[0-9][0-9.,]*|nil|negative|positive|trace))\s+([^\s()]+)\s*(?:\(([^()]*)\))?\s*$`),
}

// unitShapeRe requires at least one letter or symbol a real unit carries, so
// a second number on the line never passes as a unit.
var unitShapeRe = regexp.MustCompile(`[A-Za-zµ%]`)

const maxUnitLen = 20

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

// VendorClassifier is the slice of the structure classifier the parser uses
// for lab-name recovery.
type VendorClassifier interface {
	Classify(text string) report.VendorClassification
}

type parser struct {
	classifier VendorClassifier
	logger     logging.Logger
	metrics    common.Metrics
}

var _ Parser = (*parser)(nil)

// NewParser builds a Parser. The classifier supplies lab-name recovery; nil
// disables it.
func NewParser(classifier VendorClassifier, logger logging.Logger, metrics common.Metrics) Parser {
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &parser{
		classifier: classifier,
		logger:     logging.OrNop(logger).Named("fallback"),
		metrics:    metrics,
	}
}

func (p *parser) Parse(ctx context.Context, text string, page int) []biomarker.Candidate {
	var out []biomarker.Candidate

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cand, ok := p.parseLine(ctx, line, page)
		if !ok {
			continue
		}
		out = append(out, cand)
	}

	p.logger.Debug("fallback parsed page",
		logging.Int("page", page),
		logging.Int("candidates", len(out)))
	return out
}

// parseLine runs the layered grammar over one line and vets the capture.
func (p *parser) parseLine(ctx context.Context, line string, page int) (biomarker.Candidate, bool) {
	var m []string
	for _, re := range lineLayers {
		if m = re.FindStringSubmatch(line); m != nil {
			break
		}
	}
	if m == nil {
		return biomarker.Candidate{}, false
	}

	name, rejectReason := vetName(m[1])
	if rejectReason != "" {
		p.metrics.RecordValidation(ctx, false, "name_"+rejectReason)
		return biomarker.Candidate{}, false
	}

	value, ok := parseValue(m[2])
	if !ok {
		p.metrics.RecordValidation(ctx, false, "invalid_value")
		return biomarker.Candidate{}, false
	}

	unit := strings.TrimSpace(m[3])
	if unit == "" || len(unit) > maxUnitLen || !unitShapeRe.MatchString(unit) {
		p.metrics.RecordValidation(ctx, false, "missing_unit")
		return biomarker.Candidate{}, false
	}

	cand := biomarker.Candidate{
		Name:     name,
		Value:    value,
		Unit:     unit,
		Category: categoryFor(name),
		Page:     page,
	}
	if rng := strings.TrimSpace(m[4]); rng != "" {
		cand.ReferenceRange = validate.ParseRange(rng)
	}

	p.metrics.RecordValidation(ctx, true, "")
	return cand, true
}

// parseValue reads a captured value as a finite number or a qualitative
// token. Anything else fails the line.
func parseValue(raw string) (biomarker.Value, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return biomarker.Value{}, false
	}
	if n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return biomarker.Value{}, false
		}
		return biomarker.NumericValue(s, n), true
	}
	if q, ok := biomarker.ParseQualitative(s); ok {
		return biomarker.QualitativeValue(s, q), true
	}
	return biomarker.Value{}, false
}
