// Package biomarker defines the validated measurement types produced by the
// extraction pipeline and the options callers use to drive it.
package biomarker

import (
	"strconv"
	"strings"
)

// Qualitative is a recognized non-numeric result token.
type Qualitative string

const (
	QualNone     Qualitative = ""
	QualNil      Qualitative = "Nil"
	QualNegative Qualitative = "Negative"
	QualPositive Qualitative = "Positive"
	QualTrace    Qualitative = "Trace"
)

// ParseQualitative maps a raw token to its canonical qualitative value.
// The second return is false when the token is not a recognized qualitative.
func ParseQualitative(raw string) (Qualitative, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "nil":
		return QualNil, true
	case "negative":
		return QualNegative, true
	case "positive":
		return QualPositive, true
	case "trace", "traces":
		return QualTrace, true
	default:
		return QualNone, false
	}
}

// Value carries both the raw extracted text and, when numeric, its parsed
// form. Exactly one of IsNumeric / Qualitative≠QualNone holds for a valid
// candidate.
type Value struct {
	Raw         string      `json:"raw"`
	Numeric     float64     `json:"numeric,omitempty"`
	IsNumeric   bool        `json:"is_numeric"`
	Qualitative Qualitative `json:"qualitative,omitempty"`
}

// NumericValue builds a numeric Value from a parsed float and its raw text.
func NumericValue(raw string, n float64) Value {
	return Value{Raw: raw, Numeric: n, IsNumeric: true}
}

// QualitativeValue builds a qualitative Value.
func QualitativeValue(raw string, q Qualitative) Value {
	return Value{Raw: raw, Qualitative: q}
}

// Key returns the canonical comparison form of the value for deduplication:
// the shortest float form for numerics, the canonical token for qualitatives.
func (v Value) Key() string {
	if v.IsNumeric {
		return strconv.FormatFloat(v.Numeric, 'g', -1, 64)
	}
	if v.Qualitative != QualNone {
		return string(v.Qualitative)
	}
	return strings.ToLower(strings.TrimSpace(v.Raw))
}

// ReferenceRange is the expected interval for a measurement. Low/High are nil
// when the bound was not stated; Text preserves the original phrasing.
type ReferenceRange struct {
	Low  *float64 `json:"low,omitempty"`
	High *float64 `json:"high,omitempty"`
	Text string   `json:"text,omitempty"`
}

// IsZero reports whether no range information was captured.
func (r ReferenceRange) IsZero() bool {
	return r.Low == nil && r.High == nil && r.Text == ""
}

// Category groups biomarkers by panel.
type Category string

const (
	CategoryOther      Category = "other"
	CategoryLipid      Category = "lipid"
	CategoryMetabolic  Category = "metabolic"
	CategoryThyroid    Category = "thyroid"
	CategoryHematology Category = "hematology"
	CategoryLiver      Category = "liver"
	CategoryKidney     Category = "kidney"
	CategoryVitamin    Category = "vitamin"
	CategoryHormone    Category = "hormone"
	CategoryImmunology Category = "immunology"
)

// Candidate is one validated biomarker measurement. Confidence is a 0-1
// heuristic trust score, not a statistical probability.
type Candidate struct {
	Name           string         `json:"name"`
	Value          Value          `json:"value"`
	Unit           string         `json:"unit"`
	ReferenceRange ReferenceRange `json:"reference_range,omitempty"`
	Category       Category       `json:"category,omitempty"`
	IsAbnormal     bool           `json:"is_abnormal"`
	Confidence     float64        `json:"confidence"`
	Page           int            `json:"page"`
	FromTable      bool           `json:"from_table,omitempty"`
}

// NormalizedName returns the lowercase, whitespace-collapsed form of the
// name used for known-biomarker keys and dedup grouping.
func (c Candidate) NormalizedName() string {
	return strings.Join(strings.Fields(strings.ToLower(c.Name)), " ")
}

// NormalizedUnit returns the comparison form of the unit.
func (c Candidate) NormalizedUnit() string {
	return strings.ToLower(strings.TrimSpace(c.Unit))
}

// DedupKey returns the grouping key for the final merge: candidates sharing
// a key collapse to exactly one survivor.
func (c Candidate) DedupKey() string {
	return c.NormalizedName() + "|" + c.Value.Key() + "|" + c.NormalizedUnit()
}

// ReportMetadata is document-level information recovered alongside
// biomarkers.
type ReportMetadata struct {
	LabName       string `json:"lab_name,omitempty"`
	ReportDate    string `json:"report_date,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	PatientID     string `json:"patient_id,omitempty"`
	PatientAge    string `json:"patient_age,omitempty"`
	PatientGender string `json:"patient_gender,omitempty"`
}

// Diagnostics reports how the extraction ran so callers can flag degraded
// documents for review.
type Diagnostics struct {
	UsedFallback        bool    `json:"used_fallback"`
	StructureConfidence float64 `json:"structure_confidence"`
	GatewayCalls        int     `json:"gateway_calls"`
	TokensIn            int     `json:"tokens_in"`
	TokensOut           int     `json:"tokens_out"`
	ChunksProcessed     int     `json:"chunks_processed"`
	CandidatesRejected  int     `json:"candidates_rejected"`
}

// ExtractionResult is the terminal pipeline output. Ownership passes to the
// caller; the pipeline never retains or persists it.
type ExtractionResult struct {
	Biomarkers  []Candidate    `json:"biomarkers"`
	Metadata    ReportMetadata `json:"metadata"`
	Diagnostics Diagnostics    `json:"diagnostics"`
}

// Options drive one extraction run.
type Options struct {
	// UseGateway enables the external LLM; false forces the deterministic
	// fallback parser for the whole document.
	UseGateway bool `json:"use_gateway"`

	// ConfidenceThreshold drops candidates scoring below it. Valid range
	// is (0,1]; the pipeline default applies when zero.
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	// MaxTokensPerCall bounds a single gateway request.
	MaxTokensPerCall int `json:"max_tokens_per_call"`

	// VendorHint short-circuits vendor classification when the caller
	// already knows the lab.
	VendorHint string `json:"vendor_hint,omitempty"`
}

// DefaultOptions returns the options used when a caller passes the zero
// value.
func DefaultOptions() Options {
	return Options{
		UseGateway:          true,
		ConfidenceThreshold: 0.65,
		MaxTokensPerCall:    4000,
	}
}
