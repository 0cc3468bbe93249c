package validate

import (
	"math"
	"strconv"
	"strings"

	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// RawCandidate is the loosely-typed shape candidates arrive in from the
// gateway. Field types are deliberately loose: models emit values as numbers
// or strings, ranges as text or {low, high} objects, abnormal flags as bools
// or words. Nothing here is trusted until Ingest has vetted it.
type RawCandidate struct {
	Name           string `json:"name"`
	Value          any    `json:"value"`
	Unit           string `json:"unit"`
	ReferenceRange any    `json:"reference_range"`
	Category       string `json:"category"`
	IsAbnormal     any    `json:"is_abnormal"`
}

// coerceValue interprets a loose value as numeric or qualitative. The second
// return is false when neither reading holds.
func coerceValue(v any) (biomarker.Value, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return biomarker.Value{}, false
		}
		return biomarker.NumericValue(strconv.FormatFloat(t, 'f', -1, 64), t), true
	case int:
		return biomarker.NumericValue(strconv.Itoa(t), float64(t)), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return biomarker.Value{}, false
		}
		if n, err := strconv.ParseFloat(stripThousands(s), 64); err == nil {
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return biomarker.Value{}, false
			}
			return biomarker.NumericValue(s, n), true
		}
		if q, ok := biomarker.ParseQualitative(s); ok {
			return biomarker.QualitativeValue(s, q), true
		}
		return biomarker.Value{}, false
	default:
		return biomarker.Value{}, false
	}
}

// coerceRange interprets a loose reference range: free text, or an object
// with low/high bounds as numbers or numeric strings.
func coerceRange(v any) biomarker.ReferenceRange {
	switch t := v.(type) {
	case nil:
		return biomarker.ReferenceRange{}
	case string:
		return ParseRange(t)
	case map[string]any:
		var out biomarker.ReferenceRange
		if low, ok := coerceBound(t["low"]); ok {
			out.Low = &low
		}
		if high, ok := coerceBound(t["high"]); ok {
			out.High = &high
		}
		if text, ok := t["text"].(string); ok {
			out.Text = strings.TrimSpace(text)
		}
		return out
	default:
		return biomarker.ReferenceRange{}
	}
}

func coerceBound(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(stripThousands(strings.TrimSpace(t)), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// coerceAbnormal reads a loose abnormal flag. Anything unrecognized is
// treated as not abnormal.
func coerceAbnormal(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "high", "low", "h", "l", "abnormal":
			return true
		}
	}
	return false
}

// coerceCategory maps a loose category label to the known panel set.
func coerceCategory(s string) biomarker.Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "lipid", "lipid profile", "lipids":
		return biomarker.CategoryLipid
	case "metabolic", "glucose", "diabetes":
		return biomarker.CategoryMetabolic
	case "thyroid":
		return biomarker.CategoryThyroid
	case "hematology", "haematology", "cbc", "blood count":
		return biomarker.CategoryHematology
	case "liver", "lft", "hepatic":
		return biomarker.CategoryLiver
	case "kidney", "renal", "kft":
		return biomarker.CategoryKidney
	case "vitamin", "vitamins":
		return biomarker.CategoryVitamin
	case "hormone", "hormones", "hormonal":
		return biomarker.CategoryHormone
	case "immunology", "immune", "serology":
		return biomarker.CategoryImmunology
	default:
		return biomarker.CategoryOther
	}
}

// stripThousands removes digit-group commas so "1,250" parses.
func stripThousands(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
