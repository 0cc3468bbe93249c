package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// Textual range forms seen across lab vendors. Numbers may carry
// digit-group commas.
var (
	intervalRe = regexp.MustCompile(`^([0-9][0-9,]*\.?[0-9]*)\s*(?:-|–|to)\s*([0-9][0-9,]*\.?[0-9]*)$`)
	upperRe    = regexp.MustCompile(`^(?:<\s*=?|≤|up\s*to|upto|less\s+than|below|under)\s*([0-9][0-9,]*\.?[0-9]*)$`)
	lowerRe    = regexp.MustCompile(`^(?:>\s*=?|≥|greater\s+than|above|over)\s*([0-9][0-9,]*\.?[0-9]*)$`)
)

// ParseRange reads a textual reference range: "70-99", "< 5.0", "up to 40",
// "> 1.2". The original text is always preserved; bounds are set only when a
// form matches. Unrecognized text yields a text-only range.
func ParseRange(text string) biomarker.ReferenceRange {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.Trim(trimmed, "()")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return biomarker.ReferenceRange{}
	}

	out := biomarker.ReferenceRange{Text: trimmed}
	lower := strings.ToLower(trimmed)

	if m := intervalRe.FindStringSubmatch(lower); m != nil {
		lo, errLo := strconv.ParseFloat(stripThousands(m[1]), 64)
		hi, errHi := strconv.ParseFloat(stripThousands(m[2]), 64)
		if errLo == nil && errHi == nil && lo <= hi {
			out.Low = &lo
			out.High = &hi
		}
		return out
	}
	if m := upperRe.FindStringSubmatch(lower); m != nil {
		if hi, err := strconv.ParseFloat(stripThousands(m[1]), 64); err == nil {
			out.High = &hi
		}
		return out
	}
	if m := lowerRe.FindStringSubmatch(lower); m != nil {
		if lo, err := strconv.ParseFloat(stripThousands(m[1]), 64); err == nil {
			out.Low = &lo
		}
		return out
	}
	return out
}
