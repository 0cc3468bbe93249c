package fallback

import (
	"context"
	"regexp"
	"strings"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

var (
	dateValueRe = regexp.MustCompile(`\b(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}|\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}\s+(?i:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*),?\s+\d{4})\b`)
	dateLabelRe = regexp.MustCompile(`(?i)\b(?:reported?|report\s+date|collected|received|drawn)\b`)

	patientNameRe = regexp.MustCompile(`(?i)^\s*(?:patient\s*name|patient|name)\s*[:\-]\s*([A-Za-z][A-Za-z .']{1,59})\s*$`)
	patientIDRe   = regexp.MustCompile(`(?i)\b(?:patient\s*id|lab\s*(?:no|id)|reg(?:istration)?\s*no)\.?\s*[:\-]?\s*([A-Za-z0-9/-]{2,24})\b`)
	ageRe         = regexp.MustCompile(`(?i)\bage\s*[:\-]?\s*(\d{1,3})\s*(?:years|yrs|y(?:rs)?\b)?`)
	genderRe      = regexp.MustCompile(`(?i)\b(?:sex|gender)\s*[:\-]?\s*(male|female|m\b|f\b)`)
)

// RecoverMetadata reads report-level fields with deterministic patterns. The
// first hit wins for every field; lab name comes from vendor classification
// over the concatenated text.
func (p *parser) RecoverMetadata(ctx context.Context, pages []report.RawPage) biomarker.ReportMetadata {
	var meta biomarker.ReportMetadata
	var text strings.Builder

	for _, page := range report.SortPages(pages) {
		text.WriteString(page.Text)
		text.WriteString("\n")

		for _, line := range strings.Split(page.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if meta.ReportDate == "" && dateLabelRe.MatchString(line) {
				if m := dateValueRe.FindStringSubmatch(line); m != nil {
					meta.ReportDate = m[1]
				}
			}
			if meta.PatientName == "" {
				if m := patientNameRe.FindStringSubmatch(line); m != nil {
					meta.PatientName = strings.TrimSpace(m[1])
				}
			}
			if meta.PatientID == "" {
				if m := patientIDRe.FindStringSubmatch(line); m != nil {
					meta.PatientID = m[1]
				}
			}
			if meta.PatientAge == "" {
				if m := ageRe.FindStringSubmatch(line); m != nil {
					meta.PatientAge = m[1]
				}
			}
			if meta.PatientGender == "" {
				if m := genderRe.FindStringSubmatch(line); m != nil {
					meta.PatientGender = canonicalGender(m[1])
				}
			}
		}
	}

	// Any date beats no date when no labeled line carried one.
	if meta.ReportDate == "" {
		if m := dateValueRe.FindStringSubmatch(text.String()); m != nil {
			meta.ReportDate = m[1]
		}
	}

	if p.classifier != nil {
		if vc := p.classifier.Classify(text.String()); vc.Vendor != report.VendorUnknown {
			meta.LabName = vc.Vendor.DisplayName()
		}
	}

	p.logger.Debug("metadata recovered",
		logging.Bool("date", meta.ReportDate != ""),
		logging.Bool("lab", meta.LabName != ""))
	return meta
}

func canonicalGender(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "m", "male":
		return "male"
	case "f", "female":
		return "female"
	default:
		return ""
	}
}
