package structure

import (
	"strings"

	"github.com/aman-ankur/labextract/pkg/types/report"
)

// rowGap is the open vertical band between two consecutive word rows.
type rowGap struct {
	size    float64
	prevEnd float64 // bottom of the row above
	nextTop float64 // top of the row below
}

func (g rowGap) midpoint() float64 { return (g.prevEnd + g.nextTop) / 2 }

func rowGaps(rows []wordRow, minSize float64) []rowGap {
	var gaps []rowGap
	for i := 1; i < len(rows); i++ {
		size := rows[i].top - rows[i-1].bottom
		if size > minSize {
			gaps = append(gaps, rowGap{size: size, prevEnd: rows[i-1].bottom, nextTop: rows[i].top})
		}
	}
	return gaps
}

// largestGapWithin picks the biggest candidate gap whose midpoint falls in
// [lo, hi). Returns false when none qualifies.
func largestGapWithin(gaps []rowGap, lo, hi float64) (rowGap, bool) {
	best := rowGap{}
	found := false
	for _, g := range gaps {
		m := g.midpoint()
		if m < lo || m >= hi {
			continue
		}
		if !found || g.size > best.size {
			best = g
			found = true
		}
	}
	return best, found
}

// partitionZones splits a page into header, content and footer. Boundaries
// start at fixed height fractions and move to a large word-row gap when one
// sits near the page edge; a moved boundary carries the refined confidence.
func partitionZones(page report.RawPage, cfg *Config) report.ZoneSet {
	height := page.Height
	width := page.Width
	if len(page.Words) > 0 {
		for _, w := range page.Words {
			if w.BBox.Y1 > height {
				height = w.BBox.Y1
			}
			if w.BBox.X1 > width {
				width = w.BBox.X1
			}
		}
	}
	if len(page.Words) == 0 || height <= 0 {
		return zonesFromText(page, width, height, cfg)
	}

	headerY := height * cfg.HeaderFraction
	footerY := height * (1 - cfg.FooterFraction)
	headerConf := cfg.BaseZoneConfidence
	footerConf := cfg.BaseZoneConfidence

	rows := clusterRows(page.Words, cfg.Table.AlignTolerance)
	gaps := rowGaps(rows, cfg.GapBreakThreshold)

	if g, ok := largestGapWithin(gaps, 0, height*cfg.EdgeSearchFraction); ok && g.size > cfg.LargeGapThreshold {
		headerY = g.prevEnd + cfg.BoundaryPad
		headerConf = cfg.RefinedConfidence
	}
	if g, ok := largestGapWithin(gaps, height*(1-cfg.EdgeSearchFraction), height+1); ok && g.size > cfg.LargeGapThreshold {
		footerY = g.nextTop - cfg.BoundaryPad
		footerConf = cfg.RefinedConfidence
	}
	if headerY >= footerY {
		// Moved boundaries crossed; fall back to the fraction defaults.
		headerY = height * cfg.HeaderFraction
		footerY = height * (1 - cfg.FooterFraction)
		headerConf = cfg.BaseZoneConfidence
		footerConf = cfg.BaseZoneConfidence
	}

	var headerText, contentText, footerText []string
	for _, r := range rows {
		switch c := r.center(); {
		case c < headerY:
			headerText = append(headerText, r.text())
		case c < footerY:
			contentText = append(contentText, r.text())
		default:
			footerText = append(footerText, r.text())
		}
	}

	return report.ZoneSet{
		Header: report.Zone{
			Type:       report.ZoneHeader,
			BBox:       report.BBox{X0: 0, Y0: 0, X1: width, Y1: headerY},
			Confidence: headerConf,
			Text:       strings.Join(headerText, "\n"),
		},
		Content: report.Zone{
			Type:       report.ZoneContent,
			BBox:       report.BBox{X0: 0, Y0: headerY, X1: width, Y1: footerY},
			Confidence: cfg.BaseZoneConfidence,
			Text:       strings.Join(contentText, "\n"),
		},
		Footer: report.Zone{
			Type:       report.ZoneFooter,
			BBox:       report.BBox{X0: 0, Y0: footerY, X1: width, Y1: height},
			Confidence: footerConf,
			Text:       strings.Join(footerText, "\n"),
		},
	}
}

// zonesFromText partitions by line count when no usable geometry exists.
func zonesFromText(page report.RawPage, width, height float64, cfg *Config) report.ZoneSet {
	lines := []string{}
	if page.Text != "" {
		lines = strings.Split(page.Text, "\n")
	}
	n := len(lines)
	headerN := int(float64(n) * cfg.HeaderFraction)
	footerN := int(float64(n) * cfg.FooterFraction)

	join := func(ls []string) string { return strings.Join(ls, "\n") }

	set := report.ZoneSet{
		Header: report.Zone{
			Type:       report.ZoneHeader,
			Confidence: cfg.BaseZoneConfidence,
			Text:       join(lines[:headerN]),
		},
		Content: report.Zone{
			Type:       report.ZoneContent,
			Confidence: cfg.BaseZoneConfidence,
			Text:       join(lines[headerN : n-footerN]),
		},
		Footer: report.Zone{
			Type:       report.ZoneFooter,
			Confidence: cfg.BaseZoneConfidence,
			Text:       join(lines[n-footerN:]),
		},
	}
	if height > 0 {
		set.Header.BBox = report.BBox{X0: 0, Y0: 0, X1: width, Y1: height * cfg.HeaderFraction}
		set.Content.BBox = report.BBox{X0: 0, Y0: height * cfg.HeaderFraction, X1: width, Y1: height * (1 - cfg.FooterFraction)}
		set.Footer.BBox = report.BBox{X0: 0, Y0: height * (1 - cfg.FooterFraction), X1: width, Y1: height}
	}
	return set
}
