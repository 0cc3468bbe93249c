package testutil

import (
	"fmt"
	"strings"

	"github.com/aman-ankur/labextract/pkg/types/report"
)

// Fixture page dimensions, roughly US Letter in points.
const (
	FixturePageWidth  = 612.0
	FixturePageHeight = 792.0
)

// TextPage builds a geometry-free page: text only, no words, no hints. The
// structure detector degrades these to text heuristics.
func TextPage(number int, lines ...string) report.RawPage {
	return report.RawPage{
		PageNumber: number,
		Text:       strings.Join(lines, "\n"),
		Width:      FixturePageWidth,
		Height:     FixturePageHeight,
	}
}

// WordRow lays the given texts out as one row of words at y, evenly spaced
// across the page, and returns them.
func WordRow(y float64, texts ...string) []report.Word {
	words := make([]report.Word, 0, len(texts))
	step := FixturePageWidth / float64(len(texts)+1)
	for i, t := range texts {
		x := step * float64(i+1)
		words = append(words, report.Word{
			Text: t,
			BBox: report.BBox{X0: x, Y0: y, X1: x + float64(len(t))*5, Y1: y + 10},
		})
	}
	return words
}

// TablePage builds a page whose words form a regular rows×cols grid starting
// at startY, so the geometric table detector finds exactly one table. Cell
// text is "r<row>c<col>" unless cellText overrides it.
func TablePage(number, rows, cols int, startY float64, cellText func(r, c int) string) report.RawPage {
	if cellText == nil {
		cellText = func(r, c int) string { return fmt.Sprintf("r%dc%d", r, c) }
	}
	var words []report.Word
	var sb strings.Builder
	for r := 0; r < rows; r++ {
		texts := make([]string, cols)
		for c := 0; c < cols; c++ {
			texts[c] = cellText(r, c)
		}
		words = append(words, WordRow(startY+float64(r)*15, texts...)...)
		sb.WriteString(strings.Join(texts, "  "))
		sb.WriteString("\n")
	}
	return report.RawPage{
		PageNumber: number,
		Text:       sb.String(),
		Words:      words,
		Width:      FixturePageWidth,
		Height:     FixturePageHeight,
	}
}

// LabReportPage builds a realistic single-page report: letterhead, patient
// block, and a panel of "name value unit (range)" lines in the content zone.
func LabReportPage(number int, panel ...string) report.RawPage {
	if len(panel) == 0 {
		panel = []string{
			"Glucose: 95 mg/dL (70-99)",
			"Cholesterol: 210 mg/dL (125-200)",
			"Hemoglobin: 13.5 g/dL (13.0-17.0)",
		}
	}
	lines := append([]string{
		"Sterling Diagnostics Pvt Ltd",
		"NABL Accredited Laboratory  Reg No MH-1234",
		"Patient: ROHAN MEHTA   Age: 42 Y   Sex: M",
		"Reported: 12/03/2024",
		"",
		"BIOCHEMISTRY",
	}, panel...)
	lines = append(lines, "", "End of report  Page "+fmt.Sprint(number))
	return TextPage(number, lines...)
}
