package structure

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/aman-ankur/labextract/pkg/types/report"
)

// ---------------------------------------------------------------------------
// Row clustering
// ---------------------------------------------------------------------------

// wordRow is a group of words sharing a baseline, ordered left to right.
type wordRow struct {
	top    float64
	bottom float64
	words  []report.Word
}

func (r wordRow) center() float64 { return (r.top + r.bottom) / 2 }

func (r wordRow) text() string {
	parts := make([]string, len(r.words))
	for i, w := range r.words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// clusterRows groups words into baseline rows by vertical-center proximity.
// Rows come back sorted top to bottom, words within a row left to right.
func clusterRows(words []report.Word, tolerance float64) []wordRow {
	if len(words) == 0 {
		return nil
	}

	sorted := make([]report.Word, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool {
		ci := (sorted[i].BBox.Y0 + sorted[i].BBox.Y1) / 2
		cj := (sorted[j].BBox.Y0 + sorted[j].BBox.Y1) / 2
		if ci != cj {
			return ci < cj
		}
		return sorted[i].BBox.X0 < sorted[j].BBox.X0
	})

	var rows []wordRow
	current := wordRow{top: sorted[0].BBox.Y0, bottom: sorted[0].BBox.Y1, words: []report.Word{sorted[0]}}
	refCenter := (sorted[0].BBox.Y0 + sorted[0].BBox.Y1) / 2

	for _, w := range sorted[1:] {
		c := (w.BBox.Y0 + w.BBox.Y1) / 2
		if math.Abs(c-refCenter) <= tolerance {
			current.words = append(current.words, w)
			current.top = math.Min(current.top, w.BBox.Y0)
			current.bottom = math.Max(current.bottom, w.BBox.Y1)
			continue
		}
		rows = append(rows, finishRow(current))
		current = wordRow{top: w.BBox.Y0, bottom: w.BBox.Y1, words: []report.Word{w}}
		refCenter = c
	}
	rows = append(rows, finishRow(current))
	return rows
}

func finishRow(r wordRow) wordRow {
	sort.Slice(r.words, func(i, j int) bool { return r.words[i].BBox.X0 < r.words[j].BBox.X0 })
	return r
}

// ---------------------------------------------------------------------------
// Geometric table detection
// ---------------------------------------------------------------------------

// columnCluster is a vertical alignment of word start positions.
type columnCluster struct {
	center  float64
	support map[int]bool // row indices with a word starting here
}

func clusterColumns(rows []wordRow, tolerance float64) []*columnCluster {
	type anchor struct {
		x   float64
		row int
	}
	var anchors []anchor
	for i, r := range rows {
		for _, w := range r.words {
			anchors = append(anchors, anchor{x: w.BBox.X0, row: i})
		}
	}
	if len(anchors) == 0 {
		return nil
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].x < anchors[j].x })

	var clusters []*columnCluster
	current := &columnCluster{center: anchors[0].x, support: map[int]bool{anchors[0].row: true}}
	start := anchors[0].x
	for _, a := range anchors[1:] {
		if a.x-start <= tolerance {
			current.support[a.row] = true
			current.center = (current.center + a.x) / 2
			continue
		}
		clusters = append(clusters, current)
		current = &columnCluster{center: a.x, support: map[int]bool{a.row: true}}
		start = a.x
	}
	clusters = append(clusters, current)
	return clusters
}

// tablesFromRows finds maximal runs of rows aligned on shared columns.
func tablesFromRows(rows []wordRow, minRows, minCols int, tolerance float64) []report.Table {
	if len(rows) < minRows {
		return nil
	}

	var aligned []*columnCluster
	for _, c := range clusterColumns(rows, tolerance) {
		if len(c.support) >= minRows {
			aligned = append(aligned, c)
		}
	}
	if len(aligned) == 0 {
		return nil
	}

	matched := make([]int, len(rows))
	for _, c := range aligned {
		for row := range c.support {
			matched[row]++
		}
	}

	var tables []report.Table
	runStart := -1
	for i := 0; i <= len(rows); i++ {
		qualifies := i < len(rows) && matched[i] >= minCols
		if qualifies && runStart < 0 {
			runStart = i
		}
		if !qualifies && runStart >= 0 {
			if i-runStart >= minRows {
				tables = append(tables, buildTable(rows[runStart:i], matched[runStart:i]))
			}
			runStart = -1
		}
	}
	return tables
}

func buildTable(rows []wordRow, matched []int) report.Table {
	box := rows[0].words[0].BBox
	cols := 0
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = r.text()
		if matched[i] > cols {
			cols = matched[i]
		}
		for _, w := range r.words {
			box.X0 = math.Min(box.X0, w.BBox.X0)
			box.Y0 = math.Min(box.Y0, w.BBox.Y0)
			box.X1 = math.Max(box.X1, w.BBox.X1)
			box.Y1 = math.Max(box.Y1, w.BBox.Y1)
		}
	}
	return report.Table{
		BBox:       box,
		Rows:       len(rows),
		Cols:       cols,
		Confidence: tableConfidence(len(rows), cols),
		Text:       strings.Join(lines, "\n"),
	}
}

func tableConfidence(rows, cols int) float64 {
	return math.Min(0.95, 0.5+float64(rows*cols)/100.0)
}

// ---------------------------------------------------------------------------
// Fallbacks without word geometry
// ---------------------------------------------------------------------------

var gridDelimiter = regexp.MustCompile(`\t|\s{2,}|\|`)

// tablesFromTextGrid finds runs of delimiter-separated lines in raw text.
func tablesFromTextGrid(text string, minRows int) []report.Table {
	lines := strings.Split(text, "\n")

	cells := func(line string) int {
		n := 0
		for _, c := range gridDelimiter.Split(line, -1) {
			if strings.TrimSpace(c) != "" {
				n++
			}
		}
		return n
	}

	var tables []report.Table
	runStart := -1
	runCols := 0
	var runLines []string
	for i := 0; i <= len(lines); i++ {
		n := 0
		if i < len(lines) {
			n = cells(lines[i])
		}
		if n >= 2 {
			if runStart < 0 {
				runStart = i
				runCols = 0
				runLines = runLines[:0]
			}
			runLines = append(runLines, lines[i])
			if n > runCols {
				runCols = n
			}
			continue
		}
		if runStart >= 0 {
			if len(runLines) >= minRows {
				tables = append(tables, report.Table{
					Rows:       len(runLines),
					Cols:       runCols,
					Confidence: tableConfidence(len(runLines), runCols),
					Text:       strings.Join(runLines, "\n"),
				})
			}
			runStart = -1
		}
	}
	return tables
}

// normalizeHints re-scores upstream table hints with the local formula.
func normalizeHints(hints []report.Table) []report.Table {
	out := make([]report.Table, len(hints))
	for i, h := range hints {
		h.Confidence = tableConfidence(h.Rows, h.Cols)
		out[i] = h
	}
	return out
}

// detectTables runs the strict geometric pass, retries relaxed on zero
// results, and only without any word geometry falls back to upstream hints
// and then to a text-grid scan.
func detectTables(page report.RawPage, t TableThresholds) []report.Table {
	if len(page.Words) > 0 {
		rows := clusterRows(page.Words, t.AlignTolerance)
		tables := tablesFromRows(rows, t.MinRows, t.MinCols, t.AlignTolerance)
		if len(tables) == 0 {
			rows = clusterRows(page.Words, t.RelaxedTolerance)
			tables = tablesFromRows(rows, t.RelaxedMinRows, t.RelaxedMinCols, t.RelaxedTolerance)
		}
		return tables
	}
	if len(page.TableRegions) > 0 {
		return normalizeHints(page.TableRegions)
	}
	return tablesFromTextGrid(page.Text, t.MinRows)
}
