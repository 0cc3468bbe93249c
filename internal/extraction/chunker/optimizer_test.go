package chunker

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-ankur/labextract/pkg/types/report"
)

func newTestOptimizer(t *testing.T, cfg *Config) *optimizer {
	t.Helper()
	o, err := NewOptimizer(cfg, nil)
	require.NoError(t, err)
	return o.(*optimizer)
}

// usablePage builds a page structure with populated header/footer zones so
// it does not read as degraded.
func usablePage(pageNumber int, contentText string, contentConf float64, tables ...report.Table) report.PageStructure {
	return report.PageStructure{
		PageNumber: pageNumber,
		Zones: report.ZoneSet{
			Header:  report.Zone{Type: report.ZoneHeader, Confidence: 0.7},
			Content: report.Zone{Type: report.ZoneContent, Text: contentText, Confidence: contentConf},
			Footer:  report.Zone{Type: report.ZoneFooter, Confidence: 0.7},
		},
		Tables:     tables,
		Confidence: contentConf,
	}
}

func docStructure(pages ...report.PageStructure) report.DocumentStructure {
	m := make(map[int]report.PageStructure, len(pages))
	for _, p := range pages {
		m[p.PageNumber] = p
	}
	return report.DocumentStructure{Pages: m}
}

func TestBuildChunks_TableGetsOwnChunk(t *testing.T) {
	o := newTestOptimizer(t, nil)
	tbl := report.Table{Rows: 3, Cols: 3, Confidence: 0.59, Text: "Glucose  95  mg/dL\nSodium  140  mmol/L\nPotassium  4.2  mmol/L"}
	structure := docStructure(usablePage(1, "Interpretation: values unremarkable. Glucose within range mg/dL.", 0.7, tbl))
	pages := []report.RawPage{{PageNumber: 1, Text: "full text"}}

	chunks := o.BuildChunks(pages, structure)

	require.Len(t, chunks, 2)
	assert.Equal(t, RegionTable, chunks[0].RegionType)
	assert.Equal(t, RegionContent, chunks[1].RegionType)
	assert.Contains(t, chunks[0].Text, "Potassium")
	assert.Greater(t, chunks[0].Confidence, chunks[1].Confidence)
	for _, c := range chunks {
		assert.Equal(t, 1, c.Page)
		assert.Positive(t, c.EstimatedTokens)
	}
}

func TestBuildChunks_OrderingPageAscConfidenceDesc(t *testing.T) {
	o := newTestOptimizer(t, nil)
	tbl := report.Table{Rows: 2, Cols: 2, Text: "TSH  2.5  mIU/L\nT4  8.1  ug/dL"}
	structure := docStructure(
		usablePage(1, "Glucose 95 mg/dL noted in summary", 0.8, tbl),
		usablePage(2, "Hemoglobin 13.5 g/dL follow-up advised", 0.8, tbl),
	)
	pages := []report.RawPage{{PageNumber: 2}, {PageNumber: 1}}

	chunks := o.BuildChunks(pages, structure)
	require.NotEmpty(t, chunks)

	assert.True(t, sort.SliceIsSorted(chunks, func(i, j int) bool {
		if chunks[i].Page != chunks[j].Page {
			return chunks[i].Page < chunks[j].Page
		}
		return chunks[i].Confidence > chunks[j].Confidence
	}))
	assert.Equal(t, 1, chunks[0].Page)
}

func TestBuildChunks_IrrelevantPageDropped(t *testing.T) {
	o := newTestOptimizer(t, nil)
	structure := docStructure(
		// High confidence but nothing biomarker-shaped in the text.
		usablePage(1, "Invoice and billing correspondence follows.", 0.9),
		// Biomarker text but confidence at the threshold, not above it.
		usablePage(2, "Glucose 95 mg/dL", 0.5),
	)
	pages := []report.RawPage{
		{PageNumber: 1, Text: "Invoice and billing correspondence follows."},
		{PageNumber: 2, Text: "Glucose 95 mg/dL"},
	}

	assert.Empty(t, o.BuildChunks(pages, structure))
}

func TestBuildChunks_ContentPageKeptWhenBiomarkerish(t *testing.T) {
	o := newTestOptimizer(t, nil)
	structure := docStructure(usablePage(1, "Serum Creatinine: 0.9 mg/dL within range", 0.7))
	pages := []report.RawPage{{PageNumber: 1}}

	chunks := o.BuildChunks(pages, structure)
	require.Len(t, chunks, 1)
	assert.Equal(t, RegionContent, chunks[0].RegionType)
}

func TestBuildChunks_MissingStructureIncludesWholePage(t *testing.T) {
	o := newTestOptimizer(t, nil)
	pages := []report.RawPage{{PageNumber: 3, Text: "opaque scan text with no derived layout"}}

	chunks := o.BuildChunks(pages, report.DocumentStructure{Pages: map[int]report.PageStructure{}})

	require.Len(t, chunks, 1)
	assert.Equal(t, RegionPage, chunks[0].RegionType)
	assert.Contains(t, chunks[0].Text, "opaque scan")
}

func TestBuildChunks_DegradedStructureIncludesWholePage(t *testing.T) {
	o := newTestOptimizer(t, nil)
	degraded := report.PageStructure{
		PageNumber: 1,
		Zones: report.ZoneSet{
			Content: report.Zone{Type: report.ZoneContent, Text: "whole page text", Confidence: 0.5},
		},
		Confidence: 0.5,
	}
	pages := []report.RawPage{{PageNumber: 1, Text: "whole page text"}}

	chunks := o.BuildChunks(pages, docStructure(degraded))
	require.Len(t, chunks, 1)
	assert.Equal(t, RegionPage, chunks[0].RegionType)
}

func TestBuildChunks_HeaderChunkOnlyWhenBiomarkerish(t *testing.T) {
	o := newTestOptimizer(t, nil)

	ps := usablePage(1, "Glucose 95 mg/dL summary", 0.8)
	ps.Zones.Header.Text = "Acme Diagnostics, Mumbai"
	chunks := o.BuildChunks([]report.RawPage{{PageNumber: 1}}, docStructure(ps))
	for _, c := range chunks {
		assert.NotEqual(t, RegionHeader, c.RegionType)
	}

	ps.Zones.Header.Text = "Hemoglobin 13.5 g/dL reported above letterhead"
	chunks = o.BuildChunks([]report.RawPage{{PageNumber: 1}}, docStructure(ps))
	found := false
	for _, c := range chunks {
		if c.RegionType == RegionHeader {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuildChunks_ContextLabelCarriesHeading(t *testing.T) {
	o := newTestOptimizer(t, nil)
	content := "LIPID PROFILE\nTotal Cholesterol: 180 mg/dL\nHDL: 50 mg/dL"
	structure := docStructure(usablePage(2, content, 0.8))

	chunks := o.BuildChunks([]report.RawPage{{PageNumber: 2}}, structure)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].ContextLabel, "page 2")
	assert.Contains(t, chunks[0].ContextLabel, "LIPID PROFILE")
}

func TestSplitByBudget_RespectsBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokensPerChunk = 10
	o := newTestOptimizer(t, cfg)

	lines := make([]string, 12)
	for i := range lines {
		lines[i] = "Creatinine: 0.9 mg/dL"
	}
	text := strings.Join(lines, "\n")

	pieces := o.splitByBudget(text)
	require.Greater(t, len(pieces), 1)
	for i, p := range pieces {
		assert.LessOrEqual(t, o.est.Estimate(p), 10, "piece %d", i)
	}
	assert.Equal(t, text, strings.Join(pieces, "\n"))
}

func TestSplitLongLine_LosslessAndBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokensPerChunk = 5
	o := newTestOptimizer(t, cfg)

	line := strings.Repeat("x", 200)
	pieces := o.splitLongLine(line, 5)

	assert.Equal(t, line, strings.Join(pieces, ""))
	for _, p := range pieces {
		assert.LessOrEqual(t, o.est.Estimate(p), 5)
	}
}

func TestLikelihood(t *testing.T) {
	text := "Glucose: 95 mg/dL (70-110)"
	assert.Greater(t, likelihood(RegionTable, text), likelihood(RegionContent, text))
	assert.Greater(t, likelihood(RegionContent, text), likelihood(RegionContent, "no signals here"))

	var many strings.Builder
	for i := 0; i < 60; i++ {
		many.WriteString("Glucose: 95 mg/dL (70-110)\n")
	}
	assert.InDelta(t, 0.95, likelihood(RegionTable, many.String()), 1e-9)
}

func TestBuildChunks_EmptyInput(t *testing.T) {
	o := newTestOptimizer(t, nil)
	assert.Empty(t, o.BuildChunks(nil, report.DocumentStructure{}))
}
