package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aman-ankur/labextract/pkg/types/report"
)

func TestBBox_Dimensions(t *testing.T) {
	t.Parallel()

	b := report.BBox{X0: 10, Y0: 20, X1: 110, Y1: 50}
	assert.InDelta(t, 100, b.Width(), 1e-9)
	assert.InDelta(t, 30, b.Height(), 1e-9)
	assert.False(t, b.IsZero())
	assert.True(t, report.BBox{}.IsZero())
}

func TestDocumentStructure_PageNumbers(t *testing.T) {
	t.Parallel()

	d := report.DocumentStructure{Pages: map[int]report.PageStructure{
		3: {PageNumber: 3},
		1: {PageNumber: 1},
		2: {PageNumber: 2},
	}}
	assert.Equal(t, []int{1, 2, 3}, d.PageNumbers())
}

func TestDocumentStructure_HasTables(t *testing.T) {
	t.Parallel()

	d := report.DocumentStructure{Pages: map[int]report.PageStructure{
		1: {PageNumber: 1},
	}}
	assert.False(t, d.HasTables())

	d.Pages[2] = report.PageStructure{
		PageNumber: 2,
		Tables:     []report.Table{{Rows: 4, Cols: 3}},
	}
	assert.True(t, d.HasTables())
}

func TestSortPages_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []report.RawPage{{PageNumber: 2}, {PageNumber: 1}}
	out := report.SortPages(in)

	assert.Equal(t, 2, in[0].PageNumber, "input order preserved")
	assert.Equal(t, 1, out[0].PageNumber)
	assert.Equal(t, 2, out[1].PageNumber)
}

func TestNewDocumentID_Unique(t *testing.T) {
	t.Parallel()

	a := report.NewDocumentID()
	b := report.NewDocumentID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
