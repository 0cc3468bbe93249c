package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-ankur/labextract/internal/extraction/chunker"
	"github.com/aman-ankur/labextract/internal/extraction/token"
	"github.com/aman-ankur/labextract/internal/extraction/tracker"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(token.NewEstimator(4.0), nil)
	require.NoError(t, err)
	return m
}

func testChunk(text string) chunker.Chunk {
	return chunker.Chunk{Text: text, Page: 1, RegionType: chunker.RegionContent}
}

func contextWithCalls(t *testing.T, calls int) tracker.Context {
	t.Helper()
	ctx := tracker.NewContext()
	for i := 0; i < calls; i++ {
		cand := biomarker.Candidate{
			Name:  fmt.Sprintf("Marker %d", i),
			Value: biomarker.NumericValue("5", 5),
			Unit:  "mg/dL",
			Page:  i + 1,
		}
		ctx = ctx.Update([]biomarker.Candidate{cand}, i+1, 100, 20)
	}
	return ctx
}

func TestBuildExtraction_FirstCallFullInstructions(t *testing.T) {
	m := newTestManager(t)
	p, err := m.BuildExtraction(testChunk("Glucose: 95 mg/dL"), tracker.NewContext(), "thyrocare", 1000)
	require.NoError(t, err)

	assert.False(t, p.Delta)
	assert.Contains(t, p.System, `{"biomarkers":`)
	assert.Contains(t, p.System, "Never invent values")
	assert.Contains(t, p.User, "Lab vendor: thyrocare")
	assert.Contains(t, p.User, "Glucose: 95 mg/dL")
	assert.Positive(t, p.EstimatedTokens)
}

func TestBuildExtraction_NoVendorLineWhenUnknown(t *testing.T) {
	m := newTestManager(t)
	p, err := m.BuildExtraction(testChunk("Glucose: 95 mg/dL"), tracker.NewContext(), "", 1000)
	require.NoError(t, err)
	assert.NotContains(t, p.User, "Lab vendor")
}

func TestBuildExtraction_DeltaAfterFirstCall(t *testing.T) {
	m := newTestManager(t)
	tctx := contextWithCalls(t, 1)

	p, err := m.BuildExtraction(testChunk("TSH: 2.5 mIU/L"), tctx, "thyrocare", 1000)
	require.NoError(t, err)

	assert.True(t, p.Delta)
	// The delta system prompt is a short reminder, not the full rules.
	assert.NotContains(t, p.System, "Never invent values")
	assert.Contains(t, p.System, `{"biomarkers":`)
	assert.Contains(t, p.User, "skip unless the value differs")
	assert.Contains(t, p.User, "marker 0")
	assert.Contains(t, p.User, "Marker 0: 5 mg/dL")
	assert.Contains(t, p.User, "TSH: 2.5 mIU/L")
}

func TestBuildExtraction_DeltaIsSmallerThanFull(t *testing.T) {
	m := newTestManager(t)
	chunk := testChunk("Albumin 4.2 g/dL")

	full, err := m.BuildExtraction(chunk, tracker.NewContext(), "", 2000)
	require.NoError(t, err)
	delta, err := m.BuildExtraction(chunk, contextWithCalls(t, 2), "", 2000)
	require.NoError(t, err)

	assert.Less(t, len(delta.System), len(full.System))
}

func TestBuildExtraction_DeltaCaps(t *testing.T) {
	m := newTestManager(t)
	tctx := contextWithCalls(t, 9)
	require.Greater(t, len(tctx.Patterns), maxDeltaPatterns)
	require.Greater(t, len(tctx.KnownNames()), maxDeltaKnownNames)

	p, err := m.BuildExtraction(testChunk("text"), tctx, "", 2000)
	require.NoError(t, err)

	assert.Equal(t, maxDeltaPatterns, strings.Count(p.User, "- Marker"))

	known := 0
	for _, name := range tctx.KnownNames() {
		if strings.Contains(p.User, name+",") || strings.Contains(p.User, name+".") {
			known++
		}
	}
	assert.Equal(t, maxDeltaKnownNames, known)
}

func TestBuildExtraction_SectionHints(t *testing.T) {
	m := newTestManager(t)
	tctx := contextWithCalls(t, 1)
	chunk := testChunk("text")
	chunk.ContextLabel = "LIVER FUNCTION TEST"

	p, err := m.BuildExtraction(chunk, tctx, "", 2000)
	require.NoError(t, err)
	assert.Contains(t, p.User, "Current section: LIVER FUNCTION TEST")
	assert.Contains(t, p.User, "Processed through page 1")
}

func TestBuildExtraction_TruncatesChunkToBudget(t *testing.T) {
	m := newTestManager(t)
	long := strings.Repeat("Total Cholesterol 180 mg/dL\n", 200)

	p, err := m.BuildExtraction(testChunk(long), tracker.NewContext(), "", 300)
	require.NoError(t, err)

	assert.LessOrEqual(t, p.EstimatedTokens, 300)
	assert.Less(t, len(p.User), len(long))
}

func TestBuildExtraction_BudgetTooSmall(t *testing.T) {
	m := newTestManager(t)
	_, err := m.BuildExtraction(testChunk("Glucose: 95 mg/dL"), tracker.NewContext(), "", 10)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestBuildMetadata(t *testing.T) {
	m := newTestManager(t)
	p, err := m.BuildMetadata("Thyrocare Aarogyam\nReported 12/01/2024", 500)
	require.NoError(t, err)

	assert.Contains(t, p.System, `"metadata"`)
	assert.Contains(t, p.System, "Never guess")
	assert.Contains(t, p.User, "Thyrocare Aarogyam")
	assert.False(t, p.Delta)
}

func TestRegister_Override(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Register(TemplateUserExtractionFull, "CUSTOM {{.ChunkText}}"))

	p, err := m.BuildExtraction(testChunk("glucose"), tracker.NewContext(), "", 1000)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.User, "CUSTOM"))
}

func TestRegister_BadTemplate(t *testing.T) {
	m := newTestManager(t)
	err := m.Register("broken", "{{.Unclosed")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfig))
}
