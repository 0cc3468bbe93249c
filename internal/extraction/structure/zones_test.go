package structure

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-ankur/labextract/pkg/types/report"
)

// rowAt places a single word row spanning y0..y0+6.
func rowAt(text string, y0 float64) report.Word {
	return word(text, 10, y0, 200, y0+6)
}

func TestPartitionZones_DefaultFractions(t *testing.T) {
	page := report.RawPage{
		PageNumber: 1,
		Width:      300,
		Height:     100,
		Words: []report.Word{
			rowAt("Acme Labs", 2),
			rowAt("Glucose 95 mg/dL", 20),
			rowAt("Sodium 140 mmol/L", 40),
			rowAt("Potassium 4.2 mmol/L", 60),
			rowAt("Page 1 of 2", 92),
		},
	}
	zones := partitionZones(page, DefaultConfig())

	assert.InDelta(t, 15.0, zones.Header.BBox.Y1, 1e-9)
	assert.InDelta(t, 90.0, zones.Footer.BBox.Y0, 1e-9)
	assert.InDelta(t, 0.7, zones.Header.Confidence, 1e-9)
	assert.InDelta(t, 0.7, zones.Footer.Confidence, 1e-9)

	assert.Equal(t, "Acme Labs", zones.Header.Text)
	assert.Contains(t, zones.Content.Text, "Glucose")
	assert.Contains(t, zones.Content.Text, "Potassium")
	assert.Equal(t, "Page 1 of 2", zones.Footer.Text)
}

func TestPartitionZones_HeaderRefinedByLargeGap(t *testing.T) {
	// Letterhead at the top, then a 37-unit gap before the results start.
	page := report.RawPage{
		PageNumber: 1,
		Width:      300,
		Height:     100,
		Words: []report.Word{
			rowAt("Thyrocare Technologies", 2), // bottom at 8
			rowAt("TSH 2.5 mIU/L", 45),
			rowAt("T4 8.1 ug/dL", 60),
		},
	}
	zones := partitionZones(page, DefaultConfig())

	// Boundary moves to the gap start plus the pad.
	assert.InDelta(t, 13.0, zones.Header.BBox.Y1, 1e-9)
	assert.InDelta(t, 0.9, zones.Header.Confidence, 1e-9)
	assert.InDelta(t, 0.7, zones.Footer.Confidence, 1e-9)

	assert.Equal(t, "Thyrocare Technologies", zones.Header.Text)
	assert.Contains(t, zones.Content.Text, "TSH")
}

func TestPartitionZones_FooterRefinedByLargeGap(t *testing.T) {
	page := report.RawPage{
		PageNumber: 1,
		Width:      300,
		Height:     100,
		Words: []report.Word{
			rowAt("Hemoglobin 13.5 g/dL", 10),
			rowAt("Hematocrit 41 %", 30),
			rowAt("WBC 6.1 10^3/uL", 50), // bottom at 56, then a 39-unit gap
			rowAt("CIN-U85110MH2000", 95),
		},
	}
	zones := partitionZones(page, DefaultConfig())

	// Boundary moves to the gap end minus the pad.
	assert.InDelta(t, 90.0, zones.Footer.BBox.Y0, 1e-9)
	assert.InDelta(t, 0.9, zones.Footer.Confidence, 1e-9)
	assert.InDelta(t, 0.7, zones.Header.Confidence, 1e-9)
	assert.Contains(t, zones.Footer.Text, "CIN")
	assert.NotContains(t, zones.Content.Text, "CIN")
}

func TestPartitionZones_MidPageGapDoesNotRefine(t *testing.T) {
	// A large gap in the middle of the page is not edge evidence.
	page := report.RawPage{
		PageNumber: 1,
		Width:      300,
		Height:     100,
		Words: []report.Word{
			rowAt("Lipid Panel", 10),
			rowAt("LDL 110 mg/dL", 30), // bottom 36, gap to 80 midpoint 58
			rowAt("Interpretation follows", 80),
		},
	}
	zones := partitionZones(page, DefaultConfig())

	assert.InDelta(t, 15.0, zones.Header.BBox.Y1, 1e-9)
	assert.InDelta(t, 90.0, zones.Footer.BBox.Y0, 1e-9)
	assert.InDelta(t, 0.7, zones.Header.Confidence, 1e-9)
	assert.InDelta(t, 0.7, zones.Footer.Confidence, 1e-9)
}

func TestPartitionZones_ZonesShareEdges(t *testing.T) {
	page := report.RawPage{
		PageNumber: 1,
		Width:      300,
		Height:     200,
		Words: []report.Word{
			rowAt("Header line", 5),
			rowAt("Body line", 100),
			rowAt("Footer line", 190),
		},
	}
	zones := partitionZones(page, DefaultConfig())

	assert.InDelta(t, zones.Header.BBox.Y1, zones.Content.BBox.Y0, 1e-9)
	assert.InDelta(t, zones.Content.BBox.Y1, zones.Footer.BBox.Y0, 1e-9)
	assert.InDelta(t, 0.0, zones.Header.BBox.Y0, 1e-9)
	assert.InDelta(t, 200.0, zones.Footer.BBox.Y1, 1e-9)
}

func TestPartitionZones_TextOnlyPage(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "line"
	}
	lines[0] = "letterhead"
	lines[9] = "page footer"
	page := report.RawPage{PageNumber: 1, Text: strings.Join(lines, "\n")}

	zones := partitionZones(page, DefaultConfig())

	assert.Equal(t, "letterhead", zones.Header.Text)
	assert.Equal(t, "page footer", zones.Footer.Text)
	assert.Equal(t, 8, len(strings.Split(zones.Content.Text, "\n")))
	assert.True(t, zones.Header.BBox.IsZero())
	assert.InDelta(t, 0.7, zones.Content.Confidence, 1e-9)
}

func TestPartitionZones_EmptyPage(t *testing.T) {
	zones := partitionZones(report.RawPage{PageNumber: 4}, DefaultConfig())
	assert.Empty(t, zones.Header.Text)
	assert.Empty(t, zones.Content.Text)
	assert.Empty(t, zones.Footer.Text)
	require.Equal(t, report.ZoneContent, zones.Content.Type)
}

func TestPartitionZones_HeightDerivedFromWords(t *testing.T) {
	// No page height given; the lowest word bottom stands in for it.
	page := report.RawPage{
		PageNumber: 1,
		Words: []report.Word{
			rowAt("top", 5),
			rowAt("bottom", 194), // bottom at 200
		},
	}
	zones := partitionZones(page, DefaultConfig())
	assert.InDelta(t, 200.0, zones.Footer.BBox.Y1, 1e-9)
	assert.InDelta(t, 30.0, zones.Header.BBox.Y1, 1e-9) // 15% of derived height
}
