// Package structure derives per-page layout (tables, header/content/footer
// zones) and a vendor classification from raw report pages. Detection is
// best-effort: a page that cannot be analyzed degrades to a single full-page
// content zone instead of failing the document.
package structure

import (
	"context"
	"strings"
	"time"

	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

// Detector analyzes raw pages into a document structure.
type Detector interface {
	// AnalyzePage derives the layout of a single page. It never fails;
	// unanalyzable pages come back degraded.
	AnalyzePage(ctx context.Context, page report.RawPage) report.PageStructure

	// Analyze runs AnalyzePage over every page and classifies the vendor
	// from the concatenated text. Document confidence is the mean page
	// confidence.
	Analyze(ctx context.Context, pages []report.RawPage) report.DocumentStructure
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type detector struct {
	cfg        *Config
	classifier *VendorClassifier
	logger     logging.Logger
	metrics    common.Metrics
}

var _ Detector = (*detector)(nil)

// NewDetector builds a Detector. A nil config takes defaults; a nil
// classifier uses the compiled-in vendor table.
func NewDetector(cfg *Config, classifier *VendorClassifier, logger logging.Logger, metrics common.Metrics) (Detector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)
	if classifier == nil {
		classifier = NewVendorClassifier(logger)
	}
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &detector{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger.Named("structure"),
		metrics:    metrics,
	}, nil
}

func (d *detector) AnalyzePage(ctx context.Context, page report.RawPage) (ps report.PageStructure) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("page analysis panicked, degrading to full-page content zone",
				logging.Int("page", page.PageNumber),
				logging.Any("panic", r))
			ps = d.degradedPage(page)
			d.metrics.RecordStructureAnalysis(ctx, true, float64(time.Since(start).Milliseconds()))
		}
	}()

	tables := detectTables(page, d.cfg.Table)
	zones := partitionZones(page, d.cfg)
	conf := (zones.Header.Confidence + zones.Content.Confidence + zones.Footer.Confidence) / 3

	d.metrics.RecordStructureAnalysis(ctx, false, float64(time.Since(start).Milliseconds()))
	d.logger.Debug("page analyzed",
		logging.Int("page", page.PageNumber),
		logging.Int("tables", len(tables)),
		logging.Float64("confidence", conf))

	return report.PageStructure{
		PageNumber: page.PageNumber,
		Zones:      zones,
		Tables:     tables,
		Confidence: conf,
	}
}

// degradedPage is the failure shape: one full-page content zone at the
// degraded confidence, no tables.
func (d *detector) degradedPage(page report.RawPage) report.PageStructure {
	width := page.Width
	height := page.Height
	for _, w := range page.Words {
		if w.BBox.X1 > width {
			width = w.BBox.X1
		}
		if w.BBox.Y1 > height {
			height = w.BBox.Y1
		}
	}
	return report.PageStructure{
		PageNumber: page.PageNumber,
		Zones: report.ZoneSet{
			Content: report.Zone{
				Type:       report.ZoneContent,
				BBox:       report.BBox{X0: 0, Y0: 0, X1: width, Y1: height},
				Confidence: d.cfg.DegradedConfidence,
				Text:       page.Text,
			},
		},
		Confidence: d.cfg.DegradedConfidence,
	}
}

func (d *detector) Analyze(ctx context.Context, pages []report.RawPage) report.DocumentStructure {
	out := report.DocumentStructure{
		Pages: make(map[int]report.PageStructure, len(pages)),
	}

	var sum float64
	var text strings.Builder
	for _, p := range pages {
		ps := d.AnalyzePage(ctx, p)
		out.Pages[p.PageNumber] = ps
		sum += ps.Confidence
		text.WriteString(p.Text)
		text.WriteString("\n")
	}
	if len(pages) > 0 {
		out.Confidence = sum / float64(len(pages))
	}
	out.Vendor = d.classifier.Classify(text.String())

	d.logger.Info("document structure analyzed",
		logging.Int("pages", len(pages)),
		logging.String("vendor", string(out.Vendor.Vendor)),
		logging.Float64("confidence", out.Confidence))
	return out
}
