// Package chunker converts raw pages plus their derived structure into
// ordered, token-bounded extraction chunks ranked by biomarker likelihood.
// Irrelevant pages are dropped early; a page whose structure is unusable is
// passed through whole, since a false negative here cannot be recovered
// downstream while a false positive merely costs tokens.
package chunker

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aman-ankur/labextract/internal/extraction/token"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

// Optimizer builds extraction chunks from raw pages.
type Optimizer interface {
	// BuildChunks returns chunks ordered by strictly increasing page and,
	// within a page, by descending likelihood confidence.
	BuildChunks(pages []report.RawPage, structure report.DocumentStructure) []Chunk
}

// ---------------------------------------------------------------------------
// Likelihood signals
// ---------------------------------------------------------------------------

var (
	// biomarkerName covers the common panel analytes; used only as a
	// relevance signal, never for extraction itself.
	biomarkerName = regexp.MustCompile(`(?i)\b(h[ae]moglobin|glucose|cholesterol|triglycerides?|creatinine|tsh|t[34]|ft[34]|hdl|ldl|vldl|vitamin|hba1c|platelets?|wbc|rbc|sodium|potassium|calcium|chloride|bilirubin|albumin|globulin|ferritin|iron|urea|uric\s+acid|alkaline\s+phosphatase|sgot|sgpt|ast|alt|ggt|esr|mcv|mch|mchc)\b`)

	biomarkerUnit = regexp.MustCompile(`(?i)(mg/d[lL]|g/d[lL]|mmol/[lL]|miu/[lL]|µ?iu/m?[lL]|ng/m[lL]|pg/m[lL]|u/[lL]|iu/[lL]|[µu]g/d[lL]|10\^\d+|mill?/cmm|cells?/|fl\b|pg\b|%)`)

	colonMeasurement = regexp.MustCompile(`(?m)^\s*[A-Za-z][A-Za-z0-9 ()/%.+-]{1,48}:\s*\d+(?:\.\d+)?`)
	spaceMeasurement = regexp.MustCompile(`(?m)^\s*[A-Za-z][A-Za-z0-9 ()/%.+-]{1,48}\s{2,}\d+(?:\.\d+)?\s+\S+`)
	rangeMeasurement = regexp.MustCompile(`\(?\s*\d+(?:\.\d+)?\s*[-–]\s*\d+(?:\.\d+)?\s*\)?`)

	sectionHeading = regexp.MustCompile(`(?m)^\s*([A-Z][A-Z0-9 ,&/()-]{3,40})\s*$`)
)

func matchesBiomarkerText(text string) bool {
	return biomarkerName.MatchString(text) || biomarkerUnit.MatchString(text)
}

func measurementSignals(text string) int {
	n := len(colonMeasurement.FindAllString(text, -1))
	n += len(spaceMeasurement.FindAllString(text, -1))
	n += len(rangeMeasurement.FindAllString(text, -1))
	return n
}

// Region base likelihoods. Tables carry the strongest structural evidence.
var regionBase = map[RegionType]float64{
	RegionTable:   0.8,
	RegionContent: 0.6,
	RegionPage:    0.5,
	RegionHeader:  0.4,
}

func likelihood(region RegionType, text string) float64 {
	conf := regionBase[region] + 0.02*float64(measurementSignals(text))
	return math.Min(conf, 0.95)
}

// ---------------------------------------------------------------------------
// Optimizer implementation
// ---------------------------------------------------------------------------

type optimizer struct {
	cfg    *Config
	est    *token.Estimator
	logger logging.Logger
}

var _ Optimizer = (*optimizer)(nil)

// NewOptimizer builds an Optimizer. A nil config takes defaults.
func NewOptimizer(cfg *Config, logger logging.Logger) (Optimizer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &optimizer{
		cfg:    cfg,
		est:    token.NewEstimator(cfg.CharsPerToken),
		logger: logging.OrNop(logger).Named("chunker"),
	}, nil
}

func (o *optimizer) BuildChunks(pages []report.RawPage, structure report.DocumentStructure) []Chunk {
	var chunks []Chunk
	dropped := 0
	for _, page := range pages {
		ps, usable := usableStructure(structure, page.PageNumber)
		if !o.pageRelevant(page, ps, usable) {
			dropped++
			continue
		}
		chunks = append(chunks, o.chunkPage(page, ps, usable)...)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Page != chunks[j].Page {
			return chunks[i].Page < chunks[j].Page
		}
		return chunks[i].Confidence > chunks[j].Confidence
	})

	o.logger.Debug("chunks built",
		logging.Int("pages", len(pages)),
		logging.Int("dropped_pages", dropped),
		logging.Int("chunks", len(chunks)))
	return chunks
}

// usableStructure reports whether structure analysis produced anything
// beyond the degraded full-page shape for this page.
func usableStructure(structure report.DocumentStructure, pageNumber int) (report.PageStructure, bool) {
	ps, ok := structure.Pages[pageNumber]
	if !ok {
		return report.PageStructure{}, false
	}
	degraded := len(ps.Tables) == 0 &&
		ps.Zones.Header.Type == "" &&
		ps.Zones.Footer.Type == ""
	return ps, !degraded
}

func (o *optimizer) pageRelevant(page report.RawPage, ps report.PageStructure, usable bool) bool {
	if !usable {
		return true
	}
	if len(ps.Tables) > 0 {
		return true
	}
	if ps.Zones.Content.Confidence > o.cfg.ContentConfidenceThreshold &&
		matchesBiomarkerText(ps.Zones.Content.Text) {
		return true
	}
	return false
}

func (o *optimizer) chunkPage(page report.RawPage, ps report.PageStructure, usable bool) []Chunk {
	if !usable {
		text := compressBoilerplate(page.Text, o.est)
		return o.emit(text, page.PageNumber, RegionPage, fmt.Sprintf("page %d", page.PageNumber))
	}

	var chunks []Chunk
	for i, tbl := range ps.Tables {
		if strings.TrimSpace(tbl.Text) == "" {
			continue
		}
		label := fmt.Sprintf("page %d table %d", page.PageNumber, i+1)
		chunks = append(chunks, o.emit(tbl.Text, page.PageNumber, RegionTable, label)...)
	}

	content := compressBoilerplate(ps.Zones.Content.Text, o.est)
	if content != "" {
		label := fmt.Sprintf("page %d content", page.PageNumber)
		if h := firstHeading(content); h != "" {
			label += " (" + h + ")"
		}
		chunks = append(chunks, o.emit(content, page.PageNumber, RegionContent, label)...)
	}

	if header := ps.Zones.Header.Text; header != "" && matchesBiomarkerText(header) {
		label := fmt.Sprintf("page %d header", page.PageNumber)
		chunks = append(chunks, o.emit(header, page.PageNumber, RegionHeader, label)...)
	}
	return chunks
}

// emit splits text into token-bounded pieces on line boundaries and wraps
// each as a chunk.
func (o *optimizer) emit(text string, page int, region RegionType, label string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []Chunk
	for _, piece := range o.splitByBudget(text) {
		chunks = append(chunks, Chunk{
			Text:            piece,
			Page:            page,
			RegionType:      region,
			EstimatedTokens: o.est.Estimate(piece),
			Confidence:      likelihood(region, piece),
			ContextLabel:    label,
		})
	}
	return chunks
}

func (o *optimizer) splitByBudget(text string) []string {
	budget := o.cfg.MaxTokensPerChunk
	if o.est.Fits(text, budget) {
		return []string{text}
	}

	var pieces []string
	var current []string
	currentTokens := 0
	flush := func() {
		if len(current) > 0 {
			pieces = append(pieces, strings.Join(current, "\n"))
			current = current[:0]
			currentTokens = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		lineTokens := o.est.Estimate(line)
		if lineTokens > budget {
			flush()
			pieces = append(pieces, o.splitLongLine(line, budget)...)
			continue
		}
		if currentTokens+lineTokens > budget {
			flush()
		}
		current = append(current, line)
		currentTokens += lineTokens
	}
	flush()
	return pieces
}

// splitLongLine hard-cuts a single oversized line into budget-sized pieces
// without losing text.
func (o *optimizer) splitLongLine(line string, budget int) []string {
	var pieces []string
	for line != "" {
		piece := o.est.Truncate(line, budget)
		if piece == "" {
			// Budget smaller than one rune; take the rune anyway rather
			// than loop forever.
			_, size := utf8.DecodeRuneInString(line)
			piece = line[:size]
		}
		pieces = append(pieces, piece)
		line = line[len(piece):]
	}
	return pieces
}

func firstHeading(text string) string {
	m := sectionHeading.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
