// Package prompt assembles gateway requests from chunks and tracker state.
// The first call of a document carries the full instruction prompt; later
// calls carry a bounded delta so instruction cost stays constant over
// arbitrarily long reports.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aman-ankur/labextract/internal/extraction/chunker"
	"github.com/aman-ankur/labextract/internal/extraction/token"
	"github.com/aman-ankur/labextract/internal/extraction/tracker"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
)

// Delta caps. Fixed protocol bounds, not tuning knobs: they are what makes
// instruction growth independent of document length.
const (
	maxDeltaPatterns     = 3
	maxDeltaSectionHints = 2
	maxDeltaKnownNames   = 5
)

// Prompt is one assembled gateway request.
type Prompt struct {
	System          string
	User            string
	EstimatedTokens int
	// Delta marks the bounded continuation form.
	Delta bool
}

// Manager renders prompts from a named template registry. Templates share a
// FuncMap; any builtin can be replaced through Register for per-vendor
// retuning.
type Manager struct {
	templates map[string]*template.Template
	estimator *token.Estimator
	logger    logging.Logger
}

var promptFuncs = template.FuncMap{
	"join": strings.Join,
	"formatList": func(items []string) string {
		var b strings.Builder
		for _, item := range items {
			b.WriteString("- ")
			b.WriteString(item)
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")
	},
}

// NewManager builds a Manager over the builtin template set. A nil estimator
// gets the default ratio.
func NewManager(estimator *token.Estimator, logger logging.Logger) (*Manager, error) {
	if estimator == nil {
		estimator = token.NewEstimator(0)
	}
	m := &Manager{
		templates: make(map[string]*template.Template, len(builtinTemplates)),
		estimator: estimator,
		logger:    logging.OrNop(logger).Named("prompt"),
	}
	for name, text := range builtinTemplates {
		if err := m.Register(name, text); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register parses and installs a template under name, replacing any
// previous definition.
func (m *Manager) Register(name, text string) error {
	tmpl, err := template.New(name).Funcs(promptFuncs).Parse(text)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfig, fmt.Sprintf("parse template %q", name))
	}
	m.templates[name] = tmpl
	return nil
}

// extractionData is the render context shared by the extraction templates.
type extractionData struct {
	ChunkText    string
	Vendor       string
	Patterns     []string
	SectionHints []string
	KnownNames   []string
}

// BuildExtraction renders the request for one chunk. The context decides the
// form: a zero CallCount means this is the document's first call and gets
// the full instructions, anything later gets the delta. Chunk text is
// truncated so the whole request fits maxTokens.
func (m *Manager) BuildExtraction(chunk chunker.Chunk, tctx tracker.Context, vendor string, maxTokens int) (Prompt, error) {
	delta := tctx.CallCount > 0

	systemName := TemplateSystemExtraction
	userName := TemplateUserExtractionFull
	data := extractionData{Vendor: vendor}
	if delta {
		systemName = TemplateSystemExtractionDelta
		userName = TemplateUserExtractionDelta
		data = extractionData{
			Patterns:     head(tctx.Patterns, maxDeltaPatterns),
			SectionHints: m.sectionHints(chunk, tctx),
			KnownNames:   head(tctx.KnownNames(), maxDeltaKnownNames),
		}
	}

	system, err := m.render(systemName, data)
	if err != nil {
		return Prompt{}, err
	}
	user, err := m.renderWithChunk(userName, data, chunk.Text, maxTokens, m.estimator.Estimate(system))
	if err != nil {
		return Prompt{}, err
	}

	p := Prompt{
		System:          system,
		User:            user,
		EstimatedTokens: m.estimator.Estimate(system) + m.estimator.Estimate(user),
		Delta:           delta,
	}
	m.logger.Debug("prompt assembled",
		logging.Bool("delta", delta),
		logging.Int("page", chunk.Page),
		logging.Int("estimated_tokens", p.EstimatedTokens))
	return p, nil
}

// BuildMetadata renders the report-metadata request over the given text.
func (m *Manager) BuildMetadata(text string, maxTokens int) (Prompt, error) {
	system, err := m.render(TemplateSystemMetadata, extractionData{})
	if err != nil {
		return Prompt{}, err
	}
	user, err := m.renderWithChunk(TemplateUserMetadata, extractionData{}, text, maxTokens, m.estimator.Estimate(system))
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{
		System:          system,
		User:            user,
		EstimatedTokens: m.estimator.Estimate(system) + m.estimator.Estimate(user),
	}, nil
}

// sectionHints derives at most maxDeltaSectionHints positional hints.
func (m *Manager) sectionHints(chunk chunker.Chunk, tctx tracker.Context) []string {
	hints := make([]string, 0, maxDeltaSectionHints)
	if chunk.ContextLabel != "" {
		hints = append(hints, fmt.Sprintf("Current section: %s", chunk.ContextLabel))
	}
	if tctx.Section.Page > 0 {
		hints = append(hints, fmt.Sprintf("Processed through page %d, %d results so far",
			tctx.Section.Page, tctx.Section.Candidates))
	}
	return head(hints, maxDeltaSectionHints)
}

// renderWithChunk renders the user template twice: once empty to measure the
// instruction overhead, then with the chunk text cut to the remaining
// budget.
func (m *Manager) renderWithChunk(name string, data extractionData, chunkText string, maxTokens, systemTokens int) (string, error) {
	probe := data
	probe.ChunkText = ""
	overhead, err := m.render(name, probe)
	if err != nil {
		return "", err
	}

	budget := maxTokens - systemTokens - m.estimator.Estimate(overhead)
	if budget <= 0 {
		return "", errors.InvalidInput("max_tokens_per_call leaves no room for chunk text")
	}

	data.ChunkText = m.estimator.Truncate(chunkText, budget)
	return m.render(name, data)
}

func (m *Manager) render(name string, data extractionData) (string, error) {
	tmpl, ok := m.templates[name]
	if !ok {
		return "", errors.New(errors.ErrCodePromptBuild, fmt.Sprintf("unknown template %q", name))
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", errors.Wrap(err, errors.ErrCodePromptBuild, fmt.Sprintf("render template %q", name))
	}
	return b.String(), nil
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
