// Package pipeline orchestrates one document's extraction: structure
// analysis, chunking, per-chunk gateway calls with tracker threading, the
// deterministic fallback, validation, and the final merge. A run always
// produces a result, possibly with zero biomarkers; the only caller-visible
// failure is malformed or empty input.
package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aman-ankur/labextract/internal/extraction/chunker"
	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/extraction/dedup"
	"github.com/aman-ankur/labextract/internal/extraction/fallback"
	"github.com/aman-ankur/labextract/internal/extraction/gateway"
	"github.com/aman-ankur/labextract/internal/extraction/prompt"
	"github.com/aman-ankur/labextract/internal/extraction/structure"
	"github.com/aman-ankur/labextract/internal/extraction/tracker"
	"github.com/aman-ankur/labextract/internal/extraction/validate"
	"github.com/aman-ankur/labextract/internal/infrastructure/llm"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// ---------------------------------------------------------------------------
// States
// ---------------------------------------------------------------------------

// State is a position in the per-document state machine. States advance
// monotonically; FALLBACK is sticky for the rest of the document once
// entered.
type State string

const (
	StateInit              State = "INIT"
	StateStructureAnalyzed State = "STRUCTURE_ANALYZED"
	StateChunked           State = "CHUNKED"
	StateExtracting        State = "EXTRACTING"
	StateFallback          State = "FALLBACK"
	StateMerged            State = "MERGED"
	StateDone              State = "DONE"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds orchestration knobs. Threshold and token values act as
// defaults for zero fields in the caller's Options.
type Config struct {
	// ConfidenceThreshold drops candidates scoring below it.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// MaxTokensPerCall bounds one gateway request.
	MaxTokensPerCall int `json:"max_tokens_per_call" yaml:"max_tokens_per_call"`

	// MaxConsecutiveEmptyCalls is how many empty-result gateway calls in a
	// row flip the document to the fallback parser.
	MaxConsecutiveEmptyCalls int `json:"max_consecutive_empty_calls" yaml:"max_consecutive_empty_calls"`

	// GatewayTimeout is the hard wall-clock limit per gateway call.
	GatewayTimeout time.Duration `json:"gateway_timeout" yaml:"gateway_timeout"`

	// ConcurrentChunks enables parallel chunk processing with context
	// merge reconciliation. Sequential is the reference behavior.
	ConcurrentChunks bool `json:"concurrent_chunks" yaml:"concurrent_chunks"`

	// ChunkConcurrency caps parallel chunks when ConcurrentChunks is set.
	ChunkConcurrency int `json:"chunk_concurrency" yaml:"chunk_concurrency"`
}

// DefaultConfig returns the production orchestration constants.
func DefaultConfig() *Config {
	return &Config{
		ConfidenceThreshold:      0.65,
		MaxTokensPerCall:         4000,
		MaxConsecutiveEmptyCalls: 3,
		GatewayTimeout:           60 * time.Second,
		ConcurrentChunks:         false,
		ChunkConcurrency:         4,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return errors.InvalidInput("confidence_threshold must be in (0, 1]")
	}
	if c.MaxTokensPerCall < 1 {
		return errors.InvalidInput("max_tokens_per_call must be >= 1")
	}
	if c.MaxConsecutiveEmptyCalls < 1 {
		return errors.InvalidInput("max_consecutive_empty_calls must be >= 1")
	}
	if c.GatewayTimeout <= 0 {
		return errors.InvalidInput("gateway_timeout must be positive")
	}
	if c.ConcurrentChunks && c.ChunkConcurrency < 1 {
		return errors.InvalidInput("chunk_concurrency must be >= 1 when concurrent_chunks is set")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

// Pipeline runs whole-document operations.
type Pipeline interface {
	// Analyze derives the document structure without extracting anything.
	Analyze(ctx context.Context, pages []report.RawPage) (report.DocumentStructure, error)

	// Extract runs the full pipeline. The zero Options value means the
	// defaults (gateway on). A cancelled context returns the partial
	// result built so far together with the cancellation error; the
	// partial result is internally consistent.
	Extract(ctx context.Context, pages []report.RawPage, opts biomarker.Options) (biomarker.ExtractionResult, error)
}

// Dependencies carries the components a Pipeline orchestrates. Client may be
// nil, which disables the gateway regardless of Options; everything else is
// required.
type Dependencies struct {
	Client   llm.Client
	Prompts  *prompt.Manager
	Detector structure.Detector
	Chunker  chunker.Optimizer
	Fallback fallback.Parser
	Logger   logging.Logger
	Metrics  common.Metrics
}

type pipelineImpl struct {
	cfg      *Config
	client   llm.Client
	prompts  *prompt.Manager
	detector structure.Detector
	chunker  chunker.Optimizer
	fallback fallback.Parser
	logger   logging.Logger
	metrics  common.Metrics
}

var _ Pipeline = (*pipelineImpl)(nil)

// New builds a Pipeline. A nil config takes defaults.
func New(deps Dependencies, cfg *Config) (Pipeline, error) {
	if deps.Detector == nil {
		return nil, errors.New(errors.ErrCodeConfig, "structure detector is required")
	}
	if deps.Chunker == nil {
		return nil, errors.New(errors.ErrCodeConfig, "chunk optimizer is required")
	}
	if deps.Fallback == nil {
		return nil, errors.New(errors.ErrCodeConfig, "fallback parser is required")
	}
	if deps.Client != nil && deps.Prompts == nil {
		return nil, errors.New(errors.ErrCodeConfig, "prompt manager is required with a completion client")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &pipelineImpl{
		cfg:      cfg,
		client:   deps.Client,
		prompts:  deps.Prompts,
		detector: deps.Detector,
		chunker:  deps.Chunker,
		fallback: deps.Fallback,
		logger:   logging.OrNop(deps.Logger).Named("pipeline"),
		metrics:  metrics,
	}, nil
}

func (p *pipelineImpl) Analyze(ctx context.Context, pages []report.RawPage) (report.DocumentStructure, error) {
	if err := validatePages(pages); err != nil {
		return report.DocumentStructure{}, err
	}
	return p.detector.Analyze(ctx, report.SortPages(pages)), nil
}

func (p *pipelineImpl) Extract(ctx context.Context, pages []report.RawPage, opts biomarker.Options) (biomarker.ExtractionResult, error) {
	if err := validatePages(pages); err != nil {
		return biomarker.ExtractionResult{}, err
	}
	if opts == (biomarker.Options{}) {
		opts = biomarker.DefaultOptions()
	}
	if opts.ConfidenceThreshold == 0 {
		opts.ConfidenceThreshold = p.cfg.ConfidenceThreshold
	}
	if opts.MaxTokensPerCall == 0 {
		opts.MaxTokensPerCall = p.cfg.MaxTokensPerCall
	}

	r, err := p.newRun(opts)
	if err != nil {
		return biomarker.ExtractionResult{}, err
	}
	return r.execute(ctx, pages)
}

// validatePages rejects the only caller-visible failure shape: no pages, or
// pages with no text at all.
func validatePages(pages []report.RawPage) error {
	if len(pages) == 0 {
		return errors.InvalidInput("document has no pages")
	}
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return nil
		}
	}
	return errors.InvalidInput("document pages are empty")
}

// ---------------------------------------------------------------------------
// Per-document run
// ---------------------------------------------------------------------------

// run is the state of one document's extraction. Runs are single-use and not
// shared; concurrent chunk shards touch it only through the reconciliation
// in extractConcurrent.
type run struct {
	p         *pipelineImpl
	opts      biomarker.Options
	gw        gateway.Gateway
	validator validate.Validator
	logger    logging.Logger

	state            State
	vendor           string
	tctx             tracker.Context
	candidates       []biomarker.Candidate
	rejected         int
	processed        int
	consecutiveEmpty int
	fallbackSticky   bool
	shardFallback    atomic.Bool
	cancelled        bool

	diag biomarker.Diagnostics
}

// newRun assembles the per-run components: the validator with the effective
// threshold and, when enabled, a gateway with the effective token budget.
func (p *pipelineImpl) newRun(opts biomarker.Options) (*run, error) {
	vcfg := validate.DefaultConfig()
	vcfg.ConfidenceThreshold = opts.ConfidenceThreshold
	v, err := validate.NewValidator(vcfg, p.logger, p.metrics)
	if err != nil {
		return nil, err
	}

	r := &run{
		p:         p,
		opts:      opts,
		validator: v,
		logger:    p.logger.With(logging.String("run_id", uuid.NewString())),
		state:     StateInit,
		vendor:    opts.VendorHint,
		tctx:      tracker.NewContext(),
	}

	if opts.UseGateway && p.client != nil {
		gcfg := &gateway.Config{
			Timeout:          p.cfg.GatewayTimeout,
			MaxTokensPerCall: opts.MaxTokensPerCall,
		}
		r.gw, err = gateway.New(p.client, p.prompts, gcfg, p.logger, p.metrics)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *run) execute(ctx context.Context, pages []report.RawPage) (biomarker.ExtractionResult, error) {
	sorted := report.SortPages(pages)

	docStructure := r.p.detector.Analyze(ctx, sorted)
	r.diag.StructureConfidence = docStructure.Confidence
	r.setState(StateStructureAnalyzed)
	if r.vendor == "" {
		r.vendor = string(docStructure.Vendor.Vendor)
	}

	chunks := r.p.chunker.BuildChunks(sorted, docStructure)
	r.setState(StateChunked)

	if r.gw == nil {
		r.enterFallback(ctx, "disabled")
	}

	if r.p.cfg.ConcurrentChunks && !r.fallbackSticky {
		r.extractConcurrent(ctx, chunks)
	} else {
		r.extractSequential(ctx, chunks)
	}

	r.setState(StateMerged)
	merged := dedup.Merge(r.candidates)
	if merged == nil {
		merged = []biomarker.Candidate{}
	}

	meta := r.extractMetadata(ctx, sorted, chunks)

	r.diag.UsedFallback = r.fallbackSticky || r.shardFallback.Load()
	r.diag.GatewayCalls = r.tctx.CallCount
	r.diag.TokensIn = r.tctx.TokensIn
	r.diag.TokensOut = r.tctx.TokensOut
	r.diag.ChunksProcessed = r.processed
	r.diag.CandidatesRejected = r.rejected
	r.setState(StateDone)

	result := biomarker.ExtractionResult{
		Biomarkers:  merged,
		Metadata:    meta,
		Diagnostics: r.diag,
	}
	r.logger.Info("extraction finished",
		logging.Int("biomarkers", len(merged)),
		logging.Bool("used_fallback", r.diag.UsedFallback),
		logging.Int("gateway_calls", r.diag.GatewayCalls),
		logging.Int("chunks", r.diag.ChunksProcessed))

	if r.cancelled {
		return result, errors.New(errors.ErrCodeCancelled, "extraction cancelled, returning partial result")
	}
	return result, nil
}

func (r *run) extractSequential(ctx context.Context, chunks []chunker.Chunk) {
	for i, ch := range chunks {
		if r.cancelled || ctx.Err() != nil {
			r.cancelled = true
			return
		}
		r.processChunk(ctx, i, ch)
	}
}

// processChunk handles one chunk in sequence. A panic anywhere inside is
// contained here: state mutations happen after the fallible work, so a
// recovered chunk simply contributes nothing.
func (r *run) processChunk(ctx context.Context, index int, ch chunker.Chunk) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("chunk processing panicked, contributing nothing",
				logging.Int("page", ch.Page),
				logging.Any("panic", rec))
		}
	}()
	r.processed++

	if !r.fallbackSticky {
		r.setExtracting(index)
		if r.gatewayChunk(ctx, ch) {
			return
		}
	}
	r.fallbackChunk(ctx, ch)
}

// gatewayChunk runs one gateway call and folds its outcome into the run.
// The false return means the chunk still needs the fallback parser: the
// gateway became unusable before producing anything for it.
func (r *run) gatewayChunk(ctx context.Context, ch chunker.Chunk) bool {
	res, err := r.gw.ExtractChunk(ctx, ch, r.tctx, r.vendor)
	if err != nil {
		switch {
		case errors.IsCode(err, errors.ErrCodeCancelled):
			r.cancelled = true
			return true
		case errors.IsCode(err, errors.ErrCodeGatewayTimeout):
			r.enterFallback(ctx, "timeout")
			return false
		case errors.IsTransient(err):
			r.enterFallback(ctx, "unavailable")
			return false
		default:
			r.logger.Warn("chunk extraction failed, contributing nothing",
				logging.Int("page", ch.Page),
				logging.Err(err))
			return true
		}
	}

	accepted, rejected := r.validator.Ingest(ctx, res.Candidates, ch.Page, ch.RegionType == chunker.RegionTable)
	scored, dropped := r.validator.Score(ctx, accepted, r.tctx.KnownBiomarkers)
	r.tctx = r.tctx.Update(scored, ch.Page, res.TokensIn, res.TokensOut)
	r.rejected += rejected + dropped
	r.candidates = append(r.candidates, scored...)
	r.p.metrics.RecordChunk(ctx, string(ch.RegionType), len(scored))

	if len(res.Candidates) == 0 {
		r.consecutiveEmpty++
		if r.consecutiveEmpty >= r.p.cfg.MaxConsecutiveEmptyCalls {
			r.enterFallback(ctx, "empty_results")
		}
	} else {
		r.consecutiveEmpty = 0
	}
	return true
}

// fallbackChunk parses one chunk deterministically. Fallback results bypass
// the tracker: call counts and token totals stay gateway-only.
func (r *run) fallbackChunk(ctx context.Context, ch chunker.Chunk) {
	cands := r.p.fallback.Parse(ctx, ch.Text, ch.Page)
	if ch.RegionType == chunker.RegionTable {
		for i := range cands {
			cands[i].FromTable = true
		}
	}
	scored, dropped := r.validator.Score(ctx, cands, r.tctx.KnownBiomarkers)
	r.rejected += dropped
	r.candidates = append(r.candidates, scored...)
	r.p.metrics.RecordChunk(ctx, string(ch.RegionType), len(scored))
}

// extractMetadata recovers report-level fields: through the gateway off the
// first chunk when it is still trusted, deterministically otherwise or when
// the gateway comes back empty.
func (r *run) extractMetadata(ctx context.Context, pages []report.RawPage, chunks []chunker.Chunk) biomarker.ReportMetadata {
	if r.gw != nil && !r.fallbackSticky && !r.cancelled && len(chunks) > 0 {
		meta, err := r.gw.ExtractMetadata(ctx, chunks[0].Text)
		if err == nil && meta != (biomarker.ReportMetadata{}) {
			return meta
		}
		if err != nil {
			r.logger.Warn("metadata extraction failed, recovering deterministically", logging.Err(err))
		}
	}
	return r.p.fallback.RecoverMetadata(ctx, pages)
}

func (r *run) enterFallback(ctx context.Context, trigger string) {
	if r.fallbackSticky {
		return
	}
	r.fallbackSticky = true
	r.p.metrics.RecordFallbackActivation(ctx, trigger)
	r.setState(StateFallback)
	r.logger.Info("fallback parser engaged for the rest of the document",
		logging.String("trigger", trigger))
}

func (r *run) setState(s State) {
	r.logger.Debug("state transition",
		logging.String("from", string(r.state)),
		logging.String("to", string(s)))
	r.state = s
}

func (r *run) setExtracting(index int) {
	if r.state != StateExtracting {
		r.setState(StateExtracting)
	}
	r.logger.Debug("extracting chunk", logging.Int("chunk", index))
}
