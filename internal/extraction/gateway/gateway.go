// Package gateway drives the completion service for one chunk at a time and
// turns its free-form responses into loosely-typed candidates. Calls run
// under a hard wall-clock timeout and are never retried here; a timed-out or
// unreachable service surfaces as a typed error so the pipeline can switch
// to the deterministic parser. Parse trouble, by contrast, stops at this
// boundary: a response that defeats every repair stage yields an empty
// result, not an error.
package gateway

import (
	"context"
	"time"

	"github.com/aman-ankur/labextract/internal/extraction/chunker"
	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/extraction/prompt"
	"github.com/aman-ankur/labextract/internal/extraction/tracker"
	"github.com/aman-ankur/labextract/internal/extraction/validate"
	"github.com/aman-ankur/labextract/internal/infrastructure/llm"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// rawLogLimit caps how much of an unrecoverable response lands in the log.
const rawLogLimit = 400

// Config holds gateway call limits.
type Config struct {
	// Timeout is the hard wall-clock limit for one completion call,
	// applied on top of whatever deadline the caller context carries.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxTokensPerCall bounds the prompt budget and the response length
	// requested from the service.
	MaxTokensPerCall int `json:"max_tokens_per_call" yaml:"max_tokens_per_call"`
}

// DefaultConfig returns the production gateway limits.
func DefaultConfig() *Config {
	return &Config{
		Timeout:          60 * time.Second,
		MaxTokensPerCall: 4000,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.InvalidInput("timeout must be positive")
	}
	if c.MaxTokensPerCall < 1 {
		return errors.InvalidInput("max_tokens_per_call must be >= 1")
	}
	return nil
}

// ChunkResult is the outcome of one extraction call. Candidates are unvetted;
// the validator decides what survives. Token counts feed the tracker.
type ChunkResult struct {
	Candidates []validate.RawCandidate
	TokensIn   int
	TokensOut  int
	Repaired   bool
}

// Gateway extracts biomarker candidates and report metadata through the
// completion service.
type Gateway interface {
	// ExtractChunk runs one extraction call for the chunk. The tracker
	// context selects full or delta instructions. Transport failures
	// return a typed error; an unrecoverable response returns an empty
	// result and no error.
	ExtractChunk(ctx context.Context, chunk chunker.Chunk, tctx tracker.Context, vendor string) (ChunkResult, error)

	// ExtractMetadata recovers report-level metadata from the given text,
	// with the same error contract as ExtractChunk.
	ExtractMetadata(ctx context.Context, text string) (biomarker.ReportMetadata, error)
}

// biomarkersEnvelope is the response shape extraction prompts ask for.
type biomarkersEnvelope struct {
	Biomarkers []validate.RawCandidate `json:"biomarkers"`
}

// metadataEnvelope is the response shape metadata prompts ask for.
type metadataEnvelope struct {
	Metadata biomarker.ReportMetadata `json:"metadata"`
}

type gatewayImpl struct {
	client  llm.Client
	prompts *prompt.Manager
	config  *Config
	logger  logging.Logger
	metrics common.Metrics
}

var _ Gateway = (*gatewayImpl)(nil)

// New creates a gateway over the given completion client and prompt manager.
func New(client llm.Client, prompts *prompt.Manager, cfg *Config, logger logging.Logger, metrics common.Metrics) (Gateway, error) {
	if client == nil {
		return nil, errors.New(errors.ErrCodeConfig, "completion client is required")
	}
	if prompts == nil {
		return nil, errors.New(errors.ErrCodeConfig, "prompt manager is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}
	return &gatewayImpl{
		client:  client,
		prompts: prompts,
		config:  cfg,
		logger:  logging.OrNop(logger).Named("gateway"),
		metrics: metrics,
	}, nil
}

func (g *gatewayImpl) ExtractChunk(ctx context.Context, chunk chunker.Chunk, tctx tracker.Context, vendor string) (ChunkResult, error) {
	p, err := g.prompts.BuildExtraction(chunk, tctx, vendor, g.config.MaxTokensPerCall)
	if err != nil {
		return ChunkResult{}, err
	}

	var envelope biomarkersEnvelope
	resp, repaired, parsed, err := g.complete(ctx, p, &envelope)
	if err != nil {
		return ChunkResult{}, err
	}
	if !parsed {
		// A failed call contributes zero candidates. The envelope may hold
		// partial decode leftovers, so it is not read here.
		return ChunkResult{TokensIn: resp.InputTokens, TokensOut: resp.OutputTokens}, nil
	}

	result := ChunkResult{
		Candidates: envelope.Biomarkers,
		TokensIn:   resp.InputTokens,
		TokensOut:  resp.OutputTokens,
		Repaired:   repaired,
	}
	g.logger.Debug("chunk extracted",
		logging.Int("page", chunk.Page),
		logging.Int("candidates", len(result.Candidates)),
		logging.Bool("delta", p.Delta),
		logging.Bool("repaired", repaired))
	return result, nil
}

func (g *gatewayImpl) ExtractMetadata(ctx context.Context, text string) (biomarker.ReportMetadata, error) {
	p, err := g.prompts.BuildMetadata(text, g.config.MaxTokensPerCall)
	if err != nil {
		return biomarker.ReportMetadata{}, err
	}

	var envelope metadataEnvelope
	_, _, parsed, err := g.complete(ctx, p, &envelope)
	if err != nil || !parsed {
		return biomarker.ReportMetadata{}, err
	}
	return envelope.Metadata, nil
}

// complete runs one call under the configured timeout and recovers the JSON
// envelope from the response into dest. A transport error comes back typed.
// A response that exhausts the repair stages returns parsed=false with a nil
// error and the usage, so callers account for the spent tokens but must not
// read dest.
func (g *gatewayImpl) complete(ctx context.Context, p prompt.Prompt, dest any) (resp llm.CompletionResponse, repaired, parsed bool, err error) {
	callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err = g.client.Complete(callCtx, llm.CompletionRequest{
		System:    p.System,
		Prompt:    p.User,
		MaxTokens: g.config.MaxTokensPerCall,
	})
	durationMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		g.metrics.RecordGatewayCall(ctx, &common.GatewayCallParams{
			Model:      g.client.Model(),
			DurationMs: durationMs,
			Success:    false,
		})
		return llm.CompletionResponse{}, false, false, err
	}

	repaired, perr := recoverJSON(resp.Text, dest)
	g.metrics.RecordGatewayCall(ctx, &common.GatewayCallParams{
		Model:        resp.Model,
		DurationMs:   durationMs,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Success:      perr == nil,
		Repaired:     repaired && perr == nil,
	})
	if perr != nil {
		g.logger.Warn("response not recoverable, returning empty result",
			logging.Err(perr),
			logging.String("stop_reason", resp.StopReason),
			logging.String("raw", snippet(resp.Text, rawLogLimit)))
		return resp, false, false, nil
	}
	return resp, repaired, true, nil
}

func snippet(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
