// Package client assembles the extraction pipeline into an embeddable
// facade. Callers hand it raw page geometry and get document structure or
// scored biomarkers back; component wiring, the completion transport, and
// the optional redis cache stay behind this package.
package client

import (
	"context"

	"github.com/aman-ankur/labextract/internal/config"
	"github.com/aman-ankur/labextract/internal/extraction/chunker"
	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/extraction/fallback"
	"github.com/aman-ankur/labextract/internal/extraction/pipeline"
	"github.com/aman-ankur/labextract/internal/extraction/prompt"
	"github.com/aman-ankur/labextract/internal/extraction/structure"
	"github.com/aman-ankur/labextract/internal/extraction/token"
	"github.com/aman-ankur/labextract/internal/infrastructure/database/redis"
	"github.com/aman-ankur/labextract/internal/infrastructure/llm"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// Client runs extractions in-process. It is safe for concurrent use; one
// Client amortizes component construction across documents.
type Client struct {
	pipe    pipeline.Pipeline
	logger  logging.Logger
	redis   *redis.Client
	gateway bool
}

// New builds a Client from cfg. A nil cfg takes the production defaults.
//
// The gateway is assembled only when cfg.LLM carries a base URL and API
// key (or the caller injects a transport with WithCompletionClient);
// without one every extraction runs the deterministic parser. A redis
// cache that is enabled but unreachable degrades to uncached completions
// rather than failing construction.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	} else {
		config.ApplyDefaults(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfig, "invalid configuration")
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	logger := logging.OrNop(s.logger).Named("client")
	metrics := s.metrics
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}

	classifier := structure.NewVendorClassifier(logger)
	if cfg.Structure.VendorPatternsPath != "" {
		if err := classifier.LoadPatterns(cfg.Structure.VendorPatternsPath); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfig, "load vendor patterns")
		}
	}

	detector, err := structure.NewDetector(structureConfig(&cfg.Structure), classifier, logger, metrics)
	if err != nil {
		return nil, err
	}
	optimizer, err := chunker.NewOptimizer(chunkerConfig(&cfg.Chunker), logger)
	if err != nil {
		return nil, err
	}
	parser := fallback.NewParser(classifier, logger, metrics)

	completion := s.completion
	if completion == nil && cfg.LLM.BaseURL != "" && cfg.LLM.APIKey != "" {
		completion, err = llm.NewClient(&cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
	}

	var rdb *redis.Client
	if completion != nil && cfg.Redis.Enabled {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("completion cache unavailable, continuing uncached", logging.Err(err))
			rdb = nil
		} else {
			cache := redis.NewCache(rdb, logger,
				redis.WithPrefix(cfg.Redis.KeyPrefix),
				redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
			completion = llm.NewCachedClient(completion, cache, cfg.Redis.DefaultTTL, logger, metrics)
		}
	}

	var prompts *prompt.Manager
	if completion != nil {
		prompts, err = prompt.NewManager(token.NewEstimator(cfg.Chunker.CharsPerToken), logger)
		if err != nil {
			return nil, err
		}
	}

	pipe, err := pipeline.New(pipeline.Dependencies{
		Client:   completion,
		Prompts:  prompts,
		Detector: detector,
		Chunker:  optimizer,
		Fallback: parser,
		Logger:   logger,
		Metrics:  metrics,
	}, pipelineConfig(&cfg.Pipeline))
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}

	return &Client{
		pipe:    pipe,
		logger:  logger,
		redis:   rdb,
		gateway: completion != nil,
	}, nil
}

// AnalyzeDocument derives per-page zones, table regions, and the vendor
// classification without extracting anything.
func (c *Client) AnalyzeDocument(ctx context.Context, pages []report.RawPage) (report.DocumentStructure, error) {
	return c.pipe.Analyze(ctx, pages)
}

// ExtractBiomarkers runs the full pipeline. The zero Options value means
// the defaults (gateway on when one is configured).
func (c *Client) ExtractBiomarkers(ctx context.Context, pages []report.RawPage, opts biomarker.Options) (biomarker.ExtractionResult, error) {
	return c.pipe.Extract(ctx, pages, opts)
}

// GatewayEnabled reports whether a completion transport was assembled.
// When false, Options.UseGateway has no effect.
func (c *Client) GatewayEnabled() bool {
	return c.gateway
}

// Close releases the cache connection, if any. Safe to call twice.
func (c *Client) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func structureConfig(c *config.StructureConfig) *structure.Config {
	return &structure.Config{
		HeaderFraction:     c.HeaderFraction,
		FooterFraction:     c.FooterFraction,
		GapBreakThreshold:  c.GapBreakThreshold,
		LargeGapThreshold:  c.LargeGapThreshold,
		BoundaryPad:        c.BoundaryPad,
		EdgeSearchFraction: c.EdgeSearchFraction,
		BaseZoneConfidence: c.BaseZoneConfidence,
		RefinedConfidence:  c.RefinedConfidence,
		DegradedConfidence: c.DegradedConfidence,
		Table: structure.TableThresholds{
			MinRows:          c.Table.MinRows,
			MinCols:          c.Table.MinCols,
			AlignTolerance:   c.Table.AlignTolerance,
			RelaxedMinRows:   c.Table.RelaxedMinRows,
			RelaxedMinCols:   c.Table.RelaxedMinCols,
			RelaxedTolerance: c.Table.RelaxedTolerance,
		},
		VendorPatternsPath: c.VendorPatternsPath,
	}
}

func chunkerConfig(c *config.ChunkerConfig) *chunker.Config {
	return &chunker.Config{
		CharsPerToken:              c.CharsPerToken,
		MaxTokensPerChunk:          c.MaxTokensPerChunk,
		ContentConfidenceThreshold: c.ContentConfidenceThreshold,
	}
}

func pipelineConfig(c *config.PipelineConfig) *pipeline.Config {
	return &pipeline.Config{
		ConfidenceThreshold:      c.ConfidenceThreshold,
		MaxTokensPerCall:         c.MaxTokensPerCall,
		MaxConsecutiveEmptyCalls: c.MaxConsecutiveEmptyCalls,
		GatewayTimeout:           c.GatewayTimeout,
		ConcurrentChunks:         c.ConcurrentChunks,
		ChunkConcurrency:         c.ChunkConcurrency,
	}
}
