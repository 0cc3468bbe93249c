// Package config defines the module configuration, its defaults, and the
// viper-based loader. Every empirically tuned constant in the pipeline
// (zone fractions, gap thresholds, confidence coefficients, token ratios)
// lives here as a named, overridable value because they need per-vendor
// retuning.
package config

import (
	"fmt"
	"time"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
)

// LLMConfig points the gateway at the external completion service.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	APIVersion  string        `mapstructure:"api_version"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TableConfig holds the geometric table-detection thresholds. The strict set
// runs first; the relaxed set only when the strict pass finds nothing.
type TableConfig struct {
	MinRows          int     `mapstructure:"min_rows"`
	MinCols          int     `mapstructure:"min_cols"`
	AlignTolerance   float64 `mapstructure:"align_tolerance"`
	RelaxedMinRows   int     `mapstructure:"relaxed_min_rows"`
	RelaxedMinCols   int     `mapstructure:"relaxed_min_cols"`
	RelaxedTolerance float64 `mapstructure:"relaxed_tolerance"`
}

// StructureConfig holds zone partitioning and vendor classification knobs.
type StructureConfig struct {
	// HeaderFraction / FooterFraction are the initial fixed-height zone
	// fractions of the page before gap refinement.
	HeaderFraction float64 `mapstructure:"header_fraction"`
	FooterFraction float64 `mapstructure:"footer_fraction"`

	// GapBreakThreshold marks a vertical gap as a candidate zone break;
	// LargeGapThreshold is the minimum for the largest gap to move a
	// boundary; BoundaryPad is added past the gap when it does.
	GapBreakThreshold float64 `mapstructure:"gap_break_threshold"`
	LargeGapThreshold float64 `mapstructure:"large_gap_threshold"`
	BoundaryPad       float64 `mapstructure:"boundary_pad"`

	// EdgeSearchFraction is the top/bottom portion of the page searched
	// for the largest gap.
	EdgeSearchFraction float64 `mapstructure:"edge_search_fraction"`

	// BaseZoneConfidence is assigned to fraction-derived zone boundaries,
	// RefinedConfidence to a boundary moved by gap evidence, and
	// DegradedConfidence to a page that failed analysis entirely.
	BaseZoneConfidence float64 `mapstructure:"base_zone_confidence"`
	RefinedConfidence  float64 `mapstructure:"refined_confidence"`
	DegradedConfidence float64 `mapstructure:"degraded_confidence"`

	Table TableConfig `mapstructure:"table"`

	// VendorPatternsPath optionally points at a YAML vendor-pattern file
	// watched for changes; empty means built-in patterns only.
	VendorPatternsPath string `mapstructure:"vendor_patterns_path"`
}

// ChunkerConfig holds content optimization knobs.
type ChunkerConfig struct {
	// CharsPerToken is the fixed estimation ratio; deliberately below
	// typical tokenizer averages so estimates are a safe upper bound.
	CharsPerToken float64 `mapstructure:"chars_per_token"`

	MaxTokensPerChunk int `mapstructure:"max_tokens_per_chunk"`

	// ContentConfidenceThreshold gates page relevance for pages without
	// tables.
	ContentConfidenceThreshold float64 `mapstructure:"content_confidence_threshold"`
}

// PipelineConfig holds orchestration knobs.
type PipelineConfig struct {
	ConfidenceThreshold      float64       `mapstructure:"confidence_threshold"`
	MaxTokensPerCall         int           `mapstructure:"max_tokens_per_call"`
	MaxConsecutiveEmptyCalls int           `mapstructure:"max_consecutive_empty_calls"`
	GatewayTimeout           time.Duration `mapstructure:"gateway_timeout"`

	// ConcurrentChunks enables the optional parallel chunk mode with
	// context merge reconciliation. Sequential is the reference behavior.
	ConcurrentChunks bool `mapstructure:"concurrent_chunks"`
	ChunkConcurrency int  `mapstructure:"chunk_concurrency"`
}

// RedisConfig configures the completion cache. Disabled by default; the
// pipeline works without it.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig configures the worker's job and result topics.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	JobsTopic       string        `mapstructure:"jobs_topic"`
	ResultsTopic    string        `mapstructure:"results_topic"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	MinBytes        int           `mapstructure:"min_bytes"`
	MaxBytes        int           `mapstructure:"max_bytes"`
}

// MinIOConfig configures the object-storage page source.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// MetricsConfig configures the worker's observability endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// WorkerConfig sizes the async extraction worker.
type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Config is the root configuration for CLI and worker processes.
type Config struct {
	Log       logging.Config  `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Structure StructureConfig `mapstructure:"structure"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// Validate checks structural sanity. Credential presence is checked where
// the credential is used (e.g. the LLM client), not here, so gateway-free
// runs need no key.
func (c *Config) Validate() error {
	if f := c.Structure.HeaderFraction; f <= 0 || f >= 1 {
		return fmt.Errorf("config: structure.header_fraction %v is out of range (0, 1)", f)
	}
	if f := c.Structure.FooterFraction; f <= 0 || f >= 1 {
		return fmt.Errorf("config: structure.footer_fraction %v is out of range (0, 1)", f)
	}
	if c.Structure.HeaderFraction+c.Structure.FooterFraction >= 1 {
		return fmt.Errorf("config: structure header+footer fractions must leave room for content, got %v",
			c.Structure.HeaderFraction+c.Structure.FooterFraction)
	}
	if f := c.Structure.EdgeSearchFraction; f <= 0 || f > 0.5 {
		return fmt.Errorf("config: structure.edge_search_fraction %v is out of range (0, 0.5]", f)
	}
	if c.Structure.Table.MinRows < 1 || c.Structure.Table.MinCols < 1 {
		return fmt.Errorf("config: structure.table min_rows/min_cols must be >= 1")
	}

	if c.Chunker.CharsPerToken <= 0 {
		return fmt.Errorf("config: chunker.chars_per_token must be > 0, got %v", c.Chunker.CharsPerToken)
	}
	if c.Chunker.MaxTokensPerChunk < 1 {
		return fmt.Errorf("config: chunker.max_tokens_per_chunk must be >= 1, got %d", c.Chunker.MaxTokensPerChunk)
	}

	if t := c.Pipeline.ConfidenceThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("config: pipeline.confidence_threshold %v is out of range (0, 1]", t)
	}
	if c.Pipeline.MaxTokensPerCall < 1 {
		return fmt.Errorf("config: pipeline.max_tokens_per_call must be >= 1, got %d", c.Pipeline.MaxTokensPerCall)
	}
	if c.Pipeline.MaxConsecutiveEmptyCalls < 1 {
		return fmt.Errorf("config: pipeline.max_consecutive_empty_calls must be >= 1, got %d", c.Pipeline.MaxConsecutiveEmptyCalls)
	}
	if c.Pipeline.GatewayTimeout <= 0 {
		return fmt.Errorf("config: pipeline.gateway_timeout must be > 0, got %v", c.Pipeline.GatewayTimeout)
	}
	if c.Pipeline.ConcurrentChunks && c.Pipeline.ChunkConcurrency < 1 {
		return fmt.Errorf("config: pipeline.chunk_concurrency must be >= 1 when concurrent_chunks is set")
	}

	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("config: llm.timeout must be > 0, got %v", c.LLM.Timeout)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("config: llm.max_tokens must be >= 1, got %d", c.LLM.MaxTokens)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required when redis is enabled")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.JobsTopic == "" || c.Kafka.ResultsTopic == "" {
		return fmt.Errorf("config: kafka jobs_topic and results_topic are required")
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}

	return nil
}
