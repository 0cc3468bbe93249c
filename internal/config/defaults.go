package config

import "time"

// Defaults for every tunable. The numeric pipeline constants were tuned on a
// mixed corpus of Indian and US lab reports and are expected to need
// per-vendor adjustment.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultLLMBaseURL    = "https://api.anthropic.com"
	DefaultLLMModel      = "claude-3-haiku-20240307"
	DefaultLLMAPIVersion = "2023-06-01"
	DefaultLLMMaxTokens  = 4000
	DefaultLLMTimeout    = 45 * time.Second

	DefaultHeaderFraction     = 0.15
	DefaultFooterFraction     = 0.10
	DefaultGapBreakThreshold  = 20.0
	DefaultLargeGapThreshold  = 30.0
	DefaultBoundaryPad        = 5.0
	DefaultEdgeSearchFraction = 0.30
	DefaultBaseZoneConfidence = 0.7
	DefaultRefinedConfidence  = 0.9
	DefaultDegradedConfidence = 0.5

	DefaultTableMinRows          = 2
	DefaultTableMinCols          = 2
	DefaultTableAlignTolerance   = 5.0
	DefaultTableRelaxedMinRows   = 2
	DefaultTableRelaxedMinCols   = 1
	DefaultTableRelaxedTolerance = 12.0

	DefaultCharsPerToken     = 3.5
	DefaultMaxTokensPerChunk = 2000
	DefaultContentConfidence = 0.5

	DefaultConfidenceThreshold      = 0.65
	DefaultMaxTokensPerCall         = 4000
	DefaultMaxConsecutiveEmptyCalls = 3
	DefaultGatewayTimeout           = 60 * time.Second
	DefaultChunkConcurrency         = 4

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "labx:completion:"
	DefaultRedisTTL       = 24 * time.Hour

	DefaultKafkaBroker          = "localhost:9092"
	DefaultKafkaGroupID         = "labextract-workers"
	DefaultKafkaJobsTopic       = "labextract.jobs"
	DefaultKafkaResultsTopic    = "labextract.results"
	DefaultKafkaDeadLetterTopic = "labextract.jobs.dlq"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "lab-reports"

	DefaultMetricsAddr = ":9090"

	DefaultWorkerConcurrency     = 4
	DefaultWorkerHandlerTimeout  = 5 * time.Minute
	DefaultWorkerShutdownTimeout = 30 * time.Second
)

// ApplyDefaults fills zero-value fields in cfg with the module defaults.
// Explicitly configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultLLMBaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.APIVersion == "" {
		cfg.LLM.APIVersion = DefaultLLMAPIVersion
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = DefaultLLMMaxTokens
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}

	if cfg.Structure.HeaderFraction == 0 {
		cfg.Structure.HeaderFraction = DefaultHeaderFraction
	}
	if cfg.Structure.FooterFraction == 0 {
		cfg.Structure.FooterFraction = DefaultFooterFraction
	}
	if cfg.Structure.GapBreakThreshold == 0 {
		cfg.Structure.GapBreakThreshold = DefaultGapBreakThreshold
	}
	if cfg.Structure.LargeGapThreshold == 0 {
		cfg.Structure.LargeGapThreshold = DefaultLargeGapThreshold
	}
	if cfg.Structure.BoundaryPad == 0 {
		cfg.Structure.BoundaryPad = DefaultBoundaryPad
	}
	if cfg.Structure.EdgeSearchFraction == 0 {
		cfg.Structure.EdgeSearchFraction = DefaultEdgeSearchFraction
	}
	if cfg.Structure.BaseZoneConfidence == 0 {
		cfg.Structure.BaseZoneConfidence = DefaultBaseZoneConfidence
	}
	if cfg.Structure.RefinedConfidence == 0 {
		cfg.Structure.RefinedConfidence = DefaultRefinedConfidence
	}
	if cfg.Structure.DegradedConfidence == 0 {
		cfg.Structure.DegradedConfidence = DefaultDegradedConfidence
	}
	if cfg.Structure.Table.MinRows == 0 {
		cfg.Structure.Table.MinRows = DefaultTableMinRows
	}
	if cfg.Structure.Table.MinCols == 0 {
		cfg.Structure.Table.MinCols = DefaultTableMinCols
	}
	if cfg.Structure.Table.AlignTolerance == 0 {
		cfg.Structure.Table.AlignTolerance = DefaultTableAlignTolerance
	}
	if cfg.Structure.Table.RelaxedMinRows == 0 {
		cfg.Structure.Table.RelaxedMinRows = DefaultTableRelaxedMinRows
	}
	if cfg.Structure.Table.RelaxedMinCols == 0 {
		cfg.Structure.Table.RelaxedMinCols = DefaultTableRelaxedMinCols
	}
	if cfg.Structure.Table.RelaxedTolerance == 0 {
		cfg.Structure.Table.RelaxedTolerance = DefaultTableRelaxedTolerance
	}

	if cfg.Chunker.CharsPerToken == 0 {
		cfg.Chunker.CharsPerToken = DefaultCharsPerToken
	}
	if cfg.Chunker.MaxTokensPerChunk == 0 {
		cfg.Chunker.MaxTokensPerChunk = DefaultMaxTokensPerChunk
	}
	if cfg.Chunker.ContentConfidenceThreshold == 0 {
		cfg.Chunker.ContentConfidenceThreshold = DefaultContentConfidence
	}

	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.Pipeline.MaxTokensPerCall == 0 {
		cfg.Pipeline.MaxTokensPerCall = DefaultMaxTokensPerCall
	}
	if cfg.Pipeline.MaxConsecutiveEmptyCalls == 0 {
		cfg.Pipeline.MaxConsecutiveEmptyCalls = DefaultMaxConsecutiveEmptyCalls
	}
	if cfg.Pipeline.GatewayTimeout == 0 {
		cfg.Pipeline.GatewayTimeout = DefaultGatewayTimeout
	}
	if cfg.Pipeline.ChunkConcurrency == 0 {
		cfg.Pipeline.ChunkConcurrency = DefaultChunkConcurrency
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.JobsTopic == "" {
		cfg.Kafka.JobsTopic = DefaultKafkaJobsTopic
	}
	if cfg.Kafka.ResultsTopic == "" {
		cfg.Kafka.ResultsTopic = DefaultKafkaResultsTopic
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = DefaultKafkaDeadLetterTopic
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.HandlerTimeout == 0 {
		cfg.Worker.HandlerTimeout = DefaultWorkerHandlerTimeout
	}
	if cfg.Worker.ShutdownTimeout == 0 {
		cfg.Worker.ShutdownTimeout = DefaultWorkerShutdownTimeout
	}
}

// Default returns a fully populated default configuration, the zero config
// with defaults applied. Library callers use it as a starting point.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
