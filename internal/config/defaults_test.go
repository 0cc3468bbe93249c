package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, DefaultLLMModel, cfg.LLM.Model)
	assert.Equal(t, DefaultLLMTimeout, cfg.LLM.Timeout)
	assert.InDelta(t, DefaultHeaderFraction, cfg.Structure.HeaderFraction, 1e-9)
	assert.InDelta(t, DefaultFooterFraction, cfg.Structure.FooterFraction, 1e-9)
	assert.InDelta(t, DefaultGapBreakThreshold, cfg.Structure.GapBreakThreshold, 1e-9)
	assert.Equal(t, DefaultTableMinRows, cfg.Structure.Table.MinRows)
	assert.Equal(t, DefaultTableRelaxedMinCols, cfg.Structure.Table.RelaxedMinCols)
	assert.InDelta(t, DefaultCharsPerToken, cfg.Chunker.CharsPerToken, 1e-9)
	assert.Equal(t, DefaultMaxTokensPerChunk, cfg.Chunker.MaxTokensPerChunk)
	assert.InDelta(t, DefaultConfidenceThreshold, cfg.Pipeline.ConfidenceThreshold, 1e-9)
	assert.Equal(t, DefaultMaxConsecutiveEmptyCalls, cfg.Pipeline.MaxConsecutiveEmptyCalls)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultKafkaJobsTopic, cfg.Kafka.JobsTopic)
	assert.Equal(t, DefaultMinIOBucket, cfg.MinIO.Bucket)
	assert.Equal(t, DefaultWorkerConcurrency, cfg.Worker.Concurrency)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Pipeline.ConfidenceThreshold = 0.7
	cfg.Chunker.CharsPerToken = 4.0
	cfg.Kafka.Brokers = []string{"broker-1:9092", "broker-2:9092"}
	ApplyDefaults(cfg)

	assert.InDelta(t, 0.7, cfg.Pipeline.ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 4.0, cfg.Chunker.CharsPerToken, 1e-9)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
}

func TestApplyDefaults_NilIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestDefault_PassesValidation(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}
