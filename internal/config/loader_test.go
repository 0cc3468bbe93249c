package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
log:
  level: debug
  format: console

llm:
  model: claude-3-haiku-20240307
  max_tokens: 2048
  timeout: 30s

structure:
  header_fraction: 0.2
  footer_fraction: 0.1

chunker:
  chars_per_token: 4.0
  max_tokens_per_chunk: 1500

pipeline:
  confidence_threshold: 0.7
  max_consecutive_empty_calls: 2

redis:
  enabled: true
  addr: localhost:6379

kafka:
  brokers:
    - localhost:9092
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ParsesFileAndFillsDefaults(t *testing.T) {
	path := writeConfigFile(t, testConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.2, cfg.Structure.HeaderFraction, 1e-9)
	assert.InDelta(t, 4.0, cfg.Chunker.CharsPerToken, 1e-9)
	assert.InDelta(t, 0.7, cfg.Pipeline.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 2, cfg.Pipeline.MaxConsecutiveEmptyCalls)
	assert.True(t, cfg.Redis.Enabled)

	// Fields the file omits come from defaults.
	assert.Equal(t, DefaultLLMBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, DefaultKafkaJobsTopic, cfg.Kafka.JobsTopic)
	assert.InDelta(t, DefaultGapBreakThreshold, cfg.Structure.GapBreakThreshold, 1e-9)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, testConfigYAML)
	t.Setenv("LABX_PIPELINE_CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("LABX_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.85, cfg.Pipeline.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "log: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfigFile(t, `
structure:
  header_fraction: 1.5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header_fraction")
}

func TestLoadFromEnv_UsesDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.InDelta(t, DefaultConfidenceThreshold, cfg.Pipeline.ConfidenceThreshold, 1e-9)
}

func TestMustLoad_PanicsOnMissingFile(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	})
}
