package chunker

import (
	"github.com/aman-ankur/labextract/pkg/errors"
)

// Config holds chunk-building tuning constants.
type Config struct {
	// CharsPerToken feeds the token estimator.
	CharsPerToken float64 `json:"chars_per_token" yaml:"chars_per_token"`

	// MaxTokensPerChunk bounds each chunk's estimated size.
	MaxTokensPerChunk int `json:"max_tokens_per_chunk" yaml:"max_tokens_per_chunk"`

	// ContentConfidenceThreshold is the minimum content-zone confidence a
	// page needs (together with biomarker-looking text) to stay relevant.
	ContentConfidenceThreshold float64 `json:"content_confidence_threshold" yaml:"content_confidence_threshold"`
}

// DefaultConfig returns the production chunking constants.
func DefaultConfig() *Config {
	return &Config{
		CharsPerToken:              3.5,
		MaxTokensPerChunk:          2000,
		ContentConfidenceThreshold: 0.5,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.CharsPerToken <= 0 {
		return errors.InvalidInput("chars_per_token must be positive")
	}
	if c.MaxTokensPerChunk < 1 {
		return errors.InvalidInput("max_tokens_per_chunk must be >= 1")
	}
	if c.ContentConfidenceThreshold <= 0 || c.ContentConfidenceThreshold > 1 {
		return errors.InvalidInput("content_confidence_threshold must be in (0, 1]")
	}
	return nil
}
