package client

import (
	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/infrastructure/llm"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
)

type settings struct {
	logger     logging.Logger
	metrics    common.Metrics
	completion llm.Client
}

// Option customizes Client assembly.
type Option func(*settings)

// WithLogger attaches a logger. The default Client is silent.
func WithLogger(logger logging.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMetrics attaches a metrics sink shared with the caller, typically
// common.NewPrometheusMetrics over the process registry.
func WithMetrics(metrics common.Metrics) Option {
	return func(s *settings) {
		s.metrics = metrics
	}
}

// WithCompletionClient substitutes the completion transport, bypassing
// cfg.LLM. The redis cache still wraps it when enabled.
func WithCompletionClient(c llm.Client) Option {
	return func(s *settings) {
		s.completion = c
	}
}
