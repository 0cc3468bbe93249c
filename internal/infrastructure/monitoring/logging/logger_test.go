package logging_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
)

func newObserved(level zapcore.Level) (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return logging.NewLoggerFromCore(core), logs
}

func TestLogger_EmitsTypedFields(t *testing.T) {
	t.Parallel()

	log, logs := newObserved(zapcore.DebugLevel)

	log.Info("gateway call finished",
		logging.String("document_id", "doc-1"),
		logging.Int("chunk", 3),
		logging.Float64("confidence", 0.85),
		logging.Bool("from_table", true),
		logging.Duration("elapsed", 250*time.Millisecond),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "gateway call finished", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "doc-1", fields["document_id"])
	assert.EqualValues(t, 3, fields["chunk"])
	assert.Equal(t, 0.85, fields["confidence"])
	assert.Equal(t, true, fields["from_table"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	log, logs := newObserved(zapcore.WarnLevel)

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept")

	assert.Equal(t, 2, logs.Len())
}

func TestLogger_WithAttachesFields(t *testing.T) {
	t.Parallel()

	log, logs := newObserved(zapcore.InfoLevel)

	child := log.With(logging.String("component", "fallback"))
	child.Info("parsed line")
	log.Info("no component")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "fallback", entries[0].ContextMap()["component"])
	assert.NotContains(t, entries[1].ContextMap(), "component")
}

func TestErr_NilSafe(t *testing.T) {
	t.Parallel()

	log, logs := newObserved(zapcore.InfoLevel)

	log.Warn("with nil error", logging.Err(nil))
	log.Warn("with real error", logging.Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "<nil>", entries[0].ContextMap()["error"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNewNopLogger_DiscardsAndChains(t *testing.T) {
	t.Parallel()

	log := logging.NewNopLogger()
	assert.NotPanics(t, func() {
		log.Debug("x")
		log.Info("x")
		log.With(logging.Int("n", 1)).Named("sub").Warn("x")
		assert.NoError(t, log.Sync())
	})
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, logging.OrNop(nil))
	real := logging.NewNopLogger()
	assert.Equal(t, real, logging.OrNop(real))
}

func TestNewLogger_DefaultsApply(t *testing.T) {
	t.Parallel()

	log, err := logging.NewLogger(logging.Config{})
	require.NoError(t, err)
	require.NotNil(t, log)
}
