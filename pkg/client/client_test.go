package client

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aman-ankur/labextract/internal/config"
	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/infrastructure/llm"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// stubCompletion answers every request with the same text. The pipeline's
// metadata call gets biomarker JSON too and recovers deterministically.
type stubCompletion struct {
	mu    sync.Mutex
	text  string
	calls int
}

func (s *stubCompletion) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return llm.CompletionResponse{
		Text:         s.text,
		Model:        "stub-model",
		InputTokens:  50,
		OutputTokens: 20,
		StopReason:   "end_turn",
	}, nil
}

func (s *stubCompletion) Model() string { return "stub-model" }

func (s *stubCompletion) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func textPage(n int, lines ...string) report.RawPage {
	return report.RawPage{PageNumber: n, Text: strings.Join(lines, "\n")}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	defer c.Close()

	// No API key in the defaults, so no gateway was assembled.
	assert.False(t, c.GatewayEnabled())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.ConfidenceThreshold = 5

	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfig))
}

func TestAnalyzeDocument(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	defer c.Close()

	pages := []report.RawPage{textPage(1,
		"Thyrocare Technologies Limited",
		"TSH: 2.5 mIU/L (0.4-4.2)",
	)}
	doc, err := c.AnalyzeDocument(context.Background(), pages)
	require.NoError(t, err)

	require.Contains(t, doc.Pages, 1)
	assert.Equal(t, report.VendorThyrocare, doc.Vendor.Vendor)
	assert.Greater(t, doc.Confidence, 0.0)
}

func TestExtractBiomarkers_DeterministicWithoutGateway(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	defer c.Close()

	pages := []report.RawPage{textPage(1,
		"Glucose: 95 mg/dL (70-99)",
		"Cholesterol: 210 mg/dL",
	)}
	res, err := c.ExtractBiomarkers(context.Background(), pages, biomarker.Options{})
	require.NoError(t, err)

	require.Len(t, res.Biomarkers, 2)
	chol, glu := res.Biomarkers[0], res.Biomarkers[1]
	assert.Equal(t, "Cholesterol", chol.Name)
	assert.Equal(t, "Glucose", glu.Name)
	assert.Equal(t, 95.0, glu.Value.Numeric)
	require.NotNil(t, glu.ReferenceRange.Low)
	assert.InDelta(t, 70, *glu.ReferenceRange.Low, 1e-9)

	assert.True(t, res.Diagnostics.UsedFallback)
	assert.Zero(t, res.Diagnostics.GatewayCalls)
}

func TestExtractBiomarkers_InjectedCompletionClient(t *testing.T) {
	stub := &stubCompletion{text: `{"biomarkers": [{"name": "TSH", "value": 2.5, "unit": "mIU/L"}]}`}
	metrics := common.NewInMemoryMetrics()
	c, err := New(nil, WithCompletionClient(stub), WithMetrics(metrics))
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.GatewayEnabled())

	pages := []report.RawPage{textPage(1, "TSH: 2.5 mIU/L")}
	res, err := c.ExtractBiomarkers(context.Background(), pages, biomarker.DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Biomarkers, 1)
	assert.Equal(t, "TSH", res.Biomarkers[0].Name)
	assert.False(t, res.Diagnostics.UsedFallback)
	assert.GreaterOrEqual(t, stub.callCount(), 1)
	assert.GreaterOrEqual(t, metrics.Snapshot().GatewayCalls, int64(1))
}

func TestExtractBiomarkers_InvalidInput(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ExtractBiomarkers(context.Background(), nil, biomarker.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestNew_UnreachableCacheDegradesToUncached(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := logging.NewLoggerFromCore(core)

	cfg := config.Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.DialTimeout = 50 * time.Millisecond

	stub := &stubCompletion{text: `{"biomarkers": []}`}
	c, err := New(cfg, WithCompletionClient(stub), WithLogger(logger))
	require.NoError(t, err)

	assert.True(t, c.GatewayEnabled())
	require.Equal(t, 1, logs.FilterMessage("completion cache unavailable, continuing uncached").Len())

	// No cache connection to release; Close stays idempotent.
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
