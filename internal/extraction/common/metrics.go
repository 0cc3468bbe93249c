// Package common holds plumbing shared by the extraction pipeline packages:
// the Metrics interface with its Prometheus, noop, and in-memory variants,
// and the generic batch processor used for optional concurrent chunk work.
package common

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline events. All implementations are safe for
// concurrent use; the noop variant makes instrumentation optional for
// library callers.
type Metrics interface {
	// RecordGatewayCall records one external completion call.
	RecordGatewayCall(ctx context.Context, params *GatewayCallParams)

	// RecordFallbackActivation records a document switching to the
	// deterministic parser, labeled by trigger (disabled, timeout,
	// unavailable, empty_results).
	RecordFallbackActivation(ctx context.Context, trigger string)

	// RecordChunk records one processed chunk with its candidate yield.
	RecordChunk(ctx context.Context, regionType string, candidates int)

	// RecordValidation records one candidate passing or failing the
	// ingestion boundary.
	RecordValidation(ctx context.Context, accepted bool, reason string)

	// RecordStructureAnalysis records a per-page structure outcome.
	RecordStructureAnalysis(ctx context.Context, degraded bool, durationMs float64)

	// RecordCacheAccess records a completion-cache hit or miss.
	RecordCacheAccess(ctx context.Context, hit bool)

	// Snapshot returns point-in-time counters for diagnostics endpoints
	// and tests.
	Snapshot() *Stats
}

// GatewayCallParams describes one gateway round trip.
type GatewayCallParams struct {
	Model        string
	DurationMs   float64
	InputTokens  int
	OutputTokens int
	Success      bool
	Repaired     bool
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	GatewayCalls        int64   `json:"gateway_calls"`
	GatewayFailures     int64   `json:"gateway_failures"`
	RepairedResponses   int64   `json:"repaired_responses"`
	FallbackActivations int64   `json:"fallback_activations"`
	ChunksProcessed     int64   `json:"chunks_processed"`
	CandidatesAccepted  int64   `json:"candidates_accepted"`
	CandidatesRejected  int64   `json:"candidates_rejected"`
	DegradedPages       int64   `json:"degraded_pages"`
	CacheHits           int64   `json:"cache_hits"`
	CacheMisses         int64   `json:"cache_misses"`
	P50GatewayLatencyMs float64 `json:"p50_gateway_latency_ms"`
	P95GatewayLatencyMs float64 `json:"p95_gateway_latency_ms"`
}

const metricsPrefix = "labextract_"

var defaultLatencyBuckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// ---------------------------------------------------------------------------
// Prometheus implementation
// ---------------------------------------------------------------------------

type prometheusMetrics struct {
	gatewayLatency   *prometheus.HistogramVec
	gatewayTotal     *prometheus.CounterVec
	gatewayTokens    *prometheus.CounterVec
	fallbackTotal    *prometheus.CounterVec
	chunksTotal      *prometheus.CounterVec
	candidatesTotal  *prometheus.CounterVec
	validationTotal  *prometheus.CounterVec
	structurePages   *prometheus.CounterVec
	structureLatency prometheus.Histogram
	cacheTotal       *prometheus.CounterVec

	inmem *inMemoryMetrics
}

// NewPrometheusMetrics registers the extraction metric families on
// registerer (DefaultRegisterer when nil) and returns the collector. The
// same counters are mirrored in memory so Snapshot works without scraping.
func NewPrometheusMetrics(registerer prometheus.Registerer) (Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &prometheusMetrics{inmem: newInMemory()}

	m.gatewayLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricsPrefix + "gateway_duration_milliseconds",
		Help:    "Latency of external completion calls in milliseconds.",
		Buckets: defaultLatencyBuckets,
	}, []string{"model"})

	m.gatewayTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "gateway_calls_total",
		Help: "Total external completion calls.",
	}, []string{"model", "status"})

	m.gatewayTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "gateway_tokens_total",
		Help: "Tokens billed on external completion calls.",
	}, []string{"direction"})

	m.fallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "fallback_activations_total",
		Help: "Documents switched to the deterministic fallback parser.",
	}, []string{"trigger"})

	m.chunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "chunks_processed_total",
		Help: "Extraction chunks processed.",
	}, []string{"region_type"})

	m.candidatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "candidates_total",
		Help: "Biomarker candidates produced per chunk region type.",
	}, []string{"region_type"})

	m.validationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "validation_total",
		Help: "Candidates accepted or rejected at the ingestion boundary.",
	}, []string{"outcome", "reason"})

	m.structurePages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "structure_pages_total",
		Help: "Pages analyzed, labeled by degraded outcome.",
	}, []string{"outcome"})

	m.structureLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricsPrefix + "structure_duration_milliseconds",
		Help:    "Per-page structure analysis latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	m.cacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "completion_cache_total",
		Help: "Completion cache hits and misses.",
	}, []string{"outcome"})

	for _, c := range []prometheus.Collector{
		m.gatewayLatency, m.gatewayTotal, m.gatewayTokens, m.fallbackTotal,
		m.chunksTotal, m.candidatesTotal, m.validationTotal,
		m.structurePages, m.structureLatency, m.cacheTotal,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *prometheusMetrics) RecordGatewayCall(ctx context.Context, p *GatewayCallParams) {
	if p == nil {
		return
	}
	status := "success"
	if !p.Success {
		status = "failure"
	}
	m.gatewayLatency.WithLabelValues(p.Model).Observe(p.DurationMs)
	m.gatewayTotal.WithLabelValues(p.Model, status).Inc()
	m.gatewayTokens.WithLabelValues("input").Add(float64(p.InputTokens))
	m.gatewayTokens.WithLabelValues("output").Add(float64(p.OutputTokens))
	m.inmem.RecordGatewayCall(ctx, p)
}

func (m *prometheusMetrics) RecordFallbackActivation(ctx context.Context, trigger string) {
	m.fallbackTotal.WithLabelValues(trigger).Inc()
	m.inmem.RecordFallbackActivation(ctx, trigger)
}

func (m *prometheusMetrics) RecordChunk(ctx context.Context, regionType string, candidates int) {
	m.chunksTotal.WithLabelValues(regionType).Inc()
	m.candidatesTotal.WithLabelValues(regionType).Add(float64(candidates))
	m.inmem.RecordChunk(ctx, regionType, candidates)
}

func (m *prometheusMetrics) RecordValidation(ctx context.Context, accepted bool, reason string) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.validationTotal.WithLabelValues(outcome, reason).Inc()
	m.inmem.RecordValidation(ctx, accepted, reason)
}

func (m *prometheusMetrics) RecordStructureAnalysis(ctx context.Context, degraded bool, durationMs float64) {
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	m.structurePages.WithLabelValues(outcome).Inc()
	m.structureLatency.Observe(durationMs)
	m.inmem.RecordStructureAnalysis(ctx, degraded, durationMs)
}

func (m *prometheusMetrics) RecordCacheAccess(ctx context.Context, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheTotal.WithLabelValues(outcome).Inc()
	m.inmem.RecordCacheAccess(ctx, hit)
}

func (m *prometheusMetrics) Snapshot() *Stats { return m.inmem.Snapshot() }

// ---------------------------------------------------------------------------
// Noop implementation
// ---------------------------------------------------------------------------

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that records nothing.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordGatewayCall(context.Context, *GatewayCallParams)       {}
func (noopMetrics) RecordFallbackActivation(context.Context, string)            {}
func (noopMetrics) RecordChunk(context.Context, string, int)                    {}
func (noopMetrics) RecordValidation(context.Context, bool, string)              {}
func (noopMetrics) RecordStructureAnalysis(context.Context, bool, float64)      {}
func (noopMetrics) RecordCacheAccess(context.Context, bool)                     {}
func (noopMetrics) Snapshot() *Stats                                            { return &Stats{} }

// ---------------------------------------------------------------------------
// In-memory implementation (tests, Snapshot backing)
// ---------------------------------------------------------------------------

type inMemoryMetrics struct {
	gatewayCalls        atomic.Int64
	gatewayFailures     atomic.Int64
	repairedResponses   atomic.Int64
	fallbackActivations atomic.Int64
	chunksProcessed     atomic.Int64
	candidatesAccepted  atomic.Int64
	candidatesRejected  atomic.Int64
	degradedPages       atomic.Int64
	cacheHits           atomic.Int64
	cacheMisses         atomic.Int64

	latency *latencySamples
}

// NewInMemoryMetrics returns a Metrics keeping counters in process memory.
// Used directly by tests and embedded in the Prometheus variant.
func NewInMemoryMetrics() Metrics { return newInMemory() }

func newInMemory() *inMemoryMetrics {
	return &inMemoryMetrics{latency: &latencySamples{}}
}

func (m *inMemoryMetrics) RecordGatewayCall(_ context.Context, p *GatewayCallParams) {
	if p == nil {
		return
	}
	m.gatewayCalls.Add(1)
	if !p.Success {
		m.gatewayFailures.Add(1)
	}
	if p.Repaired {
		m.repairedResponses.Add(1)
	}
	m.latency.observe(p.DurationMs)
}

func (m *inMemoryMetrics) RecordFallbackActivation(_ context.Context, _ string) {
	m.fallbackActivations.Add(1)
}

func (m *inMemoryMetrics) RecordChunk(_ context.Context, _ string, _ int) {
	m.chunksProcessed.Add(1)
}

func (m *inMemoryMetrics) RecordValidation(_ context.Context, accepted bool, _ string) {
	if accepted {
		m.candidatesAccepted.Add(1)
	} else {
		m.candidatesRejected.Add(1)
	}
}

func (m *inMemoryMetrics) RecordStructureAnalysis(_ context.Context, degraded bool, _ float64) {
	if degraded {
		m.degradedPages.Add(1)
	}
}

func (m *inMemoryMetrics) RecordCacheAccess(_ context.Context, hit bool) {
	if hit {
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
}

func (m *inMemoryMetrics) Snapshot() *Stats {
	return &Stats{
		GatewayCalls:        m.gatewayCalls.Load(),
		GatewayFailures:     m.gatewayFailures.Load(),
		RepairedResponses:   m.repairedResponses.Load(),
		FallbackActivations: m.fallbackActivations.Load(),
		ChunksProcessed:     m.chunksProcessed.Load(),
		CandidatesAccepted:  m.candidatesAccepted.Load(),
		CandidatesRejected:  m.candidatesRejected.Load(),
		DegradedPages:       m.degradedPages.Load(),
		CacheHits:           m.cacheHits.Load(),
		CacheMisses:         m.cacheMisses.Load(),
		P50GatewayLatencyMs: m.latency.percentile(50),
		P95GatewayLatencyMs: m.latency.percentile(95),
	}
}

// latencySamples keeps raw samples for percentile queries. Sample count is
// capped; beyond the cap new samples overwrite old ones round-robin, which
// is accurate enough for diagnostics.
type latencySamples struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

const maxLatencySamples = 4096

func (l *latencySamples) observe(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.samples) < maxLatencySamples {
		l.samples = append(l.samples, v)
		return
	}
	l.samples[l.next] = v
	l.next = (l.next + 1) % maxLatencySamples
}

func (l *latencySamples) percentile(p float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(l.samples))
	copy(sorted, l.samples)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
