package prometheus

import "time"

// Job outcome labels.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Histogram buckets tuned for extraction jobs: seconds end to end, small
// page counts, and biomarker panels that rarely exceed a hundred entries.
var (
	DefaultJobDurationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}
	DefaultPageCountBuckets   = []float64{1, 2, 3, 5, 8, 13, 21, 40}
	DefaultPanelSizeBuckets   = []float64{0, 1, 2, 5, 10, 20, 50, 100}
)

// WorkerMetrics are the job-level series the extraction packages do not
// record themselves.
type WorkerMetrics struct {
	jobsTotal    CounterVec
	jobDuration  HistogramVec
	activeJobs   GaugeVec
	queueLag     GaugeVec
	pagesPerJob  HistogramVec
	panelSize    HistogramVec
	deadLettered CounterVec
	healthStatus GaugeVec
}

// NewWorkerMetrics registers the worker series on the collector.
func NewWorkerMetrics(collector MetricsCollector) *WorkerMetrics {
	return &WorkerMetrics{
		jobsTotal:    collector.RegisterCounter("jobs_total", "Extraction jobs handled", "status"),
		jobDuration:  collector.RegisterHistogram("job_duration_seconds", "End-to-end job duration", DefaultJobDurationBuckets, "status"),
		activeJobs:   collector.RegisterGauge("active_jobs", "Jobs currently being processed"),
		queueLag:     collector.RegisterGauge("queue_lag", "Consumer lag on the jobs topic", "topic"),
		pagesPerJob:  collector.RegisterHistogram("pages_per_job", "Raw pages per document", DefaultPageCountBuckets),
		panelSize:    collector.RegisterHistogram("biomarkers_per_job", "Accepted biomarkers per document", DefaultPanelSizeBuckets),
		deadLettered: collector.RegisterCounter("dead_lettered_total", "Jobs routed to the dead-letter topic"),
		healthStatus: collector.RegisterGauge("health_status", "Dependency health (1 up, 0 down)", "component"),
	}
}

// JobStarted marks a job in flight.
func (m *WorkerMetrics) JobStarted() {
	m.activeJobs.WithLabelValues().Inc()
}

// JobSucceeded records a finished job and its shape.
func (m *WorkerMetrics) JobSucceeded(duration time.Duration, pages, biomarkers int) {
	m.activeJobs.WithLabelValues().Dec()
	m.jobsTotal.WithLabelValues(StatusSucceeded).Inc()
	m.jobDuration.WithLabelValues(StatusSucceeded).Observe(duration.Seconds())
	m.pagesPerJob.WithLabelValues().Observe(float64(pages))
	m.panelSize.WithLabelValues().Observe(float64(biomarkers))
}

// JobFailed records a job that failed every attempt.
func (m *WorkerMetrics) JobFailed(duration time.Duration) {
	m.activeJobs.WithLabelValues().Dec()
	m.jobsTotal.WithLabelValues(StatusFailed).Inc()
	m.jobDuration.WithLabelValues(StatusFailed).Observe(duration.Seconds())
}

// JobSkipped records a duplicate delivery that was consumed without work,
// typically because another worker holds the document lock.
func (m *WorkerMetrics) JobSkipped() {
	m.activeJobs.WithLabelValues().Dec()
	m.jobsTotal.WithLabelValues(StatusSkipped).Inc()
}

// JobDeadLettered counts a job handed to the dead-letter topic.
func (m *WorkerMetrics) JobDeadLettered() {
	m.deadLettered.WithLabelValues().Inc()
}

// SetQueueLag publishes the consumer's lag on its topic.
func (m *WorkerMetrics) SetQueueLag(topic string, lag int64) {
	m.queueLag.WithLabelValues(topic).Set(float64(lag))
}

// SetHealth flips a dependency's health gauge.
func (m *WorkerMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	m.healthStatus.WithLabelValues(component).Set(v)
}
