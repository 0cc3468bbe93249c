// Command worker is the async extraction process: it consumes extraction
// jobs from kafka, loads raw pages from object storage, runs the pipeline,
// archives the result, and publishes an outcome message. It exposes
// /metrics and /healthz for observability.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aman-ankur/labextract/internal/config"
	"github.com/aman-ankur/labextract/internal/extraction/common"
	redisdb "github.com/aman-ankur/labextract/internal/infrastructure/database/redis"
	kafkainfra "github.com/aman-ankur/labextract/internal/infrastructure/messaging/kafka"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	promcollector "github.com/aman-ankur/labextract/internal/infrastructure/monitoring/prometheus"
	miniostore "github.com/aman-ankur/labextract/internal/infrastructure/storage/minio"
	"github.com/aman-ankur/labextract/pkg/client"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

const lagSampleInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	concurrency := flag.Int("concurrency", 0, "number of concurrent job consumers (overrides config)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		cfg.Worker.Concurrency = *concurrency
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.Named("worker")

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics: one registry for the worker series, the extraction series,
	// and the scrape endpoint.
	collector, err := promcollector.NewMetricsCollector(promcollector.CollectorConfig{
		Namespace:            "labextract",
		Subsystem:            "worker",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return err
	}
	workerMetrics := promcollector.NewWorkerMetrics(collector)

	extractionMetrics, err := common.NewPrometheusMetrics(collector.Registerer())
	if err != nil {
		return err
	}

	// Object storage for page payloads and result archives.
	storageClient, err := miniostore.NewClient(&cfg.MinIO, logger)
	if err != nil {
		return err
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		return err
	}
	workerMetrics.SetHealth("minio", true)
	store := miniostore.NewPageStore(storageClient, logger)

	// The extraction client; gateway and cache per configuration.
	extractor, err := client.New(cfg, client.WithLogger(logger), client.WithMetrics(extractionMetrics))
	if err != nil {
		return err
	}
	defer extractor.Close()
	logger.Info("extraction client ready", logging.Bool("gateway", extractor.GatewayEnabled()))

	// Kafka: make sure topics exist, then wire the producer and consumers.
	topics, err := kafkainfra.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		return err
	}
	topicSet := kafkainfra.DefaultTopics(cfg.Kafka.JobsTopic, cfg.Kafka.ResultsTopic, cfg.Kafka.DeadLetterTopic)
	if err := topics.EnsureTopics(ctx, topicSet); err != nil {
		topics.Close()
		return err
	}
	topics.Close()

	producer, err := kafkainfra.NewProducer(kafkainfra.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		BatchTimeout: cfg.Kafka.BatchTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer producer.Close()
	workerMetrics.SetHealth("kafka", true)

	// With redis enabled, a per-document lock keeps redelivered jobs from
	// being extracted twice by different workers.
	var locks *redisdb.Client
	if cfg.Redis.Enabled {
		locks, err = redisdb.NewClient(&cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer locks.Close()
		workerMetrics.SetHealth("redis", true)
	}

	h := &jobHandler{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		producer:  producer,
		metrics:   workerMetrics,
		locks:     locks,
		logger:    logger,
	}
	h.handlerTimeout.Store(int64(cfg.Worker.HandlerTimeout))

	// The per-job timeout is the only knob applied live; everything else
	// needs a restart.
	if configPath != "" {
		config.Watch(configPath, func(updated *config.Config) {
			h.handlerTimeout.Store(int64(updated.Worker.HandlerTimeout))
			logger.Info("configuration reloaded",
				logging.Duration("handler_timeout", updated.Worker.HandlerTimeout))
		})
	}

	// Each consumer owns a reader in the shared group, so concurrency
	// scales with partition count.
	consumers := make([]*kafkainfra.Consumer, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		consumer, err := kafkainfra.NewConsumer(kafkainfra.ConsumerConfig{
			Brokers:         cfg.Kafka.Brokers,
			GroupID:         cfg.Kafka.GroupID,
			Topic:           cfg.Kafka.JobsTopic,
			MinBytes:        cfg.Kafka.MinBytes,
			MaxBytes:        cfg.Kafka.MaxBytes,
			MaxRetries:      cfg.Kafka.MaxRetries,
			RetryBackoff:    cfg.Kafka.RetryBackoff,
			DeadLetterTopic: cfg.Kafka.DeadLetterTopic,
		}, h.handle, logger)
		if err != nil {
			closeConsumers(consumers, logger)
			return err
		}
		consumers = append(consumers, consumer)
	}
	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			closeConsumers(consumers, logger)
			return err
		}
	}
	logger.Info("consumers started",
		logging.Int("count", len(consumers)),
		logging.String("topic", cfg.Kafka.JobsTopic),
		logging.String("group", cfg.Kafka.GroupID))

	go sampleQueueLag(ctx, consumers, cfg.Kafka.JobsTopic, workerMetrics)

	srv := startObservabilityServer(cfg, collector, logger)

	// Block until shutdown is requested.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", logging.String("signal", sig.String()))

	cancel()

	done := make(chan struct{})
	go func() {
		closeConsumers(consumers, logger)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("shutdown timeout exceeded, exiting with jobs in flight")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability server shutdown failed", logging.Err(err))
	}

	logger.Info("worker stopped")
	return nil
}

func closeConsumers(consumers []*kafkainfra.Consumer, logger logging.Logger) {
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			logger.Error("consumer close failed", logging.Err(err))
		}
	}
}

func sampleQueueLag(ctx context.Context, consumers []*kafkainfra.Consumer, topic string, m *promcollector.WorkerMetrics) {
	ticker := time.NewTicker(lagSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var lag int64
			for _, c := range consumers {
				lag += c.Stats().Lag
			}
			m.SetQueueLag(topic, lag)
		}
	}
}

func startObservabilityServer(cfg *config.Config, collector promcollector.MetricsCollector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", collector.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		logger.Info("observability server listening", logging.String("addr", cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("observability server failed", logging.Err(err))
		}
	}()
	return srv
}

// jobHandler runs one extraction job end to end.
type jobHandler struct {
	cfg       *config.Config
	store     *miniostore.PageStore
	extractor *client.Client
	producer  *kafkainfra.Producer
	metrics   *promcollector.WorkerMetrics
	locks     *redisdb.Client
	logger    logging.Logger

	// Nanoseconds, reloadable while jobs are in flight.
	handlerTimeout atomic.Int64
}

// handle is the consumer callback. Transient failures are returned so the
// consumer retries and eventually dead-letters; permanent failures publish a
// failed outcome and consume the job, since redelivery cannot fix them.
func (h *jobHandler) handle(ctx context.Context, job kafkainfra.ExtractionJob) error {
	start := time.Now()
	h.metrics.JobStarted()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.handlerTimeout.Load()))
	defer cancel()

	if h.locks != nil {
		lock := redisdb.NewDocumentLock(h.locks, job.DocumentID, h.logger)
		acquired, err := lock.TryLock(ctx)
		if err != nil {
			h.metrics.JobFailed(time.Since(start))
			return err
		}
		if !acquired {
			// Another worker holds this document; the duplicate delivery
			// is consumed without publishing an outcome.
			h.logger.Info("document locked elsewhere, skipping duplicate job",
				logging.String("job_id", job.JobID),
				logging.String("document_id", job.DocumentID))
			h.metrics.JobSkipped()
			return nil
		}
		defer func() {
			if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				h.logger.Warn("document lock release failed",
					logging.String("document_id", job.DocumentID),
					logging.Err(err))
			}
		}()
	}

	result, err := h.process(ctx, job)
	if err != nil {
		h.metrics.JobFailed(time.Since(start))
		if errors.IsTransient(err) || ctx.Err() != nil {
			return err
		}
		h.logger.Error("job failed permanently",
			logging.String("job_id", job.JobID),
			logging.String("document_id", job.DocumentID),
			logging.Err(err))
		h.publishOutcome(ctx, kafkainfra.ExtractionOutcome{
			JobID:       job.JobID,
			DocumentID:  job.DocumentID,
			Status:      kafkainfra.OutcomeFailed,
			Error:       err.Error(),
			CompletedAt: time.Now().UTC(),
		})
		return nil
	}

	h.metrics.JobSucceeded(time.Since(start), result.Diagnostics.ChunksProcessed, len(result.Biomarkers))
	h.logger.Info("job completed",
		logging.String("job_id", job.JobID),
		logging.String("document_id", job.DocumentID),
		logging.Int("biomarkers", len(result.Biomarkers)),
		logging.Bool("used_fallback", result.Diagnostics.UsedFallback),
		logging.Duration("duration", time.Since(start)))

	h.publishOutcome(ctx, kafkainfra.ExtractionOutcome{
		JobID:       job.JobID,
		DocumentID:  job.DocumentID,
		Status:      kafkainfra.OutcomeSucceeded,
		Result:      result,
		CompletedAt: time.Now().UTC(),
	})
	return nil
}

func (h *jobHandler) process(ctx context.Context, job kafkainfra.ExtractionJob) (*biomarker.ExtractionResult, error) {
	pages, err := h.store.LoadPages(ctx, job.ObjectKey)
	if err != nil {
		return nil, err
	}

	opts := job.Options
	if opts == (biomarker.Options{}) {
		opts = biomarker.DefaultOptions()
	}

	result, err := h.extractor.ExtractBiomarkers(ctx, pages, opts)
	if err != nil {
		return nil, err
	}

	if _, err := h.store.StoreResult(ctx, job.DocumentID, &result); err != nil {
		// The result exists; archiving it is best effort.
		h.logger.Warn("result archive failed",
			logging.String("document_id", job.DocumentID),
			logging.Err(err))
	}
	return &result, nil
}

func (h *jobHandler) publishOutcome(ctx context.Context, out kafkainfra.ExtractionOutcome) {
	if err := h.producer.PublishOutcome(ctx, h.cfg.Kafka.ResultsTopic, out); err != nil {
		h.logger.Error("outcome publish failed",
			logging.String("job_id", out.JobID),
			logging.Err(err))
	}
}
