package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
)

// ErrProducerClosed is returned by publishes after Close.
var ErrProducerClosed = errors.New(errors.ErrCodeMessageQueue, "producer is closed")

// ProducerConfig holds the writer knobs. Zero values take defaults.
type ProducerConfig struct {
	Brokers         []string
	Acks            string
	MaxRetries      int
	RetryBackoff    time.Duration
	BatchTimeout    time.Duration
	MaxMessageBytes int
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
}

// ProducerStats is a point-in-time snapshot of producer counters.
type ProducerStats struct {
	Sent      int64
	Failed    int64
	BytesSent int64
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes extraction jobs and outcomes.
type Producer struct {
	writer WriterInterface
	config ProducerConfig
	logger logging.Logger
	closed atomic.Bool

	sent      atomic.Int64
	failed    atomic.Int64
	bytesSent atomic.Int64
}

// NewProducer builds a Producer over a real kafka writer. Messages are keyed
// by document ID with a hash balancer, so one document's messages land on
// one partition in order.
func NewProducer(cfg ProducerConfig, logger logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.InvalidInput("at least one broker address is required")
	}
	applyProducerDefaults(&cfg)

	var acks kafka.RequiredAcks
	switch cfg.Acks {
	case "none":
		acks = kafka.RequireNone
	case "one":
		acks = kafka.RequireOne
	default:
		acks = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxRetries + 1,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		RequiredAcks: acks,
		Transport:    &kafka.Transport{DialTimeout: 10 * time.Second},
	}

	return &Producer{
		writer: writer,
		config: cfg,
		logger: logging.OrNop(logger).Named("kafka"),
	}, nil
}

func applyProducerDefaults(cfg *ProducerConfig) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1 << 20
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
}

// PublishJob enqueues one extraction job.
func (p *Producer) PublishJob(ctx context.Context, topic string, job ExtractionJob) error {
	if topic == "" {
		return errors.InvalidInput("topic is required")
	}
	value, err := job.Encode()
	if err != nil {
		return err
	}
	ts := job.SubmittedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return p.publish(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(job.DocumentID),
		Value: value,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(job.JobID)},
		},
	})
}

// PublishOutcome reports one finished job.
func (p *Producer) PublishOutcome(ctx context.Context, topic string, out ExtractionOutcome) error {
	if topic == "" {
		return errors.InvalidInput("topic is required")
	}
	value, err := out.Encode()
	if err != nil {
		return err
	}
	ts := out.CompletedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return p.publish(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(out.DocumentID),
		Value: value,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(out.JobID)},
			{Key: "status", Value: []byte(out.Status)},
		},
	})
}

func (p *Producer) publish(ctx context.Context, msg kafka.Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(msg.Value) > p.config.MaxMessageBytes {
		return errors.InvalidInput("message exceeds the configured size limit")
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeMessageQueue, "publish message")
	}

	p.sent.Add(1)
	p.bytesSent.Add(int64(len(msg.Value)))
	p.logger.Debug("message published",
		logging.String("topic", msg.Topic),
		logging.Int64("latency_ms", time.Since(start).Milliseconds()))
	return nil
}

// Stats returns the producer counters.
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		Sent:      p.sent.Load(),
		Failed:    p.failed.Load(),
		BytesSent: p.bytesSent.Load(),
	}
}

// Close flushes and closes the writer. Later publishes fail.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}
