package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
)

// ErrAlreadyRunning is returned by Start on a running consumer.
var ErrAlreadyRunning = errors.New(errors.ErrCodeInternal, "consumer is already running")

// JobHandler processes one decoded extraction job. A nil return commits the
// message; an error triggers the retry policy.
type JobHandler func(ctx context.Context, job ExtractionJob) error

// ConsumerConfig holds the reader and retry knobs. Zero values take defaults.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// MaxRetries bounds handler re-attempts per message; backoff doubles
	// from RetryBackoff up to MaxRetryBackoff between attempts.
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration

	// DeadLetterTopic receives undecodable payloads and jobs that failed
	// every attempt. Empty drops them after logging.
	DeadLetterTopic string
}

// ConsumerStats is a point-in-time snapshot of consumer counters.
type ConsumerStats struct {
	Consumed     int64
	Processed    int64
	Failed       int64
	Retried      int64
	DeadLettered int64
	Lag          int64
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the job topic and drives the handler. Offsets are committed
// after handling, retries included, so the stream never stalls on one bad
// job; delivery is at-least-once across restarts.
type Consumer struct {
	reader  ReaderInterface
	dlq     *Producer
	handler JobHandler
	config  ConsumerConfig
	logger  logging.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	consumed     atomic.Int64
	processed    atomic.Int64
	failed       atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
	lag          atomic.Int64
}

// NewConsumer builds a Consumer over a real kafka reader.
func NewConsumer(cfg ConsumerConfig, handler JobHandler, logger logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.InvalidInput("at least one broker address is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.InvalidInput("consumer group id is required")
	}
	if cfg.Topic == "" {
		return nil, errors.InvalidInput("topic is required")
	}
	if handler == nil {
		return nil, errors.InvalidInput("job handler is required")
	}
	applyConsumerDefaults(&cfg)

	logger = logging.OrNop(logger).Named("kafka")

	var dlq *Producer
	if cfg.DeadLetterTopic != "" {
		p, err := NewProducer(ProducerConfig{Brokers: cfg.Brokers}, logger)
		if err != nil {
			return nil, err
		}
		dlq = p
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:  reader,
		dlq:     dlq,
		handler: handler,
		config:  cfg,
		logger:  logger,
	}, nil
}

func applyConsumerDefaults(cfg *ConsumerConfig) {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxRetryBackoff <= 0 {
		cfg.MaxRetryBackoff = 30 * time.Second
	}
}

// Start launches the consume loop. It returns immediately; Close stops the
// loop and waits for it.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("consumer started",
		logging.String("group", c.config.GroupID),
		logging.String("topic", c.config.Topic))
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.consumed.Add(1)
		c.lag.Store(m.HighWaterMark - m.Offset)

		job, err := DecodeJob(m.Value)
		if err != nil {
			// A payload that does not decode will not decode on
			// redelivery either.
			c.logger.Error("job payload rejected",
				logging.Int64("offset", m.Offset),
				logging.Err(err))
			c.failed.Add(1)
			c.deadLetter(ctx, m, err)
			c.commit(ctx, m)
			continue
		}

		err = c.handleWithRetry(ctx, job)
		if ctx.Err() != nil {
			// Shutdown mid-handling: leave the offset uncommitted so
			// the job is redelivered.
			return
		}
		if err != nil {
			c.failed.Add(1)
			c.logger.Error("job failed every attempt",
				logging.String("job_id", job.JobID),
				logging.String("document_id", job.DocumentID),
				logging.Err(err))
			c.deadLetter(ctx, m, err)
		} else {
			c.processed.Add(1)
		}
		c.commit(ctx, m)
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, job ExtractionJob) error {
	err := c.handler(ctx, job)
	if err == nil {
		return nil
	}

	backoff := c.config.RetryBackoff
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		c.retried.Add(1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err = c.handler(ctx, job); err == nil {
			return nil
		}

		backoff *= 2
		if backoff > c.config.MaxRetryBackoff {
			backoff = c.config.MaxRetryBackoff
		}
	}
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, m kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	headers := append([]kafka.Header(nil), m.Headers...)
	headers = append(headers,
		kafka.Header{Key: "origin_topic", Value: []byte(m.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	err := c.dlq.publish(ctx, kafka.Message{
		Topic:   c.config.DeadLetterTopic,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
	})
	if err != nil {
		c.logger.Error("dead-letter publish failed", logging.Err(err))
		return
	}
	c.deadLettered.Add(1)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.Error("offset commit failed",
			logging.Int64("offset", m.Offset),
			logging.Err(err))
	}
}

// Stats returns the consumer counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed:     c.consumed.Load(),
		Processed:    c.processed.Load(),
		Failed:       c.failed.Load(),
		Retried:      c.retried.Load(),
		DeadLettered: c.deadLettered.Load(),
		Lag:          c.lag.Load(),
	}
}

// Close stops the loop, waits for in-flight handling, and closes the reader.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	err := c.reader.Close()
	if c.dlq != nil {
		if derr := c.dlq.Close(); err == nil {
			err = derr
		}
	}
	c.logger.Info("consumer closed", logging.Int64("consumed", c.consumed.Load()))
	return err
}
