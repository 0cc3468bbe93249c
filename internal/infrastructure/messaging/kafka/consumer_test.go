package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// fakeReader hands out a scripted set of messages, then blocks until the
// consume loop is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *fakeReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newTestConsumer(r ReaderInterface, handler JobHandler, mutate func(*ConsumerConfig)) *Consumer {
	cfg := ConsumerConfig{
		Brokers:      []string{"localhost:9092"},
		GroupID:      "labextract-workers",
		Topic:        DefaultJobsTopic,
		RetryBackoff: time.Millisecond,
	}
	applyConsumerDefaults(&cfg)
	if mutate != nil {
		mutate(&cfg)
	}
	return &Consumer{
		reader:  r,
		handler: handler,
		config:  cfg,
		logger:  logging.NewNopLogger(),
	}
}

func jobMessage(t *testing.T, documentID string, offset int64) kafka.Message {
	t.Helper()
	job := NewExtractionJob(documentID, "pages/"+documentID+".json", biomarker.DefaultOptions())
	payload, err := job.Encode()
	require.NoError(t, err)
	return kafka.Message{
		Topic:         DefaultJobsTopic,
		Key:           []byte(documentID),
		Value:         payload,
		Offset:        offset,
		HighWaterMark: offset + 1,
	}
}

func TestConsumer_ProcessesJobs(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		jobMessage(t, "doc-1", 1),
		jobMessage(t, "doc-2", 2),
	}}

	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, job ExtractionJob) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.DocumentID)
		return nil
	}

	c := newTestConsumer(reader, handler, nil)
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(reader.committedOffsets()) == 2
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	mu.Lock()
	assert.Equal(t, []string{"doc-1", "doc-2"}, seen)
	mu.Unlock()
	assert.Equal(t, []int64{1, 2}, reader.committedOffsets())
	assert.True(t, reader.isClosed())

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Consumed)
	assert.Equal(t, int64(2), stats.Processed)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Retried)
}

func TestConsumer_RetriesUntilSuccess(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{jobMessage(t, "doc-1", 5)}}

	var calls atomic.Int64
	handler := func(context.Context, ExtractionJob) error {
		if calls.Add(1) < 3 {
			return errors.GatewayUnavailable("llm backend flapping")
		}
		return nil
	}

	c := newTestConsumer(reader, handler, nil)
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(reader.committedOffsets()) == 1
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int64(3), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(2), stats.Retried)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, []int64{5}, reader.committedOffsets())
}

func TestConsumer_DeadLettersAfterRetriesExhausted(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{jobMessage(t, "doc-1", 9)}}
	dlqWriter := &fakeWriter{}

	var calls atomic.Int64
	handler := func(context.Context, ExtractionJob) error {
		calls.Add(1)
		return errors.Internal("pipeline exploded")
	}

	c := newTestConsumer(reader, handler, func(cfg *ConsumerConfig) {
		cfg.MaxRetries = 2
		cfg.DeadLetterTopic = DefaultDeadLetterTopic
	})
	c.dlq = newTestProducer(dlqWriter)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(reader.committedOffsets()) == 1
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.Equal(t, int64(3), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.Retried)
	assert.Equal(t, int64(1), stats.DeadLettered)
	assert.Zero(t, stats.Processed)

	require.Len(t, dlqWriter.msgs, 1)
	dead := dlqWriter.msgs[0]
	assert.Equal(t, DefaultDeadLetterTopic, dead.Topic)
	assert.Equal(t, "doc-1", string(dead.Key))
	assert.Equal(t, DefaultJobsTopic, header(dead, "origin_topic"))
	assert.Contains(t, header(dead, "error"), "pipeline exploded")

	// The original payload rides along for replay.
	job, err := DecodeJob(dead.Value)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", job.DocumentID)
}

func TestConsumer_UndecodablePayloadGoesStraightToDeadLetter(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{
		Topic:  DefaultJobsTopic,
		Key:    []byte("doc-1"),
		Value:  []byte("not a job"),
		Offset: 3,
	}}}
	dlqWriter := &fakeWriter{}

	var calls atomic.Int64
	handler := func(context.Context, ExtractionJob) error {
		calls.Add(1)
		return nil
	}

	c := newTestConsumer(reader, handler, func(cfg *ConsumerConfig) {
		cfg.DeadLetterTopic = DefaultDeadLetterTopic
	})
	c.dlq = newTestProducer(dlqWriter)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(reader.committedOffsets()) == 1
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, c.Close())

	assert.Zero(t, calls.Load(), "handler must not see undecodable payloads")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Consumed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.DeadLettered)
	assert.Zero(t, stats.Retried)

	require.Len(t, dlqWriter.msgs, 1)
	assert.Equal(t, []byte("not a job"), dlqWriter.msgs[0].Value)
}

func TestConsumer_StartTwice(t *testing.T) {
	c := newTestConsumer(&fakeReader{}, func(context.Context, ExtractionJob) error { return nil }, nil)

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyRunning)
	require.NoError(t, c.Close())
}

func TestConsumer_CloseBeforeStart(t *testing.T) {
	c := newTestConsumer(&fakeReader{}, func(context.Context, ExtractionJob) error { return nil }, nil)
	assert.NoError(t, c.Close())
}

func TestNewConsumer_Validation(t *testing.T) {
	valid := ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "labextract-workers",
		Topic:   DefaultJobsTopic,
	}
	handler := func(context.Context, ExtractionJob) error { return nil }

	cases := []struct {
		name   string
		mutate func(*ConsumerConfig)
		h      JobHandler
	}{
		{"missing brokers", func(c *ConsumerConfig) { c.Brokers = nil }, handler},
		{"missing group", func(c *ConsumerConfig) { c.GroupID = "" }, handler},
		{"missing topic", func(c *ConsumerConfig) { c.Topic = "" }, handler},
		{"missing handler", func(*ConsumerConfig) {}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			_, err := NewConsumer(cfg, tc.h, nil)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
		})
	}
}
