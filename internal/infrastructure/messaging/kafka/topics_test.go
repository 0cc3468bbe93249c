package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

type fakeConn struct {
	created    []kafka.TopicConfig
	createErr  error
	partitions map[string][]kafka.Partition
	closed     bool
}

func (c *fakeConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.created = append(c.created, topics...)
	return nil
}

func (c *fakeConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	var out []kafka.Partition
	for _, t := range topics {
		ps, ok := c.partitions[t]
		if !ok {
			return nil, assert.AnError
		}
		out = append(out, ps...)
	}
	return out, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newTestTopicManager(conn ConnInterface) *TopicManager {
	return &TopicManager{
		conn:   conn,
		logger: logging.NewNopLogger(),
	}
}

func TestExtractionJob_RoundTrip(t *testing.T) {
	job := NewExtractionJob("doc-42", "pages/doc-42.json", biomarker.Options{
		UseGateway:          true,
		ConfidenceThreshold: 0.7,
		MaxTokensPerCall:    2000,
		VendorHint:          "thyrocare",
	})
	assert.NotEmpty(t, job.JobID)
	assert.False(t, job.SubmittedAt.IsZero())

	payload, err := job.Encode()
	require.NoError(t, err)

	decoded, err := DecodeJob(payload)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, decoded.JobID)
	assert.Equal(t, job.DocumentID, decoded.DocumentID)
	assert.Equal(t, job.ObjectKey, decoded.ObjectKey)
	assert.Equal(t, job.Options, decoded.Options)
	assert.WithinDuration(t, job.SubmittedAt, decoded.SubmittedAt, time.Second)
}

func TestExtractionJob_Validate(t *testing.T) {
	err := ExtractionJob{ObjectKey: "pages/x.json"}.Validate()
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	err = ExtractionJob{DocumentID: "doc-1", ObjectKey: "  "}.Validate()
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestDecodeJob_Rejects(t *testing.T) {
	_, err := DecodeJob(nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))

	_, err = DecodeJob([]byte("{broken"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))

	// Decodable but incomplete payloads fail the same validation as Encode.
	_, err = DecodeJob([]byte(`{"job_id":"j1"}`))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestExtractionOutcome_Encode(t *testing.T) {
	out := ExtractionOutcome{
		JobID:       "job-1",
		DocumentID:  "doc-1",
		Status:      OutcomeFailed,
		Error:       "gateway unreachable",
		CompletedAt: time.Now().UTC(),
	}
	payload, err := out.Encode()
	require.NoError(t, err)

	decoded, err := DecodeOutcome(payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, decoded.Status)
	assert.Equal(t, "gateway unreachable", decoded.Error)
	assert.Nil(t, decoded.Result)

	_, err = ExtractionOutcome{Status: OutcomeSucceeded}.Encode()
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput), "job_id is required")

	_, err = ExtractionOutcome{JobID: "job-1", Status: "partial"}.Encode()
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics(DefaultJobsTopic, DefaultResultsTopic, DefaultDeadLetterTopic)
	require.Len(t, topics, 3)

	assert.Equal(t, DefaultJobsTopic, topics[0].Name)
	assert.Equal(t, 6, topics[0].NumPartitions)
	assert.Equal(t, int64(7*24*3600*1000), topics[0].RetentionMs)

	assert.Equal(t, DefaultResultsTopic, topics[1].Name)
	assert.Equal(t, 3, topics[1].NumPartitions)

	assert.Equal(t, DefaultDeadLetterTopic, topics[2].Name)
	assert.Equal(t, 1, topics[2].NumPartitions)
}

func TestTopicManager_CreateTopic(t *testing.T) {
	conn := &fakeConn{}
	m := newTestTopicManager(conn)

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name:              "labextract.jobs",
		NumPartitions:     6,
		ReplicationFactor: 1,
		RetentionMs:       1000,
	})
	require.NoError(t, err)

	require.Len(t, conn.created, 1)
	created := conn.created[0]
	assert.Equal(t, "labextract.jobs", created.Topic)
	assert.Equal(t, 6, created.NumPartitions)
	require.Len(t, created.ConfigEntries, 1)
	assert.Equal(t, "retention.ms", created.ConfigEntries[0].ConfigName)
	assert.Equal(t, "1000", created.ConfigEntries[0].ConfigValue)
}

func TestTopicManager_CreateTopic_Validation(t *testing.T) {
	m := newTestTopicManager(&fakeConn{})

	err := m.CreateTopic(context.Background(), TopicConfig{NumPartitions: 1, ReplicationFactor: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	err = m.CreateTopic(context.Background(), TopicConfig{Name: "t", ReplicationFactor: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestTopicManager_CreateTopic_AlreadyExists(t *testing.T) {
	conn := &fakeConn{
		createErr: assert.AnError,
		partitions: map[string][]kafka.Partition{
			"labextract.jobs": {{Topic: "labextract.jobs", ID: 0}},
		},
	}
	m := newTestTopicManager(conn)

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name:              "labextract.jobs",
		NumPartitions:     6,
		ReplicationFactor: 1,
	})
	assert.NoError(t, err)
}

func TestTopicManager_CreateTopic_BrokerError(t *testing.T) {
	conn := &fakeConn{createErr: assert.AnError, partitions: map[string][]kafka.Partition{}}
	m := newTestTopicManager(conn)

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name:              "labextract.jobs",
		NumPartitions:     6,
		ReplicationFactor: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessageQueue))
}

func TestTopicManager_EnsureTopics(t *testing.T) {
	conn := &fakeConn{}
	m := newTestTopicManager(conn)

	topics := DefaultTopics(DefaultJobsTopic, DefaultResultsTopic, DefaultDeadLetterTopic)
	require.NoError(t, m.EnsureTopics(context.Background(), topics))
	assert.Len(t, conn.created, 3)

	require.NoError(t, m.Close())
	assert.True(t, conn.closed)
}
