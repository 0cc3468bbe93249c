// Package kafka carries extraction jobs and their outcomes between
// submitters and the worker. A job points at the page payload in object
// storage instead of embedding it, so messages stay small no matter how
// large the report is.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// Default topic names. Deployments override them through configuration; the
// dead-letter topic receives jobs that stayed unprocessable after retries.
const (
	DefaultJobsTopic       = "labextract.jobs"
	DefaultResultsTopic    = "labextract.results"
	DefaultDeadLetterTopic = "labextract.jobs.dlq"
)

// Outcome statuses.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// ExtractionJob asks the worker to extract one document. Bucket may be empty,
// in which case the worker's configured bucket applies.
type ExtractionJob struct {
	JobID       string            `json:"job_id"`
	DocumentID  string            `json:"document_id"`
	Bucket      string            `json:"bucket,omitempty"`
	ObjectKey   string            `json:"object_key"`
	Options     biomarker.Options `json:"options"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// NewExtractionJob builds a job with a fresh ID. The zero Options value lets
// the worker apply its defaults.
func NewExtractionJob(documentID, objectKey string, opts biomarker.Options) ExtractionJob {
	return ExtractionJob{
		JobID:       uuid.NewString(),
		DocumentID:  documentID,
		ObjectKey:   objectKey,
		Options:     opts,
		SubmittedAt: time.Now().UTC(),
	}
}

// Validate checks the fields the worker cannot default.
func (j ExtractionJob) Validate() error {
	if strings.TrimSpace(j.DocumentID) == "" {
		return errors.InvalidInput("job document_id is required")
	}
	if strings.TrimSpace(j.ObjectKey) == "" {
		return errors.InvalidInput("job object_key is required")
	}
	return nil
}

// Encode serializes the job for the wire.
func (j ExtractionJob) Encode() ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode extraction job")
	}
	return data, nil
}

// DecodeJob reads a job off the wire and validates it.
func DecodeJob(data []byte) (ExtractionJob, error) {
	var j ExtractionJob
	if len(data) == 0 {
		return j, errors.New(errors.ErrCodeSerialization, "empty job payload")
	}
	if err := json.Unmarshal(data, &j); err != nil {
		return j, errors.Wrap(err, errors.ErrCodeSerialization, "decode extraction job")
	}
	if err := j.Validate(); err != nil {
		return j, err
	}
	return j, nil
}

// ExtractionOutcome reports how a job ended. Result is set only on success;
// Error carries the terminal failure otherwise.
type ExtractionOutcome struct {
	JobID       string                      `json:"job_id"`
	DocumentID  string                      `json:"document_id"`
	Status      string                      `json:"status"`
	Error       string                      `json:"error,omitempty"`
	Result      *biomarker.ExtractionResult `json:"result,omitempty"`
	CompletedAt time.Time                   `json:"completed_at"`
}

// Encode serializes the outcome for the wire.
func (o ExtractionOutcome) Encode() ([]byte, error) {
	if o.JobID == "" {
		return nil, errors.InvalidInput("outcome job_id is required")
	}
	if o.Status != OutcomeSucceeded && o.Status != OutcomeFailed {
		return nil, errors.InvalidInput(fmt.Sprintf("outcome status %q is not recognized", o.Status))
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode extraction outcome")
	}
	return data, nil
}

// DecodeOutcome reads an outcome off the wire.
func DecodeOutcome(data []byte) (ExtractionOutcome, error) {
	var o ExtractionOutcome
	if len(data) == 0 {
		return o, errors.New(errors.ErrCodeSerialization, "empty outcome payload")
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return o, errors.Wrap(err, errors.ErrCodeSerialization, "decode extraction outcome")
	}
	return o, nil
}

// ---------------------------------------------------------------------------
// Topic management
// ---------------------------------------------------------------------------

// TopicConfig declares one topic for EnsureTopics.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopics returns the topic set for the given configured names. Jobs
// get the partition count; results and the dead-letter stream stay narrow.
func DefaultTopics(jobs, results, deadLetter string) []TopicConfig {
	return []TopicConfig{
		{Name: jobs, NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * 24 * 3600 * 1000},
		{Name: results, NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * 24 * 3600 * 1000},
		{Name: deadLetter, NumPartitions: 1, ReplicationFactor: 1, RetentionMs: 30 * 24 * 3600 * 1000},
	}
}

// ConnInterface abstracts the kafka admin connection.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates the job and result topics at worker startup.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// NewTopicManager dials the first broker for admin operations.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.InvalidInput("at least one broker address is required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "dial broker")
	}
	return &TopicManager{
		conn:   conn,
		logger: logging.OrNop(logger).Named("kafka"),
	}, nil
}

// CreateTopic creates one topic, treating "already exists" as success.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.InvalidInput("topic name is required")
	}
	if cfg.NumPartitions < 1 || cfg.ReplicationFactor < 1 {
		return errors.InvalidInput("topic partitions and replication factor must be >= 1")
	}

	kcfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kcfg.ConfigEntries = append(kcfg.ConfigEntries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs),
		})
	}

	if err := m.conn.CreateTopics(kcfg); err != nil {
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeMessageQueue, "create topic")
	}
	m.logger.Info("topic created", logging.String("topic", cfg.Name))
	return nil
}

// TopicExists reports whether the topic has any partitions.
func (m *TopicManager) TopicExists(_ context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		return false, nil
	}
	return len(partitions) > 0, nil
}

// EnsureTopics creates every topic in the set that does not exist yet.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, t := range topics {
		if err := m.CreateTopic(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
