package minio

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// ObjectClient is what the page store needs from storage.
type ObjectClient interface {
	ReadObject(ctx context.Context, key string) ([]byte, error)
	WriteObject(ctx context.Context, key string, data []byte, contentType string) error
}

const contentTypeJSON = "application/json"

// PageDocument is the stored form of one document's raw pages.
type PageDocument struct {
	DocumentID string           `json:"document_id"`
	Pages      []report.RawPage `json:"pages"`
	StoredAt   time.Time        `json:"stored_at"`
}

// ResultDocument is the archived form of one finished extraction.
type ResultDocument struct {
	DocumentID string                      `json:"document_id"`
	Result     *biomarker.ExtractionResult `json:"result"`
	StoredAt   time.Time                   `json:"stored_at"`
}

// PageObjectKey returns the canonical key for a document's page payload.
func PageObjectKey(documentID string) string {
	return "pages/" + documentID + ".json"
}

// ResultObjectKey returns the canonical key for a document's archived result.
func ResultObjectKey(documentID string) string {
	return "results/" + documentID + ".json"
}

// PageStore reads and writes page payloads and result archives. Writers are
// the submit path; the worker is the only reader.
type PageStore struct {
	client ObjectClient
	logger logging.Logger
}

func NewPageStore(client ObjectClient, log logging.Logger) *PageStore {
	return &PageStore{
		client: client,
		logger: logging.OrNop(log).Named("pagestore"),
	}
}

// StorePages uploads the document's pages and returns the object key a job
// should carry.
func (s *PageStore) StorePages(ctx context.Context, documentID string, pages []report.RawPage) (string, error) {
	if strings.TrimSpace(documentID) == "" {
		return "", errors.InvalidInput("document id is required")
	}
	if len(pages) == 0 {
		return "", errors.InvalidInput("document has no pages")
	}

	doc := PageDocument{
		DocumentID: documentID,
		Pages:      report.SortPages(pages),
		StoredAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "encode page document")
	}

	key := PageObjectKey(documentID)
	if err := s.client.WriteObject(ctx, key, data, contentTypeJSON); err != nil {
		return "", err
	}
	s.logger.Debug("pages stored",
		logging.String("document_id", documentID),
		logging.Int("pages", len(pages)))
	return key, nil
}

// LoadPages resolves an object key from a job to the raw pages inside it.
func (s *PageStore) LoadPages(ctx context.Context, objectKey string) ([]report.RawPage, error) {
	if strings.TrimSpace(objectKey) == "" {
		return nil, errors.InvalidInput("object key is required")
	}

	data, err := s.client.ReadObject(ctx, objectKey)
	if err != nil {
		return nil, err
	}

	var doc PageDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode page document")
	}
	s.logger.Debug("pages loaded",
		logging.String("key", objectKey),
		logging.String("document_id", doc.DocumentID),
		logging.Int("pages", len(doc.Pages)))
	return doc.Pages, nil
}

// StoreResult archives a finished extraction next to its pages and returns
// the archive key.
func (s *PageStore) StoreResult(ctx context.Context, documentID string, result *biomarker.ExtractionResult) (string, error) {
	if strings.TrimSpace(documentID) == "" {
		return "", errors.InvalidInput("document id is required")
	}
	if result == nil {
		return "", errors.InvalidInput("result is required")
	}

	doc := ResultDocument{
		DocumentID: documentID,
		Result:     result,
		StoredAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "encode result document")
	}

	key := ResultObjectKey(documentID)
	if err := s.client.WriteObject(ctx, key, data, contentTypeJSON); err != nil {
		return "", err
	}
	s.logger.Debug("result archived",
		logging.String("document_id", documentID),
		logging.Int("biomarkers", len(result.Biomarkers)))
	return key, nil
}
