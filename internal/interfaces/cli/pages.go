package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// pageDocument mirrors the stored object-storage form so files written by
// the submit path can be fed back to analyze/extract directly.
type pageDocument struct {
	DocumentID string           `json:"document_id"`
	Pages      []report.RawPage `json:"pages"`
}

// LoadPagesFile reads raw pages from a JSON file holding either a bare array
// of pages or a {"document_id", "pages": [...]} document.
func LoadPagesFile(path string) ([]report.RawPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("read pages file %q", path))
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("pages file %q is empty", path))
	}

	var pages []report.RawPage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(data, &pages); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "decode pages array")
		}
	} else {
		var doc pageDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "decode page document")
		}
		pages = doc.Pages
	}

	if len(pages) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("pages file %q contains no pages", path))
	}
	return report.SortPages(pages), nil
}
