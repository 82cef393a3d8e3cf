package core

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/nem2sql/internal/nem12"
)

// DefaultPreviewRows is how many rows Preview samples from the head of
// a file.
const DefaultPreviewRows = 10

// RowPreview is a single sampled CSV row with the record type it carries.
type RowPreview struct {
	LineNumber int      `json:"lineNumber"`
	Kind       string   `json:"kind"`
	Fields     []string `json:"fields"`
}

// PreviewResponse is the complete response from a preview analysis.
type PreviewResponse struct {
	Rows             []RowPreview `json:"rows"`
	Truncated        bool         `json:"truncated"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
}

// Preview performs a read-only analysis of the head of a NEM12 file.
// It samples up to limit rows, tags each with its record type, and reports
// whether the file holds more rows than the sample. Nothing is converted
// and no conversion slot is consumed.
func Preview(r io.Reader, limit int) (*PreviewResponse, error) {
	startTime := time.Now()

	if limit <= 0 {
		limit = DefaultPreviewRows
	}

	// One extra row tells truncated apart from exactly-limit files.
	reader := nem12.NewBatchReader(r, limit+1)
	rows, err := reader.ReadBatch()
	if err != nil && err != io.EOF && len(rows) == 0 {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}

	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}

	resp := &PreviewResponse{
		Truncated: len(rows) > limit,
	}
	if resp.Truncated {
		rows = rows[:limit]
	}

	for i, row := range rows {
		resp.Rows = append(resp.Rows, RowPreview{
			LineNumber: i + 1,
			Kind:       recordKind(row),
			Fields:     row,
		})
	}

	resp.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	return resp, nil
}

// recordKind names a row by its NEM12 record indicator.
func recordKind(row []string) string {
	if len(row) == 0 {
		return "other"
	}
	switch row[0] {
	case "100":
		return "header"
	case "200":
		return "details"
	case "300":
		return "interval"
	case "900":
		return "footer"
	default:
		return "other"
	}
}
