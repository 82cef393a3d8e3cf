package nem12

// reader.go delivers NEM12 CSV rows in bounded batches.
//
// The CSV dialect is deliberately permissive: rows may have any number of
// fields (record types differ in width) and stray quotes are tolerated.
// Structural strictness buys nothing here because the interpreter already
// treats unusable rows as skips.

import (
	"encoding/csv"
	"io"
)

// DefaultBatchSize is the number of rows per batch when the caller does not
// choose one. Large enough to amortize per-batch overhead, small enough to
// keep progress updates frequent on big files.
const DefaultBatchSize = 500

// BatchReader reads a NEM12 stream batch by batch. The input is wrapped
// for BOM skipping, UTF-8 sanitizing, and byte counting before it reaches
// the CSV layer.
type BatchReader struct {
	csv       *csv.Reader
	counting  *countingReader
	batchSize int
}

// NewBatchReader wraps r for reading in batches of batchSize rows.
// A non-positive batchSize falls back to DefaultBatchSize.
func NewBatchReader(r io.Reader, batchSize int) *BatchReader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	counting := newCountingReader(newUTF8SanitizingReader(newBOMSkippingReader(r)))

	cr := csv.NewReader(counting)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	return &BatchReader{
		csv:       cr,
		counting:  counting,
		batchSize: batchSize,
	}
}

// ReadBatch returns the next batch of rows, at most the configured batch
// size, and io.EOF once the input is exhausted. A non-EOF error from the
// source is returned together with the rows read before the failure, so
// callers can keep everything parsed up to that point.
func (b *BatchReader) ReadBatch() ([][]string, error) {
	var rows [][]string

	for len(rows) < b.batchSize {
		row, err := b.csv.Read()
		if err == io.EOF {
			if len(rows) > 0 {
				return rows, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// BytesRead reports how many bytes of the source have been consumed so
// far, for progress against a known upload size.
func (b *BatchReader) BytesRead() int64 {
	return b.counting.bytesRead
}
