package core

import (
	"io"
	"time"

	"github.com/JonMunkholm/nem2sql/internal/nem12"
)

// ConversionPhase indicates the current stage of conversion processing.
type ConversionPhase string

const (
	PhaseStarting   ConversionPhase = "starting"
	PhaseParsing    ConversionPhase = "parsing"
	PhaseFormatting ConversionPhase = "formatting"
	PhaseComplete   ConversionPhase = "complete"
	PhaseFailed     ConversionPhase = "failed"
)

// Terminal reports whether the phase is a final state.
func (p ConversionPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Request describes a file to convert.
type Request struct {
	// FileName is the client-supplied name, used for display and history.
	FileName string

	// Size is the total input size in bytes, 0 if unknown.
	// Used only for progress percentages.
	Size int64

	// Source delivers the CSV bytes. It is read exactly once, to EOF or
	// first error, by the conversion goroutine.
	Source io.Reader
}

// Progress represents the current state of a conversion.
type Progress struct {
	ConversionID string          `json:"conversionId"`
	Phase        ConversionPhase `json:"phase"`
	FileName     string          `json:"fileName"`

	// RowsRead counts every CSV row consumed, whatever its record type.
	RowsRead int `json:"rowsRead"`

	// Records counts meter readings emitted so far.
	Records int `json:"records"`

	// Statements is the generated statement count, set when formatting
	// completes. Equals Records on success.
	Statements int `json:"statements"`

	// Byte counters for percentage progress. BytesTotal is 0 when the
	// input size is unknown.
	BytesRead  int64 `json:"bytesRead"`
	BytesTotal int64 `json:"bytesTotal"`

	// Error is non-empty if Phase is PhaseFailed.
	Error string `json:"error,omitempty"`
}

// Percent returns the progress as a percentage (0-100).
// Byte-based when the input size is known, otherwise 0 until completion.
func (p Progress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.BytesTotal > 0 {
		pct := int((p.BytesRead * 100) / p.BytesTotal)
		if pct > 100 {
			pct = 100
		}
		return pct
	}
	return 0
}

// Result contains the final outcome of a conversion.
type Result struct {
	ConversionID string
	FileName     string
	RowsRead     int

	// Records holds every meter reading emitted, in arrival order.
	// Populated even when the conversion failed partway through.
	Records []nem12.MeterReading

	// Statements holds the generated INSERT statements. Nil when the
	// conversion failed before formatting.
	Statements []string

	Duration time.Duration

	// Error is non-empty if the conversion failed.
	Error string
}
