package core

// conversion.go tracks a single conversion run and pumps it through the
// interpreter.
//
// One conversion = one background goroutine reading source batches through
// one parser context, in order. Readings are appended under the job lock so
// observers always see arrival order, and they are never revised: a source
// failure keeps everything emitted up to that point.

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/nem2sql/internal/nem12"
)

// parseErrorPrefix starts the user-visible message for every source failure.
// The underlying error text is appended unchanged.
const parseErrorPrefix = "Error parsing CSV file: "

// conversion is one in-flight or finished conversion run.
type conversion struct {
	id       string
	fileName string
	source   io.Reader
	started  time.Time

	mu         sync.Mutex
	progress   Progress
	records    []nem12.MeterReading
	statements []string
	result     *Result
	finishedAt time.Time

	// done closes when the conversion reaches a terminal state.
	// result is written before the close.
	done chan struct{}

	listenerMu sync.Mutex
	listeners  []chan Progress
}

func newConversion(id string, req Request) *conversion {
	return &conversion{
		id:       id,
		fileName: req.FileName,
		source:   req.Source,
		started:  time.Now(),
		progress: Progress{
			ConversionID: id,
			Phase:        PhaseStarting,
			FileName:     req.FileName,
			BytesTotal:   req.Size,
		},
		done:      make(chan struct{}),
		listeners: make([]chan Progress, 0),
	}
}

// run pumps the source through the interpreter until EOF or source failure.
// A started conversion is never aborted mid-run: the loop has no cancellation
// path, it finishes or fails on its own.
func (s *Service) run(job *conversion) {
	// The service owns the source once Start accepts it. Multipart uploads
	// arrive as open files that must be released when the run ends.
	defer func() {
		if c, ok := job.source.(io.Closer); ok {
			c.Close()
		}
	}()

	logger := slog.With("conversion_id", job.id, "file", job.fileName)
	logger.Info("conversion started", "bytes_total", job.snapshot().BytesTotal)

	reader := nem12.NewBatchReader(job.source, s.batchRows)
	pc := &nem12.ParserContext{}

	job.setPhase(PhaseParsing)
	job.notifyProgress()

	for {
		rows, err := reader.ReadBatch()

		if len(rows) > 0 {
			readings := nem12.Process(rows, pc)
			job.appendBatch(readings, len(rows), reader.BytesRead())
			job.notifyProgress()

			rowsRead.Add(float64(len(rows)))
			readingsEmitted.Add(float64(len(readings)))
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed data never lands here; the interpreter skips it.
			// Only the source's own read error fails a run, and everything
			// emitted before the failure stays.
			job.fail(parseErrorPrefix + err.Error())
			s.finish(job)

			p := job.snapshot()
			logger.Error("conversion failed",
				"error", err,
				"rows", p.RowsRead,
				"records", p.Records,
			)
			return
		}
	}

	job.setPhase(PhaseFormatting)
	job.notifyProgress()

	job.complete()
	s.finish(job)

	p := job.snapshot()
	logger.Info("conversion completed",
		"rows", p.RowsRead,
		"records", p.Records,
		"statements", p.Statements,
		"duration_ms", time.Since(job.started).Milliseconds(),
	)
}

// finish publishes a terminal state: history entry, metrics, final progress
// to listeners, listener close. done closes last so anyone it unblocks sees
// the history entry already in place.
func (s *Service) finish(job *conversion) {
	sum := job.summary()
	s.recent.add(sum)

	conversionsFinished.WithLabelValues(sum.Outcome).Inc()
	conversionDuration.Observe(float64(sum.DurationMs) / 1000)

	job.notifyProgress()
	job.closeListeners()
	close(job.done)
}

// snapshot returns the current progress under the job lock.
func (c *conversion) snapshot() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

func (c *conversion) setPhase(phase ConversionPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress.Phase = phase
}

// appendBatch appends a batch's readings and refreshes the row and byte
// counters. Append-only: earlier readings are never touched.
func (c *conversion) appendBatch(readings []nem12.MeterReading, rows int, bytesRead int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, readings...)
	c.progress.RowsRead += rows
	c.progress.Records = len(c.records)
	c.progress.BytesRead = bytesRead
}

// complete formats the emitted readings into statements and finalizes the
// result.
func (c *conversion) complete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statements = nem12.Statements(c.records)
	c.progress.Phase = PhaseComplete
	c.progress.Statements = len(c.statements)
	c.finishedAt = time.Now()

	c.result = &Result{
		ConversionID: c.id,
		FileName:     c.fileName,
		RowsRead:     c.progress.RowsRead,
		Records:      c.records,
		Statements:   c.statements,
		Duration:     c.finishedAt.Sub(c.started),
	}
}

// fail finalizes the conversion with a user-visible message. Readings
// emitted before the failure are kept; statements are not generated.
func (c *conversion) fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.progress.Phase = PhaseFailed
	c.progress.Error = msg
	c.finishedAt = time.Now()

	c.result = &Result{
		ConversionID: c.id,
		FileName:     c.fileName,
		RowsRead:     c.progress.RowsRead,
		Records:      c.records,
		Duration:     c.finishedAt.Sub(c.started),
		Error:        msg,
	}
}

// finished reports whether the conversion reached a terminal state, and when.
func (c *conversion) finished() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishedAt, !c.finishedAt.IsZero()
}

// readings returns a copy of the readings emitted so far.
func (c *conversion) readings() []nem12.MeterReading {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]nem12.MeterReading, len(c.records))
	copy(out, c.records)
	return out
}

// script returns the newline-joined statement text.
// Empty until the conversion completes.
func (c *conversion) script() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.statements, "\n")
}

// summary condenses the terminal state for the history feed.
func (c *conversion) summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := "complete"
	if c.progress.Phase == PhaseFailed {
		outcome = "failed"
	}

	return Summary{
		ConversionID: c.id,
		FileName:     c.fileName,
		RowsRead:     c.progress.RowsRead,
		Records:      len(c.records),
		Statements:   len(c.statements),
		Outcome:      outcome,
		Error:        c.progress.Error,
		DurationMs:   c.finishedAt.Sub(c.started).Milliseconds(),
		FinishedAt:   c.finishedAt,
	}
}

// subscribe registers a listener channel and primes it with the current
// progress. The channel is closed when the conversion finishes; a listener
// attaching after that still receives the terminal progress.
func (c *conversion) subscribe() <-chan Progress {
	ch := make(chan Progress, 10)

	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	// Send current progress immediately
	p := c.snapshot()
	select {
	case ch <- p:
	default:
	}

	// A terminal conversion will never notify again, so close now rather
	// than registering a listener that closeListeners already missed.
	if p.Phase.Terminal() {
		close(ch)
		return ch
	}

	c.listeners = append(c.listeners, ch)
	return ch
}

// notifyProgress sends the current progress to all listeners.
func (c *conversion) notifyProgress() {
	p := c.snapshot()

	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	for _, ch := range c.listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (c *conversion) closeListeners() {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	for _, ch := range c.listeners {
		close(ch)
	}
	c.listeners = nil
}
