package core

// service.go is the entry point for conversion processing. It owns the
// concurrency limiter, the job registry, and the recent-history ring, and
// hands each accepted conversion to a background goroutine.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/nem2sql/internal/nem12"
)

// Config carries the tunables for a Service. Zero values fall back to the
// package defaults.
type Config struct {
	// BatchRows is the number of CSV rows read per batch.
	BatchRows int

	// MaxConcurrent caps the number of conversions running at once.
	MaxConcurrent int

	// MaxWait bounds how long Acquire blocks for a slot.
	MaxWait time.Duration

	// HistorySize caps the recent-conversion ring.
	HistorySize int
}

// Service runs conversions and answers queries about them.
type Service struct {
	batchRows int
	limiter   *Limiter
	jobs      *registry
	recent    *historyRing
}

// NewService creates a Service, applying package defaults for zero values.
func NewService(cfg Config) *Service {
	if cfg.BatchRows <= 0 {
		cfg.BatchRows = nem12.DefaultBatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrentConversions
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWaitTime
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}

	return &Service{
		batchRows: cfg.BatchRows,
		limiter:   NewLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		jobs:      newRegistry(),
		recent:    newHistoryRing(cfg.HistorySize),
	}
}

// Start begins an asynchronous conversion.
// Returns the conversion ID immediately. Use SubscribeProgress to get updates.
//
// Start fails with ErrTooManyConversions when the limiter is full. Once
// accepted, a conversion runs to completion or source failure; ctx gates
// admission only.
func (s *Service) Start(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Source == nil {
		return "", ErrNoSource
	}

	if !s.limiter.TryAcquire() {
		conversionsRejected.Inc()
		return "", ErrTooManyConversions
	}

	id := uuid.New().String()
	job := newConversion(id, req)
	s.jobs.add(job)
	conversionsStarted.Inc()

	// Process in background
	go func() {
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in conversion",
					"conversion_id", id,
					"panic", r,
				)
				job.fail(fmt.Sprintf("internal error: %v", r))
				s.finish(job)
			}
		}()

		s.run(job)
	}()

	return id, nil
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the conversion finishes. Subscribing to a
// finished conversion still delivers its terminal progress.
func (s *Service) SubscribeProgress(id string) (<-chan Progress, error) {
	job, ok := s.jobs.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.subscribe(), nil
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(id string) (Progress, error) {
	job, ok := s.jobs.get(id)
	if !ok {
		return Progress{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.snapshot(), nil
}

// Result returns the result of a finished conversion.
// Blocks until the conversion finishes if still in progress.
func (s *Service) Result(ctx context.Context, id string) (*Result, error) {
	job, ok := s.jobs.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	select {
	case <-job.done:
		return job.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Readings returns a copy of the readings a conversion has emitted so far.
// It does not wait for the conversion to finish.
func (s *Service) Readings(id string) ([]nem12.MeterReading, error) {
	job, ok := s.jobs.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.readings(), nil
}

// Script returns the newline-joined statement text of a finished conversion,
// blocking until it finishes. A failed conversion yields an empty script.
func (s *Service) Script(ctx context.Context, id string) (string, error) {
	job, ok := s.jobs.get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	select {
	case <-job.done:
		return job.script(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// History returns summaries of recently finished conversions, newest first.
func (s *Service) History() []Summary {
	return s.recent.list()
}

// Queue reports the limiter's current occupancy.
func (s *Service) Queue() LimiterStatus {
	return s.limiter.Status()
}

// FlushFinished drops every finished conversion from the registry and
// returns how many were removed. Running conversions are untouched.
func (s *Service) FlushFinished() int {
	return s.jobs.removeFinished()
}

// WaitForDrain blocks until no conversions are running or ctx is done.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
