// Package upload pushes large record sets through a persistence gate in
// bounded, strictly sequential chunks with fixed-delay retries.
package upload

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promotoria/comisiones/internal/platform/cache"
)

// Gate persists one chunk and returns how many records were created.
type Gate[T any] interface {
	Upload(ctx context.Context, records []T) (int, error)
}

// GateFunc adapts a function to Gate.
type GateFunc[T any] func(ctx context.Context, records []T) (int, error)

// Upload calls f.
func (f GateFunc[T]) Upload(ctx context.Context, records []T) (int, error) {
	return f(ctx, records)
}

// Config tunes chunking and retries. MaxRetries counts retries after the
// first attempt.
type Config struct {
	ChunkSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	InterChunkDelay time.Duration
}

// DefaultConfig returns the standard upload settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       25,
		MaxRetries:      3,
		RetryDelay:      time.Second,
		InterChunkDelay: 100 * time.Millisecond,
	}
}

// Stage names the point of the run a progress event was emitted at.
type Stage string

const (
	StageStarted      Stage = "started"
	StageChunkAttempt Stage = "chunk_attempt"
	StageRetry        Stage = "retry"
	StageChunkDone    Stage = "chunk_done"
	StageCompleted    Stage = "completed"
)

// Progress is a snapshot of the run emitted to the progress callback.
type Progress struct {
	Stage        Stage         `json:"stage"`
	Chunk        int           `json:"chunk,omitempty"`
	Chunks       int           `json:"chunks"`
	Attempt      int           `json:"attempt,omitempty"`
	State        State         `json:"state,omitempty"`
	Err          error         `json:"-"`
	Processed    int           `json:"processed"`
	Succeeded    int           `json:"succeeded"`
	Total        int           `json:"total"`
	Percent      float64       `json:"percent"`
	Elapsed      time.Duration `json:"elapsed"`
	Remaining    time.Duration `json:"remaining"`
	Throughput   float64       `json:"throughput"`
	FailedChunks []ChunkError  `json:"failed_chunks,omitempty"`
}

// Result is the outcome of a run. OK is true when anything was persisted.
type Result struct {
	RunID        string        `json:"run_id"`
	OK           bool          `json:"ok"`
	TotalRecords int           `json:"total_records"`
	Succeeded    int           `json:"succeeded"`
	FailedChunks []ChunkError  `json:"failed_chunks"`
	Elapsed      time.Duration `json:"-"`
	ElapsedMs    int64         `json:"elapsed_ms"`
	Throughput   float64       `json:"throughput"`
}

// FailedRecords counts records in permanently failed chunks.
func (r Result) FailedRecords() int {
	n := 0
	for _, c := range r.FailedChunks {
		n += c.Size
	}
	return n
}

// Recorder observes chunk outcomes and retries.
type Recorder interface {
	ObserveChunk(outcome string, attempts int, duration time.Duration)
	ObserveRetry()
}

// Pipeline uploads records chunk by chunk. Chunks are never processed in
// parallel and a failed chunk never aborts the run.
type Pipeline[T any] struct {
	gate        Gate[T]
	cfg         Config
	invalidator cache.Invalidator
	recorder    Recorder
	logger      *slog.Logger
	runID       uuid.UUID
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
}

// New constructs a Pipeline. Invalid settings fall back to the defaults.
func New[T any](gate Gate[T], cfg Config, logger *slog.Logger) *Pipeline[T] {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.InterChunkDelay < 0 {
		cfg.InterChunkDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline[T]{
		gate:   gate,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// WithClock overrides the clock for deterministic tests.
func (p *Pipeline[T]) WithClock(now func() time.Time) *Pipeline[T] {
	if now != nil {
		p.now = now
	}
	return p
}

// WithSleep overrides the delay primitive.
func (p *Pipeline[T]) WithSleep(sleep func(context.Context, time.Duration) error) *Pipeline[T] {
	if sleep != nil {
		p.sleep = sleep
	}
	return p
}

// WithInvalidator sets the cache notified after a run that persisted records.
func (p *Pipeline[T]) WithInvalidator(inv cache.Invalidator) *Pipeline[T] {
	p.invalidator = inv
	return p
}

// WithRecorder attaches metrics.
func (p *Pipeline[T]) WithRecorder(rec Recorder) *Pipeline[T] {
	p.recorder = rec
	return p
}

// WithRunID fixes the run identifier, letting the gate tag what it persists
// with the same id the run reports.
func (p *Pipeline[T]) WithRunID(id uuid.UUID) *Pipeline[T] {
	p.runID = id
	return p
}

// Config returns the effective settings.
func (p *Pipeline[T]) Config() Config {
	return p.cfg
}

type run[T any] struct {
	p          *Pipeline[T]
	onProgress func(Progress)
	started    time.Time
	chunks     []*Chunk[T]
	total      int
	processed  int
	succeeded  int
	done       int
	spent      time.Duration
	failed     []ChunkError
}

// Run uploads records and reports progress through onProgress, which may be nil.
// Cancelling ctx stops the run; chunks not yet persisted are reported as failed.
func (p *Pipeline[T]) Run(ctx context.Context, records []T, onProgress func(Progress)) Result {
	r := &run[T]{
		p:          p,
		onProgress: onProgress,
		started:    p.now(),
		chunks:     Split(records, p.cfg.ChunkSize),
		total:      len(records),
	}
	runID := p.runID.String()
	if p.runID == uuid.Nil {
		runID = uuid.NewString()
	}
	logger := p.logger.With(slog.String("run_id", runID))
	logger.Info("upload started", slog.Int("records", r.total), slog.Int("chunks", len(r.chunks)))
	r.emit(Progress{Stage: StageStarted})

	for i, c := range r.chunks {
		if err := ctx.Err(); err != nil {
			r.abandon(c, err)
			continue
		}
		r.upload(ctx, logger, c)
		if c.State == StateSucceeded && i < len(r.chunks)-1 && p.cfg.InterChunkDelay > 0 {
			// A cancelled delay is picked up by the ctx check of the next chunk.
			_ = p.sleep(ctx, p.cfg.InterChunkDelay)
		}
	}

	elapsed := p.now().Sub(r.started)
	res := Result{
		RunID:        runID,
		OK:           r.succeeded > 0,
		TotalRecords: r.total,
		Succeeded:    r.succeeded,
		FailedChunks: append([]ChunkError{}, r.failed...),
		Elapsed:      elapsed,
		ElapsedMs:    elapsed.Milliseconds(),
		Throughput:   rate(r.succeeded, elapsed),
	}
	r.emit(Progress{Stage: StageCompleted})

	if res.OK && p.invalidator != nil {
		if err := p.invalidator.Bump(ctx); err != nil {
			logger.Warn("cache invalidation failed", slog.Any("error", err))
		}
	}
	logger.Info("upload finished",
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed_chunks", len(res.FailedChunks)),
		slog.Int64("elapsed_ms", res.ElapsedMs),
	)
	return res
}

func (r *run[T]) upload(ctx context.Context, logger *slog.Logger, c *Chunk[T]) {
	p := r.p
	attempts := 1 + p.cfg.MaxRetries
	start := p.now()
	c.transition(StateUploading)
	for attempt := 1; attempt <= attempts; attempt++ {
		c.Attempts = attempt
		r.emit(Progress{Stage: StageChunkAttempt, Chunk: c.Index, Attempt: attempt, State: c.State})

		created, err := p.gate.Upload(ctx, c.Records)
		if err == nil {
			c.Created = created
			c.Err = nil
			c.transition(StateSucceeded)
			break
		}
		c.Err = err
		if attempt == attempts || ctx.Err() != nil {
			c.transition(StateFailed)
			break
		}
		c.transition(StateRetrying)
		if p.recorder != nil {
			p.recorder.ObserveRetry()
		}
		logger.Warn("chunk upload failed, retrying",
			slog.Int("chunk", c.Index),
			slog.Int("attempt", attempt),
			slog.Duration("delay", p.cfg.RetryDelay),
			slog.Any("error", err),
		)
		r.emit(Progress{Stage: StageRetry, Chunk: c.Index, Attempt: attempt + 1, State: c.State, Err: err})
		if err := p.sleep(ctx, p.cfg.RetryDelay); err != nil {
			c.Err = errors.Join(c.Err, err)
			c.transition(StateFailed)
			break
		}
		c.transition(StateUploading)
	}
	c.Duration = p.now().Sub(start)
	r.finish(c)

	if c.State == StateFailed {
		logger.Error("chunk upload failed permanently",
			slog.Int("chunk", c.Index),
			slog.Int("offset", c.Offset),
			slog.Int("size", c.Size()),
			slog.Int("attempts", c.Attempts),
			slog.Any("error", c.Err),
		)
	}
	r.emit(Progress{Stage: StageChunkDone, Chunk: c.Index, Attempt: c.Attempts, State: c.State, Err: c.Err})
}

func (r *run[T]) abandon(c *Chunk[T], err error) {
	c.Err = err
	c.transition(StateFailed)
	r.finish(c)
}

func (r *run[T]) finish(c *Chunk[T]) {
	r.done++
	r.spent += c.Duration
	r.processed += c.Size()
	if c.State == StateSucceeded {
		r.succeeded += c.Created
	} else {
		r.failed = append(r.failed, chunkError(c))
	}
	if r.p.recorder != nil {
		r.p.recorder.ObserveChunk(string(c.State), c.Attempts, c.Duration)
	}
}

func (r *run[T]) emit(ev Progress) {
	if r.onProgress == nil {
		return
	}
	elapsed := r.p.now().Sub(r.started)
	ev.Chunks = len(r.chunks)
	ev.Processed = r.processed
	ev.Succeeded = r.succeeded
	ev.Total = r.total
	if r.total > 0 {
		ev.Percent = float64(r.processed) * 100 / float64(r.total)
	} else {
		ev.Percent = 100
	}
	ev.Elapsed = elapsed
	if r.done > 0 {
		avg := r.spent / time.Duration(r.done)
		ev.Remaining = avg * time.Duration(len(r.chunks)-r.done)
	}
	ev.Throughput = rate(r.processed, elapsed)
	ev.FailedChunks = append([]ChunkError(nil), r.failed...)
	r.onProgress(ev)
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
