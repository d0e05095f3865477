// Copyright 2025 The wuzhou-kg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/zhensxz/wuzhou-kg/core"
	"github.com/zhensxz/wuzhou-kg/extract"
	"github.com/zhensxz/wuzhou-kg/ledger"
	"github.com/zhensxz/wuzhou-kg/sink"
)

// Extractor is the single-attempt extraction contract the scheduler drives.
type Extractor interface {
	Extract(ctx context.Context, seg *core.Segment) (*core.ExtractionResult, error)
}

// Config holds the scheduler's run policy.
type Config struct {
	// Concurrency is the maximum number of extraction calls in flight.
	Concurrency int

	// MaxAttempts is the per-segment ceiling for retryable failures.
	// Malformed responses are capped at two attempts regardless.
	MaxAttempts int

	// BackoffBase and BackoffMax bound the exponential retry delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// RetryFailed readmits segments the ledger already records as failed.
	RetryFailed bool

	// ReportInterval is how often progress is rendered. Zero disables the
	// reporter.
	ReportInterval time.Duration
}

// DefaultConfig returns the run policy defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:    4,
		MaxAttempts:    3,
		BackoffBase:    time.Second,
		BackoffMax:     time.Minute,
		ReportInterval: 30 * time.Second,
	}
}

// Validate checks the run policy.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	return nil
}

// Summary is the user-facing outcome of a run.
type Summary struct {
	Skipped  int64
	Done     int64
	Failed   int64
	Attempts int64
	Failures []core.LedgerEntry
}

// Scheduler dispatches segments to the extraction client under a concurrency
// bound, records terminal outcomes, and survives partial failure.
type Scheduler struct {
	client Extractor
	ledger *ledger.Writer
	sink   *sink.Writer
	cfg    Config

	stats     Stats
	logger    *slog.Logger
	progressW io.Writer

	pool    *ants.Pool
	pending chan *attempt
	wg      sync.WaitGroup

	remaining atomic.Int64
	allDone   chan struct{}
	doneOnce  sync.Once

	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	fatalMu  sync.Mutex
	fatal    error

	failMu   sync.Mutex
	failures []core.LedgerEntry
}

type attempt struct {
	seg *core.Segment
	n   int // 1-based attempt number
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProgressWriter sets where progress lines are rendered.
// Default is os.Stderr.
func WithProgressWriter(w io.Writer) Option {
	return func(s *Scheduler) {
		if w != nil {
			s.progressW = w
		}
	}
}

// NewScheduler creates a scheduler over the given client, ledger and sink.
func NewScheduler(client Extractor, lw *ledger.Writer, sw *sink.Writer, cfg Config, opts ...Option) (*Scheduler, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if lw == nil {
		return nil, ErrLedgerRequired
	}
	if sw == nil {
		return nil, ErrSinkRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	s := &Scheduler{
		client:    client,
		ledger:    lw,
		sink:      sw,
		cfg:       cfg,
		logger:    slog.Default().With("component", "scheduler"),
		progressW: os.Stderr,
		pool:      pool,
		allDone:   make(chan struct{}),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run processes every non-terminal segment to a terminal outcome and returns
// a summary. Cancelling ctx stops admission; in-flight attempts are abandoned
// and their segments stay pending for the next run. A ledger or sink write
// failure stops admission, drains in-flight work, and is returned as the
// run's error.
func (s *Scheduler) Run(ctx context.Context, segments []*core.Segment, state *ledger.State) (*Summary, error) {
	defer s.pool.Release()

	work := s.workSet(segments, state)
	s.stats.Total.Store(int64(len(work)))
	s.remaining.Store(int64(len(work)))

	s.logger.Info("run starting",
		"segments", len(segments),
		"pending", len(work),
		"skipped", s.stats.Skipped.Load(),
		"concurrency", s.cfg.Concurrency)

	if len(work) == 0 {
		return s.summary(), nil
	}

	// Each segment has at most one queued attempt at a time, so the work-set
	// size bounds the queue.
	s.pending = make(chan *attempt, len(work))
	for _, seg := range work {
		s.pending <- &attempt{seg: seg, n: 1}
	}

	reporterCtx, stopReporter := context.WithCancel(context.Background())
	defer stopReporter()
	if s.cfg.ReportInterval > 0 {
		go NewReporter(&s.stats, s.progressW, s.cfg.ReportInterval).Run(reporterCtx)
	}

dispatch:
	for {
		select {
		case <-ctx.Done():
			s.stopped.Store(true)
			break dispatch
		case <-s.stopCh:
			break dispatch
		case <-s.allDone:
			break dispatch
		case a := <-s.pending:
			s.wg.Add(1)
			task := a
			if err := s.pool.Submit(func() {
				defer s.wg.Done()
				s.runAttempt(ctx, task)
			}); err != nil {
				s.wg.Done()
				s.recordFatal(fmt.Errorf("submit attempt for %s: %w", task.seg.Id, err))
				break dispatch
			}
		}
	}

	// No new admissions past this point; let in-flight calls resolve.
	s.wg.Wait()
	stopReporter()

	summary := s.summary()

	s.fatalMu.Lock()
	fatal := s.fatal
	s.fatalMu.Unlock()
	if fatal != nil {
		return summary, fatal
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// workSet filters the source sequence against the replayed ledger.
func (s *Scheduler) workSet(segments []*core.Segment, state *ledger.State) []*core.Segment {
	var work []*core.Segment
	for _, seg := range segments {
		status, terminal := state.Status(seg.Id)
		if terminal {
			if status == core.StatusDone || !s.cfg.RetryFailed {
				s.stats.Skipped.Add(1)
				continue
			}
		}
		work = append(work, seg)
	}
	return work
}

// runAttempt drives one extraction call and routes its outcome.
func (s *Scheduler) runAttempt(ctx context.Context, a *attempt) {
	if s.stopped.Load() || ctx.Err() != nil {
		// Abandoned while queued: no terminal outcome, the segment is
		// reprocessed on the next run.
		return
	}

	s.stats.Attempts.Add(1)
	s.stats.InFlight.Add(1)
	result, err := s.client.Extract(ctx, a.seg)
	s.stats.InFlight.Add(-1)

	if err == nil {
		s.complete(a.seg, result)
		return
	}
	if ctx.Err() != nil {
		// The call died with the run's cancellation, not on its own merits.
		return
	}

	kind := extract.KindOf(err)
	if kind.Retryable() && a.n < s.attemptCeiling(kind) {
		s.reschedule(ctx, a, err)
		return
	}

	s.fail(a.seg, a.n, kind, err)
}

// complete appends the result and only then records done, preserving the
// "every done entry has an output record" invariant.
func (s *Scheduler) complete(seg *core.Segment, result *core.ExtractionResult) {
	if err := s.sink.Append(result); err != nil {
		s.recordFatal(err)
		return
	}
	if err := s.ledger.Done(seg.Id); err != nil {
		s.recordFatal(err)
		return
	}

	s.stats.Done.Add(1)
	s.stats.markSeen(seg.Id)
	s.logger.Debug("segment done", "segment", seg.Id)
	s.resolve()
}

// fail records a terminal failure. A segment failing never aborts the run.
func (s *Scheduler) fail(seg *core.Segment, attempts int, kind extract.FailureKind, err error) {
	reason := fmt.Sprintf("%s after %d attempt(s): %v", kind, attempts, err)
	if lerr := s.ledger.Failed(seg.Id, reason); lerr != nil {
		s.recordFatal(lerr)
		return
	}

	s.failMu.Lock()
	s.failures = append(s.failures, core.LedgerEntry{
		SegmentId: seg.Id,
		Status:    core.StatusFailed,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	s.failMu.Unlock()

	s.stats.Failed.Add(1)
	s.stats.markSeen(seg.Id)
	s.logger.Warn("segment failed", "segment", seg.Id, "attempts", attempts, "reason", reason)
	s.resolve()
}

// reschedule returns the segment to the pending queue after a backoff delay.
// The worker slot is released immediately; only a timer waits out the delay.
func (s *Scheduler) reschedule(ctx context.Context, a *attempt, err error) {
	delay := Backoff(a.n, s.cfg.BackoffBase, s.cfg.BackoffMax, extract.RetryAfterHint(err))
	s.stats.Retries.Add(1)
	s.logger.Debug("attempt failed, rescheduling",
		"segment", a.seg.Id, "attempt", a.n, "delay", delay, "err", err)

	next := &attempt{seg: a.seg, n: a.n + 1}
	time.AfterFunc(delay, func() {
		if s.stopped.Load() || ctx.Err() != nil {
			return
		}
		s.pending <- next
	})
}

// resolve marks one work-set segment terminal.
func (s *Scheduler) resolve() {
	if s.remaining.Add(-1) == 0 {
		s.doneOnce.Do(func() { close(s.allDone) })
	}
}

// recordFatal captures the first run-level error and stops admission.
// Durability can no longer be guaranteed, so continuing would risk paying for
// extractions whose outcomes cannot be recorded.
func (s *Scheduler) recordFatal(err error) {
	s.fatalMu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.fatalMu.Unlock()

	s.logger.Error("fatal run error, draining in-flight work", "err", err)
	s.stopped.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// attemptCeiling caps attempts per failure kind: malformed responses get one
// retry, everything retryable gets the configured ceiling.
func (s *Scheduler) attemptCeiling(kind extract.FailureKind) int {
	if kind == extract.FailureMalformed && s.cfg.MaxAttempts > 2 {
		return 2
	}
	return s.cfg.MaxAttempts
}

func (s *Scheduler) summary() *Summary {
	snap := s.stats.Snapshot()

	s.failMu.Lock()
	failures := make([]core.LedgerEntry, len(s.failures))
	copy(failures, s.failures)
	s.failMu.Unlock()

	return &Summary{
		Skipped:  snap.Skipped,
		Done:     snap.Done,
		Failed:   snap.Failed,
		Attempts: snap.Attempts,
		Failures: failures,
	}
}
