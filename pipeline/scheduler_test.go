package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhensxz/wuzhou-kg/core"
	"github.com/zhensxz/wuzhou-kg/extract"
	"github.com/zhensxz/wuzhou-kg/ledger"
	"github.com/zhensxz/wuzhou-kg/sink"
)

// fakeExtractor is a test double for the extraction client. Behavior is
// scripted per segment id as a function of the attempt number (1-based).
type fakeExtractor struct {
	mu       sync.Mutex
	script   map[string]func(attempt int) error
	calls    map[string]int
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		script: make(map[string]func(attempt int) error),
		calls:  make(map[string]int),
	}
}

func (f *fakeExtractor) Extract(ctx context.Context, seg *core.Segment) (*core.ExtractionResult, error) {
	f.mu.Lock()
	f.calls[seg.Id]++
	attempt := f.calls[seg.Id]
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	fn := f.script[seg.Id]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.exit()
			return nil, ctx.Err()
		}
	}

	var err error
	if fn != nil {
		err = fn(attempt)
	}
	f.exit()
	if err != nil {
		return nil, err
	}

	return &core.ExtractionResult{
		SegmentId: seg.Id,
		Payload:   emptyPayload(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeExtractor) exit() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeExtractor) attempts(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeExtractor) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func emptyPayload() core.Payload {
	return core.Payload{
		Entities:  []json.RawMessage{},
		Events:    []json.RawMessage{},
		Relations: []json.RawMessage{},
	}
}

func transient(err string) error {
	return &extract.ServiceError{Kind: extract.FailureTransient, Err: errors.New(err)}
}

func permanent(err string) error {
	return &extract.ServiceError{Kind: extract.FailurePermanent, Err: errors.New(err)}
}

func malformedErr(err string) error {
	return &extract.ServiceError{Kind: extract.FailureMalformed, Err: errors.New(err)}
}

func segments(ids ...string) []*core.Segment {
	out := make([]*core.Segment, len(ids))
	for i, id := range ids {
		out[i] = &core.Segment{Id: id, Kind: core.KindSection, Text: "文"}
	}
	return out
}

type harness struct {
	ledgerPath string
	sinkPath   string
	ledgerW    *ledger.Writer
	sinkW      *sink.Writer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		ledgerPath: filepath.Join(dir, "ledger.jsonl"),
		sinkPath:   filepath.Join(dir, "out.jsonl"),
	}
	h.open(t)
	return h
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	var err error
	h.ledgerW, err = ledger.OpenWriter(h.ledgerPath)
	require.NoError(t, err)
	h.sinkW, err = sink.Open(h.sinkPath)
	require.NoError(t, err)
}

func (h *harness) close() {
	h.ledgerW.Close()
	h.sinkW.Close()
}

func (h *harness) state(t *testing.T) *ledger.State {
	t.Helper()
	st, err := ledger.Load(h.ledgerPath)
	require.NoError(t, err)
	return st
}

func testCfg(concurrency int) Config {
	return Config{
		Concurrency: concurrency,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
}

func run(t *testing.T, h *harness, fe *fakeExtractor, cfg Config, segs []*core.Segment, st *ledger.State) (*Summary, error) {
	t.Helper()
	sched, err := NewScheduler(fe, h.ledgerW, h.sinkW, cfg)
	require.NoError(t, err)
	return sched.Run(context.Background(), segs, st)
}

func TestRunScenarioABC(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	fe := newFakeExtractor()
	fe.script["B"] = func(attempt int) error {
		if attempt <= 2 {
			return transient("status 503")
		}
		return nil
	}
	fe.script["C"] = func(int) error { return permanent("status 400") }

	summary, err := run(t, h, fe, testCfg(2), segments("A", "B", "C"), h.state(t))
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Done)
	assert.Equal(t, int64(1), summary.Failed)
	assert.Equal(t, 3, fe.attempts("B"), "B fails twice, succeeds on the third try")
	assert.Equal(t, 1, fe.attempts("C"), "permanent failures are never retried")

	st := h.state(t)
	assert.True(t, st.Done("A"))
	assert.True(t, st.Done("B"))
	status, ok := st.Status("C")
	require.True(t, ok)
	assert.Equal(t, core.StatusFailed, status)

	results, err := sink.ReadAll(h.sinkPath)
	require.NoError(t, err)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.SegmentId
	}
	assert.ElementsMatch(t, []string{"A", "B"}, ids)

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "C", summary.Failures[0].SegmentId)
	assert.Contains(t, summary.Failures[0].Reason, "permanent")
}

func TestRunEmptyInput(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	summary, err := run(t, h, newFakeExtractor(), testCfg(2), nil, h.state(t))
	require.NoError(t, err)
	assert.Zero(t, summary.Done)
	assert.Zero(t, summary.Failed)

	results, err := sink.ReadAll(h.sinkPath)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunResume(t *testing.T) {
	h := newHarness(t)

	fe := newFakeExtractor()
	fe.script["C"] = func(int) error { return permanent("bad input") }

	_, err := run(t, h, fe, testCfg(2), segments("A", "B", "C"), h.state(t))
	require.NoError(t, err)
	h.close()

	// Second run over a fully terminal ledger performs zero extraction calls.
	h.open(t)
	defer h.close()
	fe2 := newFakeExtractor()
	summary, err := run(t, h, fe2, testCfg(2), segments("A", "B", "C"), h.state(t))
	require.NoError(t, err)

	assert.Zero(t, fe2.totalCalls())
	assert.Equal(t, int64(3), summary.Skipped)
	assert.Zero(t, summary.Done)
}

func TestRunPartialResume(t *testing.T) {
	h := newHarness(t)

	fe := newFakeExtractor()
	_, err := run(t, h, fe, testCfg(2), segments("A", "B"), h.state(t))
	require.NoError(t, err)
	h.close()

	h.open(t)
	defer h.close()
	fe2 := newFakeExtractor()
	summary, err := run(t, h, fe2, testCfg(2), segments("A", "B", "C", "D"), h.state(t))
	require.NoError(t, err)

	assert.Zero(t, fe2.attempts("A"))
	assert.Zero(t, fe2.attempts("B"))
	assert.Equal(t, 1, fe2.attempts("C"))
	assert.Equal(t, 1, fe2.attempts("D"))
	assert.Equal(t, int64(2), summary.Skipped)
	assert.Equal(t, int64(2), summary.Done)
}

func TestRetryFailedFlag(t *testing.T) {
	h := newHarness(t)

	fe := newFakeExtractor()
	fe.script["X"] = func(int) error { return permanent("bad") }
	_, err := run(t, h, fe, testCfg(1), segments("X"), h.state(t))
	require.NoError(t, err)
	h.close()

	// Default: failed segments stay terminal.
	h.open(t)
	fe2 := newFakeExtractor()
	summary, err := run(t, h, fe2, testCfg(1), segments("X"), h.state(t))
	require.NoError(t, err)
	assert.Zero(t, fe2.totalCalls())
	assert.Equal(t, int64(1), summary.Skipped)
	h.close()

	// With RetryFailed, the segment is readmitted.
	h.open(t)
	defer h.close()
	cfg := testCfg(1)
	cfg.RetryFailed = true
	fe3 := newFakeExtractor()
	summary, err = run(t, h, fe3, cfg, segments("X"), h.state(t))
	require.NoError(t, err)
	assert.Equal(t, 1, fe3.totalCalls())
	assert.Equal(t, int64(1), summary.Done)
	assert.True(t, h.state(t).Done("X"), "last ledger entry wins on replay")
}

func TestBoundedRetry(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	fe := newFakeExtractor()
	fe.script["A"] = func(int) error { return transient("always down") }

	summary, err := run(t, h, fe, testCfg(2), segments("A", "B"), h.state(t))
	require.NoError(t, err, "a segment exhausting retries never aborts the run")

	assert.Equal(t, 3, fe.attempts("A"), "retry ceiling caps total attempts")
	assert.Equal(t, int64(1), summary.Done)
	assert.Equal(t, int64(1), summary.Failed)
}

func TestMalformedRetriedOnce(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	fe := newFakeExtractor()
	fe.script["A"] = func(int) error { return malformedErr("missing relations array") }

	summary, err := run(t, h, fe, testCfg(1), segments("A"), h.state(t))
	require.NoError(t, err)

	assert.Equal(t, 2, fe.attempts("A"), "malformed responses get exactly one retry")
	assert.Equal(t, int64(1), summary.Failed)
}

func TestConcurrencyBound(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	fe := newFakeExtractor()
	fe.delay = 10 * time.Millisecond

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = "seg_" + string(rune('a'+i))
	}

	_, err := run(t, h, fe, testCfg(3), segments(ids...), h.state(t))
	require.NoError(t, err)

	assert.LessOrEqual(t, fe.maxSeen, 3, "never more than N calls in flight")
	assert.Equal(t, 20, fe.totalCalls())
}

func TestDoneImpliesSinkRecord(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	fe := newFakeExtractor()
	_, err := run(t, h, fe, testCfg(4), segments("A", "B", "C", "D", "E"), h.state(t))
	require.NoError(t, err)

	st := h.state(t)
	results, err := sink.ReadAll(h.sinkPath)
	require.NoError(t, err)

	have := make(map[string]bool)
	for _, r := range results {
		have[r.SegmentId] = true
	}
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		if st.Done(id) {
			assert.True(t, have[id], "done ledger entry %s must have an output record", id)
		}
	}
}

func TestSinkFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.sinkW.Close() // every append now fails

	fe := newFakeExtractor()
	_, err := run(t, h, fe, testCfg(2), segments("A", "B"), h.state(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, sink.ErrClosed)

	// Durability could not be guaranteed, so nothing may be marked done.
	st := h.state(t)
	assert.False(t, st.Done("A"))
	assert.False(t, st.Done("B"))
	h.ledgerW.Close()
}

func TestLedgerFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.ledgerW.Close()

	fe := newFakeExtractor()
	_, err := run(t, h, fe, testCfg(2), segments("A"), h.state(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrClosed)
	h.sinkW.Close()
}

func TestCancellationStopsAdmission(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	fe := newFakeExtractor()
	fe.delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	sched, err := NewScheduler(fe, h.ledgerW, h.sinkW, testCfg(1))
	require.NoError(t, err)

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = "seg_" + string(rune('a'+i))
	}
	summary, err := sched.Run(ctx, segments(ids...), h.state(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Less(t, fe.totalCalls(), 10, "no new attempts after cancellation")

	// Whatever completed is durably recorded; the rest stays pending.
	st := h.state(t)
	doneCount, _ := st.Counts()
	assert.Equal(t, summary.Done, int64(doneCount))
}

func TestNewSchedulerValidation(t *testing.T) {
	h := newHarness(t)
	defer h.close()

	_, err := NewScheduler(nil, h.ledgerW, h.sinkW, testCfg(1))
	assert.ErrorIs(t, err, ErrClientRequired)

	_, err = NewScheduler(newFakeExtractor(), nil, h.sinkW, testCfg(1))
	assert.ErrorIs(t, err, ErrLedgerRequired)

	_, err = NewScheduler(newFakeExtractor(), h.ledgerW, nil, testCfg(1))
	assert.ErrorIs(t, err, ErrSinkRequired)

	bad := testCfg(0)
	_, err = NewScheduler(newFakeExtractor(), h.ledgerW, h.sinkW, bad)
	assert.ErrorIs(t, err, ErrInvalidConcurrency)

	bad = testCfg(1)
	bad.MaxAttempts = 0
	_, err = NewScheduler(newFakeExtractor(), h.ledgerW, h.sinkW, bad)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}
