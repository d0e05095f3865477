package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Reporter periodically renders scheduler progress to a writer. It only reads
// the atomic counters, so it can never block or slow the workers.
type Reporter struct {
	stats    *Stats
	writer   io.Writer
	interval time.Duration
}

// NewReporter creates a reporter sampling stats every interval.
func NewReporter(stats *Stats, writer io.Writer, interval time.Duration) *Reporter {
	return &Reporter{
		stats:    stats,
		writer:   writer,
		interval: interval,
	}
}

// Run samples and renders until the context is cancelled, then renders one
// final line.
func (r *Reporter) Run(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report(start)
			fmt.Fprintln(r.writer)
			return
		case <-ticker.C:
			r.report(start)
		}
	}
}

func (r *Reporter) report(start time.Time) {
	snap := r.stats.Snapshot()

	elapsed := time.Since(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(snap.Done+snap.Failed) / elapsed.Minutes()
	}

	fmt.Fprintf(r.writer,
		"\rprogress: %d/%d done, %d failed, %d in flight, %d remaining - %.1f seg/min",
		snap.Done, snap.Total, snap.Failed, snap.InFlight, snap.Remaining(), rate)
	if snap.LastSeen != "" {
		fmt.Fprintf(r.writer, " (last %s)", snap.LastSeen)
	}
}
