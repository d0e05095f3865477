package pipeline

import "sync/atomic"

// Stats holds the scheduler's observable counters. All fields are atomics so
// the progress reporter can sample them without taking any lock the workers
// contend on.
type Stats struct {
	Total    atomic.Int64 // size of this run's work set
	Skipped  atomic.Int64 // already terminal in the ledger at startup
	Attempts atomic.Int64 // extraction calls started, retries included
	InFlight atomic.Int64 // extraction calls currently outstanding
	Retries  atomic.Int64 // attempts rescheduled after a retryable failure
	Done     atomic.Int64
	Failed   atomic.Int64

	lastSeen atomic.Value // string: most recently completed segment id
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total    int64
	Skipped  int64
	Attempts int64
	InFlight int64
	Retries  int64
	Done     int64
	Failed   int64
	LastSeen string
}

// Snapshot samples the counters. Eventually consistent: the counters are read
// independently, not under a common lock.
func (s *Stats) Snapshot() Snapshot {
	last, _ := s.lastSeen.Load().(string)
	return Snapshot{
		Total:    s.Total.Load(),
		Skipped:  s.Skipped.Load(),
		Attempts: s.Attempts.Load(),
		InFlight: s.InFlight.Load(),
		Retries:  s.Retries.Load(),
		Done:     s.Done.Load(),
		Failed:   s.Failed.Load(),
		LastSeen: last,
	}
}

// Remaining returns the number of work-set segments with no terminal outcome yet.
func (s Snapshot) Remaining() int64 {
	return s.Total - s.Done - s.Failed
}

func (s *Stats) markSeen(id string) {
	s.lastSeen.Store(id)
}
