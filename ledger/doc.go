// Package ledger records terminal per-segment outcomes in an append-only,
// line-oriented log.
//
// The ledger is what makes a multi-hour extraction job resumable: replaying
// the log from empty reconstructs exactly the set of segments that already
// have a terminal outcome, so a restarted run never re-submits work it has
// already paid for. A torn final line from a crash mid-write is discarded on
// load rather than failing the run.
package ledger
