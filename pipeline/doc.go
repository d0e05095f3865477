// Package pipeline drives bounded-concurrency extraction over a segment
// source.
//
// The scheduler owns all retry and failure policy: segments are admitted in
// source order, at most N extraction calls are in flight at once, retryable
// failures re-enter the queue after an exponential backoff (without holding a
// worker slot during the delay), and a segment's terminal outcome is recorded
// in the ledger exactly once. A single segment's failure never aborts the run;
// a ledger or sink write failure always does, after in-flight work drains.
package pipeline
