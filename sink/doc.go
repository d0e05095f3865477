// Package sink appends extraction results to durable newline-delimited JSON
// output.
//
// Appends are serialized internally and flushed before returning, so a result
// is visible to a reader re-opening the file the moment Append returns. The
// scheduler only records a segment as done in the ledger after its append has
// completed, which is what guarantees that every done entry has a
// corresponding output record.
package sink
