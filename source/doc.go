// Package source reads segments from newline-delimited JSON input files.
//
// The reader is lazy (one line at a time), finite, and deterministic: re-opening
// the same file yields the same segments in the same order, which is what makes
// ledger-based resumption reproducible. Malformed lines are a configuration
// problem and fail the whole run.
package source
