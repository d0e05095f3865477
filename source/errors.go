package source

import "errors"

var (
	// ErrBadRecord indicates an input line that does not parse as a segment
	// record. Malformed input is fatal for the run.
	ErrBadRecord = errors.New("malformed segment record")

	// ErrDuplicateId indicates two segments in one input sharing an id.
	// Segment ids must be unique within a job for the ledger to be meaningful.
	ErrDuplicateId = errors.New("duplicate segment id")
)
