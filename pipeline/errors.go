package pipeline

import "errors"

var (
	// ErrClientRequired indicates the scheduler was built without a client.
	ErrClientRequired = errors.New("extraction client is required")

	// ErrLedgerRequired indicates the scheduler was built without a ledger writer.
	ErrLedgerRequired = errors.New("ledger writer is required")

	// ErrSinkRequired indicates the scheduler was built without a result sink.
	ErrSinkRequired = errors.New("result sink is required")

	// ErrInvalidConcurrency indicates a non-positive concurrency limit.
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")

	// ErrInvalidMaxAttempts indicates a non-positive attempt ceiling.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")
)
