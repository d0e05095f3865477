package ledger

import "errors"

var (
	// ErrCorruptTail indicates unparseable trailing data in the ledger file.
	// Load discards the tail and proceeds; the error is surfaced only through
	// State.Truncated for logging.
	ErrCorruptTail = errors.New("corrupt ledger tail")

	// ErrClosed indicates an append after the writer was closed.
	ErrClosed = errors.New("ledger writer is closed")
)
