package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/zhensxz/wuzhou-kg/core"
)

// ErrClosed indicates an append after the writer was closed.
var ErrClosed = errors.New("sink writer is closed")

// Writer appends one JSON record per extraction result to the output file.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// Open opens (creating if needed) the output file for appending.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s for append: %w", path, err)
	}
	return &Writer{file: f}, nil
}

// Append durably writes one result record. Safe for concurrent callers.
func (w *Writer) Append(result *core.ExtractionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for %s: %w", result.SegmentId, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append result for %s: %w", result.SegmentId, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync sink: %w", err)
	}
	return nil
}

// Close flushes and closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// ReadAll replays an output file into memory. Used by the merge stage and by
// tests; unparseable lines are skipped rather than fatal, because a torn last
// write is expected after a crash and such a segment is never ledger-done.
func ReadAll(path string) ([]*core.ExtractionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results %s: %w", path, err)
	}
	defer f.Close()

	var out []*core.ExtractionResult
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var r core.ExtractionResult
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read results %s: %w", path, err)
	}
	return out, nil
}
