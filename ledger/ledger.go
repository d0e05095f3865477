// Copyright 2025 The wuzhou-kg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zhensxz/wuzhou-kg/core"
)

// State is the replayed content of a ledger file: the authoritative terminal
// outcome per segment id, last entry winning.
type State struct {
	entries map[string]core.LedgerEntry

	// Truncated reports whether a corrupt tail was discarded during Load.
	Truncated bool
}

// Load replays a ledger file into a State. A missing file yields an empty
// state. Unparseable trailing data (a torn write from a crash) is discarded:
// every line before the first malformed one is kept, everything from it on is
// dropped and Truncated is set. The run never fails for a torn last write.
func Load(path string) (*State, error) {
	st := &State{entries: make(map[string]core.LedgerEntry)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var entry core.LedgerEntry
		if err := json.Unmarshal([]byte(text), &entry); err != nil || entry.SegmentId == "" {
			st.Truncated = true
			slog.Warn("discarding corrupt ledger tail",
				"path", path, "line", line, "err", ErrCorruptTail)
			break
		}
		st.entries[entry.SegmentId] = entry
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	return st, nil
}

// Terminal reports whether the segment already has a terminal outcome.
func (s *State) Terminal(id string) bool {
	_, ok := s.entries[id]
	return ok
}

// Status returns the recorded terminal status for a segment, if any.
func (s *State) Status(id string) (core.Status, bool) {
	e, ok := s.entries[id]
	return e.Status, ok
}

// Done reports whether the segment completed successfully.
func (s *State) Done(id string) bool {
	e, ok := s.entries[id]
	return ok && e.Status == core.StatusDone
}

// Counts returns the number of done and failed entries.
func (s *State) Counts() (done, failed int) {
	for _, e := range s.entries {
		if e.Status == core.StatusDone {
			done++
		} else {
			failed++
		}
	}
	return done, failed
}

// Failures returns the recorded entries with failed status.
func (s *State) Failures() []core.LedgerEntry {
	var out []core.LedgerEntry
	for _, e := range s.entries {
		if e.Status == core.StatusFailed {
			out = append(out, e)
		}
	}
	return out
}

// Writer appends terminal outcomes to the ledger file. Appends are serialized
// internally and flushed to disk before returning, so a recorded outcome
// survives a crash immediately after the call.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// OpenWriter opens (creating if needed) the ledger file for appending.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s for append: %w", path, err)
	}
	return &Writer{file: f}, nil
}

// Done records a successful terminal outcome for the segment.
func (w *Writer) Done(segmentId string) error {
	return w.append(core.LedgerEntry{
		SegmentId: segmentId,
		Status:    core.StatusDone,
		Timestamp: time.Now().UTC(),
	})
}

// Failed records a permanent failure for the segment.
func (w *Writer) Failed(segmentId, reason string) error {
	return w.append(core.LedgerEntry{
		SegmentId: segmentId,
		Status:    core.StatusFailed,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

func (w *Writer) append(entry core.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append ledger entry for %s: %w", entry.SegmentId, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

// Close flushes and closes the ledger file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
