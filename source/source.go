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


package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zhensxz/wuzhou-kg/core"
)

const (
	// maxLineBytes bounds a single input line. Classical-text sections run a
	// few thousand characters; 4 MiB leaves ample headroom.
	maxLineBytes = 4 * 1024 * 1024
)

// Reader produces segments from a newline-delimited JSON file, one line at a
// time, in file order. Blank lines are skipped.
type Reader struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
	seen    map[string]struct{}
}

// Open opens a segment input file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	return &Reader{
		path:    path,
		file:    f,
		scanner: sc,
		seen:    make(map[string]struct{}),
	}, nil
}

// Next returns the next segment in file order, or io.EOF when the input is
// exhausted. A line that does not parse or validate returns an error wrapping
// ErrBadRecord with the offending line number.
func (r *Reader) Next() (*core.Segment, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" {
			continue
		}

		var seg core.Segment
		if err := json.Unmarshal([]byte(text), &seg); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrBadRecord, r.path, r.line, err)
		}
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrBadRecord, r.path, r.line, err)
		}
		if _, dup := r.seen[seg.Id]; dup {
			return nil, fmt.Errorf("%w: %s line %d: id %s", ErrDuplicateId, r.path, r.line, seg.Id)
		}
		r.seen[seg.Id] = struct{}{}

		return &seg, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read source %s: %w", r.path, err)
	}
	return nil, io.EOF
}

// ForEach reads every remaining segment, calling fn for each.
// Iteration stops on the first error from the reader or from fn.
func (r *Reader) ForEach(fn func(*core.Segment) error) error {
	for {
		seg, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(seg); err != nil {
			return err
		}
	}
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll reads the whole file into memory. Convenience for the section
// grouper and for tests; the pipeline itself streams via ForEach.
func ReadAll(path string) ([]*core.Segment, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var segments []*core.Segment
	if err := r.ForEach(func(seg *core.Segment) error {
		segments = append(segments, seg)
		return nil
	}); err != nil {
		return nil, err
	}
	return segments, nil
}
