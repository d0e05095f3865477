package core

import (
	"encoding/json"
	"time"
)

// SegmentKind classifies a unit of source text.
type SegmentKind string

const (
	// KindParagraph is a body paragraph of a volume.
	KindParagraph SegmentKind = "paragraph"
	// KindHeading is a section heading within a volume.
	KindHeading SegmentKind = "heading"
	// KindSection is a heading plus its following paragraphs, joined by the
	// source grouper. Sections are the preferred unit for extraction because
	// headings carry the time anchors the surrounding text refers to.
	KindSection SegmentKind = "section"
)

// Segment is one unit of input text submitted for extraction.
// Segments are immutable once read; identity is the Id field, which must be
// unique within a job and stable across runs of the same input.
type Segment struct {
	Id     string      `json:"id"`
	Work   string      `json:"work"`
	Volume string      `json:"volume"`
	Kind   SegmentKind `json:"kind"`
	Title  string      `json:"title,omitempty"`
	Text   string      `json:"text"`
}

// Payload is the structured extraction returned by the model for one segment.
// The pipeline validates its shape (three top-level arrays) but treats the
// element contents as opaque; semantic interpretation belongs to the graph
// import stage downstream.
type Payload struct {
	Entities  []json.RawMessage `json:"entities"`
	Events    []json.RawMessage `json:"events"`
	Relations []json.RawMessage `json:"relations"`
}

// Usage records per-request accounting for one extraction call.
type Usage struct {
	PromptChars  int   `json:"prompt_chars"`
	ContentChars int   `json:"content_chars"`
	ElapsedMS    int64 `json:"elapsed_ms"`
}

// ExtractionResult is the terminal product of one successful extraction.
// It is created exactly once per segment and owned by the result sink after
// creation; it is never mutated.
type ExtractionResult struct {
	SegmentId string    `json:"segment_id"`
	Work      string    `json:"work,omitempty"`
	Volume    string    `json:"volume,omitempty"`
	Title     string    `json:"title,omitempty"`
	Model     string    `json:"model,omitempty"`
	Payload   Payload   `json:"payload"`
	Usage     *Usage    `json:"usage,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is the terminal outcome of a segment.
type Status string

const (
	// StatusDone means the segment was extracted and its result durably written.
	StatusDone Status = "done"
	// StatusFailed means the segment exhausted its attempts or failed permanently.
	StatusFailed Status = "failed"
)

// LedgerEntry is one terminal outcome appended to the progress ledger.
// The ledger is append-only; when replayed, the last entry for a segment id wins.
type LedgerEntry struct {
	SegmentId string    `json:"segment_id"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"ts"`
}
