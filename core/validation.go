package core

import "fmt"

// Validate checks that a segment is well formed enough to dispatch.
// A heading with an empty text would produce an empty prompt, so empty text is
// rejected for every kind.
func (s *Segment) Validate() error {
	if s.Id == "" {
		return ErrEmptySegmentId
	}
	if s.Text == "" {
		return fmt.Errorf("%w: segment %s", ErrEmptySegmentText, s.Id)
	}
	switch s.Kind {
	case KindParagraph, KindHeading, KindSection:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSegmentKind, s.Kind)
	}
}

// Validate checks the structural invariant on a payload: all three top-level
// arrays must be present (possibly empty, never nil).
func (p *Payload) Validate() error {
	if p.Entities == nil || p.Events == nil || p.Relations == nil {
		return ErrMissingPayloadArrays
	}
	return nil
}
