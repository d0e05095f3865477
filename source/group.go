package source

import (
	"fmt"
	"strings"

	"github.com/zhensxz/wuzhou-kg/core"
)

// Group merges heading and paragraph segments into section segments: each
// heading starts a new section holding the heading text plus every following
// paragraph up to the next heading. Leading paragraphs before the first
// heading form an untitled section.
//
// Section ids are assigned sequentially (sec_0001, sec_0002, ...), so the same
// input always yields the same ids and a run over grouped input resumes
// correctly from its ledger.
func Group(segments []*core.Segment) []*core.Segment {
	var (
		sections []*core.Segment
		heading  *core.Segment
		buf      []*core.Segment
		idx      int
	)

	flush := func() {
		if heading == nil && len(buf) == 0 {
			return
		}

		var parts []string
		first := heading
		if heading != nil {
			parts = append(parts, strings.TrimSpace(heading.Text))
		}
		for _, seg := range buf {
			if first == nil {
				first = seg
			}
			if t := strings.TrimSpace(seg.Text); t != "" {
				parts = append(parts, t)
			}
		}

		text := strings.TrimSpace(strings.Join(parts, "\n"))
		if text == "" {
			heading, buf = nil, nil
			return
		}

		idx++
		section := &core.Segment{
			Id:     fmt.Sprintf("sec_%04d", idx),
			Work:   first.Work,
			Volume: first.Volume,
			Kind:   core.KindSection,
			Text:   text,
		}
		if heading != nil {
			section.Title = strings.TrimSpace(heading.Text)
		}
		sections = append(sections, section)
		heading, buf = nil, nil
	}

	for _, seg := range segments {
		switch seg.Kind {
		case core.KindHeading:
			flush()
			heading = seg
		case core.KindParagraph:
			if strings.TrimSpace(seg.Text) != "" {
				buf = append(buf, seg)
			}
		default:
			// Already grouped input passes through untouched.
			flush()
			sections = append(sections, seg)
			idx++
		}
	}
	flush()

	return sections
}
