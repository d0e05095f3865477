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


package merge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zhensxz/wuzhou-kg/core"
)

// SectionRef records which segments contributed to a volume graph.
type SectionRef struct {
	SegmentId string `json:"segment_id"`
	Title     string `json:"title,omitempty"`
}

// VolumeGraph is the consolidated extraction for one volume of one work.
type VolumeGraph struct {
	Work        string           `json:"work"`
	Volume      string           `json:"volume"`
	GeneratedAt time.Time        `json:"generated_at"`
	Entities    []map[string]any `json:"entities"`
	Events      []map[string]any `json:"events"`
	Relations   []map[string]any `json:"relations"`
	Sections    []SectionRef     `json:"sections"`
}

// Merge consolidates extraction results into one graph per (work, volume),
// in deterministic order.
func Merge(results []*core.ExtractionResult) ([]*VolumeGraph, error) {
	type key struct{ work, volume string }

	groups := make(map[key][]*core.ExtractionResult)
	var order []key
	for _, r := range results {
		k := key{r.Work, r.Volume}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].work != order[j].work {
			return order[i].work < order[j].work
		}
		return order[i].volume < order[j].volume
	})

	graphs := make([]*VolumeGraph, 0, len(order))
	for _, k := range order {
		g, err := mergeVolume(k.work, k.volume, groups[k])
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

func mergeVolume(work, volume string, results []*core.ExtractionResult) (*VolumeGraph, error) {
	g := &VolumeGraph{
		Work:        work,
		Volume:      volume,
		GeneratedAt: time.Now().UTC(),
		Entities:    []map[string]any{},
		Events:      []map[string]any{},
		Relations:   []map[string]any{},
	}

	entityByName := make(map[string]map[string]any)
	relSeen := make(map[string]struct{})
	evtSeen := make(map[string]struct{})

	for _, r := range results {
		g.Sections = append(g.Sections, SectionRef{SegmentId: r.SegmentId, Title: r.Title})

		for _, raw := range r.Payload.Entities {
			obj, err := decode(raw, r.SegmentId)
			if err != nil {
				return nil, err
			}
			mergeEntity(g, entityByName, obj)
		}

		for _, raw := range r.Payload.Relations {
			obj, err := decode(raw, r.SegmentId)
			if err != nil {
				return nil, err
			}
			obj["from"] = NormalizeName(str(obj["from"]))
			obj["to"] = NormalizeName(str(obj["to"]))
			k := strings.Join([]string{
				str(obj["type"]), str(obj["from"]), str(obj["to"]),
				str(obj["relation"]), str(obj["evidence"]),
			}, "|")
			if _, dup := relSeen[k]; dup {
				continue
			}
			relSeen[k] = struct{}{}
			g.Relations = append(g.Relations, obj)
		}

		for _, raw := range r.Payload.Events {
			obj, err := decode(raw, r.SegmentId)
			if err != nil {
				return nil, err
			}
			if parts, ok := obj["participants"].([]any); ok {
				normalized := make([]any, 0, len(parts))
				for _, p := range parts {
					if n := NormalizeName(str(p)); n != "" {
						normalized = append(normalized, n)
					}
				}
				obj["participants"] = normalized
			}
			k := strings.Join([]string{
				str(obj["event_name"]), str(obj["time"]),
				str(obj["place"]), firstEvidence(obj),
			}, "|")
			if _, dup := evtSeen[k]; dup {
				continue
			}
			evtSeen[k] = struct{}{}
			g.Events = append(g.Events, obj)
		}
	}

	return g, nil
}

// mergeEntity upserts an entity by normalized name, unioning list fields.
func mergeEntity(g *VolumeGraph, byName map[string]map[string]any, obj map[string]any) {
	name := NormalizeName(str(obj["name"]))
	if name == "" {
		return
	}

	cur, ok := byName[name]
	if !ok {
		obj["name"] = name
		if aliases, isList := obj["aliases"].([]any); isList {
			obj["aliases"] = normalizeStringSet(aliases)
		}
		byName[name] = obj
		g.Entities = append(g.Entities, obj)
		return
	}

	for _, field := range []string{"aliases", "roles", "offices", "evidence"} {
		add, isList := obj[field].([]any)
		if !isList {
			continue
		}
		have, _ := cur[field].([]any)
		cur[field] = unionList(have, add)
	}
}

// unionList appends items from add not already in have, preserving order.
func unionList(have, add []any) []any {
	seen := make(map[string]struct{}, len(have))
	for _, v := range have {
		seen[str(v)] = struct{}{}
	}
	out := have
	for _, v := range add {
		s := str(v)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, v)
	}
	return out
}

// normalizeStringSet normalizes and deduplicates a list of names.
func normalizeStringSet(in []any) []any {
	seen := make(map[string]struct{}, len(in))
	out := make([]any, 0, len(in))
	for _, v := range in {
		n := NormalizeName(str(v))
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func decode(raw json.RawMessage, segmentId string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode payload element from %s: %w", segmentId, err)
	}
	return obj, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func firstEvidence(obj map[string]any) string {
	ev, ok := obj["evidence"].([]any)
	if !ok || len(ev) == 0 {
		return ""
	}
	return str(ev[0])
}
