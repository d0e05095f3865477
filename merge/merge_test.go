package merge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhensxz/wuzhou-kg/core"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func result(id, work, volume string, p core.Payload) *core.ExtractionResult {
	return &core.ExtractionResult{SegmentId: id, Work: work, Volume: volume, Payload: p}
}

func TestMergeDeduplicatesEntities(t *testing.T) {
	results := []*core.ExtractionResult{
		result("sec_0001", "資治通鑑", "190", core.Payload{
			Entities: []json.RawMessage{
				raw(`{"name":"李世民","type":"PERSON","aliases":["秦王"],"evidence":["秦王世民攻洛陽"]}`),
			},
			Events:    []json.RawMessage{},
			Relations: []json.RawMessage{},
		}),
		result("sec_0002", "資治通鑑", "190", core.Payload{
			Entities: []json.RawMessage{
				raw(`{"name":"李世民 ","type":"PERSON","aliases":["秦王","太宗"],"evidence":["世民執竇建德"]}`),
			},
			Events:    []json.RawMessage{},
			Relations: []json.RawMessage{},
		}),
	}

	graphs, err := Merge(results)
	require.NoError(t, err)
	require.Len(t, graphs, 1)

	g := graphs[0]
	require.Len(t, g.Entities, 1, "same normalized name must merge")

	entity := g.Entities[0]
	assert.Equal(t, "李世民", entity["name"])
	assert.ElementsMatch(t, []any{"秦王", "太宗"}, entity["aliases"])
	assert.ElementsMatch(t, []any{"秦王世民攻洛陽", "世民執竇建德"}, entity["evidence"])

	require.Len(t, g.Sections, 2)
	assert.Equal(t, "sec_0001", g.Sections[0].SegmentId)
}

func TestMergeDeduplicatesRelationsAndEvents(t *testing.T) {
	rel := `{"type":"PERSON_PERSON","from":"李世民","to":"竇建德","relation":"擒獲","evidence":"世民執竇建德"}`
	evt := `{"event_name":"虎牢之戰","time":"武德四年五月","place":"虎牢","participants":["李世民 ","竇建德"],"evidence":["相持於虎牢"]}`

	payload := core.Payload{
		Entities:  []json.RawMessage{},
		Events:    []json.RawMessage{raw(evt)},
		Relations: []json.RawMessage{raw(rel)},
	}

	graphs, err := Merge([]*core.ExtractionResult{
		result("sec_0001", "資治通鑑", "189", payload),
		result("sec_0002", "資治通鑑", "189", payload),
	})
	require.NoError(t, err)
	require.Len(t, graphs, 1)

	g := graphs[0]
	assert.Len(t, g.Relations, 1, "identical relations collapse")
	assert.Len(t, g.Events, 1, "identical events collapse")
	assert.Equal(t, []any{"李世民", "竇建德"}, g.Events[0]["participants"], "participants are normalized")
}

func TestMergeGroupsByVolume(t *testing.T) {
	empty := core.Payload{
		Entities:  []json.RawMessage{},
		Events:    []json.RawMessage{},
		Relations: []json.RawMessage{},
	}

	graphs, err := Merge([]*core.ExtractionResult{
		result("a", "新唐書", "2", empty),
		result("b", "新唐書", "1", empty),
		result("c", "資治通鑑", "190", empty),
	})
	require.NoError(t, err)
	require.Len(t, graphs, 3)

	assert.Equal(t, "新唐書", graphs[0].Work)
	assert.Equal(t, "1", graphs[0].Volume)
	assert.Equal(t, "2", graphs[1].Volume)
	assert.Equal(t, "資治通鑑", graphs[2].Work)
}

func TestMergeEmptyInput(t *testing.T) {
	graphs, err := Merge(nil)
	require.NoError(t, err)
	assert.Empty(t, graphs)
}

func TestMergeRejectsUndecodableElement(t *testing.T) {
	_, err := Merge([]*core.ExtractionResult{
		result("x", "w", "1", core.Payload{
			Entities:  []json.RawMessage{raw(`["not an object"]`)},
			Events:    []json.RawMessage{},
			Relations: []json.RawMessage{},
		}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x")
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "李世民", NormalizeName(" 李世民 "))
	assert.Equal(t, "劉黑闥（漢東王）", NormalizeName("劉黑闥(漢東王)"))
	assert.Equal(t, "", NormalizeName("  "))
}
