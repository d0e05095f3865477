package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhensxz/wuzhou-kg/core"
)

func result(id string) *core.ExtractionResult {
	return &core.ExtractionResult{
		SegmentId: id,
		Payload: core.Payload{
			Entities:  []json.RawMessage{json.RawMessage(`{"name":"李淵","type":"PERSON"}`)},
			Events:    []json.RawMessage{},
			Relations: []json.RawMessage{},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestAppendVisibleAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(result("sec_0001")))

	// Do not close: the record must already be visible to a fresh reader.
	results, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sec_0001", results[0].SegmentId)
	assert.Len(t, results[0].Payload.Entities, 1)

	require.NoError(t, w.Close())
}

func TestConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	w, err := Open(path)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, w.Append(result("sec_"+strconv.Itoa(i))))
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	results, err := ReadAll(path)
	require.NoError(t, err)
	assert.Len(t, results, n, "appends must not interleave mid-line")
}

func TestReadAllSkipsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(result("sec_0001")))
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"segment_id":"sec_0002","pay`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	results, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sec_0001", results[0].SegmentId)
}

func TestAppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append(result("x")), ErrClosed)
}
