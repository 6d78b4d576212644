package taskstore

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/forestrie/go-taskstore/keys"
	"github.com/forestrie/go-taskstore/tasks"
	"github.com/forestrie/go-taskstore/taskstoretesting"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawItem builds the stored form of an item by hand, so that fields can be
// given types the current decoder rejects
func rawItem(key map[int]any, value any) map[int]any {
	return map[int]any{1: key, 2: value}
}

func encodeRaw(t *testing.T, v any) []byte {
	data, err := cbor.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestDecodeItems(t *testing.T) {
	tests := []struct {
		name      string
		stored    any
		want      map[tasks.CachedDataItemKey]any
		wantErr   error
		errSubstr string
	}{
		{
			name: "decodable",
			stored: []any{
				rawItem(map[int]any{1: 1}, "out"),
				rawItem(map[int]any{1: 3, 2: 4}, "child"),
			},
			want: map[tasks.CachedDataItemKey]any{
				outputKey: "out",
				taskstoretesting.ItemKey(tasks.KindChild, 4): "child",
			},
		},
		{
			name: "optional item dropped",
			stored: []any{
				rawItem(map[int]any{1: 1}, "out"),
				rawItem(map[int]any{1: 4, 3: 7}, "cell"),
			},
			want: map[tasks.CachedDataItemKey]any{outputKey: "out"},
		},
		{
			name: "required item",
			stored: []any{
				rawItem(map[int]any{1: 1}, "out"),
				rawItem(map[int]any{1: 3, 3: 7}, "child"),
			},
			wantErr:   ErrDecodeItems,
			errSubstr: "item 1 (Child)",
		},
		{
			name: "unknown kind",
			stored: []any{
				rawItem(map[int]any{1: 99}, "future"),
			},
			wantErr:   ErrDecodeItems,
			errSubstr: "item 0 (kind unknown",
		},
		{
			name:      "not an array",
			stored:    "not items",
			wantErr:   ErrDecodeItems,
			errSubstr: `"not items"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			items, err := s.decodeItems(1, encodeRaw(t, tt.stored))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "%v", err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, taskstoretesting.ItemValues(items))
		})
	}
}

func TestLookupData_undecodableItems(t *testing.T) {
	s := newTestStore(t)

	// an optional item that no longer decodes is dropped on read
	s.putRaw(s.dataDB, keys.NewIntKey(1).Bytes(), encodeRaw(t, []any{
		rawItem(map[int]any{1: 1}, "out"),
		rawItem(map[int]any{1: 4, 3: 7}, "cell"),
	}))
	assert.Equal(t, map[tasks.CachedDataItemKey]any{outputKey: "out"},
		taskstoretesting.ItemValues(s.LookupData(1)))

	// and the next snapshot for the task rewrites it without the item
	require.NoError(t, s.SaveSnapshot(nil, nil, []tasks.CachedDataUpdate{tasks.SetItem(1, childKey, "child")}))
	assert.Equal(t, map[tasks.CachedDataItemKey]any{outputKey: "out", childKey: "child"},
		taskstoretesting.ItemValues(s.LookupData(1)))

	// a required item that no longer decodes reads as no data, and blocks
	// snapshots that would have to merge into it
	s.putRaw(s.dataDB, keys.NewIntKey(2).Bytes(), encodeRaw(t, []any{
		rawItem(map[int]any{1: 1, 3: 7}, "out"),
	}))
	s.DrainCounters()
	assert.Empty(t, s.LookupData(2))
	restoredTasks, _ := s.Counters().Load()
	assert.Zero(t, restoredTasks)

	err := s.SaveSnapshot(nil, nil, []tasks.CachedDataUpdate{tasks.SetItem(2, childKey, "child")})
	assert.True(t, errors.Is(err, ErrDecodeItems), "%v", err)
}

func TestDiagnose(t *testing.T) {
	assert.Equal(t, "[1, 2]", diagnose([]byte{0x82, 0x01, 0x02}))

	malformed := diagnose([]byte{0x83, 0x01})
	assert.True(t, strings.HasPrefix(malformed, "malformed cbor"), malformed)
	assert.True(t, strings.HasSuffix(malformed, "8301"), malformed)

	long := diagnose(encodeRaw(t, strings.Repeat("x", 2*maxDiagnosticChars)))
	assert.Len(t, long, maxDiagnosticChars+len("..."))
	assert.True(t, strings.HasSuffix(long, "..."))
}

// markerCodec fails to decode anything containing marker
type markerCodec struct {
	Codec
	marker []byte
}

func (c markerCodec) UnmarshalInto(data []byte, o any) error {
	if bytes.Contains(data, c.marker) {
		return errors.New("marker found")
	}
	return c.Codec.UnmarshalInto(data, o)
}

func newMarkerCodec(t *testing.T, marker string) Codec {
	codec, err := NewCBORCodec()
	require.NoError(t, err)
	return markerCodec{Codec: codec, marker: []byte(marker)}
}

func TestVerifySerialization(t *testing.T) {
	const marker = "undecodable"

	t.Run("items", func(t *testing.T) {
		s := newTestStore(t, WithCodec(newMarkerCodec(t, marker)), WithVerifySerialization())
		require.NoError(t, s.SaveSnapshot(nil, nil, []tasks.CachedDataUpdate{
			tasks.SetItem(1, outputKey, "out"),
			tasks.SetItem(1, childKey, marker),
			tasks.SetItem(1, dirtyKey, marker),
		}))
		assert.Equal(t, map[tasks.CachedDataItemKey]any{outputKey: "out"},
			taskstoretesting.ItemValues(s.LookupData(1)))
	})

	t.Run("items not verified", func(t *testing.T) {
		s := newTestStore(t, WithCodec(newMarkerCodec(t, marker)))
		require.NoError(t, s.SaveSnapshot(nil, nil, []tasks.CachedDataUpdate{
			tasks.SetItem(1, outputKey, "out"),
			tasks.SetItem(1, dirtyKey, marker),
		}))
		// the optional item is dropped when read
		assert.Equal(t, map[tasks.CachedDataItemKey]any{outputKey: "out"},
			taskstoretesting.ItemValues(s.LookupData(1)))
	})

	t.Run("task type", func(t *testing.T) {
		s := newTestStore(t, WithCodec(newMarkerCodec(t, marker)), WithVerifySerialization())
		err := s.SaveSnapshot(nil, []tasks.TaskRegistration{
			{Type: &tasks.CachedTaskType{Function: marker}, ID: 1},
		}, nil)
		assert.True(t, errors.Is(err, ErrTaskTypeNotDecodable), "%v", err)
		assert.Equal(t, tasks.TaskID(1), s.NextFreeTaskID())
	})

	t.Run("task type not verified", func(t *testing.T) {
		s := newTestStore(t, WithCodec(newMarkerCodec(t, marker)))
		taskType := &tasks.CachedTaskType{Function: marker}
		require.NoError(t, s.SaveSnapshot(nil, []tasks.TaskRegistration{{Type: taskType, ID: 1}}, nil))

		id, ok := s.ForwardLookup(taskType)
		require.True(t, ok)
		assert.Equal(t, tasks.TaskID(1), id)
		_, ok = s.ReverseLookup(1)
		assert.False(t, ok)
	})
}

func TestProbeKind(t *testing.T) {
	kind, err := probeKind(encodeRaw(t, rawItem(map[int]any{1: 6, 3: 7}, "dependent")))
	require.NoError(t, err)
	assert.Equal(t, tasks.KindOutputDependent, kind)

	_, err = probeKind(encodeRaw(t, rawItem(map[int]any{1: 99}, "future")))
	assert.True(t, errors.Is(err, tasks.ErrUnknownItemKind), "%v", err)
}
