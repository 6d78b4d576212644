package taskstore

import (
	"sync"
	"testing"

	"github.com/forestrie/go-taskstore/keys"
	"github.com/forestrie/go-taskstore/tasks"
	"github.com/forestrie/go-taskstore/taskstoretesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_counters(t *testing.T) {
	s := newTestStore(t)
	taskType := s.g.NewTaskType("counted", 0)
	require.NoError(t, s.SaveSnapshot(nil, []tasks.TaskRegistration{{Type: taskType, ID: 1}},
		[]tasks.CachedDataUpdate{tasks.SetItem(1, outputKey, "out")}))

	load := func() [2]uint64 {
		restoredTasks, restoredCacheEntries := s.Counters().Load()
		return [2]uint64{restoredTasks, restoredCacheEntries}
	}

	_, ok := s.ForwardLookup(taskType)
	require.True(t, ok)
	assert.Equal(t, [2]uint64{0, 1}, load())

	_, ok = s.ReverseLookup(1)
	require.True(t, ok)
	assert.Equal(t, [2]uint64{0, 2}, load())

	require.Len(t, s.LookupData(1), 1)
	assert.Equal(t, [2]uint64{1, 2}, load())

	// misses are not counted
	_, ok = s.ForwardLookup(s.g.NewTaskType("missing", 0))
	assert.False(t, ok)
	_, ok = s.ReverseLookup(2)
	assert.False(t, ok)
	assert.Empty(t, s.LookupData(2))
	_, ok = s.ForwardLookup(nil)
	assert.False(t, ok)
	assert.Equal(t, [2]uint64{1, 2}, load())

	restoredTasks, restoredCacheEntries := s.DrainCounters()
	assert.Equal(t, uint64(1), restoredTasks)
	assert.Equal(t, uint64(2), restoredCacheEntries)
	assert.Equal(t, [2]uint64{0, 0}, load())
}

func TestReverseLookup_corrupt(t *testing.T) {
	s := newTestStore(t)
	s.putRaw(s.reverseDB, keys.NewIntKey(5).Bytes(), []byte{0xa1, 0x01})

	_, ok := s.ReverseLookup(5)
	assert.False(t, ok)
	_, restoredCacheEntries := s.Counters().Load()
	assert.Zero(t, restoredCacheEntries)
}

func TestForwardLookup_badValue(t *testing.T) {
	s := newTestStore(t)
	taskType := s.g.NewTaskType("bad", 0)
	typeBytes, err := s.codec.MarshalCBOR(taskType)
	require.NoError(t, err)
	s.putRaw(s.forwardDB, typeBytes, []byte{1, 2, 3})

	_, ok := s.ForwardLookup(taskType)
	assert.False(t, ok)
}

func TestView_consistentSnapshot(t *testing.T) {
	s := newTestStore(t)

	before := s.g.NewTaskType("before", 0)
	require.NoError(t, s.SaveSnapshot(nil, []tasks.TaskRegistration{{Type: before, ID: 1}},
		[]tasks.CachedDataUpdate{tasks.SetItem(1, outputKey, "v1")}))

	after := s.g.NewTaskType("after", 0)
	err := s.View(func(r *ReadView) error {
		done := make(chan error)
		go func() {
			done <- s.SaveSnapshot(nil, []tasks.TaskRegistration{{Type: after, ID: 2}},
				[]tasks.CachedDataUpdate{tasks.SetItem(1, outputKey, "v2")})
		}()
		require.NoError(t, <-done)

		// the view still reads the state from before the snapshot
		_, ok := r.ForwardLookup(after)
		assert.False(t, ok)
		_, ok = r.ReverseLookup(2)
		assert.False(t, ok)
		id, ok := r.ForwardLookup(before)
		assert.True(t, ok)
		assert.Equal(t, tasks.TaskID(1), id)
		assert.Equal(t, map[tasks.CachedDataItemKey]any{outputKey: "v1"},
			taskstoretesting.ItemValues(r.LookupData(1)))
		return nil
	})
	require.NoError(t, err)

	id, ok := s.ForwardLookup(after)
	require.True(t, ok)
	assert.Equal(t, tasks.TaskID(2), id)
	assert.Equal(t, map[tasks.CachedDataItemKey]any{outputKey: "v2"},
		taskstoretesting.ItemValues(s.LookupData(1)))
}

func TestLookup_concurrentReaders(t *testing.T) {
	s := newTestStore(t)

	const numTasks = 32
	var registrations []tasks.TaskRegistration
	var updates []tasks.CachedDataUpdate
	for i := 1; i <= numTasks; i++ {
		id := tasks.TaskID(i)
		registrations = append(registrations, tasks.TaskRegistration{Type: s.g.NewTaskType("reader", 600), ID: id})
		updates = append(updates, tasks.SetItem(id, outputKey, id.String()))
	}
	require.NoError(t, s.SaveSnapshot(nil, registrations, updates))

	var wg sync.WaitGroup
	failures := make(chan string, numTasks*2)
	for _, r := range registrations {
		wg.Add(1)
		go func(r tasks.TaskRegistration) {
			defer wg.Done()
			if id, ok := s.ForwardLookup(r.Type); !ok || id != r.ID {
				failures <- "forward " + r.ID.String()
			}
			items := s.LookupData(r.ID)
			if len(items) != 1 || items[0].Value != r.ID.String() {
				failures <- "data " + r.ID.String()
			}
		}(r)
	}

	// a writer may run while the readers do
	require.NoError(t, s.SaveSnapshot([]tasks.AnyOperation{s.g.NewOperation("concurrent")}, nil, nil))

	wg.Wait()
	close(failures)
	for f := range failures {
		t.Errorf("lookup failed: %s", f)
	}
}
