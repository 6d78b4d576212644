package taskstore

import (
	"fmt"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/forestrie/go-taskstore/keys"
	"github.com/forestrie/go-taskstore/tasks"
)

// ReadView runs lookups against a single consistent snapshot of the store.
// It is only valid inside the function passed to View.
type ReadView struct {
	s   *Store
	txn *lmdb.Txn
}

// View calls fn with a ReadView over one read only transaction. Everything
// read through the view reflects the state as of the start of the call,
// regardless of snapshots committed while fn runs. The transaction is
// released when fn returns.
func (s *Store) View(fn func(r *ReadView) error) error {
	return s.env.View(func(txn *lmdb.Txn) error {
		return fn(&ReadView{s: s, txn: txn})
	})
}

// ForwardLookup returns the id of a persisted task type. A miss, or any error
// reading or decoding, returns false.
func (s *Store) ForwardLookup(taskType *tasks.CachedTaskType) (tasks.TaskID, bool) {
	var id tasks.TaskID
	var ok bool
	err := s.View(func(r *ReadView) error {
		id, ok = r.ForwardLookup(taskType)
		return nil
	})
	if err != nil {
		s.log.Infof("looking up task id for %v failed: %v", taskType, err)
		return tasks.InvalidTaskID, false
	}
	return id, ok
}

// ReverseLookup returns the task type persisted for id. A miss, or any error
// reading or decoding, returns false.
func (s *Store) ReverseLookup(id tasks.TaskID) (*tasks.CachedTaskType, bool) {
	var taskType *tasks.CachedTaskType
	var ok bool
	err := s.View(func(r *ReadView) error {
		taskType, ok = r.ReverseLookup(id)
		return nil
	})
	if err != nil {
		s.log.Infof("looking up task type for %s failed: %v", id, err)
		return nil, false
	}
	return taskType, ok
}

// LookupData returns the persisted data items of a task. A task with no
// stored items, an unknown task and a failed read all return an empty result.
func (s *Store) LookupData(id tasks.TaskID) []tasks.CachedDataItem {
	var items []tasks.CachedDataItem
	err := s.View(func(r *ReadView) error {
		items = r.LookupData(id)
		return nil
	})
	if err != nil {
		s.log.Infof("looking up data for %s failed: %v", id, err)
		return nil
	}
	return items
}

func (r *ReadView) ForwardLookup(taskType *tasks.CachedTaskType) (tasks.TaskID, bool) {
	if taskType == nil {
		return tasks.InvalidTaskID, false
	}
	id, found, err := r.forwardLookup(taskType)
	if err != nil {
		r.s.log.Infof("looking up task id for %v failed: %v", taskType, err)
		return tasks.InvalidTaskID, false
	}
	if !found {
		return tasks.InvalidTaskID, false
	}
	r.s.counters.cacheEntryRestored()
	return id, true
}

func (r *ReadView) ReverseLookup(id tasks.TaskID) (*tasks.CachedTaskType, bool) {
	taskType, found, err := r.reverseLookup(id)
	if err != nil {
		r.s.log.Infof("looking up task type for %s failed: %v", id, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	r.s.counters.cacheEntryRestored()
	return taskType, true
}

func (r *ReadView) LookupData(id tasks.TaskID) []tasks.CachedDataItem {
	items, err := r.lookupData(id)
	if err != nil {
		r.s.log.Infof("looking up data for %s failed: %v", id, err)
		return nil
	}
	if len(items) > 0 {
		r.s.counters.taskRestored()
	}
	return items
}

func (r *ReadView) forwardLookup(taskType *tasks.CachedTaskType) (tasks.TaskID, bool, error) {
	typeBytes, err := r.s.codec.MarshalCBOR(taskType)
	if err != nil {
		return tasks.InvalidTaskID, false, fmt.Errorf("%w: %w", ErrEncodeTaskType, err)
	}
	value, err := r.s.extKeys.Get(r.txn, r.s.forwardDB, typeBytes)
	if err != nil {
		if isNotFound(err) {
			return tasks.InvalidTaskID, false, nil
		}
		return tasks.InvalidTaskID, false, err
	}
	id, err := keys.Uint32(value)
	if err != nil {
		return tasks.InvalidTaskID, false, err
	}
	r.s.log.Debugf("forward lookup task cache: key_bytes=%d", len(typeBytes))
	return tasks.TaskID(id), true, nil
}

func (r *ReadView) reverseLookup(id tasks.TaskID) (*tasks.CachedTaskType, bool, error) {
	data, err := r.txn.Get(r.s.reverseDB, keys.NewIntKey(uint32(id)).Bytes())
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	r.s.log.Debugf("reverse lookup task cache: bytes=%d", len(data))

	var taskType tasks.CachedTaskType
	if err = r.s.codec.UnmarshalInto(data, &taskType); err != nil {
		return nil, false, fmt.Errorf("%w: %s", err, diagnose(data))
	}
	return &taskType, true, nil
}

func (r *ReadView) lookupData(id tasks.TaskID) ([]tasks.CachedDataItem, error) {
	data, err := r.txn.Get(r.s.dataDB, keys.NewIntKey(uint32(id)).Bytes())
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	items, err := r.s.decodeItems(id, data)
	if err != nil {
		return nil, err
	}
	r.s.log.Debugf("restore data: bytes=%d, items=%d", len(data), len(items))
	return items, nil
}
