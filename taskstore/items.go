package taskstore

import (
	"fmt"
	"slices"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/forestrie/go-taskstore/keys"
	"github.com/forestrie/go-taskstore/tasks"
)

type itemMap map[tasks.CachedDataItemKey]tasks.CachedDataItemValue

// taskUpdates groups a batch of updates by task. Tasks are kept in the order
// they first appear in the batch, and the updates of each task in batch
// order.
type taskUpdates struct {
	order  []tasks.TaskID
	byTask map[tasks.TaskID][]tasks.CachedDataUpdate
}

func groupUpdates(updates []tasks.CachedDataUpdate) (taskUpdates, error) {
	g := taskUpdates{byTask: make(map[tasks.TaskID][]tasks.CachedDataUpdate)}
	for _, u := range updates {
		if u.Task == tasks.InvalidTaskID {
			return taskUpdates{}, fmt.Errorf("%w: data update for %s", ErrInvalidTaskID, u.Key)
		}
		if uint32(u.Task) == ^uint32(0) {
			return taskUpdates{}, fmt.Errorf("%w: data update for %s", ErrTaskIDRange, u.Task)
		}
		if _, ok := g.byTask[u.Task]; !ok {
			g.order = append(g.order, u.Task)
		}
		g.byTask[u.Task] = append(g.byTask[u.Task], u)
	}
	return g, nil
}

// maxTaskID returns the largest task id touched by the batch, or zero
func (g taskUpdates) maxTaskID() tasks.TaskID {
	var highest tasks.TaskID
	for _, id := range g.order {
		if id > highest {
			highest = id
		}
	}
	return highest
}

// applyUpdates applies updates, in order, to the items. A present value
// inserts or replaces, an absent value removes.
func applyUpdates(items itemMap, updates []tasks.CachedDataUpdate) {
	for _, u := range updates {
		if u.Value != nil {
			items[u.Key] = *u.Value
			continue
		}
		delete(items, u.Key)
	}
}

// collectItems returns the items sorted by key, so that equal item sets encode
// to equal bytes. The result is never nil.
func collectItems(items itemMap) []tasks.CachedDataItem {
	collected := make([]tasks.CachedDataItem, 0, len(items))
	for key, value := range items {
		collected = append(collected, tasks.NewCachedDataItem(key, value))
	}
	slices.SortFunc(collected, func(a, b tasks.CachedDataItem) int {
		return a.Key.Compare(b.Key)
	})
	return collected
}

// readItemMap reads the currently stored items of a task. A task with no
// stored items yields an empty map.
func (s *Store) readItemMap(txn *lmdb.Txn, id tasks.TaskID) (itemMap, error) {
	items := make(itemMap)
	data, err := txn.Get(s.dataDB, keys.NewIntKey(uint32(id)).Bytes())
	if err != nil {
		if lmdb.IsNotFound(err) {
			return items, nil
		}
		return nil, fmt.Errorf("unable to read data items for %s: %w", id, err)
	}
	stored, err := s.decodeItems(id, data)
	if err != nil {
		return nil, err
	}
	for _, item := range stored {
		key, value := item.KeyAndValue()
		items[key] = value
	}
	return items, nil
}

// encodeItems encodes the items of one task. The fast path encodes the whole
// slice at once. If that fails, or if serialization is being verified, each
// item is encoded on its own: optional items that fail are dropped, a required
// item that fails is an error.
func (s *Store) encodeItems(id tasks.TaskID, items []tasks.CachedDataItem) ([]byte, error) {
	if !s.opts.verifySerialization {
		data, err := s.codec.MarshalCBOR(items)
		if err == nil {
			return data, nil
		}
		s.log.Debugf("encoding data items for %s failed, checking each item: %v", id, err)
	}

	kept := make([]tasks.CachedDataItem, 0, len(items))
	for _, item := range items {
		data, err := s.codec.MarshalCBOR(&item)
		if err != nil {
			if item.IsOptional() {
				s.log.Infof("skipping non-serializable optional item of %s: %s: %v", id, item.Key, err)
				continue
			}
			return nil, fmt.Errorf("%w: %s: %s: %w", ErrEncodeRequiredItem, id, item.Key, err)
		}
		if s.opts.verifySerialization {
			var check tasks.CachedDataItem
			if err := s.codec.UnmarshalInto(data, &check); err != nil {
				s.log.Infof("data item of %s would not be decodable, skipping %s: %v: %s",
					id, item.Key, err, diagnose(data))
				continue
			}
		}
		kept = append(kept, item)
	}

	data, err := s.codec.MarshalCBOR(kept)
	if err != nil {
		return nil, fmt.Errorf("unable to encode data items for %s: %w", id, err)
	}
	return data, nil
}
