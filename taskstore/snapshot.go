package taskstore

import (
	"fmt"
	"time"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/forestrie/go-taskstore/keys"
	"github.com/forestrie/go-taskstore/tasks"
	"github.com/google/uuid"
)

// newly registered task types logged when the previous interval restored
// cache entries from disk
const maxLoggedNewTasks = 10

// SaveSnapshot persists one batch from the engine in a single write
// transaction:
//
//   - every registration is written to both the forward and the reverse task
//     cache, and the next free task id is raised past every registered id
//   - operations replaces the previously stored journal
//   - updates are merged, per task, into the stored data items
//
// Either all of it becomes visible or, on error, none of it does. The inputs
// are not modified so the caller can retry the same batch.
func (s *Store) SaveSnapshot(
	operations []tasks.AnyOperation,
	registrations []tasks.TaskRegistration,
	updates []tasks.CachedDataUpdate,
) error {
	snapshotID := uuid.New()

	restoredTasks, restoredCacheEntries := s.counters.Drain()
	s.log.Infof("snapshot %s: restored %d tasks, %d cache entries", snapshotID, restoredTasks, restoredCacheEntries)
	if restoredCacheEntries > 0 {
		for i, r := range registrations {
			if i > maxLoggedNewTasks {
				break
			}
			s.log.Debugf("snapshot %s: new task: %v", snapshotID, r.Type)
		}
	}
	s.log.Infof("snapshot %s: persisting %d operations, %d task cache updates, %d data updates",
		snapshotID, len(operations), len(registrations), len(updates))

	grouped, err := groupUpdates(updates)
	if err != nil {
		return &SnapshotError{ID: snapshotID, Err: err}
	}

	start := time.Now()
	var opCount int
	err = s.env.Update(func(txn *lmdb.Txn) error {
		opCount = 0
		w := snapshotWriter{s: s, txn: txn}

		next, err := s.nextFreeTaskID(txn)
		if err != nil {
			return err
		}

		if next, err = w.writeRegistrations(registrations, next); err != nil {
			return err
		}

		// Data for a task that has no cache entry still claims its id
		if highest := grouped.maxTaskID(); uint32(highest) >= next {
			next = uint32(highest) + 1
		}
		if err = w.writeNextFreeTaskID(next); err != nil {
			return err
		}
		if err = w.writeOperations(operations); err != nil {
			return err
		}
		if err = w.writeData(grouped); err != nil {
			return err
		}
		opCount = w.opCount
		return nil
	})
	if err != nil {
		return &SnapshotError{ID: snapshotID, Err: err}
	}
	s.log.Infof("snapshot %s: persisted %d db entries after %v", snapshotID, opCount, time.Since(start))
	return nil
}

// snapshotWriter holds the state of one SaveSnapshot write transaction
type snapshotWriter struct {
	s       *Store
	txn     *lmdb.Txn
	opCount int
}

// writeRegistrations writes the forward and reverse task cache entries and
// returns next raised past every registered id. The order of the
// registrations does not affect the result.
func (w *snapshotWriter) writeRegistrations(registrations []tasks.TaskRegistration, next uint32) (uint32, error) {
	s := w.s
	for _, r := range registrations {
		if r.Type == nil {
			return 0, fmt.Errorf("%w: %s", ErrNilTaskType, r.ID)
		}
		if r.ID == tasks.InvalidTaskID {
			return 0, fmt.Errorf("%w: %v", ErrInvalidTaskID, r.Type)
		}
		id := uint32(r.ID)
		if id == ^uint32(0) {
			return 0, fmt.Errorf("%w: %v => %d", ErrTaskIDRange, r.Type, id)
		}

		typeBytes, err := s.codec.MarshalCBOR(r.Type)
		if err != nil {
			return 0, fmt.Errorf("%w: %v: %w", ErrEncodeTaskType, r.Type, err)
		}
		if s.opts.verifySerialization {
			var check tasks.CachedTaskType
			if err := s.codec.UnmarshalInto(typeBytes, &check); err != nil {
				return 0, fmt.Errorf("%w: %s: %v: %w: %s", ErrTaskTypeNotDecodable, r.ID, r.Type, err, diagnose(typeBytes))
			}
		}

		err = s.extKeys.Put(w.txn, s.forwardDB, typeBytes, keys.Uint32Bytes(id), 0)
		if err != nil {
			return 0, fmt.Errorf("unable to write task cache %v => %d: %w", r.Type, id, err)
		}
		err = w.txn.Put(s.reverseDB, keys.NewIntKey(id).Bytes(), typeBytes, 0)
		if err != nil {
			return 0, fmt.Errorf("unable to write task cache %d => %v: %w", id, r.Type, err)
		}
		w.opCount += 2
		if id >= next {
			next = id + 1
		}
	}
	return next, nil
}

func (w *snapshotWriter) writeNextFreeTaskID(next uint32) error {
	err := w.txn.Put(w.s.metaDB, metaKeyNextFreeTaskID.Bytes(), keys.Uint32Bytes(next), 0)
	if err != nil {
		return fmt.Errorf("unable to write next free task id: %w", err)
	}
	w.opCount++
	return nil
}

// writeOperations replaces the stored journal. It is never appended to.
func (w *snapshotWriter) writeOperations(operations []tasks.AnyOperation) error {
	if operations == nil {
		operations = []tasks.AnyOperation{}
	}
	data, err := w.s.codec.MarshalCBOR(operations)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeOperations, err)
	}
	if err = w.txn.Put(w.s.metaDB, metaKeyOperations.Bytes(), data, 0); err != nil {
		return fmt.Errorf("unable to write operations: %w", err)
	}
	w.opCount++
	return nil
}

// writeData merges the updates of each task into its stored items. A task
// whose items are all removed keeps an empty record.
func (w *snapshotWriter) writeData(grouped taskUpdates) error {
	s := w.s
	for _, id := range grouped.order {
		items, err := s.readItemMap(w.txn, id)
		if err != nil {
			return err
		}
		applyUpdates(items, grouped.byTask[id])

		data, err := s.encodeItems(id, collectItems(items))
		if err != nil {
			return err
		}
		if err = w.txn.Put(s.dataDB, keys.NewIntKey(uint32(id)).Bytes(), data, 0); err != nil {
			return fmt.Errorf("unable to write data items for %s: %w", id, err)
		}
		w.opCount++
	}
	return nil
}
