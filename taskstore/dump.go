package taskstore

import (
	"fmt"
	"io"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/forestrie/go-taskstore/keys"
	"github.com/forestrie/go-taskstore/tasks"
)

// ForEachTaskData calls fn for every task with a data record, in ascending
// task id order, until fn returns an error. Items that can not be decoded stop
// the scan with an error. The scan runs in a single read only transaction and
// does not count towards the restore counters.
func (s *Store) ForEachTaskData(fn func(id tasks.TaskID, items []tasks.CachedDataItem) error) error {
	return s.env.View(func(txn *lmdb.Txn) error {
		cur, err := txn.OpenCursor(s.dataDB)
		if err != nil {
			return err
		}
		defer cur.Close()

		for {
			k, v, err := cur.Get(nil, nil, lmdb.Next)
			if lmdb.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			id, err := keys.Uint32(k)
			if err != nil {
				return fmt.Errorf("data key %x: %w", k, err)
			}
			items, err := s.decodeItems(tasks.TaskID(id), v)
			if err != nil {
				return err
			}
			if err = fn(tasks.TaskID(id), items); err != nil {
				return err
			}
		}
	})
}

// DumpData writes a human readable listing of every task's data items
func (s *Store) DumpData(w io.Writer) error {
	return s.ForEachTaskData(func(id tasks.TaskID, items []tasks.CachedDataItem) error {
		return WriteTaskData(w, id, items)
	})
}

// WriteTaskData writes the dump format for a single task
func WriteTaskData(w io.Writer, id tasks.TaskID, items []tasks.CachedDataItem) error {
	if _, err := fmt.Fprintf(w, "### %s\n", id); err != nil {
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintf(w, "  %s: %#v\n", item.Key, item.Value); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
