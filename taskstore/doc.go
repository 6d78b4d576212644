// Package taskstore is the durable backing store for the task cache of an
// incremental execution engine.
//
// The store persists three things in one LMDB environment: the mapping between
// task types and task ids (in both directions), the cached data items of each
// task, and the journal of operations that were not fully applied when the
// last snapshot was taken. The engine accumulates changes in memory and hands
// them to SaveSnapshot in batches; each batch is applied in a single write
// transaction. Lookups may run at any time and never block on, or observe a
// partially applied, snapshot.
//
//	s, err := taskstore.Open(log, dir)
//	next := s.NextFreeTaskID()
//	ops := s.UncompletedOperations()
//	err = s.SaveSnapshot(ops, registrations, updates)
//	id, ok := s.ForwardLookup(taskType)
//
// Read paths never fail. Any error while reading is logged and reported as a
// cache miss, the data on disk is left untouched for a later read.
package taskstore
