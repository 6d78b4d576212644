package taskstore

import "sync/atomic"

// Counters track how much the engine restored from disk since the last
// snapshot. They are telemetry only, a lost update is cosmetic.
type Counters struct {
	restoredTasks        atomic.Uint64
	restoredCacheEntries atomic.Uint64
}

func (c *Counters) taskRestored() {
	c.restoredTasks.Add(1)
}

func (c *Counters) cacheEntryRestored() {
	c.restoredCacheEntries.Add(1)
}

// Load returns the current values without resetting them
func (c *Counters) Load() (restoredTasks, restoredCacheEntries uint64) {
	return c.restoredTasks.Load(), c.restoredCacheEntries.Load()
}

// Drain returns the current values and resets both counters to zero
func (c *Counters) Drain() (restoredTasks, restoredCacheEntries uint64) {
	return c.restoredTasks.Swap(0), c.restoredCacheEntries.Swap(0)
}

// Counters returns the restore counters of this store. SaveSnapshot drains
// them, so between snapshots they measure the restore activity of one
// interval.
func (s *Store) Counters() *Counters {
	return &s.counters
}

// DrainCounters reads and resets the restore counters
func (s *Store) DrainCounters() (restoredTasks, restoredCacheEntries uint64) {
	return s.counters.Drain()
}
