package taskstore

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-taskstore/extkey"
	"github.com/forestrie/go-taskstore/keys"
	"github.com/forestrie/go-taskstore/tasks"
)

const (
	envFlags = lmdb.WriteMap | lmdb.NoMetaSync | lmdb.NoTLS
	envMode  = 0o644
	dirMode  = 0o755
)

// Store is the LMDB backed task store. The environment and database handles
// are immutable after Open and the store is safe for concurrent use. Any
// number of lookups may run concurrently with a single SaveSnapshot.
type Store struct {
	log  logger.Logger
	opts StoreOptions
	path string

	env       *lmdb.Env
	metaDB    lmdb.DBI
	dataDB    lmdb.DBI
	forwardDB lmdb.DBI
	reverseDB lmdb.DBI

	extKeys *extkey.ExtendedKeys
	codec   Codec

	counters Counters
}

// StoreStats reports the number of entries in each database
type StoreStats struct {
	Meta             uint64
	Data             uint64
	ForwardTaskCache uint64
	ReverseTaskCache uint64
}

// Open creates the directory if necessary and opens, or creates, the task
// store in it. Failure to open is not recoverable, the caller is expected to
// abort startup.
func Open(log logger.Logger, path string, opts ...StoreOption) (*Store, error) {
	options := NewStoreOptions(opts...)

	if err := os.MkdirAll(path, dirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	codec := options.codec
	if codec == nil {
		var err error
		if codec, err = NewCBORCodec(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
		}
	}

	log.Infof("opening task store %s", path)

	env, err := openEnv(path, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}

	maxKeySize := env.MaxKeySize()
	if options.maxKeySize > 0 && options.maxKeySize < maxKeySize {
		maxKeySize = options.maxKeySize
	}
	extKeys, err := extkey.New(maxKeySize)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	s := &Store{
		log:     log,
		opts:    options,
		path:    path,
		env:     env,
		extKeys: extKeys,
		codec:   codec,
	}

	err = env.Update(func(txn *lmdb.Txn) error {
		for _, db := range []struct {
			name string
			dbi  *lmdb.DBI
		}{
			{DBMeta, &s.metaDB},
			{DBData, &s.dataDB},
			{DBForwardTaskCache, &s.forwardDB},
			{DBReverseTaskCache, &s.reverseDB},
		} {
			dbi, err := txn.OpenDBI(db.name, lmdb.Create)
			if err != nil {
				return fmt.Errorf("%s: %w", db.name, err)
			}
			*db.dbi = dbi
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}
	return s, nil
}

func openEnv(path string, options StoreOptions) (*lmdb.Env, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, err
	}
	err = configureEnv(env, options)
	if err == nil {
		err = env.Open(path, envFlags, envMode)
	}
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func configureEnv(env *lmdb.Env, options StoreOptions) error {
	if err := env.SetMaxDBs(maxDBs); err != nil {
		return err
	}
	if err := env.SetMaxReaders(options.maxReaders); err != nil {
		return err
	}
	return env.SetMapSize(options.mapSize)
}

// Close releases the environment. No other method may be called afterwards.
func (s *Store) Close() error {
	return s.env.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Startup logs a summary of the restored state. With WithDumpOnStartup the
// full data database is also logged at debug level.
func (s *Store) Startup() {
	stats, err := s.Stats()
	if err != nil {
		s.log.Infof("reading task store stats failed: %v", err)
	}
	s.log.Infof(
		"task store %s: next free task id %d, %d uncompleted operations, %d tasks with data, %d cached task types",
		s.path, s.NextFreeTaskID(), len(s.UncompletedOperations()), stats.Data, stats.ReverseTaskCache)

	if !s.opts.dumpOnStartup {
		return
	}
	var b strings.Builder
	if err := s.DumpData(&b); err != nil {
		s.log.Infof("dumping task store data failed: %v", err)
		return
	}
	s.log.Debugf("database content:\n%s", b.String())
}

// NextFreeTaskID returns the smallest task id that has never been persisted.
// A fresh store, or a store whose counter can not be read, returns 1.
func (s *Store) NextFreeTaskID() tasks.TaskID {
	var next uint32
	err := s.env.View(func(txn *lmdb.Txn) (err error) {
		next, err = s.nextFreeTaskID(txn)
		return err
	})
	if err != nil {
		s.log.Infof("reading next free task id failed: %v", err)
		return 1
	}
	return tasks.TaskID(next)
}

// nextFreeTaskID reads the counter in txn. A missing counter is 1. A
// malformed counter is rebuilt from the highest task id stored in the reverse
// task cache and data databases, so ids already in use are never handed out
// again.
func (s *Store) nextFreeTaskID(txn *lmdb.Txn) (uint32, error) {
	next, err := s.readNextFreeTaskID(txn)
	if err == nil {
		return next, nil
	}
	if lmdb.IsNotFound(err) {
		return 1, nil
	}
	if !errors.Is(err, ErrBadCounter) {
		return 0, err
	}

	highest, hErr := s.highestTaskID(txn)
	if hErr != nil {
		return 0, fmt.Errorf("%w: %w", err, hErr)
	}
	if highest == ^uint32(0) {
		return 0, fmt.Errorf("%w: %w: highest stored id %d", err, ErrTaskIDRange, highest)
	}
	s.log.Infof("%v, rebuilt as %d from the stored task ids", err, highest+1)
	return highest + 1, nil
}

// highestTaskID returns the largest task id keyed in the reverse task cache
// or data databases, or zero if both are empty. Keys are big endian so the
// last key of each database is its largest id.
func (s *Store) highestTaskID(txn *lmdb.Txn) (uint32, error) {
	var highest uint32
	for _, dbi := range []lmdb.DBI{s.reverseDB, s.dataDB} {
		id, err := lastTaskID(txn, dbi)
		if err != nil {
			return 0, err
		}
		highest = max(highest, id)
	}
	return highest, nil
}

func lastTaskID(txn *lmdb.Txn, dbi lmdb.DBI) (uint32, error) {
	cur, err := txn.OpenCursor(dbi)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	k, _, err := cur.Get(nil, nil, lmdb.Last)
	if lmdb.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return keys.Uint32(k)
}

func (s *Store) readNextFreeTaskID(txn *lmdb.Txn) (uint32, error) {
	data, err := txn.Get(s.metaDB, metaKeyNextFreeTaskID.Bytes())
	if err != nil {
		return 0, err
	}
	next, err := keys.Uint32(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadCounter, err)
	}
	return next, nil
}

// UncompletedOperations returns the journal written by the last successful
// snapshot. A missing or undecodable journal is reported as empty.
func (s *Store) UncompletedOperations() []tasks.AnyOperation {
	var operations []tasks.AnyOperation
	err := s.env.View(func(txn *lmdb.Txn) error {
		data, err := txn.Get(s.metaDB, metaKeyOperations.Bytes())
		if err != nil {
			return err
		}
		return s.codec.UnmarshalInto(data, &operations)
	})
	if err != nil {
		if !lmdb.IsNotFound(err) {
			s.log.Infof("reading uncompleted operations failed: %v", err)
		}
		return nil
	}
	return operations
}

// Stats returns the number of entries in each of the four databases
func (s *Store) Stats() (StoreStats, error) {
	var stats StoreStats
	err := s.env.View(func(txn *lmdb.Txn) error {
		for _, db := range []struct {
			dbi     lmdb.DBI
			entries *uint64
		}{
			{s.metaDB, &stats.Meta},
			{s.dataDB, &stats.Data},
			{s.forwardDB, &stats.ForwardTaskCache},
			{s.reverseDB, &stats.ReverseTaskCache},
		} {
			stat, err := txn.Stat(db.dbi)
			if err != nil {
				return err
			}
			*db.entries = stat.Entries
		}
		return nil
	})
	if err != nil {
		return StoreStats{}, err
	}
	return stats, nil
}

// isNotFound is true for a missing key in either a plain or extended key
// database
func isNotFound(err error) bool {
	return lmdb.IsNotFound(err) || errors.Is(err, extkey.ErrNotFound)
}
