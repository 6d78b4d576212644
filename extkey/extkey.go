package extkey

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/cespare/xxhash/v2"
)

const (
	HashBytes         = 8
	recordHeaderBytes = 8

	// MinMaxKeySize leaves at least one byte of logical key prefix ahead of
	// the hash in a derived key.
	MinMaxKeySize = HashBytes + 1
)

// Getter is satisfied by read only and read write lmdb transactions.
type Getter interface {
	Get(dbi lmdb.DBI, key []byte) ([]byte, error)
}

// GetPutter is satisfied by read write lmdb transactions.
type GetPutter interface {
	Getter
	Put(dbi lmdb.DBI, key, value []byte, flags uint) error
}

type HashFunc func([]byte) uint64

type Option func(*ExtendedKeys)

// WithHash replaces the key hash. Intended for tests that need to force
// collisions between distinct logical keys.
func WithHash(hash HashFunc) Option {
	return func(x *ExtendedKeys) {
		x.hash = hash
	}
}

// ExtendedKeys maps logical keys of any length onto a database with a bounded
// native key size. It holds no transaction state and is safe for concurrent
// use.
type ExtendedKeys struct {
	maxKeySize int
	hash       HashFunc
}

func New(maxKeySize int, opts ...Option) (*ExtendedKeys, error) {
	if maxKeySize < MinMaxKeySize {
		return nil, fmt.Errorf("%w: %d < %d", ErrMaxKeySize, maxKeySize, MinMaxKeySize)
	}
	x := &ExtendedKeys{
		maxKeySize: maxKeySize,
		hash:       xxhash.Sum64,
	}
	for _, o := range opts {
		o(x)
	}
	return x, nil
}

func (x *ExtendedKeys) MaxKeySize() int {
	return x.maxKeySize
}

// IsExtended returns true if the logical key is too long to be stored verbatim
func (x *ExtendedKeys) IsExtended(key []byte) bool {
	return len(key) >= x.maxKeySize
}

// PhysicalKey returns the key actually used in the database for the logical key
func (x *ExtendedKeys) PhysicalKey(key []byte) []byte {
	if !x.IsExtended(key) {
		return key
	}
	shared := x.maxKeySize - HashBytes
	physical := make([]byte, x.maxKeySize)
	copy(physical, key[:shared])
	binary.BigEndian.PutUint64(physical[shared:], x.hash(key))
	return physical
}

// Get returns the value stored for the logical key. ErrNotFound is returned if
// there is no exact match.
func (x *ExtendedKeys) Get(txn Getter, dbi lmdb.DBI, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	data, err := txn.Get(dbi, x.PhysicalKey(key))
	if err != nil {
		if lmdb.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !x.IsExtended(key) {
		return data, nil
	}

	var found []byte
	err = forEachRecord(data, func(k, v []byte) bool {
		if bytes.Equal(k, key) {
			found = v
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Put stores value for the logical key, replacing any previous value for the
// same logical key.
func (x *ExtendedKeys) Put(txn GetPutter, dbi lmdb.DBI, key, value []byte, flags uint) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if !x.IsExtended(key) {
		return txn.Put(dbi, key, value, flags)
	}
	if uint64(len(key)) > math.MaxUint32 || uint64(len(value)) > math.MaxUint32 {
		return fmt.Errorf("%w: record too large", ErrBucketCorrupt)
	}

	physical := x.PhysicalKey(key)

	old, err := txn.Get(dbi, physical)
	if err != nil && !lmdb.IsNotFound(err) {
		return err
	}

	bucket := make([]byte, 0, len(old)+recordHeaderBytes+len(key)+len(value))
	bucket = appendRecord(bucket, key, value)

	if len(old) > 0 {
		err = forEachRecord(old, func(k, v []byte) bool {
			if !bytes.Equal(k, key) {
				bucket = appendRecord(bucket, k, v)
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return txn.Put(dbi, physical, bucket, flags)
}

func appendRecord(bucket, key, value []byte) []byte {
	bucket = binary.BigEndian.AppendUint32(bucket, uint32(len(key)))
	bucket = binary.BigEndian.AppendUint32(bucket, uint32(len(value)))
	bucket = append(bucket, key...)
	return append(bucket, value...)
}

// forEachRecord calls fn for each record in the bucket until fn returns false.
// The slices passed to fn alias the bucket.
func forEachRecord(bucket []byte, fn func(key, value []byte) bool) error {
	for i := 0; i < len(bucket); {
		if len(bucket)-i < recordHeaderBytes {
			return fmt.Errorf("%w: short record header at %d", ErrBucketCorrupt, i)
		}
		keyLen := uint64(binary.BigEndian.Uint32(bucket[i:]))
		valueLen := uint64(binary.BigEndian.Uint32(bucket[i+4:]))
		i += recordHeaderBytes

		if uint64(len(bucket)-i) < keyLen+valueLen {
			return fmt.Errorf("%w: record at %d overruns the bucket", ErrBucketCorrupt, i-recordHeaderBytes)
		}
		key := bucket[i : i+int(keyLen)]
		i += int(keyLen)
		value := bucket[i : i+int(valueLen)]
		i += int(valueLen)

		if !fn(key, value) {
			return nil
		}
	}
	return nil
}
