// Package keys provides the fixed width key encoding used for every task
// store database that is keyed by a 32 bit identifier.
//
// Keys are big endian so that the default lexicographic key ordering of the
// store matches numeric ordering. Cursor scans over the data database
// therefore visit tasks in ascending task id order.
package keys

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	IntKeyBytes = 4
)

var (
	ErrKeyLength = errors.New("a fixed width key must be exactly 4 bytes")
)

// IntKey is the physical key for a 32 bit identifier
type IntKey [IntKeyBytes]byte

func NewIntKey(value uint32) IntKey {
	var k IntKey
	binary.BigEndian.PutUint32(k[:], value)
	return k
}

func (k IntKey) Bytes() []byte {
	return k[:]
}

func (k IntKey) Uint32() uint32 {
	return binary.BigEndian.Uint32(k[:])
}

// Uint32Bytes encodes value as 4 big endian bytes. It is used for values as
// well as keys (the next free task id counter and the forward task cache
// entries).
func Uint32Bytes(value uint32) []byte {
	b := make([]byte, IntKeyBytes)
	binary.BigEndian.PutUint32(b, value)
	return b
}

// Uint32 decodes a fixed width key or value. Any length other than 4 is
// rejected.
func Uint32(b []byte) (uint32, error) {
	if len(b) != IntKeyBytes {
		return 0, fmt.Errorf("%w: got %d", ErrKeyLength, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}
