// Package tasks defines the values the execution engine hands to the task
// store: task identities, their cached data items, per item updates and the
// journal of operations that were not fully applied.
package tasks

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// TaskID is a dense identifier for one cached computation. Zero is never a
// valid id, the first id handed out by a fresh store is 1.
type TaskID uint32

const InvalidTaskID TaskID = 0

func (id TaskID) String() string {
	return fmt.Sprintf("Task %d", uint32(id))
}

// CachedTaskType is the logical key of a task: the function and its inputs.
// Two task types that encode identically are the same task. Values are
// treated as immutable once created.
type CachedTaskType struct {
	Function string          `cbor:"1,keyasint"`
	This     *TaskID         `cbor:"2,keyasint,omitempty"`
	Arg      cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

func (t *CachedTaskType) String() string {
	if t.This != nil {
		return fmt.Sprintf("%s(this=%d, arg=%d bytes)", t.Function, *t.This, len(t.Arg))
	}
	return fmt.Sprintf("%s(arg=%d bytes)", t.Function, len(t.Arg))
}

// TaskRegistration associates a newly created task type with the id the engine
// allocated for it.
type TaskRegistration struct {
	Type *CachedTaskType
	ID   TaskID
}

// AnyOperation is an opaque journal entry describing an operation that has not
// been fully applied. The store only persists and returns the current list.
type AnyOperation struct {
	Kind string          `cbor:"1,keyasint"`
	Data cbor.RawMessage `cbor:"2,keyasint,omitempty"`
}
