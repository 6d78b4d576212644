package taskstoretesting

import (
	"fmt"
	"testing"

	"github.com/forestrie/go-taskstore/tasks"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestGenerator creates distinct task types, items and journal entries. Each
// generator is seeded with a random uuid so separate generators never produce
// the same task type.
type TestGenerator struct {
	t    *testing.T
	seed uuid.UUID
	n    int
}

func NewTestGenerator(t *testing.T) *TestGenerator {
	return &TestGenerator{t: t, seed: uuid.New()}
}

// NewTaskType returns a task type whose argument is padded to at least argLen
// bytes. Use an argLen above the native key size to exercise extended keys.
func (g *TestGenerator) NewTaskType(function string, argLen int) *tasks.CachedTaskType {
	g.n++
	arg := []byte(fmt.Sprintf("%s/%d/", g.seed, g.n))
	for len(arg) < argLen {
		arg = append(arg, byte('a'+len(arg)%26))
	}
	encoded, err := cbor.Marshal(arg)
	require.NoError(g.t, err)
	return &tasks.CachedTaskType{Function: function, Arg: encoded}
}

// NewMethodTaskType returns a task type bound to a receiver task
func (g *TestGenerator) NewMethodTaskType(function string, this tasks.TaskID, argLen int) *tasks.CachedTaskType {
	tt := g.NewTaskType(function, argLen)
	tt.This = &this
	return tt
}

// NewOperation returns a journal entry with a unique payload
func (g *TestGenerator) NewOperation(kind string) tasks.AnyOperation {
	g.n++
	data, err := cbor.Marshal([]any{g.seed.String(), g.n})
	require.NoError(g.t, err)
	return tasks.AnyOperation{Kind: kind, Data: data}
}

// ItemKey is shorthand for a data item key without a name
func ItemKey(kind tasks.ItemKind, ref uint32) tasks.CachedDataItemKey {
	return tasks.CachedDataItemKey{Kind: kind, Ref: ref}
}

// ItemValues returns the items as a key => value map, for order independent
// comparisons
func ItemValues(items []tasks.CachedDataItem) map[tasks.CachedDataItemKey]any {
	values := make(map[tasks.CachedDataItemKey]any, len(items))
	for _, item := range items {
		values[item.Key] = item.Value
	}
	return values
}
