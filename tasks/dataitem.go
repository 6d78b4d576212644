package tasks

import (
	"cmp"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrUnknownItemKind = errors.New("unknown cached data item kind")
)

// ItemKind identifies one attribute of a task's cached state. The set is
// closed, kinds that are persisted must keep their numeric value.
type ItemKind uint8

const (
	KindOutput ItemKind = iota + 1
	KindCollectible
	KindChild
	KindCellData
	KindCellTypeMaxIndex
	KindOutputDependent
	KindCellDependent
	KindDirty
	KindAggregationNumber
	KindUpper
	KindFollower
	KindInProgress

	kindLast = KindInProgress
)

var kindNames = [...]string{
	KindOutput:            "Output",
	KindCollectible:       "Collectible",
	KindChild:             "Child",
	KindCellData:          "CellData",
	KindCellTypeMaxIndex:  "CellTypeMaxIndex",
	KindOutputDependent:   "OutputDependent",
	KindCellDependent:     "CellDependent",
	KindDirty:             "Dirty",
	KindAggregationNumber: "AggregationNumber",
	KindUpper:             "Upper",
	KindFollower:          "Follower",
	KindInProgress:        "InProgress",
}

func (k ItemKind) Valid() bool {
	return k >= KindOutput && k <= kindLast
}

func (k ItemKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("ItemKind(%d)", uint8(k))
	}
	return kindNames[k]
}

// IsOptional returns true for kinds that can be recomputed, or that only
// matter while the process is running. Items of these kinds may be dropped if
// they can not be encoded.
func (k ItemKind) IsOptional() bool {
	switch k {
	case KindCollectible, KindCellData, KindOutputDependent, KindCellDependent, KindDirty, KindInProgress:
		return true
	default:
		return false
	}
}

// UnmarshalCBOR rejects kinds this version does not know about, so that a
// record written by a newer version is reported rather than misread.
func (k *ItemKind) UnmarshalCBOR(data []byte) error {
	var v uint8
	if err := cbor.Unmarshal(data, &v); err != nil {
		return err
	}
	if !ItemKind(v).Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownItemKind, v)
	}
	*k = ItemKind(v)
	return nil
}

// CachedDataItemKey identifies a single item within a task. At most one item
// per key is stored for a task.
type CachedDataItemKey struct {
	Kind ItemKind `cbor:"1,keyasint"`
	Ref  uint32   `cbor:"2,keyasint,omitempty"`
	Name string   `cbor:"3,keyasint,omitempty"`
}

func (k CachedDataItemKey) Compare(other CachedDataItemKey) int {
	if c := cmp.Compare(k.Kind, other.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Ref, other.Ref); c != 0 {
		return c
	}
	return cmp.Compare(k.Name, other.Name)
}

func (k CachedDataItemKey) IsOptional() bool {
	return k.Kind.IsOptional()
}

func (k CachedDataItemKey) String() string {
	if k.Name != "" {
		return fmt.Sprintf("%s[%d:%s]", k.Kind, k.Ref, k.Name)
	}
	return fmt.Sprintf("%s[%d]", k.Kind, k.Ref)
}

// CachedDataItemValue wraps an item value so that an update can distinguish
// "remove" (nil *CachedDataItemValue) from a nil payload.
type CachedDataItemValue struct {
	Value any
}

// CachedDataItem is one attribute of a task's cached result
type CachedDataItem struct {
	Key   CachedDataItemKey `cbor:"1,keyasint"`
	Value any               `cbor:"2,keyasint"`
}

func NewCachedDataItem(key CachedDataItemKey, value CachedDataItemValue) CachedDataItem {
	return CachedDataItem{Key: key, Value: value.Value}
}

func (item CachedDataItem) KeyAndValue() (CachedDataItemKey, CachedDataItemValue) {
	return item.Key, CachedDataItemValue{Value: item.Value}
}

func (item CachedDataItem) IsOptional() bool {
	return item.Key.IsOptional()
}

// CachedDataUpdate sets or removes one item of a task. A nil Value removes the
// item.
type CachedDataUpdate struct {
	Task  TaskID
	Key   CachedDataItemKey
	Value *CachedDataItemValue
}

func SetItem(task TaskID, key CachedDataItemKey, value any) CachedDataUpdate {
	return CachedDataUpdate{Task: task, Key: key, Value: &CachedDataItemValue{Value: value}}
}

func RemoveItem(task TaskID, key CachedDataItemKey) CachedDataUpdate {
	return CachedDataUpdate{Task: task, Key: key}
}
