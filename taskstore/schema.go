package taskstore

import "github.com/forestrie/go-taskstore/keys"

// Named databases. All four live in one environment.
const (
	DBMeta             = "meta"
	DBData             = "data"
	DBForwardTaskCache = "forward_task_cache"
	DBReverseTaskCache = "reverse_task_cache"

	maxDBs = 4
)

// Keys of the singleton entries in the meta database
const (
	MetaKeyOperations     uint32 = 0
	MetaKeyNextFreeTaskID uint32 = 1
)

var (
	metaKeyOperations     = keys.NewIntKey(MetaKeyOperations)
	metaKeyNextFreeTaskID = keys.NewIntKey(MetaKeyNextFreeTaskID)
)
