package taskstore

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrOpenFailed = errors.New("the task store could not be opened")
)

var (
	ErrSnapshotFailed       = errors.New("the snapshot was not persisted")
	ErrNilTaskType          = errors.New("a task registration is missing its task type")
	ErrInvalidTaskID        = errors.New("task id zero is not a valid task id")
	ErrTaskIDRange          = errors.New("the task id leaves no room for a next free task id")
	ErrEncodeTaskType       = errors.New("unable to encode task type")
	ErrTaskTypeNotDecodable = errors.New("the encoded task type would not be decodable")
	ErrEncodeRequiredItem   = errors.New("unable to encode a required data item")
	ErrEncodeOperations     = errors.New("unable to encode the uncompleted operations")
	ErrDecodeItems          = errors.New("unable to decode the stored data items")
	ErrBadCounter           = errors.New("the next free task id counter is badly formed")
)

// SnapshotError is returned by SaveSnapshot when nothing was persisted. ID is
// the snapshot id logged for the failed attempt. It matches ErrSnapshotFailed
// and the underlying cause with errors.Is.
type SnapshotError struct {
	ID  uuid.UUID
	Err error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%v: snapshot %s: %v", ErrSnapshotFailed, e.ID, e.Err)
}

func (e *SnapshotError) Unwrap() []error {
	return []error{ErrSnapshotFailed, e.Err}
}
