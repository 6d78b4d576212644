package extkey

import "errors"

var (
	ErrNotFound      = errors.New("extended key not found")
	ErrBucketCorrupt = errors.New("the extended key bucket is truncated or badly formed")
	ErrMaxKeySize    = errors.New("the native maximum key size is too small for extended keys")
	ErrEmptyKey      = errors.New("extended keys must not be empty")
)
