package taskstore

import (
	"runtime"
)

const (
	// DefaultMapSize is set once when the environment is opened. The store
	// never grows the map at runtime.
	DefaultMapSize int64 = 20 * 1024 * 1024 * 1024

	readersPerCPU = 8
	minMaxReaders = 16
)

// StoreOptions configures Open. The values are private, use the With*
// options.
type StoreOptions struct {
	mapSize    int64
	maxReaders int

	// maxKeySize lowers the native key size used for extended keys. zero means
	// use the environment's limit.
	maxKeySize int

	codec Codec

	// verifySerialization decodes every encoded task type and data item
	// before it is written.
	verifySerialization bool

	dumpOnStartup bool
}

type StoreOption func(*StoreOptions)

func DefaultStoreOptions() StoreOptions {
	maxReaders := runtime.NumCPU() * readersPerCPU
	if maxReaders < minMaxReaders {
		maxReaders = minMaxReaders
	}
	return StoreOptions{
		mapSize:    DefaultMapSize,
		maxReaders: maxReaders,
	}
}

// NewStoreOptions applies opts to the defaults
func NewStoreOptions(opts ...StoreOption) StoreOptions {
	options := DefaultStoreOptions()
	for _, o := range opts {
		o(&options)
	}
	return options
}

func (o StoreOptions) MapSize() int64  { return o.mapSize }
func (o StoreOptions) MaxReaders() int { return o.maxReaders }

func WithMapSize(mapSize int64) StoreOption {
	return func(o *StoreOptions) {
		o.mapSize = mapSize
	}
}

func WithMaxReaders(maxReaders int) StoreOption {
	return func(o *StoreOptions) {
		o.maxReaders = maxReaders
	}
}

// WithMaxKeySize forces extended key handling for logical keys of at least
// maxKeySize bytes. Values above the environment's native limit are ignored.
func WithMaxKeySize(maxKeySize int) StoreOption {
	return func(o *StoreOptions) {
		o.maxKeySize = maxKeySize
	}
}

// WithCodec replaces the default deterministic CBOR codec
func WithCodec(codec Codec) StoreOption {
	return func(o *StoreOptions) {
		o.codec = codec
	}
}

func WithVerifySerialization() StoreOption {
	return func(o *StoreOptions) {
		o.verifySerialization = true
	}
}

// WithDumpOnStartup logs the full content of the data database, at debug
// level, when Startup is called.
func WithDumpOnStartup() StoreOption {
	return func(o *StoreOptions) {
		o.dumpOnStartup = true
	}
}
