package taskstoretesting

import (
	"path/filepath"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
)

// TestMapSize keeps test environments small. The map is sparse, but a smaller
// map keeps address space use modest when many stores are open at once.
const TestMapSize int64 = 64 * 1024 * 1024

type TestContext struct {
	Log logger.Logger
	T   *testing.T

	// Dir is a per test temporary directory. It is removed when the test
	// completes.
	Dir string
}

type TestConfig struct {
	TestLabelPrefix string
	LogLevel        string // defaults to "INFO"
}

func NewTestContext(t *testing.T, cfg TestConfig) TestContext {
	level := cfg.LogLevel
	if level == "" {
		level = "INFO"
	}
	logger.New(level)

	return TestContext{
		T:   t,
		Log: logger.Sugar.WithServiceName(cfg.TestLabelPrefix),
		Dir: t.TempDir(),
	}
}

func (c *TestContext) GetLog() logger.Logger { return c.Log }

// StorePath returns a path, under the test directory, for a named store
func (c *TestContext) StorePath(name string) string {
	return filepath.Join(c.Dir, name)
}
