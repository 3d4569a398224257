package testutil

import (
	"io"

	"github.com/iliyamo/event-gate/internal/logger"
)

// NoopLogger returns a logger that discards everything.
func NoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, 0)
}
