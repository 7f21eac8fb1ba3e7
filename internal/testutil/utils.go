package testutil

import (
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogger returns a logger writing to stdout at debug level. Output is
// discarded once the test finishes so late goroutines do not log into
// another test's output.
func TestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	t.Cleanup(func() {
		logger.SetOutput(io.Discard)
	})
	return logger
}
