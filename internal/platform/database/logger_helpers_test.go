package database_test

import (
	"log/slog"
	"testing"

	"github.com/phrazzld/microblog/internal/platform/logger"
)

func testLogger(t *testing.T) (*slog.Logger, *logger.TestLogBuffer) {
	t.Helper()
	return logger.GetTestLogger(t)
}
