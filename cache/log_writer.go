package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	maxLogs      = 100
	writeTimeout = 5 * time.Second
)

// LogWriter is an io.Writer that keeps the latest log lines in a capped
// Redis list. Pass it to log.New as an extra writer.
type LogWriter struct {
	rdb      redis.Cmdable
	key      string
	max      int64
	fallback io.Writer
}

// NewLogWriter writes to prefix+LogsKey. Redis failures are reported on
// stderr.
func NewLogWriter(rdb redis.Cmdable, prefix string) *LogWriter {
	return &LogWriter{rdb: rdb, key: prefix + LogsKey, max: maxLogs, fallback: os.Stderr}
}

// Write implements io.Writer. It never fails, so a Redis outage cannot
// break logging.
func (w *LogWriter) Write(p []byte) (int, error) {
	entry := strings.TrimRight(string(p), "\n")

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := addToList(ctx, w.rdb, w.key, entry, w.max); err != nil {
		// Not logged through slog, which would recurse into this writer.
		_, _ = fmt.Fprintf(w.fallback, "failed to write log to redis: %v\n", err)
	}
	return len(p), nil
}
