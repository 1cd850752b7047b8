package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/EasterCompany/dex-discord-gateway/config"
)

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// New builds the process logger. Output goes to stderr and to every extra
// writer, such as a Redis log list. Debug logging records the call site.
func New(cfg config.LogConfig, extra ...io.Writer) *slog.Logger {
	return NewWithOutput(os.Stderr, cfg, extra...)
}

// NewWithOutput is New with an explicit primary writer.
func NewWithOutput(out io.Writer, cfg config.LogConfig, extra ...io.Writer) *slog.Logger {
	level, err := ParseLevel(cfg.Level)
	w := out
	if len(extra) > 0 {
		w = io.MultiWriter(append([]io.Writer{out}, extra...)...)
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if err != nil {
		logger.Warn("falling back to info logging", "error", err)
	}
	return logger
}

// Fatal logs err and exits the program.
func Fatal(logger *slog.Logger, context string, err error) {
	logger.Error(context, "error", err)
	os.Exit(1)
}
