package logger

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Cron adapts a slog.Logger to the cron.Logger interface.
func Cron(base *slog.Logger) cron.Logger {
	return cronLogger{base: base.With("component", "cron")}
}

type cronLogger struct {
	base *slog.Logger
}

// Info is used by cron for scheduling chatter, so it lands at debug level.
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.base.Debug(msg, normalize(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]any{"error", err}, normalize(keysAndValues)...)
	l.base.Error(msg, args...)
}

// normalize keeps key/value pairs well formed even when cron passes an odd count.
func normalize(kv []interface{}) []any {
	out := make([]any, 0, len(kv)+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			out = append(out, key, kv[i+1])
			continue
		}
		out = append(out, "extra", key)
	}
	return out
}
