package database

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
)

// newQueryTracer routes pgx trace output to zap. Bind arguments are dropped: they can carry
// password hashes and event private keys.
func newQueryTracer(logger *zap.Logger, level tracelog.LogLevel) *tracelog.TraceLog {
	return &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(_ context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
			keys := make([]string, 0, len(data))
			for k := range data {
				if k != "args" {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			fields := make([]zap.Field, 0, len(keys))
			for _, k := range keys {
				fields = append(fields, zap.Any(k, data[k]))
			}

			switch lvl {
			case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
				logger.Debug(msg, fields...)
			case tracelog.LogLevelInfo:
				logger.Info(msg, fields...)
			case tracelog.LogLevelWarn:
				logger.Warn(msg, fields...)
			default:
				logger.Error(msg, fields...)
			}
		}),
		LogLevel: level,
	}
}
