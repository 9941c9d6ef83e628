package logging

import (
	"log/slog"

	"pagedb/pkg/primitives"
)

// WithEngine creates a logger carrying the engine instance ID, so logs from
// several engines in one process stay separable.
func WithEngine(instanceID string) *slog.Logger {
	return GetLogger().With("engine", instanceID)
}

// WithTable creates a logger with table context.
func WithTable(tableName string) *slog.Logger {
	return GetLogger().With("table", tableName)
}

// WithPage creates a logger with page context.
func WithPage(pid primitives.PageID) *slog.Logger {
	return GetLogger().With("page", uint32(pid))
}
