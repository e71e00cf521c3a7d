package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output. Equivalent
// to log.NewNop(); prefer this form in packages that do not already import
// internal/log.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
