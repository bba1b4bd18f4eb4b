// Package diag centralizes structured diagnostics. It replaces the
// ad hoc log.Printf/log.Fatal calls a simpler CLI entrypoint would use
// with a single slog.Logger, fanned out to stderr and, optionally, a
// log file.
package diag

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// New builds a logger that always writes to stderr and, when logFile is
// non-nil, also writes to it. Both handlers are plain text rather than
// JSON.
func New(logFile io.Writer) *slog.Logger {
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	if logFile == nil {
		return slog.New(stderrHandler)
	}
	fileHandler := slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}

// Fatal logs msg at Error level with args, then exits the process with
// code. cmd/rv32sim does not call it: it logs fatal engine aborts with
// Logger.Error and returns the exit status instead.
func Fatal(log *slog.Logger, code int, msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(code)
}

// ExitFields builds the slog.Attr set a fatal-abort diagnostic should
// carry: at minimum the faulting address and the instruction pointer.
func ExitFields(addr uint32, ip int32) []any {
	return []any{slog.Uint64("addr", uint64(addr)), slog.Int64("ip", int64(ip))}
}
