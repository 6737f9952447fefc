// Package diagnostic is a logger backend that keeps warnings and errors as
// JSON lines for manual review after a run. Dangling references, skipped
// records and skipped reconciliation groups all end up here, keyed by the
// country and record fields the engine logs with them.
package diagnostic

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

type DiagnosticLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	closer io.Closer
}

// New writes diagnostics to w.
func New(w io.Writer) *DiagnosticLogger {
	return &DiagnosticLogger{
		logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			Level:           log.WarnLevel,
			Formatter:       log.JSONFormatter,
		}),
	}
}

// Open appends diagnostics to the file at path.
func Open(path string) (*DiagnosticLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostic log: %w", err)
	}
	d := New(f)
	d.closer = f
	return d, nil
}

func (d *DiagnosticLogger) Log(string, ...any)   {}
func (d *DiagnosticLogger) Debug(string, ...any) {}
func (d *DiagnosticLogger) Info(string, ...any)  {}

func (d *DiagnosticLogger) Warn(message string, keyvals ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger.Warn(message, keyvals...)
}

func (d *DiagnosticLogger) Error(message string, keyvals ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger.Error(message, keyvals...)
}

// Fatal is recorded as an error; terminating is left to the console backend.
func (d *DiagnosticLogger) Fatal(message string, keyvals ...any) {
	d.Error(message, append(keyvals, "fatal", true)...)
}

func (d *DiagnosticLogger) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
