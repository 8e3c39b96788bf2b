// Package logsink is the shell's plain-text diagnostic trail: an append-only file that
// receives one newline-terminated line per event, with a log/slog front end.
package logsink

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sink appends lines to a log file. Writes are serialised so concurrent writers never
// interleave within a line.
type Sink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open creates the parent directory if needed and opens path for appending.
func Open(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &Sink{file: file, path: path}, nil
}

// Write implements io.Writer. A missing trailing newline is added.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, os.ErrClosed
	}
	n := len(p)
	if n == 0 || p[n-1] != '\n' {
		p = append(p[:n:n], '\n')
	}
	if _, err := s.file.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}

// Path returns the file the sink writes to.
func (s *Sink) Path() string {
	return s.path
}

// Close closes the underlying file. Further writes fail with os.ErrClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger over w. Each record is a single timestamped line.
// Additional writers (for example os.Stderr with --verbose) receive the same lines.
func NewLogger(w io.Writer, level slog.Level, mirrors ...io.Writer) *slog.Logger {
	if len(mirrors) > 0 {
		w = io.MultiWriter(append([]io.Writer{w}, mirrors...)...)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
