package logsink

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "NDM", "ndm_desktop.log")
	sink, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer sink.Close()

	if sink.Path() != path {
		t.Errorf("Path = %q, want %q", sink.Path(), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestWriteAppendsNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	sink, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	if _, err := sink.Write([]byte("first")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := sink.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	sink.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("log contents = %q", data)
	}
}

func TestOpenAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	if err := os.WriteFile(path, []byte("earlier\n"), 0644); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	sink, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	sink.Write([]byte("later"))
	sink.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "earlier\nlater\n" {
		t.Errorf("log contents = %q", data)
	}
}

func TestWriteAfterClose(t *testing.T) {
	sink, err := Open(filepath.Join(t.TempDir(), "out.log"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	sink.Close()
	if _, err := sink.Write([]byte("late")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Write after Close = %v, want os.ErrClosed", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestConcurrentLoggerLinesStayWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	sink, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	logger := NewLogger(sink, slog.LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.Info("backend", "line", strings.Repeat("x", 64), "writer", n)
			}
		}(i)
	}
	wg.Wait()
	sink.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 200 {
		t.Fatalf("got %d lines, want 200", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "time=") || !strings.Contains(line, "msg=backend") {
			t.Fatalf("malformed line %q", line)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
