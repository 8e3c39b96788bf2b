package sidecar

import (
	"os/exec"
	"sync"
	"time"
)

// OutputKind tags an OutputEvent with the stream it came from.
type OutputKind int

const (
	// OutputStdout is a line read from the child's standard output.
	OutputStdout OutputKind = iota
	// OutputStderr is a line read from the child's standard error.
	OutputStderr
	// OutputOther carries anything that is not a line of output, such as the exit notice.
	OutputOther
)

// String returns a string representation of the OutputKind.
func (k OutputKind) String() string {
	switch k {
	case OutputStdout:
		return "stdout"
	case OutputStderr:
		return "stderr"
	case OutputOther:
		return "other"
	default:
		return "invalid"
	}
}

// OutputEvent is one item of the child's multiplexed output.
type OutputEvent struct {
	Kind OutputKind
	Text string
}

// LogEntry is a single line of sidecar output retained in a LogBuffer.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout", "stderr" or "other"
	Message   string    `json:"message"`
	PID       int       `json:"pid"`
}

// LogBuffer keeps the most recent sidecar output lines so they can be shown to the
// user when the backend fails to come up.
type LogBuffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	nextID   int64
}

// NewLogBuffer creates a new log buffer with the specified capacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBuffer{
		entries:  make([]LogEntry, 0, capacity),
		capacity: capacity,
		nextID:   1,
	}
}

// AddEntry adds a new log entry to the buffer, evicting the oldest when full.
func (lb *LogBuffer) AddEntry(source, message string, pid int) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	entry := LogEntry{
		ID:        lb.nextID,
		Timestamp: time.Now(),
		Source:    source,
		Message:   message,
		PID:       pid,
	}
	if len(lb.entries) >= lb.capacity {
		lb.entries = lb.entries[1:]
	}
	lb.entries = append(lb.entries, entry)
	lb.nextID++
}

// Latest returns up to n of the newest entries, oldest first.
func (lb *LogBuffer) Latest(n int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	n = max(0, min(n, len(lb.entries)))
	return append([]LogEntry{}, lb.entries[len(lb.entries)-n:]...)
}

// Len returns the number of retained entries.
func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.entries)
}

// Process is a spawned sidecar instance. The zero value represents a process that was
// never started and is safe to pass to Supervisor.Terminate.
type Process struct {
	cmd       *exec.Cmd
	pid       int
	startTime time.Time
	path      string

	events chan OutputEvent
	done   chan struct{}

	mu      sync.Mutex
	exitErr error

	stopOnce sync.Once
}

func newProcess(cmd *exec.Cmd, path string) *Process {
	return &Process{
		cmd:       cmd,
		pid:       cmd.Process.Pid, // cmd has been started
		startTime: time.Now(),
		path:      path,
		events:    make(chan OutputEvent, 256),
		done:      make(chan struct{}),
	}
}

// PID returns the OS process id, or 0 for a process that was never started.
func (p *Process) PID() int {
	return p.pid
}

// Path returns the executable the process was launched from.
func (p *Process) Path() string {
	return p.path
}

// Done is closed once the process has exited and its output streams are drained.
// It is nil (blocks forever) for a process that was never started.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error from waiting on the process. Meaningful after Done.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Uptime returns how long ago the process was started.
func (p *Process) Uptime() time.Duration {
	if p.startTime.IsZero() {
		return 0
	}
	return time.Since(p.startTime)
}

func (p *Process) setExitErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitErr = err
}
