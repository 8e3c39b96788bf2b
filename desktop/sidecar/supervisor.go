package sidecar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSidecarName        = "ndm_backend"
	defaultGracefulStopPeriod = 2 * time.Second
	defaultOutputCapacity     = 200
	maxLineLength             = 1024 * 1024
)

// Config holds configuration options for the Supervisor.
type Config struct {
	Name        string            // Optional, defaults to "ndm_backend"
	Path        string            // Optional explicit executable path
	Dir         string            // Optional lookup directory, defaults to the shell's directory
	WorkDir     string            // Optional working directory for the child
	Args        []string          // Optional command line arguments
	Env         map[string]string // Optional extra environment
	GracePeriod time.Duration     // Optional, defaults to 2s; time between interrupt and kill
	Logger      *slog.Logger      // Optional, defaults to slog.Default()
	Output      *LogBuffer        // Optional, receives every output line
}

// Supervisor launches the sidecar, drains its output into the log and terminates it on
// request. It owns no process state of its own: the caller keeps the returned handle.
type Supervisor struct {
	name        string
	path        string
	dir         string
	workDir     string
	args        []string
	env         []string
	gracePeriod time.Duration
	logger      *slog.Logger
	output      *LogBuffer

	internalSecret string
}

// NewSupervisor creates a Supervisor from config, filling in defaults.
func NewSupervisor(config Config) *Supervisor {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := config.Name
	if name == "" {
		name = defaultSidecarName
	}
	grace := config.GracePeriod
	if grace == 0 {
		grace = defaultGracefulStopPeriod
	}
	output := config.Output
	if output == nil {
		output = NewLogBuffer(defaultOutputCapacity)
	}

	keys := make([]string, 0, len(config.Env))
	for k := range config.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, config.Env[k]))
	}

	return &Supervisor{
		name:           name,
		path:           config.Path,
		dir:            config.Dir,
		workDir:        config.WorkDir,
		args:           config.Args,
		env:            env,
		gracePeriod:    grace,
		logger:         logger.With("component", "Supervisor"),
		output:         output,
		internalSecret: uuid.New().String(),
	}
}

// Output returns the buffer holding the most recent sidecar output lines.
func (s *Supervisor) Output() *LogBuffer {
	return s.output
}

// Spawn resolves and launches the sidecar. On failure it logs the cause and returns a
// nil process with an error wrapping ErrSpawnUnavailable; the session carries on
// without a supervised child.
func (s *Supervisor) Spawn(ctx context.Context) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnUnavailable, err)
	}

	path, err := Resolve(s.name, s.path, s.dir)
	if err != nil {
		s.logger.Error("sidecar not available", "name", s.name, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSpawnUnavailable, err)
	}

	cmd := exec.Command(path, s.args...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("NDM_INTERNAL_SECRET=%s", s.internalSecret))
	cmd.Dir = s.workDir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		s.logger.Error("Failed to get stdout pipe", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSpawnUnavailable, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		s.logger.Error("Failed to get stderr pipe", "path", path, "error", err)
		stdoutPipe.Close()
		return nil, fmt.Errorf("%w: %w", ErrSpawnUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		s.logger.Error("failed to spawn sidecar", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSpawnUnavailable, err)
	}

	proc := newProcess(cmd, path)

	var readers sync.WaitGroup
	readers.Add(2)
	go proc.pump(stdoutPipe, OutputStdout, &readers)
	go proc.pump(stderrPipe, OutputStderr, &readers)

	go func() {
		readers.Wait()
		err := cmd.Wait()
		proc.setExitErr(err)
		proc.events <- OutputEvent{Kind: OutputOther, Text: exitText(err)}
		close(proc.events)
		close(proc.done)
	}()

	go s.drain(proc)

	s.logger.Info("sidecar spawned successfully", "pid", proc.PID(), "path", path)
	return proc, nil
}

// pump forwards each line of r to the process's event stream until EOF.
func (p *Process) pump(r io.Reader, kind OutputKind, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		p.events <- OutputEvent{Kind: kind, Text: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		p.events <- OutputEvent{Kind: OutputOther, Text: fmt.Sprintf("%s read error: %v", kind, err)}
		// Keep the pipe empty so the child never blocks on a full buffer.
		io.Copy(io.Discard, r)
	}
}

// drain consumes the process's events until the stream closes, writing every line to the
// log and the output buffer.
func (s *Supervisor) drain(p *Process) {
	for event := range p.events {
		source := event.Kind.String()
		s.output.AddEntry(source, event.Text, p.pid)
		switch event.Kind {
		case OutputStdout, OutputStderr:
			s.logger.Info("backend", "pid", p.pid, "stream", source, "line", event.Text)
		default:
			s.logger.Info("backend event", "pid", p.pid, "event", event.Text)
		}
	}
}

// Terminate asks the sidecar to exit: an interrupt first, then a kill once the grace
// period lapses. Failures are logged and never returned, and only the first call for a
// given process has any effect.
func (s *Supervisor) Terminate(p *Process) {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() { s.terminate(p) })
}

func (s *Supervisor) terminate(p *Process) {
	if p.cmd == nil || p.cmd.Process == nil {
		s.logger.Warn("Process was never started, nothing to stop")
		return
	}
	if p.Exited() {
		s.logger.Info("Sidecar already exited", "pid", p.pid, "exitError", p.ExitErr())
		return
	}

	s.logger.Info("Stopping sidecar", "pid", p.pid, "uptime", p.Uptime().Round(time.Millisecond))

	if s.gracePeriod > 0 {
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			// Windows cannot deliver os.Interrupt; fall through to kill.
			s.logger.Warn("Failed to interrupt sidecar", "pid", p.pid, "error", err)
		} else {
			timer := time.NewTimer(s.gracePeriod)
			defer timer.Stop()
			select {
			case <-p.done:
				s.logger.Info("Sidecar exited after interrupt", "pid", p.pid, "exitError", p.ExitErr())
				return
			case <-timer.C:
				s.logger.Warn("Sidecar did not exit gracefully, killing", "pid", p.pid)
			}
		}
	}

	if err := p.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			s.logger.Info("Sidecar already exited", "pid", p.pid)
		} else {
			s.logger.Error("Failed to kill sidecar", "pid", p.pid, "error", err)
		}
		return
	}

	timer := time.NewTimer(s.gracePeriod + time.Second)
	defer timer.Stop()
	select {
	case <-p.done:
		s.logger.Info("Sidecar killed", "pid", p.pid)
	case <-timer.C:
		// A grandchild may still hold the output pipes open.
		s.logger.Warn("Sidecar did not report exit after kill", "pid", p.pid)
	}
}

func exitText(err error) string {
	if err == nil {
		return "exited: exit status 0"
	}
	return "exited: " + strings.TrimSpace(err.Error())
}
