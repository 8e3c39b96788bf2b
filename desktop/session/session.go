// Package session drives one run of the desktop shell: it starts the backend sidecar,
// waits for the backend to report healthy, hands the surface over to the UI and tears
// the sidecar down again on shutdown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/SaiBhaskarGuntupally/NDM/desktop/display"
	"github.com/SaiBhaskarGuntupally/NDM/desktop/journal"
	"github.com/SaiBhaskarGuntupally/NDM/desktop/sidecar"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrShutDown is returned by Start once Shutdown has been called.
	ErrShutDown = errors.New("session shut down")
)

// Phase is the lifecycle state of a session.
type Phase int

const (
	// PhaseStarting covers shortcut registration and the sidecar spawn.
	PhaseStarting Phase = iota
	// PhaseWaitingForHealth means the readiness gate is polling the backend.
	PhaseWaitingForHealth
	// PhaseReady means the backend answered and the surface was handed to the UI.
	PhaseReady
	// PhaseFailed means the health deadline passed; the error has been shown.
	PhaseFailed
	// PhaseShuttingDown is terminal. Later health results are ignored.
	PhaseShuttingDown
)

// String returns a string representation of the Phase.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseWaitingForHealth:
		return "waiting_for_health"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	case PhaseShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Launcher starts and stops the backend sidecar. *sidecar.Supervisor implements it.
type Launcher interface {
	Spawn(ctx context.Context) (*sidecar.Process, error)
	Terminate(p *sidecar.Process)
}

// Gate reports whether the backend became healthy. *health.Gate implements it.
type Gate interface {
	WaitAsync(ctx context.Context, url string) <-chan bool
}

// Recorder persists lifecycle events. *journal.Journal implements it.
type Recorder interface {
	Record(sessionID string, kind journal.Kind, detail string) error
}

// Config holds configuration options for a Session.
type Config struct {
	HealthURL   string
	UIURL       string
	SkipSidecar bool
	ToggleKey   string // Optional, defaults to "f11"
	LogPath     string // Named in the failure message shown to the user

	Launcher Launcher // Required unless SkipSidecar is set
	Gate     Gate
	Surface  display.Surface
	Journal  Recorder     // Optional
	Logger   *slog.Logger // Optional, defaults to slog.Default()
}

// processSlot holds the session's single supervised process. Once closed it accepts
// nothing, so a spawn that finishes after shutdown has to clean up after itself.
type processSlot struct {
	mu     sync.Mutex
	proc   *sidecar.Process
	closed bool
}

func (s *processSlot) store(p *sidecar.Process) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.proc = p
	return true
}

func (s *processSlot) take() *sidecar.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	p := s.proc
	s.proc = nil
	return p
}

// Session is one run of the shell.
type Session struct {
	id     string
	config Config
	logger *slog.Logger

	slot processSlot

	mu      sync.Mutex
	phase   Phase
	started bool
	cancel  context.CancelFunc

	done         chan struct{}
	doneOnce     sync.Once
	shutdownOnce sync.Once
}

// New validates config and returns a session in PhaseStarting.
func New(config Config) (*Session, error) {
	if config.Surface == nil {
		return nil, errors.New("session: surface is required")
	}
	if config.Gate == nil {
		return nil, errors.New("session: health gate is required")
	}
	if config.Launcher == nil && !config.SkipSidecar {
		return nil, errors.New("session: launcher is required unless the sidecar is skipped")
	}
	if config.ToggleKey == "" {
		config.ToggleKey = "f11"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()

	return &Session{
		id:     id,
		config: config,
		logger: logger.With("component", "Session", "session_id", id),
		phase:  PhaseStarting,
		done:   make(chan struct{}),
	}, nil
}

// SessionID identifies this run in the log and the journal.
func (s *Session) SessionID() string {
	return s.id
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Done is closed once the health outcome has been handled or the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start registers the presentation toggle, launches the sidecar and begins waiting for
// the backend. It returns once the health wait is running; the outcome is applied to the
// surface in the background.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseShuttingDown {
		s.mu.Unlock()
		return ErrShutDown
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("Starting session", "health_url", s.config.HealthURL, "ui_url", s.config.UIURL, "skip_sidecar", s.config.SkipSidecar)
	s.record(journal.KindSessionStarted, s.config.HealthURL)

	if err := s.config.Surface.RegisterShortcut(s.config.ToggleKey, s.TogglePresentation); err != nil {
		s.logger.Warn("Presentation shortcut registration failed", "key", s.config.ToggleKey, "error", err)
	}

	if s.config.SkipSidecar {
		s.logger.Info("Sidecar spawn skipped by configuration")
		s.record(journal.KindSidecarSkipped, "")
	} else {
		s.spawn(runCtx)
	}

	if !s.transition(PhaseWaitingForHealth) {
		s.logger.Info("Session shut down while starting, not waiting for health")
		s.markDone()
		return nil
	}
	go s.await(runCtx, s.config.Gate.WaitAsync(runCtx, s.config.HealthURL))
	return nil
}

func (s *Session) spawn(ctx context.Context) {
	proc, err := s.config.Launcher.Spawn(ctx)
	if err != nil {
		s.logger.Warn("Continuing without sidecar", "error", err)
		s.record(journal.KindSidecarUnavailable, err.Error())
		return
	}
	s.record(journal.KindSidecarSpawned, strconv.Itoa(proc.PID()))

	if !s.slot.store(proc) {
		s.logger.Info("Session shut down during spawn, terminating sidecar", "pid", proc.PID())
		s.config.Launcher.Terminate(proc)
		s.record(journal.KindSidecarTerminated, strconv.Itoa(proc.PID()))
	}
}

func (s *Session) await(ctx context.Context, result <-chan bool) {
	defer s.markDone()

	healthy := <-result
	if !healthy && ctx.Err() != nil {
		// The wait was cut short, so the deadline never passed.
		s.logger.Info("Health wait cancelled", "phase", s.Phase(), "reason", ctx.Err())
		return
	}
	if healthy {
		if !s.transition(PhaseReady) {
			s.logger.Info("Ignoring health result after shutdown", "healthy", true)
			return
		}
		s.record(journal.KindHealthReady, s.config.UIURL)
		if err := s.config.Surface.Navigate(s.config.UIURL); err != nil {
			s.logger.Error("Failed to navigate to UI", "url", s.config.UIURL, "error", err)
		}
		return
	}

	if !s.transition(PhaseFailed) {
		s.logger.Info("Ignoring health result after shutdown", "healthy", false)
		return
	}
	s.record(journal.KindHealthTimeout, s.config.HealthURL)
	s.logger.Error("Backend did not become healthy", "url", s.config.HealthURL, "log_path", s.config.LogPath)
	s.config.Surface.ShowError(FailureMessage(s.config.LogPath))
}

// FailureMessage is the text shown to the user when the backend never became healthy.
func FailureMessage(logPath string) string {
	return fmt.Sprintf("Backend failed to start. Check logs in %s.", logPath)
}

// transition moves to phase unless the session is shutting down.
func (s *Session) transition(phase Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseShuttingDown {
		return false
	}
	s.logger.Debug("Session phase change", "from", s.phase, "to", phase)
	s.phase = phase
	return true
}

// TogglePresentation flips presentation mode, but only while the surface has focus.
func (s *Session) TogglePresentation() {
	surface := s.config.Surface
	if !surface.IsFocused() {
		s.logger.Debug("Ignoring presentation toggle, surface not focused")
		return
	}
	if surface.IsFullscreen() {
		s.ExitPresentation()
	} else {
		s.EnterPresentation()
	}
}

// EnterPresentation switches the surface to presentation mode regardless of focus.
func (s *Session) EnterPresentation() {
	if err := s.config.Surface.EnterPresentationMode(); err != nil {
		s.logger.Warn("Failed to enter presentation mode", "error", err)
	}
}

// ExitPresentation leaves presentation mode regardless of focus.
func (s *Session) ExitPresentation() {
	if err := s.config.Surface.ExitPresentationMode(); err != nil {
		s.logger.Warn("Failed to exit presentation mode", "error", err)
	}
}

// Shutdown stops waiting for health and terminates the sidecar if one is held. Safe to
// call any number of times, with or without Start.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		previous := s.phase
		s.phase = PhaseShuttingDown
		cancel := s.cancel
		s.mu.Unlock()

		s.logger.Info("Shutting down session", "previous_phase", previous)
		if cancel != nil {
			cancel()
		}

		if proc := s.slot.take(); proc != nil {
			s.config.Launcher.Terminate(proc)
			s.record(journal.KindSidecarTerminated, strconv.Itoa(proc.PID()))
		}
		s.record(journal.KindSessionShutdown, previous.String())
		s.markDone()
	})
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) record(kind journal.Kind, detail string) {
	if s.config.Journal == nil {
		return
	}
	if err := s.config.Journal.Record(s.id, kind, detail); err != nil {
		s.logger.Warn("Failed to record session event", "kind", kind, "error", err)
	}
}
