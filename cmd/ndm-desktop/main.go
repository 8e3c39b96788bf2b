package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/SaiBhaskarGuntupally/NDM/desktop/config"
	"github.com/SaiBhaskarGuntupally/NDM/desktop/display"
	"github.com/SaiBhaskarGuntupally/NDM/desktop/health"
	"github.com/SaiBhaskarGuntupally/NDM/desktop/journal"
	"github.com/SaiBhaskarGuntupally/NDM/desktop/logsink"
	"github.com/SaiBhaskarGuntupally/NDM/desktop/session"
	"github.com/SaiBhaskarGuntupally/NDM/desktop/sidecar"
)

// Journal entries older than this are pruned at startup.
const journalRetention = 30 * 24 * time.Hour

type options struct {
	configPath    string
	skipSidecar   bool
	headless      bool
	verbose       bool
	noBrowser     bool
	history       int
	healthTimeout time.Duration
	pollInterval  time.Duration
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("ndm-desktop", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flagSet.BoolVar(&opts.skipSidecar, "skip-sidecar", false, "do not launch the backend (same as NDM_SKIP_SIDECAR=1)")
	flagSet.BoolVar(&opts.headless, "headless", false, "print status lines instead of running the terminal UI")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "mirror the log to stderr")
	flagSet.BoolVar(&opts.noBrowser, "no-browser", false, "do not open the UI in the system browser")
	flagSet.IntVar(&opts.history, "history", 0, "print the last N session journal events and exit")
	flagSet.DurationVar(&opts.healthTimeout, "health-timeout", config.DefaultHealthTimeout, "how long to wait for the backend to become healthy")
	flagSet.DurationVar(&opts.pollInterval, "poll-interval", config.DefaultPollInterval, "delay between health probes")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := loadConfig(flagSet, &opts)
	if err != nil {
		return err
	}

	sink, err := logsink.Open(cfg.LogPath())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer sink.Close()

	var mirrors []io.Writer
	if opts.verbose {
		mirrors = append(mirrors, os.Stderr)
	}
	logger := logsink.NewLogger(sink, logsink.ParseLevel(cfg.LogLevel), mirrors...)
	slog.SetDefault(logger)

	if opts.history > 0 {
		return printHistory(os.Stdout, cfg.JournalPath(), opts.history)
	}

	logger.Info("Starting NDM desktop shell", "log_path", sink.Path(), "skip_sidecar", cfg.SkipSidecar)

	var recorder session.Recorder
	if j, err := journal.Open(cfg.JournalPath()); err != nil {
		logger.Warn("Session journal unavailable", "path", cfg.JournalPath(), "error", err)
	} else {
		defer j.Close()
		if deleted, err := j.DeleteOlderThan(journalRetention); err != nil {
			logger.Warn("Failed to prune session journal", "error", err)
		} else if deleted > 0 {
			logger.Info("Pruned session journal", "deleted", deleted)
		}
		recorder = j
	}

	supervisor := sidecar.NewSupervisor(sidecar.Config{
		Name:        cfg.Sidecar.Name,
		Path:        cfg.Sidecar.Path,
		Dir:         cfg.Sidecar.Dir,
		WorkDir:     cfg.Sidecar.WorkDir,
		Args:        cfg.Sidecar.Args,
		Env:         cfg.Sidecar.Env,
		GracePeriod: cfg.Sidecar.GracePeriod,
		Logger:      logger,
	})

	gate := health.NewGate(health.Config{
		Timeout:        cfg.Health.Timeout,
		PollInterval:   cfg.Health.PollInterval,
		RequestTimeout: cfg.Health.RequestTimeout,
		Logger:         logger,
	})

	headless := cfg.Headless || !isatty.IsTerminal(os.Stdout.Fd())
	var surface display.Surface
	var terminal *display.Terminal
	if headless {
		surface = display.NewConsole(os.Stdout)
	} else {
		terminal = display.NewTerminal(display.TerminalConfig{
			ToggleKey:   cfg.ToggleKey,
			OpenBrowser: cfg.OpenBrowser,
			Tail:        tailLines(supervisor.Output()),
			Logger:      logger,
		})
		surface = terminal
	}

	sess, err := session.New(session.Config{
		HealthURL:   cfg.HealthURL,
		UIURL:       cfg.UIURL,
		SkipSidecar: cfg.SkipSidecar,
		ToggleKey:   cfg.ToggleKey,
		LogPath:     sink.Path(),
		Launcher:    supervisor,
		Gate:        gate,
		Surface:     surface,
		Journal:     recorder,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The session gets its own context: a signal ends it through Shutdown, which cancels
	// the health wait after marking the session as shutting down.
	if err := sess.Start(context.Background()); err != nil {
		return err
	}
	defer sess.Shutdown()

	if terminal == nil {
		<-ctx.Done()
		logger.Info("Received signal, shutting down")
		return nil
	}

	go func() {
		<-ctx.Done()
		sess.Shutdown()
		terminal.Quit()
	}()
	if err := terminal.Run(); err != nil {
		logger.Error("Terminal surface failed", "error", err)
		return err
	}
	logger.Info("Surface closed, shutting down", "phase", sess.Phase())
	return nil
}

// loadConfig layers the config file, the environment and explicitly set flags.
func loadConfig(flagSet *pflag.FlagSet, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	if flagSet.Changed("skip-sidecar") {
		cfg.SkipSidecar = opts.skipSidecar
	}
	if flagSet.Changed("headless") {
		cfg.Headless = opts.headless
	}
	if flagSet.Changed("no-browser") {
		cfg.OpenBrowser = !opts.noBrowser
	}
	if flagSet.Changed("health-timeout") {
		cfg.Health.Timeout = opts.healthTimeout
	}
	if flagSet.Changed("poll-interval") {
		cfg.Health.PollInterval = opts.pollInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func tailLines(buffer *sidecar.LogBuffer) func(n int) []string {
	return func(n int) []string {
		entries := buffer.Latest(n)
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			lines = append(lines, fmt.Sprintf("[%s] %s", e.Source, e.Message))
		}
		return lines
	}
}

func printHistory(w io.Writer, path string, limit int) error {
	j, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open session journal: %w", err)
	}
	defer j.Close()

	events, err := j.Recent(limit)
	if err != nil {
		return fmt.Errorf("failed to read session journal: %w", err)
	}
	// Recent is newest first; print in the order things happened.
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		fmt.Fprintf(w, "%s  %s  %-20s %s\n", e.Time().Local().Format(time.RFC3339), e.SessionID, e.Kind, e.Detail)
	}
	return nil
}
