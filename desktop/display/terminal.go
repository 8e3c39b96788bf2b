package display

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const defaultTailLines = 8

// TerminalConfig holds configuration options for a Terminal.
type TerminalConfig struct {
	Title       string                 // Optional, defaults to "NDM"
	ToggleKey   string                 // Shown in the help line, defaults to "f11"
	OpenBrowser bool                   // Open the UI origin in the system browser on Navigate
	Tail        func(n int) []string   // Optional source of recent backend output, shown on failure
	Logger      *slog.Logger           // Optional, defaults to slog.Default()
	Input       io.Reader              // Optional, defaults to the terminal
	Output      io.Writer              // Optional, defaults to the terminal
	OpenURL     func(url string) error // Optional, defaults to the platform opener
}

// Terminal is an interactive Surface built on a bubbletea program. Presentation mode is
// the terminal's alternate screen; focus follows the terminal's focus reports.
type Terminal struct {
	program *tea.Program
	logger  *slog.Logger

	openBrowser bool
	openURL     func(string) error

	focused    atomic.Bool
	fullscreen atomic.Bool
	closed     atomic.Bool

	mu        sync.Mutex
	shortcuts map[string]func()
}

// NewTerminal creates the surface. Call Run to start its event loop.
func NewTerminal(config TerminalConfig) *Terminal {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	openURL := config.OpenURL
	if openURL == nil {
		openURL = openInBrowser
	}
	title := config.Title
	if title == "" {
		title = "NDM"
	}
	toggleKey := config.ToggleKey
	if toggleKey == "" {
		toggleKey = "f11"
	}

	t := &Terminal{
		logger:      logger.With("component", "Terminal"),
		openBrowser: config.OpenBrowser,
		openURL:     openURL,
		shortcuts:   make(map[string]func()),
	}
	// Terminals only report focus changes, so assume the window that launched us has it.
	t.focused.Store(true)

	opts := []tea.ProgramOption{tea.WithReportFocus()}
	if config.Input != nil {
		opts = append(opts, tea.WithInput(config.Input))
	}
	if config.Output != nil {
		opts = append(opts, tea.WithOutput(config.Output))
	}
	t.program = tea.NewProgram(newModel(t, title, toggleKey, config.Tail), opts...)
	return t
}

// Run blocks until the user quits or Quit is called.
func (t *Terminal) Run() error {
	defer t.closed.Store(true)
	_, err := t.program.Run()
	return err
}

// Quit ends the event loop.
func (t *Terminal) Quit() {
	t.program.Quit()
}

func (t *Terminal) EnterPresentationMode() error {
	return t.setPresentation(true)
}

func (t *Terminal) ExitPresentationMode() error {
	return t.setPresentation(false)
}

func (t *Terminal) setPresentation(on bool) error {
	if t.closed.Load() {
		return ErrSurfaceClosed
	}
	t.fullscreen.Store(on)
	t.program.Send(presentationMsg{on: on})
	return nil
}

func (t *Terminal) IsFocused() bool {
	return t.focused.Load()
}

func (t *Terminal) IsFullscreen() bool {
	return t.fullscreen.Load()
}

// Navigate shows the UI origin and, when configured, opens it in the system browser.
func (t *Terminal) Navigate(url string) error {
	if t.closed.Load() {
		return ErrSurfaceClosed
	}
	t.program.Send(navigateMsg{url: url})
	if !t.openBrowser {
		return nil
	}
	if err := t.openURL(url); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func (t *Terminal) ShowError(message string) {
	if t.closed.Load() {
		t.logger.Warn("Surface closed, dropping error message", "message", message)
		return
	}
	t.program.Send(failureMsg{message: message})
}

func (t *Terminal) RegisterShortcut(key string, action func()) error {
	key = strings.ToLower(key)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.shortcuts[key]; exists {
		return fmt.Errorf("%w: %s", ErrShortcutTaken, key)
	}
	t.shortcuts[key] = action
	return nil
}

func (t *Terminal) shortcut(key string) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shortcuts[key]
}

func openInBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

type presentationMsg struct{ on bool }

type navigateMsg struct{ url string }

type failureMsg struct{ message string }

type phase int

const (
	phaseWaiting phase = iota
	phaseReady
	phaseFailed
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	readyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	tailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).PaddingLeft(2)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	surface   *Terminal
	title     string
	toggleKey string
	tail      func(n int) []string

	spinner    spinner.Model
	phase      phase
	url        string
	message    string
	tailLines  []string
	fullscreen bool
	width      int
}

func newModel(surface *Terminal, title, toggleKey string, tail func(n int) []string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{
		surface:   surface,
		title:     title,
		toggleKey: toggleKey,
		tail:      tail,
		spinner:   s,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		if action := m.surface.shortcut(key); action != nil {
			// Run off the event loop: actions call back into the surface, which uses Send.
			return m, func() tea.Msg {
				action()
				return nil
			}
		}
		return m, nil

	case tea.FocusMsg:
		m.surface.focused.Store(true)
		return m, nil

	case tea.BlurMsg:
		m.surface.focused.Store(false)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case presentationMsg:
		m.fullscreen = msg.on
		if msg.on {
			return m, tea.EnterAltScreen
		}
		return m, tea.ExitAltScreen

	case navigateMsg:
		m.phase = phaseReady
		m.url = msg.url
		return m, nil

	case failureMsg:
		m.phase = phaseFailed
		m.message = msg.message
		if m.tail != nil {
			m.tailLines = m.tail(defaultTailLines)
		}
		return m, nil

	case spinner.TickMsg:
		if m.phase != phaseWaiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch m.phase {
	case phaseWaiting:
		b.WriteString(m.spinner.View())
		b.WriteString(statusStyle.Render(" Starting backend..."))
	case phaseReady:
		b.WriteString(readyStyle.Render("Backend ready"))
		b.WriteString(statusStyle.Render(" " + m.url))
	case phaseFailed:
		style := errorStyle
		if m.width > 0 {
			style = style.Width(m.width)
		}
		b.WriteString(style.Render(m.message))
		if len(m.tailLines) > 0 {
			b.WriteString("\n\n")
			b.WriteString(statusStyle.Render("Last backend output:"))
			for _, line := range m.tailLines {
				b.WriteString("\n")
				b.WriteString(tailStyle.Render(line))
			}
		}
	}

	b.WriteString("\n\n")
	help := m.toggleKey + " presentation mode • q quit"
	if m.fullscreen {
		help = m.toggleKey + " leave presentation mode • q quit"
	}
	b.WriteString(helpStyle.Render(help))
	b.WriteString("\n")
	return b.String()
}
