package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console is a headless Surface for runs without a terminal. It never has input focus,
// so presentation-mode shortcuts are inert, and it reports status as plain lines.
type Console struct {
	mu         sync.Mutex
	out        io.Writer
	fullscreen bool
	shortcuts  map[string]func()
}

// NewConsole writes status lines to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, shortcuts: make(map[string]func())}
}

func (c *Console) EnterPresentationMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullscreen = true
	return nil
}

func (c *Console) ExitPresentationMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullscreen = false
	return nil
}

func (c *Console) IsFocused() bool {
	return false
}

func (c *Console) IsFullscreen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullscreen
}

func (c *Console) Navigate(url string) error {
	return c.printf("ready: %s\n", url)
}

func (c *Console) ShowError(message string) {
	c.printf("error: %s\n", message)
}

func (c *Console) RegisterShortcut(key string, action func()) error {
	key = strings.ToLower(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.shortcuts[key]; exists {
		return fmt.Errorf("%w: %s", ErrShortcutTaken, key)
	}
	c.shortcuts[key] = action
	return nil
}

func (c *Console) printf(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, format, args...)
	return err
}
