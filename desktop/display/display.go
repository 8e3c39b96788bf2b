// Package display defines the host surface the shell hands off to the backend, and the
// two surfaces the shell ships with: an interactive terminal and a headless console.
package display

import "errors"

var (
	// ErrSurfaceClosed is returned by operations on a surface whose event loop has ended.
	ErrSurfaceClosed = errors.New("display surface closed")
	// ErrShortcutTaken is returned when a key already has an action bound to it.
	ErrShortcutTaken = errors.New("shortcut already registered")
)

// Adapter switches the host surface in and out of presentation mode, a full-screen
// state without chrome.
type Adapter interface {
	EnterPresentationMode() error
	ExitPresentationMode() error
	IsFocused() bool
	IsFullscreen() bool
}

// Surface is the host the session drives: the Adapter plus navigation, a user-visible
// error slot and global shortcut registration.
type Surface interface {
	Adapter

	// Navigate hands the surface off to the backend's UI origin.
	Navigate(url string) error
	// ShowError replaces the status line with a message for the user.
	ShowError(message string)
	// RegisterShortcut binds action to key (bubbletea key names such as "f11").
	RegisterShortcut(key string, action func()) error
}
