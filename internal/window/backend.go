package window

import "time"

// FocusEvent describes one focus transition observed by a backend.
type FocusEvent struct {
	AppID   string    `json:"app_id"`
	Title   string    `json:"title"`
	Focused bool      `json:"focused"`
	Backend string    `json:"backend"`
	Time    time.Time `json:"time"`
}

// Backend defines the interface for focus-tracking backends (Wayland, X11).
type Backend interface {
	// Connect establishes the connection to the display server.
	Connect() error

	// Close stops watching and tears down the connection.
	Close() error

	// WatchFocus starts watching for focus changes and invokes the
	// callback on every transition until StopWatching.
	WatchFocus(callback func(*FocusEvent)) error

	// StopWatching stops the focus watching loop.
	StopWatching()

	// Name returns the backend name (e.g. "wayland", "x11").
	Name() string
}
