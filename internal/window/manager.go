// Package window provides the focus-tracking backend abstraction: a Wayland
// backend built on the foreign-toplevel tracker, an X11 fallback, and a
// manager that selects a backend and fans focus events out to subscribers.
package window

import (
	"fmt"
	"sync"

	"github.com/wayfocus/wayfocus/internal/logger"
)

// Manager selects a backend and distributes its focus events.
type Manager struct {
	backend Backend

	mu        sync.RWMutex
	current   *FocusEvent
	listeners []chan *FocusEvent
}

// NewManager creates a manager for the requested backend. "auto" prefers
// Wayland and falls back to X11; "wayland" and "x11" force one backend.
// socket overrides $WAYLAND_DISPLAY for the Wayland backend.
func NewManager(backendName, socket string) (*Manager, error) {
	log := logger.WithComponent("window-manager")

	var backend Backend
	switch backendName {
	case "wayland":
		b, err := NewWaylandBackend(socket)
		if err != nil {
			return nil, err
		}
		backend = b
	case "x11":
		b, err := NewX11Backend()
		if err != nil {
			return nil, err
		}
		backend = b
	case "", "auto":
		if b, err := NewWaylandBackend(socket); err == nil {
			backend = b
		} else {
			log.Debug().Err(err).Msg("wayland backend unavailable, trying x11")
			b, xerr := NewX11Backend()
			if xerr != nil {
				return nil, fmt.Errorf("no usable backend: wayland: %v, x11: %w", err, xerr)
			}
			backend = b
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", backendName)
	}

	log.Info().Str("backend", backend.Name()).Msg("focus backend selected")
	return &Manager{backend: backend}, nil
}

// NewManagerWithBackend wraps an existing backend, mainly for tests.
func NewManagerWithBackend(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// Start begins watching focus changes.
func (m *Manager) Start() error {
	return m.backend.WatchFocus(m.onFocus)
}

// Stop tears the backend down.
func (m *Manager) Stop() {
	if err := m.backend.Close(); err != nil {
		logger.WithComponent("window-manager").Debug().Err(err).Msg("backend close failed")
	}
}

// BackendName reports which backend is active.
func (m *Manager) BackendName() string {
	return m.backend.Name()
}

// Current returns the most recent focus event, or nil before the first one.
func (m *Manager) Current() *FocusEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe returns a channel receiving every focus event. Slow subscribers
// drop events rather than stalling the backend.
func (m *Manager) Subscribe() chan *FocusEvent {
	ch := make(chan *FocusEvent, 16)
	m.mu.Lock()
	m.listeners = append(m.listeners, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel returned by Subscribe.
func (m *Manager) Unsubscribe(ch chan *FocusEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.listeners {
		if l == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) onFocus(ev *FocusEvent) {
	// Sends happen under the lock so Unsubscribe cannot close a channel
	// mid-send; they are non-blocking, so the lock is held only briefly.
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ev
	for _, ch := range m.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}
