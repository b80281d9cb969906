package window

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/wayfocus/wayfocus/internal/logger"
)

// x11PollInterval is how often the fallback backend samples the active
// window. X11 offers no equivalent of the toplevel protocol's edge events,
// so this backend derives edges from polling.
const x11PollInterval = 500 * time.Millisecond

// X11Backend implements Backend for X11 sessions and XWayland fallbacks,
// using the EWMH active-window property.
type X11Backend struct {
	conn *xgb.Conn
	root xproto.Window

	activeWinAtom xproto.Atom
	netWmNameAtom xproto.Atom
	wmClassAtom   xproto.Atom

	mu       sync.Mutex
	watching bool
	stopChan chan struct{}
	last     *FocusEvent
}

// NewX11Backend connects to the X server and resolves the atoms the watch
// loop needs.
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	b := &X11Backend{
		conn: conn,
		root: xproto.Setup(conn).DefaultScreen(conn).Root,
	}

	for _, a := range []struct {
		name string
		dst  *xproto.Atom
	}{
		{"_NET_ACTIVE_WINDOW", &b.activeWinAtom},
		{"_NET_WM_NAME", &b.netWmNameAtom},
		{"WM_CLASS", &b.wmClassAtom},
	} {
		reply, err := xproto.InternAtom(conn, false, uint16(len(a.name)), a.name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to intern atom %s: %w", a.name, err)
		}
		*a.dst = reply.Atom
	}

	return b, nil
}

// Connect establishes the connection (already done in NewX11Backend).
func (b *X11Backend) Connect() error {
	return nil
}

// Name returns the backend name.
func (b *X11Backend) Name() string {
	return "x11"
}

// Close stops watching and closes the X connection.
func (b *X11Backend) Close() error {
	b.StopWatching()
	b.conn.Close()
	return nil
}

// WatchFocus polls the active window and fires the callback on changes.
func (b *X11Backend) WatchFocus(callback func(*FocusEvent)) error {
	b.mu.Lock()
	if b.watching {
		b.mu.Unlock()
		return fmt.Errorf("already watching")
	}
	b.watching = true
	b.stopChan = make(chan struct{})
	b.mu.Unlock()

	go b.watchLoop(callback)
	return nil
}

func (b *X11Backend) watchLoop(callback func(*FocusEvent)) {
	log := logger.WithComponent("x11-backend")
	ticker := time.NewTicker(x11PollInterval)
	defer ticker.Stop()

	check := func() {
		ev, err := b.activeWindow()
		if err != nil {
			log.Debug().Err(err).Msg("failed to read active window")
			return
		}
		b.mu.Lock()
		changed := b.last == nil || b.last.AppID != ev.AppID || b.last.Title != ev.Title
		if changed {
			b.last = ev
		}
		b.mu.Unlock()
		if changed {
			callback(ev)
		}
	}

	check()
	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			check()
		}
	}
}

// StopWatching stops the watch loop.
func (b *X11Backend) StopWatching() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.watching {
		close(b.stopChan)
		b.watching = false
	}
}

// activeWindow resolves _NET_ACTIVE_WINDOW and reads its title and class.
func (b *X11Backend) activeWindow() (*FocusEvent, error) {
	reply, err := xproto.GetProperty(
		b.conn, false, b.root, b.activeWinAtom,
		xproto.GetPropertyTypeAny, 0, 1,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_ACTIVE_WINDOW: %w", err)
	}
	if len(reply.Value) < 4 {
		return nil, fmt.Errorf("_NET_ACTIVE_WINDOW not set")
	}
	win := xproto.Window(uint32(reply.Value[0]) |
		uint32(reply.Value[1])<<8 |
		uint32(reply.Value[2])<<16 |
		uint32(reply.Value[3])<<24)
	if win == 0 {
		return nil, fmt.Errorf("no active window")
	}

	ev := &FocusEvent{
		Focused: true,
		Backend: b.Name(),
		Time:    time.Now(),
	}
	ev.Title, _ = b.stringProperty(win, b.netWmNameAtom)
	if class, err := b.stringProperty(win, b.wmClassAtom); err == nil {
		// WM_CLASS is instance\0class\0; the class half matches the
		// app id reported by Wayland compositors most closely.
		parts := strings.Split(class, "\x00")
		if len(parts) >= 2 && parts[1] != "" {
			ev.AppID = parts[1]
		} else if parts[0] != "" {
			ev.AppID = parts[0]
		}
	}
	return ev, nil
}

func (b *X11Backend) stringProperty(win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(
		b.conn, false, win, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1,
	).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}
	return string(reply.Value), nil
}
