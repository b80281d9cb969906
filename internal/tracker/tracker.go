// Package tracker ties the wire connection and the foreign-toplevel
// protocol together behind the small surface a host embeds: Init, a
// settable focus callback, non-blocking dispatch, the pollable descriptor,
// the readiness-driven read sequence, and idempotent cleanup.
//
// A Tracker is single-threaded: every method must be called from the same
// logical thread, and calling back into the tracker from inside the focus
// callback is undefined.
package tracker

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wayfocus/wayfocus/internal/logger"
	"github.com/wayfocus/wayfocus/internal/toplevel"
	"github.com/wayfocus/wayfocus/internal/wire"
)

// NotifyFunc is re-exported so hosts only import this package.
type NotifyFunc = toplevel.NotifyFunc

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Bootstrapping
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Bootstrapping:
		return "bootstrapping"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrUnsupported means the compositor does not advertise the
// foreign-toplevel-management global. To the host it is no different from
// the display being unreachable: the feature is unusable here.
var ErrUnsupported = errors.New("tracker: compositor does not support " + toplevel.InterfaceName)

// Tracker owns one compositor connection and the window records derived
// from it.
type Tracker struct {
	socket string

	conn     *wire.Conn
	registry *wire.Registry
	manager  *toplevel.Manager
	records  *toplevel.Registry

	notify NotifyFunc
	state  State

	log *zerolog.Logger
}

// New creates a tracker for the given display socket. An empty socket uses
// the usual environment lookup.
func New(socket string) *Tracker {
	return &Tracker{
		socket: socket,
		log:    logger.WithComponent("tracker"),
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// SetCallback installs the focus notification sink. Last call wins; may be
// called before or after Init.
func (t *Tracker) SetCallback(fn NotifyFunc) {
	t.notify = fn
	if t.manager != nil {
		t.manager.SetSink(fn)
	}
}

// Records exposes the live window registry, for hosts that want to
// enumerate the current window set.
func (t *Tracker) Records() *toplevel.Registry {
	return t.records
}

// Init connects to the compositor and completes the bootstrap. Two
// roundtrips happen before it returns: the first makes the manager global
// visible so it can be bound, the second guarantees the initial burst of
// window announcements has been fully applied. On any failure every
// partially acquired resource is released and the tracker returns to
// Disconnected.
func (t *Tracker) Init() error {
	if t.state != Disconnected && t.state != Closed {
		return fmt.Errorf("tracker: init from state %s", t.state)
	}

	conn, err := wire.Connect(t.socket)
	if err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	t.conn = conn
	t.state = Connecting

	registry, err := conn.GetRegistry()
	if err != nil {
		t.release()
		t.state = Disconnected
		return fmt.Errorf("tracker: get_registry: %w", err)
	}
	t.registry = registry
	t.records = toplevel.NewRegistry()
	t.state = Bootstrapping

	registry.OnGlobal(toplevel.InterfaceName, func(r *wire.Registry, name, version uint32) {
		m := toplevel.NewManager(conn, t.records)
		if err := r.Bind(name, toplevel.InterfaceName, toplevel.BindVersion, m); err != nil {
			t.log.Error().Err(err).Msg("failed to bind toplevel manager")
			return
		}
		m.SetSink(t.notify)
		t.manager = m
	})

	if err := conn.Roundtrip(); err != nil {
		t.release()
		t.state = Disconnected
		return fmt.Errorf("tracker: registry roundtrip: %w", err)
	}
	if t.manager == nil {
		t.release()
		t.state = Disconnected
		return ErrUnsupported
	}

	// Second roundtrip: the initial toplevel announcements, and the nested
	// title/app_id/state bursts for each of them, are applied before Init
	// returns.
	if err := conn.Roundtrip(); err != nil {
		t.release()
		t.state = Disconnected
		return fmt.Errorf("tracker: toplevel roundtrip: %w", err)
	}

	t.state = Ready
	t.log.Debug().Int("windows", t.records.Len()).Msg("tracker ready")
	return nil
}

// Dispatch processes locally buffered events and flushes pending requests
// without blocking. An error means the connection is dead.
func (t *Tracker) Dispatch() error {
	if t.state != Ready {
		return fmt.Errorf("tracker: dispatch in state %s", t.state)
	}
	if err := t.conn.DispatchPending(); err != nil {
		return fmt.Errorf("tracker: dispatch: %w", err)
	}
	if err := t.conn.Flush(); err != nil {
		return fmt.Errorf("tracker: flush: %w", err)
	}
	return nil
}

// FD returns the pollable descriptor, or -1 when not connected. The host
// may poll it for readability but must not read or write it.
func (t *Tracker) FD() int {
	if t.conn == nil {
		return -1
	}
	return t.conn.FD()
}

// ReadEvents runs the non-blocking read sequence: declare read intent,
// draining already-decoded events until the intent sticks, flush, check
// readability with a zero timeout, then either commit the read and dispatch
// what arrived or cancel the intent. No branch blocks. Failures are logged
// and swallowed on purpose; the host notices a dead connection through
// Dispatch.
func (t *Tracker) ReadEvents() {
	if t.state != Ready {
		return
	}
	for !t.conn.PrepareRead() {
		if err := t.conn.DispatchPending(); err != nil {
			t.log.Debug().Err(err).Msg("dispatch while preparing read failed")
			return
		}
	}
	if err := t.conn.Flush(); err != nil {
		t.conn.CancelRead()
		t.log.Debug().Err(err).Msg("flush before read failed")
		return
	}
	readable, err := t.conn.Readable()
	if err != nil {
		t.conn.CancelRead()
		t.log.Debug().Err(err).Msg("readability check failed")
		return
	}
	if !readable {
		t.conn.CancelRead()
		return
	}
	if err := t.conn.ReadEvents(); err != nil {
		t.log.Debug().Err(err).Msg("read failed")
		return
	}
	if err := t.conn.DispatchPending(); err != nil {
		t.log.Debug().Err(err).Msg("dispatch after read failed")
	}
}

// Cleanup releases everything in a fixed order: window records, manager,
// registry, connection. Idempotent, and safe on a tracker that never
// finished Init.
func (t *Tracker) Cleanup() {
	if t.state == Closed {
		return
	}
	t.release()
	t.state = Closed
}

func (t *Tracker) release() {
	if t.records != nil {
		t.records.ForEach(func(h *toplevel.Handle) {
			h.Destroy()
		})
		t.records = nil
	}
	if t.manager != nil {
		t.manager.Release()
		t.manager = nil
	}
	if t.registry != nil && t.conn != nil {
		t.conn.Unregister(t.registry.ID())
	}
	t.registry = nil
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}
