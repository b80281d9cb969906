// Package toplevel implements the client side of the
// zwlr_foreign_toplevel_management_unstable_v1 protocol: the manager that
// announces top-level windows, the per-window handle state machine, and the
// registry of live handles. Focus transitions are reported through a single
// notify sink, edge-triggered on the activated state flag.
package toplevel

import (
	"github.com/rs/zerolog"

	"github.com/wayfocus/wayfocus/internal/logger"
	"github.com/wayfocus/wayfocus/internal/wire"
)

// Protocol interface names and the version this client binds. Version 3
// covers every event consumed here, including parent.
const (
	InterfaceName       = "zwlr_foreign_toplevel_manager_v1"
	HandleInterfaceName = "zwlr_foreign_toplevel_handle_v1"
	BindVersion         = 3
)

// zwlr_foreign_toplevel_manager_v1 opcodes.
const (
	opManagerStop = 0

	evtManagerToplevel = 0
	evtManagerFinished = 1
)

// NotifyFunc receives one call per focus acquisition. Absent app ids and
// titles arrive as empty strings; focused is true on every call because only
// gaining focus is announced, losing it is implied by another window gaining
// it.
type NotifyFunc func(appID, title string, focused bool)

// Manager is the bound zwlr_foreign_toplevel_manager_v1 proxy. It constructs
// a Handle for every window the compositor announces and owns the notify
// sink the handles report through.
type Manager struct {
	wire.BaseProxy
	conn     *wire.Conn
	records  *Registry
	sink     NotifyFunc
	finished bool

	log *zerolog.Logger
}

// NewManager prepares a manager proxy for binding against the given
// connection. Records announced by the compositor land in records.
func NewManager(conn *wire.Conn, records *Registry) *Manager {
	return &Manager{
		conn:    conn,
		records: records,
		log:     logger.WithComponent("toplevel"),
	}
}

// SetSink installs the focus notification callback. Last call wins; a nil
// sink silences notifications.
func (m *Manager) SetSink(fn NotifyFunc) {
	m.sink = fn
}

// Finished reports whether the compositor revoked the extension.
func (m *Manager) Finished() bool {
	return m.finished
}

func (m *Manager) emit(appID, title string) {
	if m.sink != nil {
		m.sink(appID, title, true)
	}
}

// Dispatch consumes manager events.
func (m *Manager) Dispatch(ev *wire.Event) {
	switch ev.Opcode {
	case evtManagerToplevel:
		id := ev.NewID()
		if ev.Err() != nil {
			return
		}
		h := &Handle{conn: m.conn, mgr: m}
		h.SetID(id)
		// Insert and register before returning to the dispatcher so no
		// event racing the announcement can be lost.
		m.records.Insert(h)
		m.conn.Register(h)
		m.log.Debug().Uint32("id", id).Msg("toplevel announced")
	case evtManagerFinished:
		m.log.Debug().Msg("manager finished, extension revoked")
		m.conn.Unregister(m.ID())
		m.finished = true
	}
}

// Release drops the manager proxy. Safe to call after the compositor already
// revoked the extension.
func (m *Manager) Release() {
	if m.finished {
		return
	}
	m.conn.Unregister(m.ID())
	m.finished = true
}
