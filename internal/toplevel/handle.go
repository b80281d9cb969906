package toplevel

import "github.com/wayfocus/wayfocus/internal/wire"

// zwlr_foreign_toplevel_handle_v1 opcodes.
const (
	opHandleDestroy = 7

	evtHandleTitle       = 0
	evtHandleAppID       = 1
	evtHandleOutputEnter = 2
	evtHandleOutputLeave = 3
	evtHandleState       = 4
	evtHandleDone        = 5
	evtHandleClosed      = 6
	evtHandleParent      = 7
)

// State flags carried by the state event's array.
const (
	StateMaximized  = 0
	StateMinimized  = 1
	StateActivated  = 2
	StateFullscreen = 3
)

// Handle is one tracked top-level window. Its fields are mutated only by its
// own Dispatch; title and app id are replaced wholesale on every update and
// the focused flag is authoritative once the batch's done marker has been
// seen.
type Handle struct {
	wire.BaseProxy
	conn *wire.Conn
	mgr  *Manager

	appID     string
	title     string
	focused   bool
	committed bool
}

// AppID returns the owning application's id, empty when never announced.
func (h *Handle) AppID() string { return h.appID }

// Title returns the window title, empty when never announced.
func (h *Handle) Title() string { return h.title }

// Focused reports whether the window held focus after the last state batch.
func (h *Handle) Focused() bool { return h.focused }

// Committed reports whether at least one done marker has been seen.
func (h *Handle) Committed() bool { return h.committed }

// Dispatch consumes handle events.
func (h *Handle) Dispatch(ev *wire.Event) {
	switch ev.Opcode {
	case evtHandleTitle:
		h.title = ev.String()
	case evtHandleAppID:
		h.appID = ev.String()
	case evtHandleState:
		wasFocused := h.focused
		h.focused = false
		for _, s := range ev.Array() {
			if s == StateActivated {
				h.focused = true
				break
			}
		}
		// Rising edge only: one notification per focus acquisition,
		// nothing on retained focus or focus loss.
		if h.focused && !wasFocused {
			h.mgr.emit(h.appID, h.title)
		}
	case evtHandleDone:
		h.committed = true
	case evtHandleClosed:
		h.mgr.records.Remove(h.ID())
		h.Destroy()
	case evtHandleOutputEnter, evtHandleOutputLeave, evtHandleParent:
		// Accepted but carry no state here.
	}
}

// Destroy sends the handle's destructor and drops the proxy. After this no
// further event for the identity is valid.
func (h *Handle) Destroy() {
	_ = h.conn.SendRequest(h.ID(), opHandleDestroy)
	h.conn.Unregister(h.ID())
}
