package toplevel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/wayfocus/wayfocus/internal/wire"
)

type notification struct {
	appID   string
	title   string
	focused bool
}

// fixture wires a manager proxy to a recording sink over a real socketpair
// connection and drives it with synthetic events.
type fixture struct {
	conn    *wire.Conn
	records *Registry
	mgr     *Manager
	calls   []notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	conn := wire.NewConn(fds[0])
	t.Cleanup(func() {
		conn.Close()
		_ = unix.Close(fds[1])
	})

	f := &fixture{
		conn:    conn,
		records: NewRegistry(),
	}
	f.mgr = NewManager(conn, f.records)
	f.mgr.SetID(conn.NewID())
	conn.Register(f.mgr)
	f.mgr.SetSink(func(appID, title string, focused bool) {
		f.calls = append(f.calls, notification{appID, title, focused})
	})
	return f
}

// event builds a synthetic event body with the production encoder.
func event(t *testing.T, object uint32, opcode uint16, args ...interface{}) *wire.Event {
	t.Helper()
	msg, err := wire.BuildMessage(object, opcode, args...)
	require.NoError(t, err)
	return wire.NewEvent(object, opcode, msg[8:])
}

func (f *fixture) announce(t *testing.T, id uint32) *Handle {
	t.Helper()
	f.mgr.Dispatch(event(t, f.mgr.ID(), evtManagerToplevel, id))
	h := f.records.handles[id]
	require.NotNil(t, h)
	return h
}

func states(flags ...uint32) []uint32 {
	return flags
}

func TestFocusEdgeTriggering(t *testing.T) {
	f := newFixture(t)
	h := f.announce(t, 100)

	h.Dispatch(event(t, 100, evtHandleAppID, "editor"))
	h.Dispatch(event(t, 100, evtHandleTitle, "draft.txt"))
	h.Dispatch(event(t, 100, evtHandleState, states(StateActivated)))
	h.Dispatch(event(t, 100, evtHandleDone))

	require.Len(t, f.calls, 1)
	assert.Equal(t, notification{"editor", "draft.txt", true}, f.calls[0])

	// Retained focus never re-fires.
	h.Dispatch(event(t, 100, evtHandleState, states(StateActivated)))
	h.Dispatch(event(t, 100, evtHandleState, states(StateActivated, StateMaximized)))
	h.Dispatch(event(t, 100, evtHandleDone))
	assert.Len(t, f.calls, 1)

	// Focus loss is silent.
	h.Dispatch(event(t, 100, evtHandleState, states(StateMaximized)))
	h.Dispatch(event(t, 100, evtHandleDone))
	assert.Len(t, f.calls, 1)
	assert.False(t, h.Focused())

	// Re-acquisition is a fresh edge.
	h.Dispatch(event(t, 100, evtHandleState, states(StateActivated)))
	h.Dispatch(event(t, 100, evtHandleDone))
	require.Len(t, f.calls, 2)
	assert.Equal(t, notification{"editor", "draft.txt", true}, f.calls[1])
}

func TestFocusMovesToSecondWindow(t *testing.T) {
	f := newFixture(t)
	a := f.announce(t, 100)
	a.Dispatch(event(t, 100, evtHandleAppID, "editor"))
	a.Dispatch(event(t, 100, evtHandleState, states(StateActivated)))
	a.Dispatch(event(t, 100, evtHandleDone))
	require.Len(t, f.calls, 1)

	b := f.announce(t, 101)
	b.Dispatch(event(t, 101, evtHandleAppID, "web"))
	b.Dispatch(event(t, 101, evtHandleTitle, "browser"))
	b.Dispatch(event(t, 101, evtHandleState, states(StateActivated)))
	b.Dispatch(event(t, 101, evtHandleDone))

	require.Len(t, f.calls, 2)
	assert.Equal(t, notification{"web", "browser", true}, f.calls[1])
	assert.Equal(t, 2, f.records.Len())
}

func TestFieldReplaceSemantics(t *testing.T) {
	f := newFixture(t)
	h := f.announce(t, 100)

	h.Dispatch(event(t, 100, evtHandleTitle, "first"))
	assert.Equal(t, "first", h.Title())
	h.Dispatch(event(t, 100, evtHandleTitle, "second"))
	assert.Equal(t, "second", h.Title())
	h.Dispatch(event(t, 100, evtHandleTitle, ""))
	assert.Equal(t, "", h.Title())

	h.Dispatch(event(t, 100, evtHandleAppID, "app"))
	h.Dispatch(event(t, 100, evtHandleAppID, "other"))
	assert.Equal(t, "other", h.AppID())
}

func TestNotificationSubstitutesEmptyStrings(t *testing.T) {
	f := newFixture(t)
	h := f.announce(t, 100)

	// Focus gained before any title or app id was announced.
	h.Dispatch(event(t, 100, evtHandleState, states(StateActivated)))
	require.Len(t, f.calls, 1)
	assert.Equal(t, notification{"", "", true}, f.calls[0])
}

func TestClosedBeforeDoneRemovesRecord(t *testing.T) {
	f := newFixture(t)
	h := f.announce(t, 100)
	require.Equal(t, 1, f.records.Len())

	h.Dispatch(event(t, 100, evtHandleClosed))
	assert.Equal(t, 0, f.records.Len())
	assert.False(t, h.Committed())
	assert.Empty(t, f.calls)
}

func TestInertEventsCarryNoState(t *testing.T) {
	f := newFixture(t)
	h := f.announce(t, 100)

	h.Dispatch(event(t, 100, evtHandleOutputEnter, uint32(50)))
	h.Dispatch(event(t, 100, evtHandleOutputLeave, uint32(50)))
	h.Dispatch(event(t, 100, evtHandleParent, uint32(0)))

	assert.Empty(t, f.calls)
	assert.False(t, h.Focused())
	assert.Equal(t, 1, f.records.Len())
}

func TestManagerFinished(t *testing.T) {
	f := newFixture(t)
	f.mgr.Dispatch(event(t, f.mgr.ID(), evtManagerFinished))
	assert.True(t, f.mgr.Finished())

	// Release after finished is a no-op.
	f.mgr.Release()
	assert.True(t, f.mgr.Finished())
}

func TestRegistryRejectsDuplicateInsert(t *testing.T) {
	f := newFixture(t)
	f.announce(t, 100)
	require.Panics(t, func() {
		f.mgr.Dispatch(event(t, f.mgr.ID(), evtManagerToplevel, uint32(100)))
	})
}

func TestRegistryRejectsUnknownRemove(t *testing.T) {
	r := NewRegistry()
	require.Panics(t, func() {
		r.Remove(42)
	})
}

func TestRegistryRemoveIsSingleShot(t *testing.T) {
	f := newFixture(t)
	f.announce(t, 100)
	h := f.records.Remove(100)
	require.NotNil(t, h)
	require.Panics(t, func() {
		f.records.Remove(100)
	})
}
