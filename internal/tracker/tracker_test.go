package tracker

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfocus/wayfocus/internal/toplevel"
	"github.com/wayfocus/wayfocus/internal/wire"
)

// Wayland message opcodes the fake compositor understands.
const (
	reqSync        = 0
	reqGetRegistry = 1
	reqBind        = 0

	evtGlobal       = 0
	evtCallbackDone = 0

	evtMgrToplevel = 0

	evtTitle  = 0
	evtAppID  = 1
	evtState  = 4
	evtDone   = 5
	evtClosed = 6
)

// Server-allocated object ids live in the upper range.
const serverIDBase = 0xff000000

// fakeCompositor implements just enough of the compositor side of the wire
// protocol to bootstrap a tracker: registry discovery, sync callbacks, and
// scripted foreign-toplevel traffic.
type fakeCompositor struct {
	t         *testing.T
	path      string
	listener  net.Listener
	advertise bool

	mu         sync.Mutex
	conn       net.Conn
	registryID uint32
	managerID  uint32
	syncs      int
	nextHandle uint32

	// onSecondSync, when set, emits the initial toplevel burst between the
	// bind becoming visible and the second sync reply.
	onSecondSync func(f *fakeCompositor)
}

func newFakeCompositor(t *testing.T, advertise bool) *fakeCompositor {
	t.Helper()
	dir, err := os.MkdirTemp("", "wayfocus")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "w-0")
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	f := &fakeCompositor{
		t:          t,
		path:       path,
		listener:   listener,
		advertise:  advertise,
		nextHandle: serverIDBase + 1,
	}
	go f.serve()
	return f
}

func (f *fakeCompositor) serve() {
	conn, err := f.listener.Accept()
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		object, opcode, ev, err := f.readRequest(conn)
		if err != nil {
			return
		}
		f.handle(object, opcode, ev)
	}
}

func (f *fakeCompositor) readRequest(conn net.Conn) (uint32, uint16, *wire.Event, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, 0, nil, err
	}
	object := binary.LittleEndian.Uint32(header[0:4])
	sizeOpcode := binary.LittleEndian.Uint32(header[4:8])
	size := int(sizeOpcode >> 16)
	opcode := uint16(sizeOpcode & 0xffff)
	body := make([]byte, size-8)
	if _, err := io.ReadFull(conn, body); err != nil {
		return 0, 0, nil, err
	}
	return object, opcode, wire.NewEvent(object, opcode, body), nil
}

func (f *fakeCompositor) handle(object uint32, opcode uint16, ev *wire.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case object == 1 && opcode == reqGetRegistry:
		f.registryID = ev.NewID()
		if f.advertise {
			f.send(f.registryID, evtGlobal, uint32(7), toplevel.InterfaceName, uint32(3))
		}
	case object == 1 && opcode == reqSync:
		callbackID := ev.NewID()
		f.syncs++
		if f.syncs == 2 && f.onSecondSync != nil {
			f.onSecondSync(f)
		}
		f.send(callbackID, evtCallbackDone, uint32(0))
	case object == f.registryID && opcode == reqBind:
		ev.Uint32()  // global name
		_ = ev.String() // interface
		ev.Uint32()  // version
		f.managerID = ev.NewID()
	}
}

// send writes one event to the client. Callers hold f.mu.
func (f *fakeCompositor) send(object uint32, opcode uint16, args ...interface{}) {
	msg, err := wire.BuildMessage(object, opcode, args...)
	require.NoError(f.t, err)
	_, err = f.conn.Write(msg)
	require.NoError(f.t, err)
}

// emit sends an event from a test goroutine.
func (f *fakeCompositor) emit(object uint32, opcode uint16, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.send(object, opcode, args...)
}

// announceToplevel emits a full announcement burst for one new window.
func (f *fakeCompositor) announceToplevel(appID, title string, activated bool) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextHandle
	f.nextHandle++
	f.send(f.managerID, evtMgrToplevel, id)
	f.send(id, evtAppID, appID)
	f.send(id, evtTitle, title)
	if activated {
		f.send(id, evtState, []uint32{toplevel.StateActivated})
	} else {
		f.send(id, evtState, []uint32{})
	}
	f.send(id, evtDone)
	return id
}

type sinkRecorder struct {
	mu    sync.Mutex
	calls []struct {
		appID, title string
		focused      bool
	}
}

func (s *sinkRecorder) fn(appID, title string, focused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, struct {
		appID, title string
		focused      bool
	}{appID, title, focused})
}

func (s *sinkRecorder) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *sinkRecorder) at(i int) (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calls[i]
	return c.appID, c.title, c.focused
}

func TestInitFailsWithoutCompositor(t *testing.T) {
	tr := New("/nonexistent/wayfocus-test-socket")
	err := tr.Init()
	require.Error(t, err)
	assert.Equal(t, Disconnected, tr.State())
	assert.Equal(t, -1, tr.FD())

	// Cleanup on a never-initialized tracker is safe, twice.
	tr.Cleanup()
	tr.Cleanup()
	assert.Equal(t, Closed, tr.State())
}

func TestInitFailsWhenManagerGlobalAbsent(t *testing.T) {
	f := newFakeCompositor(t, false)
	tr := New(f.path)
	err := tr.Init()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.Equal(t, Disconnected, tr.State())
	assert.Equal(t, -1, tr.FD())
}

func TestInitAppliesInitialWindowSet(t *testing.T) {
	f := newFakeCompositor(t, true)
	f.onSecondSync = func(f *fakeCompositor) {
		id := f.nextHandle
		f.nextHandle++
		f.send(f.managerID, evtMgrToplevel, id)
		f.send(id, evtAppID, "editor")
		f.send(id, evtTitle, "draft.txt")
		f.send(id, evtState, []uint32{toplevel.StateActivated})
		f.send(id, evtDone)
	}

	sink := &sinkRecorder{}
	tr := New(f.path)
	tr.SetCallback(sink.fn)
	require.NoError(t, tr.Init())
	defer tr.Cleanup()

	assert.Equal(t, Ready, tr.State())
	assert.GreaterOrEqual(t, tr.FD(), 0)
	assert.Equal(t, 1, tr.Records().Len())

	require.Equal(t, 1, sink.len())
	appID, title, focused := sink.at(0)
	assert.Equal(t, "editor", appID)
	assert.Equal(t, "draft.txt", title)
	assert.True(t, focused)
}

func TestReadEventsDeliversLiveUpdates(t *testing.T) {
	f := newFakeCompositor(t, true)
	sink := &sinkRecorder{}
	tr := New(f.path)
	tr.SetCallback(sink.fn)
	require.NoError(t, tr.Init())
	defer tr.Cleanup()

	// A new window grabbing focus arrives after init.
	bID := f.announceToplevel("web", "browser", true)
	require.Eventually(t, func() bool {
		tr.ReadEvents()
		return sink.len() == 1
	}, 2*time.Second, 5*time.Millisecond)
	appID, title, focused := sink.at(0)
	assert.Equal(t, "web", appID)
	assert.Equal(t, "browser", title)
	assert.True(t, focused)

	// Repeated activated states within one focus run stay silent; a later
	// window proves the quiet period was processed.
	f.emit(bID, evtState, []uint32{toplevel.StateActivated})
	f.emit(bID, evtDone)
	f.announceToplevel("term", "shell", true)
	require.Eventually(t, func() bool {
		tr.ReadEvents()
		return sink.len() == 2
	}, 2*time.Second, 5*time.Millisecond)
	appID, _, _ = sink.at(1)
	assert.Equal(t, "term", appID)
	assert.Equal(t, 2, tr.Records().Len())

	// Closing a window removes its record.
	f.emit(bID, evtClosed)
	require.Eventually(t, func() bool {
		tr.ReadEvents()
		return tr.Records().Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReadEventsWithNoDataNeverBlocks(t *testing.T) {
	f := newFakeCompositor(t, true)
	tr := New(f.path)
	require.NoError(t, tr.Init())
	defer tr.Cleanup()

	// Would hang the test on any blocking branch.
	for i := 0; i < 10; i++ {
		tr.ReadEvents()
	}
	assert.Equal(t, Ready, tr.State())
	require.NoError(t, tr.Dispatch())
}

func TestCleanupIsIdempotent(t *testing.T) {
	f := newFakeCompositor(t, true)
	tr := New(f.path)
	require.NoError(t, tr.Init())

	tr.Cleanup()
	assert.Equal(t, Closed, tr.State())
	assert.Equal(t, -1, tr.FD())
	tr.Cleanup()
	assert.Equal(t, Closed, tr.State())
}

func TestDispatchReportsDeadConnection(t *testing.T) {
	f := newFakeCompositor(t, true)
	tr := New(f.path)
	require.NoError(t, tr.Init())
	defer tr.Cleanup()

	// Compositor goes away; the next read surfaces through Dispatch.
	f.mu.Lock()
	f.conn.Close()
	f.mu.Unlock()

	require.Eventually(t, func() bool {
		tr.ReadEvents()
		return tr.Dispatch() != nil
	}, 2*time.Second, 5*time.Millisecond)
}
