// Package wire implements the client side of the Wayland wire protocol over
// a Unix stream socket: object/proxy bookkeeping, request marshaling,
// synchronous roundtrips, and the prepare/commit non-blocking read handshake
// that lets a host poll the descriptor from its own event loop.
//
// The connection is single-threaded by contract. All calls must come from
// one logical thread of control, so no locking happens here.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/wayfocus/wayfocus/internal/logger"
)

// wl_display lives at object id 1 on every connection.
const displayID = 1

// Core protocol opcodes used by this client.
const (
	opDisplaySync        = 0
	opDisplayGetRegistry = 1

	evtDisplayError    = 0
	evtDisplayDeleteID = 1

	evtCallbackDone = 0
)

// ErrClosed is the sticky error after the connection has been torn down.
var ErrClosed = errors.New("wire: connection closed")

// Conn is one connection to the compositor. It owns the socket descriptor,
// the object table, an outbound request buffer, and the queue of decoded but
// not yet dispatched events.
type Conn struct {
	fd      int
	nextID  uint32
	objects map[uint32]Proxy

	out   []byte  // buffered requests, written on Flush
	in    []byte  // unparsed inbound tail
	queue []Event // decoded events awaiting dispatch

	prepared bool  // read intent declared via PrepareRead
	err      error // sticky fatal error

	log *zerolog.Logger
}

// Connect opens the compositor socket. An empty name falls back to
// $WAYLAND_DISPLAY, then "wayland-0"; relative names resolve under
// $XDG_RUNTIME_DIR.
func Connect(socketName string) (*Conn, error) {
	if socketName == "" {
		socketName = os.Getenv("WAYLAND_DISPLAY")
		if socketName == "" {
			socketName = "wayland-0"
		}
	}
	path := socketName
	if !filepath.IsAbs(path) {
		runDir := os.Getenv("XDG_RUNTIME_DIR")
		if runDir == "" {
			return nil, errors.New("wire: XDG_RUNTIME_DIR not set")
		}
		path = filepath.Join(runDir, socketName)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("wire: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("wire: connect %s: %w", path, err)
	}
	return NewConn(fd), nil
}

// NewConn wraps an already-connected stream socket. The connection takes
// ownership of the descriptor.
func NewConn(fd int) *Conn {
	return &Conn{
		fd:      fd,
		nextID:  2, // 1 is wl_display
		objects: make(map[uint32]Proxy),
		log:     logger.WithComponent("wire"),
	}
}

// FD returns the pollable socket descriptor, or -1 after Close. The caller
// may poll it but must not read or write it directly.
func (c *Conn) FD() int {
	return c.fd
}

// Close tears down the socket. Idempotent.
func (c *Conn) Close() {
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	if c.err == nil {
		c.err = ErrClosed
	}
}

// NewID allocates the next client-range object id.
func (c *Conn) NewID() uint32 {
	id := c.nextID
	c.nextID++
	return id
}

// Register adds a proxy to the object table so its events can be dispatched.
func (c *Conn) Register(p Proxy) {
	c.objects[p.ID()] = p
}

// Unregister drops an object from the table. Further events for the id are a
// compositor bug.
func (c *Conn) Unregister(id uint32) {
	delete(c.objects, id)
}

// SendRequest marshals a request into the outbound buffer. Nothing hits the
// socket until Flush.
func (c *Conn) SendRequest(object uint32, opcode uint16, args ...interface{}) error {
	if c.err != nil {
		return c.err
	}
	msg, err := BuildMessage(object, opcode, args...)
	if err != nil {
		return err
	}
	c.out = append(c.out, msg...)
	return nil
}

// Flush writes all buffered requests to the socket.
func (c *Conn) Flush() error {
	if c.err != nil {
		return c.err
	}
	for len(c.out) > 0 {
		n, err := unix.Write(c.fd, c.out)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			c.err = fmt.Errorf("wire: write: %w", err)
			return c.err
		}
		c.out = c.out[n:]
	}
	c.out = nil
	return nil
}

// readOnce performs a single read from the socket and decodes any complete
// messages into the event queue. A partial message tail stays buffered until
// the next read.
func (c *Conn) readOnce() error {
	if c.err != nil {
		return c.err
	}
	var buf [4096]byte
	for {
		n, err := unix.Read(c.fd, buf[:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			c.err = fmt.Errorf("wire: read: %w", err)
			return c.err
		}
		if n == 0 {
			c.err = errors.New("wire: connection closed by compositor")
			c.log.Debug().Msg("compositor hung up")
			return c.err
		}
		c.in = append(c.in, buf[:n]...)
		break
	}
	return c.decode()
}

// decode splits the inbound buffer into complete messages.
func (c *Conn) decode() error {
	for len(c.in) >= headerSize {
		object := binary.LittleEndian.Uint32(c.in[0:4])
		sizeOpcode := binary.LittleEndian.Uint32(c.in[4:8])
		size := int(sizeOpcode >> 16)
		opcode := uint16(sizeOpcode & 0xffff)
		if size < headerSize {
			c.err = fmt.Errorf("wire: invalid message size %d from object %d", size, object)
			return c.err
		}
		if len(c.in) < size {
			return nil
		}
		body := make([]byte, size-headerSize)
		copy(body, c.in[headerSize:size])
		c.queue = append(c.queue, Event{Object: object, Opcode: opcode, data: body})
		c.in = c.in[size:]
	}
	if len(c.in) == 0 {
		c.in = nil
	}
	return nil
}

// DispatchPending delivers every queued event to its proxy without touching
// the socket. Dispatch handlers may register and unregister objects.
func (c *Conn) DispatchPending() error {
	if c.err != nil {
		return c.err
	}
	for len(c.queue) > 0 {
		ev := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.dispatch(&ev); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) dispatch(ev *Event) error {
	if ev.Object == displayID {
		return c.handleDisplayEvent(ev)
	}
	p, ok := c.objects[ev.Object]
	if !ok {
		// Only possible if the compositor keeps sending events for an
		// object this client already destroyed.
		panic(fmt.Sprintf("wire: event %d for unknown object %d", ev.Opcode, ev.Object))
	}
	p.Dispatch(ev)
	if err := ev.Err(); err != nil {
		c.err = err
		return err
	}
	return c.err
}

func (c *Conn) handleDisplayEvent(ev *Event) error {
	switch ev.Opcode {
	case evtDisplayError:
		object := ev.Uint32()
		code := ev.Uint32()
		message := ev.String()
		c.err = fmt.Errorf("wire: protocol error on object %d, code %d: %s", object, code, message)
		c.log.Error().Uint32("object", object).Uint32("code", code).Str("message", message).Msg("fatal protocol error")
		return c.err
	case evtDisplayDeleteID:
		id := ev.Uint32()
		delete(c.objects, id)
	}
	return ev.Err()
}

// syncCallback is the wl_callback created by Roundtrip.
type syncCallback struct {
	BaseProxy
	conn  *Conn
	fired bool
}

func (cb *syncCallback) Dispatch(ev *Event) {
	if ev.Opcode == evtCallbackDone {
		ev.Uint32() // callback_data, unused
		cb.fired = true
		cb.conn.Unregister(cb.ID())
	}
}

// Roundtrip sends wl_display.sync and blocks until the compositor answers,
// dispatching everything received in the meantime. This is the only blocking
// read path in the package.
func (c *Conn) Roundtrip() error {
	cb := &syncCallback{conn: c}
	cb.SetID(c.NewID())
	c.Register(cb)
	if err := c.SendRequest(displayID, opDisplaySync, cb.ID()); err != nil {
		return err
	}
	if err := c.Flush(); err != nil {
		return err
	}
	for {
		if err := c.DispatchPending(); err != nil {
			return err
		}
		if cb.fired {
			return nil
		}
		if err := c.readOnce(); err != nil {
			return err
		}
	}
}

// PrepareRead declares the intent to read from the socket. It fails while
// decoded events are still queued; the caller must dispatch those first and
// retry. Part of the prepare/poll/commit-or-cancel sequence that keeps a
// shared descriptor safe for an external poll loop.
func (c *Conn) PrepareRead() bool {
	if c.err != nil || len(c.queue) > 0 {
		return false
	}
	c.prepared = true
	return true
}

// CancelRead withdraws a prepared read without touching the socket.
func (c *Conn) CancelRead() {
	c.prepared = false
}

// ReadEvents commits a prepared read: one read from the socket, decoding
// complete messages into the queue. Call only after readiness was confirmed,
// so the read does not block.
func (c *Conn) ReadEvents() error {
	if !c.prepared {
		return errors.New("wire: read not prepared")
	}
	c.prepared = false
	return c.readOnce()
}

// Readable polls the descriptor with a zero timeout.
func (c *Conn) Readable() (bool, error) {
	for {
		fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, fmt.Errorf("wire: poll: %w", err)
		}
		return n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0, nil
	}
}
