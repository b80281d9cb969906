package wire

import (
	"encoding/binary"
	"fmt"
)

// Event is one decoded message from the compositor. Argument readers consume
// the body in order; a short or malformed body sets the sticky error instead
// of panicking so a broken compositor surfaces as a connection error.
type Event struct {
	Object uint32
	Opcode uint16

	data []byte
	off  int
	err  error
}

// NewEvent builds an event from a raw body. Used by the connection's reader
// and by tests that drive dispatch directly.
func NewEvent(object uint32, opcode uint16, body []byte) *Event {
	return &Event{Object: object, Opcode: opcode, data: body}
}

// Err reports the first decode error encountered by the argument readers.
func (e *Event) Err() error {
	return e.err
}

func (e *Event) fail(what string) {
	if e.err == nil {
		e.err = fmt.Errorf("wire: truncated %s argument in event %d:%d", what, e.Object, e.Opcode)
	}
}

// Uint32 reads the next uint argument.
func (e *Event) Uint32() uint32 {
	if e.err != nil || e.off+4 > len(e.data) {
		e.fail("uint")
		return 0
	}
	v := binary.LittleEndian.Uint32(e.data[e.off:])
	e.off += 4
	return v
}

// Int32 reads the next int argument.
func (e *Event) Int32() int32 {
	return int32(e.Uint32())
}

// NewID reads the next new_id argument.
func (e *Event) NewID() uint32 {
	return e.Uint32()
}

// String reads the next string argument. The wire length includes the NUL
// terminator; a zero length encodes a null string, returned as "".
func (e *Event) String() string {
	n := int(e.Uint32())
	if e.err != nil {
		return ""
	}
	if n == 0 {
		return ""
	}
	padded := pad4(n)
	if e.off+padded > len(e.data) {
		e.fail("string")
		return ""
	}
	s := string(e.data[e.off : e.off+n-1])
	e.off += padded
	return s
}

// Array reads the next array argument as a slice of uint32 entries, the only
// array payload this client consumes.
func (e *Event) Array() []uint32 {
	n := int(e.Uint32())
	if e.err != nil {
		return nil
	}
	padded := pad4(n)
	if e.off+padded > len(e.data) {
		e.fail("array")
		return nil
	}
	out := make([]uint32, 0, n/4)
	for i := 0; i+4 <= n; i += 4 {
		out = append(out, binary.LittleEndian.Uint32(e.data[e.off+i:]))
	}
	e.off += padded
	return out
}

// pad4 rounds n up to the protocol's 32-bit argument alignment.
func pad4(n int) int {
	return (n + 3) &^ 3
}
