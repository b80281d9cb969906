package wire

import (
	"encoding/binary"
	"fmt"
)

// Message layout: 8-byte header (object id, then size<<16|opcode), followed
// by arguments marshaled per the core protocol rules. Everything is
// little-endian; strings and arrays are padded to 32-bit boundaries.
const headerSize = 8

// BuildMessage marshals one request or event into its wire form. Exposed so
// tests can construct compositor-side traffic with the same encoder the
// client uses.
func BuildMessage(object uint32, opcode uint16, args ...interface{}) ([]byte, error) {
	body, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}
	size := headerSize + len(body)
	if size > 0xffff {
		return nil, fmt.Errorf("wire: message too large: %d bytes", size)
	}
	msg := make([]byte, size)
	binary.LittleEndian.PutUint32(msg[0:4], object)
	binary.LittleEndian.PutUint32(msg[4:8], uint32(size)<<16|uint32(opcode))
	copy(msg[headerSize:], body)
	return msg, nil
}

func marshalArgs(args []interface{}) ([]byte, error) {
	var buf []byte
	for _, arg := range args {
		switch v := arg.(type) {
		case uint32:
			buf = appendUint32(buf, v)
		case int32:
			buf = appendUint32(buf, uint32(v))
		case string:
			// Length counts the NUL terminator.
			n := len(v) + 1
			buf = appendUint32(buf, uint32(n))
			buf = append(buf, v...)
			buf = append(buf, 0)
			for i := n; i < pad4(n); i++ {
				buf = append(buf, 0)
			}
		case []uint32:
			n := 4 * len(v)
			buf = appendUint32(buf, uint32(n))
			for _, entry := range v {
				buf = appendUint32(buf, entry)
			}
		case nil:
			// Null object reference.
			buf = appendUint32(buf, 0)
		default:
			return nil, fmt.Errorf("wire: unsupported argument type %T", arg)
		}
	}
	return buf, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	return append(buf, scratch[:]...)
}
