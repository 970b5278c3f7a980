// Package frame implements the wire framing codec: a fixed 12-byte header
// followed by a type-tagged payload.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var magic = [4]byte{'M', 'I', 'F', '1'}

const (
	Version    = 1
	HeaderSize = 12
	MaxPayload = 16 << 20 // 16 MiB
)

var (
	ErrBadMagic    = errors.New("frame: bad magic")
	ErrBadVersion  = errors.New("frame: unsupported version")
	ErrTooLarge    = errors.New("frame: payload exceeds maximum size")
	ErrTruncated   = errors.New("frame: truncated frame")
	ErrLengthRange = errors.New("frame: length-prefixed field exceeds buffer")
)

// Type tags a frame's payload. The concrete enumeration lives with the
// callers that define frame semantics (session, group, relay plane); frame
// itself only encodes/decodes the envelope.
type Type uint16

// Frame is a decoded wire frame: a type tag plus its raw payload bytes.
type Frame struct {
	Type    Type
	Payload []byte
}

// Encode serializes f into the wire representation.
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, ErrTooLarge
	}
	buf := make([]byte, HeaderSize+len(f.Payload))
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(f.Type))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// Decode parses a single frame from the front of buf, returning the frame
// and the number of bytes consumed.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < HeaderSize {
		return Frame{}, 0, ErrTruncated
	}
	if string(buf[0:4]) != string(magic[:]) {
		return Frame{}, 0, ErrBadMagic
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != Version {
		return Frame{}, 0, ErrBadVersion
	}
	typ := binary.LittleEndian.Uint16(buf[6:8])
	length := binary.LittleEndian.Uint32(buf[8:12])
	if length > MaxPayload {
		return Frame{}, 0, ErrTooLarge
	}
	total := HeaderSize + int(length)
	if len(buf) < total {
		return Frame{}, 0, ErrTruncated
	}
	payload := make([]byte, length)
	copy(payload, buf[HeaderSize:total])
	return Frame{Type: Type(typ), Payload: payload}, total, nil
}

// PutString appends a length-prefixed (u16 LE) UTF-8 string to buf.
func PutString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// GetString reads a length-prefixed string from the front of buf, returning
// the string and the remaining bytes.
func GetString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, ErrLengthRange
	}
	return string(buf[:n]), buf[n:], nil
}

// PutBytes appends a length-prefixed (u32 LE) byte vector to buf.
func PutBytes(buf []byte, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// GetBytes reads a length-prefixed byte vector from the front of buf,
// returning a copy and the remaining bytes.
func GetBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, ErrLengthRange
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, buf[n:], nil
}

func (e ErrInvalidFrame) Error() string {
	return fmt.Sprintf("frame: %s", e.Reason)
}

// ErrInvalidFrame wraps a specific decode failure reason for logging without
// leaking payload contents.
type ErrInvalidFrame struct {
	Reason string
}
