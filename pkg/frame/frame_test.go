package frame_test

import (
	"testing"

	"github.com/mi-e2ee/core/pkg/frame"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := require.New(t)

	f := frame.Frame{Type: 42, Payload: []byte("hello world")}
	buf, err := frame.Encode(f)
	a.NoError(err)
	a.Len(buf, frame.HeaderSize+len(f.Payload))

	got, n, err := frame.Decode(buf)
	a.NoError(err)
	a.Equal(len(buf), n)
	a.Equal(f.Type, got.Type)
	a.Equal(f.Payload, got.Payload)
}

func TestDecodeTruncated(t *testing.T) {
	a := require.New(t)

	buf, err := frame.Encode(frame.Frame{Type: 1, Payload: []byte("abc")})
	a.NoError(err)

	_, _, err = frame.Decode(buf[:frame.HeaderSize-1])
	a.ErrorIs(err, frame.ErrTruncated)

	_, _, err = frame.Decode(buf[:len(buf)-1])
	a.ErrorIs(err, frame.ErrTruncated)
}

func TestDecodeBadMagic(t *testing.T) {
	a := require.New(t)

	buf, err := frame.Encode(frame.Frame{Type: 1, Payload: nil})
	a.NoError(err)
	buf[0] = 'X'

	_, _, err = frame.Decode(buf)
	a.ErrorIs(err, frame.ErrBadMagic)
}

func TestStringRoundTrip(t *testing.T) {
	a := require.New(t)

	buf := frame.PutString(nil, "alice")
	buf = frame.PutString(buf, "bob")

	s1, rest, err := frame.GetString(buf)
	a.NoError(err)
	a.Equal("alice", s1)

	s2, rest, err := frame.GetString(rest)
	a.NoError(err)
	a.Equal("bob", s2)
	a.Empty(rest)
}

func TestBytesRoundTrip(t *testing.T) {
	a := require.New(t)

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	buf := frame.PutBytes(nil, payload)

	got, rest, err := frame.GetBytes(buf)
	a.NoError(err)
	a.Equal(payload, got)
	a.Empty(rest)
}

func TestGetBytesTruncated(t *testing.T) {
	a := require.New(t)

	_, _, err := frame.GetBytes([]byte{0x05, 0x00, 0x00, 0x00, 0x01})
	a.ErrorIs(err, frame.ErrLengthRange)
}
