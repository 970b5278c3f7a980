// Package padding hides plaintext length by rounding ciphertext length up to
// one of a fixed set of buckets before encryption.
package padding

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
)

var magic = [4]byte{'M', 'I', 'P', 'D'}

const headerSize = 4 + 4 // magic + u32 LE plaintext length

var buckets = []int{256, 512, 1024, 2048, 4096, 8192, 16384}

var (
	ErrBadMagic  = errors.New("padding: bad magic")
	ErrTruncated = errors.New("padding: truncated")
	ErrBadLength = errors.New("padding: plaintext length exceeds wrapper size")
)

// Pad wraps plaintext in the MIPD envelope and rounds the result up to the
// smallest bucket that fits, or the next 4 KiB multiple beyond the largest
// bucket.
func Pad(plaintext []byte) ([]byte, error) {
	total := headerSize + len(plaintext)
	padded := bucketFor(total)

	out := make([]byte, padded)
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(plaintext)))
	copy(out[headerSize:], plaintext)

	if _, err := rand.Read(out[total:]); err != nil {
		return nil, err
	}
	return out, nil
}

func bucketFor(total int) int {
	for _, b := range buckets {
		if total <= b {
			return b
		}
	}
	const chunk = 4096
	return ((total + chunk - 1) / chunk) * chunk
}

// Unpad reverses Pad, discarding the random tail.
func Unpad(padded []byte) ([]byte, error) {
	if len(padded) < headerSize {
		return nil, ErrTruncated
	}
	if string(padded[0:4]) != string(magic[:]) {
		return nil, ErrBadMagic
	}
	n := binary.LittleEndian.Uint32(padded[4:8])
	if int(n) > len(padded)-headerSize {
		return nil, ErrBadLength
	}
	out := make([]byte, n)
	copy(out, padded[headerSize:headerSize+int(n)])
	return out, nil
}
