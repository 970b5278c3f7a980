// Package channel implements the secure channel: per-direction AEAD keyed
// off a PAKE-derived session secret, with a sliding-window replay filter.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mi-e2ee/core/internal/enigma"
	"golang.org/x/crypto/blake2b"
)

const (
	c2sLabel = "mi_e2ee_secure_channel_v2_c2s"
	s2cLabel = "mi_e2ee_secure_channel_v2_s2c"

	seqSize   = 8
	nonceSize = 24
	tagSize   = 16
)

var (
	ErrTagMismatch = errors.New("channel: tag mismatch")
	ErrTruncated   = errors.New("channel: truncated ciphertext")
	ErrReplay      = errors.New("channel: replay rejected")
)

// Role selects which directional key a Channel encrypts under.
type Role bool

const (
	RoleClient Role = true
	RoleServer Role = false
)

// Channel is a bidirectional secure channel: it encrypts outbound frames
// under one directional key and decrypts inbound frames under the other,
// enforcing a replay window on receive.
type Channel struct {
	sendKey []byte
	recvKey []byte

	maxSeen uint64
	window  uint64 // bit i set means max_seen-i was seen
	seen    bool
}

// New derives the two directional keys from a 256-bit session secret via
// keyed BLAKE2b, per role.
func New(sessionSecret []byte, role Role) (*Channel, error) {
	c2s, err := directionKey(sessionSecret, c2sLabel)
	if err != nil {
		return nil, err
	}
	s2c, err := directionKey(sessionSecret, s2cLabel)
	if err != nil {
		return nil, err
	}

	c := &Channel{}
	if role == RoleClient {
		c.sendKey, c.recvKey = c2s, s2c
	} else {
		c.sendKey, c.recvKey = s2c, c2s
	}
	return c, nil
}

func directionKey(secret []byte, label string) ([]byte, error) {
	h, err := blake2b.New256([]byte(label))
	if err != nil {
		return nil, fmt.Errorf("channel: new keyed blake2b: %w", err)
	}
	h.Write(secret)
	return h.Sum(nil), nil
}

func nonceFor(seq uint64) []byte {
	n := make([]byte, nonceSize)
	binary.LittleEndian.PutUint64(n[:seqSize], seq)
	return n
}

func associatedData(frameType uint16, seq uint64) []byte {
	ad := make([]byte, 2+seqSize)
	binary.LittleEndian.PutUint16(ad[:2], frameType)
	binary.LittleEndian.PutUint64(ad[2:], seq)
	return ad
}

// Encrypt produces seq(8 LE) ‖ ciphertext ‖ tag(16) for the given frame type.
func (c *Channel) Encrypt(seq uint64, frameType uint16, plaintext []byte) ([]byte, error) {
	aead, err := enigma.NewAEADX(c.sendKey)
	if err != nil {
		return nil, err
	}

	out := make([]byte, seqSize, seqSize+len(plaintext)+tagSize)
	binary.LittleEndian.PutUint64(out, seq)

	nonce := nonceFor(seq)
	ad := associatedData(frameType, seq)
	out = aead.Seal(out, nonce, plaintext, ad)
	return out, nil
}

// Decrypt recovers plaintext from a wire packet and enforces the replay
// window. Decryption failures leave the replay window untouched.
func (c *Channel) Decrypt(packet []byte, frameType uint16) ([]byte, error) {
	if len(packet) < seqSize+tagSize {
		return nil, ErrTruncated
	}
	seq := binary.LittleEndian.Uint64(packet[:seqSize])
	ciphertext := packet[seqSize:]

	if !c.accepts(seq) {
		return nil, ErrReplay
	}

	aead, err := enigma.NewAEADX(c.recvKey)
	if err != nil {
		return nil, err
	}

	nonce := nonceFor(seq)
	ad := associatedData(frameType, seq)
	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrTagMismatch
	}

	c.accept(seq)
	return plaintext, nil
}

// accepts reports whether seq passes the replay-window check. Callers call
// accept separately, only after a successful decrypt.
func (c *Channel) accepts(seq uint64) bool {
	if !c.seen {
		return true
	}
	if seq > c.maxSeen {
		return true
	}
	diff := c.maxSeen - seq
	if diff >= 64 {
		return false
	}
	return c.window&(1<<diff) == 0
}

func (c *Channel) accept(seq uint64) {
	if !c.seen {
		c.maxSeen = seq
		c.window = 1
		c.seen = true
		return
	}
	if seq > c.maxSeen {
		shift := seq - c.maxSeen
		if shift >= 64 {
			c.window = 1
		} else {
			c.window = (c.window << shift) | 1
		}
		c.maxSeen = seq
		return
	}
	diff := c.maxSeen - seq
	c.window |= 1 << diff
}
