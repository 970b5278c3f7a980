// Package devicesync lets a user's devices share state (sent messages,
// delivery receipts, key rotation notices) through the server without the
// server reading the content: a pairing handshake bootstraps a shared key,
// then a forward-ratcheted counter chain encrypts events between devices.
package devicesync

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/mi-e2ee/core/internal/enigma"
)

const (
	msgKeyInfo = "mi_e2ee_device_sync_v1_msg"

	PairingTTL          = 10 * time.Minute
	PairingAttemptLimit = 3
	PairingAttemptWindow = 10 * time.Minute

	DefaultMaxSkip          = 32
	DefaultRotateMsgLimit   = 2000
	DefaultRotateInterval   = 24 * time.Hour
	SyncKeySize             = 32
)

var (
	ErrReplayRejected  = errors.New("devicesync: counter outside replay window")
	ErrPairingExpired  = errors.New("devicesync: pairing code expired")
	ErrPairingThrottled = errors.New("devicesync: too many pairing attempts")
	ErrTagMismatch     = errors.New("devicesync: authentication failed")
)

// EventKind is the 1-byte tag at the start of decrypted event plaintext.
type EventKind byte

const (
	EventSendPrivate EventKind = iota + 1
	EventSendGroup
	EventMessage
	EventDelivery
	EventGroupNotice
	EventRotateKey
	EventHistorySnapshot
)

// Chain is one device's view of the forward-ratcheted sync channel: a
// send-side counter plus a receive-side counter with a sliding window for
// out-of-order delivery, both keyed off the same device_sync_key until a
// rotation replaces it.
type Chain struct {
	Key         []byte
	SendCounter uint64
	RecvCounter uint64
	RotatedAt   time.Time
	SentSince   int
}

// NewChain seeds a chain from a freshly distributed device_sync_key.
func NewChain(key []byte, now time.Time) *Chain {
	return &Chain{Key: append([]byte{}, key...), RotatedAt: now}
}

func deriveMessageKey(syncKey []byte, counter uint64) ([]byte, error) {
	var cb [8]byte
	binary.LittleEndian.PutUint64(cb[:], counter)
	return enigma.Derive(syncKey, cb[:], []byte(msgKeyInfo), 32)
}

func nonceFor(counter uint64) []byte {
	nonce := make([]byte, 12)
	binary.LittleEndian.PutUint64(nonce[:8], counter)
	return nonce
}

// Envelope is one encrypted sync message.
type Envelope struct {
	SendCounter uint64
	Ciphertext  []byte
}

// Seal encrypts an event for the sync channel, advancing the send counter.
func (c *Chain) Seal(kind EventKind, payload []byte) (Envelope, error) {
	counter := c.SendCounter
	msgKey, err := deriveMessageKey(c.Key, counter)
	if err != nil {
		return Envelope{}, err
	}
	aead, err := enigma.NewAEADStd(msgKey)
	if err != nil {
		return Envelope{}, err
	}
	plaintext := append([]byte{byte(kind)}, payload...)
	ct := aead.Seal(nil, nonceFor(counter), plaintext, nil)
	c.SendCounter++
	c.SentSince++
	return Envelope{SendCounter: counter, Ciphertext: ct}, nil
}

// Open decrypts a sync envelope, enforcing the replay window: counters at
// or below RecvCounter - maxSkip are rejected outright.
func (c *Chain) Open(env Envelope, maxSkip uint64) (EventKind, []byte, error) {
	if env.SendCounter+maxSkip <= c.RecvCounter {
		return 0, nil, ErrReplayRejected
	}
	msgKey, err := deriveMessageKey(c.Key, env.SendCounter)
	if err != nil {
		return 0, nil, err
	}
	aead, err := enigma.NewAEADStd(msgKey)
	if err != nil {
		return 0, nil, err
	}
	plaintext, err := aead.Open(nil, nonceFor(env.SendCounter), env.Ciphertext, nil)
	if err != nil {
		return 0, nil, ErrTagMismatch
	}
	if len(plaintext) == 0 {
		return 0, nil, ErrTagMismatch
	}
	if env.SendCounter >= c.RecvCounter {
		c.RecvCounter = env.SendCounter + 1
	}
	return EventKind(plaintext[0]), plaintext[1:], nil
}

// NeedsRotation reports whether the message-count or age rotation trigger
// has fired for this chain.
func (c *Chain) NeedsRotation(now time.Time, msgLimit int, interval time.Duration) bool {
	if msgLimit > 0 && c.SentSince >= msgLimit {
		return true
	}
	if interval > 0 && now.Sub(c.RotatedAt) >= interval {
		return true
	}
	return false
}

// Rotate replaces the chain's key with a fresh random key, resets counters
// and timers, and returns the new key. It sends nothing itself: the old key
// is gone once Rotate returns, and linked devices get the new key only if
// the caller delivers it to them.
func (c *Chain) Rotate(now time.Time) ([]byte, error) {
	newKey := make([]byte, SyncKeySize)
	if _, err := rand.Read(newKey); err != nil {
		return nil, err
	}
	c.Key = newKey
	c.SendCounter = 0
	c.RecvCounter = 0
	c.SentSince = 0
	c.RotatedAt = now
	return newKey, nil
}
