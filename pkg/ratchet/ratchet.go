// Package ratchet implements the peer-to-peer double ratchet: an X3DH
// hybrid handshake (classical ECDH plus an optional post-quantum KEM) feeds
// a root key that subsequent DH ratchet steps advance, with a bounded
// skipped-message-key cache for out-of-order delivery.
package ratchet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mi-e2ee/core/internal/enigma"
	"github.com/mi-e2ee/core/pkg/exchange"
)

const (
	keySize = 32

	infoRatchetRoot = "mi_e2ee_ratchet_root"
	infoMsg         = "msg"
	infoChain       = "chain"

	// MaxSkip bounds how far ahead of the receive counter a single chain
	// may be asked to derive skipped keys for.
	MaxSkip = 1000
	// MaxSkippedKeys bounds the total cached skipped-key entries across all
	// chains, FIFO-evicted.
	MaxSkippedKeys = 2048
)

var (
	ErrKeyExhausted     = errors.New("ratchet: key exhausted")
	ErrRatchetOutOfOrder = errors.New("ratchet: skip beyond max")
	ErrChainNotInit     = errors.New("ratchet: chain not initialized")
)

// Ratchet is one side of a peer-to-peer double ratchet session.
type Ratchet struct {
	rootKey []byte
	sendCK  []byte
	recvCK  []byte

	ourDH       *exchange.ECDH
	ourPrevDH   *exchange.ECDH // keypair replaced by the most recent DH ratchet step
	theirPub    []byte
	theirPrevPub []byte

	sendCount uint64 // Ns
	recvCount uint64 // Nr
	prevSendCount uint64 // PN: length of previous sending chain

	skipped *skipCache
}

// NewInitiator seeds a ratchet from the initiator side of an X3DH handshake
// and immediately performs the first DH ratchet step, matching Signal's
// RatchetInitAlice: a fresh local keypair is generated and ratcheted
// against the peer's current (signed-prekey) public key to derive the
// initial sending chain, which the responder reproduces symmetrically in
// dhRatchetStep on its first inbound message. chainKey0, X3DH's second
// output, is not used here; it exists only to seed the responder's
// placeholder receive chain before that same first ratchet step overwrites
// it.
func NewInitiator(rootKey, chainKey0 []byte, theirCurrentPub []byte) (*Ratchet, error) {
	dh, err := exchange.NewECDH()
	if err != nil {
		return nil, fmt.Errorf("ratchet: generating dh keypair: %w", err)
	}
	shared, err := dh.Exchange(theirCurrentPub)
	if err != nil {
		return nil, fmt.Errorf("ratchet: initial dh ratchet: %w", err)
	}
	newRoot, sendCK, err := kdfRoot(rootKey, shared)
	if err != nil {
		return nil, err
	}
	r := &Ratchet{
		rootKey:  newRoot,
		sendCK:   sendCK,
		ourDH:    dh,
		theirPub: copyBytes(theirCurrentPub),
		skipped:  newSkipCache(MaxSkippedKeys),
	}
	return r, nil
}

// NewResponder seeds a ratchet from the responder side: chainKey0 fills the
// receive chain as a placeholder and the local keypair is the signed prekey
// the initiator ratcheted against. The first inbound message carries a new
// ratchet key, so Decrypt runs dhRatchetStep, which replaces that receive
// chain and generates a fresh local keypair and sending chain.
func NewResponder(rootKey, chainKey0 []byte, mySignedPrekey *exchange.ECDH) (*Ratchet, error) {
	return &Ratchet{
		rootKey: copyBytes(rootKey),
		recvCK:  copyBytes(chainKey0),
		ourDH:   mySignedPrekey,
		skipped: newSkipCache(MaxSkippedKeys),
	}, nil
}

// OurPublic returns this side's current ratchet public key.
func (r *Ratchet) OurPublic() []byte {
	return r.ourDH.MarshalPublicKey()
}

// Header carries the minimum a receiver needs to locate the right chain.
type Header struct {
	RatchetPub []byte
	Counter    uint64
	PrevChainLen uint64
}

// Encrypt advances the send chain and encrypts plaintext under the derived
// message key. username identifies the peer for associated-data binding.
func (r *Ratchet) Encrypt(username string, plaintext []byte) (Header, []byte, error) {
	if r.sendCK == nil {
		return Header{}, nil, ErrChainNotInit
	}
	msgKey, nextCK, err := kdfChain(r.sendCK)
	if err != nil {
		return Header{}, nil, err
	}
	r.sendCK = nextCK
	counter := r.sendCount
	r.sendCount++

	hdr := Header{RatchetPub: r.ourDH.MarshalPublicKey(), Counter: counter, PrevChainLen: r.prevSendCount}
	ct, err := seal(msgKey, username, hdr.RatchetPub, counter, plaintext)
	if err != nil {
		return Header{}, nil, err
	}
	return hdr, ct, nil
}

// Decrypt handles an inbound message, performing a DH ratchet step if the
// header carries a new ratchet public key, and consulting/filling the
// skipped-key cache for out-of-order delivery.
func (r *Ratchet) Decrypt(username string, hdr Header, ciphertext []byte) ([]byte, error) {
	if key, ok := r.skipped.take(hdr.RatchetPub, hdr.Counter); ok {
		return open(key, username, hdr.RatchetPub, hdr.Counter, ciphertext)
	}

	if r.theirPub == nil || !bytes.Equal(hdr.RatchetPub, r.theirPub) {
		if err := r.skipCurrentRecvChain(hdr.PrevChainLen); err != nil {
			return nil, err
		}
		if err := r.dhRatchetStep(hdr.RatchetPub); err != nil {
			return nil, err
		}
	}

	if hdr.Counter < r.recvCount {
		return nil, ErrRatchetOutOfOrder
	}
	if hdr.Counter-r.recvCount > MaxSkip {
		return nil, ErrRatchetOutOfOrder
	}
	if err := r.skipKeysUpTo(hdr.RatchetPub, hdr.Counter); err != nil {
		return nil, err
	}

	msgKey, nextCK, err := kdfChain(r.recvCK)
	if err != nil {
		return nil, err
	}
	r.recvCK = nextCK
	r.recvCount++

	return open(msgKey, username, hdr.RatchetPub, hdr.Counter, ciphertext)
}

// skipCurrentRecvChain caches any unused keys remaining in the current
// receive chain (indexed under the previous ratchet pub, up to prevChainLen)
// before the chain is abandoned for a new one.
func (r *Ratchet) skipCurrentRecvChain(prevChainLen uint64) error {
	if r.recvCK == nil || r.theirPub == nil {
		return nil
	}
	if prevChainLen < r.recvCount {
		return nil
	}
	return r.skipKeysUpToFor(r.theirPub, r.recvCK, r.recvCount, prevChainLen, func(ck []byte) { r.recvCK = ck })
}

func (r *Ratchet) skipKeysUpTo(ratchetPub []byte, until uint64) error {
	return r.skipKeysUpToFor(ratchetPub, r.recvCK, r.recvCount, until, func(ck []byte) { r.recvCK = ck; r.recvCount = until })
}

func (r *Ratchet) skipKeysUpToFor(ratchetPub, ck []byte, from, until uint64, commit func([]byte)) error {
	if until-from > MaxSkip {
		return ErrRatchetOutOfOrder
	}
	cur := ck
	for n := from; n < until; n++ {
		msgKey, nextCK, err := kdfChain(cur)
		if err != nil {
			return err
		}
		r.skipped.put(ratchetPub, n, msgKey)
		cur = nextCK
	}
	commit(cur)
	return nil
}

// dhRatchetStep rotates local DH state upon receiving a new peer ratchet
// public key: derives a new receive chain, then generates a fresh local
// keypair and derives the new sending chain from it, which the next Encrypt
// uses.
func (r *Ratchet) dhRatchetStep(theirNewPub []byte) error {
	r.theirPrevPub = r.theirPub
	r.theirPub = copyBytes(theirNewPub)
	r.prevSendCount = r.sendCount
	r.sendCount = 0

	shared, err := r.ourDH.Exchange(theirNewPub)
	if err != nil {
		return fmt.Errorf("ratchet: dh ratchet exchange: %w", err)
	}
	newRoot, newRecvCK, err := kdfRoot(r.rootKey, shared)
	if err != nil {
		return err
	}
	r.rootKey = newRoot
	r.recvCK = newRecvCK
	r.recvCount = 0

	newDH, err := exchange.NewECDH()
	if err != nil {
		return fmt.Errorf("ratchet: generating dh keypair: %w", err)
	}
	r.ourPrevDH = r.ourDH
	r.ourDH = newDH

	sendShared, err := newDH.Exchange(theirNewPub)
	if err != nil {
		return fmt.Errorf("ratchet: dh ratchet send exchange: %w", err)
	}
	newRoot2, newSendCK, err := kdfRoot(r.rootKey, sendShared)
	if err != nil {
		return err
	}
	r.rootKey = newRoot2
	r.sendCK = newSendCK
	return nil
}

func kdfRoot(root, dh []byte) (newRoot, chainKey []byte, err error) {
	derived, err := enigma.Derive(append(append([]byte{}, root...), dh...), nil, []byte(infoRatchetRoot), keySize*2)
	if err != nil {
		return nil, nil, err
	}
	return derived[:keySize], derived[keySize:], nil
}

func kdfChain(ck []byte) (msgKey, nextCK []byte, err error) {
	msgKey, err = enigma.Derive(ck, nil, []byte(infoMsg), keySize)
	if err != nil {
		return nil, nil, err
	}
	nextCK, err = enigma.Derive(ck, nil, []byte(infoChain), keySize)
	if err != nil {
		return nil, nil, err
	}
	return msgKey, nextCK, nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
