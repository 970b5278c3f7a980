package senderkey

import (
	"github.com/mi-e2ee/core/internal/enigma"
	"github.com/mi-e2ee/core/pkg/attest"
)

type skipKey struct {
	version   uint32
	iteration uint32
}

// ReceiverState tracks one remote sender's chain key within a group, plus a
// bounded cache of skipped message keys for out-of-order delivery.
type ReceiverState struct {
	GroupID       string
	Sender        string
	Version       uint32
	NextIteration uint32
	CK            []byte

	skipped   map[skipKey][]byte
	skipOrder []skipKey
}

// NewReceiverState seeds receiver state from an accepted distribution.
func NewReceiverState(groupID, sender string, version, iteration uint32, ck []byte) *ReceiverState {
	return &ReceiverState{
		GroupID: groupID, Sender: sender, Version: version, NextIteration: iteration,
		CK:      append([]byte{}, ck...),
		skipped: make(map[skipKey][]byte),
	}
}

// AcceptsDistribution implements the receiver acceptance rule: a newer
// version, or the same version at an iteration at or beyond what is
// already known.
func (r *ReceiverState) AcceptsDistribution(version, iteration uint32) bool {
	if version > r.Version {
		return true
	}
	return version == r.Version && iteration >= r.NextIteration
}

// ApplyDistribution installs a freshly accepted sender-key distribution,
// discarding any previously skipped keys for the old chain.
func (r *ReceiverState) ApplyDistribution(version, iteration uint32, ck []byte) {
	r.Version = version
	r.NextIteration = iteration
	r.CK = append([]byte{}, ck...)
	r.skipped = make(map[skipKey][]byte)
	r.skipOrder = nil
}

func (r *ReceiverState) putSkipped(version, iteration uint32, key []byte) {
	k := skipKey{version, iteration}
	if _, exists := r.skipped[k]; exists {
		return
	}
	r.skipped[k] = key
	r.skipOrder = append(r.skipOrder, k)
	for len(r.skipOrder) > MaxSkippedKeys {
		oldest := r.skipOrder[0]
		r.skipOrder = r.skipOrder[1:]
		delete(r.skipped, oldest)
	}
}

func (r *ReceiverState) takeSkipped(version, iteration uint32) ([]byte, bool) {
	k := skipKey{version, iteration}
	key, ok := r.skipped[k]
	if !ok {
		return nil, false
	}
	delete(r.skipped, k)
	for i, o := range r.skipOrder {
		if o == k {
			r.skipOrder = append(r.skipOrder[:i], r.skipOrder[i+1:]...)
			break
		}
	}
	return key, true
}

// advanceTo derives and caches message keys from NextIteration up to (not
// including) target, advancing CK along the way. Used when a message
// arrives ahead of the receiver's current iteration.
func (r *ReceiverState) advanceTo(target uint32) error {
	if target < r.NextIteration {
		return nil
	}
	if int(target-r.NextIteration) > MaxSkippedKeys {
		return ErrIterationTooFar
	}
	for r.NextIteration < target {
		newCK, msgKey, err := KdfCk(r.CK)
		if err != nil {
			return err
		}
		r.putSkipped(r.Version, r.NextIteration, msgKey)
		r.CK = newCK
		r.NextIteration++
	}
	return nil
}

// Decrypt verifies the envelope signature and decrypts it, deriving or
// looking up the appropriate message key depending on whether the envelope
// arrived in order, ahead, or behind the receiver's current position.
func (r *ReceiverState) Decrypt(env Envelope, senderPub attest.PublicKey) ([]byte, error) {
	if !VerifySignature(env, senderPub) {
		return nil, ErrInvalidSignature
	}
	if env.KeyVersion != r.Version {
		return nil, ErrKeyMissing
	}

	var msgKey []byte
	switch {
	case env.Iteration < r.NextIteration:
		key, ok := r.takeSkipped(env.KeyVersion, env.Iteration)
		if !ok {
			return nil, ErrKeyMissing
		}
		msgKey = key
	case env.Iteration == r.NextIteration:
		newCK, key, err := KdfCk(r.CK)
		if err != nil {
			return nil, err
		}
		r.CK = newCK
		r.NextIteration++
		msgKey = key
	default:
		if err := r.advanceTo(env.Iteration); err != nil {
			return nil, err
		}
		newCK, key, err := KdfCk(r.CK)
		if err != nil {
			return nil, err
		}
		r.CK = newCK
		r.NextIteration++
		msgKey = key
	}

	aead, err := enigma.NewAEADX(msgKey)
	if err != nil {
		return nil, err
	}
	ad := associatedData(env.GroupID, env.Sender, env.KeyVersion, env.Iteration)
	sealed := append(append([]byte{}, env.Cipher...), env.MAC...)
	return aead.Open(nil, env.Nonce, sealed, ad)
}
