package ratchet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mi-e2ee/core/pkg/exchange"
)

var ErrInvalidState = errors.New("invalid ratchet state")

// State is a serializable snapshot of a Ratchet's internal state. The
// skipped-key cache is intentionally not persisted: keys it would hold are
// forward-secret and short-lived, and losing them across a restart only
// costs the ability to decrypt messages that were already in flight.
type State struct {
	RootKey       []byte `json:"root_key"`
	SendCK        []byte `json:"send_ck"`
	RecvCK        []byte `json:"recv_ck"`
	OurDHPriv     []byte `json:"our_dh_priv"`
	OurDHPub      []byte `json:"our_dh_pub"`
	TheirPub      []byte `json:"their_pub"`
	TheirPrevPub  []byte `json:"their_prev_pub"`
	SendCount     uint64 `json:"send_count"`
	RecvCount     uint64 `json:"recv_count"`
	PrevSendCount uint64 `json:"prev_send_count"`
}

// Save captures the current state of the ratchet into a serializable State.
func (r *Ratchet) Save() (*State, error) {
	if r.ourDH == nil {
		return nil, errors.New("ratchet DH keypair is nil")
	}

	return &State{
		RootKey:       copyBytes(r.rootKey),
		SendCK:        copyBytes(r.sendCK),
		RecvCK:        copyBytes(r.recvCK),
		OurDHPriv:     r.ourDH.MarshalPrivateKey(),
		OurDHPub:      r.ourDH.MarshalPublicKey(),
		TheirPub:      copyBytes(r.theirPub),
		TheirPrevPub:  copyBytes(r.theirPrevPub),
		SendCount:     r.sendCount,
		RecvCount:     r.recvCount,
		PrevSendCount: r.prevSendCount,
	}, nil
}

// Restore reconstructs a Ratchet from a previously saved State.
func Restore(state *State) (*Ratchet, error) {
	if state == nil {
		return nil, ErrInvalidState
	}
	if len(state.RootKey) == 0 {
		return nil, fmt.Errorf("%w: missing root key", ErrInvalidState)
	}
	if len(state.OurDHPriv) == 0 {
		return nil, fmt.Errorf("%w: missing our DH private key", ErrInvalidState)
	}
	if len(state.OurDHPub) == 0 {
		return nil, fmt.Errorf("%w: missing our DH public key", ErrInvalidState)
	}

	dh, err := exchange.RestoreECDH(state.OurDHPriv, state.OurDHPub)
	if err != nil {
		return nil, fmt.Errorf("restoring ECDH keypair: %w", err)
	}

	return &Ratchet{
		rootKey:       copyBytes(state.RootKey),
		sendCK:        copyBytes(state.SendCK),
		recvCK:        copyBytes(state.RecvCK),
		ourDH:         dh,
		theirPub:      copyBytes(state.TheirPub),
		theirPrevPub:  copyBytes(state.TheirPrevPub),
		sendCount:     state.SendCount,
		recvCount:     state.RecvCount,
		prevSendCount: state.PrevSendCount,
		skipped:       newSkipCache(MaxSkippedKeys),
	}, nil
}

// Serialize encodes the State to JSON bytes.
func (s *State) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

// Deserialize decodes a State from JSON bytes.
func Deserialize(data []byte) (*State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}
	return &state, nil
}

// Clone creates a deep copy of the State.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		RootKey:       copyBytes(s.RootKey),
		SendCK:        copyBytes(s.SendCK),
		RecvCK:        copyBytes(s.RecvCK),
		OurDHPriv:     copyBytes(s.OurDHPriv),
		OurDHPub:      copyBytes(s.OurDHPub),
		TheirPub:      copyBytes(s.TheirPub),
		TheirPrevPub:  copyBytes(s.TheirPrevPub),
		SendCount:     s.SendCount,
		RecvCount:     s.RecvCount,
		PrevSendCount: s.PrevSendCount,
	}
}
