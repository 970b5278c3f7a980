package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mi-e2ee/core/pkg/exchange"
	"github.com/mi-e2ee/core/pkg/gossip"
	"github.com/mi-e2ee/core/pkg/kt"
	"github.com/mi-e2ee/core/pkg/padding"
	"github.com/mi-e2ee/core/pkg/ratchet"
)

// PeerSession is an established one-to-one conversation: a double ratchet
// over plaintext, wrapped with the key-transparency gossip header and
// length-hiding padding before framing. One PeerSession exists per
// (local user, remote user) pair, independent of the secure channel that
// carried its handshake.
type PeerSession struct {
	mu          sync.Mutex
	RemoteUser  string
	ratchet     *ratchet.Ratchet
	localHead   gossip.Head
	failures    *failureStreak
	consistency gossip.ConsistencyFetcher
}

// HandshakeInit is what the initiator publishes to the responder to
// complete X3DH: its fresh ephemeral public key and, when the peer bundle
// carried a KEM public key, the encapsulated ciphertext.
type HandshakeInit struct {
	EphemeralPub  []byte
	KEMCiphertext []byte
}

// EstablishInitiator runs X3DH as the initiator against peer's published
// bundle, verified by the caller before this is called, and starts the
// double ratchet.
func EstablishInitiator(myIdentityDH *exchange.ECDH, peerBundle ratchet.Bundle) (*PeerSession, HandshakeInit, error) {
	ephemeral, err := exchange.NewECDH()
	if err != nil {
		return nil, HandshakeInit{}, fmt.Errorf("ephemeral keypair: %w", err)
	}
	rootKey, chainKey, kemCiphertext, err := ratchet.InitiatorX3DH(myIdentityDH, ephemeral, peerBundle)
	if err != nil {
		return nil, HandshakeInit{}, fmt.Errorf("x3dh initiator: %w", err)
	}
	r, err := ratchet.NewInitiator(rootKey, chainKey, peerBundle.SignedPrekey)
	if err != nil {
		return nil, HandshakeInit{}, fmt.Errorf("new ratchet: %w", err)
	}
	init := HandshakeInit{EphemeralPub: ephemeral.MarshalPublicKey(), KEMCiphertext: kemCiphertext}
	return &PeerSession{ratchet: r, failures: newFailureStreak()}, init, nil
}

// EstablishResponder completes X3DH as the responder, using the identity
// and signed-prekey keypairs that were published in the consumed bundle.
// myOneTimePrekey and myKEM are optional and consumed once.
func EstablishResponder(
	myIdentityDH, mySignedPrekey, myOneTimePrekey *exchange.ECDH, myKEM *exchange.MLKEM,
	peerIdentityDH, peerEphemeral, kemCiphertext []byte,
) (*PeerSession, error) {
	rootKey, chainKey, err := ratchet.ResponderX3DH(
		myIdentityDH, mySignedPrekey, myOneTimePrekey, myKEM, peerIdentityDH, peerEphemeral, kemCiphertext,
	)
	if err != nil {
		return nil, fmt.Errorf("x3dh responder: %w", err)
	}
	r, err := ratchet.NewResponder(rootKey, chainKey, mySignedPrekey)
	if err != nil {
		return nil, fmt.Errorf("new ratchet: %w", err)
	}
	return &PeerSession{ratchet: r, failures: newFailureStreak()}, nil
}

// Send encrypts a chat envelope for the session: pad, wrap with the local
// gossip head, then ratchet-encrypt.
func (s *PeerSession) Send(username string, env ChatEnvelope) (ratchet.Header, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wrapped := gossip.Wrap(env.Encode(), s.localHead)
	padded, err := padding.Pad(wrapped)
	if err != nil {
		return ratchet.Header{}, nil, fmt.Errorf("pad: %w", err)
	}
	hdr, ciphertext, err := s.ratchet.Encrypt(username, padded)
	if err != nil {
		return ratchet.Header{}, nil, fmt.Errorf("ratchet encrypt: %w", err)
	}
	return hdr, ciphertext, nil
}

// Receive decrypts an incoming message and returns the chat envelope,
// reconciling the gossip head against the local key-transparency view.
func (s *PeerSession) Receive(username string, hdr ratchet.Header, ciphertext []byte, localSize int, localRoot [32]byte) (ChatEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	padded, err := s.ratchet.Decrypt(username, hdr, ciphertext)
	if err != nil {
		if s.failures.Fail() {
			return ChatEnvelope{}, newError(KindSessionCompromisedSuspected, "repeated decrypt failures", err)
		}
		if errors.Is(err, ratchet.ErrRatchetOutOfOrder) {
			return ChatEnvelope{}, newError(KindRatchetOutOfOrder, "ratchet out of order", err)
		}
		return ChatEnvelope{}, newError(KindTagMismatch, "ratchet decrypt", err)
	}
	s.failures.Reset()

	wrapped, err := padding.Unpad(padded)
	if err != nil {
		return ChatEnvelope{}, newError(KindInvalidInput, "unpad", err)
	}
	plain, peerHead, wasWrapped, err := gossip.Unwrap(wrapped)
	if err != nil {
		return ChatEnvelope{}, newError(KindInvalidInput, "gossip unwrap", err)
	}

	env, err := DecodeChatEnvelope(plain)
	if err != nil {
		return ChatEnvelope{}, newError(KindInvalidInput, "chat envelope", err)
	}

	if wasWrapped {
		switch gossip.Compare(s.localHead, peerHead) {
		case gossip.OutcomeMismatch:
			// Same tree size, different root: an equivocation signal, not a
			// transport fault. The message still surfaces — only the
			// conversation's verified status changes — so the decoded
			// envelope is returned alongside the warning.
			return env, newError(KindGossipMismatch, "diverging kt heads", nil)
		case gossip.OutcomeAdvance:
			if s.consistency != nil {
				head, err := gossip.Reconcile(s.consistency, localSize, localRoot, peerHead)
				if err != nil {
					return ChatEnvelope{}, newError(KindProofFailed, "consistency proof", err)
				}
				s.localHead = head
			}
		case gossip.OutcomeConsistent:
		}
	}

	return env, nil
}

// SetConsistencyFetcher installs the callback used to fetch a consistency
// proof from the key-transparency log when the peer reports a larger tree.
func (s *PeerSession) SetConsistencyFetcher(f gossip.ConsistencyFetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consistency = f
}

// SetLocalHead installs the local KT head this session gossips on outgoing
// messages, typically the log's current signed tree head.
func (s *PeerSession) SetLocalHead(sth kt.SignedTreeHead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localHead = gossip.Head{TreeSize: sth.TreeSize, Root: sth.Root}
}

// Save captures the ratchet state for persistence; the gossip head and
// failure streak are cheap to rebuild from the KT log and are not persisted.
func (s *PeerSession) Save() (*ratchet.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratchet.Save()
}

// RestoreSession rebuilds a PeerSession from persisted ratchet state.
func RestoreSession(remoteUser string, state *ratchet.State) (*PeerSession, error) {
	r, err := ratchet.Restore(state)
	if err != nil {
		return nil, err
	}
	return &PeerSession{RemoteUser: remoteUser, ratchet: r, failures: newFailureStreak()}, nil
}
