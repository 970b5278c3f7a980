package ratchet_test

import (
	"testing"

	"github.com/mi-e2ee/core/pkg/exchange"
	"github.com/mi-e2ee/core/pkg/ratchet"
	"github.com/stretchr/testify/require"
)

// handshake wires a minimal X3DH without optional one-time prekey/KEM, and
// seeds initiator/responder ratchets from the resulting root/chain keys.
func handshake(t *testing.T) (*ratchet.Ratchet, *ratchet.Ratchet) {
	t.Helper()
	a := require.New(t)

	aliceID, err := exchange.NewECDH()
	a.NoError(err)
	aliceEphemeral, err := exchange.NewECDH()
	a.NoError(err)

	bobID, err := exchange.NewECDH()
	a.NoError(err)
	bobSignedPrekey, err := exchange.NewECDH()
	a.NoError(err)

	bundle := ratchet.Bundle{
		IdentityDH:   bobID.MarshalPublicKey(),
		SignedPrekey: bobSignedPrekey.MarshalPublicKey(),
	}

	rootKey, chainKey, _, err := ratchet.InitiatorX3DH(aliceID, aliceEphemeral, bundle)
	a.NoError(err)

	rootKey2, chainKey2, err := ratchet.ResponderX3DH(
		bobID, bobSignedPrekey, nil, nil,
		aliceID.MarshalPublicKey(), aliceEphemeral.MarshalPublicKey(), nil,
	)
	a.NoError(err)
	a.Equal(rootKey, rootKey2)
	a.Equal(chainKey, chainKey2)

	alice, err := ratchet.NewInitiator(rootKey, chainKey, bobSignedPrekey.MarshalPublicKey())
	a.NoError(err)
	bob, err := ratchet.NewResponder(rootKey2, chainKey2, bobSignedPrekey)
	a.NoError(err)

	return alice, bob
}

func TestRoundTripFirstMessage(t *testing.T) {
	a := require.New(t)
	alice, bob := handshake(t)

	hdr, ct, err := alice.Encrypt("bob", []byte("hi"))
	a.NoError(err)

	pt, err := bob.Decrypt("alice", hdr, ct)
	a.NoError(err)
	a.Equal([]byte("hi"), pt)
}

func TestOutOfOrderWithinWindow(t *testing.T) {
	a := require.New(t)
	alice, bob := handshake(t)

	type sent struct {
		hdr ratchet.Header
		ct  []byte
	}
	var msgs []sent
	for i := 0; i < 5; i++ {
		hdr, ct, err := alice.Encrypt("bob", []byte{byte(i)})
		a.NoError(err)
		msgs = append(msgs, sent{hdr, ct})
	}

	order := []int{4, 2, 3, 0, 1}
	for _, i := range order {
		pt, err := bob.Decrypt("alice", msgs[i].hdr, msgs[i].ct)
		a.NoErrorf(err, "message %d", i)
		a.Equal([]byte{byte(i)}, pt)
	}
}

func TestBidirectionalRatchetStep(t *testing.T) {
	a := require.New(t)
	alice, bob := handshake(t)

	hdr1, ct1, err := alice.Encrypt("bob", []byte("ping"))
	a.NoError(err)
	pt1, err := bob.Decrypt("alice", hdr1, ct1)
	a.NoError(err)
	a.Equal([]byte("ping"), pt1)

	hdr2, ct2, err := bob.Encrypt("alice", []byte("pong"))
	a.NoError(err)
	pt2, err := alice.Decrypt("bob", hdr2, ct2)
	a.NoError(err)
	a.Equal([]byte("pong"), pt2)

	hdr3, ct3, err := alice.Encrypt("bob", []byte("ping again"))
	a.NoError(err)
	pt3, err := bob.Decrypt("alice", hdr3, ct3)
	a.NoError(err)
	a.Equal([]byte("ping again"), pt3)
}

func TestSkipBeyondMaxRejected(t *testing.T) {
	a := require.New(t)
	alice, bob := handshake(t)

	var last ratchet.Header
	var lastCT []byte
	for i := 0; i < ratchet.MaxSkip+2; i++ {
		hdr, ct, err := alice.Encrypt("bob", []byte{byte(i % 256)})
		a.NoError(err)
		last, lastCT = hdr, ct
	}

	_, err := bob.Decrypt("alice", last, lastCT)
	a.ErrorIs(err, ratchet.ErrRatchetOutOfOrder)
}
