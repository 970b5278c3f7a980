package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	core "github.com/mi-e2ee/core"
	"github.com/mi-e2ee/core/pkg/exchange"
)

func TestPeerSessionX3DHHandshakeAndMessageRoundTrip(t *testing.T) {
	aliceIdentity, err := exchange.NewECDH()
	require.NoError(t, err)
	bobIdentity, err := exchange.NewECDH()
	require.NoError(t, err)
	bobSignedPrekey, err := exchange.NewECDH()
	require.NoError(t, err)

	bundle := (core.PreKeyBundle{
		IdentityDH:   bobIdentity.MarshalPublicKey(),
		SignedPrekey: bobSignedPrekey.MarshalPublicKey(),
	}).ToX3DHBundle()

	aliceSession, init, err := core.EstablishInitiator(aliceIdentity, bundle)
	require.NoError(t, err)

	bobSession, err := core.EstablishResponder(
		bobIdentity, bobSignedPrekey, nil, nil,
		aliceIdentity.MarshalPublicKey(), init.EphemeralPub, init.KEMCiphertext,
	)
	require.NoError(t, err)

	env, err := core.NewChatEnvelope(core.ChatText, []byte("hi bob"))
	require.NoError(t, err)
	hdr, ciphertext, err := aliceSession.Send("bob", env)
	require.NoError(t, err)

	got, err := bobSession.Receive("alice", hdr, ciphertext, 0, [32]byte{})
	require.NoError(t, err)
	require.Equal(t, env.Type, got.Type)
	require.Equal(t, []byte("hi bob"), got.Body)
}

func TestPeerSessionReceiveSurfacesTagMismatch(t *testing.T) {
	aliceIdentity, err := exchange.NewECDH()
	require.NoError(t, err)
	bobIdentity, err := exchange.NewECDH()
	require.NoError(t, err)
	bobSignedPrekey, err := exchange.NewECDH()
	require.NoError(t, err)

	bundle := (core.PreKeyBundle{
		IdentityDH:   bobIdentity.MarshalPublicKey(),
		SignedPrekey: bobSignedPrekey.MarshalPublicKey(),
	}).ToX3DHBundle()

	aliceSession, init, err := core.EstablishInitiator(aliceIdentity, bundle)
	require.NoError(t, err)
	bobSession, err := core.EstablishResponder(
		bobIdentity, bobSignedPrekey, nil, nil,
		aliceIdentity.MarshalPublicKey(), init.EphemeralPub, init.KEMCiphertext,
	)
	require.NoError(t, err)

	env, err := core.NewChatEnvelope(core.ChatText, []byte("hi bob"))
	require.NoError(t, err)
	hdr, ciphertext, err := aliceSession.Send("bob", env)
	require.NoError(t, err)
	ciphertext[0] ^= 0xff

	_, err = bobSession.Receive("alice", hdr, ciphertext, 0, [32]byte{})
	require.Error(t, err)

	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, core.KindTagMismatch, coreErr.Kind)
}
