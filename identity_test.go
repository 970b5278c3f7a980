package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	core "github.com/mi-e2ee/core"
	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/exchange"
)

func TestSignBundleVerifiesAndBridgesToX3DH(t *testing.T) {
	id, err := core.NewIdentity("alice", "device-1", attest.Ed25519Algorithm)
	require.NoError(t, err)

	signedPrekey, err := exchange.NewECDH()
	require.NoError(t, err)
	kem, err := exchange.NewMLKEM()
	require.NoError(t, err)
	oneTime, err := exchange.NewECDH()
	require.NoError(t, err)

	bundle, err := id.SignBundle(signedPrekey, kem, oneTime)
	require.NoError(t, err)
	require.True(t, bundle.Verify(id.Sig.PublicKey()))

	x3dh := bundle.ToX3DHBundle()
	require.Equal(t, bundle.IdentityDH, x3dh.IdentityDH)
	require.Equal(t, bundle.SignedPrekey, x3dh.SignedPrekey)
	require.Equal(t, bundle.OneTimePrekey, x3dh.OneTimePrekey)
}

func TestSignBundleRejectsTamperedSignature(t *testing.T) {
	id, err := core.NewIdentity("bob", "device-1", attest.Ed25519Algorithm)
	require.NoError(t, err)
	signedPrekey, err := exchange.NewECDH()
	require.NoError(t, err)

	bundle, err := id.SignBundle(signedPrekey, nil, nil)
	require.NoError(t, err)
	bundle.Signature[0] ^= 0xff

	require.False(t, bundle.Verify(id.Sig.PublicKey()))
}

func TestBundleRegistryFetchConsumesOneTimePrekey(t *testing.T) {
	reg := core.NewBundleRegistry()
	id, err := core.NewIdentity("carol", "device-1", attest.Ed25519Algorithm)
	require.NoError(t, err)
	signedPrekey, err := exchange.NewECDH()
	require.NoError(t, err)
	bundle, err := id.SignBundle(signedPrekey, nil, nil)
	require.NoError(t, err)

	oneTimeA, err := exchange.NewECDH()
	require.NoError(t, err)
	oneTimeB, err := exchange.NewECDH()
	require.NoError(t, err)
	reg.Publish(bundle, [][]byte{oneTimeA.MarshalPublicKey(), oneTimeB.MarshalPublicKey()})

	first, err := reg.Fetch("carol")
	require.NoError(t, err)
	require.NotEmpty(t, first.OneTimePrekey)

	second, err := reg.Fetch("carol")
	require.NoError(t, err)
	require.NotEqual(t, first.OneTimePrekey, second.OneTimePrekey)
}

func TestBundleRegistryFetchMissingUser(t *testing.T) {
	reg := core.NewBundleRegistry()
	_, err := reg.Fetch("nobody")
	require.Error(t, err)

	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, core.KindPeerBundleMissing, coreErr.Kind)
}

func TestIdentityFingerprintIsStableAndDistinguishesUsers(t *testing.T) {
	alice, err := core.NewIdentity("alice", "device-1", attest.Ed25519Algorithm)
	require.NoError(t, err)
	bob, err := core.NewIdentity("bob", "device-1", attest.Ed25519Algorithm)
	require.NoError(t, err)

	require.Equal(t, alice.Fingerprint(), alice.Fingerprint())
	require.NotEqual(t, alice.Fingerprint(), bob.Fingerprint())
}
