package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	core "github.com/mi-e2ee/core"
	"github.com/mi-e2ee/core/pkg/attest"
)

func TestGroupSessionEncryptDecryptRoundTrip(t *testing.T) {
	members := []string{"alice", "bob", "carol"}

	aliceID, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	alice, err := core.NewGroupSession("team", "alice", aliceID, members, nil)
	require.NoError(t, err)

	bobID, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	bob, err := core.NewGroupSession("team", "bob", bobID, members, nil)
	require.NoError(t, err)

	env, dists, err := alice.Encrypt(members, []byte("hello team"), time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, dists)

	require.NoError(t, bob.ApplyDistribution("alice", dists[0], aliceID.PublicKey()))

	plaintext, req, err := bob.Decrypt(env, aliceID.PublicKey())
	require.NoError(t, err)
	require.Nil(t, req)
	require.Equal(t, []byte("hello team"), plaintext)
}

func TestGroupSessionDecryptUnknownSenderRequestsDistribution(t *testing.T) {
	members := []string{"alice", "bob"}
	aliceID, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	alice, err := core.NewGroupSession("team", "alice", aliceID, members, nil)
	require.NoError(t, err)
	bobID, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	bob, err := core.NewGroupSession("team", "bob", bobID, members, nil)
	require.NoError(t, err)

	env, _, err := alice.Encrypt(members, []byte("msg"), time.Now())
	require.NoError(t, err)

	_, req, err := bob.Decrypt(env, aliceID.PublicKey())
	require.Error(t, err)
	require.NotNil(t, req)

	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, core.KindUnknownSession, coreErr.Kind)
}

func TestGroupSessionCallKeyLifecycle(t *testing.T) {
	aliceID, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	alice, err := core.NewGroupSession("team", "alice", aliceID, []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	bobID, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	bob, err := core.NewGroupSession("team", "bob", bobID, []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	dist, err := alice.StartCall("call-1")
	require.NoError(t, err)
	require.NoError(t, bob.ApplyCallDist(dist, aliceID.PublicKey()))

	key, req, err := bob.CallKey("call-1", dist.KeyID)
	require.NoError(t, err)
	require.Nil(t, req)
	require.NotEmpty(t, key)
}
