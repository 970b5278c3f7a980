package senderkey_test

import (
	"testing"
	"time"

	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/senderkey"
	"github.com/mi-e2ee/core/pkg/timesource"
	"github.com/stretchr/testify/require"
)

func newAttester(t *testing.T) attest.Attester {
	t.Helper()
	att, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	return att
}

func TestKdfCkAdvancesDeterministically(t *testing.T) {
	a := require.New(t)
	ck0 := make([]byte, 32)
	for i := range ck0 {
		ck0[i] = byte(i)
	}

	ck1, mk1, err := senderkey.KdfCk(ck0)
	a.NoError(err)
	ck2, mk2, err := senderkey.KdfCk(ck1)
	a.NoError(err)

	a.NotEqual(ck0, ck1)
	a.NotEqual(ck1, ck2)
	a.NotEqual(mk1, mk2)
	a.Len(mk1, 32)
}

func TestRoundTripInOrder(t *testing.T) {
	a := require.New(t)
	aliceAtt := newAttester(t)

	membersHash := []byte("members-v1")
	sender, err := senderkey.NewSenderState("group-1", "alice", membersHash, time.Now())
	a.NoError(err)

	recv := senderkey.NewReceiverState("group-1", "alice", 1, 0, sender.CK)

	env, err := sender.Encrypt(aliceAtt, []byte("hello group"))
	a.NoError(err)

	pt, err := recv.Decrypt(env, aliceAtt.PublicKey())
	a.NoError(err)
	a.Equal([]byte("hello group"), pt)
}

func TestOutOfOrderWithinSkipWindow(t *testing.T) {
	a := require.New(t)
	aliceAtt := newAttester(t)
	membersHash := []byte("members-v1")
	sender, err := senderkey.NewSenderState("group-1", "alice", membersHash, time.Now())
	a.NoError(err)
	recv := senderkey.NewReceiverState("group-1", "alice", 1, 0, sender.CK)

	var envs []senderkey.Envelope
	for i := 0; i < 3; i++ {
		env, err := sender.Encrypt(aliceAtt, []byte{byte(i)})
		a.NoError(err)
		envs = append(envs, env)
	}

	// deliver out of order: 2, 0, 1
	pt2, err := recv.Decrypt(envs[2], aliceAtt.PublicKey())
	a.NoError(err)
	a.Equal([]byte{2}, pt2)

	pt0, err := recv.Decrypt(envs[0], aliceAtt.PublicKey())
	a.NoError(err)
	a.Equal([]byte{0}, pt0)

	pt1, err := recv.Decrypt(envs[1], aliceAtt.PublicKey())
	a.NoError(err)
	a.Equal([]byte{1}, pt1)
}

func TestRotationOnMembershipChange(t *testing.T) {
	a := require.New(t)
	aliceAtt := newAttester(t)
	now := time.Now()

	h1 := []byte("alice+bob")
	sender, err := senderkey.NewSenderState("g", "alice", h1, now)
	a.NoError(err)
	a.Equal(uint32(1), sender.Version)

	h2 := []byte("alice-only") // bob left
	a.True(sender.NeedsRotation(h2, now))

	a.NoError(sender.Rotate(h2, now))
	a.Equal(uint32(2), sender.Version)
	a.Equal(uint32(0), sender.Iteration)
	a.Equal(h2, sender.MembersHash)
}

func TestRotationOnSentCountThreshold(t *testing.T) {
	a := require.New(t)
	now := time.Now()
	sender, err := senderkey.NewSenderState("g", "alice", []byte("h"), now)
	a.NoError(err)
	sender.SentCount = senderkey.RotateAfterSentCount
	a.True(sender.NeedsRotation(sender.MembersHash, now))
}

func TestRotationOnAge(t *testing.T) {
	a := require.New(t)
	old := time.Now().Add(-8 * 24 * time.Hour)
	sender, err := senderkey.NewSenderState("g", "alice", []byte("h"), old)
	a.NoError(err)
	a.True(sender.NeedsRotation(sender.MembersHash, time.Now()))
}

func TestReceiverRejectsBadSignature(t *testing.T) {
	a := require.New(t)
	aliceAtt := newAttester(t)
	mallory := newAttester(t)

	sender, err := senderkey.NewSenderState("g", "alice", []byte("h"), time.Now())
	a.NoError(err)
	recv := senderkey.NewReceiverState("g", "alice", 1, 0, sender.CK)

	env, err := sender.Encrypt(aliceAtt, []byte("hi"))
	a.NoError(err)

	_, err = recv.Decrypt(env, mallory.PublicKey())
	a.ErrorIs(err, senderkey.ErrInvalidSignature)
}

func TestDistributionSignVerify(t *testing.T) {
	a := require.New(t)
	att := newAttester(t)
	ck := make([]byte, 32)

	dist, err := senderkey.NewDist(att, "g", 2, 0, ck)
	a.NoError(err)
	a.True(dist.Verify(att.PublicKey()))

	dist.Version = 3
	a.False(dist.Verify(att.PublicKey()))
}

func TestReceiverAcceptsDistributionRule(t *testing.T) {
	a := require.New(t)
	recv := senderkey.NewReceiverState("g", "alice", 2, 5, make([]byte, 32))

	a.True(recv.AcceptsDistribution(3, 0))
	a.True(recv.AcceptsDistribution(2, 5))
	a.True(recv.AcceptsDistribution(2, 9))
	a.False(recv.AcceptsDistribution(2, 4))
	a.False(recv.AcceptsDistribution(1, 100))
}

func TestReqThrottle(t *testing.T) {
	a := require.New(t)
	clock := timesource.NewManual(time.Now())
	th := senderkey.NewReqThrottle(clock)

	a.True(th.Allow("alice", 2))
	a.False(th.Allow("alice", 2))

	clock.Advance(senderkey.ReqThrottleInterval)
	a.True(th.Allow("alice", 2))

	a.True(th.Allow("alice", 3))
}
