package devicesync_test

import (
	"testing"
	"time"

	"github.com/mi-e2ee/core/pkg/devicesync"
	"github.com/mi-e2ee/core/pkg/timesource"
	"github.com/stretchr/testify/require"
)

func newChainPair(t *testing.T) (*devicesync.Chain, *devicesync.Chain) {
	t.Helper()
	key := make([]byte, devicesync.SyncKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	now := time.Now()
	return devicesync.NewChain(key, now), devicesync.NewChain(key, now)
}

func TestSealOpenRoundTrip(t *testing.T) {
	a := require.New(t)
	primary, linked := newChainPair(t)

	env, err := primary.Seal(devicesync.EventMessage, []byte("hi from primary"))
	a.NoError(err)

	kind, payload, err := linked.Open(env, devicesync.DefaultMaxSkip)
	a.NoError(err)
	a.Equal(devicesync.EventMessage, kind)
	a.Equal([]byte("hi from primary"), payload)
}

func TestOutOfOrderWithinSkipWindow(t *testing.T) {
	a := require.New(t)
	primary, linked := newChainPair(t)

	var envs []devicesync.Envelope
	for i := 0; i < 5; i++ {
		env, err := primary.Seal(devicesync.EventDelivery, []byte{byte(i)})
		a.NoError(err)
		envs = append(envs, env)
	}

	for _, i := range []int{4, 2, 0, 3, 1} {
		_, payload, err := linked.Open(envs[i], devicesync.DefaultMaxSkip)
		a.NoErrorf(err, "envelope %d", i)
		a.Equal([]byte{byte(i)}, payload)
	}
}

func TestReplayBeyondSkipWindowRejected(t *testing.T) {
	a := require.New(t)
	primary, linked := newChainPair(t)

	var last devicesync.Envelope
	for i := 0; i < 40; i++ {
		env, err := primary.Seal(devicesync.EventMessage, []byte{byte(i)})
		a.NoError(err)
		if i == 0 {
			last = env
		}
		if i > 0 {
			_, _, err := linked.Open(env, devicesync.DefaultMaxSkip)
			a.NoError(err)
		}
	}

	_, _, err := linked.Open(last, devicesync.DefaultMaxSkip)
	a.ErrorIs(err, devicesync.ErrReplayRejected)
}

func TestTamperedCiphertextRejected(t *testing.T) {
	a := require.New(t)
	primary, linked := newChainPair(t)

	env, err := primary.Seal(devicesync.EventMessage, []byte("hi"))
	a.NoError(err)
	env.Ciphertext[0] ^= 0xff

	_, _, err = linked.Open(env, devicesync.DefaultMaxSkip)
	a.ErrorIs(err, devicesync.ErrTagMismatch)
}

func TestRotationOnMessageLimit(t *testing.T) {
	a := require.New(t)
	now := time.Now()
	chain := devicesync.NewChain(make([]byte, 32), now)
	chain.SentSince = 10

	a.True(chain.NeedsRotation(now, 10, 0))
	a.False(chain.NeedsRotation(now, 11, 0))

	oldKey := append([]byte{}, chain.Key...)
	newKey, err := chain.Rotate(now)
	a.NoError(err)
	a.NotEqual(oldKey, newKey)
	a.Equal(uint64(0), chain.SendCounter)
	a.Equal(0, chain.SentSince)
}

func TestRotationOnAge(t *testing.T) {
	a := require.New(t)
	old := time.Now().Add(-25 * time.Hour)
	chain := devicesync.NewChain(make([]byte, 32), old)
	a.True(chain.NeedsRotation(time.Now(), 0, devicesync.DefaultRotateInterval))
}

func TestPairingLifecycle(t *testing.T) {
	a := require.New(t)
	clock := timesource.NewManual(time.Now())
	tracker := devicesync.NewPairingTracker(clock)

	code, err := devicesync.NewPairingCode()
	a.NoError(err)
	a.NoError(tracker.Start(code))

	req, err := tracker.Observe(code, "req-1", []byte("dh"), []byte("sig"))
	a.NoError(err)
	a.Equal("req-1", req.RequestID)

	approved, err := tracker.Approve(code)
	a.NoError(err)
	a.Equal([]byte("dh"), approved.LinkedIdentityDH)

	_, err = tracker.Approve(code)
	a.ErrorIs(err, devicesync.ErrPairingExpired)
}

func TestPairingExpiresAfterTTL(t *testing.T) {
	a := require.New(t)
	clock := timesource.NewManual(time.Now())
	tracker := devicesync.NewPairingTracker(clock)

	code, err := devicesync.NewPairingCode()
	a.NoError(err)
	a.NoError(tracker.Start(code))

	clock.Advance(devicesync.PairingTTL + time.Second)
	_, err = tracker.Observe(code, "req-1", nil, nil)
	a.ErrorIs(err, devicesync.ErrPairingExpired)
}

func TestPairingAttemptThrottle(t *testing.T) {
	a := require.New(t)
	clock := timesource.NewManual(time.Now())
	tracker := devicesync.NewPairingTracker(clock)

	for i := 0; i < devicesync.PairingAttemptLimit; i++ {
		code, err := devicesync.NewPairingCode()
		a.NoError(err)
		a.NoError(tracker.Start(code))
	}

	code, err := devicesync.NewPairingCode()
	a.NoError(err)
	a.ErrorIs(tracker.Start(code), devicesync.ErrPairingThrottled)

	clock.Advance(devicesync.PairingAttemptWindow + time.Second)
	a.NoError(tracker.Start(code))
}
