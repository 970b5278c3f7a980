package groupcall_test

import (
	"testing"
	"time"

	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/groupcall"
	"github.com/mi-e2ee/core/pkg/timesource"
	"github.com/stretchr/testify/require"
)

func newAttester(t *testing.T) attest.Attester {
	t.Helper()
	att, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	return att
}

func TestNewDistSignAndVerify(t *testing.T) {
	a := require.New(t)
	att := newAttester(t)

	dist, err := groupcall.NewDist(att, "group-1", "call-1", 1)
	a.NoError(err)
	a.Len(dist.CallKey, groupcall.CallKeySize)
	a.True(dist.Verify(att.PublicKey()))

	dist.KeyID = 2
	a.False(dist.Verify(att.PublicKey()))
}

func TestRotateIncrementsKeyID(t *testing.T) {
	a := require.New(t)
	att := newAttester(t)

	d1, err := groupcall.NewDist(att, "g", "c", 1)
	a.NoError(err)
	d2, err := groupcall.Rotate(att, "g", "c", d1.KeyID)
	a.NoError(err)
	a.Equal(uint32(2), d2.KeyID)
	a.NotEqual(d1.CallKey, d2.CallKey)
}

func TestCacheStoreLookup(t *testing.T) {
	a := require.New(t)
	att := newAttester(t)
	cache := groupcall.NewCache()

	dist, err := groupcall.NewDist(att, "g", "c", 1)
	a.NoError(err)
	cache.Store(dist)

	key, ok := cache.Lookup("g", "c", 1)
	a.True(ok)
	a.Equal(dist.CallKey, key)

	_, ok = cache.Lookup("g", "c", 2)
	a.False(ok)
}

func TestReqThrottle(t *testing.T) {
	a := require.New(t)
	clock := timesource.NewManual(time.Now())
	th := groupcall.NewReqThrottle(clock)

	a.True(th.Allow("g", "c", 2))
	a.False(th.Allow("g", "c", 2))

	clock.Advance(groupcall.ReqThrottleInterval)
	a.True(th.Allow("g", "c", 2))
}
