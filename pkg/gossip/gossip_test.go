package gossip_test

import (
	"testing"

	"github.com/mi-e2ee/core/pkg/gossip"
	"github.com/mi-e2ee/core/pkg/kt"
	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	a := require.New(t)
	head := gossip.Head{TreeSize: 12, Root: [32]byte{1, 2, 3}}

	wrapped := gossip.Wrap([]byte("hello"), head)
	plain, gotHead, ok, err := gossip.Unwrap(wrapped)
	a.NoError(err)
	a.True(ok)
	a.Equal([]byte("hello"), plain)
	a.Equal(head, gotHead)
}

func TestUnwrapLegacyPlaintext(t *testing.T) {
	a := require.New(t)
	plain, head, ok, err := gossip.Unwrap([]byte("not wrapped at all"))
	a.NoError(err)
	a.False(ok)
	a.Equal(gossip.Head{}, head)
	a.Equal([]byte("not wrapped at all"), plain)
}

func TestUnwrapTruncated(t *testing.T) {
	a := require.New(t)
	_, _, _, err := gossip.Unwrap([]byte("MIKTGSP1tooshort"))
	a.ErrorIs(err, gossip.ErrTruncated)
}

func TestCompareOutcomes(t *testing.T) {
	a := require.New(t)
	local := gossip.Head{TreeSize: 5, Root: [32]byte{1}}

	a.Equal(gossip.OutcomeConsistent, gossip.Compare(local, gossip.Head{TreeSize: 5, Root: [32]byte{1}}))
	a.Equal(gossip.OutcomeMismatch, gossip.Compare(local, gossip.Head{TreeSize: 5, Root: [32]byte{2}}))
	a.Equal(gossip.OutcomeAdvance, gossip.Compare(local, gossip.Head{TreeSize: 6, Root: [32]byte{9}}))
	a.Equal(gossip.OutcomeConsistent, gossip.Compare(local, gossip.Head{TreeSize: 4, Root: [32]byte{9}}))
}

type fakeFetcher struct {
	proof kt.ConsistencyProof
	err   error
}

func (f fakeFetcher) FetchConsistencyProof(localSize int, peerHead gossip.Head) (kt.ConsistencyProof, error) {
	return f.proof, f.err
}

func TestReconcileAdoptsVerifiedHead(t *testing.T) {
	a := require.New(t)
	signer, err := attest.NewAttester(attest.Ed25519Algorithm)
	a.NoError(err)
	log := kt.New(signer)

	for i := 0; i < 3; i++ {
		_, _, err := log.Append(kt.Leaf{Username: "u", KeyData: []byte{byte(i)}})
		a.NoError(err)
	}
	oldHead, err := log.Head()
	a.NoError(err)
	oldSize := log.Size()

	_, _, err = log.Append(kt.Leaf{Username: "u", KeyData: []byte{9}})
	a.NoError(err)
	newHead, err := log.Head()
	a.NoError(err)

	proof, err := log.ProveConsistency(oldSize)
	a.NoError(err)

	peer := gossip.Head{TreeSize: newHead.TreeSize, Root: newHead.Root}
	adopted, err := gossip.Reconcile(fakeFetcher{proof: proof}, oldSize, oldHead.Root, peer)
	a.NoError(err)
	a.Equal(peer, adopted)
}

func TestReconcileRejectsBadProof(t *testing.T) {
	a := require.New(t)
	bad := kt.ConsistencyProof{OldSize: 1, NewSize: 2, Path: [][32]byte{{0xff}}}
	_, err := gossip.Reconcile(fakeFetcher{proof: bad}, 1, [32]byte{1}, gossip.Head{TreeSize: 2, Root: [32]byte{2}})
	a.ErrorIs(err, gossip.ErrBadConsistency)
}
