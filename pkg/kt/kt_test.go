package kt_test

import (
	"fmt"
	"testing"

	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/kt"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T) attest.Attester {
	t.Helper()
	att, err := attest.NewAttester(attest.Ed25519Algorithm)
	require.NoError(t, err)
	return att
}

func TestAppendGrowsSizeAndUpdatesLatest(t *testing.T) {
	a := require.New(t)
	log := kt.New(newSigner(t))

	idx, sth, err := log.Append(kt.Leaf{Username: "alice", KeyData: []byte("k1")})
	a.NoError(err)
	a.Equal(0, idx)
	a.EqualValues(1, sth.TreeSize)

	idx2, sth2, err := log.Append(kt.Leaf{Username: "alice", KeyData: []byte("k2")})
	a.NoError(err)
	a.Equal(1, idx2)
	a.EqualValues(2, sth2.TreeSize)
	a.NotEqual(sth.Root, sth2.Root)

	leaf, idx, ok := log.Latest("alice")
	a.True(ok)
	a.Equal(1, idx)
	a.Equal([]byte("k2"), leaf.KeyData)
}

func TestSignedHeadVerifies(t *testing.T) {
	a := require.New(t)
	signer := newSigner(t)
	log := kt.New(signer)
	_, _, err := log.Append(kt.Leaf{Username: "alice", KeyData: []byte("k1")})
	a.NoError(err)

	head, err := log.Head()
	a.NoError(err)
	a.True(kt.VerifySTH(signer.PublicKey(), head))

	head.TreeSize++
	a.False(kt.VerifySTH(signer.PublicKey(), head))
}

func TestInclusionProofRoundTrip(t *testing.T) {
	a := require.New(t)
	log := kt.New(newSigner(t))

	leaves := []kt.Leaf{
		{Username: "alice", KeyData: []byte("k1")},
		{Username: "bob", KeyData: []byte("k2")},
		{Username: "carol", KeyData: []byte("k3")},
		{Username: "dave", KeyData: []byte("k4")},
		{Username: "erin", KeyData: []byte("k5")},
	}
	for _, l := range leaves {
		_, _, err := log.Append(l)
		a.NoError(err)
	}

	head, err := log.Head()
	a.NoError(err)

	for i, l := range leaves {
		proof, err := log.Prove(i)
		a.NoErrorf(err, "leaf %d", i)
		a.Truef(kt.VerifyInclusion(l, proof, head.Root), "leaf %d", i)
	}
}

func TestInclusionProofRejectsWrongLeaf(t *testing.T) {
	a := require.New(t)
	log := kt.New(newSigner(t))
	for i := 0; i < 4; i++ {
		_, _, err := log.Append(kt.Leaf{Username: fmt.Sprintf("u%d", i), KeyData: []byte{byte(i)}})
		a.NoError(err)
	}
	head, err := log.Head()
	a.NoError(err)

	proof, err := log.Prove(1)
	a.NoError(err)

	tampered := kt.Leaf{Username: "u1", KeyData: []byte{99}}
	a.False(kt.VerifyInclusion(tampered, proof, head.Root))
}

func TestConsistencyProofAcrossGrowth(t *testing.T) {
	a := require.New(t)
	log := kt.New(newSigner(t))

	for i := 0; i < 3; i++ {
		_, _, err := log.Append(kt.Leaf{Username: fmt.Sprintf("u%d", i), KeyData: []byte{byte(i)}})
		a.NoError(err)
	}
	oldHead, err := log.Head()
	a.NoError(err)
	oldSize := log.Size()

	for i := 3; i < 7; i++ {
		_, _, err := log.Append(kt.Leaf{Username: fmt.Sprintf("u%d", i), KeyData: []byte{byte(i)}})
		a.NoError(err)
	}
	newHead, err := log.Head()
	a.NoError(err)

	proof, err := log.ProveConsistency(oldSize)
	a.NoError(err)
	a.True(kt.VerifyConsistency(proof, oldHead.Root, newHead.Root))
}

func TestConsistencyProofRejectsForkedRoot(t *testing.T) {
	a := require.New(t)
	log := kt.New(newSigner(t))
	for i := 0; i < 3; i++ {
		_, _, err := log.Append(kt.Leaf{Username: fmt.Sprintf("u%d", i), KeyData: []byte{byte(i)}})
		a.NoError(err)
	}
	oldHead, err := log.Head()
	a.NoError(err)
	oldSize := log.Size()
	for i := 3; i < 6; i++ {
		_, _, err := log.Append(kt.Leaf{Username: fmt.Sprintf("u%d", i), KeyData: []byte{byte(i)}})
		a.NoError(err)
	}

	proof, err := log.ProveConsistency(oldSize)
	a.NoError(err)

	forgedRoot := oldHead.Root
	forgedRoot[0] ^= 0xff
	newHead, err := log.Head()
	a.NoError(err)
	a.False(kt.VerifyConsistency(proof, forgedRoot, newHead.Root))
}

func TestConsistencyProofSameSizeRequiresEqualRoots(t *testing.T) {
	a := require.New(t)
	log := kt.New(newSigner(t))
	_, _, err := log.Append(kt.Leaf{Username: "a", KeyData: []byte{1}})
	a.NoError(err)
	head, err := log.Head()
	a.NoError(err)

	proof, err := log.ProveConsistency(log.Size())
	a.NoError(err)
	a.True(kt.VerifyConsistency(proof, head.Root, head.Root))
}

func TestConsistencyProofAtPowerOfTwoBoundary(t *testing.T) {
	a := require.New(t)
	log := kt.New(newSigner(t))
	for i := 0; i < 4; i++ {
		_, _, err := log.Append(kt.Leaf{Username: fmt.Sprintf("u%d", i), KeyData: []byte{byte(i)}})
		a.NoError(err)
	}
	oldHead, err := log.Head()
	a.NoError(err)
	oldSize := log.Size() // 4, a power of two

	for i := 4; i < 7; i++ {
		_, _, err := log.Append(kt.Leaf{Username: fmt.Sprintf("u%d", i), KeyData: []byte{byte(i)}})
		a.NoError(err)
	}
	newHead, err := log.Head()
	a.NoError(err)

	proof, err := log.ProveConsistency(oldSize)
	a.NoError(err)
	a.True(kt.VerifyConsistency(proof, oldHead.Root, newHead.Root))
}

func TestProveRejectsOutOfRangeIndex(t *testing.T) {
	a := require.New(t)
	log := kt.New(newSigner(t))
	_, _, err := log.Append(kt.Leaf{Username: "a", KeyData: []byte{1}})
	a.NoError(err)

	_, err = log.Prove(5)
	a.ErrorIs(err, kt.ErrIndexOutOfRange)
}
