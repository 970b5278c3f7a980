// Package kt implements an RFC 6962-style Key Transparency log: an
// append-only Merkle tree of per-user key-binding leaves, with signed tree
// heads and inclusion/consistency proofs.
package kt

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/mi-e2ee/core/pkg/attest"
)

const sthDomain = "MI_KT_STH_V1"

var (
	ErrEmptyLog        = errors.New("kt: log is empty")
	ErrIndexOutOfRange = errors.New("kt: index out of range")
	ErrBadProof        = errors.New("kt: proof verification failed")
)

// Leaf is one entry appended to the log: a username bound to its identity
// key material at the time of publication.
type Leaf struct {
	Username string
	KeyData  []byte
}

func (l Leaf) bytes() []byte {
	b := make([]byte, 0, len(l.Username)+1+len(l.KeyData))
	b = append(b, byte(len(l.Username)))
	b = append(b, l.Username...)
	b = append(b, l.KeyData...)
	return b
}

func leafHash(l Leaf) [32]byte {
	return sha256.Sum256(append([]byte{0x00}, l.bytes()...))
}

func nodeHash(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, 65)
	buf = append(buf, 0x01)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

// SignedTreeHead is a signed attestation of the log's root at a given size.
type SignedTreeHead struct {
	TreeSize  uint64
	Root      [32]byte
	Signature []byte
}

func sthSignable(treeSize uint64, root [32]byte) []byte {
	buf := make([]byte, 0, len(sthDomain)+8+32)
	buf = append(buf, sthDomain...)
	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], treeSize)
	buf = append(buf, sz[:]...)
	buf = append(buf, root[:]...)
	return buf
}

// Log is an append-only Merkle tree over Leaf entries, tracking the latest
// entry index per username and memoising, for each level k, the hash of the
// left-most subtree of size 2^k. The proof builders in proof.go recompute
// subtree hashes with rangeHash and do not read that memo.
type Log struct {
	mu       sync.RWMutex
	leaves   []Leaf
	hashes   [][32]byte // leaf hashes, parallel to leaves
	latest   map[string]int
	levels   map[int][32]byte // level k -> hash of left-filled subtree of size 2^k
	signer   attest.Attester
}

// New creates an empty log signed with signer.
func New(signer attest.Attester) *Log {
	return &Log{
		latest: make(map[string]int),
		levels: make(map[int][32]byte),
		signer: signer,
	}
}

// Append adds a leaf, returning its index and the new signed tree head.
func (lg *Log) Append(l Leaf) (int, SignedTreeHead, error) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	idx := len(lg.leaves)
	lg.leaves = append(lg.leaves, l)
	lg.hashes = append(lg.hashes, leafHash(l))
	lg.latest[l.Username] = idx
	lg.updateLevels()

	return idx, lg.signedHeadLocked()
}

// updateLevels recomputes the memoised left-most subtree hash for every
// level k with 2^k no larger than the new tree size. Recomputed from scratch on every append for simplicity; the log
// sizes this targets (a single deployment's user base) make that cheap.
func (lg *Log) updateLevels() {
	n := len(lg.hashes)
	lg.levels = make(map[int][32]byte)
	for k := 0; (1 << k) <= n; k++ {
		size := 1 << k
		lg.levels[k] = rangeHash(lg.hashes[:size])
	}
}

// rangeHash computes the RFC 6962 Merkle tree hash over a contiguous
// sequence of leaf hashes, promoting the sole child of odd subtrees.
func rangeHash(hashes [][32]byte) [32]byte {
	n := len(hashes)
	if n == 0 {
		return sha256.Sum256(nil)
	}
	if n == 1 {
		return hashes[0]
	}
	split := largestPowerOfTwoLessThan(n)
	left := rangeHash(hashes[:split])
	right := rangeHash(hashes[split:])
	return nodeHash(left, right)
}

// largestPowerOfTwoLessThan returns the largest power of two strictly less
// than n (RFC 6962's k, used to split a subtree of size n).
func largestPowerOfTwoLessThan(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}

func (lg *Log) rootLocked() [32]byte {
	return rangeHash(lg.hashes)
}

func (lg *Log) signedHeadLocked() (SignedTreeHead, error) {
	root := lg.rootLocked()
	size := uint64(len(lg.hashes))
	sig, err := lg.signer.Sign(sthSignable(size, root), nil)
	if err != nil {
		return SignedTreeHead{}, fmt.Errorf("signing tree head: %w", err)
	}
	return SignedTreeHead{TreeSize: size, Root: root, Signature: sig}, nil
}

// Head returns the current signed tree head.
func (lg *Log) Head() (SignedTreeHead, error) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	if len(lg.hashes) == 0 {
		return SignedTreeHead{}, ErrEmptyLog
	}
	return lg.signedHeadLocked()
}

// Size returns the current number of leaves.
func (lg *Log) Size() int {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return len(lg.leaves)
}

// Latest returns the most recently appended leaf for username and its
// index, preserving the invariant that only the newest entry is looked up
// for identity resolution even though older entries remain in the log.
func (lg *Log) Latest(username string) (Leaf, int, bool) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	idx, ok := lg.latest[username]
	if !ok {
		return Leaf{}, 0, false
	}
	return lg.leaves[idx], idx, true
}

// VerifySTH checks a signed tree head against the log's own signer public
// key, for local sanity checks (remote verification uses the out-of-band
// public key directly with attest.Verify).
func VerifySTH(pub attest.PublicKey, sth SignedTreeHead) bool {
	return attest.Verify(pub, sthSignable(sth.TreeSize, sth.Root), sth.Signature)
}
