package kt

// InclusionProof is the audit path from a leaf at Index to the root of a
// tree of size TreeSize.
type InclusionProof struct {
	Index    int
	TreeSize int
	Path     [][32]byte
}

// Prove builds the inclusion proof for the leaf at idx against the current
// tree.
func (lg *Log) Prove(idx int) (InclusionProof, error) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	if idx < 0 || idx >= len(lg.hashes) {
		return InclusionProof{}, ErrIndexOutOfRange
	}
	path := inclusionPath(lg.hashes, idx)
	return InclusionProof{Index: idx, TreeSize: len(lg.hashes), Path: path}, nil
}

// inclusionPath recursively collects sibling hashes from leaf idx to the
// root of the subtree spanning hashes.
func inclusionPath(hashes [][32]byte, idx int) [][32]byte {
	n := len(hashes)
	if n <= 1 {
		return nil
	}
	split := largestPowerOfTwoLessThan(n)
	if idx < split {
		sibling := rangeHash(hashes[split:])
		return append(inclusionPath(hashes[:split], idx), sibling)
	}
	sibling := rangeHash(hashes[:split])
	return append(inclusionPath(hashes[split:], idx-split), sibling)
}

// VerifyInclusion reconstructs the root from leaf and proof.Path and checks
// it against the trusted root from an STH of the same TreeSize.
func VerifyInclusion(leaf Leaf, proof InclusionProof, trustedRoot [32]byte) bool {
	computed := reconstructRoot(leafHash(leaf), proof.Index, proof.TreeSize, proof.Path)
	return computed == trustedRoot
}

// reconstructRoot rebuilds a Merkle root from a leaf hash and its audit
// path, mirroring the same left/right split used to build inclusionPath.
func reconstructRoot(leaf [32]byte, idx, size int, path [][32]byte) [32]byte {
	if size <= 1 {
		return leaf
	}
	split := largestPowerOfTwoLessThan(size)
	if len(path) == 0 {
		return leaf
	}
	sibling := path[len(path)-1]
	rest := path[:len(path)-1]
	if idx < split {
		sub := reconstructRoot(leaf, idx, split, rest)
		return nodeHash(sub, sibling)
	}
	sub := reconstructRoot(leaf, idx-split, size-split, rest)
	return nodeHash(sibling, sub)
}

// ConsistencyProof lets a verifier check that a log of size OldSize is a
// prefix of a log of size NewSize.
type ConsistencyProof struct {
	OldSize int
	NewSize int
	Path    [][32]byte
}

// ProveConsistency builds an RFC 6962 consistency proof between oldSize and
// the log's current size.
func (lg *Log) ProveConsistency(oldSize int) (ConsistencyProof, error) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	if oldSize <= 0 || oldSize > len(lg.hashes) {
		return ConsistencyProof{}, ErrIndexOutOfRange
	}
	newSize := len(lg.hashes)
	path := consistencyPath(lg.hashes, oldSize, newSize, true)
	return ConsistencyProof{OldSize: oldSize, NewSize: newSize, Path: path}, nil
}

// consistencyPath implements the RFC 6962 SUBPROOF algorithm: recursively
// descend by comparing m (old size) against the largest power of two k
// strictly less than n (the current subtree's size).
func consistencyPath(hashes [][32]byte, m, n int, start bool) [][32]byte {
	if m == n {
		if start {
			return nil
		}
		return [][32]byte{rangeHash(hashes)}
	}
	k := largestPowerOfTwoLessThan(n)
	switch {
	case m <= k:
		sub := consistencyPath(hashes[:k], m, k, start)
		return append(sub, rangeHash(hashes[k:]))
	default:
		sub := consistencyPath(hashes[k:], m-k, n-k, false)
		return append(sub, rangeHash(hashes[:k]))
	}
}

// VerifyConsistency reconstructs (calc_old, calc_new) from the proof,
// mirroring consistencyPath's recursion, and asserts both match the
// trusted roots supplied by the verifier. oldRoot is threaded in directly
// rather than recomputed: when the recursion bottoms out on a subtree that
// is still entirely within the (unverified) old tree's known prefix, its
// hash is exactly oldRoot by definition, not something the proof needs to
// carry.
func VerifyConsistency(proof ConsistencyProof, oldRoot, newRoot [32]byte) bool {
	m, n := proof.OldSize, proof.NewSize
	if m == n {
		return len(proof.Path) == 0 && oldRoot == newRoot
	}
	if m <= 0 || m > n {
		return false
	}
	fr, sr, rest, ok := verifyConsistencySub(m, n, proof.Path, oldRoot, true)
	if !ok || len(rest) != 0 {
		return false
	}
	return fr == oldRoot && sr == newRoot
}

// verifyConsistencySub consumes proof elements front-to-back in the same
// order consistencyPath appends them (innermost recursion first), folding
// them into (old_root, new_root) for the current (m, n) subtree. b tracks
// whether every step so far has stayed within the old tree's left-aligned
// prefix (the "still matching" flag from the RFC 6962 SUBPROOF algorithm).
func verifyConsistencySub(m, n int, proof [][32]byte, oldRoot [32]byte, b bool) (fr, sr [32]byte, rest [][32]byte, ok bool) {
	if m == n {
		if b {
			return oldRoot, oldRoot, proof, true
		}
		if len(proof) == 0 {
			return fr, sr, proof, false
		}
		h := proof[0]
		return h, h, proof[1:], true
	}
	k := largestPowerOfTwoLessThan(n)
	if m <= k {
		fr2, sr2, rest2, ok2 := verifyConsistencySub(m, k, proof, oldRoot, b)
		if !ok2 || len(rest2) == 0 {
			return fr, sr, rest, false
		}
		right := rest2[0]
		return fr2, nodeHash(sr2, right), rest2[1:], true
	}
	fr2, sr2, rest2, ok2 := verifyConsistencySub(m-k, n-k, proof, oldRoot, false)
	if !ok2 || len(rest2) == 0 {
		return fr, sr, rest, false
	}
	left := rest2[0]
	return nodeHash(left, fr2), nodeHash(left, sr2), rest2[1:], true
}
