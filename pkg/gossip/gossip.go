// Package gossip wraps peer-to-peer payloads with the sender's current Key
// Transparency tree head, letting two communicating clients detect log
// equivocation without either trusting the other or needing a third party.
package gossip

import (
	"encoding/binary"
	"errors"

	"github.com/mi-e2ee/core/pkg/kt"
)

const magic = "MIKTGSP1"

var (
	ErrTruncated      = errors.New("gossip: truncated envelope")
	ErrBadConsistency = errors.New("gossip: consistency proof failed verification")
)

// Head is the gossiped tree_size/root pair, compared against a peer's own
// view of the Key Transparency log on every exchange.
type Head struct {
	TreeSize uint64
	Root     [32]byte
}

// Wrap prefixes plain with the local head. Legacy peers (pre-gossip, no
// magic header) are never produced by this implementation, only consumed.
func Wrap(plain []byte, head Head) []byte {
	out := make([]byte, 0, len(magic)+8+32+4+len(plain))
	out = append(out, magic...)
	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], head.TreeSize)
	out = append(out, sz[:]...)
	out = append(out, head.Root[:]...)
	var ln [4]byte
	binary.LittleEndian.PutUint32(ln[:], uint32(len(plain)))
	out = append(out, ln[:]...)
	out = append(out, plain...)
	return out
}

// Unwrap parses a gossip envelope. If the magic header is absent, the input
// is treated as legacy plaintext and returned unchanged with wrapped=false.
func Unwrap(data []byte) (plain []byte, head Head, wrapped bool, err error) {
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return data, Head{}, false, nil
	}
	rest := data[len(magic):]
	if len(rest) < 8+32+4 {
		return nil, Head{}, true, ErrTruncated
	}
	head.TreeSize = binary.LittleEndian.Uint64(rest[:8])
	copy(head.Root[:], rest[8:40])
	plainLen := binary.LittleEndian.Uint32(rest[40:44])
	body := rest[44:]
	if uint32(len(body)) < plainLen {
		return nil, Head{}, true, ErrTruncated
	}
	return body[:plainLen], head, true, nil
}

// Outcome describes the action a receiver should take after comparing a
// peer's gossiped head against its own local view of the log.
type Outcome int

const (
	// OutcomeConsistent means the peer's view matches or trails the local
	// view with no divergence; nothing to do.
	OutcomeConsistent Outcome = iota
	// OutcomeMismatch means both sides claim the same tree_size but
	// different roots: the log operator has equivocated. The message is
	// still delivered; this is surfaced for operator/user action.
	OutcomeMismatch
	// OutcomeAdvance means the peer's tree is strictly ahead; the local
	// client should fetch and verify a consistency proof, then adopt the
	// peer's head.
	OutcomeAdvance
)

// Compare implements the gossip reconciliation rule between a peer's
// gossiped head and the local view.
func Compare(local, peer Head) Outcome {
	switch {
	case peer.TreeSize == local.TreeSize && peer.Root != local.Root:
		return OutcomeMismatch
	case peer.TreeSize > local.TreeSize:
		return OutcomeAdvance
	default:
		return OutcomeConsistent
	}
}

// ConsistencyFetcher fetches a consistency proof between a local and a
// peer-reported tree size from the Key Transparency server.
type ConsistencyFetcher interface {
	FetchConsistencyProof(localSize int, peerHead Head) (kt.ConsistencyProof, error)
}

// Reconcile runs the full gossip protocol step described for Compare ==
// OutcomeAdvance: fetch the consistency proof, verify it against the known
// local root and the peer's claimed root, and return the new head to adopt
// on success.
func Reconcile(fetcher ConsistencyFetcher, localSize int, localRoot [32]byte, peer Head) (Head, error) {
	proof, err := fetcher.FetchConsistencyProof(localSize, peer)
	if err != nil {
		return Head{}, err
	}
	if !kt.VerifyConsistency(proof, localRoot, peer.Root) {
		return Head{}, ErrBadConsistency
	}
	return peer, nil
}
