package senderkey

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/timesource"
)

// Dist is a signed sender-key distribution sent over the peer ratchet to
// each group member.
type Dist struct {
	GroupID   string
	Version   uint32
	Iteration uint32
	CK        []byte
	Signature []byte
}

func distSignable(groupID string, version, iteration uint32, ck []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(gskdDomain)
	buf.WriteString(groupID)
	var vb, ib [4]byte
	binary.LittleEndian.PutUint32(vb[:], version)
	binary.LittleEndian.PutUint32(ib[:], iteration)
	buf.Write(vb[:])
	buf.Write(ib[:])
	buf.Write(ck)
	return buf.Bytes()
}

// NewDist builds and signs a distribution envelope for the sender's current
// chain position.
func NewDist(att attest.Attester, groupID string, version, iteration uint32, ck []byte) (Dist, error) {
	sig, err := att.Sign(distSignable(groupID, version, iteration, ck), nil)
	if err != nil {
		return Dist{}, err
	}
	return Dist{GroupID: groupID, Version: version, Iteration: iteration, CK: append([]byte{}, ck...), Signature: sig}, nil
}

// Verify checks a distribution's signature against the sender's identity
// public key.
func (d Dist) Verify(senderPub attest.PublicKey) bool {
	return attest.Verify(senderPub, distSignable(d.GroupID, d.Version, d.Iteration, d.CK), d.Signature)
}

// PendingDist tracks a distribution awaiting acknowledgement from one
// recipient, resent on an interval until acked.
type PendingDist struct {
	Dist       Dist
	Recipient  string
	LastSentAt time.Time
	Acked      bool
}

// DistTracker manages outstanding distributions to group members pending
// ACK, resending on DistResendInterval.
type DistTracker struct {
	mu      sync.Mutex
	pending map[string]*PendingDist // key: recipient
	clock   timesource.Source
}

func NewDistTracker(clock timesource.Source) *DistTracker {
	if clock == nil {
		clock = timesource.System{}
	}
	return &DistTracker{pending: make(map[string]*PendingDist), clock: clock}
}

// Track registers a distribution as pending for a recipient.
func (t *DistTracker) Track(recipient string, dist Dist) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[recipient] = &PendingDist{Dist: dist, Recipient: recipient, LastSentAt: t.clock.Now()}
}

// Ack marks a recipient's pending distribution as acknowledged.
func (t *DistTracker) Ack(recipient string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, recipient)
}

// DueForResend returns distributions that have been pending longer than
// DistResendInterval, and bumps their LastSentAt.
func (t *DistTracker) DueForResend() []PendingDist {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	var due []PendingDist
	for _, p := range t.pending {
		if now.Sub(p.LastSentAt) >= DistResendInterval {
			p.LastSentAt = now
			due = append(due, *p)
		}
	}
	return due
}

// Req is an on-demand request for a missing sender key at a given version.
type Req struct {
	GroupID    string
	WantVersion uint32
}

// ReqThrottle rate-limits outgoing GroupSenderKeyReq to once per
// ReqThrottleInterval per (sender, version).
type ReqThrottle struct {
	mu    sync.Mutex
	last  map[string]time.Time
	clock timesource.Source
}

func NewReqThrottle(clock timesource.Source) *ReqThrottle {
	if clock == nil {
		clock = timesource.System{}
	}
	return &ReqThrottle{last: make(map[string]time.Time), clock: clock}
}

func reqThrottleKey(sender string, version uint32) string {
	var vb [4]byte
	binary.LittleEndian.PutUint32(vb[:], version)
	return sender + ":" + string(vb[:])
}

// Allow reports whether a request for (sender, version) may be sent now,
// recording the attempt if so.
func (r *ReqThrottle) Allow(sender string, version uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := reqThrottleKey(sender, version)
	now := r.clock.Now()
	if last, ok := r.last[k]; ok && now.Sub(last) < ReqThrottleInterval {
		return false
	}
	r.last[k] = now
	return true
}
