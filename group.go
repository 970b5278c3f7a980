package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/groupcall"
	"github.com/mi-e2ee/core/pkg/senderkey"
	"github.com/mi-e2ee/core/pkg/timesource"
)

// MembersHash computes the sender-key rotation trigger for a member set:
// hex(SHA-256(sorted, deduplicated usernames joined by '\n')).
func MembersHash(members []string) []byte {
	sorted := append([]string{}, members...)
	sort.Strings(sorted)
	deduped := sorted[:0]
	for i, m := range sorted {
		if i == 0 || m != sorted[i-1] {
			deduped = append(deduped, m)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(deduped, "\n")))
	return []byte(hex.EncodeToString(sum[:]))
}

// GroupSession is one group's sender-key state on a single device: this
// member's own sending chain, every other member's receiving chain, plus
// the distribution and rekey-request trackers, and the call-key plane for
// any active group call.
type GroupSession struct {
	mu sync.Mutex

	GroupID  string
	Username string
	att      attest.Attester

	sending   *senderkey.SenderState
	receiving map[string]*senderkey.ReceiverState

	dists    *senderkey.DistTracker
	reqs     *senderkey.ReqThrottle
	callReqs *groupcall.ReqThrottle
	calls    *groupcall.Cache
}

// NewGroupSession creates a fresh sender-key chain for username in groupID.
func NewGroupSession(groupID, username string, att attest.Attester, members []string, clock timesource.Source) (*GroupSession, error) {
	sending, err := senderkey.NewSenderState(groupID, username, MembersHash(members), timeNow(clock))
	if err != nil {
		return nil, err
	}
	return &GroupSession{
		GroupID:   groupID,
		Username:  username,
		att:       att,
		sending:   sending,
		receiving: make(map[string]*senderkey.ReceiverState),
		dists:     senderkey.NewDistTracker(clock),
		reqs:      senderkey.NewReqThrottle(clock),
		callReqs:  groupcall.NewReqThrottle(clock),
		calls:     groupcall.NewCache(),
	}, nil
}

func timeNow(clock timesource.Source) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock.Now()
}

// Encrypt produces a signed ciphertext envelope for the group, rotating the
// sending chain first if membership has changed or a rotation trigger has
// fired. membersNow must reflect the group's current member set.
func (g *GroupSession) Encrypt(membersNow []string, plaintext []byte, now time.Time) (senderkey.Envelope, []senderkey.Dist, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var fresh []senderkey.Dist
	hash := MembersHash(membersNow)
	if g.sending.NeedsRotation(hash, now) {
		if err := g.sending.Rotate(hash, now); err != nil {
			return senderkey.Envelope{}, nil, err
		}
		for _, member := range membersNow {
			if member == g.Username {
				continue // a sender never distributes to itself
			}
			dist, err := senderkey.NewDist(g.att, g.GroupID, g.sending.Version, g.sending.Iteration, g.sending.CK)
			if err != nil {
				return senderkey.Envelope{}, nil, err
			}
			g.dists.Track(member, dist)
			fresh = append(fresh, dist)
		}
	}

	env, err := g.sending.Encrypt(g.att, plaintext)
	if err != nil {
		return senderkey.Envelope{}, nil, err
	}
	return env, fresh, nil
}

// AckDistribution marks a member's pending distribution resend as complete.
func (g *GroupSession) AckDistribution(member string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dists.Ack(member)
}

// DueDistributions returns distributions that must be resent now.
func (g *GroupSession) DueDistributions() []senderkey.PendingDist {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dists.DueForResend()
}

// ApplyDistribution installs a verified distribution from a group member,
// creating receiver state on first contact.
func (g *GroupSession) ApplyDistribution(sender string, dist senderkey.Dist, senderPub attest.PublicKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !dist.Verify(senderPub) {
		return newError(KindInvalidSignature, "sender-key distribution", nil)
	}
	r, ok := g.receiving[sender]
	if !ok {
		g.receiving[sender] = senderkey.NewReceiverState(g.GroupID, sender, dist.Version, dist.Iteration, dist.CK)
		return nil
	}
	if !r.AcceptsDistribution(dist.Version, dist.Iteration) {
		return newError(KindInvalidInput, "stale sender-key distribution", senderkey.ErrStaleDistribution)
	}
	r.ApplyDistribution(dist.Version, dist.Iteration, dist.CK)
	return nil
}

// Decrypt decrypts a group ciphertext from sender, requesting a fresh
// distribution (subject to throttling) if no matching key is known.
func (g *GroupSession) Decrypt(env senderkey.Envelope, senderPub attest.PublicKey) ([]byte, *senderkey.Req, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.receiving[env.Sender]
	if !ok || env.KeyVersion != r.Version {
		if g.reqs.Allow(env.Sender, env.KeyVersion) {
			return nil, &senderkey.Req{GroupID: g.GroupID, WantVersion: env.KeyVersion}, newError(KindUnknownSession, "no sender-key for version", senderkey.ErrKeyMissing)
		}
		return nil, nil, newError(KindRateLimited, "sender-key request throttled", nil)
	}

	plaintext, err := r.Decrypt(env, senderPub)
	if err != nil {
		return nil, nil, newError(KindTagMismatch, "group decrypt", err)
	}
	return plaintext, nil, nil
}

// StartCall generates and signs a fresh call key for callID, as the call
// initiator.
func (g *GroupSession) StartCall(callID string) (groupcall.Dist, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, err := groupcall.NewDist(g.att, g.GroupID, callID, 1)
	if err != nil {
		return groupcall.Dist{}, err
	}
	g.calls.Store(d)
	return d, nil
}

// RotateCall issues the next call key after a membership change mid-call.
func (g *GroupSession) RotateCall(callID string, previousKeyID uint32) (groupcall.Dist, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, err := groupcall.Rotate(g.att, g.GroupID, callID, previousKeyID)
	if err != nil {
		return groupcall.Dist{}, err
	}
	g.calls.Store(d)
	return d, nil
}

// ApplyCallDist installs a verified call-key distribution from the
// initiator.
func (g *GroupSession) ApplyCallDist(d groupcall.Dist, initiatorPub attest.PublicKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !d.Verify(initiatorPub) {
		return newError(KindInvalidSignature, "call-key distribution", nil)
	}
	g.calls.Store(d)
	return nil
}

// CallKey looks up a cached call key, requesting it (subject to throttling)
// if missing.
func (g *GroupSession) CallKey(callID string, keyID uint32) ([]byte, *groupcall.Req, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if key, ok := g.calls.Lookup(g.GroupID, callID, keyID); ok {
		return key, nil, nil
	}
	if g.callReqs.Allow(g.GroupID, callID, keyID) {
		return nil, &groupcall.Req{GroupID: g.GroupID, CallID: callID, KeyID: keyID}, newError(KindUnknownSession, "no call key cached", groupcall.ErrKeyMissing)
	}
	return nil, nil, newError(KindRateLimited, "call-key request throttled", nil)
}
