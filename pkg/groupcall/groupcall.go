// Package groupcall distributes the symmetric key used to encrypt a group
// call's media, with the call initiator acting as the sole key source and
// rotation on membership change.
package groupcall

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/timesource"
)

const (
	gckdDomain = "MI_GCKD_V1"
	CallKeySize = 32

	ReqThrottleInterval = 3 * time.Second
)

var (
	ErrInvalidSignature = errors.New("groupcall: invalid signature")
	ErrKeyMissing       = errors.New("groupcall: no key for key_id")
)

// Dist is a signed call-key distribution, carried over the peer ratchet to
// each group member.
type Dist struct {
	GroupID   string
	CallID    string
	KeyID     uint32
	CallKey   []byte
	Signature []byte
}

func distSignable(groupID, callID string, keyID uint32, callKey []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(gckdDomain)
	buf.WriteString(groupID)
	buf.WriteString(callID)
	var kb [4]byte
	binary.LittleEndian.PutUint32(kb[:], keyID)
	buf.Write(kb[:])
	buf.Write(callKey)
	return buf.Bytes()
}

// NewDist generates a fresh call_key at keyID and signs the distribution.
func NewDist(att attest.Attester, groupID, callID string, keyID uint32) (Dist, error) {
	key := make([]byte, CallKeySize)
	if _, err := rand.Read(key); err != nil {
		return Dist{}, err
	}
	sig, err := att.Sign(distSignable(groupID, callID, keyID, key), nil)
	if err != nil {
		return Dist{}, err
	}
	return Dist{GroupID: groupID, CallID: callID, KeyID: keyID, CallKey: key, Signature: sig}, nil
}

// Verify checks a distribution's signature against the initiator's
// identity public key.
func (d Dist) Verify(initiatorPub attest.PublicKey) bool {
	return attest.Verify(initiatorPub, distSignable(d.GroupID, d.CallID, d.KeyID, d.CallKey), d.Signature)
}

// Rotate produces the next key_id's distribution, triggered by a
// membership change during an ongoing call.
func Rotate(att attest.Attester, groupID, callID string, previousKeyID uint32) (Dist, error) {
	return NewDist(att, groupID, callID, previousKeyID+1)
}

type callKey struct {
	groupID, callID string
	keyID           uint32
}

// Cache holds call keys for a single device across all calls it is
// participating in, keyed by (group, call, key_id).
type Cache struct {
	mu   sync.RWMutex
	keys map[callKey][]byte
}

func NewCache() *Cache {
	return &Cache{keys: make(map[callKey][]byte)}
}

// Store installs a verified distribution's key into the cache.
func (c *Cache) Store(d Dist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[callKey{d.GroupID, d.CallID, d.KeyID}] = append([]byte{}, d.CallKey...)
}

// Lookup returns the call key for (group, call, key_id), if cached.
func (c *Cache) Lookup(groupID, callID string, keyID uint32) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[callKey{groupID, callID, keyID}]
	return key, ok
}

// Req is an on-demand request for a missing call key at a given key_id.
type Req struct {
	GroupID string
	CallID  string
	KeyID   uint32
}

// ReqThrottle rate-limits outgoing GroupCallKeyReq, reusing the same
// per-(scope) interval shape as the sender-key rekey throttle.
type ReqThrottle struct {
	mu    sync.Mutex
	last  map[callKey]time.Time
	clock timesource.Source
}

func NewReqThrottle(clock timesource.Source) *ReqThrottle {
	if clock == nil {
		clock = timesource.System{}
	}
	return &ReqThrottle{last: make(map[callKey]time.Time), clock: clock}
}

// Allow reports whether a request for (group, call, key_id) may be sent
// now, recording the attempt if so.
func (t *ReqThrottle) Allow(groupID, callID string, keyID uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := callKey{groupID, callID, keyID}
	now := t.clock.Now()
	if last, ok := t.last[k]; ok && now.Sub(last) < ReqThrottleInterval {
		return false
	}
	t.last[k] = now
	return true
}
