package devicesync

import (
	"crypto/rand"
	"encoding/base32"
	"sync"
	"time"

	"github.com/mi-e2ee/core/pkg/timesource"
)

// PairingCode is a 16-byte code the primary device displays (base32
// encoded) for the linked device to present to the server.
type PairingCode [16]byte

func NewPairingCode() (PairingCode, error) {
	var code PairingCode
	if _, err := rand.Read(code[:]); err != nil {
		return PairingCode{}, err
	}
	return code, nil
}

func (c PairingCode) String() string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(c[:])
}

// PairingRequest is what the server forwards to the primary once a linked
// device presents a pairing code: the linked device's identity keys and a
// request id the primary approves against.
type PairingRequest struct {
	RequestID        string
	Code             PairingCode
	LinkedIdentityDH []byte
	LinkedIdentitySig []byte
	CreatedAt        time.Time
}

type pendingPairing struct {
	req PairingRequest
}

// PairingTracker manages outstanding pairing codes on the primary device:
// TTL-bound expiry and a per-primary attempt throttle, the same TTL-bucket
// shape as the server's login-attempt throttle.
type PairingTracker struct {
	mu       sync.Mutex
	pending  map[string]pendingPairing // keyed by code string
	attempts []time.Time
	clock    timesource.Source
}

func NewPairingTracker(clock timesource.Source) *PairingTracker {
	if clock == nil {
		clock = timesource.System{}
	}
	return &PairingTracker{pending: make(map[string]pendingPairing), clock: clock}
}

// Start registers a freshly generated pairing code as pending, subject to
// the three-attempts-per-ten-minutes-per-primary limit.
func (t *PairingTracker) Start(code PairingCode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.pruneAttemptsLocked(now)
	if len(t.attempts) >= PairingAttemptLimit {
		return ErrPairingThrottled
	}
	t.attempts = append(t.attempts, now)
	t.pending[code.String()] = pendingPairing{req: PairingRequest{Code: code, CreatedAt: now}}
	return nil
}

func (t *PairingTracker) pruneAttemptsLocked(now time.Time) {
	var kept []time.Time
	for _, at := range t.attempts {
		if now.Sub(at) < PairingAttemptWindow {
			kept = append(kept, at)
		}
	}
	t.attempts = kept
}

// Observe records an incoming linked-device request against a pending
// code, returning the full request for the primary to approve or reject
// after out-of-band fingerprint verification.
func (t *PairingTracker) Observe(code PairingCode, requestID string, linkedIdentityDH, linkedIdentitySig []byte) (PairingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := code.String()
	pending, ok := t.pending[key]
	if !ok {
		return PairingRequest{}, ErrPairingExpired
	}
	now := t.clock.Now()
	if now.Sub(pending.req.CreatedAt) > PairingTTL {
		delete(t.pending, key)
		return PairingRequest{}, ErrPairingExpired
	}
	pending.req.RequestID = requestID
	pending.req.LinkedIdentityDH = linkedIdentityDH
	pending.req.LinkedIdentitySig = linkedIdentitySig
	t.pending[key] = pending
	return pending.req, nil
}

// Approve consumes a pending pairing code once the primary has confirmed
// the linked device's fingerprint out-of-band.
func (t *PairingTracker) Approve(code PairingCode) (PairingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := code.String()
	pending, ok := t.pending[key]
	if !ok {
		return PairingRequest{}, ErrPairingExpired
	}
	delete(t.pending, key)
	if t.clock.Now().Sub(pending.req.CreatedAt) > PairingTTL {
		return PairingRequest{}, ErrPairingExpired
	}
	return pending.req, nil
}

// CleanupExpired drops pending codes past PairingTTL.
func (t *PairingTracker) CleanupExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	for k, p := range t.pending {
		if now.Sub(p.req.CreatedAt) > PairingTTL {
			delete(t.pending, k)
		}
	}
}
