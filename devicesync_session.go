package core

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/devicesync"
	"github.com/mi-e2ee/core/pkg/timesource"
)

// DeviceSyncSession is one device's end of a user's multi-device sync plane:
// the forward-ratcheted event chain shared with every linked device, plus
// the pairing tracker a primary device uses to approve new linked devices.
type DeviceSyncSession struct {
	mu     sync.Mutex
	chain  *devicesync.Chain
	clock  timesource.Source
	pairer *devicesync.PairingTracker
}

// NewDeviceSyncSession wraps a freshly distributed device_sync_key.
func NewDeviceSyncSession(key []byte, clock timesource.Source) *DeviceSyncSession {
	if clock == nil {
		clock = timesource.System{}
	}
	return &DeviceSyncSession{
		chain:  devicesync.NewChain(key, clock.Now()),
		clock:  clock,
		pairer: devicesync.NewPairingTracker(clock),
	}
}

// PushEvent seals a local event for delivery to the rest of the account's
// devices, rotating the chain first if it is due. After a rotation the event
// is sealed under the new key, which is returned as the second result (nil
// when no rotation happened).
func (d *DeviceSyncSession) PushEvent(kind devicesync.EventKind, payload []byte) (devicesync.Envelope, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var rotated []byte
	now := d.clock.Now()
	if d.chain.NeedsRotation(now, devicesync.DefaultRotateMsgLimit, devicesync.DefaultRotateInterval) {
		newKey, err := d.chain.Rotate(now)
		if err != nil {
			return devicesync.Envelope{}, nil, fmt.Errorf("rotate sync chain: %w", err)
		}
		rotated = newKey
	}
	env, err := d.chain.Seal(kind, payload)
	if err != nil {
		return devicesync.Envelope{}, nil, newError(KindInvalidInput, "seal sync event", err)
	}
	return env, rotated, nil
}

// PullEvent opens an event pushed by another device.
func (d *DeviceSyncSession) PullEvent(env devicesync.Envelope) (devicesync.EventKind, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kind, payload, err := d.chain.Open(env, devicesync.DefaultMaxSkip)
	if err != nil {
		if err == devicesync.ErrReplayRejected {
			return 0, nil, newError(KindReplayRejected, "sync event replayed", err)
		}
		return 0, nil, newError(KindTagMismatch, "sync event auth failed", err)
	}
	return kind, payload, nil
}

// AdoptRotatedKey installs a new device_sync_key received as an
// EventRotateKey payload from the device that initiated the rotation.
func (d *DeviceSyncSession) AdoptRotatedKey(newKey []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain = devicesync.NewChain(newKey, d.clock.Now())
}

// StartPairing generates a fresh pairing code for display on this (primary)
// device, to be typed into the linked device out-of-band.
func (d *DeviceSyncSession) StartPairing() (devicesync.PairingCode, error) {
	code, err := devicesync.NewPairingCode()
	if err != nil {
		return devicesync.PairingCode{}, err
	}
	if err := d.pairer.Start(code); err != nil {
		return devicesync.PairingCode{}, newError(KindRateLimited, "pairing throttled", err)
	}
	return code, nil
}

// ObservePairingRequest records a linked device presenting a pairing code to
// the server, to be surfaced to the primary for out-of-band approval.
func (d *DeviceSyncSession) ObservePairingRequest(code devicesync.PairingCode, requestID string, linkedIdentityDH, linkedIdentitySig []byte) (devicesync.PairingRequest, error) {
	req, err := d.pairer.Observe(code, requestID, linkedIdentityDH, linkedIdentitySig)
	if err != nil {
		return devicesync.PairingRequest{}, newError(KindInvalidInput, "pairing request", err)
	}
	return req, nil
}

const pairingApprovalDomain = "MI_PAIR_APPROVE_V1"

// ApprovePairing finalizes a pairing after the primary has confirmed the
// linked device's fingerprint out-of-band: it mints the device_sync_key the
// linked device will start its chain from, and signs the binding between
// that key and the linked device's identity so the server cannot graft its
// own device onto the account.
func (d *DeviceSyncSession) ApprovePairing(code devicesync.PairingCode, primaryAtt attest.Attester) (devicesync.PairingRequest, []byte, []byte, error) {
	req, err := d.pairer.Approve(code)
	if err != nil {
		return devicesync.PairingRequest{}, nil, nil, newError(KindInvalidInput, "pairing approval", err)
	}
	syncKey := make([]byte, devicesync.SyncKeySize)
	if _, err := rand.Read(syncKey); err != nil {
		return devicesync.PairingRequest{}, nil, nil, err
	}
	signable := append([]byte(pairingApprovalDomain), req.LinkedIdentityDH...)
	signable = append(signable, syncKey...)
	sig, err := primaryAtt.Sign(signable, nil)
	if err != nil {
		return devicesync.PairingRequest{}, nil, nil, fmt.Errorf("sign pairing approval: %w", err)
	}
	return req, syncKey, sig, nil
}
