package core

import (
	"fmt"
	"sync"

	"github.com/mi-e2ee/core/pkg/attest"
	"github.com/mi-e2ee/core/pkg/exchange"
	"github.com/mi-e2ee/core/pkg/fingerprint"
	"github.com/mi-e2ee/core/pkg/ratchet"
)

// Identity binds a username to its signing keypair (identity_sig, the root
// of trust published to the key-transparency log) and identity DH keypair
// (identity_dh, used in X3DH). DeviceID distinguishes multiple devices
// sharing one username under the device-sync plane.
type Identity struct {
	Username string
	DeviceID string
	Sig      attest.Attester
	DH       *exchange.ECDH
}

// NewIdentity generates a fresh signing and DH keypair for username/device.
func NewIdentity(username, deviceID string, alg attest.Algorithm) (*Identity, error) {
	sig, err := attest.NewAttester(alg)
	if err != nil {
		return nil, fmt.Errorf("new attester: %w", err)
	}
	dh, err := exchange.NewECDH()
	if err != nil {
		return nil, fmt.Errorf("new identity dh: %w", err)
	}
	return &Identity{Username: username, DeviceID: deviceID, Sig: sig, DH: dh}, nil
}

// Fingerprint renders this identity's out-of-band verification digest.
func (id *Identity) Fingerprint() string {
	return fingerprint.Of(id.Username, id.Sig.PublicKey().Marshal(), id.DH.MarshalPublicKey())
}

const preKeyBundleDomain = "MI_PKB_V1"

// PreKeyBundle is the signed, publishable key material a peer needs to run
// the initiator side of X3DH against this identity. SignedPrekey and
// KEMPublicKey are rotated periodically; OneTimePrekey is consumed once.
type PreKeyBundle struct {
	Username      string
	IdentityDH    []byte
	SignedPrekey  []byte
	OneTimePrekey []byte
	KEMPublicKey  []byte
	Signature     []byte
}

func preKeyBundleSignable(username string, identityDH, signedPrekey, kemPub []byte) []byte {
	buf := []byte(preKeyBundleDomain)
	buf = append(buf, []byte(username)...)
	buf = append(buf, identityDH...)
	buf = append(buf, signedPrekey...)
	buf = append(buf, kemPub...)
	return buf
}

// SignBundle produces a signed PreKeyBundle for publication. oneTime is
// optional and consumed by the server on first fetch.
func (id *Identity) SignBundle(signedPrekey *exchange.ECDH, kem *exchange.MLKEM, oneTime *exchange.ECDH) (PreKeyBundle, error) {
	var oneTimePub, kemPub []byte
	if oneTime != nil {
		oneTimePub = oneTime.MarshalPublicKey()
	}
	if kem != nil {
		kemPub = kem.MarshalPublicKey()
	}
	sig, err := id.Sig.Sign(preKeyBundleSignable(id.Username, id.DH.MarshalPublicKey(), signedPrekey.MarshalPublicKey(), kemPub), nil)
	if err != nil {
		return PreKeyBundle{}, fmt.Errorf("sign bundle: %w", err)
	}
	return PreKeyBundle{
		Username:      id.Username,
		IdentityDH:    id.DH.MarshalPublicKey(),
		SignedPrekey:  signedPrekey.MarshalPublicKey(),
		OneTimePrekey: oneTimePub,
		KEMPublicKey:  kemPub,
		Signature:     sig,
	}, nil
}

// Verify checks a bundle's signature against the publisher's identity
// signing public key, fetched and verified out-of-band (via the key
// transparency log).
func (b PreKeyBundle) Verify(signerPub attest.PublicKey) bool {
	return attest.Verify(signerPub, preKeyBundleSignable(b.Username, b.IdentityDH, b.SignedPrekey, b.KEMPublicKey), b.Signature)
}

// ToX3DHBundle strips the signature and username, yielding the material
// pkg/ratchet's InitiatorX3DH expects.
func (b PreKeyBundle) ToX3DHBundle() ratchet.Bundle {
	return ratchet.Bundle{
		IdentityDH:    b.IdentityDH,
		SignedPrekey:  b.SignedPrekey,
		OneTimePrekey: b.OneTimePrekey,
		KEMPublicKey:  b.KEMPublicKey,
	}
}

// BundleRegistry is the server-side half of PreKeyPublish/PreKeyFetch: it
// holds the latest bundle per user and consumes one-time prekeys from a
// pool on fetch.
type BundleRegistry struct {
	mu       sync.Mutex
	latest   map[string]PreKeyBundle
	oneTimes map[string][][]byte
}

func NewBundleRegistry() *BundleRegistry {
	return &BundleRegistry{
		latest:   make(map[string]PreKeyBundle),
		oneTimes: make(map[string][][]byte),
	}
}

// Publish installs username's latest signed bundle and tops up its
// one-time-prekey pool.
func (r *BundleRegistry) Publish(b PreKeyBundle, oneTimePool [][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[b.Username] = b
	r.oneTimes[b.Username] = append(r.oneTimes[b.Username], oneTimePool...)
}

// Fetch returns username's latest bundle with a one-time prekey popped from
// the pool, if any remain. KindPeerBundleMissing is returned when the user
// has never published.
func (r *BundleRegistry) Fetch(username string) (PreKeyBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.latest[username]
	if !ok {
		return PreKeyBundle{}, newError(KindPeerBundleMissing, "no bundle for "+username, nil)
	}
	pool := r.oneTimes[username]
	if len(pool) > 0 {
		b.OneTimePrekey = pool[0]
		r.oneTimes[username] = pool[1:]
	} else {
		b.OneTimePrekey = nil
	}
	return b, nil
}
