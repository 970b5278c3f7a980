// Package senderkey implements the group sender-key ratchet: a per-(group,
// sender) chain key advanced once per message, with signed distribution to
// members and on-demand rekey requests.
package senderkey

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/mi-e2ee/core/internal/enigma"
	"github.com/mi-e2ee/core/pkg/attest"
)

const (
	ckDeriveInfo = "mi_e2ee_group_sender_ck_v1"
	gmsgADLabel  = "MI_GMSG_AD_V1"
	gskdDomain   = "MI_GSKD_V1"

	ckSize  = 32
	keySize = 32

	RotateAfterSentCount = 10000
	RotateAfterAge       = 7 * 24 * time.Hour
	MaxSkippedKeys       = 4096
	DistResendInterval   = 5000 * time.Millisecond
	ReqThrottleInterval  = 3 * time.Second
)

var (
	ErrInvalidSignature  = errors.New("senderkey: invalid signature")
	ErrStaleDistribution = errors.New("senderkey: stale distribution")
	ErrKeyMissing        = errors.New("senderkey: no key for version")
	ErrIterationTooFar   = errors.New("senderkey: iteration skip exceeds cap")
)

// SenderState is a sender's own per-group chain state, used to encrypt
// outgoing group messages and decide when to rotate.
type SenderState struct {
	GroupID     string
	Username    string
	Version     uint32
	Iteration   uint32
	CK          []byte
	MembersHash []byte
	SentCount   int
	RotatedAt   time.Time
}

// NewSenderState generates a fresh chain key at version 1.
func NewSenderState(groupID, username string, membersHash []byte, now time.Time) (*SenderState, error) {
	ck, err := randomCK()
	if err != nil {
		return nil, err
	}
	return &SenderState{
		GroupID: groupID, Username: username, Version: 1,
		CK: ck, MembersHash: append([]byte{}, membersHash...), RotatedAt: now,
	}, nil
}

// NeedsRotation reports whether any rotation trigger has fired.
func (s *SenderState) NeedsRotation(membersHash []byte, now time.Time) bool {
	if !bytes.Equal(s.MembersHash, membersHash) {
		return true
	}
	if s.SentCount >= RotateAfterSentCount {
		return true
	}
	if now.Sub(s.RotatedAt) >= RotateAfterAge {
		return true
	}
	return false
}

// Rotate generates a fresh chain key, increments version, and resets counters.
func (s *SenderState) Rotate(membersHash []byte, now time.Time) error {
	ck, err := randomCK()
	if err != nil {
		return err
	}
	s.Version++
	s.Iteration = 0
	s.SentCount = 0
	s.CK = ck
	s.MembersHash = append([]byte{}, membersHash...)
	s.RotatedAt = now
	return nil
}

// KdfCk advances ck and returns (newCK, messageKey), per the group
// sender-key chain derivation.
func KdfCk(ck []byte) (newCK, messageKey []byte, err error) {
	derived, err := enigma.Derive(ck, nil, []byte(ckDeriveInfo), ckSize+keySize)
	if err != nil {
		return nil, nil, err
	}
	return derived[:ckSize], derived[ckSize:], nil
}

// Envelope is the decoded wire envelope (MIGC). Signature verification is
// separate, against the sender's published identity key.
type Envelope struct {
	Version    uint8
	KeyVersion uint32
	Iteration  uint32
	GroupID    string
	Sender     string
	Nonce      []byte
	MAC        []byte
	Cipher     []byte
	Signature  []byte
}

// Encrypt advances the sender's chain and produces a signed wire envelope.
func (s *SenderState) Encrypt(att attest.Attester, plaintext []byte) (Envelope, error) {
	newCK, msgKey, err := KdfCk(s.CK)
	if err != nil {
		return Envelope{}, err
	}
	iteration := s.Iteration
	s.CK = newCK
	s.Iteration++
	s.SentCount++

	aead, err := enigma.NewAEADX(msgKey)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, 24)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, err
	}
	ad := associatedData(s.GroupID, s.Username, s.Version, iteration)
	sealed := aead.Seal(nil, nonce, plaintext, ad)
	cipher := sealed[:len(sealed)-aead.Overhead()]
	mac := sealed[len(sealed)-aead.Overhead():]

	env := Envelope{
		Version: 1, KeyVersion: s.Version, Iteration: iteration,
		GroupID: s.GroupID, Sender: s.Username, Nonce: nonce, MAC: mac, Cipher: cipher,
	}
	sig, err := att.Sign(signablePrefix(env), nil)
	if err != nil {
		return Envelope{}, err
	}
	env.Signature = sig
	return env, nil
}

func associatedData(groupID, sender string, version uint32, iteration uint32) []byte {
	ad := []byte(gmsgADLabel)
	ad = append(ad, groupID...)
	ad = append(ad, sender...)
	var vb, ib [4]byte
	binary.LittleEndian.PutUint32(vb[:], version)
	binary.LittleEndian.PutUint32(ib[:], iteration)
	return append(append(ad, vb[:]...), ib[:]...)
}

func signablePrefix(env Envelope) []byte {
	var buf bytes.Buffer
	buf.WriteString("MIGC")
	buf.WriteByte(env.Version)
	var vb, ib [4]byte
	binary.LittleEndian.PutUint32(vb[:], env.KeyVersion)
	binary.LittleEndian.PutUint32(ib[:], env.Iteration)
	buf.Write(vb[:])
	buf.Write(ib[:])
	buf.WriteString(env.GroupID)
	buf.WriteString(env.Sender)
	buf.Write(env.Nonce)
	buf.Write(env.MAC)
	buf.Write(env.Cipher)
	return buf.Bytes()
}

// VerifySignature checks the detached signature against the sender's
// published identity public key.
func VerifySignature(env Envelope, senderPub attest.PublicKey) bool {
	return attest.Verify(senderPub, signablePrefix(env), env.Signature)
}

func randomCK() ([]byte, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return enigma.Derive(seed, nil, []byte("mi_e2ee_group_sender_ck_seed_v1"), ckSize)
}
