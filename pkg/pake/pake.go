// Package pake implements an OPAQUE-shaped asymmetric password-authenticated
// key exchange: a password-derived verifier is registered with the server
// (the password itself never crosses the wire), and login is a mutually
// authenticated ephemeral X25519 exchange confirmed by that verifier.
package pake

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mi-e2ee/core/internal/enigma"
	"github.com/mi-e2ee/core/pkg/exchange"
	"github.com/mi-e2ee/core/pkg/timesource"
)

const (
	pendingTTL = 90 * time.Second

	failureWindow    = 60 * time.Second
	failureThreshold = 5
	backoffBase      = 30 * time.Second
	backoffCap       = 900 * time.Second

	derivedSubkeySize = 32
	derivedInfo       = "mi_e2ee_pake_derive_v1"
	rwdInfo           = "mi_e2ee_pake_rwd_v1"
	verifierInfo      = "mi_e2ee_pake_verifier_v1"
	sessionInfo       = "mi_e2ee_pake_session_v1"
)

var derivedSalt [32]byte // constant zero salt, per spec.md 4.D

var (
	ErrUnknownLogin  = errors.New("pake: unknown login")
	ErrAuthFailed    = errors.New("pake: authentication failed")
	ErrRateLimited   = errors.New("pake: rate limited")
	ErrUnknownUser   = errors.New("pake: unknown user")
	ErrAlreadyExists = errors.New("pake: user already registered")
)

// Subkeys are the four keys derived from a completed PAKE session secret.
type Subkeys struct {
	RootKey     []byte
	HeaderKey   []byte
	KCPKey      []byte
	RatchetRoot []byte
}

// Record is the server-side stored registration: a verifier derived from
// the client's password, never reversible to the password itself.
type Record struct {
	Username string
	Verifier []byte
}

// pendingLogin is server-side state for a login_id awaiting finalization.
type pendingLogin struct {
	username      string
	sessionSecret []byte
	createdAt     time.Time
	consumed      bool
}

// failureState tracks per-username authentication failures for the backoff
// throttle, grounded on the relay's TTL-bucket rate-limit pattern.
type failureState struct {
	count       int
	windowFrom  time.Time
	bannedUntil time.Time
}

// Server holds the process-wide registered users and per-login/per-user
// throttle state. It must be constructed once at process start and threaded
// through explicitly — no lazy singleton.
type Server struct {
	mu sync.Mutex

	users    map[string]*Record
	pending  map[string]*pendingLogin
	failures map[string]*failureState

	clock timesource.Source
}

// NewServer constructs a PAKE server.
func NewServer(clock timesource.Source) *Server {
	if clock == nil {
		clock = timesource.System{}
	}
	return &Server{
		users:    make(map[string]*Record),
		pending:  make(map[string]*pendingLogin),
		failures: make(map[string]*failureState),
		clock:    clock,
	}
}

// Register stores a client-produced verifier under username.
func (s *Server) Register(username string, verifier []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return ErrAlreadyExists
	}
	s.users[username] = &Record{Username: username, Verifier: verifier}
	return nil
}

// LoginResponse is what the server returns for a credential_request.
type LoginResponse struct {
	LoginID       string
	EphemeralPub  []byte
	ServerConfirm []byte
}

// StartLogin begins a login against a client's ephemeral public key,
// returning a login_id bound to pending state and a confirmation value the
// client can use to authenticate the server.
func (s *Server) StartLogin(username string, clientEphemeralPub []byte) (LoginResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkThrottleLocked(username); err != nil {
		return LoginResponse{}, err
	}

	record, ok := s.users[username]
	if !ok {
		return LoginResponse{}, ErrUnknownUser
	}

	serverEphemeral, err := exchange.NewECDH()
	if err != nil {
		return LoginResponse{}, err
	}
	dh, err := serverEphemeral.Exchange(clientEphemeralPub)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("pake: ephemeral exchange: %w", err)
	}

	sessionSecret, err := deriveSessionSecret(dh, record.Verifier)
	if err != nil {
		return LoginResponse{}, err
	}

	loginID := enigma.Text(26)
	s.pending[loginID] = &pendingLogin{
		username:      username,
		sessionSecret: sessionSecret,
		createdAt:     s.clock.Now(),
	}

	return LoginResponse{
		LoginID:       loginID,
		EphemeralPub:  serverEphemeral.MarshalPublicKey(),
		ServerConfirm: confirmTag(sessionSecret, "server"),
	}, nil
}

// FinishLogin verifies the client's finalization confirm tag and, on
// success, derives the four session subkeys.
func (s *Server) FinishLogin(loginID string, clientConfirm []byte) (Subkeys, error) {
	s.mu.Lock()
	pending, ok := s.pending[loginID]
	if !ok {
		s.mu.Unlock()
		return Subkeys{}, ErrUnknownLogin
	}
	if pending.consumed || s.clock.Now().Sub(pending.createdAt) > pendingTTL {
		delete(s.pending, loginID)
		s.mu.Unlock()
		return Subkeys{}, ErrUnknownLogin
	}
	pending.consumed = true
	delete(s.pending, loginID)

	if err := s.checkThrottleLocked(pending.username); err != nil {
		s.mu.Unlock()
		return Subkeys{}, err
	}

	expected := confirmTag(pending.sessionSecret, "client")
	if subtle.ConstantTimeCompare(expected, clientConfirm) != 1 {
		s.recordFailureLocked(pending.username)
		s.mu.Unlock()
		return Subkeys{}, ErrAuthFailed
	}
	s.recordSuccessLocked(pending.username)
	s.mu.Unlock()

	return deriveSubkeys(pending.sessionSecret)
}

func deriveSessionSecret(dh, verifier []byte) ([]byte, error) {
	material := append(append([]byte{}, dh...), verifier...)
	return enigma.Derive(material, derivedSalt[:], []byte(sessionInfo), 32)
}

func confirmTag(sessionSecret []byte, role string) []byte {
	mac := hmac.New(sha256.New, sessionSecret)
	mac.Write([]byte(role))
	return mac.Sum(nil)
}

func deriveSubkeys(secret []byte) (Subkeys, error) {
	derived, err := enigma.Derive(secret, derivedSalt[:], []byte(derivedInfo), derivedSubkeySize*4)
	if err != nil {
		return Subkeys{}, fmt.Errorf("pake: derive subkeys: %w", err)
	}
	return Subkeys{
		RootKey:     derived[0*derivedSubkeySize : 1*derivedSubkeySize],
		HeaderKey:   derived[1*derivedSubkeySize : 2*derivedSubkeySize],
		KCPKey:      derived[2*derivedSubkeySize : 3*derivedSubkeySize],
		RatchetRoot: derived[3*derivedSubkeySize : 4*derivedSubkeySize],
	}, nil
}

func (s *Server) checkThrottleLocked(username string) error {
	f, ok := s.failures[username]
	if !ok {
		return nil
	}
	if s.clock.Now().Before(f.bannedUntil) {
		return ErrRateLimited
	}
	return nil
}

func (s *Server) recordFailureLocked(username string) {
	now := s.clock.Now()
	f, ok := s.failures[username]
	if !ok || now.Sub(f.windowFrom) > failureWindow {
		f = &failureState{windowFrom: now}
		s.failures[username] = f
	}
	f.count++
	if f.count >= failureThreshold {
		shift := f.count - failureThreshold
		backoff := backoffBase * time.Duration(uint(1)<<uint(shift))
		if backoff > backoffCap {
			backoff = backoffCap
		}
		f.bannedUntil = now.Add(backoff)
	}
}

func (s *Server) recordSuccessLocked(username string) {
	delete(s.failures, username)
}

// CleanupExpiredPending removes pending logins past their TTL, returning the
// count removed.
func (s *Server) CleanupExpiredPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.clock.Now()
	for id, p := range s.pending {
		if now.Sub(p.createdAt) > pendingTTL {
			delete(s.pending, id)
			n++
		}
	}
	return n
}

// DeriveVerifier computes the password-derived verifier a client registers
// with the server. The password never leaves the client; only this
// irreversible derivation does.
func DeriveVerifier(username, password string) ([]byte, error) {
	rwd, err := enigma.Derive([]byte(password), []byte(username), []byte(rwdInfo), 32)
	if err != nil {
		return nil, err
	}
	return enigma.Derive(rwd, derivedSalt[:], []byte(verifierInfo), 32)
}
