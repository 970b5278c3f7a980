package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/mi-e2ee/core/pkg/channel"
	"github.com/mi-e2ee/core/pkg/pake"
	"github.com/mi-e2ee/core/pkg/store"
	"github.com/mi-e2ee/core/pkg/timesource"
)

// AuthServer is the login-plane composition root: it registers users
// against the persistent store and turns a completed PAKE login into a
// secure channel plus the ratchet-root key material for the peer session
// that follows it.
type AuthServer struct {
	mu    sync.Mutex
	pake  *pake.Server
	store *store.Store
}

func NewAuthServer(st *store.Store, clock timesource.Source) *AuthServer {
	return &AuthServer{pake: pake.NewServer(clock), store: st}
}

// Register derives a verifier from username/password and persists it,
// then registers it with the in-memory PAKE server for login.
func (a *AuthServer) Register(username, password string) error {
	verifier, err := pake.DeriveVerifier(username, password)
	if err != nil {
		return fmt.Errorf("derive verifier: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.pake.Register(username, verifier); err != nil {
		return newError(KindAuthFailed, "register", err)
	}
	if a.store != nil {
		if err := a.store.PutSealed([]byte(store.PAKEUsersBucket), []byte(username), verifier); err != nil {
			return fmt.Errorf("persist verifier: %w", err)
		}
	}
	return nil
}

// LoadRegistrations re-registers every persisted verifier with the PAKE
// server, used on process restart since pake.Server itself holds state only
// in memory.
func (a *AuthServer) LoadRegistrations() error {
	if a.store == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for username, verifier := range a.store.IterateSealed([]byte(store.PAKEUsersBucket)) {
		if err := a.pake.Register(string(username), verifier); err != nil {
			return fmt.Errorf("reload verifier for %s: %w", username, err)
		}
	}
	return nil
}

// StartLogin begins a server-side login for username against
// clientEphemeralPub.
func (a *AuthServer) StartLogin(username string, clientEphemeralPub []byte) (pake.LoginResponse, error) {
	resp, err := a.pake.StartLogin(username, clientEphemeralPub)
	if err != nil {
		return pake.LoginResponse{}, classifyPakeErr(err)
	}
	return resp, nil
}

// EstablishedSession is a completed login: the channel used for the secure
// transport plane and the ratchet-root key material to bootstrap the
// following peer session's first double-ratchet step.
type EstablishedSession struct {
	Channel     *channel.Channel
	RatchetRoot []byte
	CreatedAt   time.Time
}

// FinishLogin completes a server-side login, deriving the server-role
// channel and handing back the ratchet-root seed.
func (a *AuthServer) FinishLogin(loginID string, clientConfirm []byte) (EstablishedSession, error) {
	subkeys, err := a.pake.FinishLogin(loginID, clientConfirm)
	if err != nil {
		return EstablishedSession{}, classifyPakeErr(err)
	}
	ch, err := channel.New(subkeys.RootKey, channel.RoleServer)
	if err != nil {
		return EstablishedSession{}, fmt.Errorf("new channel: %w", err)
	}
	return EstablishedSession{Channel: ch, RatchetRoot: subkeys.RatchetRoot, CreatedAt: time.Now()}, nil
}

func classifyPakeErr(err error) error {
	switch {
	case err == pake.ErrAlreadyExists:
		return newError(KindInvalidInput, "pake", err)
	case err == pake.ErrUnknownUser:
		return newError(KindUnknownUser, "pake", err)
	case err == pake.ErrUnknownLogin:
		return newError(KindUnknownLogin, "pake", err)
	case err == pake.ErrRateLimited:
		return newError(KindRateLimited, "pake", err)
	case err == pake.ErrAuthFailed:
		return newError(KindAuthFailed, "pake", err)
	default:
		return newError(KindAuthFailed, "pake", err)
	}
}

// ClientLogin runs the client side of a login against a started AuthServer
// response, producing the client-role channel.
func ClientLogin(username, password string, startResp func(clientEphemeralPub []byte) (pake.LoginResponse, error), finish func(clientConfirm []byte) error) (EstablishedSession, error) {
	attempt, ephemeralPub, err := pake.StartLogin(username, password)
	if err != nil {
		return EstablishedSession{}, fmt.Errorf("start login: %w", err)
	}
	resp, err := startResp(ephemeralPub)
	if err != nil {
		return EstablishedSession{}, err
	}
	clientConfirm, subkeys, err := attempt.FinishLogin(resp)
	if err != nil {
		return EstablishedSession{}, newError(KindAuthFailed, "finish login", err)
	}
	if err := finish(clientConfirm); err != nil {
		return EstablishedSession{}, err
	}
	ch, err := channel.New(subkeys.RootKey, channel.RoleClient)
	if err != nil {
		return EstablishedSession{}, fmt.Errorf("new channel: %w", err)
	}
	return EstablishedSession{Channel: ch, RatchetRoot: subkeys.RatchetRoot, CreatedAt: time.Now()}, nil
}
