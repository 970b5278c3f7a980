package pake_test

import (
	"testing"
	"time"

	"github.com/mi-e2ee/core/pkg/pake"
	"github.com/mi-e2ee/core/pkg/timesource"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, srv *pake.Server, username, password string) {
	t.Helper()
	verifier, err := pake.DeriveVerifier(username, password)
	require.NoError(t, err)
	require.NoError(t, srv.Register(username, verifier))
}

func TestRegisterLoginYieldsMatchingSubkeys(t *testing.T) {
	a := require.New(t)
	srv := pake.NewServer(timesource.System{})
	register(t, srv, "alice", "pw-A")

	attempt, clientPub, err := pake.StartLogin("alice", "pw-A")
	a.NoError(err)

	resp, err := srv.StartLogin("alice", clientPub)
	a.NoError(err)

	clientConfirm, clientSubkeys, err := attempt.FinishLogin(resp)
	a.NoError(err)

	serverSubkeys, err := srv.FinishLogin(resp.LoginID, clientConfirm)
	a.NoError(err)

	a.Equal(clientSubkeys.RootKey, serverSubkeys.RootKey)
	a.Equal(clientSubkeys.HeaderKey, serverSubkeys.HeaderKey)
	a.Equal(clientSubkeys.KCPKey, serverSubkeys.KCPKey)
	a.Equal(clientSubkeys.RatchetRoot, serverSubkeys.RatchetRoot)
	a.Len(serverSubkeys.RootKey, 32)
}

func TestWrongPasswordNeverYieldsSession(t *testing.T) {
	a := require.New(t)
	srv := pake.NewServer(timesource.System{})
	register(t, srv, "alice", "pw-A")

	attempt, clientPub, err := pake.StartLogin("alice", "wrong-password")
	a.NoError(err)

	resp, err := srv.StartLogin("alice", clientPub)
	a.NoError(err)

	_, _, err = attempt.FinishLogin(resp)
	a.ErrorIs(err, pake.ErrAuthFailed)
}

func TestPendingLoginExpires(t *testing.T) {
	a := require.New(t)
	clock := timesource.NewManual(time.Now())
	srv := pake.NewServer(clock)
	register(t, srv, "alice", "pw-A")

	attempt, clientPub, err := pake.StartLogin("alice", "pw-A")
	a.NoError(err)
	resp, err := srv.StartLogin("alice", clientPub)
	a.NoError(err)

	clock.Advance(91 * time.Second)

	clientConfirm, _, err := attempt.FinishLogin(resp)
	a.NoError(err)

	_, err = srv.FinishLogin(resp.LoginID, clientConfirm)
	a.ErrorIs(err, pake.ErrUnknownLogin)
}

func TestThrottleBansAfterFiveFailures(t *testing.T) {
	a := require.New(t)
	clock := timesource.NewManual(time.Now())
	srv := pake.NewServer(clock)
	register(t, srv, "alice", "pw-A")

	for i := 0; i < 5; i++ {
		attempt, clientPub, err := pake.StartLogin("alice", "wrong")
		a.NoError(err)
		resp, err := srv.StartLogin("alice", clientPub)
		a.NoError(err)
		clientConfirm, _, err := attempt.FinishLogin(resp)
		a.NoError(err)
		_, err = srv.FinishLogin(resp.LoginID, clientConfirm)
		a.ErrorIs(err, pake.ErrAuthFailed)
	}

	_, _, err := pake.StartLogin("alice", "pw-A")
	a.NoError(err)
	_, err = srv.StartLogin("alice", []byte("irrelevant-for-throttle-check"))
	a.ErrorIs(err, pake.ErrRateLimited)
}
