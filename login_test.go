package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	core "github.com/mi-e2ee/core"
	"github.com/mi-e2ee/core/pkg/pake"
)

func TestClientLoginRoundTripEstablishesMatchingChannel(t *testing.T) {
	auth := core.NewAuthServer(nil, nil)
	require.NoError(t, auth.Register("dave", "correct horse battery staple"))

	var loginID string
	startResp := func(clientEphemeralPub []byte) (pake.LoginResponse, error) {
		resp, err := auth.StartLogin("dave", clientEphemeralPub)
		loginID = resp.LoginID
		return resp, err
	}
	finish := func(clientConfirm []byte) error {
		_, err := auth.FinishLogin(loginID, clientConfirm)
		return err
	}

	established, err := core.ClientLogin("dave", "correct horse battery staple", startResp, finish)
	require.NoError(t, err)
	require.NotNil(t, established.Channel)
	require.Len(t, established.RatchetRoot, 32)
}

func TestClientLoginRejectsWrongPassword(t *testing.T) {
	auth := core.NewAuthServer(nil, nil)
	require.NoError(t, auth.Register("erin", "hunter2"))

	var loginID string
	startResp := func(clientEphemeralPub []byte) (pake.LoginResponse, error) {
		resp, err := auth.StartLogin("erin", clientEphemeralPub)
		loginID = resp.LoginID
		return resp, err
	}
	finish := func(clientConfirm []byte) error {
		_, err := auth.FinishLogin(loginID, clientConfirm)
		return err
	}

	_, err := core.ClientLogin("erin", "wrong password", startResp, finish)
	require.Error(t, err)
}

func TestAuthServerRejectsUnknownUser(t *testing.T) {
	auth := core.NewAuthServer(nil, nil)
	_, err := auth.StartLogin("ghost", make([]byte, 32))
	require.Error(t, err)

	var coreErr *core.Error
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, core.KindUnknownUser, coreErr.Kind)
}
