package pake

import (
	"crypto/subtle"
	"fmt"

	"github.com/mi-e2ee/core/pkg/exchange"
)

// Attempt is client-side state for one in-flight login, held only in
// memory for the duration of the round trip.
type Attempt struct {
	username  string
	verifier  []byte
	ephemeral *exchange.ECDH
}

// StartLogin derives the password verifier and generates an ephemeral
// keypair for the credential_request.
func StartLogin(username, password string) (*Attempt, []byte, error) {
	verifier, err := DeriveVerifier(username, password)
	if err != nil {
		return nil, nil, err
	}
	ephemeral, err := exchange.NewECDH()
	if err != nil {
		return nil, nil, err
	}
	return &Attempt{username: username, verifier: verifier, ephemeral: ephemeral}, ephemeral.MarshalPublicKey(), nil
}

// FinishLogin consumes the server's credential_response: it verifies the
// server's confirm tag (authenticating the server knows the registered
// verifier) and returns the client's own confirm tag plus the session
// subkeys, which equal the server's iff the password was correct.
func (a *Attempt) FinishLogin(resp LoginResponse) (clientConfirm []byte, subkeys Subkeys, err error) {
	dh, err := a.ephemeral.Exchange(resp.EphemeralPub)
	if err != nil {
		return nil, Subkeys{}, fmt.Errorf("pake: ephemeral exchange: %w", err)
	}

	sessionSecret, err := deriveSessionSecret(dh, a.verifier)
	if err != nil {
		return nil, Subkeys{}, err
	}

	expected := confirmTag(sessionSecret, "server")
	if subtle.ConstantTimeCompare(expected, resp.ServerConfirm) != 1 {
		return nil, Subkeys{}, ErrAuthFailed
	}

	subkeys, err = deriveSubkeys(sessionSecret)
	if err != nil {
		return nil, Subkeys{}, err
	}
	return confirmTag(sessionSecret, "client"), subkeys, nil
}
