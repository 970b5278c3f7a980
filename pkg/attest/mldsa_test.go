package attest

import (
	"crypto/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMLDSA(t *testing.T) {
	a := require.New(t)
	msg := []byte(rand.Text())

	m, err := newMLDSA()
	a.NoError(err)
	a.NotNil(m)
	pub := m.PublicKey()
	a.NotNil(pub)
	sig, err := m.Sign(msg, nil)
	a.NoError(err)
	a.NotNil(sig)

	t.Run("valid signature", func(t *testing.T) {
		a.True(Verify(pub, msg, sig))
	})
	t.Run("invalid signature", func(t *testing.T) {
		sig := slices.Clone(sig)
		sig[0] ^= 0xDD

		a.False(Verify(pub, msg, sig))
	})
	t.Run("invalid hash", func(t *testing.T) {
		msg := append(slices.Clone(msg), '!')

		a.False(Verify(pub, msg, sig))
	})
	t.Run("invalid public key", func(t *testing.T) {
		another, err := newMLDSA()
		a.NoError(err)
		a.False(Verify(another.PublicKey(), msg, sig))
	})
}
