package channel_test

import (
	"crypto/rand"
	"testing"

	"github.com/mi-e2ee/core/pkg/channel"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*channel.Channel, *channel.Channel) {
	t.Helper()
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)

	client, err := channel.New(secret, channel.RoleClient)
	require.NoError(t, err)
	server, err := channel.New(secret, channel.RoleServer)
	require.NoError(t, err)
	return client, server
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a := require.New(t)
	client, server := newPair(t)

	packet, err := client.Encrypt(7, 1, []byte{0x01, 0x02})
	a.NoError(err)

	plaintext, err := server.Decrypt(packet, 1)
	a.NoError(err)
	a.Equal([]byte{0x01, 0x02}, plaintext)
}

func TestWrongFrameTypeFailsTag(t *testing.T) {
	a := require.New(t)
	client, server := newPair(t)

	packet, err := client.Encrypt(1, 1, []byte("hi"))
	a.NoError(err)

	_, err = server.Decrypt(packet, 2)
	a.ErrorIs(err, channel.ErrTagMismatch)
}

func TestReplayRejectedOnSecondAttempt(t *testing.T) {
	a := require.New(t)
	client, server := newPair(t)

	packet, err := client.Encrypt(7, 1, []byte{0x01, 0x02})
	a.NoError(err)

	_, err = server.Decrypt(packet, 1)
	a.NoError(err)

	_, err = server.Decrypt(packet, 1)
	a.ErrorIs(err, channel.ErrReplay)
}

func TestSlidingWindowAcceptsOutOfOrder(t *testing.T) {
	a := require.New(t)
	client, server := newPair(t)

	order := []uint64{5, 3, 4, 1, 2}
	for _, seq := range order {
		packet, err := client.Encrypt(seq, 1, []byte("m"))
		a.NoError(err)
		_, err = server.Decrypt(packet, 1)
		a.NoErrorf(err, "seq %d", seq)
	}
}

func TestSeqBeyondWindowRejected(t *testing.T) {
	a := require.New(t)
	client, server := newPair(t)

	packet, err := client.Encrypt(1000, 1, []byte("m"))
	a.NoError(err)
	_, err = server.Decrypt(packet, 1)
	a.NoError(err)

	old, err := client.Encrypt(900, 1, []byte("m"))
	a.NoError(err)
	_, err = server.Decrypt(old, 1)
	a.ErrorIs(err, channel.ErrReplay)
}
