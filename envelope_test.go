package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	core "github.com/mi-e2ee/core"
)

func TestChatEnvelopeRoundTrip(t *testing.T) {
	env, err := core.NewChatEnvelope(core.ChatText, []byte("hello"))
	require.NoError(t, err)

	wire := env.Encode()
	decoded, err := core.DecodeChatEnvelope(wire)
	require.NoError(t, err)

	require.Equal(t, env.Type, decoded.Type)
	require.Equal(t, env.MessageID, decoded.MessageID)
	require.Equal(t, env.Body, decoded.Body)
}

func TestDecodeChatEnvelopeRejectsShortInput(t *testing.T) {
	_, err := core.DecodeChatEnvelope([]byte("short"))
	require.ErrorIs(t, err, core.ErrBadChatEnvelope)
}

func TestDecodeChatEnvelopeRejectsBadMagic(t *testing.T) {
	env, err := core.NewChatEnvelope(core.ChatAck, nil)
	require.NoError(t, err)
	wire := env.Encode()
	wire[0] ^= 0xff

	_, err = core.DecodeChatEnvelope(wire)
	require.ErrorIs(t, err, core.ErrBadChatEnvelope)
}

func TestDecodeChatEnvelopeRejectsFutureVersion(t *testing.T) {
	env, err := core.NewChatEnvelope(core.ChatTyping, []byte("x"))
	require.NoError(t, err)
	wire := env.Encode()
	wire[4] = 0xff

	_, err = core.DecodeChatEnvelope(wire)
	require.ErrorIs(t, err, core.ErrBadChatEnvelope)
}
