package core

import (
	"crypto/rand"
	"errors"
)

var chatMagic = [4]byte{'M', 'I', 'C', 'H'}

const (
	chatEnvelopeVersion = 1
	chatHeaderSize      = 4 + 1 + 1 + 16 // magic + version + chat_type + message_id
)

// ChatType enumerates the payload kinds carried inside a chat envelope,
// after ratchet decryption and gossip unwrap.
type ChatType uint8

const (
	ChatText ChatType = 1 + iota
	ChatAck
	ChatFile
	ChatGroupText
	ChatGroupInvite
	ChatGroupFile
	ChatGroupSenderKeyDist
	ChatGroupSenderKeyReq
	ChatRich
	ChatReadReceipt
	ChatTyping
	ChatSticker
	ChatPresence
	ChatGroupCallKeyDist
	ChatGroupCallKeyReq
)

var ErrBadChatEnvelope = errors.New("core: malformed chat envelope")

// ChatEnvelope is the innermost message wrapper: magic MICH, version, a
// chat_type tag, a random message ID, and the type-specific body.
type ChatEnvelope struct {
	Type      ChatType
	MessageID [16]byte
	Body      []byte
}

// NewChatEnvelope builds an envelope with a fresh random message ID.
func NewChatEnvelope(t ChatType, body []byte) (ChatEnvelope, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return ChatEnvelope{}, err
	}
	return ChatEnvelope{Type: t, MessageID: id, Body: body}, nil
}

// Encode serializes the envelope to its wire form.
func (e ChatEnvelope) Encode() []byte {
	out := make([]byte, chatHeaderSize, chatHeaderSize+len(e.Body))
	copy(out[0:4], chatMagic[:])
	out[4] = chatEnvelopeVersion
	out[5] = byte(e.Type)
	copy(out[6:22], e.MessageID[:])
	out = append(out, e.Body...)
	return out
}

// DecodeChatEnvelope parses a wire-form envelope.
func DecodeChatEnvelope(data []byte) (ChatEnvelope, error) {
	if len(data) < chatHeaderSize {
		return ChatEnvelope{}, ErrBadChatEnvelope
	}
	if string(data[0:4]) != string(chatMagic[:]) {
		return ChatEnvelope{}, ErrBadChatEnvelope
	}
	if data[4] != chatEnvelopeVersion {
		return ChatEnvelope{}, ErrBadChatEnvelope
	}
	var e ChatEnvelope
	e.Type = ChatType(data[5])
	copy(e.MessageID[:], data[6:22])
	e.Body = append([]byte{}, data[chatHeaderSize:]...)
	return e, nil
}

// messageIDHex renders a message ID for logging, never the body.
func messageIDHex(id [16]byte) string {
	var out [32]byte
	const hexdigits = "0123456789abcdef"
	for i, b := range id {
		out[i*2] = hexdigits[b>>4]
		out[i*2+1] = hexdigits[b&0xf]
	}
	return string(out[:])
}
