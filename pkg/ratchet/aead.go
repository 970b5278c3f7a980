package ratchet

import (
	"encoding/binary"

	"github.com/mi-e2ee/core/internal/enigma"
)

func nonceFor(counter uint64) []byte {
	n := make([]byte, 12)
	binary.LittleEndian.PutUint64(n[:8], counter)
	return n
}

func associatedData(username string, ratchetPub []byte, counter uint64) []byte {
	ad := make([]byte, 0, len(username)+len(ratchetPub)+8)
	ad = append(ad, []byte(username)...)
	ad = append(ad, ratchetPub...)
	ctr := make([]byte, 8)
	binary.LittleEndian.PutUint64(ctr, counter)
	return append(ad, ctr...)
}

func seal(msgKey []byte, username string, ratchetPub []byte, counter uint64, plaintext []byte) ([]byte, error) {
	aead, err := enigma.NewAEADStd(msgKey)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonceFor(counter), plaintext, associatedData(username, ratchetPub, counter)), nil
}

func open(msgKey []byte, username string, ratchetPub []byte, counter uint64, ciphertext []byte) ([]byte, error) {
	aead, err := enigma.NewAEADStd(msgKey)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonceFor(counter), ciphertext, associatedData(username, ratchetPub, counter))
}
