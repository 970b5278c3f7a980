package ratchet

import (
	"github.com/mi-e2ee/core/internal/enigma"
	"github.com/mi-e2ee/core/pkg/exchange"
)

const x3dhInfo = "mi_e2ee_x3dh_v1"

var x3dhSalt [32]byte

// Bundle is the peer material needed to run the initiator side of X3DH.
// Signature verification over SignedPrekey happens before this is built
// (via pkg/attest against the peer's KT-published id_sig_pk); this package
// only does the key-agreement math.
type Bundle struct {
	IdentityDH    []byte // peer_id_dh public key, x509-marshalled
	SignedPrekey  []byte // peer_signed_prekey public key, x509-marshalled
	OneTimePrekey []byte // optional peer_one_time_prekey public key
	KEMPublicKey  []byte // optional ML-KEM-768 public key, marshalled
}

// InitiatorX3DH runs the initiator side: myIdentityDH is the caller's
// long-term identity DH keypair, myEphemeral is a fresh per-handshake
// ephemeral keypair. Returns the initial root key and send chain key plus
// the KEM ciphertext to send to the peer (nil when the bundle carries no KEM
// key); the ephemeral public key to send is myEphemeral's own.
func InitiatorX3DH(myIdentityDH, myEphemeral *exchange.ECDH, peer Bundle) (rootKey, chainKey, kemCiphertext []byte, err error) {
	dh1, err := myIdentityDH.Exchange(peer.SignedPrekey)
	if err != nil {
		return nil, nil, nil, err
	}
	dh2, err := myEphemeral.Exchange(peer.IdentityDH)
	if err != nil {
		return nil, nil, nil, err
	}
	dh3, err := myEphemeral.Exchange(peer.SignedPrekey)
	if err != nil {
		return nil, nil, nil, err
	}

	ikm := append(append(append([]byte{}, dh1...), dh2...), dh3...)

	if len(peer.OneTimePrekey) > 0 {
		dh4, err := myEphemeral.Exchange(peer.OneTimePrekey)
		if err != nil {
			return nil, nil, nil, err
		}
		ikm = append(ikm, dh4...)
	}

	if len(peer.KEMPublicKey) > 0 {
		kemPub, err := exchange.ParseMLKEMPublicKey(peer.KEMPublicKey)
		if err != nil {
			return nil, nil, nil, err
		}
		ct, ss, err := exchange.EncapsulateMLKEM(kemPub)
		if err != nil {
			return nil, nil, nil, err
		}
		ikm = append(ikm, ss...)
		kemCiphertext = ct
	}

	derived, err := enigma.Derive(ikm, x3dhSalt[:], []byte(x3dhInfo), keySize*2)
	if err != nil {
		return nil, nil, nil, err
	}
	return derived[:keySize], derived[keySize:], kemCiphertext, nil
}

// ResponderX3DH runs the responder side: mySignedPrekey/myIdentityDH are the
// caller's long-term keypairs whose public halves were published in the
// bundle the initiator fetched; myOneTimePrekey is optional and consumed
// once. peerEphemeral/peerIdentityDH are the initiator's public keys.
func ResponderX3DH(
	myIdentityDH, mySignedPrekey *exchange.ECDH,
	myOneTimePrekey *exchange.ECDH,
	myKEM *exchange.MLKEM,
	peerIdentityDH, peerEphemeral, kemCiphertext []byte,
) (rootKey, chainKey []byte, err error) {
	dh1, err := mySignedPrekey.Exchange(peerIdentityDH)
	if err != nil {
		return nil, nil, err
	}
	dh2, err := myIdentityDH.Exchange(peerEphemeral)
	if err != nil {
		return nil, nil, err
	}
	dh3, err := mySignedPrekey.Exchange(peerEphemeral)
	if err != nil {
		return nil, nil, err
	}

	ikm := append(append(append([]byte{}, dh1...), dh2...), dh3...)

	if myOneTimePrekey != nil {
		dh4, err := myOneTimePrekey.Exchange(peerEphemeral)
		if err != nil {
			return nil, nil, err
		}
		ikm = append(ikm, dh4...)
	}

	if myKEM != nil && len(kemCiphertext) > 0 {
		ss, err := myKEM.Decapsulate(kemCiphertext)
		if err != nil {
			return nil, nil, err
		}
		ikm = append(ikm, ss...)
	}

	derived, err := enigma.Derive(ikm, x3dhSalt[:], []byte(x3dhInfo), keySize*2)
	if err != nil {
		return nil, nil, err
	}
	return derived[:keySize], derived[keySize:], nil
}
