package exchange

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// ErrInvalidKey is returned when key material fails to parse into the
// expected concrete type.
var ErrInvalidKey = errors.New("invalid key")

// MLKEM is a ML-KEM-768 (Kyber-768 class) post-quantum key encapsulation
// keypair, used to augment the classical X25519 exchange in the ratchet's
// hybrid handshake.
type MLKEM struct {
	PublicKey  *mlkem768.PublicKey
	privateKey *mlkem768.PrivateKey
}

func NewMLKEM() (*MLKEM, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating mlkem768 keypair: %w", err)
	}
	return &MLKEM{PublicKey: pub, privateKey: priv}, nil
}

func (k *MLKEM) MarshalPublicKey() []byte {
	b, err := k.PublicKey.MarshalBinary()
	if err != nil {
		panic(fmt.Errorf("marshalling mlkem768 public key: %w", err))
	}
	return b
}

// ParseMLKEMPublicKey parses a peer's encapsulation key out of a published
// prekey bundle.
func ParseMLKEMPublicKey(remote []byte) (*mlkem768.PublicKey, error) {
	if len(remote) != mlkem768.PublicKeySize {
		return nil, ErrInvalidKey
	}
	var pub mlkem768.PublicKey
	if err := pub.UnmarshalBinary(remote); err != nil {
		return nil, fmt.Errorf("unmarshalling mlkem768 public key: %w", err)
	}
	return &pub, nil
}

// EncapsulateMLKEM generates a shared secret against a peer's published
// encapsulation key, returning the ciphertext to send alongside it.
func EncapsulateMLKEM(remote *mlkem768.PublicKey) (ciphertext, sharedSecret []byte, err error) {
	ct := make([]byte, mlkem768.CiphertextSize)
	ss := make([]byte, mlkem768.SharedKeySize)
	seed := make([]byte, mlkem768.EncapsulationSeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, fmt.Errorf("reading encapsulation seed: %w", err)
	}
	remote.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from a ciphertext produced by
// EncapsulateMLKEM against this keypair's public key.
func (k *MLKEM) Decapsulate(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != mlkem768.CiphertextSize {
		return nil, ErrInvalidKey
	}
	ss := make([]byte, mlkem768.SharedKeySize)
	k.privateKey.DecapsulateTo(ss, ciphertext)
	return ss, nil
}
