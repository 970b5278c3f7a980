package attest

import (
	"fmt"
	"strings"
)

type Algorithm int

const (
	invalidAlgorithm Algorithm = iota
	Ed25519Algorithm
	MLDSAAlgorithm
)

func (alg Algorithm) String() string {
	switch alg {
	case Ed25519Algorithm:
		return "ed25519"
	case MLDSAAlgorithm:
		return "mldsa"
	default:
		panic(fmt.Errorf("unknown algorithm: %d", alg))
	}
}

// NewAttester generates a fresh keypair for alg.
func NewAttester(alg Algorithm) (Attester, error) {
	switch alg {
	case Ed25519Algorithm:
		return NewEd25519()
	case MLDSAAlgorithm:
		return newMLDSA()
	default:
		return nil, fmt.Errorf("unknown algorithm: %d", alg)
	}
}

func (alg *Algorithm) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "ed25519":
		*alg = Ed25519Algorithm
	case "mldsa":
		*alg = MLDSAAlgorithm
	default:
		return fmt.Errorf("unknown algorithm: %s", text)
	}
	return nil
}

func (alg Algorithm) MarshalText() ([]byte, error) {
	return []byte(alg.String()), nil
}
