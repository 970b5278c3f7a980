package core

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/mi-e2ee/core/pkg/store"
)

const passphraseEnvVar = "MI_E2EE_STORE_PASSPHRASE"

// PassphraseHandler supplies the store's at-rest encryption passphrase.
type PassphraseHandler func() ([]byte, error)

// DefaultPassphraseHandler prefers the environment variable, to avoid
// stdin prompts in daemon contexts, and falls back to a terminal prompt.
func DefaultPassphraseHandler() ([]byte, error) {
	if envPass := os.Getenv(passphraseEnvVar); envPass != "" {
		return []byte(envPass), nil
	}
	fmt.Println("Enter store passphrase:")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return bytes.TrimSpace(pass), nil
}

// OpenStore prompts for (or reads from the environment) the store
// passphrase via handler and opens the bbolt-backed store at path.
func OpenStore(path string, handler PassphraseHandler) (*store.Store, error) {
	if handler == nil {
		handler = DefaultPassphraseHandler
	}
	pass, err := handler()
	if err != nil {
		return nil, fmt.Errorf("passphrase: %w", err)
	}
	return store.New(pass, path)
}
