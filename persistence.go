package core

import (
	"fmt"

	"github.com/mi-e2ee/core/pkg/kt"
	"github.com/mi-e2ee/core/pkg/ratchet"
	"github.com/mi-e2ee/core/pkg/store"
)

// SessionStore persists and reloads the per-peer ratchet states that back
// PeerSession, and the local key-transparency log's leaves, using the
// store's sealed-blob buckets.
type SessionStore struct {
	st *store.Store
}

func NewSessionStore(st *store.Store) *SessionStore {
	return &SessionStore{st: st}
}

// SavePeerSession persists remoteUser's ratchet state.
func (s *SessionStore) SavePeerSession(remoteUser string, session *PeerSession) error {
	state, err := session.Save()
	if err != nil {
		return fmt.Errorf("save ratchet state: %w", err)
	}
	data, err := state.Serialize()
	if err != nil {
		return fmt.Errorf("serialize ratchet state: %w", err)
	}
	return s.st.PutSealed([]byte(store.SessionsBucket), []byte(remoteUser), data)
}

// LoadPeerSession restores a persisted session for remoteUser, if any.
func (s *SessionStore) LoadPeerSession(remoteUser string) (*PeerSession, error) {
	data, err := s.st.GetSealed([]byte(store.SessionsBucket), []byte(remoteUser))
	if err != nil {
		return nil, newError(KindUnknownSession, "no persisted session for "+remoteUser, err)
	}
	state, err := ratchet.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize ratchet state: %w", err)
	}
	return RestoreSession(remoteUser, state)
}

// DeletePeerSession drops a persisted session, e.g. after the peer's
// identity is revoked.
func (s *SessionStore) DeletePeerSession(remoteUser string) error {
	return s.st.DeleteSealed([]byte(store.SessionsBucket), []byte(remoteUser))
}

// AppendKTLeaf persists an accepted key-transparency leaf at its tree index,
// so the log can be rebuilt on restart by replaying leaves in order.
func (s *SessionStore) AppendKTLeaf(index int, leaf kt.Leaf) error {
	key := ktLeafKey(index)
	data := append([]byte(leaf.Username+"\x00"), leaf.KeyData...)
	return s.st.PutSealed([]byte(store.KTLeavesBucket), key, data)
}

func ktLeafKey(index int) []byte {
	const hexdigits = "0123456789abcdef"
	var out [16]byte
	v := uint64(index)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[v&0xf]
		v >>= 4
	}
	return out[:]
}
