package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mi-e2ee/core/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	s, err := store.New([]byte("pass123"), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReopenWithSamePassphraseRecoversCipher(t *testing.T) {
	a := assert.New(t)
	path := filepath.Join(t.TempDir(), "db")

	s1, err := store.New([]byte("correct horse"), path)
	a.NoError(err)
	a.NoError(s1.PutSealed([]byte(store.SessionsBucket), []byte("alice"), []byte("state-v1")))
	a.NoError(s1.Close())

	s2, err := store.New([]byte("correct horse"), path)
	a.NoError(err)
	defer s2.Close()
	got, err := s2.GetSealed([]byte(store.SessionsBucket), []byte("alice"))
	a.NoError(err)
	a.Equal([]byte("state-v1"), got)
}

func TestSealedPutGetDelete(t *testing.T) {
	a := assert.New(t)
	s := openTestStore(t)

	bucket := []byte(store.SenderKeysBucket)
	a.NoError(s.PutSealed(bucket, []byte("group-1:alice"), []byte("chain-state")))

	got, err := s.GetSealed(bucket, []byte("group-1:alice"))
	a.NoError(err)
	a.Equal([]byte("chain-state"), got)

	a.NoError(s.DeleteSealed(bucket, []byte("group-1:alice")))
	_, err = s.GetSealed(bucket, []byte("group-1:alice"))
	a.ErrorIs(err, store.ErrNotFound)
}

func TestIterateSealedYieldsAllEntries(t *testing.T) {
	a := assert.New(t)
	s := openTestStore(t)

	bucket := []byte(store.KTLeavesBucket)
	entries := map[string]string{
		"0000": "leaf-0",
		"0001": "leaf-1",
		"0002": "leaf-2",
	}
	for k, v := range entries {
		a.NoError(s.PutSealed(bucket, []byte(k), []byte(v)))
	}

	seen := make(map[string]string)
	for k, v := range s.IterateSealed(bucket) {
		seen[string(k)] = string(v)
	}
	a.Equal(entries, seen)
}

func TestPeerExistsExpiresEntries(t *testing.T) {
	a := assert.New(t)
	s := openTestStore(t)

	peer := []byte("peer-fingerprint")
	a.NoError(s.AddPeer(peer, time.Now().Add(-time.Minute)))
	a.False(s.PeerExists(peer))

	a.NoError(s.AddPeer(peer, time.Now().Add(time.Hour)))
	a.True(s.PeerExists(peer))
}

func TestIdentityRoundTrip(t *testing.T) {
	a := assert.New(t)
	s := openTestStore(t)

	alg := []byte("ed25519")
	a.False(s.IdentityExists(alg))

	a.NoError(s.AddIdentity(alg, []byte("serialized-key")))
	a.True(s.IdentityExists(alg))

	got, err := s.GetIdentity(alg)
	a.NoError(err)
	a.Equal([]byte("serialized-key"), got)
}
