package ratchet

import "encoding/binary"

// skipCache holds skipped message keys indexed by (ratchet_pub, counter),
// FIFO-evicted once it exceeds its capacity.
type skipCache struct {
	cap     int
	order   []string
	entries map[string][]byte
}

func newSkipCache(capacity int) *skipCache {
	return &skipCache{cap: capacity, entries: make(map[string][]byte)}
}

func skipKey(ratchetPub []byte, counter uint64) string {
	b := make([]byte, len(ratchetPub)+8)
	copy(b, ratchetPub)
	binary.LittleEndian.PutUint64(b[len(ratchetPub):], counter)
	return string(b)
}

func (s *skipCache) put(ratchetPub []byte, counter uint64, key []byte) {
	k := skipKey(ratchetPub, counter)
	if _, exists := s.entries[k]; exists {
		return
	}
	s.entries[k] = key
	s.order = append(s.order, k)
	for len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
}

func (s *skipCache) take(ratchetPub []byte, counter uint64) ([]byte, bool) {
	k := skipKey(ratchetPub, counter)
	key, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	delete(s.entries, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return key, true
}

func (s *skipCache) len() int {
	return len(s.entries)
}
