package setstore

import (
	"sync"

	"github.com/kmarkham/spanset/pkg/bset"
)

// Store is an in-memory collection of sets keyed by opaque binary keys.
// It backs one shard. Multi-key operations run under a single lock, which
// is what makes the same-slot fast path atomic: no concurrent writer can
// observe or interleave with a partially applied multi-key command.
//
// A key whose set becomes empty is removed; empty sets are never stored.
type Store struct {
	mu   sync.RWMutex
	sets map[string]*bset.Set
}

func NewStore() *Store {
	return &Store{sets: make(map[string]*bset.Set)}
}

// SAdd adds members to the set at key, creating it if needed, and returns
// how many members were newly added.
func (s *Store) SAdd(key []byte, members ...[]byte) int {
	if len(members) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[string(key)]
	if !ok {
		set = bset.New()
		s.sets[string(key)] = set
	}
	return set.AddAll(members...)
}

// SRem removes members from the set at key and returns how many were
// removed. The key is deleted once its set is empty.
func (s *Store) SRem(key []byte, members ...[]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[string(key)]
	if !ok {
		return 0
	}
	removed := 0
	for _, m := range members {
		if set.Remove(m) {
			removed++
		}
	}
	if set.Empty() {
		delete(s.sets, string(key))
	}
	return removed
}

// SMembers returns the members of the set at key. A missing key yields an
// empty slice.
func (s *Store) SMembers(key []byte) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[string(key)]
	if !ok {
		return [][]byte{}
	}
	return set.Members()
}

// SIsMember reports whether member is in the set at key.
func (s *Store) SIsMember(key, member []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[string(key)]
	return ok && set.Contains(member)
}

// SCard returns the size of the set at key.
func (s *Store) SCard(key []byte) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[string(key)]
	if !ok {
		return 0
	}
	return set.Len()
}

// Exists reports whether key holds a set.
func (s *Store) Exists(key []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sets[string(key)]
	return ok
}

// Del removes key, reporting whether it existed.
func (s *Store) Del(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[string(key)]; !ok {
		return false
	}
	delete(s.sets, string(key))
	return true
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// SInter returns the intersection of the sets at keys.
func (s *Store) SInter(keys ...[]byte) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interLocked(keys).Members()
}

// SUnion returns the union of the sets at keys.
func (s *Store) SUnion(keys ...[]byte) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unionLocked(keys).Members()
}

// SDiff returns the members of the first key's set minus the members of
// every following key's set.
func (s *Store) SDiff(keys ...[]byte) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diffLocked(keys).Members()
}

// SInterStore stores the intersection of keys into dest and returns the
// stored member count. dest is overwritten; an empty result deletes it.
func (s *Store) SInterStore(dest []byte, keys ...[]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(dest, s.interLocked(keys))
}

// SUnionStore stores the union of keys into dest and returns the stored
// member count. dest is overwritten; an empty result deletes it.
func (s *Store) SUnionStore(dest []byte, keys ...[]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(dest, s.unionLocked(keys))
}

// SDiffStore stores the difference of keys into dest and returns the
// stored member count. dest is overwritten; an empty result deletes it.
func (s *Store) SDiffStore(dest []byte, keys ...[]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(dest, s.diffLocked(keys))
}

// SMove moves member from the set at src to the set at dest in one
// atomic step, reporting whether the member was moved.
func (s *Store) SMove(src, dest, member []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[string(src)]
	if !ok || !set.Remove(member) {
		return false
	}
	if set.Empty() {
		delete(s.sets, string(src))
	}
	d, ok := s.sets[string(dest)]
	if !ok {
		d = bset.New()
		s.sets[string(dest)] = d
	}
	d.Add(member)
	return true
}

func (s *Store) getLocked(key []byte) *bset.Set {
	if set, ok := s.sets[string(key)]; ok {
		return set
	}
	return bset.New()
}

func (s *Store) interLocked(keys [][]byte) *bset.Set {
	if len(keys) == 0 {
		return bset.New()
	}
	out := s.getLocked(keys[0]).Clone()
	for _, key := range keys[1:] {
		if out.Empty() {
			break
		}
		out.Retain(s.getLocked(key))
	}
	return out
}

func (s *Store) unionLocked(keys [][]byte) *bset.Set {
	out := bset.New()
	for _, key := range keys {
		out.Merge(s.getLocked(key))
	}
	return out
}

func (s *Store) diffLocked(keys [][]byte) *bset.Set {
	if len(keys) == 0 {
		return bset.New()
	}
	out := s.getLocked(keys[0]).Clone()
	for _, key := range keys[1:] {
		out.Subtract(s.getLocked(key))
	}
	return out
}

func (s *Store) storeLocked(dest []byte, res *bset.Set) int {
	if res.Empty() {
		delete(s.sets, string(dest))
		return 0
	}
	s.sets[string(dest)] = res
	return res.Len()
}
