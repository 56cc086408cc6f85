// Package bset implements a set of opaque binary members with content
// equality: two members are the same element iff their bytes are equal,
// regardless of which allocation they live in. Raw byte slices are not
// comparable in Go, so the set keys on the string conversion of the
// member, which compares by content.
//
// A Set is not safe for concurrent use; callers wrap it in their own
// locking where needed.
package bset

// Set is a mutable set of binary members.
type Set struct {
	m map[string][]byte
}

// New returns a set holding the given members, deduplicated by content.
func New(members ...[]byte) *Set {
	s := &Set{m: make(map[string][]byte, len(members))}
	s.AddAll(members...)
	return s
}

// Add inserts member, reporting whether it was newly added. The set keeps
// its own copy of the bytes.
func (s *Set) Add(member []byte) bool {
	k := string(member)
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = append([]byte(nil), member...)
	return true
}

// AddAll inserts every member and returns how many were newly added.
func (s *Set) AddAll(members ...[]byte) int {
	added := 0
	for _, m := range members {
		if s.Add(m) {
			added++
		}
	}
	return added
}

// Contains reports whether member is in the set.
func (s *Set) Contains(member []byte) bool {
	_, ok := s.m[string(member)]
	return ok
}

// Remove deletes member, reporting whether it was present.
func (s *Set) Remove(member []byte) bool {
	k := string(member)
	if _, ok := s.m[k]; !ok {
		return false
	}
	delete(s.m, k)
	return true
}

// Len returns the number of members.
func (s *Set) Len() int { return len(s.m) }

// Empty reports whether the set has no members.
func (s *Set) Empty() bool { return len(s.m) == 0 }

// Retain drops every member not also present in other (set intersection
// in place).
func (s *Set) Retain(other *Set) {
	for k := range s.m {
		if _, ok := other.m[k]; !ok {
			delete(s.m, k)
		}
	}
}

// Subtract drops every member present in other (set difference in place).
func (s *Set) Subtract(other *Set) {
	for k := range other.m {
		delete(s.m, k)
	}
}

// Merge adds every member of other (set union in place).
func (s *Set) Merge(other *Set) {
	for k, v := range other.m {
		if _, ok := s.m[k]; !ok {
			s.m[k] = v
		}
	}
}

// Members returns the members as freshly allocated byte slices, in no
// particular order.
func (s *Set) Members() [][]byte {
	out := make([][]byte, 0, len(s.m))
	for _, v := range s.m {
		out = append(out, append([]byte(nil), v...))
	}
	return out
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	c := &Set{m: make(map[string][]byte, len(s.m))}
	for k, v := range s.m {
		c.m[k] = v
	}
	return c
}
