package setstore

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"testing"
)

func members(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func assertMembers(t *testing.T, got [][]byte, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d members, want %d (%q)", len(got), len(want), want)
	}
	sort.Slice(got, func(i, j int) bool { return bytes.Compare(got[i], got[j]) < 0 })
	sort.Strings(want)
	for i := range want {
		if !bytes.Equal(got[i], []byte(want[i])) {
			t.Fatalf("member %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAddRemMembers(t *testing.T) {
	s := NewStore()

	if got := s.SAdd([]byte("k"), members("a", "b", "c")...); got != 3 {
		t.Fatalf("SAdd = %d, want 3", got)
	}
	if got := s.SAdd([]byte("k"), members("b", "d")...); got != 1 {
		t.Fatalf("SAdd duplicate = %d, want 1", got)
	}
	assertMembers(t, s.SMembers([]byte("k")), "a", "b", "c", "d")

	if got := s.SRem([]byte("k"), members("a", "missing")...); got != 1 {
		t.Fatalf("SRem = %d, want 1", got)
	}
	if s.SIsMember([]byte("k"), []byte("a")) {
		t.Fatalf("a still a member after SRem")
	}
	if got := s.SCard([]byte("k")); got != 3 {
		t.Fatalf("SCard = %d, want 3", got)
	}
}

func TestEmptiedKeyDisappears(t *testing.T) {
	s := NewStore()
	s.SAdd([]byte("k"), []byte("only"))
	s.SRem([]byte("k"), []byte("only"))

	if s.Exists([]byte("k")) {
		t.Fatalf("key still exists after last member removed")
	}
	if got := s.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0", got)
	}
}

func TestMissingKeyIsEmptySet(t *testing.T) {
	s := NewStore()
	if got := s.SMembers([]byte("nope")); got == nil || len(got) != 0 {
		t.Fatalf("SMembers(missing) = %v, want empty non-nil", got)
	}
	if s.SIsMember([]byte("nope"), []byte("m")) {
		t.Fatalf("SIsMember on missing key = true")
	}
	if got := s.SCard([]byte("nope")); got != 0 {
		t.Fatalf("SCard(missing) = %d", got)
	}
}

func TestMultiKeyAlgebra(t *testing.T) {
	s := NewStore()
	s.SAdd([]byte("k1"), members("a", "b", "c")...)
	s.SAdd([]byte("k2"), members("b", "c", "d")...)

	assertMembers(t, s.SInter([]byte("k1"), []byte("k2")), "b", "c")
	assertMembers(t, s.SUnion([]byte("k1"), []byte("k2")), "a", "b", "c", "d")
	assertMembers(t, s.SDiff([]byte("k1"), []byte("k2")), "a")
	assertMembers(t, s.SDiff([]byte("k2"), []byte("k1")), "d")
}

func TestStoreVariants(t *testing.T) {
	s := NewStore()
	s.SAdd([]byte("k1"), members("a", "b", "c")...)
	s.SAdd([]byte("k2"), members("b", "c", "d")...)

	if got := s.SInterStore([]byte("dst"), []byte("k1"), []byte("k2")); got != 2 {
		t.Fatalf("SInterStore = %d, want 2", got)
	}
	assertMembers(t, s.SMembers([]byte("dst")), "b", "c")

	// Overwrite with a union.
	if got := s.SUnionStore([]byte("dst"), []byte("k1"), []byte("k2")); got != 4 {
		t.Fatalf("SUnionStore = %d, want 4", got)
	}
	assertMembers(t, s.SMembers([]byte("dst")), "a", "b", "c", "d")

	// An empty result deletes the destination rather than leaving an
	// empty key behind.
	if got := s.SInterStore([]byte("dst"), []byte("k1"), []byte("disjoint")); got != 0 {
		t.Fatalf("SInterStore empty = %d, want 0", got)
	}
	if s.Exists([]byte("dst")) {
		t.Fatalf("empty store result left destination key behind")
	}
}

func TestSMove(t *testing.T) {
	s := NewStore()
	s.SAdd([]byte("src"), members("x", "y")...)
	s.SAdd([]byte("dst"), []byte("z"))

	if !s.SMove([]byte("src"), []byte("dst"), []byte("x")) {
		t.Fatalf("SMove = false for present member")
	}
	assertMembers(t, s.SMembers([]byte("src")), "y")
	assertMembers(t, s.SMembers([]byte("dst")), "x", "z")

	if s.SMove([]byte("src"), []byte("dst"), []byte("x")) {
		t.Fatalf("SMove = true for absent member")
	}

	// Moving the last member deletes the source key.
	if !s.SMove([]byte("src"), []byte("dst"), []byte("y")) {
		t.Fatalf("SMove last member failed")
	}
	if s.Exists([]byte("src")) {
		t.Fatalf("source key still exists after moving last member")
	}
}

func TestConcurrentAccess_NoRaces(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	const G = 32
	const N = 500

	errCh := make(chan error, G)
	for gid := range G {
		wg.Add(1)
		go func(gid int) {
			defer wg.Done()
			key := fmt.Appendf(nil, "k-%d", gid)
			for i := range N {
				m := fmt.Appendf(nil, "m-%d", i)
				s.SAdd(key, m)
				if !s.SIsMember(key, m) {
					errCh <- fmt.Errorf("missing member %s right after SAdd", m)
					return
				}
				if i%5 == 0 {
					s.SRem(key, m)
				}
				if i%11 == 0 {
					s.SInter(key, []byte("k-0"))
				}
			}
		}(gid)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrency test failed: %v", err)
	}
}
