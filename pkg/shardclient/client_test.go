package shardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/kmarkham/spanset/pkg/cluster"
	"github.com/kmarkham/spanset/pkg/node"
	"github.com/kmarkham/spanset/pkg/setops"
	"github.com/kmarkham/spanset/pkg/setstore"
	"github.com/kmarkham/spanset/pkg/slot"
)

// startShard boots a shard node on a real listener and returns its
// address and backing store.
func startShard(t *testing.T, topo *cluster.Topology) (cluster.ShardAddress, *setstore.Store) {
	t.Helper()
	store := setstore.NewStore()
	srv := httptest.NewUnstartedServer(nil)
	addr, err := cluster.ParseShardAddress(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("parse listener addr: %v", err)
	}
	n := node.New(store, topo, addr, zap.NewNop())
	srv.Config.Handler = n.Routes()
	srv.Start()
	t.Cleanup(srv.Close)
	return addr, store
}

// twoShardCluster builds a topology where shard "a" owns the lower half
// of the slot space and shard "b" the upper half.
func twoShardCluster(t *testing.T) (*cluster.Topology, *setstore.Store, *setstore.Store) {
	t.Helper()
	topo := cluster.NewTopology()
	addrA, storeA := startShard(t, topo)
	addrB, storeB := startShard(t, topo)
	topo.Add("a", addrA)
	topo.Add("b", addrB)
	return topo, storeA, storeB
}

func keyWhere(t *testing.T, prefix string, pred func(uint16) bool) []byte {
	t.Helper()
	for i := 0; i < 100000; i++ {
		k := fmt.Appendf(nil, "%s-%d", prefix, i)
		if pred(slot.Of(k)) {
			return k
		}
	}
	t.Fatalf("no key found for prefix %q", prefix)
	return nil
}

func lowerHalf(s uint16) bool { return s < slot.Count/2 }
func upperHalf(s uint16) bool { return s >= slot.Count/2 }

func sorted(members [][]byte) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = string(m)
	}
	sort.Strings(out)
	return out
}

func TestSingleKeyRoundTrip(t *testing.T) {
	topo, _, storeB := twoShardCluster(t)
	c := New(topo)
	ctx := context.Background()

	key := keyWhere(t, "k", upperHalf) // owned by shard b

	added, err := c.AddMembers(ctx, key, []byte("a"), []byte("b"))
	if err != nil {
		t.Fatalf("AddMembers: %v", err)
	}
	if added != 2 {
		t.Fatalf("AddMembers = %d, want 2", added)
	}
	if !storeB.SIsMember(key, []byte("a")) {
		t.Fatalf("member not stored on owning shard")
	}

	ok, err := c.IsMember(ctx, key, []byte("a"))
	if err != nil || !ok {
		t.Fatalf("IsMember = %v, %v", ok, err)
	}
	exists, err := c.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v", exists, err)
	}

	members, err := c.FetchMembers(ctx, mustResolve(t, topo, key), key)
	if err != nil {
		t.Fatalf("FetchMembers: %v", err)
	}
	if got := sorted(members); got[0] != "a" || got[1] != "b" {
		t.Fatalf("FetchMembers = %v", got)
	}

	removed, err := c.RemoveMembers(ctx, key, []byte("a"))
	if err != nil || removed != 1 {
		t.Fatalf("RemoveMembers = %d, %v", removed, err)
	}
}

func TestFetchMissingKeyIsEmpty(t *testing.T) {
	topo, _, _ := twoShardCluster(t)
	c := New(topo)

	key := keyWhere(t, "ghost", lowerHalf)
	members, err := c.FetchMembers(context.Background(), mustResolve(t, topo, key), key)
	if err != nil {
		t.Fatalf("FetchMembers on missing key: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("FetchMembers = %v, want empty", members)
	}
}

func TestForwardingToOwner(t *testing.T) {
	topo, _, storeB := twoShardCluster(t)
	c := New(topo)
	ctx := context.Background()

	key := keyWhere(t, "k", upperHalf)
	if _, err := c.AddMembers(ctx, key, []byte("x")); err != nil {
		t.Fatalf("AddMembers: %v", err)
	}

	// Ask the non-owning shard directly; it must forward to the owner.
	wrong, err := topo.ResolveSlot(0) // lower half: shard a
	if err != nil {
		t.Fatalf("ResolveSlot: %v", err)
	}
	members, err := c.FetchMembers(ctx, wrong, key)
	if err != nil {
		t.Fatalf("FetchMembers via non-owner: %v", err)
	}
	if len(members) != 1 || string(members[0]) != "x" {
		t.Fatalf("forwarded FetchMembers = %v", members)
	}
	if !storeB.SIsMember(key, []byte("x")) {
		t.Fatalf("member not on owner")
	}
}

func TestEngineEndToEnd(t *testing.T) {
	topo, _, _ := twoShardCluster(t)
	c := New(topo)
	e := setops.New(topo, c, c)
	ctx := context.Background()

	k1 := keyWhere(t, "k1", lowerHalf)
	k2 := keyWhere(t, "k2", upperHalf)

	seed := func(key []byte, members ...string) {
		t.Helper()
		ms := make([][]byte, len(members))
		for i, m := range members {
			ms[i] = []byte(m)
		}
		if _, err := c.AddMembers(ctx, key, ms...); err != nil {
			t.Fatalf("seed %q: %v", key, err)
		}
	}
	seed(k1, "a", "b", "c")
	seed(k2, "b", "c", "d")

	inter, err := e.Inter(ctx, k1, k2)
	if err != nil {
		t.Fatalf("Inter: %v", err)
	}
	if got := sorted(inter.Members()); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("Inter = %v, want [b c]", got)
	}

	union, err := e.Union(ctx, k1, k2)
	if err != nil {
		t.Fatalf("Union: %v", err)
	}
	if got := sorted(union.Members()); len(got) != 4 {
		t.Fatalf("Union = %v, want 4 members", got)
	}

	diff, err := e.Diff(ctx, k1, k2)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if got := sorted(diff.Members()); len(got) != 1 || got[0] != "a" {
		t.Fatalf("Diff = %v, want [a]", got)
	}

	dst := keyWhere(t, "dst", upperHalf)
	stored, err := e.InterStore(ctx, dst, k1, k2)
	if err != nil {
		t.Fatalf("InterStore: %v", err)
	}
	if stored != 2 {
		t.Fatalf("InterStore = %d, want 2", stored)
	}
	members, err := c.FetchMembers(ctx, mustResolve(t, topo, dst), dst)
	if err != nil {
		t.Fatalf("FetchMembers(dst): %v", err)
	}
	if got := sorted(members); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("stored members = %v, want [b c]", got)
	}

	moved, err := e.Move(ctx, k1, k2, []byte("a"))
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if !moved {
		t.Fatalf("Move = false, want true")
	}
	ok, err := c.IsMember(ctx, k2, []byte("a"))
	if err != nil || !ok {
		t.Fatalf("member not at destination after move: %v, %v", ok, err)
	}
}

func TestFastPathMultiKeyOnNode(t *testing.T) {
	topo, _, _ := twoShardCluster(t)
	c := New(topo)
	e := setops.New(topo, c, c)
	ctx := context.Background()

	// Hash-tagged keys share a slot, so this runs as one native command.
	if _, err := c.AddMembers(ctx, []byte("{t}k1"), []byte("a"), []byte("b")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := c.AddMembers(ctx, []byte("{t}k2"), []byte("b"), []byte("c")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	inter, err := e.Inter(ctx, []byte("{t}k1"), []byte("{t}k2"))
	if err != nil {
		t.Fatalf("Inter: %v", err)
	}
	if got := sorted(inter.Members()); len(got) != 1 || got[0] != "b" {
		t.Fatalf("Inter = %v, want [b]", got)
	}
}

func TestNodeRejectsCrossSlotMultiKey(t *testing.T) {
	topo, _, _ := twoShardCluster(t)

	k1 := keyWhere(t, "k1", lowerHalf)
	k2 := keyWhere(t, "k2", upperHalf)

	body, _ := json.Marshal(node.MultiKeyRequest{Op: "inter", Keys: [][]byte{k1, k2}})
	shard := mustResolve(t, topo, k1)
	resp, err := http.Post(fmt.Sprintf("http://%s/multikey", shard), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /multikey: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("cross-slot multikey: status %d, want 400", resp.StatusCode)
	}
}

func mustResolve(t *testing.T, topo *cluster.Topology, key []byte) cluster.ShardAddress {
	t.Helper()
	addr, err := topo.Resolve(key)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", key, err)
	}
	return addr
}
