// Package cluster tracks which shard owns which hash slots.
package cluster

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/kmarkham/spanset/pkg/slot"
)

// ErrNoShards is returned by lookups against an empty topology.
var ErrNoShards = errors.New("cluster: no shards in topology")

// ShardAddress identifies one cluster node.
type ShardAddress struct {
	Host string
	Port int
}

func (a ShardAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseShardAddress parses a "host:port" string.
func ParseShardAddress(hostport string) (ShardAddress, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return ShardAddress{}, fmt.Errorf("cluster: parse shard address %q: %w", hostport, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return ShardAddress{}, fmt.Errorf("cluster: parse shard port %q: %w", hostport, err)
	}
	return ShardAddress{Host: host, Port: p}, nil
}

// Topology maps the slot space onto the current shard set. Every shard
// owns one contiguous slot range; ranges are rebuilt whenever the shard
// set changes, ordered by shard ID so every node derives the same layout
// from the same membership.
//
// Lookups answer from this cached state and never touch the network.
type Topology struct {
	mu     sync.RWMutex
	starts []uint16                // sorted range starts, starts[0] == 0
	owners map[uint16]ShardAddress // range start -> owning shard
	shards map[string]ShardAddress // shard ID -> address
}

func NewTopology() *Topology {
	return &Topology{
		owners: make(map[uint16]ShardAddress),
		shards: make(map[string]ShardAddress),
	}
}

// Add registers a shard and rebuilds the slot ranges.
func (t *Topology) Add(id string, addr ShardAddress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.shards[id]; ok && existing == addr {
		return
	}
	t.shards[id] = addr
	t.rebuild()
}

// Remove drops a shard and rebuilds the slot ranges.
func (t *Topology) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.shards[id]; !ok {
		return
	}
	delete(t.shards, id)
	t.rebuild()
}

// Clear drops every shard.
func (t *Topology) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.shards)
	t.rebuild()
}

func (t *Topology) rebuild() {
	t.starts = t.starts[:0]
	clear(t.owners)
	if len(t.shards) == 0 {
		return
	}
	ids := make([]string, 0, len(t.shards))
	for id := range t.shards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	per := slot.Count / len(ids)
	for i, id := range ids {
		start := uint16(i * per)
		t.owners[start] = t.shards[id]
		t.starts = append(t.starts, start)
	}
}

// Resolve returns the shard owning key's slot.
func (t *Topology) Resolve(key []byte) (ShardAddress, error) {
	return t.ResolveSlot(slot.Of(key))
}

// ResolveSlot returns the shard owning s.
func (t *Topology) ResolveSlot(s uint16) (ShardAddress, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.starts) == 0 {
		return ShardAddress{}, ErrNoShards
	}
	// last range start <= s; starts[0] == 0 so idx >= 1
	idx := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] > s })
	return t.owners[t.starts[idx-1]], nil
}

// Shards returns the addresses of every registered shard.
func (t *Topology) Shards() []ShardAddress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ShardAddress, 0, len(t.shards))
	for _, addr := range t.shards {
		out = append(out, addr)
	}
	return out
}

// Len returns the number of registered shards.
func (t *Topology) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.shards)
}
