// Package setops emulates multi-key set commands over a slot-sharded
// key-value cluster.
//
// Native multi-key commands (intersection, union, difference and their
// store variants) execute atomically only when every key involved hashes
// to one slot. When they do, the engine delegates to the shard owning
// that slot. When keys span shards no single node can compute the result,
// so the engine fetches each key's members from its owning shard in
// parallel, applies the set algebra locally, and for store variants
// writes the aggregate back to the destination key. External behavior
// matches the single-shard execution, with one documented exception: see
// Move.
package setops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kmarkham/spanset/internal/telemetry"
	"github.com/kmarkham/spanset/pkg/cluster"
)

// Op identifies a multi-key set operation.
type Op int

const (
	OpInter Op = iota
	OpUnion
	OpDiff
)

func (op Op) String() string {
	switch op {
	case OpInter:
		return "inter"
	case OpUnion:
		return "union"
	case OpDiff:
		return "diff"
	}
	return "unknown"
}

// Topology resolves which shard owns a key. Implementations answer from
// locally cached state and must not block on network I/O.
type Topology interface {
	Resolve(key []byte) (cluster.ShardAddress, error)
}

// Executor runs commands on the single shard owning every key involved,
// preserving native atomicity. It is the engine's fast path and its
// write-back channel.
type Executor interface {
	// RunMultiKey executes the native multi-key command for op. Every key
	// must hash to one slot.
	RunMultiKey(ctx context.Context, op Op, keys ...[]byte) ([][]byte, error)

	// RunMultiKeyStore executes the native store variant of op into dest
	// and returns the number of members stored. dest and keys must all
	// hash to one slot.
	RunMultiKeyStore(ctx context.Context, op Op, dest []byte, keys ...[]byte) (int64, error)

	// MoveMember atomically moves member from src to dest. Both keys must
	// hash to one slot.
	MoveMember(ctx context.Context, src, dest, member []byte) (bool, error)

	// AddMembers adds members to the set at key, returning how many were
	// newly added.
	AddMembers(ctx context.Context, key []byte, members ...[]byte) (int64, error)

	// RemoveMembers removes members from the set at key, returning how
	// many were removed.
	RemoveMembers(ctx context.Context, key []byte, members ...[]byte) (int64, error)

	// IsMember reports whether member is in the set at key.
	IsMember(ctx context.Context, key, member []byte) (bool, error)

	// Exists reports whether key holds a set.
	Exists(ctx context.Context, key []byte) (bool, error)
}

// Fetcher reads the full membership of one key directly from the given
// shard. A key with no stored set yields an empty membership, not an
// error. Implementations must honor ctx cancellation.
type Fetcher interface {
	FetchMembers(ctx context.Context, shard cluster.ShardAddress, key []byte) ([][]byte, error)
}

// Engine implements cluster-wide multi-key set operations.
type Engine struct {
	topo  Topology
	exec  Executor
	fetch Fetcher
	log   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New returns an engine over the given collaborators.
func New(topo Topology, exec Executor, fetch Fetcher, opts ...Option) *Engine {
	e := &Engine{topo: topo, exec: exec, fetch: fetch, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) observe(op, path string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	telemetry.OpsTotal.WithLabelValues(op, path, status).Inc()
	telemetry.OpDuration.WithLabelValues(op, path).Observe(time.Since(start).Seconds())
}
