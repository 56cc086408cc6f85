package setops

import (
	"errors"
	"fmt"

	"github.com/kmarkham/spanset/pkg/cluster"
)

// ErrNoKeys is returned when an operation is invoked without source keys.
var ErrNoKeys = errors.New("setops: at least one key required")

// RoutingError reports that the topology could not resolve a key's owning
// shard. Routing happens before any fetch is issued, so no cleanup is
// needed when it fails.
type RoutingError struct {
	Key []byte
	Err error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("setops: route key %q: %v", e.Key, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// FetchError reports a failed per-key membership fetch. The first fetch
// failure aborts the whole operation; sibling fetches are cancelled
// before the error reaches the caller.
type FetchError struct {
	Shard cluster.ShardAddress
	Key   []byte
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("setops: fetch members of %q from %s: %v", e.Key, e.Shard, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports a failed destination write in a store variant. The
// aggregated result is discarded; nothing is retried.
type WriteError struct {
	Dest []byte
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("setops: store result into %q: %v", e.Dest, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
