package setops

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmarkham/spanset/internal/telemetry"
	"github.com/kmarkham/spanset/pkg/bset"
	"github.com/kmarkham/spanset/pkg/cluster"
)

// fetchJob pairs one input key with the shard owning it and the key's
// position in the caller's argument list. Results land in a slice indexed
// by that position, so completion order never changes which set is which.
type fetchJob struct {
	pos   int
	key   []byte
	shard cluster.ShardAddress
}

// route resolves every key to its owning shard. The returned jobs keep
// the caller's key order; the per-shard map keeps the relative order of
// each shard's keys. A single unresolvable key fails the whole route and
// nothing is fetched.
func (e *Engine) route(keys [][]byte) ([]fetchJob, map[cluster.ShardAddress][][]byte, error) {
	jobs := make([]fetchJob, 0, len(keys))
	byShard := make(map[cluster.ShardAddress][][]byte)
	for i, key := range keys {
		shard, err := e.topo.Resolve(key)
		if err != nil {
			return nil, nil, &RoutingError{Key: key, Err: err}
		}
		jobs = append(jobs, fetchJob{pos: i, key: key, shard: shard})
		byShard[shard] = append(byShard[shard], key)
	}
	return jobs, byShard, nil
}

// gather issues one concurrent fetch per key and returns the per-key
// membership sets in caller key order. The first failure cancels every
// sibling fetch; the deferred cancel also fires on the success path so no
// request handle outlives the call.
func (e *Engine) gather(parent context.Context, op Op, keys [][]byte) ([]*bset.Set, error) {
	jobs, byShard, err := e.route(keys)
	if err != nil {
		return nil, err
	}

	opID := uuid.NewString()
	e.log.Debug("scatter",
		zap.String("op", op.String()),
		zap.String("op_id", opID),
		zap.Int("keys", len(jobs)),
		zap.Int("shards", len(byShard)))
	telemetry.ScatterFanout.Observe(float64(len(jobs)))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Each goroutine writes only its own slot; no lock needed.
	sets := make([]*bset.Set, len(jobs))
	errs := make([]error, len(jobs))

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job fetchJob) {
			defer wg.Done()
			telemetry.FetchesInFlight.Inc()
			defer telemetry.FetchesInFlight.Dec()

			start := time.Now()
			members, err := e.fetch.FetchMembers(ctx, job.shard, job.key)
			telemetry.FetchDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				errs[job.pos] = &FetchError{Shard: job.shard, Key: job.key, Err: err}
				cancel()
				return
			}
			sets[job.pos] = bset.New(members...)
		}(job)
	}
	wg.Wait()

	// If the caller's own context ended while we waited, report that
	// rather than whichever fetch happened to trip over it first.
	if err := parent.Err(); err != nil {
		e.log.Warn("scatter interrupted", zap.String("op_id", opID), zap.Error(err))
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			e.log.Warn("scatter aborted", zap.String("op_id", opID), zap.Error(err))
			return nil, err
		}
	}
	return sets, nil
}
