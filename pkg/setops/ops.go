package setops

import (
	"context"
	"slices"
	"time"

	"github.com/kmarkham/spanset/pkg/bset"
	"github.com/kmarkham/spanset/pkg/slot"
)

// Inter returns the intersection of the sets stored at keys.
func (e *Engine) Inter(ctx context.Context, keys ...[]byte) (*bset.Set, error) {
	return e.run(ctx, OpInter, keys)
}

// Union returns the union of the sets stored at keys.
func (e *Engine) Union(ctx context.Context, keys ...[]byte) (*bset.Set, error) {
	return e.run(ctx, OpUnion, keys)
}

// Diff returns the members of the set at the first key with the members
// of every following key's set removed, in argument order.
func (e *Engine) Diff(ctx context.Context, keys ...[]byte) (*bset.Set, error) {
	return e.run(ctx, OpDiff, keys)
}

// InterStore stores the intersection of the sets at keys into dest and
// returns the number of members stored.
func (e *Engine) InterStore(ctx context.Context, dest []byte, keys ...[]byte) (int64, error) {
	return e.runStore(ctx, OpInter, dest, keys)
}

// UnionStore stores the union of the sets at keys into dest and returns
// the number of members stored.
func (e *Engine) UnionStore(ctx context.Context, dest []byte, keys ...[]byte) (int64, error) {
	return e.runStore(ctx, OpUnion, dest, keys)
}

// DiffStore stores the difference of the sets at keys into dest and
// returns the number of members stored.
func (e *Engine) DiffStore(ctx context.Context, dest []byte, keys ...[]byte) (int64, error) {
	return e.runStore(ctx, OpDiff, dest, keys)
}

func (e *Engine) run(ctx context.Context, op Op, keys [][]byte) (*bset.Set, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	start := time.Now()

	if slot.Same(keys...) {
		members, err := e.exec.RunMultiKey(ctx, op, keys...)
		e.observe(op.String(), "fast", start, err)
		if err != nil {
			return nil, err
		}
		return bset.New(members...), nil
	}

	res, err := e.scatterAggregate(ctx, op, keys)
	e.observe(op.String(), "scatter", start, err)
	return res, err
}

func (e *Engine) scatterAggregate(ctx context.Context, op Op, keys [][]byte) (*bset.Set, error) {
	sets, err := e.gather(ctx, op, keys)
	if err != nil {
		return nil, err
	}
	return aggregate(op, slices.Values(sets)), nil
}

func (e *Engine) runStore(ctx context.Context, op Op, dest []byte, keys [][]byte) (int64, error) {
	if len(keys) == 0 {
		return 0, ErrNoKeys
	}
	start := time.Now()

	// The destination takes part in the co-location check: the native
	// store command needs every key, dest included, on one slot.
	all := make([][]byte, 0, len(keys)+1)
	all = append(all, dest)
	all = append(all, keys...)
	if slot.Same(all...) {
		n, err := e.exec.RunMultiKeyStore(ctx, op, dest, keys...)
		e.observe(op.String(), "fast", start, err)
		return n, err
	}

	// The sources may still co-locate on their own even when dest does
	// not; read them with the native command in that case.
	var res *bset.Set
	var err error
	if slot.Same(keys...) {
		var members [][]byte
		members, err = e.exec.RunMultiKey(ctx, op, keys...)
		if err == nil {
			res = bset.New(members...)
		}
	} else {
		res, err = e.scatterAggregate(ctx, op, keys)
	}
	if err != nil {
		e.observe(op.String(), "scatter", start, err)
		return 0, err
	}

	// An empty aggregate stores nothing: writing an empty set would
	// create a destination key that native execution never creates.
	if res.Empty() {
		e.observe(op.String(), "scatter", start, nil)
		return 0, nil
	}

	n, err := e.exec.AddMembers(ctx, dest, res.Members()...)
	if err != nil {
		err = &WriteError{Dest: dest, Err: err}
		n = 0
	}
	e.observe(op.String(), "scatter", start, err)
	return n, err
}

// Move moves member from the set at src to the set at dest, reporting
// whether the member was moved.
//
// When src and dest hash to different slots the move is emulated with
// separate remove and add commands and is NOT atomic: a crash or shard
// failure between the two steps loses the member. Callers that need the
// atomic move must keep both keys in one slot (hash tags).
func (e *Engine) Move(ctx context.Context, src, dest, member []byte) (bool, error) {
	start := time.Now()

	if slot.Same(src, dest) {
		ok, err := e.exec.MoveMember(ctx, src, dest, member)
		e.observe("move", "fast", start, err)
		return ok, err
	}

	ok, err := e.moveAcrossSlots(ctx, src, dest, member)
	e.observe("move", "scatter", start, err)
	return ok, err
}

func (e *Engine) moveAcrossSlots(ctx context.Context, src, dest, member []byte) (bool, error) {
	exists, err := e.exec.Exists(ctx, src)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	removed, err := e.exec.RemoveMembers(ctx, src, member)
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}

	present, err := e.exec.IsMember(ctx, dest, member)
	if err != nil {
		return false, err
	}
	if present {
		return true, nil
	}

	added, err := e.exec.AddMembers(ctx, dest, member)
	if err != nil {
		return false, err
	}
	return added > 0, nil
}
