package setops

import (
	"iter"

	"github.com/kmarkham/spanset/pkg/bset"
)

// aggregate folds per-key membership sets, supplied in caller key order,
// according to op. The result is always a concrete set; an empty outcome
// is an empty set, never nil.
func aggregate(op Op, sets iter.Seq[*bset.Set]) *bset.Set {
	switch op {
	case OpUnion:
		return unionAll(sets)
	case OpInter:
		return interAll(sets)
	case OpDiff:
		return diffAll(sets)
	}
	return bset.New()
}

func unionAll(sets iter.Seq[*bset.Set]) *bset.Set {
	out := bset.New()
	for s := range sets {
		out.Merge(s)
	}
	return out
}

// interAll intersects in order and stops pulling further sets once the
// running result is empty. Under large fan-out this bounds the work to
// the first empty prefix, which callers rely on.
func interAll(sets iter.Seq[*bset.Set]) *bset.Set {
	var out *bset.Set
	for s := range sets {
		if out == nil {
			out = s.Clone()
		} else {
			out.Retain(s)
		}
		if out.Empty() {
			break
		}
	}
	if out == nil {
		return bset.New()
	}
	return out
}

// diffAll subtracts every set after the first from the first, strictly in
// the supplied order. Which set is the base comes from the caller's
// argument order, never from fetch completion order.
func diffAll(sets iter.Seq[*bset.Set]) *bset.Set {
	var out *bset.Set
	for s := range sets {
		if out == nil {
			out = s.Clone()
			continue
		}
		out.Subtract(s)
	}
	if out == nil {
		return bset.New()
	}
	return out
}
