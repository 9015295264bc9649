package wickgen

import (
	"maps"
	"slices"

	"github.com/fumin/wickgen/op"
)

// ReduceOne applies one step of Wick's theorem.
// The first unresolved annihilation operator a_i is anticommuted to the end of the string:
//
//	a_i k1 k2 ... km = sum_j (-1)^(j-1) delta(i, kj) k1 ... km without kj + (-1)^m k1 ... km a_i
//
// where the sum runs over the creation operators kj.
// In a contracted child, the spin channel of kj is joined with that of a_i.
// If they already share a channel, the contraction closes a spin loop and doubles the factor.
// The ID of a_i is added to done.
func (t *Term) ReduceOne(done map[int]bool) []*Term {
	for i, h := range t.Index {
		idx := t.arena.At(h)
		if idx.Dagger || done[idx.ID] {
			continue
		}

		rest := t.Index[i+1:]
		children := make([]*Term, 0, len(rest)+1)
		for j, k := range rest {
			if !t.arena.At(k).Dagger {
				continue
			}
			c := t.contract(i, i+1+j)
			c.Factor *= sign(j)
			children = append(children, c)
		}

		moved := t.Copy()
		moved.Index = append(append(slices.Clone(t.Index[:i]), rest...), h)
		moved.Factor *= sign(len(rest))
		children = append(children, moved)

		done[idx.ID] = true
		return children
	}
	return []*Term{t.Copy()}
}

// contract removes the annihilation operator at i and the creation operator at k, recording a delta between them.
func (t *Term) contract(i, k int) *Term {
	ann, cre := t.Index[i], t.Index[k]
	from, to := t.arena.At(cre).Spin, t.arena.At(ann).Spin

	c := t.Copy()
	c.Index = c.Index[:0]
	for n, h := range t.Index {
		if n == i || n == k {
			continue
		}
		if from != to && t.arena.At(h).Spin == from {
			h = t.arena.WithSpin(h, to)
		}
		c.Index = append(c.Index, h)
	}
	if from == to {
		c.Factor *= 2
	}
	c.Delta[cre] = ann
	return c
}

func sign(n int) float64 {
	if n%2 == 1 {
		return -1
	}
	return 1
}

// Reduce applies Wick's theorem to t until every descendant is normal ordered, and returns the sorted descendants.
// Descendants are reduced breadth first, and each line of descent keeps its own set of resolved indices.
// t is not modified.
func Reduce(t *Term) []*Term {
	type item struct {
		t    *Term
		done map[int]bool
	}
	queue := []item{{t: t.Copy(), done: make(map[int]bool)}}
	leaves := make([]*Term, 0)
	for len(queue) > 0 {
		next := make([]item, 0, len(queue))
		for _, it := range queue {
			if it.t.ReduceDone(it.done) {
				leaves = append(leaves, it.t)
				continue
			}
			for _, c := range it.t.ReduceOne(it.done) {
				next = append(next, item{t: c, done: maps.Clone(it.done)})
			}
		}
		queue = next
	}

	for _, l := range leaves {
		l.Sort()
	}
	return leaves
}

// Dedup merges equal terms by adding the factor of later occurrences to the first one.
// Terms whose factor becomes zero are dropped.
// The relative order of the surviving terms is preserved.
func Dedup(terms []*Term) []*Term {
	out := make([]*Term, 0, len(terms))
	// orig holds the surviving terms before any merge, against which later terms are compared.
	orig := make([]*Term, 0, len(terms))
	for _, t := range terms {
		n := slices.IndexFunc(orig, func(o *Term) bool { return o.Equal(t) })
		if n >= 0 {
			out[n].Factor += t.Factor
			continue
		}
		out = append(out, t)
		orig = append(orig, t.Copy())
	}

	out = slices.DeleteFunc(out, func(t *Term) bool { return t.Factor == 0 })
	return out
}

// ReducedIndex returns the free indices of t, that is the operators in its string together with those tied by deltas.
// Indices are ordered by identity.
func (t *Term) ReducedIndex() []op.Handle {
	hs := slices.Clone(t.Index)
	for k, v := range t.Delta {
		hs = append(hs, k, v)
	}
	slices.SortFunc(hs, func(a, b op.Handle) int {
		return t.arena.At(a).ID - t.arena.At(b).ID
	})
	return slices.CompactFunc(hs, func(a, b op.Handle) bool {
		return t.arena.At(a).ID == t.arena.At(b).ID
	})
}
