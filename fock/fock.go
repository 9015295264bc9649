// Package fock represents terms as matrices on the Fock space of a few spin orbitals by the Jordan-Wigner transformation.
// It is used to check that the algebraic manipulations of terms preserve the operators they represent.
package fock

import (
	"fmt"
	"maps"
	"slices"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/fumin/wickgen"
	"github.com/fumin/wickgen/op"
)

// MaxModes is the largest number of spin orbitals a term may be represented on.
const MaxModes = 8

var (
	pauliZ = M([][]complex64{
		{1, 0},
		{0, -1},
	})
	// raise takes the empty state |0> to the occupied state |1>.
	raise = M([][]complex64{
		{0, 0},
		{1, 0},
	})
	lower = M([][]complex64{
		{0, 1},
		{0, 0},
	})
	identity = Identity(2)
)

// Operator returns the matrix of the creation or annihilation operator of orbital k among n orbitals.
func Operator(n, k int, dagger bool) *COO {
	if k < 0 || k >= n {
		panic(fmt.Sprintf("orbital %d out of range %d", k, n))
	}
	m := Identity(1)
	for i := 0; i < n; i++ {
		switch {
		case i < k:
			m.Kron(pauliZ)
		case i > k:
			m.Kron(identity)
		case dagger:
			m.Kron(raise)
		default:
			m.Kron(lower)
		}
	}
	return m
}

// Value returns the matrix of t on n orbitals.
// modes maps the ID of every index of t, including those in deltas, to an orbital.
// A delta evaluates to one if both of its indices map to the same orbital, and zero otherwise.
// The variant of t is ignored.
func Value(t *wickgen.Term, modes map[int]int, n int) (*COO, error) {
	if n > MaxModes {
		return nil, errors.Errorf("%d orbitals exceed %d", n, MaxModes)
	}
	dim := 1 << n
	a := t.Arena()
	mode := func(id int) (int, error) {
		k, ok := modes[id]
		if !ok {
			return -1, errors.Errorf("no orbital for %d in %#v", id, modes)
		}
		return k, nil
	}

	for _, d := range t.Deltas() {
		k, err := mode(a.At(d[0]).ID)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		v, err := mode(a.At(d[1]).ID)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if k != v {
			return Zeros(dim, dim), nil
		}
	}

	acc := Identity(dim).Tensor()
	for _, h := range t.Index {
		idx := a.At(h)
		k, err := mode(idx.ID)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		o := Operator(n, k, idx.Dagger).Tensor()
		acc = tensor.Contract(tensor.Zeros(1), acc, o, [][2]int{{1, 0}})
	}

	v := Zeros(dim, dim)
	v.Add(complex64(complex(t.Factor, 0)), FromTensor(acc))
	return v, nil
}

// SpinSummed returns the matrix of the spin-free term t on n spatial orbitals, each holding two spin orbitals.
// orbitals maps the ID of every index of t, including those in deltas, to a spatial orbital.
// Every spin channel of t is summed over both spins.
func SpinSummed(t *wickgen.Term, orbitals map[int]int, n int) (*COO, error) {
	a := t.Arena()
	channels := make([]op.Spin, 0)
	for _, h := range t.Index {
		if s := a.At(h).Spin; !slices.Contains(channels, s) {
			channels = append(channels, s)
		}
	}
	spins := [][]int{{}}
	if len(channels) > 0 {
		lens := make([]int, len(channels))
		for i := range lens {
			lens[i] = 2
		}
		spins = combin.Cartesian(lens)
	}

	dim := 1 << (2 * n)
	sum := Zeros(dim, dim)
	for _, spin := range spins {
		modes := make(map[int]int, len(orbitals))
		for id, k := range orbitals {
			modes[id] = 2 * k
		}
		for _, h := range t.Index {
			idx := a.At(h)
			k, ok := orbitals[idx.ID]
			if !ok {
				return nil, errors.Errorf("no orbital for %s in %#v", idx.Str(), orbitals)
			}
			modes[idx.ID] = 2*k + spin[slices.Index(channels, idx.Spin)]
		}
		v, err := Value(t, modes, 2*n)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		sum.Add(1, v)
	}
	return sum, nil
}

// DistinctModes assigns a different orbital to every index of terms, except that the two indices of a delta share one.
// It returns the assignment and the number of orbitals.
func DistinctModes(terms ...*wickgen.Term) (map[int]int, int) {
	modes := make(map[int]int)
	var n int
	assign := func(id int) {
		if _, ok := modes[id]; ok {
			return
		}
		modes[id] = n
		n++
	}
	for _, t := range terms {
		a := t.Arena()
		for _, d := range t.Deltas() {
			k, v := a.At(d[0]).ID, a.At(d[1]).ID
			mk, okk := modes[k]
			mv, okv := modes[v]
			switch {
			case okk && !okv:
				modes[v] = mk
			case !okk && okv:
				modes[k] = mv
			case !okk && !okv:
				assign(k)
				modes[v] = modes[k]
			}
		}
		for _, h := range t.Index {
			assign(a.At(h).ID)
		}
	}
	return modes, n
}

// SameOperator reports whether x and y are the same operator when every index is a distinct orbital.
func SameOperator(x, y *wickgen.Term) (bool, error) {
	modes, n := DistinctModes(x, y)
	vx, err := Value(x, modes, n)
	if err != nil {
		return false, errors.Wrap(err, x.String())
	}
	vy, err := Value(y, modes, n)
	if err != nil {
		return false, errors.Wrap(err, y.String())
	}
	return vx.Equal(vy), nil
}

// VerifySort checks that sorting t does not change its operator.
func VerifySort(t *wickgen.Term) error {
	sorted := t.Copy()
	sorted.Sort()
	same, err := SameOperator(t, sorted)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if !same {
		return errors.Errorf("sorting %s gives a different operator %s", t, sorted)
	}
	return nil
}

// VerifyReduce checks that the sum of children equals parent for every assignment of the indices to n spatial orbitals.
func VerifyReduce(parent *wickgen.Term, children []*wickgen.Term, n int) error {
	idSet := make(map[int]bool)
	for _, t := range slices.Concat([]*wickgen.Term{parent}, children) {
		a := t.Arena()
		for _, h := range t.Index {
			idSet[a.At(h).ID] = true
		}
		for _, d := range t.Deltas() {
			idSet[a.At(d[0]).ID] = true
			idSet[a.At(d[1]).ID] = true
		}
	}
	ids := slices.Sorted(maps.Keys(idSet))

	lens := make([]int, len(ids))
	for i := range lens {
		lens[i] = n
	}
	dim := 1 << (2 * n)
	for _, assignment := range combin.Cartesian(lens) {
		orbitals := make(map[int]int, len(ids))
		for i, id := range ids {
			orbitals[id] = assignment[i]
		}

		want, err := SpinSummed(parent, orbitals, n)
		if err != nil {
			return errors.Wrap(err, "")
		}
		sum := Zeros(dim, dim)
		for _, c := range children {
			v, err := SpinSummed(c, orbitals, n)
			if err != nil {
				return errors.Wrap(err, "")
			}
			sum.Add(1, v)
		}
		if !sum.Equal(want) {
			return errors.Errorf("%#v: %s\n%s\nexpected\n%s", orbitals, parent, sum, want)
		}
	}
	return nil
}

// Verify walks the reduction of t the way wickgen.Reduce does, checking every step on n spatial orbitals,
// and checks that sorting every leaf preserves its operator.
// Leaves are compared before sorting, since sorting relabels a normal ordered string rather than rewriting the operator.
func Verify(t *wickgen.Term, n int) error {
	type item struct {
		t    *wickgen.Term
		done map[int]bool
	}
	queue := []item{{t: t.Copy(), done: make(map[int]bool)}}
	for len(queue) > 0 {
		next := make([]item, 0, len(queue))
		for _, it := range queue {
			if it.t.ReduceDone(it.done) {
				if err := VerifySort(it.t); err != nil {
					return errors.Wrap(err, "")
				}
				continue
			}
			children := it.t.ReduceOne(it.done)
			if err := VerifyReduce(it.t, children, n); err != nil {
				return errors.Wrap(err, "")
			}
			for _, c := range children {
				next = append(next, item{t: c, done: maps.Clone(it.done)})
			}
		}
		queue = next
	}
	return nil
}
