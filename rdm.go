// Package wickgen expands products of spin-free excitation operators into reduced density matrix (RDM) terms by Wick's theorem,
// and generates the tensor contraction code that evaluates them.
//
// References:
//   - Toru Shiozaki, SMITH3: A code generator for multireference electron correlation theories.
//   - Kutzelnigg and Mukherjee, Normal order and extended Wick theorem for a multiconfiguration reference wave function.
package wickgen

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/fumin/wickgen/op"
)

// Variant is the kind of density matrix a term refers to.
// It is one of Standard or CIDerivative.
type Variant interface {
	variant()
}

// Standard is the density matrix of the reference state.
type Standard struct{}

// CIDerivative is the derivative of the density matrix with respect to the CI coefficients.
// CI is the name of the index running over the CI coefficients.
type CIDerivative struct {
	CI string
}

func (Standard) variant()     {}
func (CIDerivative) variant() {}

// Term is a reduced density matrix term.
type Term struct {
	Variant Variant
	// Index is the operator string, of even length.
	Index []op.Handle
	// Delta holds the Kronecker deltas created by contractions.
	// Entries are only ever added.
	Delta map[op.Handle]op.Handle
	// Factor is the prefactor.
	Factor float64

	arena *op.Arena
}

// NewTerm returns a Standard term.
// delta may be nil.
func NewTerm(arena *op.Arena, index []op.Handle, delta map[op.Handle]op.Handle, factor float64) *Term {
	t := &Term{Variant: Standard{}, Index: slices.Clone(index), Delta: make(map[op.Handle]op.Handle), Factor: factor, arena: arena}
	maps.Copy(t.Delta, delta)
	return t
}

// Arena returns the arena of the indices of t.
func (t *Term) Arena() *op.Arena { return t.arena }

// Rank returns the number of creation and annihilation operator pairs.
func (t *Term) Rank() int {
	if len(t.Index)%2 != 0 {
		panic(fmt.Sprintf("odd number of operators %s", t.indexStr()))
	}
	return len(t.Index) / 2
}

// Copy returns a term that can be modified independently of t.
// Indices are shared.
func (t *Term) Copy() *Term {
	c := &Term{Variant: t.Variant, Index: slices.Clone(t.Index), Delta: maps.Clone(t.Delta), Factor: t.Factor, arena: t.arena}
	return c
}

// Done reports whether t is in the canonical form a0+ a0 a1+ a1 ...
// where every pair shares a spin.
func (t *Term) Done() bool {
	if len(t.Index)%2 != 0 {
		panic(fmt.Sprintf("odd number of operators %s", t.indexStr()))
	}

	var prev op.Spin
	for i, h := range t.Index {
		idx := t.arena.At(h)
		if i%2 == 0 {
			if !idx.Dagger {
				return false
			}
			prev = idx.Spin
			continue
		}
		if idx.Dagger || idx.Spin != prev {
			return false
		}
	}
	return true
}

// ReduceDone reports whether no unresolved annihilation operator has a creation operator to its right.
// done holds the IDs of resolved indices.
// Only the first unresolved annihilation operator is examined.
func (t *Term) ReduceDone(done map[int]bool) bool {
	for i, h := range t.Index {
		idx := t.arena.At(h)
		if idx.Dagger || done[idx.ID] {
			continue
		}
		for _, r := range t.Index[i+1:] {
			if t.arena.At(r).Dagger {
				return false
			}
		}
		return true
	}
	return true
}

// Sort aligns the operators as a0+ a0 a1+ a1 ..., flipping the sign of the factor for each odd transposition.
// The ordering among spins follows their first appearance.
func (t *Term) Sort() {
	settled := make(map[op.Spin]bool)
	for !t.Done() {
		buf := make([]op.Handle, 0, len(t.Index))

		// Skip the spins already processed.
		i := 0
		for ; i < len(t.Index); i++ {
			if !settled[t.arena.At(t.Index[i]).Spin] {
				break
			}
			buf = append(buf, t.Index[i])
		}
		if i == len(t.Index) {
			panic(fmt.Sprintf("all spins settled but not aligned %s", t.indexStr()))
		}

		cur := t.arena.At(t.Index[i])
		var skipped int
		found := false
		for _, h := range t.Index[i+1:] {
			idx := t.arena.At(h)
			switch {
			case idx.Spin != cur.Spin:
				buf = append(buf, h)
				if !found {
					skipped++
				}
			case cur.Dagger:
				// Move the creation operator right before its partner.
				if idx.Dagger {
					panic(fmt.Sprintf("two creation operators of spin %d %s", cur.Spin, t.indexStr()))
				}
				buf = append(buf, t.Index[i], h)
				found = true
			default:
				// Move the annihilation operator right after its partner.
				if !idx.Dagger {
					panic(fmt.Sprintf("two annihilation operators of spin %d %s", cur.Spin, t.indexStr()))
				}
				buf = append(buf, h, t.Index[i])
				skipped++
				found = true
			}
		}
		if skipped%2 == 1 {
			t.Factor = -t.Factor
		}
		settled[cur.Spin] = true

		if len(buf) != len(t.Index) {
			panic(fmt.Sprintf("sort rebuilt %d operators from %d: %s -> %s", len(buf), len(t.Index), t.indexStr(), strs(t.arena, buf)))
		}
		t.Index = buf
	}
}

// Equal reports whether t and o have the same factor, the same number of deltas and identical operator strings.
func (t *Term) Equal(o *Term) bool {
	if t.Variant != o.Variant {
		return false
	}
	if t.Factor != o.Factor {
		return false
	}
	if len(t.Delta) != len(o.Delta) {
		return false
	}
	if len(t.Index) != len(o.Index) {
		return false
	}
	for i, h := range t.Index {
		if !t.arena.Identical(h, o.Index[i]) {
			return false
		}
	}
	return true
}

// Deltas returns the delta pairs ordered by the identity of their first index.
func (t *Term) Deltas() [][2]op.Handle {
	ds := make([][2]op.Handle, 0, len(t.Delta))
	for k, v := range t.Delta {
		ds = append(ds, [2]op.Handle{k, v})
	}
	slices.SortFunc(ds, func(a, b [2]op.Handle) int {
		return cmp.Compare(t.arena.At(a[0]).ID, t.arena.At(b[0]).ID)
	})
	return ds
}

// Print writes t in a human readable form.
func (t *Term) Print(w io.Writer, indent string) {
	fmt.Fprintf(w, "%s%s\n", indent, t)
}

func (t *Term) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(prefac(t.Factor))
	b.WriteString(") ")
	if v, ok := t.Variant.(CIDerivative); ok {
		b.WriteString(v.CI)
		b.WriteString(" ")
	}
	b.WriteString(t.indexStr())
	for _, d := range t.Deltas() {
		fmt.Fprintf(&b, " <%s/%s>", t.arena.Str(d[0]), t.arena.Str(d[1]))
	}
	return b.String()
}

func (t *Term) indexStr() string {
	return strs(t.arena, t.Index)
}

func strs(arena *op.Arena, hs []op.Handle) string {
	ss := make([]string, 0, len(hs))
	for _, h := range hs {
		ss = append(ss, arena.Str(h))
	}
	return "[" + strings.Join(ss, " ") + "]"
}

// prefac formats a factor such that it is always a floating point literal.
func prefac(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
