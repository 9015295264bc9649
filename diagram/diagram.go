// Package diagram turns products of spin-free tensor operators into reduced density matrix terms.
//
// A diagram is evaluated against a reference with a filled closed shell and an empty virtual space.
// The closed and virtual operators are contracted away, and the active operators that survive are
// handed to wickgen for normal ordering.
package diagram

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/fumin/wickgen"
	"github.com/fumin/wickgen/op"
)

// Op is a tensor multiplied by its spin-free excitation operators, e.g. T(a,a,c,c) = t_{ij}^{ab} E_{ai} E_{bj}.
type Op struct {
	Label string
	// Pairs holds the creation and annihilation space of every excitation.
	Pairs [][2]op.Space
	// Dagger takes the adjoint, which reverses the excitations and swaps each pair.
	Dagger bool
}

// NewOp parses an operator whose first half of spaces are creation operators and second half annihilation operators.
// The k-th creation operator pairs with the k-th annihilation operator.
func NewOp(label string, spaces ...string) (Op, error) {
	if len(spaces)%2 != 0 {
		return Op{}, errors.Errorf("odd number of spaces %#v", spaces)
	}
	o := Op{Label: label}
	half := len(spaces) / 2
	for i := 0; i < half; i++ {
		cre, err := op.ParseSpace(spaces[i])
		if err != nil {
			return Op{}, errors.Wrap(err, "")
		}
		ann, err := op.ParseSpace(spaces[half+i])
		if err != nil {
			return Op{}, errors.Wrap(err, "")
		}
		o.Pairs = append(o.Pairs, [2]op.Space{cre, ann})
	}
	return o, nil
}

// MustOp is like NewOp but panics on error.
func MustOp(label string, spaces ...string) Op {
	o, err := NewOp(label, spaces...)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return o
}

// Excitations returns the pairs in the order they act, with the adjoint applied.
func (o Op) Excitations() [][2]op.Space {
	if !o.Dagger {
		return o.Pairs
	}
	pairs := make([][2]op.Space, 0, len(o.Pairs))
	for i := len(o.Pairs) - 1; i >= 0; i-- {
		p := o.Pairs[i]
		pairs = append(pairs, [2]op.Space{p[1], p[0]})
	}
	return pairs
}

func (o Op) String() string {
	codes := make([]string, 0, 2*len(o.Pairs))
	for _, p := range o.Pairs {
		codes = append(codes, p[0].Code())
	}
	for _, p := range o.Pairs {
		codes = append(codes, p[1].Code())
	}
	s := o.Label
	if o.Dagger {
		s += "+"
	}
	return s + "(" + strings.Join(codes, ",") + ")"
}

// Diagram is a product of operators.
type Diagram struct {
	Ops    []Op
	Factor float64
}

// NewDiagram returns the product of ops with unit factor.
func NewDiagram(ops ...Op) Diagram {
	return Diagram{Ops: ops, Factor: 1}
}

func (d Diagram) String() string {
	ss := make([]string, 0, len(d.Ops))
	for _, o := range d.Ops {
		ss = append(ss, o.String())
	}
	return fmt.Sprintf("(%g) %s", d.Factor, strings.Join(ss, " "))
}

var resolved = []op.Space{op.Closed, op.Active, op.Virtual}

// Expand replaces every general space by each of the closed, active and virtual spaces.
func (d Diagram) Expand() []Diagram {
	type slot struct{ o, p, k int }
	slots := make([]slot, 0)
	for i, o := range d.Ops {
		for j, p := range o.Pairs {
			for k, s := range p {
				if s == op.General {
					slots = append(slots, slot{o: i, p: j, k: k})
				}
			}
		}
	}
	if len(slots) == 0 {
		return []Diagram{d.clone()}
	}

	lens := make([]int, len(slots))
	for i := range lens {
		lens[i] = len(resolved)
	}
	expanded := make([]Diagram, 0)
	for _, choice := range combin.Cartesian(lens) {
		e := d.clone()
		for i, sl := range slots {
			e.Ops[sl.o].Pairs[sl.p][sl.k] = resolved[choice[i]]
		}
		expanded = append(expanded, e)
	}
	return expanded
}

func (d Diagram) clone() Diagram {
	c := Diagram{Ops: make([]Op, 0, len(d.Ops)), Factor: d.Factor}
	for _, o := range d.Ops {
		o.Pairs = slices.Clone(o.Pairs)
		c.Ops = append(c.Ops, o)
	}
	return c
}

// Tensor is an operator of a diagram with its indices.
type Tensor struct {
	Label string
	// Index holds the creation and annihilation operator of every excitation in turn.
	Index []op.Handle
}

// Contraction is one full contraction of the closed and virtual operators of a diagram.
type Contraction struct {
	Diagram Diagram
	Tensors []Tensor
	// Pairs holds the contracted operators, left first.
	Pairs [][2]op.Handle
	// Target holds the surviving active operators in the order they appear in the diagram.
	Target []op.Handle
	// Term is the product of the surviving active operators, carrying the sign and spin summation of the contraction.
	Term *wickgen.Term
}

// Contract returns every full contraction of the closed and virtual operators of d.
// A closed creation operator contracts with a closed annihilation operator to its right,
// and a virtual annihilation operator with a virtual creation operator to its right.
// Each spin loop closed without active operators contributes a factor of two.
func (d Diagram) Contract(arena *op.Arena) ([]Contraction, error) {
	str := make([]op.Handle, 0)
	tensors := make([]Tensor, 0, len(d.Ops))
	for _, o := range d.Ops {
		t := Tensor{Label: o.Label}
		for _, p := range o.Excitations() {
			if p[0] == op.General || p[1] == op.General {
				return nil, errors.Errorf("unexpanded general index in %s", d)
			}
			s := arena.NewSpin()
			cre, ann := arena.New(p[0], true, s), arena.New(p[1], false, s)
			str = append(str, cre, ann)
			t.Index = append(t.Index, cre, ann)
		}
		tensors = append(tensors, t)
	}

	contractions := make([]Contraction, 0)
	for _, m := range matchings(arena, str) {
		contractions = append(contractions, d.contraction(arena, str, tensors, m))
	}
	return contractions, nil
}

func (d Diagram) contraction(arena *op.Arena, str []op.Handle, tensors []Tensor, m [][2]int) Contraction {
	c := Contraction{Diagram: d, Tensors: tensors}

	spins := newUnionFind()
	for _, h := range str {
		spins.add(arena.At(h).Spin)
	}
	contracted := make([]bool, len(str))
	order := make([]int, 0, len(str))
	for _, p := range m {
		contracted[p[0]], contracted[p[1]] = true, true
		order = append(order, p[0], p[1])
		c.Pairs = append(c.Pairs, [2]op.Handle{str[p[0]], str[p[1]]})
		spins.union(arena.At(str[p[0]]).Spin, arena.At(str[p[1]]).Spin)
	}
	for i := range str {
		if !contracted[i] {
			order = append(order, i)
		}
	}

	open := make(map[op.Spin]bool)
	active := make([]op.Handle, 0)
	for i, h := range str {
		if contracted[i] {
			continue
		}
		c.Target = append(c.Target, h)
		root := spins.find(arena.At(h).Spin)
		open[root] = true
		active = append(active, arena.WithSpin(h, root))
	}
	loops := spins.classes() - len(open)

	factor := d.Factor * parity(order)
	for range loops {
		factor *= 2
	}
	c.Term = wickgen.NewTerm(arena, active, nil, factor)
	return c
}

// matchings returns the full contractions of the closed and virtual operators of str, as pairs of positions.
func matchings(arena *op.Arena, str []op.Handle) [][][2]int {
	used := make([]bool, len(str))
	out := make([][][2]int, 0)
	var rec func(cur [][2]int)
	rec = func(cur [][2]int) {
		i := -1
		for k, h := range str {
			if !used[k] && arena.At(h).Space != op.Active {
				i = k
				break
			}
		}
		if i < 0 {
			out = append(out, slices.Clone(cur))
			return
		}

		left := arena.At(str[i])
		// The leftmost operator must be the one that is to the left in its contraction.
		if (left.Space == op.Closed) != left.Dagger {
			return
		}
		used[i] = true
		for j := i + 1; j < len(str); j++ {
			right := arena.At(str[j])
			if used[j] || right.Space != left.Space || right.Dagger == left.Dagger {
				continue
			}
			used[j] = true
			rec(append(cur, [2]int{i, j}))
			used[j] = false
		}
		used[i] = false
	}
	rec(nil)
	return out
}

// parity returns the sign of the permutation order.
func parity(order []int) float64 {
	var inversions int
	for i := range order {
		for j := i + 1; j < len(order); j++ {
			if order[i] > order[j] {
				inversions++
			}
		}
	}
	if inversions%2 == 1 {
		return -1
	}
	return 1
}

type unionFind struct {
	parent map[op.Spin]op.Spin
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[op.Spin]op.Spin)}
}

func (u *unionFind) add(s op.Spin) {
	if _, ok := u.parent[s]; !ok {
		u.parent[s] = s
	}
}

func (u *unionFind) find(s op.Spin) op.Spin {
	for u.parent[s] != s {
		s = u.parent[s]
	}
	return s
}

// union joins the classes of a and b, keeping the smaller root.
func (u *unionFind) union(a, b op.Spin) {
	ra, rb := u.find(a), u.find(b)
	switch {
	case ra < rb:
		u.parent[rb] = ra
	case rb < ra:
		u.parent[ra] = rb
	}
}

func (u *unionFind) classes() int {
	var n int
	for s, p := range u.parent {
		if s == p {
			n++
		}
	}
	return n
}
