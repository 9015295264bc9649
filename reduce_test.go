package wickgen

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fumin/wickgen/op"
)

func termStrs(terms []*Term) []string {
	ss := make([]string, 0, len(terms))
	for _, t := range terms {
		ss = append(ss, t.String())
	}
	return ss
}

func TestReduceOne(t *testing.T) {
	t.Parallel()
	p := newPairs(2)
	x0, x1, x2, x3 := p.cre[0], p.ann[0], p.cre[1], p.ann[1]
	id := func(h op.Handle) int { return p.a.At(h).ID }
	tests := []struct {
		index    []op.Handle
		done     map[int]bool
		children []string
		resolved int
	}{
		{
			index:    []op.Handle{x1, x0},
			children: []string{"(2.0) [] <x0+/x1>", "(-1.0) [x0+ x1]"},
			resolved: id(x1),
		},
		{
			index:    []op.Handle{x0, x1, x2, x3},
			children: []string{"(1.0) [x0+ x3] <x2+/x1>", "(1.0) [x0+ x2+ x3 x1]"},
			resolved: id(x1),
		},
		{
			index: []op.Handle{x1, x0, x2, x3},
			children: []string{
				"(2.0) [x2+ x3] <x0+/x1>",
				"(-1.0) [x0+ x3] <x2+/x1>",
				"(-1.0) [x0+ x2+ x3 x1]",
			},
			resolved: id(x1),
		},
		// x1 is resolved, so x3 moves to the end, where it already is.
		{
			index:    []op.Handle{x0, x1, x2, x3},
			done:     map[int]bool{id(x1): true},
			children: []string{"(1.0) [x0+ x1 x2+ x3]"},
			resolved: id(x3),
		},
	}
	for _, test := range tests {
		t.Run(p.str(test.index), func(t *testing.T) {
			t.Parallel()
			done := make(map[int]bool)
			for k, v := range test.done {
				done[k] = v
			}
			term := NewTerm(p.a, test.index, nil, 1)
			children := term.ReduceOne(done)
			if diff := cmp.Diff(test.children, termStrs(children)); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
			if !done[test.resolved] {
				t.Fatalf("%d not resolved %#v", test.resolved, done)
			}
			// The parent is untouched.
			if p.str(term.Index) != p.str(test.index) || len(term.Delta) != 0 || term.Factor != 1 {
				t.Fatalf("parent modified %s", term)
			}
		})
	}
}

func TestReduceOneRelabelsSpin(t *testing.T) {
	t.Parallel()
	p := newPairs(2)
	x0, x1, x2, x3 := p.cre[0], p.ann[0], p.cre[1], p.ann[1]
	term := NewTerm(p.a, []op.Handle{x0, x1, x2, x3}, nil, 1)
	children := term.ReduceOne(make(map[int]bool))
	c := children[0]
	// x3 now pairs with x0+.
	if p.a.At(c.Index[1]).Spin != p.a.At(x0).Spin {
		t.Fatalf("%d, expected %d", p.a.At(c.Index[1]).Spin, p.a.At(x0).Spin)
	}
	if !c.Done() {
		t.Fatalf("not done %s", c)
	}
	if p.a.At(x3).Spin == p.a.At(x0).Spin {
		t.Fatalf("original index modified")
	}
}

func TestReduce(t *testing.T) {
	t.Parallel()
	p := newPairs(2)
	x0, x1, x2, x3 := p.cre[0], p.ann[0], p.cre[1], p.ann[1]
	tests := []struct {
		index  []op.Handle
		leaves []string
	}{
		{
			index:  []op.Handle{x0, x1},
			leaves: []string{"(1.0) [x0+ x1]"},
		},
		{
			index:  []op.Handle{x1, x0},
			leaves: []string{"(2.0) [] <x0+/x1>", "(-1.0) [x0+ x1]"},
		},
		// E01 E23 = E01,23 + delta(1, 2) E03
		{
			index:  []op.Handle{x0, x1, x2, x3},
			leaves: []string{"(1.0) [x0+ x3] <x2+/x1>", "(1.0) [x2+ x3 x0+ x1]"},
		},
	}
	for _, test := range tests {
		t.Run(p.str(test.index), func(t *testing.T) {
			t.Parallel()
			term := NewTerm(p.a, test.index, nil, 1)
			leaves := Reduce(term)
			if diff := cmp.Diff(test.leaves, termStrs(leaves)); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReduceThreeExcitations(t *testing.T) {
	t.Parallel()
	p := newPairs(3)
	term := NewTerm(p.a, []op.Handle{p.cre[0], p.ann[0], p.cre[1], p.ann[1], p.cre[2], p.ann[2]}, nil, 1)
	leaves := Reduce(term)

	// Epq Ers Etu = Epq,rs,tu + dqr Eps,tu + dqt Epu,rs + dst Epq,ru + dqr dst Epu
	if len(leaves) != 5 {
		t.Fatalf("%d %v", len(leaves), termStrs(leaves))
	}
	deltas := make(map[int]int)
	for _, l := range leaves {
		if !l.Done() {
			t.Fatalf("not done %s", l)
		}
		if l.Factor != 1 {
			t.Fatalf("%s", l)
		}
		if len(l.Index)/2+len(l.Delta) != 3 {
			t.Fatalf("%s", l)
		}
		deltas[len(l.Delta)]++
	}
	if diff := cmp.Diff(map[int]int{0: 1, 1: 3, 2: 1}, deltas); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDedup(t *testing.T) {
	t.Parallel()
	p := newPairs(2)
	x0, x1, x2, x3 := p.cre[0], p.ann[0], p.cre[1], p.ann[1]
	terms := []*Term{
		NewTerm(p.a, []op.Handle{x0, x1}, nil, 1),
		NewTerm(p.a, []op.Handle{x0, x1}, nil, 1),
		NewTerm(p.a, []op.Handle{x2, x3}, nil, -1),
		NewTerm(p.a, []op.Handle{x0, x1}, nil, 1),
		NewTerm(p.a, []op.Handle{x2, x3, x0, x1}, nil, 0),
	}
	got := termStrs(Dedup(terms))
	want := []string{"(3.0) [x0+ x1]", "(-1.0) [x2+ x3]"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
