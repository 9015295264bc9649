package diagram

import (
	"flag"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fumin/wickgen/op"
)

func TestNewOp(t *testing.T) {
	t.Parallel()
	o, err := NewOp("T", "a", "a", "c", "c")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	want := [][2]op.Space{{op.Virtual, op.Closed}, {op.Virtual, op.Closed}}
	if diff := cmp.Diff(want, o.Pairs); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if o.String() != "T(a,a,c,c)" {
		t.Fatalf("%s", o)
	}

	o.Dagger = true
	o.Pairs[1] = [2]op.Space{op.Active, op.Closed}
	want = [][2]op.Space{{op.Closed, op.Active}, {op.Closed, op.Virtual}}
	if diff := cmp.Diff(want, o.Excitations()); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	for _, spaces := range [][]string{{"a", "c", "c"}, {"a", "q"}} {
		if _, err := NewOp("T", spaces...); err == nil {
			t.Fatalf("%#v should fail", spaces)
		}
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()
	d := NewDiagram(MustOp("f", "g", "g"), MustOp("T", "a", "x"))
	got := make([]string, 0)
	for _, e := range d.Expand() {
		got = append(got, e.String())
	}
	want := []string{
		"(1) f(c,c) T(a,x)",
		"(1) f(c,x) T(a,x)",
		"(1) f(c,a) T(a,x)",
		"(1) f(x,c) T(a,x)",
		"(1) f(x,x) T(a,x)",
		"(1) f(x,a) T(a,x)",
		"(1) f(a,c) T(a,x)",
		"(1) f(a,x) T(a,x)",
		"(1) f(a,a) T(a,x)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	// d is unchanged.
	if d.String() != "(1) f(g,g) T(a,x)" {
		t.Fatalf("%s", d)
	}
}

func TestContract(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d      Diagram
		terms  []string
		target [][]string
	}{
		// Sum over the closed shell of both spins.
		{
			d:      NewDiagram(MustOp("f", "c", "c")),
			terms:  []string{"(2.0) []"},
			target: [][]string{{}},
		},
		// The virtual space is empty.
		{
			d:     NewDiagram(MustOp("f", "a", "a")),
			terms: []string{},
		},
		{
			d:      NewDiagram(MustOp("f", "x", "x")),
			terms:  []string{"(1.0) [x0+ x1]"},
			target: [][]string{{"x0+", "x1"}},
		},
		{
			d:      NewDiagram(MustOp("f", "x", "a"), MustOp("g", "a", "x")),
			terms:  []string{"(1.0) [x0+ x3]"},
			target: [][]string{{"x0+", "x3"}},
		},
		// Two separate spin loops.
		{
			d:      NewDiagram(MustOp("f", "c", "c"), MustOp("g", "c", "c")),
			terms:  []string{"(4.0) []"},
			target: [][]string{{}},
		},
		// One spin loop through both tensors.
		{
			d:      NewDiagram(MustOp("p", "c", "a"), MustOp("q", "a", "c")),
			terms:  []string{"(2.0) []"},
			target: [][]string{{}},
		},
		{
			d:      NewDiagram(MustOp("q", "c", "x"), MustOp("p", "x", "c")),
			terms:  []string{"(1.0) [x1 x2+]"},
			target: [][]string{{"x1", "x2+"}},
		},
		// Crossing contractions.
		{
			d:      NewDiagram(MustOp("p", "c", "a"), MustOp("q", "x", "c"), MustOp("r", "a", "x")),
			terms:  []string{"(-1.0) [x2+ x5]"},
			target: [][]string{{"x2+", "x5"}},
		},
	}
	for _, test := range tests {
		t.Run(test.d.String(), func(t *testing.T) {
			t.Parallel()
			arena := op.NewArena()
			contractions, err := test.d.Contract(arena)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			terms := make([]string, 0)
			targets := make([][]string, 0)
			for _, c := range contractions {
				terms = append(terms, c.Term.String())
				target := make([]string, 0)
				for _, h := range c.Target {
					target = append(target, arena.Str(h))
				}
				targets = append(targets, target)
			}
			if diff := cmp.Diff(test.terms, terms); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
			if len(test.target) > 0 {
				if diff := cmp.Diff(test.target, targets); diff != "" {
					t.Fatalf("mismatch (-want +got):\n%s", diff)
				}
			}
			for _, c := range contractions {
				if len(c.Pairs)*2+len(c.Target) != countOps(c) {
					t.Fatalf("%#v", c.Pairs)
				}
			}
		})
	}
}

func countOps(c Contraction) int {
	var n int
	for _, t := range c.Tensors {
		n += len(t.Index)
	}
	return n
}

func TestContractGeneral(t *testing.T) {
	t.Parallel()
	d := NewDiagram(MustOp("f", "g", "x"))
	if _, err := d.Contract(op.NewArena()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		order []int
		sign  float64
	}{
		{order: nil, sign: 1},
		{order: []int{0, 1, 2}, sign: 1},
		{order: []int{1, 0, 2}, sign: -1},
		{order: []int{2, 0, 1}, sign: 1},
		{order: []int{0, 3, 1, 4, 2, 5}, sign: -1},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test.order), func(t *testing.T) {
			t.Parallel()
			if s := parity(test.order); s != test.sign {
				t.Fatalf("%f, expected %f", s, test.sign)
			}
		})
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	os.Exit(m.Run())
}
