package diagram

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/fumin/wickgen"
	"github.com/fumin/wickgen/op"
)

// Result is a contraction together with the normal ordered terms of its active operators.
type Result struct {
	Contraction
	Terms []*wickgen.Term
}

// Equation is a sum of diagrams.
type Equation struct {
	Name     string
	Diagrams []Diagram

	arena *op.Arena
}

// NewEquation returns an equation whose indices live in a fresh arena.
func NewEquation(name string, diagrams ...Diagram) *Equation {
	return &Equation{Name: name, Diagrams: diagrams, arena: op.NewArena()}
}

// Arena returns the arena of all indices of the equation.
func (e *Equation) Arena() *op.Arena { return e.arena }

// Solve expands, contracts and normal orders every diagram.
// Contractions whose terms cancel out are dropped.
// Results are in the order of the diagrams, then their expansions, then their contractions.
func (e *Equation) Solve() ([]Result, error) {
	results := make([]Result, 0)
	for _, d := range e.Diagrams {
		for _, x := range d.Expand() {
			contractions, err := x.Contract(e.arena)
			if err != nil {
				return nil, errors.Wrap(err, "")
			}
			for _, c := range contractions {
				terms := wickgen.Dedup(wickgen.Reduce(c.Term))
				if len(terms) == 0 {
					continue
				}
				results = append(results, Result{Contraction: c, Terms: terms})
			}
		}
	}
	return results, nil
}

// Print writes every result in a human readable form.
func Print(w io.Writer, results []Result) {
	for _, r := range results {
		fmt.Fprintf(w, "%s\n", r.Diagram)
		for _, t := range r.Terms {
			t.Print(w, "  ")
		}
	}
}
