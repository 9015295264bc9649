package diagram_test

import (
	"fmt"
	"os"

	"github.com/fumin/wickgen/diagram"
)

func ExampleEquation() {
	// The one-electron operator over all orbitals, evaluated against the reference.
	f := diagram.MustOp("f", "g", "g")
	e := diagram.NewEquation("energy", diagram.NewDiagram(f))
	results, err := e.Solve()
	if err != nil {
		fmt.Printf("%+v\n", err)
		return
	}
	diagram.Print(os.Stdout, results)

	// Output:
	// (1) f(c,c)
	//   (2.0) []
	// (1) f(x,x)
	//   (1.0) [x8+ x9]
}
