package wickgen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/wickgen/op"
)

// generateBlas replaces the element loops of the merged multiplication with a matrix-vector product.
// This requires that the density matrix block is a matrix whose rows are the target indices in target order,
// and whose columns are the merged indices in merged order, all of which are summed over.
func (g *generator) generateBlas() error {
	if _, ok := g.t.Variant.(Standard); !ok {
		return errors.Wrap(ErrUnsupported, "BLAS for CI derivatives")
	}
	if len(g.t.Delta) > 0 {
		return errors.Wrap(ErrUnsupported, "BLAS with deltas")
	}
	if g.t.Rank() == 0 {
		return errors.Wrap(ErrUnsupported, "BLAS for a scalar density matrix")
	}
	summed := g.summed()
	if len(summed) != len(g.opt.merged) {
		return errors.Wrap(ErrUnsupported, fmt.Sprintf("BLAS with merged indices in the target %s", strs(g.arena, g.opt.merged)))
	}
	want := slices.Concat(g.targetIDs(), g.idsOf(summed))
	if !slices.Equal(g.rdmIDs(), want) {
		return errors.Wrap(ErrUnsupported, fmt.Sprintf("BLAS with density matrix %s not ordered as target %s then merged %s", strs(g.arena, g.t.Index), strs(g.arena, g.opt.index), strs(g.arena, g.opt.merged)))
	}

	g.makeMergedLoops(summed)
	if err := g.makeGetBlock("i0", g.t.Label()); err != nil {
		return errors.Wrap(err, "")
	}
	if err := g.makeGetBlock("f", g.opt.mergedLabel); err != nil {
		return errors.Wrap(err, "")
	}
	g.b.WriteString(g.makeBlasMultiply(summed))
	g.closeAll()
	return nil
}

// makeBlasMultiply returns odata += factor * i0data * fdata as a dgemv call.
func (g *generator) makeBlasMultiply(summed []op.Handle) string {
	rows, cols := g.getDim(summed, g.opt.index)
	return fmt.Sprintf("%sdgemv_(\"N\", %s, %s, %s, i0data.get(), %s, fdata.get(), 1, 1.0, odata.get(), 1);\n", g.indent, rows, cols, prefac(g.t.Factor), rows)
}

// getDim returns the sizes of the matrix view of the density matrix block,
// with rows running over index and columns running over di.
func (g *generator) getDim(di, index []op.Handle) (string, string) {
	dim := func(hs []op.Handle) string {
		if len(hs) == 0 {
			return "1"
		}
		ss := make([]string, 0, len(hs))
		for _, n := range g.names(hs) {
			ss = append(ss, n+".size()")
		}
		return strings.Join(ss, "*")
	}
	return dim(index), dim(di)
}

func (g *generator) idsOf(hs []op.Handle) []int {
	ids := make([]int, 0, len(hs))
	for _, h := range hs {
		ids = append(ids, g.arena.At(h).ID)
	}
	return ids
}
