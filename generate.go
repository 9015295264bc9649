package wickgen

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/wickgen/op"
)

// ErrUnsupported is returned when code is requested for a configuration that cannot be generated.
// Callers may retry with a different configuration, e.g. without BLAS.
var ErrUnsupported = errors.New("unsupported")

// GenerateOptions are options for generating the code of a term.
type GenerateOptions struct {
	indent      string
	tag         string
	index       []op.Handle
	merged      []op.Handle
	mergedLabel string
	inTensors   []string
	useBlas     bool
}

// NewGenerateOptions returns the default options.
func NewGenerateOptions() GenerateOptions {
	opt := GenerateOptions{}
	opt.indent = "  "
	opt.tag = "i"
	return opt
}

// Indent sets the indentation of the generated code.
func (opt GenerateOptions) Indent(s string) GenerateOptions {
	opt.indent = s
	return opt
}

// Tag sets the prefix of loop variables.
func (opt GenerateOptions) Tag(s string) GenerateOptions {
	opt.tag = s
	return opt
}

// Index sets the indices of the target tensor, fastest varying first.
func (opt GenerateOptions) Index(hs []op.Handle) GenerateOptions {
	opt.index = hs
	return opt
}

// Merged sets the tensor that is multiplied into the term in the same loop, e.g. the Fock operator.
func (opt GenerateOptions) Merged(hs []op.Handle, label string) GenerateOptions {
	opt.merged = hs
	opt.mergedLabel = label
	return opt
}

// InTensors sets the labels of the input tensors.
func (opt GenerateOptions) InTensors(labels []string) GenerateOptions {
	opt.inTensors = labels
	return opt
}

// Blas sets whether the merged multiplication should be a BLAS call.
func (opt GenerateOptions) Blas(b bool) GenerateOptions {
	opt.useBlas = b
	return opt
}

// Generate returns the code that accumulates t into the target block odata.
func (t *Term) Generate(opt GenerateOptions) (string, error) {
	g := newGenerator(t, opt)
	g.check()

	var err error
	switch {
	case len(opt.merged) == 0:
		err = g.generateNotMerged()
	case opt.useBlas:
		err = g.generateBlas()
	default:
		err = g.generateMerged()
	}
	if err != nil {
		return "", errors.Wrap(err, t.String())
	}
	return g.b.String(), nil
}

// Label returns the label of the density matrix tensor of t.
// The rank zero density matrix of the reference is a scalar and has no label.
func (t *Term) Label() string {
	switch v := t.Variant.(type) {
	case Standard:
		if t.Rank() == 0 {
			return ""
		}
		return fmt.Sprintf("rdm%d", t.Rank())
	case CIDerivative:
		return fmt.Sprintf("rdm%dderiv", t.Rank())
	default:
		panic(fmt.Sprintf("unknown variant %#v", v))
	}
}

// MapInTensors maps input tensor labels to the positional names in(0), in(1)...
// Density matrices come first in ascending rank, the merged tensor comes last.
func MapInTensors(inTensors []string, merged string) map[string]string {
	type rdm struct {
		label string
		rank  int
		deriv bool
	}
	rdms := make([]rdm, 0)
	others := make([]string, 0)
	for _, s := range inTensors {
		rank, deriv, ok := parseRDMLabel(s)
		switch {
		case ok && rank == 0 && !deriv:
			// Scalar.
		case ok:
			rdms = append(rdms, rdm{label: s, rank: rank, deriv: deriv})
		case s != merged:
			others = append(others, s)
		}
	}
	slices.SortStableFunc(rdms, func(a, b rdm) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		switch {
		case a.deriv == b.deriv:
			return 0
		case b.deriv:
			return -1
		default:
			return 1
		}
	})

	inlab := make(map[string]string)
	add := func(label string) {
		if _, ok := inlab[label]; ok {
			return
		}
		inlab[label] = fmt.Sprintf("in(%d)", len(inlab))
	}
	for _, r := range rdms {
		add(r.label)
	}
	for _, s := range others {
		add(s)
	}
	if merged != "" {
		add(merged)
	}
	return inlab
}

func parseRDMLabel(s string) (int, bool, bool) {
	if !strings.HasPrefix(s, "rdm") {
		return -1, false, false
	}
	s = strings.TrimPrefix(s, "rdm")
	deriv := strings.HasSuffix(s, "deriv")
	s = strings.TrimSuffix(s, "deriv")
	rank, err := strconv.Atoi(s)
	if err != nil {
		return -1, false, false
	}
	return rank, deriv, true
}

type generator struct {
	t     *Term
	arena *op.Arena
	opt   GenerateOptions
	inlab map[string]string

	// sub maps the ID of the first index of a delta to its partner.
	sub map[int]op.Handle

	b      strings.Builder
	indent string
	close  []string
}

func newGenerator(t *Term, opt GenerateOptions) *generator {
	g := &generator{t: t, arena: t.arena, opt: opt, indent: opt.indent}
	g.inlab = MapInTensors(opt.inTensors, opt.mergedLabel)
	g.sub = make(map[int]op.Handle)
	for k, v := range t.Delta {
		g.sub[t.arena.At(k).ID] = v
	}
	return g
}

// check panics if t refers to an index that the target and merged tensors do not provide.
func (g *generator) check() {
	known := slices.Concat(g.opt.index, g.opt.merged)
	for _, h := range g.t.Index {
		if !g.contains(known, h) {
			panic(fmt.Sprintf("%s is neither in target %s nor merged %s: %s", g.arena.Str(h), strs(g.arena, g.opt.index), strs(g.arena, g.opt.merged), g.t))
		}
	}
	for _, d := range g.t.Deltas() {
		if !g.contains(known, d[0]) || !g.contains(known, d[1]) {
			panic(fmt.Sprintf("delta %s/%s not in target %s: %s", g.arena.Str(d[0]), g.arena.Str(d[1]), strs(g.arena, g.opt.index), g.t))
		}
	}
}

func (g *generator) contains(hs []op.Handle, h op.Handle) bool {
	id := g.arena.At(h).ID
	return slices.ContainsFunc(hs, func(x op.Handle) bool { return g.arena.At(x).ID == id })
}

func (g *generator) generateNotMerged() error {
	lab := g.t.Label()
	if len(g.t.Delta) > 0 {
		g.makeDeltaIf()
	}
	if lab != "" {
		if err := g.makeGetBlock("i0", lab); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if len(g.t.Delta) == 0 && lab != "" {
		if s, ok := g.makeSortIndices(); ok {
			g.b.WriteString(s)
			g.closeAll()
			return nil
		}
	}

	g.makeSortLoops(g.freeLoops(nil))
	line := g.makeOdata() + " += (" + prefac(g.t.Factor) + ")"
	if lab != "" {
		line += " * i0data[" + g.rdmElem() + "]"
	}
	g.b.WriteString(g.indent + line + ";\n")
	g.closeAll()
	return nil
}

func (g *generator) generateMerged() error {
	summed := g.summed()
	g.makeMergedLoops(summed)
	if len(g.t.Delta) > 0 {
		g.makeDeltaIf()
	}
	if lab := g.t.Label(); lab != "" {
		if err := g.makeGetBlock("i0", lab); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if err := g.makeGetBlock("f", g.opt.mergedLabel); err != nil {
		return errors.Wrap(err, "")
	}

	g.makeSortLoops(g.freeLoops(summed))
	g.b.WriteString(g.indent + g.makeOdata() + g.multiplyMerge() + ";\n")
	g.closeAll()
	return nil
}

// summed returns the merged indices that are not in the target, and hence are summed over.
func (g *generator) summed() []op.Handle {
	summed := make([]op.Handle, 0, len(g.opt.merged))
	for _, h := range g.opt.merged {
		if !g.contains(g.opt.index, h) {
			summed = append(summed, h)
		}
	}
	return summed
}

// open writes line and indents everything until the matching close.
func (g *generator) open(line string) {
	g.b.WriteString(g.indent + line + "\n")
	g.close = append(g.close, g.indent+"}")
	g.indent += "  "
}

func (g *generator) closeAll() {
	for i := len(g.close) - 1; i >= 0; i-- {
		g.b.WriteString(g.close[i] + "\n")
	}
	g.close = g.close[:0]
	g.indent = g.opt.indent
}

// makeDeltaIf guards the following code such that it runs only if the blocks of every delta pair coincide.
func (g *generator) makeDeltaIf() {
	conds := make([]string, 0, len(g.t.Delta))
	for _, d := range g.t.Deltas() {
		conds = append(conds, g.arena.GenName(d[0])+" == "+g.arena.GenName(d[1]))
	}
	g.open("if (" + strings.Join(conds, " && ") + ") {")
}

// makeMergedLoops loops over the blocks of the summed indices.
func (g *generator) makeMergedLoops(summed []op.Handle) {
	for _, h := range summed {
		idx := g.arena.At(h)
		g.open(fmt.Sprintf("for (auto& %s : *%s) {", idx.GenName(), idx.Space.Range()))
	}
}

// makeGetBlock retrieves the block of the input tensor lab, indexed by the blocks of the tensor's own indices.
func (g *generator) makeGetBlock(tag, lab string) error {
	in, ok := g.inlab[lab]
	if !ok {
		return errors.Errorf("tensor %s not among inputs %#v", lab, g.opt.inTensors)
	}

	var names []string
	switch tag {
	case "f":
		names = g.names(g.opt.merged)
	default:
		names = g.rdmNames()
	}
	g.b.WriteString(fmt.Sprintf("%sstd::unique_ptr<double[]> %sdata = %s->get_block(%s);\n", g.indent, tag, in, strings.Join(names, ", ")))
	return nil
}

// makeSortIndices permutes the density matrix block into the target block in a single call.
// It fails if the factor is not a simple fraction.
func (g *generator) makeSortIndices() (string, bool) {
	num, den, ok := fraction(g.t.Factor)
	if !ok {
		return "", false
	}

	rdm := g.rdmIDs()
	target := g.targetIDs()
	if len(rdm) != len(target) {
		panic(fmt.Sprintf("target %s is not a permutation of %s", strs(g.arena, g.opt.index), g.t))
	}
	args := make([]string, 0, len(target)+4)
	for _, id := range target {
		pos := slices.Index(rdm, id)
		if pos < 0 {
			panic(fmt.Sprintf("target %s is not a permutation of %s", strs(g.arena, g.opt.index), g.t))
		}
		args = append(args, strconv.Itoa(pos))
	}
	args = append(args, "1", "1", strconv.Itoa(num), strconv.Itoa(den))

	sizes := make([]string, 0, len(rdm))
	for _, n := range g.rdmNames() {
		sizes = append(sizes, n+".size()")
	}
	return fmt.Sprintf("%ssort_indices<%s>(i0data, odata, %s);\n", g.indent, strings.Join(args, ","), strings.Join(sizes, ", ")), true
}

// makeSortLoops loops over the elements of hs, the last index outermost.
func (g *generator) makeSortLoops(hs []op.Handle) {
	for i := len(hs) - 1; i >= 0; i-- {
		n := g.arena.GenName(hs[i])
		v := g.opt.tag + n
		g.open(fmt.Sprintf("for (int %s = 0; %s != %s.size(); ++%s) {", v, v, n, v))
	}
	if ci, ok := g.ci(); ok {
		v := g.opt.tag + ci
		g.open(fmt.Sprintf("for (int %s = 0; %s != %s.size(); ++%s) {", v, v, ci, v))
	}
}

// freeLoops returns the target and summed indices that need an element loop, i.e. all but the first index of every delta.
func (g *generator) freeLoops(summed []op.Handle) []op.Handle {
	loops := make([]op.Handle, 0, len(g.opt.index)+len(summed))
	for _, h := range slices.Concat(g.opt.index, summed) {
		if _, ok := g.sub[g.arena.At(h).ID]; ok {
			continue
		}
		loops = append(loops, h)
	}
	return loops
}

// makeOdata returns the element of the target block.
func (g *generator) makeOdata() string {
	vars, sizes := g.varsSizes(g.opt.index)
	if ci, ok := g.ci(); ok {
		vars = append([]string{g.opt.tag + ci}, vars...)
		sizes = append([]string{ci + ".size()"}, sizes...)
	}
	return "odata[" + flatIndex(vars, sizes) + "]"
}

// multiplyMerge returns the right hand side of the merged accumulation.
func (g *generator) multiplyMerge() string {
	s := " += (" + prefac(g.t.Factor) + ")"
	if g.t.Label() != "" {
		s += " * i0data[" + g.rdmElem() + "]"
	}
	return s + " * " + g.fdataMult()
}

// fdataMult returns the element of the merged tensor.
func (g *generator) fdataMult() string {
	vars, sizes := g.varsSizes(g.opt.merged)
	return "fdata[" + flatIndex(vars, sizes) + "]"
}

func (g *generator) rdmElem() string {
	vars, sizes := g.varsSizes(g.t.Index)
	if ci, ok := g.ci(); ok {
		vars = append([]string{g.opt.tag + ci}, vars...)
		sizes = append([]string{ci + ".size()"}, sizes...)
	}
	return flatIndex(vars, sizes)
}

// varsSizes returns the loop variables and sizes of hs.
// The first index of a delta takes the loop variable of its partner.
func (g *generator) varsSizes(hs []op.Handle) ([]string, []string) {
	vars := make([]string, 0, len(hs))
	sizes := make([]string, 0, len(hs))
	for _, h := range hs {
		idx := g.arena.At(h)
		v := h
		if p, ok := g.sub[idx.ID]; ok {
			v = p
		}
		vars = append(vars, g.opt.tag+g.arena.GenName(v))
		sizes = append(sizes, idx.GenName()+".size()")
	}
	return vars, sizes
}

func (g *generator) ci() (string, bool) {
	switch v := g.t.Variant.(type) {
	case Standard:
		return "", false
	case CIDerivative:
		return v.CI, true
	default:
		panic(fmt.Sprintf("unknown variant %#v", v))
	}
}

func (g *generator) names(hs []op.Handle) []string {
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		names = append(names, g.arena.GenName(h))
	}
	return names
}

// rdmNames returns the block names of the density matrix, the CI index first.
func (g *generator) rdmNames() []string {
	names := g.names(g.t.Index)
	if ci, ok := g.ci(); ok {
		names = append([]string{ci}, names...)
	}
	return names
}

func (g *generator) rdmIDs() []int {
	ids := make([]int, 0, len(g.t.Index)+1)
	if _, ok := g.ci(); ok {
		ids = append(ids, -1)
	}
	for _, h := range g.t.Index {
		ids = append(ids, g.arena.At(h).ID)
	}
	return ids
}

func (g *generator) targetIDs() []int {
	ids := make([]int, 0, len(g.opt.index)+1)
	if _, ok := g.ci(); ok {
		ids = append(ids, -1)
	}
	for _, h := range g.opt.index {
		ids = append(ids, g.arena.At(h).ID)
	}
	return ids
}

// flatIndex returns the column-major offset v0 + s0*(v1 + s1*(v2 ...)).
func flatIndex(vars, sizes []string) string {
	if len(vars) == 0 {
		return "0"
	}
	s := vars[len(vars)-1]
	for i := len(vars) - 2; i >= 0; i-- {
		s = vars[i] + "+" + sizes[i] + "*(" + s + ")"
	}
	return s
}

// fraction returns num/den equal to f, with a small denominator.
func fraction(f float64) (int, int, bool) {
	const maxDen = 64
	for den := 1; den <= maxDen; den++ {
		num := math.Round(f * float64(den))
		if math.Abs(num/float64(den)-f) < 1e-12 && math.Abs(num) < math.MaxInt32 {
			return int(num), den, true
		}
	}
	return 0, 0, false
}
