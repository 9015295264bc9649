// Package gamma emits the tasks that compute gamma tensors, the intermediates that collect reduced density matrix terms.
package gamma

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/wickgen"
	"github.com/fumin/wickgen/diagram"
	"github.com/fumin/wickgen/op"
	"github.com/fumin/wickgen/out"
)

// Gamma is an intermediate tensor that accumulates reduced density matrix terms.
type Gamma struct {
	Name string
	// Target holds the indices of the gamma tensor, fastest varying first.
	Target []op.Handle
	// Merged holds the indices of a tensor that is multiplied into every term and summed over, if any.
	Merged      []op.Handle
	MergedLabel string
	Terms       []*wickgen.Term

	arena *op.Arena
}

// New returns a gamma that accumulates terms into target.
func New(arena *op.Arena, name string, terms []*wickgen.Term, target []op.Handle) *Gamma {
	return &Gamma{Name: name, Target: target, Terms: terms, arena: arena}
}

// FromResult returns the gamma of the terms of r.
// If a tensor labelled merged has only active indices, it is merged into the gamma and its indices leave the target.
// The gamma is unnamed.
func FromResult(arena *op.Arena, r diagram.Result, merged string) *Gamma {
	var hs []op.Handle
	for _, t := range r.Tensors {
		if merged == "" || t.Label != merged {
			continue
		}
		if slices.ContainsFunc(t.Index, func(h op.Handle) bool { return arena.At(h).Space != op.Active }) {
			continue
		}
		hs = t.Index
		break
	}

	target := slices.DeleteFunc(slices.Clone(r.Target), func(h op.Handle) bool {
		return slices.ContainsFunc(hs, func(m op.Handle) bool { return arena.At(m).ID == arena.At(h).ID })
	})
	g := New(arena, "", r.Terms, target)
	if len(hs) > 0 {
		g.SetMerged(hs, merged)
	}
	return g
}

// SetMerged multiplies the tensor label, indexed by hs, into every term.
// Indices of hs that are also in the target are not summed over.
func (g *Gamma) SetMerged(hs []op.Handle, label string) {
	g.Merged = hs
	g.MergedLabel = label
}

// RequiredRDM returns the labels of the density matrices the terms refer to, in the order they are passed to the task.
func (g *Gamma) RequiredRDM() []string {
	labels := make([]string, 0)
	for _, t := range g.Terms {
		if l := t.Label(); l != "" && !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}
	return g.ordered(labels, "")
}

// InTensors returns the labels of all input tensors in the order they are passed to the task.
func (g *Gamma) InTensors() []string {
	labels := g.RequiredRDM()
	if g.MergedLabel != "" {
		labels = append(labels, g.MergedLabel)
	}
	return g.ordered(labels, g.MergedLabel)
}

// ordered sorts labels by their position among the inputs of a task.
func (g *Gamma) ordered(labels []string, merged string) []string {
	inlab := wickgen.MapInTensors(labels, merged)
	sorted := make([]string, len(inlab))
	for label, in := range inlab {
		var k int
		if _, err := fmt.Sscanf(in, "in(%d)", &k); err != nil {
			panic(fmt.Sprintf("%+v", errors.Wrap(err, in)))
		}
		sorted[k] = label
	}
	return sorted
}

// CI returns the name of the CI index the gamma runs over, or "" if the terms are not CI derivatives.
func (g *Gamma) CI() (string, error) {
	var ci string
	for i, t := range g.Terms {
		var c string
		if v, ok := t.Variant.(wickgen.CIDerivative); ok {
			c = v.CI
		}
		if i > 0 && c != ci {
			return "", errors.Errorf("mixed variants %s and %s in %s", g.Terms[0], t, g.Name)
		}
		ci = c
	}
	return ci, nil
}

// Key returns a string that is equal for two gammas if and only if they compute the same tensor up to the naming of indices.
func (g *Gamma) Key() string {
	ids := make(map[int]int)
	num := func(h op.Handle) string {
		id := g.arena.At(h).ID
		if _, ok := ids[id]; !ok {
			ids[id] = len(ids)
		}
		return strconv.Itoa(ids[id])
	}
	var b strings.Builder
	for _, h := range g.Target {
		b.WriteString(g.arena.At(h).Space.Code() + num(h) + " ")
	}
	b.WriteString("|")
	if g.MergedLabel != "" {
		b.WriteString(g.MergedLabel + "(")
		for _, h := range g.Merged {
			b.WriteString(g.arena.At(h).Space.Code() + num(h) + " ")
		}
		b.WriteString(")")
	}
	for _, t := range g.Terms {
		b.WriteString("|" + strconv.FormatFloat(t.Factor, 'g', -1, 64))
		if v, ok := t.Variant.(wickgen.CIDerivative); ok {
			b.WriteString(" " + v.CI)
		}
		for _, h := range t.Index {
			b.WriteString(" " + num(h))
			if g.arena.At(h).Dagger {
				b.WriteString("+")
			}
		}
		for _, d := range t.Deltas() {
			b.WriteString(" <" + num(d[0]) + "/" + num(d[1]) + ">")
		}
	}
	return b.String()
}

// Task returns the code of task n that computes g.
// With useBlas, terms that cannot be multiplied by BLAS fall back to loops.
func (g *Gamma) Task(n int, useBlas bool) (*out.OutStream, error) {
	ci, err := g.CI()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := g.check(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	in := g.InTensors()
	s := out.New()

	class := fmt.Sprintf("Task%d", n)
	ctorArgs := "std::vector<std::shared_ptr<Tensor>> t, std::array<std::shared_ptr<const IndexRange>,3> range"
	fmt.Fprintf(&s.Header, "class %s : public RDM_Task {\n", class)
	fmt.Fprintf(&s.Header, "  protected:\n")
	fmt.Fprintf(&s.Header, "    void compute_() override;\n")
	fmt.Fprintf(&s.Header, "  public:\n")
	fmt.Fprintf(&s.Header, "    %s(%s);\n", class, ctorArgs)
	fmt.Fprintf(&s.Header, "};\n\n")

	blocks := g.names(g.Target)
	if ci != "" {
		blocks = append([]string{ci}, blocks...)
	}
	fmt.Fprintf(&s.Task, "void %s::compute_() {\n", class)
	fmt.Fprintf(&s.Task, "  // %s(%s)\n", g.Name, strings.Join(blocks, ", "))
	indent := "  "
	closers := make([]string, 0)
	open := func(line string) {
		s.Task.WriteString(indent + line + "\n")
		closers = append(closers, indent+"}")
		indent += "  "
	}
	if ci != "" {
		open(fmt.Sprintf("for (auto& %s : *ci_) {", ci))
	}
	for i := len(g.Target) - 1; i >= 0; i-- {
		idx := g.arena.At(g.Target[i])
		open(fmt.Sprintf("for (auto& %s : *%s) {", idx.GenName(), idx.Space.Range()))
	}
	fmt.Fprintf(&s.Task, "%sconst size_t osize = out()->get_size(%s);\n", indent, strings.Join(blocks, ", "))
	fmt.Fprintf(&s.Task, "%sstd::unique_ptr<double[]> odata(new double[osize]);\n", indent)
	fmt.Fprintf(&s.Task, "%sstd::fill_n(odata.get(), osize, 0.0);\n", indent)

	opt := wickgen.NewGenerateOptions().Indent(indent+"  ").Index(g.Target).Merged(g.Merged, g.MergedLabel).InTensors(in).Blas(useBlas)
	for _, t := range g.Terms {
		code, err := t.Generate(opt)
		if useBlas && errors.Is(err, wickgen.ErrUnsupported) {
			code, err = t.Generate(opt.Blas(false))
		}
		if err != nil {
			return nil, errors.Wrap(err, g.Name)
		}
		fmt.Fprintf(&s.Task, "%s// %s\n", indent, t)
		fmt.Fprintf(&s.Task, "%s{\n%s%s}\n", indent, code, indent)
	}

	fmt.Fprintf(&s.Task, "%sout()->put_block(%s);\n", indent, strings.Join(slices.Concat([]string{"odata"}, blocks), ", "))
	for i := len(closers) - 1; i >= 0; i-- {
		s.Task.WriteString(closers[i] + "\n")
	}
	fmt.Fprintf(&s.Task, "}\n\n")

	fmt.Fprintf(&s.Subtask, "%s::%s(%s) {\n", class, class, ctorArgs)
	fmt.Fprintf(&s.Subtask, "  out_ = t[0];\n")
	if len(in) > 0 {
		ts := make([]string, 0, len(in))
		for i := range in {
			ts = append(ts, fmt.Sprintf("t[%d]", i+1))
		}
		fmt.Fprintf(&s.Subtask, "  in_ = {{%s}};\n", strings.Join(ts, ", "))
	}
	fmt.Fprintf(&s.Subtask, "  closed_ = range[0];\n")
	fmt.Fprintf(&s.Subtask, "  active_ = range[1];\n")
	fmt.Fprintf(&s.Subtask, "  virt_ = range[2];\n")
	fmt.Fprintf(&s.Subtask, "}\n\n")

	tensors := []string{g.Name + "_"}
	for _, l := range in {
		tensors = append(tensors, l+"_")
	}
	task := fmt.Sprintf("task%d", n)
	fmt.Fprintf(&s.Footer, "  auto %s = std::make_shared<%s>(std::vector<std::shared_ptr<Tensor>>{%s}, range);\n", task, class, strings.Join(tensors, ", "))
	fmt.Fprintf(&s.Footer, "  tasks.push_back(%s);\n", task)
	return s, nil
}

// check returns an error if a term refers to an index that is neither in the target nor merged.
func (g *Gamma) check() error {
	known := make(map[int]bool)
	for _, h := range slices.Concat(g.Target, g.Merged) {
		known[g.arena.At(h).ID] = true
	}
	for _, t := range g.Terms {
		for _, h := range t.ReducedIndex() {
			if !known[g.arena.At(h).ID] {
				return errors.Errorf("%s of %s not in %s", g.arena.Str(h), t, g.Name)
			}
		}
	}
	return nil
}

func (g *Gamma) names(hs []op.Handle) []string {
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		names = append(names, g.arena.GenName(h))
	}
	return names
}
