package fock

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/fumin/tensor"
)

type vRowCol struct {
	v   complex64
	row int
	col int
}

// COO is a sparse matrix in coordinate format, with elements sorted in row major order.
type COO struct {
	rows int
	cols int
	Data []vRowCol

	m map[[2]int]complex64
}

// M returns the sparse form of a dense matrix.
func M(dense [][]complex64) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]vRowCol, 0), m: make(map[[2]int]complex64)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

// FromTensor returns the sparse form of a rank 2 tensor.
func FromTensor(t *tensor.Dense) *COO {
	if len(t.Shape()) != 2 {
		panic(fmt.Sprintf("not a matrix %#v", t.Shape()))
	}
	return M(t.ToSlice2())
}

// Zeros returns a zero matrix.
func Zeros(rows, cols int) *COO {
	m := M([][]complex64{{0}})
	m.Zeros(rows, cols)
	return m
}

// Identity returns the identity matrix of size rows.
func Identity(rows int) *COO {
	m := M([][]complex64{{0}})
	m.Zeros(rows, rows)
	for i := 0; i < rows; i++ {
		m.Data = append(m.Data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

// Zeros resets m to a zero matrix of the given shape.
func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i, av := range a.Data {
		bv := b.Data[i]
		if av != bv {
			return false
		}
	}
	return true
}

// Add sets a to a + c*b.
func (a *COO) Add(c complex64, b *COO) {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("wrong dimensions %dx%d %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	clear(b.m)
	for _, v := range b.Data {
		b.m[[2]int{v.row, v.col}] = v.v
	}

	for i, av := range a.Data {
		byx := [2]int{av.row, av.col}
		bv := b.m[byx]
		delete(b.m, byx)
		a.Data[i].v = av.v + c*bv
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	for yx, bv := range b.m {
		a.Data = append(a.Data, vRowCol{v: c * bv, row: yx[0], col: yx[1]})
	}
	slices.SortFunc(a.Data, rowMajor)
	clear(b.m)
}

// Kron sets a to the Kronecker product a⊗b.
func (a *COO) Kron(b *COO) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	a.rows, a.cols = rows, cols

	prevElemNum := len(a.Data)
	for i := prevElemNum - 1; i >= 0; i-- {
		av := a.Data[i]
		a.Data[i].v = 0
		for _, bv := range b.Data {
			ky := av.row*b.rows + bv.row
			kx := av.col*b.cols + bv.col
			a.Data = append(a.Data, vRowCol{v: av.v * bv.v, row: ky, col: kx})
		}
	}

	a.Data = slices.DeleteFunc(a.Data, func(v vRowCol) bool {
		return v.v == 0
	})
	slices.SortFunc(a.Data, rowMajor)
}

func (m *COO) Dense() [][]complex64 {
	dense := make([][]complex64, m.rows)
	for i := range dense {
		dense[i] = make([]complex64, m.cols)
	}

	for _, v := range m.Data {
		dense[v.row][v.col] = v.v
	}

	return dense
}

// Tensor returns the dense tensor form of m.
func (m *COO) Tensor() *tensor.Dense {
	return tensor.T2(m.Dense())
}

func (m *COO) String() string {
	clear(m.m)
	for _, v := range m.Data {
		m.m[[2]int{v.row, v.col}] = v.v
	}

	lines := []string{}
	for i := 0; i < m.rows; i++ {
		cs := []string{}
		for j := 0; j < m.cols; j++ {
			v := m.m[[2]int{i, j}]
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		lines = append(lines, strings.Join(cs, "\t"))
	}

	clear(m.m)
	return strings.Join(lines, "\n")
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float32) string {
	// Avoid printing "-0".
	if v == 0 {
		return " 0"
	}

	s := fmt.Sprintf("%v", v)
	if v >= 0 {
		s = " " + s
	}
	return s
}
