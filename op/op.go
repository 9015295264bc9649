// Package op implements second-quantized operator indices.
//
// Indices are immutable values owned by an Arena and addressed by a Handle.
// Many terms share the same handles, and two handles refer to the same
// operator when their IDs are equal.
package op

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// Space is the orbital space an index runs over.
type Space int

const (
	General Space = iota
	Closed
	Active
	Virtual
)

// ParseSpace parses the one-letter space codes used in operator descriptions.
// Both "a" and "v" denote the virtual space.
func ParseSpace(s string) (Space, error) {
	switch s {
	case "g":
		return General, nil
	case "c":
		return Closed, nil
	case "x":
		return Active, nil
	case "a", "v":
		return Virtual, nil
	default:
		return General, errors.Errorf("unknown space %q", s)
	}
}

// Code returns the one-letter code of the space.
func (s Space) Code() string {
	switch s {
	case Closed:
		return "c"
	case Active:
		return "x"
	case Virtual:
		return "a"
	default:
		return "g"
	}
}

// Range returns the name of the index range object of the space in generated code.
func (s Space) Range() string {
	switch s {
	case Closed:
		return "closed_"
	case Active:
		return "active_"
	case Virtual:
		return "virt_"
	default:
		panic(fmt.Sprintf("no range for space %d", s))
	}
}

// Spin is an equivalence tag of spin channels.
// A creation and an annihilation operator with the same tag form one spin-free pair.
type Spin int

// Index is a single creation or annihilation operator.
type Index struct {
	ID     int
	Dagger bool
	Spin   Spin
	Space  Space
}

// Str returns the display form of the index, e.g. "x3+".
func (idx Index) Str() string {
	s := idx.GenName()
	if idx.Dagger {
		s += "+"
	}
	return s
}

// GenName returns the variable name of the index in generated code, e.g. "x3".
func (idx Index) GenName() string {
	return idx.Space.Code() + strconv.Itoa(idx.ID)
}

// Handle addresses an Index in an Arena.
type Handle int

// Arena owns indices.
type Arena struct {
	indices  []Index
	nextID   int
	nextSpin Spin
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{indices: make([]Index, 0)}
}

// NewSpin returns a fresh spin tag.
func (a *Arena) NewSpin() Spin {
	s := a.nextSpin
	a.nextSpin++
	return s
}

// New creates an index with a fresh identity.
func (a *Arena) New(space Space, dagger bool, spin Spin) Handle {
	idx := Index{ID: a.nextID, Dagger: dagger, Spin: spin, Space: space}
	a.nextID++
	return a.add(idx)
}

// WithSpin returns a handle to an index with the same identity as h but spin tag spin.
func (a *Arena) WithSpin(h Handle, spin Spin) Handle {
	idx := a.At(h)
	if idx.Spin == spin {
		return h
	}
	idx.Spin = spin
	return a.add(idx)
}

func (a *Arena) add(idx Index) Handle {
	a.indices = append(a.indices, idx)
	return Handle(len(a.indices) - 1)
}

// At returns the index addressed by h.
func (a *Arena) At(h Handle) Index {
	if int(h) < 0 || int(h) >= len(a.indices) {
		panic(fmt.Sprintf("handle %d out of range %d", h, len(a.indices)))
	}
	return a.indices[h]
}

// Identical reports whether x and y are the same operator.
func (a *Arena) Identical(x, y Handle) bool {
	ix, iy := a.At(x), a.At(y)
	return ix.ID == iy.ID && ix.Dagger == iy.Dagger
}

// Str returns the display form of h.
func (a *Arena) Str(h Handle) string { return a.At(h).Str() }

// GenName returns the generated-code name of h.
func (a *Arena) GenName(h Handle) string { return a.At(h).GenName() }
