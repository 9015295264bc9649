// Package config reads the description of an equation from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/wickgen/diagram"
)

// Op is a tensor operator, e.g. {label: T, spaces: [a, a, x, x]}.
// The first half of spaces are creation operators and the second half annihilation operators.
type Op struct {
	Label  string   `yaml:"label"`
	Spaces []string `yaml:"spaces,flow"`
	Dagger bool     `yaml:"dagger,omitempty"`
}

// Diagram is a product of operators.
// A missing factor means one.
type Diagram struct {
	Factor *float64 `yaml:"factor,omitempty"`
	Ops    []Op     `yaml:"ops"`
}

// Config describes an equation and how to generate its code.
type Config struct {
	Name     string    `yaml:"name"`
	Diagrams []Diagram `yaml:"diagrams"`
	// Merged is the label of the tensor multiplied into the density matrices, e.g. the Fock operator.
	Merged string `yaml:"merged,omitempty"`
	Blas   bool   `yaml:"blas,omitempty"`
	// Output is the file the code is written to, standard output if empty.
	Output string `yaml:"output,omitempty"`
	// DB is the gamma registry, in memory if empty.
	DB string `yaml:"db,omitempty"`
}

// Default returns the residual of the first order amplitude equation projected onto a double excitation,
// <proj| f |T>, with the Fock operator merged into the density matrices.
func Default() Config {
	return Config{
		Name: "residual",
		Diagrams: []Diagram{{
			Ops: []Op{
				{Label: "proj", Spaces: []string{"x", "x", "a", "a"}},
				{Label: "f1", Spaces: []string{"g", "g"}},
				{Label: "T", Spaces: []string{"a", "a", "x", "x"}},
			},
		}},
		Merged: "f1",
	}
}

// Parse parses a YAML description.
func Parse(b []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	if err := c.validate(); err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	return c, nil
}

// Load parses the YAML description at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	c, err := Parse(b)
	if err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	return c, nil
}

// Marshal returns the YAML description of c.
func (c Config) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return b, nil
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.Errorf("missing name")
	}
	if len(c.Diagrams) == 0 {
		return errors.Errorf("no diagrams in %s", c.Name)
	}
	for i, d := range c.Diagrams {
		if len(d.Ops) == 0 {
			return errors.Errorf("no operators in diagram %d", i)
		}
		for _, o := range d.Ops {
			if o.Label == "" {
				return errors.Errorf("missing label in diagram %d %#v", i, o)
			}
		}
	}
	return nil
}

// Equation builds the equation that c describes.
func (c Config) Equation() (*diagram.Equation, error) {
	diagrams := make([]diagram.Diagram, 0, len(c.Diagrams))
	for i, d := range c.Diagrams {
		ops := make([]diagram.Op, 0, len(d.Ops))
		for _, o := range d.Ops {
			dop, err := diagram.NewOp(o.Label, o.Spaces...)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("diagram %d", i))
			}
			dop.Dagger = o.Dagger
			ops = append(ops, dop)
		}
		dd := diagram.NewDiagram(ops...)
		if d.Factor != nil {
			dd.Factor = *d.Factor
		}
		diagrams = append(diagrams, dd)
	}
	return diagram.NewEquation(c.Name, diagrams...), nil
}
