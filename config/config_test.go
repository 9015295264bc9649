package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const residual = `
name: residual
merged: f1
blas: true
db: gamma.db
diagrams:
  - ops:
      - {label: proj, spaces: [x, x, a, a]}
      - {label: f1, spaces: [g, g]}
      - {label: T, spaces: [a, a, x, x]}
  - factor: -0.5
    ops:
      - {label: proj, spaces: [x, x, a, a]}
      - {label: T, spaces: [a, x], dagger: true}
`

func TestParse(t *testing.T) {
	t.Parallel()
	c, err := Parse([]byte(residual))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if c.Name != "residual" || c.Merged != "f1" || !c.Blas || c.DB != "gamma.db" || c.Output != "" {
		t.Fatalf("%#v", c)
	}

	e, err := c.Equation()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	got := make([]string, 0)
	for _, d := range e.Diagrams {
		got = append(got, d.String())
	}
	want := []string{
		"(1) proj(x,x,a,a) f1(g,g) T(a,a,x,x)",
		"(-0.5) proj(x,x,a,a) T+(a,x)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{name: "syntax", yaml: "name: [residual"},
		{name: "no name", yaml: "diagrams: [{ops: [{label: f, spaces: [x, x]}]}]"},
		{name: "no diagrams", yaml: "name: residual"},
		{name: "no ops", yaml: "name: residual\ndiagrams: [{factor: 1}]"},
		{name: "no label", yaml: "name: residual\ndiagrams: [{ops: [{spaces: [x, x]}]}]"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(test.yaml)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	c, err := Parse([]byte("name: residual\ndiagrams: [{ops: [{label: f, spaces: [x, q]}]}]"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := c.Equation(); err == nil {
		t.Fatalf("expected error for unknown space")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	b, err := Default().Marshal()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	path := filepath.Join(t.TempDir(), "residual.yaml")
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatalf("%+v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if diff := cmp.Diff(Default(), c); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	os.Exit(m.Run())
}
