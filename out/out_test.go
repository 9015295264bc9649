package out

import (
	"strings"
	"testing"
)

func TestMerge(t *testing.T) {
	t.Parallel()
	s := New()
	s.Footer.WriteString("f0\n")
	s.Task.WriteString("t0\n")
	s.Header.WriteString("h0\n")

	o := New()
	o.Subtask.WriteString("s1\n")
	o.Header.WriteString("h1\n")
	o.Footer.WriteString("f1\n")
	s.Merge(o)

	if got, want := s.String(), "h0\nh1\nt0\ns1\nf0\nf1\n"; got != want {
		t.Fatalf("%q, expected %q", got, want)
	}
	// o is unchanged.
	if got, want := o.String(), "h1\ns1\nf1\n"; got != want {
		t.Fatalf("%q, expected %q", got, want)
	}
}

func TestWriteTo(t *testing.T) {
	t.Parallel()
	s := New()
	s.Task.WriteString("task")
	s.Header.WriteString("header ")
	var b strings.Builder
	n, err := s.WriteTo(&b)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if n != int64(len("header task")) || b.String() != "header task" {
		t.Fatalf("%d %q", n, b.String())
	}
}
