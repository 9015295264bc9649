// Package out accumulates generated code in four channels that are emitted in a fixed order.
package out

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// OutStream holds generated code.
// Callers append to whichever channel the fragment belongs to.
type OutStream struct {
	// Header holds declarations.
	Header bytes.Buffer
	// Task holds the bodies of the compute tasks.
	Task bytes.Buffer
	// Subtask holds the bodies of the subtasks and their constructors.
	Subtask bytes.Buffer
	// Footer holds trailing text such as registrations.
	Footer bytes.Buffer
}

// New returns an empty stream.
func New() *OutStream {
	return &OutStream{}
}

// Merge appends every channel of o to the corresponding channel of s.
func (s *OutStream) Merge(o *OutStream) {
	s.Header.Write(o.Header.Bytes())
	s.Task.Write(o.Task.Bytes())
	s.Subtask.Write(o.Subtask.Bytes())
	s.Footer.Write(o.Footer.Bytes())
}

// WriteTo writes the channels in the order header, task, subtask, footer.
func (s *OutStream) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, b := range []*bytes.Buffer{&s.Header, &s.Task, &s.Subtask, &s.Footer} {
		n, err := w.Write(b.Bytes())
		total += int64(n)
		if err != nil {
			return total, errors.Wrap(err, "")
		}
	}
	return total, nil
}

func (s *OutStream) String() string {
	var b bytes.Buffer
	s.WriteTo(&b)
	return b.String()
}
