package p12

import (
	"io"
	"strings"
)

// DiagnosticsHeader opens every diagnostics report.
const DiagnosticsHeader = "PKCS#12 errors:"

// Diagnostics is an ordered list of engine messages gathered while an
// operation failed. It has no size limit.
type Diagnostics []string

// Diagnoser is implemented by errors that carry engine messages, such as
// the stderr lines of an external tool.
type Diagnoser interface {
	Diagnostics() []string
}

// Add appends non-empty messages.
func (d *Diagnostics) Add(msgs ...string) {
	for _, m := range msgs {
		m = strings.TrimSpace(m)
		if m != "" {
			*d = append(*d, m)
		}
	}
}

// String joins the messages with newlines.
func (d Diagnostics) String() string {
	return strings.Join(d, "\n")
}

// WriteTo writes the header followed by one message per line.
func (d Diagnostics) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	b.WriteString(DiagnosticsHeader)
	b.WriteByte('\n')
	for _, m := range d {
		b.WriteString(m)
		b.WriteByte('\n')
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Collect drains the messages carried by err and everything it wraps.
// A Diagnoser covers its own subtree; for a chain without one, the error
// text itself becomes the only message.
func Collect(err error) Diagnostics {
	if err == nil {
		return nil
	}
	var d Diagnostics
	if !collect(err, &d) {
		d.Add(err.Error())
	}
	return d
}

func collect(err error, d *Diagnostics) bool {
	if err == nil {
		return false
	}
	if dg, ok := err.(Diagnoser); ok {
		d.Add(dg.Diagnostics()...)
		return true
	}

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		found := false
		for _, e := range u.Unwrap() {
			if collect(e, d) {
				found = true
			}
		}
		return found
	case interface{ Unwrap() error }:
		return collect(u.Unwrap(), d)
	}
	return false
}
