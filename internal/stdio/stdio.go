// Package stdio captures the output of each invocation stage so that, on
// failure, the error can be written first where Galaxy shows it and the
// captured output replayed after it.
package stdio

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

const (
	// MiscInfoWidth is roughly the width of Galaxy's job info panel.
	MiscInfoWidth = 37
	// TrimmedStringLen is the length of Galaxy's job info field. A line of
	// this many spaces fills the field so no captured output follows the
	// error message in it.
	TrimmedStringLen = 255
	sadFace          = ":("
)

// Padding is a full-width blank line.
var Padding = strings.Repeat(" ", TrimmedStringLen)

// swapMu serializes replacement of the process-wide os.Stdout/os.Stderr.
var swapMu sync.Mutex

// Session owns the two capture files of one invocation. Output captured by
// every stage accumulates until it is flushed.
type Session struct {
	// Stdout and Stderr receive the decorated errors and flushed output.
	Stdout io.Writer
	Stderr io.Writer

	out *os.File
	err *os.File
}

// Open creates the capture files. Callers must Close the session.
func Open() (*Session, error) {
	out, err := os.CreateTemp("", "q2galaxy-stdout-*.log")
	if err != nil {
		return nil, fmt.Errorf("create stdout capture: %w", err)
	}
	errf, err := os.CreateTemp("", "q2galaxy-stderr-*.log")
	if err != nil {
		out.Close()
		os.Remove(out.Name())
		return nil, fmt.Errorf("create stderr capture: %w", err)
	}
	return &Session{Stdout: os.Stdout, Stderr: os.Stderr, out: out, err: errf}, nil
}

// Run executes fn with os.Stdout and os.Stderr redirected to the capture
// files. fn also receives the capture files directly for output of child
// processes. The original streams are restored before Run returns. On
// error the decorated message and all captured output are written and the
// error is returned unchanged.
func (s *Session) Run(header string, fn func(stdout, stderr io.Writer) error) error {
	err := s.capture(fn)
	if err == nil {
		return nil
	}
	msg := Decorate(header, err)
	fmt.Fprintln(s.Stdout, msg)
	fmt.Fprintln(s.Stderr, msg)
	if ferr := s.Flush(); ferr != nil {
		fmt.Fprintf(s.Stderr, "could not replay captured output: %v\n", ferr)
	}
	return err
}

func (s *Session) capture(fn func(stdout, stderr io.Writer) error) (err error) {
	swapMu.Lock()
	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = s.out, s.err
	defer func() {
		os.Stdout, os.Stderr = origOut, origErr
		swapMu.Unlock()
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.out, s.err)
}

// Flush writes captured stdout to Stdout, then captured stderr to Stderr,
// and empties both captures.
func (s *Session) Flush() error {
	if err := replay(s.out, s.Stdout); err != nil {
		return err
	}
	return replay(s.err, s.Stderr)
}

func replay(f *os.File, w io.Writer) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}

// Close deletes the capture files.
func (s *Session) Close() error {
	var first error
	for _, f := range []*os.File{s.out, s.err} {
		if f == nil {
			continue
		}
		f.Close()
		if err := os.Remove(f.Name()); err != nil && first == nil && !os.IsNotExist(err) {
			first = err
		}
	}
	s.out, s.err = nil, nil
	return first
}

// Decorate formats a stage failure for Galaxy's job info field: the header
// and message wrapped at MiscInfoWidth, a full padding line, then ":(".
func Decorate(header string, err error) string {
	var lines []string
	for _, line := range strings.Split(header+err.Error(), "\n") {
		lines = append(lines, Wrap(line, MiscInfoWidth)...)
	}
	lines = append(lines, Padding, sadFace)
	return strings.Join(lines, "\n")
}

// Wrap breaks a single line into lines of at most width runes, breaking at
// spaces where possible and inside words that are too long. Blank input
// yields no lines.
func Wrap(line string, width int) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	wrapped := wrap.String(wordwrap.String(line, width), width)
	var out []string
	for _, l := range strings.Split(wrapped, "\n") {
		if l = strings.TrimRight(l, " "); l != "" {
			out = append(out, l)
		}
	}
	return out
}
