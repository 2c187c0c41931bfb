// Package toolxml renders Galaxy tool descriptors for plugin actions and
// for the built-in import and export tools.
package toolxml

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const indent = "   "

// Attr is one attribute of a Node. Attributes keep insertion order.
type Attr struct {
	Name  string
	Value string
}

// Node is an XML element with ordered attributes, optional text and
// child elements.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// New creates an element. attrs are name/value pairs.
func New(name string, attrs ...string) *Node {
	n := &Node{Name: name}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Set(attrs[i], attrs[i+1])
	}
	return n
}

// NewText creates an element holding only text.
func NewText(name, text string, attrs ...string) *Node {
	n := New(name, attrs...)
	n.Text = text
	return n
}

// Set replaces the attribute or appends it.
func (n *Node) Set(name, value string) *Node {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return n
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
	return n
}

// Get returns the attribute value.
func (n *Node) Get(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Append adds child elements, skipping nils.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// Find returns the first direct child with the given element name.
func (n *Node) Find(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindAll returns every direct child with the given element name.
func (n *Node) FindAll(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

// WriteTo writes the document: an XML declaration followed by the element
// tree indented three spaces per level. Elements holding only text are
// written on one line; empty elements are self-closing.
func (n *Node) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	cw.WriteString(`<?xml version="1.0" ?>` + "\n")
	n.write(cw, 0)
	if cw.err == nil {
		cw.err = cw.w.(*bufio.Writer).Flush()
	}
	return cw.n, cw.err
}

func (n *Node) write(w *countingWriter, depth int) {
	pad := strings.Repeat(indent, depth)
	w.WriteString(pad + "<" + n.Name)
	for _, a := range n.Attrs {
		w.WriteString(" " + a.Name + `="` + attrEscaper.Replace(a.Value) + `"`)
	}
	switch {
	case len(n.Children) == 0 && n.Text == "":
		w.WriteString("/>\n")
	case len(n.Children) == 0:
		w.WriteString(">" + textEscaper.Replace(n.Text) + "</" + n.Name + ">\n")
	default:
		w.WriteString(">\n")
		if n.Text != "" {
			w.WriteString(pad + indent + textEscaper.Replace(n.Text) + "\n")
		}
		for _, c := range n.Children {
			c.write(w, depth+1)
		}
		w.WriteString(pad + "</" + n.Name + ">\n")
	}
}

// String renders the document.
func (n *Node) String() string {
	var b strings.Builder
	n.WriteTo(&b)
	return b.String()
}

// WriteFile writes the document to path.
func (n *Node) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := n.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) WriteString(s string) {
	if c.err != nil {
		return
	}
	k, err := io.WriteString(c.w, s)
	c.n += int64(k)
	c.err = err
}
