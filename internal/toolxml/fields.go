package toolxml

import (
	"strconv"
	"strings"

	"github.com/me/q2galaxy/internal/form"
)

// Fields renders form fields as tool input elements.
func Fields(fields []*form.Field) []*Node {
	out := make([]*Node, 0, len(fields))
	for _, f := range fields {
		out = append(out, Field(f))
	}
	return out
}

// Field renders one form field.
func Field(f *form.Field) *Node {
	switch f.Kind {
	case form.KindConditional:
		n := New("conditional", "name", f.Name)
		if f.Selector != nil {
			n.Append(Field(f.Selector))
		}
		for _, w := range f.Whens {
			when := New("when", "value", w.Value)
			when.Append(Fields(w.Fields)...)
			n.Append(when)
		}
		return n
	case form.KindRepeat:
		n := New("repeat", "name", f.Name)
		setIf(n, "title", f.Title)
		setIf(n, "help", f.Help)
		if f.MinItems > 0 {
			n.Set("min", strconv.Itoa(f.MinItems))
		}
		return n.Append(Fields(f.Children)...)
	case form.KindSection:
		n := New("section", "name", f.Name)
		setIf(n, "title", f.Title)
		if !f.Advanced {
			n.Set("expanded", "true")
		}
		return n.Append(Fields(f.Children)...)
	}
	return param(f)
}

func param(f *form.Field) *Node {
	n := New("param", "name", f.Name, "type", string(f.Kind))
	setIf(n, "label", f.Label)
	setIf(n, "help", f.Help)
	if f.Value != nil {
		n.Set("value", *f.Value)
	}
	if f.Optional {
		n.Set("optional", "true")
	}
	setIf(n, "min", f.Min)
	setIf(n, "max", f.Max)
	setIf(n, "display", f.Display)
	if len(f.Formats) > 0 {
		n.Set("format", strings.Join(f.Formats, ","))
	}
	if f.Multiple {
		n.Set("multiple", "true")
	}
	setIf(n, "data_ref", f.DataRef)
	if f.UseHeaderNames {
		n.Set("use_header_names", "true")
	}
	setIf(n, "truevalue", f.TrueValue)
	setIf(n, "falsevalue", f.FalseValue)
	if f.Checked {
		n.Set("checked", "true")
	}

	for _, o := range f.Options {
		opt := NewText("option", o.Label, "value", o.Value)
		if o.Selected {
			opt.Set("selected", "true")
		}
		n.Append(opt)
	}
	if len(f.SemanticTypes) > 0 {
		opts := New("options", "options_filter_attribute", "metadata.semantic_type")
		for _, t := range f.SemanticTypes {
			opts.Append(New("filter", "type", "add_value", "value", t))
		}
		n.Append(opts)
	}
	for _, v := range f.Validators {
		n.Append(NewText("validator", v.Expression, "type", "expression", "message", v.Message))
	}
	return n
}

// Fixtures renders test fixtures as <test> children.
func Fixtures(fixtures []*form.Fixture) []*Node {
	out := make([]*Node, 0, len(fixtures))
	for _, fx := range fixtures {
		out = append(out, fixture(fx))
	}
	return out
}

func fixture(fx *form.Fixture) *Node {
	switch fx.Kind {
	case form.KindConditional:
		return New("conditional", "name", fx.Name).Append(Fixtures(fx.Children)...)
	case form.KindRepeat:
		return New("repeat", "name", fx.Name).Append(Fixtures(fx.Children)...)
	}
	n := New("param", "name", fx.Name, "value", fx.Value)
	setIf(n, "ftype", fx.FType)
	return n
}

func setIf(n *Node, name, value string) {
	if value != "" {
		n.Set(name, value)
	}
}
