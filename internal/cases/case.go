// Package cases classifies action parameters into rendering cases. Each
// case knows how to describe its parameter as Galaxy form fields, how to
// encode a concrete value as a test fixture and how to explain the value to
// a user.
package cases

import (
	"errors"
	"fmt"

	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/internal/typealg"
	"github.com/me/q2galaxy/pkg/qtype"
)

// Tag identifies a case variant.
type Tag string

const (
	TagNumeric          Tag = "numeric"
	TagStr              Tag = "str"
	TagBool             Tag = "bool"
	TagMetadata         Tag = "metadata"
	TagMetadataColumn   Tag = "metadata_column"
	TagInput            Tag = "input"
	TagPrimitiveUnion   Tag = "primitive_union"
	TagSimpleCollection Tag = "simple_collection"
	TagUnsupported      Tag = "unsupported"
)

// ColumnSuffix names the column selector paired with a MetadataColumn
// parameter.
const ColumnSuffix = "_Column"

var (
	// ErrNoBranch means no union branch admits a fixture value.
	ErrNoBranch = errors.New("no union branch admits value")
	// ErrBadArgument means a fixture value has the wrong shape for its case.
	ErrBadArgument = errors.New("unexpected argument shape")
)

type noArg struct{}

// NoArg marks a case classified without a concrete argument.
var NoArg any = noArg{}

// ColumnArg is the concrete argument of a MetadataColumn case: a metadata
// source reference and a column name or Galaxy column index.
type ColumnArg struct {
	Source string
	Column string
}

// Case is the rendering bundle for one parameter.
type Case interface {
	Tag() Tag
	Name() string
	Spec() qtype.ParameterSpec
	// Advanced reports whether the field belongs in the collapsed
	// "additional options" section.
	Advanced() bool
	// Schema returns the form fields for the parameter.
	Schema() []*form.Field
	// Fixture encodes the concrete argument as test params. It returns nil
	// when the case was classified without an argument.
	Fixture() ([]*form.Fixture, error)
	// Describe is a one-line RST instruction for setting the parameter.
	Describe() string
}

// Classify picks the case for a parameter. The choice depends only on the
// spec; arg (or NoArg) is carried along for fixtures and descriptions.
func Classify(name string, spec qtype.ParameterSpec, arg any) Case {
	b := base{name: name, spec: spec, arg: arg}
	t := spec.Type
	style := typealg.CollectionStyle(t)

	if typealg.IsSemanticType(t) {
		return &InputCase{base: b, multiple: style != typealg.StyleNone}
	}

	switch style {
	case typealg.StyleNone:
		switch {
		case typealg.IsUnionAnywhere(t):
			return newPrimitiveUnionCase(b)
		case typealg.IsMetadataColumnType(t):
			return &MetadataColumnCase{base: b}
		case typealg.IsMetadataType(t):
			return &MetadataCase{base: b}
		}
		p, ok := t.(qtype.PrimitiveType)
		if !ok {
			return &UnsupportedCase{base: b}
		}
		switch p.Name {
		case qtype.Bool:
			return &BoolCase{base: b}
		case qtype.Str:
			return &StrCase{base: b}
		case qtype.Int, qtype.Float:
			return &NumericCase{base: b}
		}
		return &UnsupportedCase{base: b}
	case typealg.StyleSimple, typealg.StyleComposite:
		return newSimpleCollectionCase(b)
	case typealg.StyleMonomorphic, typealg.StyleComplex:
		return &UnsupportedCase{base: b}
	}
	panic(fmt.Sprintf("cases: unhandled collection style %s", style))
}

// FromSignature classifies the inputs then the parameters of sig. With a
// nil args map every parameter is classified without an argument;
// otherwise parameters missing from args are skipped.
func FromSignature(sig qtype.Signature, args map[string]any) []Case {
	var out []Case
	for _, group := range [][]qtype.Param{sig.Inputs, sig.Parameters} {
		for _, p := range group {
			arg := NoArg
			if args != nil {
				v, ok := args[p.Name]
				if !ok {
					continue
				}
				arg = v
			}
			out = append(out, Classify(p.Name, p.Spec, arg))
		}
	}
	return out
}

// AdvancedTitle is the title of the collapsed section holding parameters
// that have defaults.
const AdvancedTitle = "Click here for additional options"

// Form renders the input form of sig: the fields of cases without a
// default, then a collapsed section with the rest.
func Form(sig qtype.Signature) []*form.Field {
	var fields, advanced []*form.Field
	for _, c := range FromSignature(sig, nil) {
		if c.Advanced() {
			advanced = append(advanced, c.Schema()...)
		} else {
			fields = append(fields, c.Schema()...)
		}
	}
	if len(advanced) > 0 {
		fields = append(fields, &form.Field{
			Name:     galaxy.UIVar("section", "extra_opts"),
			Kind:     form.KindSection,
			Title:    AdvancedTitle,
			Advanced: true,
			Children: advanced,
		})
	}
	return fields
}

type base struct {
	name string
	spec qtype.ParameterSpec
	arg  any
}

func (b base) Name() string              { return b.name }
func (b base) Spec() qtype.ParameterSpec { return b.spec }
func (b base) Advanced() bool            { return b.spec.HasDefault() }

func (b base) hasArg() bool {
	return b.arg != NoArg
}

func (b base) help() string {
	var h string
	switch {
	case !b.spec.HasDefault():
		h = "[required]"
	case b.spec.Default == nil:
		h = "[optional]"
	default:
		if v, ok := b.spec.Default.(bool); ok {
			h = "[default: " + yesNo(v) + "]"
		} else {
			h = "[default: " + qtype.Repr(b.spec.Default) + "]"
		}
	}
	if b.spec.Description != "" {
		h += "  " + b.spec.Description
	}
	return h
}

func (b base) label() string {
	return b.name + ": " + b.spec.Type.String()
}

// decorate sets the label, help, requiredness and default of a field.
func (b base) decorate(f *form.Field) {
	f.Label = b.label()
	f.Help = b.help()
	b.applyDefault(f)
}

func (b base) applyDefault(f *form.Field) {
	f.Required = !b.spec.HasDefault()
	f.Advanced = b.spec.HasDefault()
	if !b.spec.HasDefault() {
		return
	}
	if b.spec.Default == nil {
		f.Optional = true
		return
	}
	f.Value = form.StringPtr(qtype.Text(b.spec.Default))
}

// describe renders the instruction for a value shown as text.
func (b base) describe(text string) string {
	if b.isDefault() {
		return fmt.Sprintf("Leave *%q* as its default value of ``%s``", b.name, qtype.Repr(b.spec.Default))
	}
	if !b.hasArg() {
		return fmt.Sprintf("Provide a value for *%q*", b.name)
	}
	return fmt.Sprintf("Set *%q* to ``%s``", b.name, text)
}

func (b base) isDefault() bool {
	if !b.spec.HasDefault() {
		return false
	}
	return !b.hasArg() || qtype.ValuesEqual(b.arg, b.spec.Default)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
