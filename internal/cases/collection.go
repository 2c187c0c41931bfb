package cases

import (
	"fmt"
	"strings"

	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/pkg/qtype"
)

// ElementName is the field name used for the inner case of a collection.
const ElementName = "element"

// SimpleCollectionCase renders List/Set/Collection parameters as a repeat
// group holding one element field.
type SimpleCollectionCase struct {
	base
	innerSpec qtype.ParameterSpec
}

func newSimpleCollectionCase(b base) *SimpleCollectionCase {
	return &SimpleCollectionCase{
		base:      b,
		innerSpec: b.spec.Element(),
	}
}

func (c *SimpleCollectionCase) Tag() Tag { return TagSimpleCollection }

// Inner classifies the element type without an argument.
func (c *SimpleCollectionCase) Inner() Case {
	return Classify(ElementName, c.innerSpec, NoArg)
}

func (c *SimpleCollectionCase) Schema() []*form.Field {
	f := &form.Field{
		Name:     c.name,
		Kind:     form.KindRepeat,
		Title:    c.label(),
		Help:     c.help(),
		Required: !c.spec.HasDefault(),
		Advanced: c.spec.HasDefault(),
		Children: c.Inner().Schema(),
	}
	if !c.spec.HasDefault() {
		f.MinItems = 1
	}
	return []*form.Field{f}
}

// items returns the concrete elements in fixture order. Sets are already
// deduplicated.
func (c *SimpleCollectionCase) items() ([]any, error) {
	switch v := c.arg.(type) {
	case nil:
		return nil, nil
	case []any:
		if c.spec.Type.(qtype.CollectionType).Kind == qtype.SetKind {
			return qtype.NewSet(v...).Items(), nil
		}
		return v, nil
	case *qtype.Set:
		return v.Items(), nil
	}
	return nil, fmt.Errorf("%w: %s expects a collection, got %T", ErrBadArgument, c.name, c.arg)
}

func (c *SimpleCollectionCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() {
		return nil, nil
	}
	items, err := c.items()
	if err != nil {
		return nil, err
	}
	var out []*form.Fixture
	for _, item := range items {
		inner, err := Classify(ElementName, c.innerSpec, item).Fixture()
		if err != nil {
			return nil, err
		}
		out = append(out, &form.Fixture{Kind: form.KindRepeat, Name: c.name, Children: inner})
	}
	return out, nil
}

func (c *SimpleCollectionCase) Describe() string {
	items, err := c.items()
	if err != nil || !c.hasArg() {
		return c.describe("")
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = qtype.Text(item)
	}
	return c.describe(strings.Join(parts, ", "))
}
