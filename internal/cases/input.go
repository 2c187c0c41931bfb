package cases

import (
	"fmt"
	"strings"

	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/pkg/qtype"
)

// InputCase renders an artifact input as a qza data reference filtered by
// semantic type. Collections of artifacts become a multiple-select.
type InputCase struct {
	base
	multiple bool
}

func (c *InputCase) Tag() Tag { return TagInput }

// Multiple reports whether the input accepts several artifacts.
func (c *InputCase) Multiple() bool { return c.multiple }

// semanticTypes lists the concrete artifact types the input accepts.
func (c *InputCase) semanticTypes() []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range qtype.Expand(c.spec.Type) {
		s := t.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (c *InputCase) Schema() []*form.Field {
	f := &form.Field{
		Name:          c.name,
		Kind:          form.KindData,
		Formats:       []string{"qza"},
		Multiple:      c.multiple,
		SemanticTypes: c.semanticTypes(),
	}
	c.decorate(f)
	f.Value = nil
	if !c.multiple {
		f.Validators = append(f.Validators, typeValidator(f.SemanticTypes))
	}
	return []*form.Field{f}
}

func typeValidator(types []string) form.Validator {
	py := make([]string, len(types))
	js := make([]string, len(types))
	for i, t := range types {
		py[i] = qtype.Repr(t)
		js[i] = jsString(t)
	}
	return form.Validator{
		Expression: `hasattr(value.metadata, "semantic_type") and value.metadata.semantic_type in {` +
			strings.Join(py, ", ") + `}`,
		Script: `value && value.metadata && [` + strings.Join(js, ", ") +
			`].indexOf(value.metadata.semantic_type) >= 0`,
		Message: "Incompatible type",
	}
}

func (c *InputCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() || c.arg == nil {
		return nil, nil
	}
	refs, err := refList(c.arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	if !c.multiple && len(refs) > 1 {
		return nil, fmt.Errorf("%w: %s accepts a single artifact", ErrBadArgument, c.name)
	}
	f := form.Param(c.name, strings.Join(refs, ","))
	f.FType = "qza"
	return []*form.Fixture{f}, nil
}

func (c *InputCase) Describe() string {
	refs, err := refList(c.arg)
	if err != nil {
		return c.describe("")
	}
	return c.describe("#: " + strings.Join(refs, ", #: "))
}
