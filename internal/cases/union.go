package cases

import (
	"fmt"
	"strings"

	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/internal/typealg"
	"github.com/me/q2galaxy/pkg/qtype"
)

// branch is one selectable alternative of a primitive union. A literal
// branch admits exactly one value; an open branch admits its member type.
type branch struct {
	key     string
	member  qtype.Type
	literal any
	isLit   bool
}

func (b branch) admits(v any) bool {
	if b.isLit {
		if b.member == nil {
			return v == nil
		}
		return qtype.Contains(b.member, v) && qtype.ValuesEqual(b.literal, v)
	}
	return qtype.Contains(b.member, v)
}

// PrimitiveUnionCase renders a union of primitives (or a predicate union)
// as a select of literal choices plus "Provide a value" branches for the
// open-ended members.
type PrimitiveUnionCase struct {
	base
	members  []qtype.Type
	open     []qtype.Type
	branches []branch
}

func newPrimitiveUnionCase(b base) *PrimitiveUnionCase {
	c := &PrimitiveUnionCase{base: b, members: typealg.UnpackUnion(b.spec.Type)}

	for _, t := range c.members {
		p, ok := t.(qtype.PrimitiveType)
		if !ok {
			c.branches = append(c.branches, branch{key: sanitize(t), member: t})
			continue
		}
		switch pred := p.Predicate.(type) {
		case qtype.Choices:
			for _, v := range pred.Values {
				c.branches = append(c.branches, branch{
					key: galaxy.EscValue(v), member: p, literal: v, isLit: true,
				})
			}
			continue
		}
		if p.Name == qtype.Bool {
			for _, v := range []any{true, false} {
				c.branches = append(c.branches, branch{
					key: galaxy.EscValue(v), member: p, literal: v, isLit: true,
				})
			}
			continue
		}
		c.branches = append(c.branches, branch{key: sanitize(p), member: p})
		if isOpen(p) {
			c.open = append(c.open, p)
		}
	}

	if b.spec.HasDefault() && b.spec.Default == nil {
		c.branches = append(c.branches, branch{key: noneValue, isLit: true})
	}
	return c
}

// isOpen reports whether a member needs a typed-in value rather than a
// fixed choice.
func isOpen(p qtype.PrimitiveType) bool {
	switch p.Name {
	case qtype.Str:
		return p.Predicate == nil
	case qtype.Int, qtype.Float:
		_, choices := p.Predicate.(qtype.Choices)
		return !choices
	}
	return false
}

// sanitize turns a member type into a branch selector value. Galaxy
// rewrites % to X in option values, so that is done up front.
func sanitize(t qtype.Type) string {
	return galaxy.UILiteral(galaxy.Esc(strings.ReplaceAll(t.String(), "%", "X")))
}

func (c *PrimitiveUnionCase) Tag() Tag { return TagPrimitiveUnion }

func (c *PrimitiveUnionCase) choices() []any {
	var out []any
	for _, b := range c.branches {
		if b.isLit && b.member != nil {
			out = append(out, b.literal)
		}
	}
	return out
}

func unionDisplay(v any) string {
	switch x := v.(type) {
	case string:
		return x + " (Str)"
	case bool:
		return yesNo(x) + " (Bool)"
	case int64:
		return qtype.Repr(x) + " (Int)"
	case float64:
		return qtype.Repr(x) + " (Float)"
	}
	return qtype.Text(v)
}

func (c *PrimitiveUnionCase) Schema() []*form.Field {
	var root *form.Field
	selectName := c.name
	if len(c.open) > 0 {
		selectName = galaxy.UIVar("select", "")
		root = &form.Field{
			Name:     galaxy.UIVar("conditional", c.name),
			Kind:     form.KindConditional,
			Required: !c.spec.HasDefault(),
			Advanced: c.spec.HasDefault(),
		}
	}
	sel := &form.Field{Name: selectName, Kind: form.KindSelect}

	addWhen := func(value string) {
		if root != nil {
			root.Whens = append(root.Whens, form.When{
				Value:  value,
				Fields: []*form.Field{hidden(c.name, value)},
			})
		}
	}

	placeholder := ""
	switch {
	case !c.spec.HasDefault():
		placeholder = optionRequired
	case c.spec.Default == nil:
		placeholder = optionUseDefault
	}
	if placeholder != "" {
		sel.Options = append(sel.Options, form.Option{Label: placeholder, Value: noneValue, Selected: true})
		addWhen(noneValue)
	}

	for _, choice := range c.choices() {
		value := galaxy.EscValue(choice)
		opt := form.Option{Label: unionDisplay(choice), Value: value}
		if c.spec.HasDefault() && c.spec.Default != nil && qtype.ValuesEqual(c.spec.Default, choice) &&
			qtype.Contains(c.spec.Type, choice) {
			opt.Selected = true
		}
		sel.Options = append(sel.Options, opt)
		addWhen(value)
	}

	for _, t := range c.open {
		value := sanitize(t)
		opt := form.Option{Label: fmt.Sprintf("Provide a value (%s)", t), Value: value}

		subSpec := qtype.ParameterSpec{Type: t, Default: qtype.NoDefault, Description: c.spec.Description, ViewType: c.spec.ViewType}
		if c.spec.HasDefault() && c.spec.Default != nil && qtype.Contains(t, c.spec.Default) {
			subSpec.Default = c.spec.Default
			opt.Selected = true
		}
		sel.Options = append(sel.Options, opt)

		var sub Case
		if t.(qtype.PrimitiveType).Name == qtype.Str {
			sub = &StrCase{base: base{name: c.name, spec: subSpec, arg: NoArg}}
		} else {
			sub = &NumericCase{base: base{name: c.name, spec: subSpec, arg: NoArg}}
		}
		root.Whens = append(root.Whens, form.When{Value: value, Fields: sub.Schema()})
	}

	sel.Label = c.label()
	sel.Help = c.help()
	sel.Required = !c.spec.HasDefault()
	sel.Advanced = c.spec.HasDefault()
	if len(sel.Options) < 5 && root == nil {
		sel.Display = "radio"
	}
	if !c.spec.HasDefault() {
		sel.Validators = append(sel.Validators, notNoneValidator)
	}
	singleSelected(sel)

	if root == nil {
		return []*form.Field{sel}
	}
	root.Selector = sel
	return []*form.Field{root}
}

// singleSelected keeps only the last selected option marked; the
// placeholder yields to a real default.
func singleSelected(f *form.Field) {
	last := -1
	for i, o := range f.Options {
		if o.Selected {
			last = i
		}
	}
	for i := range f.Options {
		f.Options[i].Selected = i == last
	}
}

// Branch returns the selector value of the branch that admits v.
func (c *PrimitiveUnionCase) Branch(v any) (string, error) {
	for _, b := range c.branches {
		if b.admits(v) {
			return b.key, nil
		}
	}
	return "", fmt.Errorf("%w: %s for %s (%s)", ErrNoBranch, qtype.Repr(v), c.name, c.spec.Type)
}

func (c *PrimitiveUnionCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() {
		return nil, nil
	}
	key, err := c.Branch(c.arg)
	if err != nil {
		return nil, err
	}

	value := qtype.Text(c.arg)
	switch c.arg.(type) {
	case string, bool, nil:
		value = galaxy.EscValue(c.arg)
	}

	if len(c.open) == 0 {
		return []*form.Fixture{form.Param(c.name, key)}, nil
	}
	return []*form.Fixture{{
		Kind: form.KindConditional,
		Name: galaxy.UIVar("conditional", c.name),
		Children: []*form.Fixture{
			form.Param(galaxy.UIVar("select", ""), key),
			form.Param(c.name, value),
		},
	}}, nil
}

func (c *PrimitiveUnionCase) Describe() string {
	if v, ok := c.arg.(bool); ok {
		return c.describe(yesNo(v))
	}
	return c.describe(qtype.Text(c.arg))
}
