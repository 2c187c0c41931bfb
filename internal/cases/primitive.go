package cases

import (
	"fmt"
	"strconv"

	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/internal/typealg"
	"github.com/me/q2galaxy/pkg/qtype"
)

func jsString(s string) string { return strconv.Quote(s) }

// NumericCase renders Int and Float parameters.
type NumericCase struct{ base }

func (c *NumericCase) Tag() Tag { return TagNumeric }

func (c *NumericCase) Schema() []*form.Field {
	p := c.spec.Type.(qtype.PrimitiveType)

	if choices, ok := p.Predicate.(qtype.Choices); ok {
		f := makeSelect(c.name, c.spec, choices.Values, strDisplay)
		c.decorate(f)
		f.Value = nil
		return []*form.Field{f}
	}

	f := &form.Field{Name: c.name, Kind: form.KindInteger}
	if p.Name == qtype.Float {
		f.Kind = form.KindFloat
	}
	c.decorate(f)
	if !c.spec.HasDefault() {
		// An explicit empty value keeps "unset" distinct from zero.
		f.Value = form.StringPtr("")
	}

	lo, hi := typealg.EffectiveRange(p)
	if lo != nil {
		f.Min = lo.String()
	}
	if hi != nil {
		f.Max = hi.String()
	}
	return []*form.Field{f}
}

func (c *NumericCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() {
		return nil, nil
	}
	value := ""
	if c.arg != nil {
		value = qtype.Text(c.arg)
	}
	return []*form.Fixture{form.Param(c.name, value)}, nil
}

func (c *NumericCase) Describe() string {
	return c.describe(qtype.Text(c.arg))
}

// StrCase renders Str parameters as free text, a select over Choices, or
// an optional conditional when the default is None.
type StrCase struct{ base }

func (c *StrCase) Tag() Tag { return TagStr }

func (c *StrCase) Schema() []*form.Field {
	p := c.spec.Type.(qtype.PrimitiveType)
	if choices, ok := p.Predicate.(qtype.Choices); ok {
		f := makeSelect(c.name, c.spec, choices.Values, strDisplay)
		c.decorate(f)
		f.Value = nil
		return []*form.Field{f}
	}

	f := &form.Field{Name: c.name, Kind: form.KindText}
	c.decorate(f)
	if !c.spec.HasDefault() {
		f.Validators = append(f.Validators, form.Validator{
			Expression: "value is not None and len(value) > 0",
			Script:     "value !== null && value !== undefined && String(value).length > 0",
			Message:    verifyMessage,
		})
		return []*form.Field{f}
	}
	if c.spec.Default == nil {
		return []*form.Field{makeOptional(f)}
	}
	return []*form.Field{f}
}

func (c *StrCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() {
		return nil, nil
	}
	return []*form.Fixture{form.Param(c.name, galaxy.EscValue(c.arg))}, nil
}

func (c *StrCase) Describe() string {
	return c.describe(qtype.Text(c.arg))
}

// BoolCase renders Bool parameters as a toggle when possible and as a
// Yes/No select otherwise.
type BoolCase struct{ base }

func (c *BoolCase) Tag() Tag { return TagBool }

// toggle reports whether the parameter can be a plain checkbox: it has a
// real boolean default and both values are allowed.
func (c *BoolCase) toggle() bool {
	if _, ok := c.spec.Default.(bool); !ok || !c.spec.HasDefault() {
		return false
	}
	switch pred := c.spec.Type.(qtype.PrimitiveType).Predicate.(type) {
	case nil:
		return true
	case qtype.Choices:
		return len(pred.Values) == 2
	}
	return false
}

func (c *BoolCase) Schema() []*form.Field {
	if c.toggle() {
		f := &form.Field{
			Name:       c.name,
			Kind:       form.KindBoolean,
			TrueValue:  galaxy.EscValue(true),
			FalseValue: galaxy.EscValue(false),
			Checked:    c.spec.Default == true,
		}
		c.decorate(f)
		f.Value = nil
		return []*form.Field{f}
	}

	choices := []any{true, false}
	if pred, ok := c.spec.Type.(qtype.PrimitiveType).Predicate.(qtype.Choices); ok {
		choices = pred.Values
	}
	f := makeSelect(c.name, c.spec, choices, boolDisplay)
	c.decorate(f)
	f.Value = nil
	return []*form.Field{f}
}

func (c *BoolCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() {
		return nil, nil
	}
	return []*form.Fixture{form.Param(c.name, galaxy.EscValue(c.arg))}, nil
}

func (c *BoolCase) Describe() string {
	if v, ok := c.arg.(bool); ok {
		return c.describe(yesNo(v))
	}
	return c.describe(qtype.Text(c.arg))
}

// UnsupportedCase stands in for type shapes the form cannot express. It
// renders a field that never validates so the tool cannot run with a
// guessed value.
type UnsupportedCase struct{ base }

func (c *UnsupportedCase) Tag() Tag { return TagUnsupported }

func (c *UnsupportedCase) Schema() []*form.Field {
	return []*form.Field{{
		Name:     c.name,
		Kind:     form.KindText,
		Label:    c.label(),
		Help:     c.help(),
		Required: true,
		Value:    form.StringPtr("NOT YET IMPLEMENTED"),
		Validators: []form.Validator{{
			Expression: "False",
			Script:     "false",
			Message:    "NOT YET IMPLEMENTED",
		}},
	}}
}

func (c *UnsupportedCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() {
		return nil, nil
	}
	return []*form.Fixture{form.Param(c.name, qtype.Text(c.arg))}, nil
}

func (c *UnsupportedCase) Describe() string {
	return fmt.Sprintf("*%q* (%s) cannot be set from Galaxy yet", c.name, c.spec.Type)
}
