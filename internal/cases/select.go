package cases

import (
	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/pkg/qtype"
)

const (
	optionUseDefault = "None (Use default behavior)"
	optionRequired   = "Selection required"
	verifyMessage    = "Please verify this parameter."
)

// noneValue is the escaped form of a None selection.
var noneValue = galaxy.EscValue(nil)

// notNoneValidator rejects the placeholder option of a required select.
var notNoneValidator = form.Validator{
	Expression: "value != " + qtype.Repr(noneValue),
	Script:     "value !== " + jsString(noneValue),
	Message:    verifyMessage,
}

// makeSelect renders a choice parameter. Fewer than five choices render as
// radio buttons.
func makeSelect(name string, spec qtype.ParameterSpec, choices []any, display func(any) string) *form.Field {
	f := &form.Field{Name: name, Kind: form.KindSelect}

	if spec.HasDefault() {
		if spec.Default == nil {
			f.Options = append(f.Options, form.Option{Label: optionUseDefault, Value: noneValue, Selected: true})
		}
	} else if len(choices) > 1 {
		f.Options = append(f.Options, form.Option{Label: optionRequired, Value: noneValue})
	}

	if len(choices) < 5 {
		f.Display = "radio"
	}

	for _, choice := range choices {
		opt := form.Option{Label: display(choice), Value: galaxy.EscValue(choice)}
		if spec.HasDefault() && spec.Default != nil && qtype.ValuesEqual(choice, spec.Default) {
			opt.Selected = true
		}
		f.Options = append(f.Options, opt)
	}

	if !spec.HasDefault() && len(choices) > 1 {
		f.Validators = append(f.Validators, notNoneValidator)
	}
	return f
}

// makeOptional wraps a decorated field in a conditional that lets the user
// fall back to the None default. The label and help move to the selector.
func makeOptional(f *form.Field) *form.Field {
	useDefault := galaxy.UILiteral("default")
	useValue := galaxy.UILiteral("provide")

	selector := &form.Field{
		Name:  galaxy.UIVar("select", ""),
		Kind:  form.KindSelect,
		Label: f.Label,
		Help:  f.Help,
		Options: []form.Option{
			{Label: optionUseDefault, Value: useDefault, Selected: true},
			{Label: "Provide a value", Value: useValue},
		},
	}
	f.Label, f.Help = "", ""
	f.Optional = false

	return &form.Field{
		Name:     galaxy.UIVar("conditional", f.Name),
		Kind:     form.KindConditional,
		Advanced: f.Advanced,
		Selector: selector,
		Whens: []form.When{
			{Value: useDefault, Fields: []*form.Field{hidden(f.Name, noneValue)}},
			{Value: useValue, Fields: []*form.Field{f}},
		},
	}
}

func hidden(name, value string) *form.Field {
	return &form.Field{Name: name, Kind: form.KindHidden, Value: form.StringPtr(value)}
}

func strDisplay(v any) string { return qtype.Text(v) }

func boolDisplay(v any) string {
	b, _ := v.(bool)
	return yesNo(b)
}
