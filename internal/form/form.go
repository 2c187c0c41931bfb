// Package form describes the input fields a tool exposes in the Galaxy UI
// and the fixture values used by generated tool tests. Cases render into
// these structures; toolxml serializes them and formcheck validates job
// configurations against them.
package form

// Kind is the Galaxy param type of a field.
type Kind string

const (
	KindText        Kind = "text"
	KindInteger     Kind = "integer"
	KindFloat       Kind = "float"
	KindBoolean     Kind = "boolean"
	KindSelect      Kind = "select"
	KindData        Kind = "data"
	KindDataColumn  Kind = "data_column"
	KindHidden      Kind = "hidden"
	KindConditional Kind = "conditional"
	KindRepeat      Kind = "repeat"
	KindSection     Kind = "section"
)

// Option is one choice of a select field.
type Option struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Selected bool   `json:"selected,omitempty"`
}

// Validator is an expression validator. Expression is what Galaxy
// evaluates; Script is the equivalent JavaScript predicate over `value`
// used for local checks.
type Validator struct {
	Expression string `json:"expression"`
	Script     string `json:"script"`
	Message    string `json:"message"`
}

// When is one branch of a conditional.
type When struct {
	Value  string   `json:"value"`
	Fields []*Field `json:"fields,omitempty"`
}

// Field is one node of a tool's input form. Conditionals carry their
// selector in Selector and their branches in Whens; repeats and sections
// carry their contents in Children.
type Field struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Label    string `json:"label,omitempty"`
	Help     string `json:"help,omitempty"`
	Required bool   `json:"required"`
	Advanced bool   `json:"advanced,omitempty"`

	// Value is the value attribute; nil means the attribute is absent and
	// a pointer to "" renders an explicit empty placeholder.
	Value    *string `json:"value,omitempty"`
	Optional bool    `json:"optional,omitempty"`

	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`

	Display string   `json:"display,omitempty"`
	Options []Option `json:"options,omitempty"`

	TrueValue  string `json:"truevalue,omitempty"`
	FalseValue string `json:"falsevalue,omitempty"`
	Checked    bool   `json:"checked,omitempty"`

	Formats        []string `json:"formats,omitempty"`
	Multiple       bool     `json:"multiple,omitempty"`
	SemanticTypes  []string `json:"semantic_types,omitempty"`
	DataRef        string   `json:"data_ref,omitempty"`
	UseHeaderNames bool     `json:"use_header_names,omitempty"`

	Title    string `json:"title,omitempty"`
	MinItems int    `json:"min_items,omitempty"`

	Validators []Validator `json:"validators,omitempty"`
	Selector   *Field      `json:"selector,omitempty"`
	Whens      []When      `json:"whens,omitempty"`
	Children   []*Field    `json:"children,omitempty"`
}

// StringPtr returns a pointer to s, for Field.Value.
func StringPtr(s string) *string {
	return &s
}

// Walk visits f and every nested field depth-first. Returning false from
// fn skips the children of that field.
func Walk(fields []*Field, fn func(f *Field) bool) {
	for _, f := range fields {
		if f == nil || !fn(f) {
			continue
		}
		if f.Selector != nil {
			Walk([]*Field{f.Selector}, fn)
		}
		for _, w := range f.Whens {
			Walk(w.Fields, fn)
		}
		Walk(f.Children, fn)
	}
}

// Fixture is one element of a generated tool test: a param value, a
// conditional wrapping its selector and value, or a repeat instance.
type Fixture struct {
	Kind     Kind       `json:"kind,omitempty"` // "" for a param, else KindConditional or KindRepeat
	Name     string     `json:"name"`
	Value    string     `json:"value,omitempty"`
	FType    string     `json:"ftype,omitempty"`
	Children []*Fixture `json:"children,omitempty"`
}

// Param builds a plain param fixture.
func Param(name, value string) *Fixture {
	return &Fixture{Name: name, Value: value}
}
