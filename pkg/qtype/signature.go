package qtype

type noDefault struct{}

func (noDefault) String() string { return "NOVALUE" }

// NoDefault marks a parameter that must be supplied. It is distinct from a
// nil default, which means the parameter defaults to None.
var NoDefault any = noDefault{}

// ParameterSpec describes one named input, parameter or output.
type ParameterSpec struct {
	Type        Type
	Default     any
	Description string
	// ViewType names the representation the action receives, such as
	// "Metadata" or a format name. Empty means the default view.
	ViewType string
}

// Required builds a spec with no default.
func Required(t Type, description string) ParameterSpec {
	return ParameterSpec{Type: t, Default: NoDefault, Description: description}
}

// Optional builds a spec with the given default. A nil default means None.
func Optional(t Type, def any, description string) ParameterSpec {
	return ParameterSpec{Type: t, Default: normalizeNumber(def), Description: description}
}

// Element is the spec of one element of a collection parameter. It has no
// default and keeps the view type.
func (s ParameterSpec) Element() ParameterSpec {
	inner := s.Type
	if c, ok := s.Type.(CollectionType); ok {
		inner = c.Element
	}
	return ParameterSpec{Type: inner, Default: NoDefault, ViewType: s.ViewType}
}

// HasDefault reports whether the parameter may be omitted.
func (s ParameterSpec) HasDefault() bool {
	return s.Default != NoDefault
}

// Param is a named ParameterSpec. Signatures keep parameters in declaration
// order.
type Param struct {
	Name string
	Spec ParameterSpec
}

// Signature is the ordered set of inputs, parameters and outputs of an
// action.
type Signature struct {
	Inputs     []Param
	Parameters []Param
	Outputs    []Param
}

// Lookup finds name among the inputs and parameters.
func (s Signature) Lookup(name string) (ParameterSpec, bool) {
	for _, group := range [][]Param{s.Inputs, s.Parameters} {
		for _, p := range group {
			if p.Name == name {
				return p.Spec, true
			}
		}
	}
	return ParameterSpec{}, false
}

// IsInput reports whether name is one of the artifact inputs.
func (s Signature) IsInput(name string) bool {
	for _, p := range s.Inputs {
		if p.Name == name {
			return true
		}
	}
	return false
}
