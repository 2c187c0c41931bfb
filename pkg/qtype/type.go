// Package qtype models the type expressions of the plugin framework:
// primitives with predicates, unions, collections, metadata and semantic
// (artifact) types.
package qtype

import (
	"strings"
)

// Primitive type names.
const (
	Int         = "Int"
	Float       = "Float"
	Str         = "Str"
	Bool        = "Bool"
	Numeric     = "Numeric"
	Categorical = "Categorical"
)

// Collection kinds.
const (
	List       = "List"
	SetKind    = "Set"
	Collection = "Collection"
)

// Type is a closed tagged union over the type-expression variants. Values are
// immutable once built; helpers decompose them but never modify them.
type Type interface {
	String() string
	isType()
}

// PrimitiveType is a scalar type, optionally refined by a predicate.
type PrimitiveType struct {
	Name      string
	Predicate Predicate
}

// UnionType is a flattened union of two or more non-union members.
type UnionType struct {
	Members []Type
}

// CollectionType is List[T], Set[T] or Collection[T].
type CollectionType struct {
	Kind    string
	Element Type
}

// MetadataType is the tabular sample metadata type.
type MetadataType struct{}

// MetadataColumnType is a single column of metadata restricted to the given
// column kinds (Numeric, Categorical).
type MetadataColumnType struct {
	Fields []Type
}

// SemanticType names an artifact type such as FeatureTable[Frequency].
type SemanticType struct {
	Name   string
	Fields []Type
}

func (PrimitiveType) isType()      {}
func (UnionType) isType()          {}
func (CollectionType) isType()     {}
func (MetadataType) isType()       {}
func (MetadataColumnType) isType() {}
func (SemanticType) isType()       {}

func (p PrimitiveType) String() string {
	if p.Predicate == nil {
		return p.Name
	}
	return p.Name + " % " + predicateString(p.Predicate)
}

func predicateString(p Predicate) string {
	if _, ok := p.(PredicateUnion); ok {
		return "(" + p.String() + ")"
	}
	return p.String()
}

func (u UnionType) String() string {
	parts := make([]string, len(u.Members))
	for i, m := range u.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, " | ")
}

func (c CollectionType) String() string {
	return c.Kind + "[" + c.Element.String() + "]"
}

func (MetadataType) String() string { return "Metadata" }

func (m MetadataColumnType) String() string {
	parts := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		parts[i] = f.String()
	}
	return "MetadataColumn[" + strings.Join(parts, " | ") + "]"
}

func (s SemanticType) String() string {
	if len(s.Fields) == 0 {
		return s.Name
	}
	return s.Name + "[" + joinFields(s.Fields) + "]"
}

func joinFields(fields []Type) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}

// Prim builds a primitive type with an optional predicate.
func Prim(name string, pred ...Predicate) PrimitiveType {
	p := PrimitiveType{Name: name}
	if len(pred) > 0 {
		p.Predicate = NewPredicateUnion(pred...)
	}
	return p
}

// Semantic builds a semantic type.
func Semantic(name string, fields ...Type) SemanticType {
	return SemanticType{Name: name, Fields: fields}
}

// ListOf, SetOf and CollectionOf build collection types.
func ListOf(t Type) CollectionType       { return CollectionType{Kind: List, Element: t} }
func SetOf(t Type) CollectionType        { return CollectionType{Kind: SetKind, Element: t} }
func CollectionOf(t Type) CollectionType { return CollectionType{Kind: Collection, Element: t} }

// Column builds MetadataColumn[...] over the given column kinds.
func Column(kinds ...string) MetadataColumnType {
	fields := make([]Type, len(kinds))
	for i, k := range kinds {
		fields[i] = PrimitiveType{Name: k}
	}
	return MetadataColumnType{Fields: fields}
}

// NewUnion flattens nested unions and drops duplicate members. A union of a
// single member collapses to that member.
func NewUnion(members ...Type) Type {
	var flat []Type
	seen := make(map[string]bool)
	var add func(t Type)
	add = func(t Type) {
		if u, ok := t.(UnionType); ok {
			for _, m := range u.Members {
				add(m)
			}
			return
		}
		key := t.String()
		if seen[key] {
			return
		}
		seen[key] = true
		flat = append(flat, t)
	}
	for _, m := range members {
		add(m)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return UnionType{Members: flat}
}

// Equal reports whether two type expressions are structurally identical.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// IsSubtype reports whether every value of a is also a value of b. Only the
// structural cases needed for artifact and metadata matching are handled.
func IsSubtype(a, b Type) bool {
	if bu, ok := b.(UnionType); ok {
		if au, ok := a.(UnionType); ok {
			for _, m := range au.Members {
				if !IsSubtype(m, b) {
					return false
				}
			}
			return true
		}
		for _, m := range bu.Members {
			if IsSubtype(a, m) {
				return true
			}
		}
		return false
	}
	if au, ok := a.(UnionType); ok {
		for _, m := range au.Members {
			if !IsSubtype(m, b) {
				return false
			}
		}
		return true
	}

	switch bt := b.(type) {
	case SemanticType:
		at, ok := a.(SemanticType)
		if !ok || at.Name != bt.Name {
			return false
		}
		if len(bt.Fields) == 0 {
			return true
		}
		if len(at.Fields) != len(bt.Fields) {
			return false
		}
		for i := range bt.Fields {
			if !IsSubtype(at.Fields[i], bt.Fields[i]) {
				return false
			}
		}
		return true
	case MetadataType:
		_, ok := a.(MetadataType)
		return ok
	case MetadataColumnType:
		at, ok := a.(MetadataColumnType)
		if !ok {
			return false
		}
		for _, f := range at.Fields {
			if !IsSubtype(f, NewUnion(bt.Fields...)) {
				return false
			}
		}
		return true
	case CollectionType:
		at, ok := a.(CollectionType)
		return ok && at.Kind == bt.Kind && IsSubtype(at.Element, bt.Element)
	case PrimitiveType:
		at, ok := a.(PrimitiveType)
		if !ok {
			return false
		}
		if bt.Name == Float && at.Name == Int && bt.Predicate == nil {
			return true
		}
		if at.Name != bt.Name {
			return false
		}
		if bt.Predicate == nil {
			return true
		}
		return at.Predicate != nil && predicateString(at.Predicate) == predicateString(bt.Predicate)
	}
	return false
}

// Expand enumerates the concrete semantic variants of t: unions are split,
// collections are unwrapped and field unions are expanded as a cartesian
// product. FeatureTable[Frequency | PresenceAbsence] expands to
// FeatureTable[Frequency] and FeatureTable[PresenceAbsence].
func Expand(t Type) []Type {
	switch v := t.(type) {
	case UnionType:
		var out []Type
		for _, m := range v.Members {
			out = append(out, Expand(m)...)
		}
		return out
	case CollectionType:
		return Expand(v.Element)
	case SemanticType:
		combos := [][]Type{nil}
		for _, f := range v.Fields {
			variants := Expand(f)
			var next [][]Type
			for _, c := range combos {
				for _, variant := range variants {
					row := append(append([]Type{}, c...), variant)
					next = append(next, row)
				}
			}
			combos = next
		}
		out := make([]Type, 0, len(combos))
		for _, c := range combos {
			out = append(out, SemanticType{Name: v.Name, Fields: c})
		}
		return out
	default:
		return []Type{t}
	}
}
