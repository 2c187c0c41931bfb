// Package typealg answers structural questions about qtype expressions:
// union detection and unpacking, collection style and effective numeric
// bounds.
package typealg

import (
	"fmt"
	"math"

	"github.com/me/q2galaxy/pkg/qtype"
)

// Epsilon is the step used to turn an exclusive Float bound into an inclusive
// one.
const Epsilon = 0.000001

// IsUnion reports whether t is a type union.
func IsUnion(t qtype.Type) bool {
	_, ok := t.(qtype.UnionType)
	return ok
}

// IsUnionAnywhere reports whether t is a union or carries a predicate union.
func IsUnionAnywhere(t qtype.Type) bool {
	if IsUnion(t) {
		return true
	}
	if p, ok := t.(qtype.PrimitiveType); ok {
		_, ok := p.Predicate.(qtype.PredicateUnion)
		return ok
	}
	return false
}

// UnpackUnion splits t into non-union members. Nested type unions are
// flattened and a predicate union becomes one member per predicate, so
// Int % (Range(0, 5) | Range(9, 10)) unpacks to Int % Range(0, 5) and
// Int % Range(9, 10). A non-union type unpacks to itself.
func UnpackUnion(t qtype.Type) []qtype.Type {
	var out []qtype.Type
	var walk func(t qtype.Type)
	walk = func(t qtype.Type) {
		switch v := t.(type) {
		case qtype.UnionType:
			for _, m := range v.Members {
				walk(m)
			}
		case qtype.PrimitiveType:
			if pu, ok := v.Predicate.(qtype.PredicateUnion); ok {
				for _, p := range pu.Members {
					out = append(out, qtype.PrimitiveType{Name: v.Name, Predicate: p})
				}
				return
			}
			out = append(out, v)
		default:
			out = append(out, v)
		}
	}
	walk(t)
	return out
}

// IsMetadataType reports whether t is Metadata or a MetadataColumn.
func IsMetadataType(t qtype.Type) bool {
	switch t.(type) {
	case qtype.MetadataType, qtype.MetadataColumnType:
		return true
	}
	return false
}

// IsMetadataColumnType reports whether t is a MetadataColumn.
func IsMetadataColumnType(t qtype.Type) bool {
	_, ok := t.(qtype.MetadataColumnType)
	return ok
}

// IsCollectionType reports whether t is a collection or a union of them.
func IsCollectionType(t qtype.Type) bool {
	for _, m := range UnpackUnion(t) {
		if _, ok := m.(qtype.CollectionType); ok {
			return true
		}
	}
	return false
}

// IsSemanticType reports whether t describes artifacts, either directly or as
// the element of a collection.
func IsSemanticType(t qtype.Type) bool {
	members := UnpackUnion(t)
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		if c, ok := m.(qtype.CollectionType); ok {
			m = c.Element
		}
		for _, inner := range UnpackUnion(m) {
			if _, ok := inner.(qtype.SemanticType); !ok {
				return false
			}
		}
	}
	return true
}

// IsVisualizationType reports whether t is the Visualization output type.
func IsVisualizationType(t qtype.Type) bool {
	s, ok := t.(qtype.SemanticType)
	return ok && s.Name == "Visualization"
}

// Style classifies how a type uses collections.
type Style int

const (
	// StyleNone is a non-collection type.
	StyleNone Style = iota
	// StyleSimple is one collection kind over one non-union element: List[Int].
	StyleSimple
	// StyleMonomorphic is a union of the same collection kind, each over a
	// single element type: List[Int] | List[Str].
	StyleMonomorphic
	// StyleComposite is one collection kind over a union element: List[Int | Str].
	StyleComposite
	// StyleComplex is everything else: mixed kinds or nested collections.
	StyleComplex
)

func (s Style) String() string {
	switch s {
	case StyleNone:
		return "none"
	case StyleSimple:
		return "simple"
	case StyleMonomorphic:
		return "monomorphic"
	case StyleComposite:
		return "composite"
	case StyleComplex:
		return "complex"
	}
	return fmt.Sprintf("Style(%d)", int(s))
}

// Supported reports whether collections of this style can be rendered as
// tool runner form fields.
func (s Style) Supported() bool {
	switch s {
	case StyleNone, StyleSimple, StyleComposite:
		return true
	case StyleMonomorphic, StyleComplex:
		return false
	}
	panic(fmt.Sprintf("typealg: unknown collection style %d", int(s)))
}

// CollectionStyle classifies t.
func CollectionStyle(t qtype.Type) Style {
	var collections []qtype.CollectionType
	var others int
	if u, ok := t.(qtype.UnionType); ok {
		for _, m := range u.Members {
			if c, ok := m.(qtype.CollectionType); ok {
				collections = append(collections, c)
			} else {
				others++
			}
		}
	} else if c, ok := t.(qtype.CollectionType); ok {
		collections = append(collections, c)
	}

	if len(collections) == 0 {
		return StyleNone
	}
	if others > 0 {
		return StyleComplex
	}

	kind := collections[0].Kind
	for _, c := range collections {
		if c.Kind != kind || IsCollectionType(c.Element) {
			return StyleComplex
		}
	}

	if len(collections) == 1 {
		if IsUnion(collections[0].Element) {
			return StyleComposite
		}
		return StyleSimple
	}
	for _, c := range collections {
		if IsUnion(c.Element) {
			return StyleComplex
		}
	}
	return StyleMonomorphic
}

// Bound is one end of an effective numeric range. The value is int64 for Int
// and float64 for Float.
type Bound struct {
	Value any
}

func (b *Bound) String() string {
	if b == nil {
		return ""
	}
	return qtype.Repr(b.Value)
}

// EffectiveRange returns the inclusive bounds of a numeric type with a Range
// predicate. Exclusive Int bounds move by 1 and exclusive Float bounds by
// Epsilon, so Int % Range(0, 10) yields max 9. A nil bound is open. Types
// without a Range predicate report two open bounds.
func EffectiveRange(t qtype.Type) (minB, maxB *Bound) {
	p, ok := t.(qtype.PrimitiveType)
	if !ok {
		return nil, nil
	}
	r, ok := p.Predicate.(qtype.Range)
	if !ok {
		return nil, nil
	}
	if r.Start != nil {
		minB = adjust(p.Name, r.Start, r.InclusiveStart, 1)
	}
	if r.End != nil {
		maxB = adjust(p.Name, r.End, r.InclusiveEnd, -1)
	}
	return minB, maxB
}

func adjust(name string, v any, inclusive bool, dir int) *Bound {
	f, _ := qtype.AsFloat(v)
	if name == qtype.Int {
		// A fractional bound rounds inward; only an integral one can be
		// excluded.
		if f != math.Trunc(f) {
			if dir > 0 {
				return &Bound{Value: int64(math.Ceil(f))}
			}
			return &Bound{Value: int64(math.Floor(f))}
		}
		n := int64(f)
		if !inclusive {
			n += int64(dir)
		}
		return &Bound{Value: n}
	}
	if !inclusive {
		f += float64(dir) * Epsilon
	}
	return &Bound{Value: f}
}
