package qtype

import (
	"fmt"
	"strings"
)

// Predicate refines a primitive type. Like Type it is a closed union.
type Predicate interface {
	String() string
	isPredicate()
}

// Choices restricts a primitive to an enumerated set of literal values.
type Choices struct {
	Values []any
}

// Range restricts a numeric primitive to an interval. A nil bound is open.
// Start is inclusive and End exclusive unless stated otherwise.
type Range struct {
	Start          any
	End            any
	InclusiveStart bool
	InclusiveEnd   bool
}

// PredicateUnion is a union of two or more predicates, e.g.
// Int % (Range(0, 5) | Range(10, 20)).
type PredicateUnion struct {
	Members []Predicate
}

func (Choices) isPredicate()        {}
func (Range) isPredicate()          {}
func (PredicateUnion) isPredicate() {}

// NewChoices builds a Choices predicate.
func NewChoices(values ...any) Choices {
	return Choices{Values: values}
}

// NewRange builds a Range with the default inclusivity (start inclusive, end
// exclusive). Pass nil for an open bound.
func NewRange(start, end any) Range {
	return Range{Start: normalizeNumber(start), End: normalizeNumber(end), InclusiveStart: true}
}

// NewPredicateUnion flattens nested predicate unions. A single predicate is
// returned unchanged.
func NewPredicateUnion(preds ...Predicate) Predicate {
	var flat []Predicate
	for _, p := range preds {
		if u, ok := p.(PredicateUnion); ok {
			flat = append(flat, u.Members...)
			continue
		}
		if p != nil {
			flat = append(flat, p)
		}
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return PredicateUnion{Members: flat}
}

func (c Choices) String() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = Repr(v)
	}
	return "Choices(" + strings.Join(parts, ", ") + ")"
}

func (r Range) String() string {
	args := []string{Repr(r.Start), Repr(r.End)}
	if !r.InclusiveStart {
		args = append(args, "inclusive_start=False")
	}
	if r.InclusiveEnd {
		args = append(args, "inclusive_end=True")
	}
	return "Range(" + strings.Join(args, ", ") + ")"
}

func (u PredicateUnion) String() string {
	parts := make([]string, len(u.Members))
	for i, m := range u.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, " | ")
}

// Has reports whether v is one of the choices.
func (c Choices) Has(v any) bool {
	for _, choice := range c.Values {
		if ValuesEqual(choice, v) {
			return true
		}
	}
	return false
}

// Admits reports whether the number v lies inside the range.
func (r Range) Admits(v any) bool {
	f, ok := AsFloat(v)
	if !ok {
		return false
	}
	if r.Start != nil {
		s, _ := AsFloat(r.Start)
		if f < s || (!r.InclusiveStart && f == s) {
			return false
		}
	}
	if r.End != nil {
		e, _ := AsFloat(r.End)
		if f > e || (!r.InclusiveEnd && f == e) {
			return false
		}
	}
	return true
}

// predicateAdmits evaluates any predicate against v.
func predicateAdmits(p Predicate, v any) bool {
	switch pr := p.(type) {
	case nil:
		return true
	case Choices:
		return pr.Has(v)
	case Range:
		return pr.Admits(v)
	case PredicateUnion:
		for _, m := range pr.Members {
			if predicateAdmits(m, v) {
				return true
			}
		}
		return false
	}
	panic(fmt.Sprintf("qtype: unknown predicate %T", p))
}

// AsFloat converts int, int64 and float64 values to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func normalizeNumber(v any) any {
	if n, ok := v.(int); ok {
		return int64(n)
	}
	return v
}

// ValuesEqual compares runtime values, treating int64 and float64 holding
// the same number as equal.
func ValuesEqual(a, b any) bool {
	a, b = normalizeNumber(a), normalizeNumber(b)
	if af, ok := a.(float64); ok {
		if bi, ok := b.(int64); ok {
			return af == float64(bi)
		}
	}
	if ai, ok := a.(int64); ok {
		if bf, ok := b.(float64); ok {
			return float64(ai) == bf
		}
	}
	switch a.(type) {
	case []any, *Set:
		return Repr(a) == Repr(b)
	case map[string]any:
		return false
	}
	switch b.(type) {
	case []any, *Set, map[string]any:
		return false
	}
	return a == b
}
