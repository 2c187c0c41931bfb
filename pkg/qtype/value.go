package qtype

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Typed is implemented by runtime values that carry their own type, such as
// loaded artifacts and metadata.
type Typed interface {
	QType() Type
}

// Set is an insertion-ordered set of runtime values. Adding a value already
// present is a no-op.
type Set struct {
	items []any
	keys  map[string]bool
}

// NewSet builds a set, dropping duplicates.
func NewSet(values ...any) *Set {
	s := &Set{keys: make(map[string]bool)}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was new.
func (s *Set) Add(v any) bool {
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	v = normalizeNumber(v)
	key := fmt.Sprintf("%T:%s", v, Repr(v))
	if s.keys[key] {
		return false
	}
	s.keys[key] = true
	s.items = append(s.items, v)
	return true
}

// Items returns the members in insertion order.
func (s *Set) Items() []any {
	return append([]any(nil), s.items...)
}

// Len returns the number of members.
func (s *Set) Len() int { return len(s.items) }

// Contains reports whether t admits the runtime value v.
func Contains(t Type, v any) bool {
	v = normalizeNumber(v)
	switch tt := t.(type) {
	case UnionType:
		for _, m := range tt.Members {
			if Contains(m, v) {
				return true
			}
		}
		return false
	case PrimitiveType:
		if !primitiveAdmits(tt.Name, v) {
			return false
		}
		return predicateAdmits(tt.Predicate, v)
	case CollectionType:
		var items []any
		switch c := v.(type) {
		case []any:
			if tt.Kind == SetKind {
				return false
			}
			items = c
		case *Set:
			if tt.Kind != SetKind {
				return false
			}
			items = c.items
		default:
			return false
		}
		for _, item := range items {
			if !Contains(tt.Element, item) {
				return false
			}
		}
		return true
	case MetadataType, MetadataColumnType, SemanticType:
		typed, ok := v.(Typed)
		if !ok {
			return false
		}
		return IsSubtype(typed.QType(), t)
	}
	return false
}

func primitiveAdmits(name string, v any) bool {
	switch name {
	case Int:
		_, ok := v.(int64)
		return ok
	case Float:
		switch v.(type) {
		case float64, int64:
			return true
		}
		return false
	case Str:
		_, ok := v.(string)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// Repr renders v using the framework's literal syntax: strings are quoted,
// booleans are True/False, nil is None, lists use [] and sets use {}.
func Repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return FormatFloat(x)
	case string:
		return quote(x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = Repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Set:
		if x.Len() == 0 {
			return "set()"
		}
		parts := make([]string, len(x.items))
		for i, item := range x.items {
			parts[i] = Repr(item)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Text renders v the way the framework stringifies values: strings are left
// unquoted, everything else matches Repr.
func Text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Repr(v)
}

// FormatFloat prints f with the shortest round-tripping digits, keeping a
// trailing ".0" on integral values (1.0, not 1) and switching to exponent
// notation below 1e-4 and from 1e16.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	exp := math.Floor(math.Log10(math.Abs(f)))
	if exp < -4 || exp >= 16 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if byte(r) == q && r < 128 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
