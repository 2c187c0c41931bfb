package qtype

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("invalid type expression")

// Parse reads a type expression in the framework's textual form, e.g.
//
//	Int % Range(0, 10, inclusive_end=True) | Str % Choices('auto')
//	List[FeatureTable[Frequency | RelativeFrequency]]
//	MetadataColumn[Numeric]
//
// The % operator binds tighter than |, and a union of predicates must be
// parenthesised.
func Parse(s string) (Type, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	t, err := p.union()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for built-in plugin
// definitions and tests.
func MustParse(s string) Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case strings.IndexByte("[](){},|%=", c) >= 0:
			toks = append(toks, token{tokPunct, string(c), i})
			i++
		case c == '\'' || c == '"':
			start := i
			i++
			var b strings.Builder
			for i < len(s) && s[i] != c {
				if s[i] == '\\' && i+1 < len(s) {
					i++
					switch s[i] {
					case 'n':
						b.WriteByte('\n')
					case 't':
						b.WriteByte('\t')
					case 'r':
						b.WriteByte('\r')
					default:
						b.WriteByte(s[i])
					}
					i++
					continue
				}
				b.WriteByte(s[i])
				i++
			}
			if i >= len(s) {
				return nil, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, start)
			}
			i++
			toks = append(toks, token{tokString, b.String(), start})
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(s) && (strings.IndexByte("0123456789.eE", s[i]) >= 0 ||
				((s[i] == '-' || s[i] == '+') && (s[i-1] == 'e' || s[i-1] == 'E'))) {
				i++
			}
			toks = append(toks, token{tokNumber, s[start:i], start})
		case c == '_' || unicode.IsLetter(rune(c)):
			start := i
			for i < len(s) && (s[i] == '_' || s[i] == '.' || unicode.IsLetter(rune(s[i])) || unicode.IsDigit(rune(s[i]))) {
				i++
			}
			toks = append(toks, token{tokIdent, s[start:i], start})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrSyntax, c, i)
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.done() {
		return token{kind: tokPunct, text: "<end>", pos: -1}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) accept(punct string) bool {
	if t := p.peek(); t.kind == tokPunct && t.text == punct {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(punct string) error {
	if !p.accept(punct) {
		return p.errorf("expected %q, found %q", punct, p.peek().text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

func (p *parser) union() (Type, error) {
	first, err := p.term()
	if err != nil {
		return nil, err
	}
	members := []Type{first}
	for p.accept("|") {
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		members = append(members, t)
	}
	return NewUnion(members...), nil
}

func (p *parser) term() (Type, error) {
	t, err := p.primary()
	if err != nil {
		return nil, err
	}
	if !p.accept("%") {
		return t, nil
	}
	prim, ok := t.(PrimitiveType)
	if !ok {
		return nil, p.errorf("predicate applied to non-primitive %s", t)
	}
	pred, err := p.predicate()
	if err != nil {
		return nil, err
	}
	prim.Predicate = NewPredicateUnion(prim.Predicate, pred)
	return prim, nil
}

func (p *parser) primary() (Type, error) {
	if p.accept("(") {
		t, err := p.union()
		if err != nil {
			return nil, err
		}
		return t, p.expect(")")
	}
	tok := p.next()
	if tok.kind != tokIdent {
		return nil, p.errorf("expected type name, found %q", tok.text)
	}
	var fields []Type
	if p.accept("[") {
		for {
			f, err := p.union()
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
			if p.accept("]") {
				break
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	}

	switch tok.text {
	case Int, Float, Str, Bool, Numeric, Categorical:
		if len(fields) > 0 {
			return nil, p.errorf("%s takes no fields", tok.text)
		}
		return PrimitiveType{Name: tok.text}, nil
	case List, SetKind, Collection:
		if len(fields) != 1 {
			return nil, p.errorf("%s takes exactly one field", tok.text)
		}
		return CollectionType{Kind: tok.text, Element: fields[0]}, nil
	case "Metadata":
		if len(fields) > 0 {
			return nil, p.errorf("Metadata takes no fields")
		}
		return MetadataType{}, nil
	case "MetadataColumn":
		if len(fields) != 1 {
			return nil, p.errorf("MetadataColumn takes exactly one field")
		}
		if u, ok := fields[0].(UnionType); ok {
			return MetadataColumnType{Fields: u.Members}, nil
		}
		return MetadataColumnType{Fields: fields}, nil
	}
	return SemanticType{Name: tok.text, Fields: fields}, nil
}

func (p *parser) predicate() (Predicate, error) {
	if p.accept("(") {
		var members []Predicate
		for {
			pred, err := p.predicateAtom()
			if err != nil {
				return nil, err
			}
			members = append(members, pred)
			if p.accept(")") {
				break
			}
			if err := p.expect("|"); err != nil {
				return nil, err
			}
		}
		return NewPredicateUnion(members...), nil
	}
	return p.predicateAtom()
}

func (p *parser) predicateAtom() (Predicate, error) {
	name := p.next()
	if name.kind != tokIdent {
		return nil, p.errorf("expected predicate, found %q", name.text)
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []any
	kwargs := make(map[string]any)
	for !p.accept(")") {
		if len(args)+len(kwargs) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		if t := p.peek(); t.kind == tokIdent && p.pos+1 < len(p.toks) && p.toks[p.pos+1].text == "=" {
			p.pos += 2
			v, err := p.literal()
			if err != nil {
				return nil, err
			}
			kwargs[t.text] = v
			continue
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch name.text {
	case "Choices":
		if len(args) == 1 {
			switch c := args[0].(type) {
			case []any:
				return Choices{Values: c}, nil
			case *Set:
				return Choices{Values: c.Items()}, nil
			}
		}
		if len(args) == 0 {
			return nil, p.errorf("Choices requires at least one value")
		}
		return Choices{Values: args}, nil
	case "Range":
		r := Range{InclusiveStart: true}
		switch len(args) {
		case 1:
			r.End = args[0]
		case 2:
			r.Start, r.End = args[0], args[1]
		default:
			return nil, p.errorf("Range takes one or two bounds, got %d", len(args))
		}
		for _, bound := range []any{r.Start, r.End} {
			if _, ok := AsFloat(bound); bound != nil && !ok {
				return nil, p.errorf("Range bound %s is not a number", Repr(bound))
			}
		}
		for k, v := range kwargs {
			b, ok := v.(bool)
			if !ok {
				return nil, p.errorf("%s must be True or False", k)
			}
			switch k {
			case "inclusive_start":
				r.InclusiveStart = b
			case "inclusive_end":
				r.InclusiveEnd = b
			default:
				return nil, p.errorf("unknown Range argument %q", k)
			}
		}
		return r, nil
	}
	return nil, p.errorf("unknown predicate %q", name.text)
}

func (p *parser) literal() (any, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return tok.text, nil
	case tokNumber:
		return parseNumber(tok.text)
	case tokIdent:
		switch tok.text {
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "None":
			return nil, nil
		}
	case tokPunct:
		closer := map[string]string{"[": "]", "{": "}"}[tok.text]
		if closer == "" {
			break
		}
		var items []any
		for !p.accept(closer) {
			if len(items) > 0 {
				if err := p.expect(","); err != nil {
					return nil, err
				}
			}
			v, err := p.literal()
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		if closer == "}" {
			return NewSet(items...), nil
		}
		return items, nil
	}
	return nil, p.errorf("expected literal, found %q", tok.text)
}

func parseNumber(s string) (any, error) {
	if !strings.ContainsAny(s, ".eE") {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, s)
	}
	return f, nil
}
