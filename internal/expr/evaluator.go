// Package expr evaluates the small JavaScript expressions used by plugin
// command bindings and form validators, using goja.
//
// Two forms are supported inside a string:
//   - Parameter references: $(inputs.table.path)
//   - Code blocks: ${ return inputs.n * 2; }
//
// Text outside an expression is kept literally; \$( escapes a literal $(.
package expr

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Context holds the variables visible to an expression.
type Context struct {
	// Inputs maps parameter names to their JavaScript-friendly values.
	Inputs map[string]any
	// Self is the value being bound or validated. It is also exposed as
	// `value` for validator scripts.
	Self any
	// Runtime describes the invocation environment.
	Runtime map[string]any
}

// NewContext creates a context over inputs.
func NewContext(inputs map[string]any) *Context {
	return &Context{Inputs: inputs, Runtime: map[string]any{}}
}

// WithSelf returns a copy of c with Self set.
func (c *Context) WithSelf(self any) *Context {
	return &Context{Inputs: c.Inputs, Self: self, Runtime: c.Runtime}
}

// Evaluator evaluates expressions. A fresh VM is used per evaluation so
// expressions cannot leak state into each other.
type Evaluator struct {
	lib []string
}

// NewEvaluator creates an evaluator. Each lib entry is JavaScript run
// before every evaluation.
func NewEvaluator(lib ...string) *Evaluator {
	return &Evaluator{lib: lib}
}

func (e *Evaluator) setupVM(ctx *Context) (*goja.Runtime, error) {
	vm := goja.New()
	for i, lib := range e.lib {
		if _, err := vm.RunString(lib); err != nil {
			return nil, fmt.Errorf("lib[%d]: %w", i, err)
		}
	}
	if ctx == nil {
		ctx = NewContext(nil)
	}
	inputs := ctx.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	vars := map[string]any{
		"inputs":  inputs,
		"self":    ctx.Self,
		"value":   ctx.Self,
		"runtime": ctx.Runtime,
	}
	for name, v := range vars {
		if err := vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
	}
	return vm, nil
}

// Evaluate evaluates s. A string that is exactly one expression yields the
// expression's typed value; otherwise results are interpolated as text.
func (e *Evaluator) Evaluate(s string, ctx *Context) (any, error) {
	if !IsExpression(s) {
		return unescape(s), nil
	}
	vm, err := e.setupVM(ctx)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimLeft(s, " \t\n\r")
	if strings.HasPrefix(trimmed, "${") {
		if idx := findMatchingBrace(trimmed); idx >= 0 {
			block := trimmed[:idx+1]
			rest := trimmed[idx+1:]
			v, err := runBlock(vm, block)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(rest) == "" {
				return v, nil
			}
			return ToString(v) + rest, nil
		}
	}
	return interpolate(vm, s)
}

// Script evaluates a bare JavaScript expression with `value` bound to v and
// reports its truthiness. Validator scripts use this form.
func (e *Evaluator) Script(script string, v any, ctx *Context) (bool, error) {
	if ctx == nil {
		ctx = NewContext(nil)
	}
	vm, err := e.setupVM(ctx.WithSelf(v))
	if err != nil {
		return false, err
	}
	out, err := vm.RunString(script)
	if err != nil {
		return false, fmt.Errorf("script %q: %w", script, err)
	}
	return out.ToBoolean(), nil
}

// EvaluateString evaluates s and renders the result as text.
func (e *Evaluator) EvaluateString(s string, ctx *Context) (string, error) {
	v, err := e.Evaluate(s, ctx)
	if err != nil {
		return "", err
	}
	return ToString(v), nil
}

// EvaluateBool evaluates s and requires a boolean (or null, as false).
func (e *Evaluator) EvaluateBool(s string, ctx *Context) (bool, error) {
	v, err := e.Evaluate(s, ctx)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("expression did not return boolean: %T", v)
}

func runBlock(vm *goja.Runtime, block string) (any, error) {
	code := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(block, "${"), "}"))
	v, err := vm.RunString("(function() { " + code + " })()")
	if err != nil {
		return nil, fmt.Errorf("javascript error: %w", err)
	}
	return v.Export(), nil
}

func interpolate(vm *goja.Runtime, s string) (any, error) {
	matches := findExpressions(s)
	if len(matches) == 0 {
		return unescape(s), nil
	}
	if len(matches) == 1 && matches[0].start == 0 && matches[0].end == len(s) {
		return runRef(vm, matches[0].expr)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m.start])
		v, err := runRef(vm, m.expr)
		if err != nil {
			return nil, err
		}
		b.WriteString(ToString(v))
		last = m.end
	}
	b.WriteString(s[last:])
	return unescape(b.String()), nil
}

func runRef(vm *goja.Runtime, code string) (any, error) {
	if strings.HasPrefix(strings.TrimSpace(code), "{") {
		code = "(" + code + ")"
	}
	v, err := vm.RunString(code)
	if err != nil {
		return nil, fmt.Errorf("expression error in $(%s): %w", code, err)
	}
	if v == goja.Undefined() {
		return nil, fmt.Errorf("expression $(%s) is undefined", code)
	}
	return v.Export(), nil
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "\\$(", "$(")
	return strings.ReplaceAll(s, "\\${", "${")
}

func findMatchingBrace(s string) int {
	depth := 0
	for i, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type match struct {
	start, end int
	expr       string
}

// findExpressions finds every unescaped $(...) with balanced parentheses.
func findExpressions(s string) []match {
	var out []match
	for i := 0; i < len(s)-1; i++ {
		if s[i] != '$' || s[i+1] != '(' || (i > 0 && s[i-1] == '\\') {
			continue
		}
		depth := 1
		j := i + 2
		for j < len(s) && depth > 0 {
			switch s[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			j++
		}
		if depth == 0 {
			out = append(out, match{start: i, end: j, expr: s[i+2 : j-1]})
			i = j - 1
		}
	}
	return out
}

// IsExpression reports whether s contains an unescaped expression.
func IsExpression(s string) bool {
	if strings.HasPrefix(strings.TrimLeft(s, " \t\n\r"), "${") {
		return true
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '$' && s[i+1] == '(' && (i == 0 || s[i-1] != '\\') {
			return true
		}
	}
	return false
}

// ToString renders an evaluated value as command-line text. Lists and
// objects become JSON.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any, []any:
		return JSONDumps(val)
	}
	return fmt.Sprint(v)
}

// JSONDumps serializes v with ", " and ": " separators and sorted keys.
func JSONDumps(v any) string {
	switch val := v.(type) {
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = JSONDumps(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			kj, _ := json.Marshal(k)
			parts = append(parts, string(kj)+": "+JSONDumps(val[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case string:
		b, _ := json.Marshal(val)
		return string(b)
	case nil, bool, int, int64, float64:
		return ToString(val)
	}
	b, _ := json.Marshal(v)
	return string(b)
}
