// Package formcheck validates a job configuration against a tool's input
// form the way the tool runner would before it accepts a job: required
// fields, numeric bounds, select options, repeat sizes and expression
// validators. Validators run as JavaScript through goja.
package formcheck

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/pkg/model"
)

// Checker validates configurations. It is safe for concurrent use.
type Checker struct {
	mu     sync.Mutex
	vm     *goja.Runtime
	cache  map[string]goja.Callable
	logger *slog.Logger
}

// New creates a Checker.
func New(logger *slog.Logger) *Checker {
	return &Checker{
		vm:     goja.New(),
		cache:  make(map[string]goja.Callable),
		logger: logger.With("component", "formcheck"),
	}
}

// Check validates cfg, the configuration as the tool runner writes it:
// conditionals and sections are nested objects keyed by their names and
// repeats are lists of objects.
func (c *Checker) Check(fields []*form.Field, cfg map[string]any) model.CheckResult {
	var errs []model.FieldError
	c.fields("", fields, cfg, &errs)
	return model.CheckResult{Valid: len(errs) == 0, Errors: errs}
}

func (c *Checker) fields(prefix string, fields []*form.Field, cfg map[string]any, errs *[]model.FieldError) {
	for _, f := range fields {
		c.field(join(prefix, f.Name), f, cfg, errs)
	}
}

func (c *Checker) field(path string, f *form.Field, cfg map[string]any, errs *[]model.FieldError) {
	fail := func(format string, args ...any) {
		*errs = append(*errs, model.FieldError{Field: path, Message: fmt.Sprintf(format, args...)})
	}
	value, present := cfg[f.Name]

	switch f.Kind {
	case form.KindSection:
		inner, _ := value.(map[string]any)
		c.fields(path, f.Children, inner, errs)
		return
	case form.KindConditional:
		inner, _ := value.(map[string]any)
		if f.Selector == nil {
			return
		}
		c.field(join(path, f.Selector.Name), f.Selector, inner, errs)
		selected := selection(f.Selector, inner[f.Selector.Name])
		for _, w := range f.Whens {
			if w.Value == selected {
				c.fields(path, w.Fields, inner, errs)
				return
			}
		}
		return
	case form.KindRepeat:
		items, _ := value.([]any)
		if len(items) < f.MinItems {
			fail("at least %d required", f.MinItems)
		}
		for i, item := range items {
			inner, _ := item.(map[string]any)
			c.fields(fmt.Sprintf("%s[%d]", path, i), f.Children, inner, errs)
		}
		return
	case form.KindHidden:
		return
	}

	if !present || isBlank(value) {
		switch {
		case f.Value != nil && *f.Value != "":
			value = *f.Value
		case f.Kind == form.KindSelect && len(f.Options) > 0 && !f.Optional:
			value = selection(f, nil)
		default:
			if f.Required && !f.Optional && f.Kind != form.KindBoolean {
				fail("required")
			}
			return
		}
	}

	switch f.Kind {
	case form.KindData:
		value = dataValue(value)
	case form.KindInteger, form.KindFloat:
		n, err := number(value)
		if err != nil {
			fail("must be a number")
			return
		}
		if f.Kind == form.KindInteger && n != math.Trunc(n) {
			fail("must be an integer")
			return
		}
		if lo, err := strconv.ParseFloat(f.Min, 64); f.Min != "" && err == nil && n < lo {
			fail("must be at least %s", f.Min)
		}
		if hi, err := strconv.ParseFloat(f.Max, 64); f.Max != "" && err == nil && n > hi {
			fail("must be at most %s", f.Max)
		}
	case form.KindSelect:
		if len(f.Options) == 0 {
			break
		}
		for _, v := range selectValues(value, f.Multiple) {
			if !hasOption(f, v) {
				fail("%q is not an option", v)
			}
		}
	}

	for _, v := range f.Validators {
		ok, err := c.eval(v.Script, value)
		if err != nil {
			c.logger.Warn("validator failed to run", "field", path, "script", v.Script, "error", err)
			continue
		}
		if !ok {
			fail("%s", v.Message)
		}
	}
}

// eval runs script as the body of a predicate over value.
func (c *Checker) eval(script string, value any) (bool, error) {
	if script == "" {
		return true, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fn, ok := c.cache[script]
	if !ok {
		v, err := c.vm.RunString("(function(value) { return (" + script + "); })")
		if err != nil {
			return false, err
		}
		fn, ok = goja.AssertFunction(v)
		if !ok {
			return false, fmt.Errorf("validator is not a function")
		}
		c.cache[script] = fn
	}
	res, err := fn(goja.Undefined(), c.vm.ToValue(value))
	if err != nil {
		return false, err
	}
	return res.ToBoolean(), nil
}

// dataValue gives an archive path the shape a dataset has in the tool
// runner, with its semantic type and format as metadata.
func dataValue(v any) any {
	path, ok := v.(string)
	if !ok || !(strings.HasSuffix(path, ".qza") || strings.HasSuffix(path, ".qzv")) {
		return v
	}
	a, err := artifact.Load(path)
	if err != nil {
		return v
	}
	defer a.Close()
	return map[string]any{
		"path": path,
		"metadata": map[string]any{
			"semantic_type": a.Type,
			"format":        a.Format,
		},
	}
}

// selection is the branch a conditional's selector picks: its value or
// else its selected option.
func selection(sel *form.Field, value any) string {
	if s := scalar(value); s != "" {
		return s
	}
	for _, o := range sel.Options {
		if o.Selected {
			return o.Value
		}
	}
	if sel.Kind == form.KindBoolean {
		return sel.FalseValue
	}
	if len(sel.Options) > 0 {
		return sel.Options[0].Value
	}
	return ""
}

func selectValues(value any, multiple bool) []string {
	if list, ok := value.([]any); ok {
		out := make([]string, 0, len(list))
		for _, v := range list {
			out = append(out, scalar(v))
		}
		return out
	}
	s := scalar(value)
	if multiple && strings.Contains(s, ",") {
		return strings.Split(s, ",")
	}
	return []string{s}
}

func hasOption(f *form.Field, v string) bool {
	for _, o := range f.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	}
	return fmt.Sprint(v)
}

func number(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(val), 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	}
	return false
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
