// Package cmdline builds the argv of an external command from the runtime
// arguments of an action.
package cmdline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/shlex"

	"github.com/me/q2galaxy/internal/expr"
)

// Binding places one parameter on the command line.
type Binding struct {
	Position      int    `yaml:"position"`
	Prefix        string `yaml:"prefix"`
	Separate      *bool  `yaml:"separate"`
	ItemSeparator string `yaml:"item_separator"`
	// ItemPrefix is repeated before every element of a list value.
	ItemPrefix string `yaml:"item_prefix"`
	// ValueFrom replaces the value with an expression result; self is the
	// parameter value.
	ValueFrom string `yaml:"value_from"`
}

// Argument is a fixed command-line part not tied to a parameter.
type Argument struct {
	Position  int    `yaml:"position"`
	Prefix    string `yaml:"prefix"`
	Separate  *bool  `yaml:"separate"`
	ValueFrom string `yaml:"value_from"`
}

// Command describes how to invoke an external program.
type Command struct {
	Base      []string
	Arguments []Argument
	Bindings  map[string]Binding
}

// ParseBase splits a shell-style command string into words.
func ParseBase(s string) ([]string, error) {
	words, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", s, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return words, nil
}

// Builder constructs command lines.
type Builder struct {
	evaluator *expr.Evaluator
}

// NewBuilder creates a builder whose expressions can use lib.
func NewBuilder(lib ...string) *Builder {
	return &Builder{evaluator: expr.NewEvaluator(lib...)}
}

// cmdPart is a part of the command line with its sort position.
type cmdPart struct {
	position int
	name     string // tie-breaker for equal positions
	args     []string
}

// Build returns the argv for cmd. inputs hold expression-friendly values:
// scalars, lists and maps (artifacts and metadata expose "path").
func (b *Builder) Build(cmd *Command, inputs map[string]any, runtime map[string]any) ([]string, error) {
	ctx := expr.NewContext(inputs)
	if runtime != nil {
		ctx.Runtime = runtime
	}

	var parts []cmdPart
	for i, arg := range cmd.Arguments {
		value, err := b.evaluator.EvaluateString(arg.ValueFrom, ctx)
		if err != nil {
			return nil, fmt.Errorf("argument[%d]: %w", i, err)
		}
		parts = append(parts, cmdPart{
			position: arg.Position,
			name:     fmt.Sprintf("arg_%d", i),
			args:     prefixed(arg.Prefix, value, arg.Separate),
		})
	}

	names := make([]string, 0, len(cmd.Bindings))
	for name := range cmd.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		part, err := b.bind(name, cmd.Bindings[name], inputs[name], ctx)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		if part != nil {
			parts = append(parts, *part)
		}
	}

	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].position != parts[j].position {
			return parts[i].position < parts[j].position
		}
		return parts[i].name < parts[j].name
	})

	argv := append([]string(nil), cmd.Base...)
	for _, p := range parts {
		argv = append(argv, p.args...)
	}
	return argv, nil
}

func (b *Builder) bind(name string, binding Binding, value any, ctx *expr.Context) (*cmdPart, error) {
	if value == nil {
		return nil, nil
	}
	part := &cmdPart{position: binding.Position, name: name}

	if binding.ValueFrom != "" {
		v, err := b.evaluator.Evaluate(binding.ValueFrom, ctx.WithSelf(value))
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		value = v
	}

	// False flags are omitted; true flags emit only the prefix.
	if flag, ok := value.(bool); ok {
		if !flag || binding.Prefix == "" {
			return nil, nil
		}
		part.args = []string{binding.Prefix}
		return part, nil
	}

	if list, ok := value.([]any); ok {
		var items []string
		for _, item := range list {
			if s := valueString(item); s != "" {
				items = append(items, s)
			}
		}
		if len(items) == 0 {
			return nil, nil
		}
		if binding.ItemSeparator != "" {
			part.args = prefixed(binding.Prefix, strings.Join(items, binding.ItemSeparator), binding.Separate)
			return part, nil
		}
		if binding.Prefix != "" {
			part.args = append(part.args, binding.Prefix)
		}
		for _, s := range items {
			if binding.ItemPrefix != "" {
				part.args = append(part.args, prefixed(binding.ItemPrefix, s, binding.Separate)...)
			} else {
				part.args = append(part.args, s)
			}
		}
		return part, nil
	}

	s := valueString(value)
	if s == "" {
		return nil, nil
	}
	part.args = prefixed(binding.Prefix, s, binding.Separate)
	return part, nil
}

// prefixed builds [prefix, value] or [prefixvalue]; separate defaults to
// true.
func prefixed(prefix, value string, separate *bool) []string {
	if prefix == "" {
		return []string{value}
	}
	if separate == nil || *separate {
		return []string{prefix, value}
	}
	return []string{prefix + value}
}

// valueString renders a value for the command line. Maps use their
// "path" entry.
func valueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any:
		if p, ok := val["path"].(string); ok {
			return p
		}
	}
	return expr.ToString(v)
}
