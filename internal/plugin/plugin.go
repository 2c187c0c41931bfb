// Package plugin holds the read-only registry of plugins and their
// actions: signatures, usage examples and the runners that execute them.
package plugin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/pkg/qtype"
)

// Plugin is a named, versioned collection of actions.
type Plugin struct {
	ID               string
	Name             string
	Version          string
	Package          string
	Website          string
	Description      string
	ShortDescription string
	Citations        []Citation
	Types            []TypeDef
	Formats          []Format
	Actions          []*Action
	// Dir is the directory of the plugin definition, empty for built-ins.
	Dir string
}

// Action finds an action by id.
func (p *Plugin) Action(id string) (*Action, bool) {
	for _, a := range p.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// Citation is a DOI or a raw BibTeX entry.
type Citation struct {
	Key    string `yaml:"key" validate:"required"`
	DOI    string `yaml:"doi"`
	BibTeX string `yaml:"bibtex"`
}

// TypeDef is a semantic type a plugin registers, with the formats its data
// can be imported from and exported to.
type TypeDef struct {
	Name        string   `yaml:"name" validate:"required"`
	Formats     []string `yaml:"formats"`
	Description string   `yaml:"description"`
}

// Format is a named on-disk layout. Files are glob patterns matched
// against file names in the payload.
type Format struct {
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description"`
	Files       []string `yaml:"files"`
}

// Matches reports whether every file in names matches one of the format's
// patterns. A format without patterns accepts anything.
func (f Format) Matches(names ...string) bool {
	if len(f.Files) == 0 {
		return true
	}
	for _, name := range names {
		ok := false
		for _, pattern := range f.Files {
			if m, _ := doublestar.Match(pattern, filepath.ToSlash(name)); m {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// ActionKind distinguishes methods, which produce artifacts, from
// visualizers, which produce a single visualization.
type ActionKind string

const (
	KindMethod     ActionKind = "method"
	KindVisualizer ActionKind = "visualizer"
)

// Action is one operation of a plugin.
type Action struct {
	ID          string
	Name        string
	Description string
	Kind        ActionKind
	Signature   qtype.Signature
	Examples    []Example
	Runner      Runner
	Plugin      *Plugin
}

// Env is what a runner may use besides its arguments.
type Env struct {
	Stdout  io.Writer
	Stderr  io.Writer
	WorkDir string
	Logger  *slog.Logger
}

// Runner executes an action and returns its outputs by name.
type Runner interface {
	Run(ctx context.Context, env Env, args map[string]any) (map[string]*artifact.Artifact, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, env Env, args map[string]any) (map[string]*artifact.Artifact, error)

func (f RunnerFunc) Run(ctx context.Context, env Env, args map[string]any) (map[string]*artifact.Artifact, error) {
	return f(ctx, env, args)
}

// Result is one saved-to-be output of an action.
type Result struct {
	Name     string
	Artifact *artifact.Artifact
}

// Call runs the action and returns its results in signature order. Every
// declared output must be produced with a compatible type.
func (a *Action) Call(ctx context.Context, env Env, args map[string]any) ([]Result, error) {
	if a.Runner == nil {
		return nil, fmt.Errorf("action %s has no runner", a.ID)
	}
	if env.Stdout == nil {
		env.Stdout = io.Discard
	}
	if env.Stderr == nil {
		env.Stderr = io.Discard
	}
	if env.Logger == nil {
		env.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if env.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		env.WorkDir = wd
	}

	outputs, err := a.Runner.Run(ctx, env, args)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(a.Signature.Outputs))
	for _, out := range a.Signature.Outputs {
		art, ok := outputs[out.Name]
		if !ok || art == nil {
			return nil, fmt.Errorf("action %s did not produce output %q", a.ID, out.Name)
		}
		if err := art.CheckType(out.Spec.Type); err != nil {
			return nil, fmt.Errorf("output %q: %w", out.Name, err)
		}
		results = append(results, Result{Name: out.Name, Artifact: art})
	}
	return results, nil
}

// Ref names example data within an example.
type Ref string

// ColumnRef selects a column of example metadata.
type ColumnRef struct {
	Data   string
	Column string
}

// Example is a usage example: the data it needs, the arguments it passes
// and the names given to its results.
type Example struct {
	Name        string
	Description string
	Data        []ExampleData
	// Args maps parameter names to literal values, Ref, ColumnRef or
	// []any of Ref.
	Args map[string]any
	// Outputs maps output names to result names.
	Outputs map[string]string
}

// Datum finds example data by name.
func (e Example) Datum(name string) (ExampleData, bool) {
	for _, d := range e.Data {
		if d.Name == name {
			return d, true
		}
	}
	return ExampleData{}, false
}

// ExampleData is an artifact or metadata file an example needs.
type ExampleData struct {
	Name     string
	Metadata bool
	Type     string
	Format   string
	// Files are the source files. When Build is set it produces them
	// instead.
	Files []string
	Build func(dir string) ([]string, error)
}

// Ext is the file extension of the materialized data.
func (d ExampleData) Ext() string {
	if d.Metadata {
		return ".tsv"
	}
	return artifact.ExtArtifact
}

// Write materializes the data at path, which should carry Ext.
func (d ExampleData) Write(path string) error {
	files := d.Files
	if d.Build != nil {
		dir, err := os.MkdirTemp("", "q2galaxy-example-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		files, err = d.Build(dir)
		if err != nil {
			return fmt.Errorf("build %s: %w", d.Name, err)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("example data %s has no files", d.Name)
	}

	if d.Metadata {
		md, err := metadata.Load(files[0])
		if err != nil {
			return err
		}
		return md.Save(path)
	}

	a, err := artifact.Import(d.Type, d.Format, files...)
	if err != nil {
		return err
	}
	defer a.Close()
	_, err = a.Save(path)
	return err
}

func sortedPlugins(m map[string]*Plugin) []*Plugin {
	out := make([]*Plugin, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
