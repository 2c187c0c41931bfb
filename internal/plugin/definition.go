package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/me/q2galaxy/internal/cmdline"
	"github.com/me/q2galaxy/pkg/qtype"
)

// DefinitionSuffix is the file name suffix of YAML plugin definitions.
const DefinitionSuffix = ".q2plugin.yaml"

var validate = validator.New(validator.WithRequiredStructEnabled())

type definition struct {
	ID               string      `yaml:"id" validate:"required,excludesall=/"`
	Name             string      `yaml:"name" validate:"required"`
	Version          string      `yaml:"version" validate:"required"`
	Package          string      `yaml:"package"`
	Website          string      `yaml:"website" validate:"omitempty,url"`
	Description      string      `yaml:"description"`
	ShortDescription string      `yaml:"short_description"`
	Citations        []Citation  `yaml:"citations" validate:"dive"`
	Types            []TypeDef   `yaml:"types" validate:"dive"`
	Formats          []Format    `yaml:"formats" validate:"dive"`
	Actions          []actionDef `yaml:"actions" validate:"required,min=1,dive"`
}

type actionDef struct {
	ID          string       `yaml:"id" validate:"required,excludesall=/"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Kind        string       `yaml:"kind" validate:"omitempty,oneof=method visualizer"`
	Inputs      []paramDef   `yaml:"inputs" validate:"dive"`
	Parameters  []paramDef   `yaml:"parameters" validate:"dive"`
	Outputs     []outputDef  `yaml:"outputs" validate:"required,min=1,dive"`
	Command     commandDef   `yaml:"command"`
	Examples    []exampleDef `yaml:"examples" validate:"dive"`
}

type paramDef struct {
	Name        string `yaml:"name" validate:"required"`
	Type        string `yaml:"type" validate:"required"`
	Description string `yaml:"description"`
	ViewType    string `yaml:"view_type"`
	// Default is kept as a node so an absent default (required) can be told
	// apart from an explicit null (defaults to None).
	Default yaml.Node `yaml:"default"`
}

type outputDef struct {
	Name        string `yaml:"name" validate:"required"`
	Type        string `yaml:"type" validate:"required"`
	Format      string `yaml:"format"`
	Description string `yaml:"description"`
	// Path is a glob relative to the working directory; it defaults to the
	// output name.
	Path string `yaml:"path"`
}

type commandDef struct {
	Run       string                     `yaml:"run" validate:"required"`
	Arguments []cmdline.Argument         `yaml:"arguments"`
	Bindings  map[string]cmdline.Binding `yaml:"bindings"`
	Env       map[string]string          `yaml:"env"`
	Lib       []string                   `yaml:"lib"`
}

type exampleDef struct {
	Name        string               `yaml:"name" validate:"required"`
	Description string               `yaml:"description"`
	Data        []exampleDataDef     `yaml:"data" validate:"dive"`
	Args        map[string]yaml.Node `yaml:"args"`
	Outputs     map[string]string    `yaml:"outputs"`
}

type exampleDataDef struct {
	Name     string   `yaml:"name" validate:"required"`
	Metadata bool     `yaml:"metadata"`
	Type     string   `yaml:"type" validate:"required_without=Metadata"`
	Format   string   `yaml:"format"`
	Files    []string `yaml:"files" validate:"required,min=1"`
}

// LoadDefinition reads a YAML plugin definition.
func LoadDefinition(path string) (*Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	p, err := ParseDefinition(data, abs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseDefinition builds a plugin from YAML. Relative file references in
// commands and examples resolve against dir.
func ParseDefinition(data []byte, dir string) (*Plugin, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse plugin definition: %w", err)
	}
	if err := validate.Struct(def); err != nil {
		return nil, fmt.Errorf("invalid plugin definition: %w", err)
	}
	if _, err := semver.NewVersion(def.Version); err != nil {
		return nil, fmt.Errorf("invalid plugin version %q: %w", def.Version, err)
	}

	p := &Plugin{
		ID:               def.ID,
		Name:             def.Name,
		Version:          def.Version,
		Package:          def.Package,
		Website:          def.Website,
		Description:      def.Description,
		ShortDescription: def.ShortDescription,
		Citations:        def.Citations,
		Types:            def.Types,
		Formats:          def.Formats,
		Dir:              dir,
	}
	seen := make(map[string]bool)
	for _, ad := range def.Actions {
		if seen[ad.ID] {
			return nil, fmt.Errorf("duplicate action %q", ad.ID)
		}
		seen[ad.ID] = true
		a, err := buildAction(ad, dir)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", ad.ID, err)
		}
		a.Plugin = p
		p.Actions = append(p.Actions, a)
	}
	return p, nil
}

func buildAction(ad actionDef, dir string) (*Action, error) {
	a := &Action{
		ID:          ad.ID,
		Name:        ad.Name,
		Description: ad.Description,
		Kind:        ActionKind(ad.Kind),
	}
	if a.Name == "" {
		a.Name = ad.ID
	}
	if a.Kind == "" {
		a.Kind = KindMethod
	}

	var err error
	if a.Signature.Inputs, err = buildParams(ad.Inputs); err != nil {
		return nil, err
	}
	if a.Signature.Parameters, err = buildParams(ad.Parameters); err != nil {
		return nil, err
	}
	for _, in := range a.Signature.Inputs {
		if !isArtifactType(in.Spec.Type) {
			return nil, fmt.Errorf("input %q must be a semantic type, got %s", in.Name, in.Spec.Type)
		}
	}

	runner := &CommandRunner{Dir: dir, Env: ad.Command.Env, Lib: ad.Command.Lib}
	for _, od := range ad.Outputs {
		t, err := qtype.Parse(od.Type)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", od.Name, err)
		}
		if _, ok := t.(qtype.SemanticType); !ok {
			return nil, fmt.Errorf("output %q must be a semantic type, got %s", od.Name, t)
		}
		a.Signature.Outputs = append(a.Signature.Outputs, qtype.Param{
			Name: od.Name,
			Spec: qtype.Required(t, od.Description),
		})
		path := od.Path
		if path == "" {
			path = od.Name
		}
		runner.Outputs = append(runner.Outputs, OutputBinding{
			Name: od.Name, Type: od.Type, Format: od.Format, Path: path,
		})
	}
	if a.Kind == KindVisualizer {
		if len(a.Signature.Outputs) != 1 || a.Signature.Outputs[0].Spec.Type.String() != "Visualization" {
			return nil, fmt.Errorf("a visualizer must have exactly one Visualization output")
		}
	}

	base, err := cmdline.ParseBase(ad.Command.Run)
	if err != nil {
		return nil, err
	}
	for name := range ad.Command.Bindings {
		if _, ok := a.Signature.Lookup(name); !ok {
			return nil, fmt.Errorf("binding for unknown parameter %q", name)
		}
	}
	runner.Command = &cmdline.Command{
		Base:      base,
		Arguments: ad.Command.Arguments,
		Bindings:  ad.Command.Bindings,
	}
	a.Runner = runner

	for _, ed := range ad.Examples {
		ex, err := buildExample(ed, a.Signature, dir)
		if err != nil {
			return nil, fmt.Errorf("example %s: %w", ed.Name, err)
		}
		a.Examples = append(a.Examples, ex)
	}
	return a, nil
}

func isArtifactType(t qtype.Type) bool {
	switch tt := t.(type) {
	case qtype.SemanticType:
		return true
	case qtype.UnionType:
		for _, m := range tt.Members {
			if !isArtifactType(m) {
				return false
			}
		}
		return true
	case qtype.CollectionType:
		return isArtifactType(tt.Element)
	}
	return false
}

func buildParams(defs []paramDef) ([]qtype.Param, error) {
	var params []qtype.Param
	seen := make(map[string]bool)
	for _, pd := range defs {
		if seen[pd.Name] {
			return nil, fmt.Errorf("duplicate parameter %q", pd.Name)
		}
		seen[pd.Name] = true
		t, err := qtype.Parse(pd.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", pd.Name, err)
		}
		spec := qtype.Required(t, pd.Description)
		if pd.Default.Kind != 0 {
			def, err := decodeValue(t, &pd.Default)
			if err != nil {
				return nil, fmt.Errorf("parameter %q default: %w", pd.Name, err)
			}
			spec = qtype.Optional(t, def, pd.Description)
		}
		spec.ViewType = pd.ViewType
		params = append(params, qtype.Param{Name: pd.Name, Spec: spec})
	}
	return params, nil
}

// decodeValue converts a YAML literal to a runtime value of type t.
func decodeValue(t qtype.Type, node *yaml.Node) (any, error) {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}
	v, err := normalize(t, raw)
	if err != nil {
		return nil, err
	}
	if v != nil && !qtype.Contains(t, v) {
		return nil, fmt.Errorf("%s is not in %s", qtype.Repr(v), t)
	}
	return v, nil
}

// normalize maps decoded YAML values onto runtime values: int64 for
// integers, []any for lists and *qtype.Set for sets.
func normalize(t qtype.Type, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		ct, ok := collectionOf(t)
		if !ok {
			return nil, fmt.Errorf("unexpected list for %s", t)
		}
		items := make([]any, len(v))
		for i, item := range v {
			n, err := normalize(ct.Element, item)
			if err != nil {
				return nil, err
			}
			items[i] = n
		}
		if ct.Kind == qtype.SetKind {
			return qtype.NewSet(items...), nil
		}
		return items, nil
	case int:
		return normalize(t, int64(v))
	case int64:
		if wantsFloat(t) {
			return float64(v), nil
		}
		return v, nil
	case float64, bool, string:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported value %v (%T)", raw, raw)
}

func collectionOf(t qtype.Type) (qtype.CollectionType, bool) {
	switch tt := t.(type) {
	case qtype.CollectionType:
		return tt, true
	case qtype.UnionType:
		for _, m := range tt.Members {
			if ct, ok := m.(qtype.CollectionType); ok {
				return ct, true
			}
		}
	}
	return qtype.CollectionType{}, false
}

func wantsFloat(t qtype.Type) bool {
	p, ok := t.(qtype.PrimitiveType)
	return ok && p.Name == qtype.Float
}

func buildExample(ed exampleDef, sig qtype.Signature, dir string) (Example, error) {
	ex := Example{
		Name:        ed.Name,
		Description: ed.Description,
		Args:        make(map[string]any, len(ed.Args)),
		Outputs:     ed.Outputs,
	}
	for _, dd := range ed.Data {
		files := make([]string, len(dd.Files))
		for i, f := range dd.Files {
			if !filepath.IsAbs(f) {
				f = filepath.Join(dir, f)
			}
			files[i] = f
		}
		ex.Data = append(ex.Data, ExampleData{
			Name: dd.Name, Metadata: dd.Metadata, Type: dd.Type, Format: dd.Format, Files: files,
		})
	}
	for name, node := range ed.Args {
		spec, ok := sig.Lookup(name)
		if !ok {
			return Example{}, fmt.Errorf("unknown parameter %q", name)
		}
		v, err := exampleArg(spec.Type, &node)
		if err != nil {
			return Example{}, fmt.Errorf("argument %q: %w", name, err)
		}
		ex.Args[name] = v
	}
	for out := range ed.Outputs {
		found := false
		for _, o := range sig.Outputs {
			if o.Name == out {
				found = true
			}
		}
		if !found {
			return Example{}, fmt.Errorf("unknown output %q", out)
		}
	}
	return ex, nil
}

// exampleArg decodes an example argument: {ref: x} is a Ref,
// {ref: x, column: c} a ColumnRef, a list of refs a []any of Ref, anything
// else a literal.
func exampleArg(t qtype.Type, node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		var m struct {
			Ref    string `yaml:"ref"`
			Column string `yaml:"column"`
		}
		if err := node.Decode(&m); err != nil {
			return nil, err
		}
		if m.Ref == "" {
			return nil, fmt.Errorf("mapping argument needs a ref")
		}
		if m.Column != "" {
			return ColumnRef{Data: m.Ref, Column: m.Column}, nil
		}
		return Ref(m.Ref), nil
	case yaml.SequenceNode:
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
			refs := make([]any, 0, len(node.Content))
			for _, child := range node.Content {
				r, err := exampleArg(t, child)
				if err != nil {
					return nil, err
				}
				refs = append(refs, r)
			}
			return refs, nil
		}
	}
	return decodeValue(t, node)
}

// newerVersion reports whether version a is newer than b.
func newerVersion(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a > b
	}
	return va.GreaterThan(vb)
}
