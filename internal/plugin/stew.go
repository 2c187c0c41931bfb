package plugin

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/pkg/qtype"
)

// StewID is the id of the built-in test plugin.
const StewID = "mystery_stew"

const (
	echoFile = "echo.txt"
	intsFile = "ints.txt"
)

// MysteryStew builds the built-in test plugin. Its actions cover every
// parameter shape the tool generator handles and echo their arguments
// into an EchoOutput artifact.
func MysteryStew() *Plugin {
	p := &Plugin{
		ID:               StewID,
		Name:             "mystery-stew",
		Version:          "0.1.0",
		Package:          "q2-mystery-stew",
		Website:          "https://github.com/qiime2/q2-mystery-stew",
		ShortDescription: "Test plugin exercising every parameter shape.",
		Description:      "A plugin whose actions echo their arguments, used to test generated tools.",
		Types: []TypeDef{
			{Name: "EchoOutput", Formats: []string{"EchoFormat"}},
			{Name: "IntSequence1", Formats: []string{"IntSequenceFormat"}},
			{Name: "IntSequence2", Formats: []string{"IntSequenceFormat"}},
			{Name: "Mapping", Formats: []string{"MappingFormat"}},
		},
		Formats: []Format{
			{Name: "EchoFormat", Description: "Echoed arguments, one per line.", Files: []string{echoFile}},
			{Name: "IntSequenceFormat", Description: "One integer per line.", Files: []string{intsFile}},
			{Name: "MappingFormat", Description: "Two-column TSV mapping.", Files: []string{"mapping.tsv"}},
		},
	}

	param := func(name, typ string) qtype.Param {
		return qtype.Param{Name: name, Spec: qtype.Required(qtype.MustParse(typ), "")}
	}
	optional := func(name, typ string, def any) qtype.Param {
		return qtype.Param{Name: name, Spec: qtype.Optional(qtype.MustParse(typ), def, "")}
	}
	echoOut := []qtype.Param{param("out", "EchoOutput")}
	echoResult := map[string]string{"out": "echo"}

	ints := ExampleData{Name: "ints1", Type: "IntSequence1", Format: "IntSequenceFormat", Build: intSequence(1, 2, 3)}
	mapping := ExampleData{Name: "mapping1", Type: "Mapping", Format: "MappingFormat", Build: mappingTSV}
	md := ExampleData{Name: "sample_md", Metadata: true, Build: sampleMetadata}

	actions := []*Action{
		{
			ID:          "primitive_params",
			Description: "Required primitive parameters.",
			Signature: qtype.Signature{
				Parameters: []qtype.Param{
					param("int_range", "Int % Range(0, 10)"),
					param("float_param", "Float"),
					param("str_param", "Str"),
					param("bool_param", "Bool"),
				},
				Outputs: echoOut,
			},
			Examples: []Example{{
				Name: "basic",
				Args: map[string]any{
					"int_range": int64(5), "float_param": 1.5, "str_param": "hello", "bool_param": true,
				},
				Outputs: echoResult,
			}},
		},
		{
			ID:          "optional_params",
			Description: "Primitive parameters with defaults.",
			Signature: qtype.Signature{
				Parameters: []qtype.Param{
					optional("an_int", "Int", nil),
					optional("a_choice", "Str % Choices('x', 'y', 'z')", "x"),
					optional("a_fraction", "Float % Range(0.0, 1.0, inclusive_end=True)", 0.5),
					optional("a_toggle", "Bool", true),
				},
				Outputs: echoOut,
			},
			Examples: []Example{
				{Name: "defaults", Args: map[string]any{}, Outputs: echoResult},
				{
					Name:    "overrides",
					Args:    map[string]any{"an_int": int64(3), "a_choice": "z", "a_toggle": false},
					Outputs: echoResult,
				},
			},
		},
		{
			ID:          "union_params",
			Description: "Parameters whose type is a union of primitives.",
			Signature: qtype.Signature{
				Parameters: []qtype.Param{
					optional("a_threshold", "Int % Range(1, None) | Str % Choices('auto')", "auto"),
					optional("a_mode", "Str % Choices('x', 'y') | Bool", true),
				},
				Outputs: echoOut,
			},
			Examples: []Example{{
				Name:    "explicit",
				Args:    map[string]any{"a_threshold": int64(5), "a_mode": "y"},
				Outputs: echoResult,
			}},
		},
		{
			ID:          "collection_params",
			Description: "List and set parameters.",
			Signature: qtype.Signature{
				Parameters: []qtype.Param{
					param("ints", "List[Int]"),
					optional("strs", "Set[Str]", nil),
				},
				Outputs: echoOut,
			},
			Examples: []Example{{
				Name:    "both",
				Args:    map[string]any{"ints": []any{int64(1), int64(2), int64(3)}, "strs": qtype.NewSet("a", "b")},
				Outputs: echoResult,
			}},
		},
		{
			ID:          "metadata_params",
			Description: "Metadata and metadata column parameters.",
			Signature: qtype.Signature{
				Parameters: []qtype.Param{
					param("md", "Metadata"),
					param("col", "MetadataColumn[Numeric]"),
					optional("cat_col", "MetadataColumn[Categorical]", nil),
				},
				Outputs: echoOut,
			},
			Examples: []Example{{
				Name: "columns",
				Data: []ExampleData{md},
				Args: map[string]any{
					"md":      Ref("sample_md"),
					"col":     ColumnRef{Data: "sample_md", Column: "depth"},
					"cat_col": ColumnRef{Data: "sample_md", Column: "body_site"},
				},
				Outputs: echoResult,
			}},
		},
		{
			ID:          "artifact_params",
			Description: "Artifact inputs; doubles the input sequence.",
			Signature: qtype.Signature{
				Inputs: []qtype.Param{
					param("seq", "IntSequence1 | IntSequence2"),
					optional("mapping", "Mapping", nil),
				},
				Outputs: []qtype.Param{param("out", "EchoOutput"), param("doubled", "IntSequence1")},
			},
			Examples: []Example{{
				Name:    "sequence_and_mapping",
				Data:    []ExampleData{ints, mapping},
				Args:    map[string]any{"seq": Ref("ints1"), "mapping": Ref("mapping1")},
				Outputs: map[string]string{"out": "echo", "doubled": "doubled"},
			}},
		},
		{
			ID:          "unsupported_params",
			Description: "A parameter shape no form field can express.",
			Signature: qtype.Signature{
				Parameters: []qtype.Param{param("values", "List[Int] | List[Str]")},
				Outputs:    echoOut,
			},
		},
		{
			ID:          "visualize",
			Kind:        KindVisualizer,
			Description: "Render an integer sequence as HTML.",
			Signature: qtype.Signature{
				Inputs:     []qtype.Param{param("seq", "IntSequence1")},
				Parameters: []qtype.Param{optional("title", "Str", "Sequence")},
				Outputs:    []qtype.Param{param("visualization", artifact.VisualizationType)},
			},
			Examples: []Example{{
				Name:    "titled",
				Data:    []ExampleData{ints},
				Args:    map[string]any{"seq": Ref("ints1"), "title": "My ints"},
				Outputs: map[string]string{"visualization": "viz"},
			}},
		},
		{
			ID:          "fail",
			Description: "Always fails after writing to stdout.",
			Signature: qtype.Signature{
				Parameters: []qtype.Param{optional("message", "Str", "requested failure")},
				Outputs:    echoOut,
			},
		},
	}

	for _, a := range actions {
		a.Plugin = p
		if a.Kind == "" {
			a.Kind = KindMethod
		}
		a.Name = strings.ReplaceAll(a.ID, "_", " ")
		a.Runner = stewRunner(a)
	}
	p.Actions = actions
	return p
}

func stewRunner(a *Action) Runner {
	sig := a.Signature
	switch a.ID {
	case "visualize":
		return RunnerFunc(func(ctx context.Context, env Env, args map[string]any) (map[string]*artifact.Artifact, error) {
			viz, err := visualize(args)
			if err != nil {
				return nil, err
			}
			return map[string]*artifact.Artifact{"visualization": viz}, nil
		})
	case "fail":
		return RunnerFunc(func(ctx context.Context, env Env, args map[string]any) (map[string]*artifact.Artifact, error) {
			fmt.Fprintln(env.Stdout, "about to fail")
			return nil, fmt.Errorf("%v", args["message"])
		})
	}
	return RunnerFunc(func(ctx context.Context, env Env, args map[string]any) (map[string]*artifact.Artifact, error) {
		out, err := echo(sig, args)
		if err != nil {
			return nil, err
		}
		results := map[string]*artifact.Artifact{"out": out}
		if a.ID == "artifact_params" {
			doubled, err := double(args["seq"])
			if err != nil {
				out.Close()
				return nil, err
			}
			results["doubled"] = doubled
		}
		return results, nil
	})
}

// Echo renders args in signature order, one "name: value" line each.
func Echo(sig qtype.Signature, args map[string]any) string {
	var b strings.Builder
	for _, group := range [][]qtype.Param{sig.Inputs, sig.Parameters} {
		for _, p := range group {
			fmt.Fprintf(&b, "%s: %s\n", p.Name, qtype.Repr(args[p.Name]))
		}
	}
	return b.String()
}

func echo(sig qtype.Signature, args map[string]any) (*artifact.Artifact, error) {
	return importBuilt("EchoOutput", "EchoFormat", echoFile, []byte(Echo(sig, args)))
}

func importBuilt(typ, format, name string, data []byte) (*artifact.Artifact, error) {
	dir, err := os.MkdirTemp("", "q2galaxy-stew-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return artifact.Import(typ, format, path)
}

func readInts(a *artifact.Artifact) ([]int64, error) {
	f, err := os.Open(filepath.Join(a.DataDir(), intsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", intsFile, err)
		}
		out = append(out, n)
	}
	return out, sc.Err()
}

func formatInts(ns []int64) []byte {
	var b strings.Builder
	for _, n := range ns {
		b.WriteString(strconv.FormatInt(n, 10))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func double(v any) (*artifact.Artifact, error) {
	seq, ok := v.(*artifact.Artifact)
	if !ok {
		return nil, fmt.Errorf("seq is %T, not an artifact", v)
	}
	ns, err := readInts(seq)
	if err != nil {
		return nil, err
	}
	for i := range ns {
		ns[i] *= 2
	}
	return importBuilt("IntSequence1", "IntSequenceFormat", intsFile, formatInts(ns))
}

func visualize(args map[string]any) (*artifact.Artifact, error) {
	seq, ok := args["seq"].(*artifact.Artifact)
	if !ok {
		return nil, fmt.Errorf("seq is %T, not an artifact", args["seq"])
	}
	ns, err := readInts(seq)
	if err != nil {
		return nil, err
	}
	title := html.EscapeString(qtype.Text(args["title"]))
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><h1>%s</h1><ol>\n", title, title)
	for _, n := range ns {
		fmt.Fprintf(&b, "<li>%d</li>\n", n)
	}
	b.WriteString("</ol></body></html>\n")
	return importBuilt(artifact.VisualizationType, "HTMLFormat", "index.html", []byte(b.String()))
}

func intSequence(ns ...int64) func(dir string) ([]string, error) {
	return func(dir string) ([]string, error) {
		path := filepath.Join(dir, intsFile)
		return []string{path}, os.WriteFile(path, formatInts(ns), 0o644)
	}
}

func mappingTSV(dir string) ([]string, error) {
	path := filepath.Join(dir, "mapping.tsv")
	return []string{path}, os.WriteFile(path, []byte("key\tvalue\na\t1\nb\t2\n"), 0o644)
}

func sampleMetadata(dir string) ([]string, error) {
	md := metadata.New("sample-id", []string{"s1", "s2", "s3"},
		&metadata.Column{Name: "depth", Type: metadata.Numeric, Values: []string{"10", "20", "30"}},
		&metadata.Column{Name: "body_site", Type: metadata.Categorical, Values: []string{"gut", "skin", "gut"}},
	)
	path := filepath.Join(dir, "sample_md.tsv")
	return []string{path}, md.Save(path)
}
