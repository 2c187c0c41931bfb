// Package builtins implements the tools that ship with q2galaxy itself
// rather than with a plugin: importing files into an artifact and
// exporting an artifact's payload.
package builtins

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/copy"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/stdio"
	"github.com/me/q2galaxy/pkg/model"
	"github.com/me/q2galaxy/pkg/qtype"
)

// PluginID is the pseudo-plugin the built-in tools are invoked under.
const PluginID = "tools"

const (
	ActionImport = "import"
	ActionExport = "export"
)

// ImportedName is the base name of the artifact written by import.
const ImportedName = "imported_data"

// Stage headers.
const (
	HeaderFind         = "Unexpected error finding tool: "
	HeaderCollect      = "Unexpected error collecting arguments: "
	HeaderImport       = "Unexpected error importing data: "
	HeaderSaveQZA      = "Unexpected error saving QZA: "
	HeaderConvert      = "Error converting format:\n"
	HeaderSaveExported = "Unexpected error saving output: "
)

// noFormat is the export format meaning "the payload as stored".
const noFormat = "None"

// Tools runs the built-in tools.
type Tools struct {
	registry *plugin.Registry
	workDir  string
	logger   *slog.Logger
}

// New creates the built-in tools. Results are written to workDir.
func New(reg *plugin.Registry, workDir string, logger *slog.Logger) *Tools {
	return &Tools{registry: reg, workDir: workDir, logger: logger.With("component", "builtins")}
}

// Actions lists the built-in tool ids.
func Actions() []string {
	return []string{ActionExport, ActionImport}
}

// Run executes the built-in tool actionID inside sess. raw is the job
// configuration as written by the tool runner.
func (t *Tools) Run(sess *stdio.Session, actionID string, raw map[string]any) error {
	raw = galaxy.CleanInputs(raw)
	var tool func(*stdio.Session, map[string]any) error
	err := sess.Run(HeaderFind, func(stdout, stderr io.Writer) error {
		switch actionID {
		case ActionImport:
			tool = t.importData
		case ActionExport:
			tool = t.exportData
		default:
			return model.NewError(model.ErrActionResolution, nil, "%s does not exist.", actionID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := tool(sess, raw); err != nil {
		return err
	}
	return sess.Flush()
}

// move is one file to place in the import directory.
type move struct {
	src, dst string
}

type importArgs struct {
	typ    string
	format plugin.Format
	files  []move
}

func (t *Tools) importData(sess *stdio.Session, raw map[string]any) error {
	var args importArgs
	err := sess.Run(HeaderCollect, func(stdout, stderr io.Writer) error {
		var err error
		args, err = t.importArgs(raw)
		if err != nil {
			return model.NewError(model.ErrArgumentConversion, err, "")
		}
		fmt.Fprintf(stdout, "｢type: %s｣\n", args.typ)
		fmt.Fprintf(stdout, "｢format: %s｣\n", args.format.Name)
		return nil
	})
	if err != nil {
		return err
	}

	var art *artifact.Artifact
	err = sess.Run(HeaderImport, func(stdout, stderr io.Writer) error {
		var err error
		art, err = t.stage(args)
		if err != nil {
			return model.NewError(model.ErrExecution, err, "")
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer art.Close()

	return sess.Run(HeaderSaveQZA, func(stdout, stderr io.Writer) error {
		location, err := art.Save(filepath.Join(t.workDir, ImportedName))
		if err != nil {
			return model.NewError(model.ErrResultPersist, err, "")
		}
		t.logger.Debug("imported", "type", art.Type, "path", location, "size", art.HumanSize())
		return nil
	})
}

// importArgs reads {type, format, import: {data}} or any number of
// import_<attr> entries, each {data, name} or {elements: [{data, name}],
// ext}.
func (t *Tools) importArgs(raw map[string]any) (importArgs, error) {
	var args importArgs
	typ, _ := raw["type"].(string)
	parsed, err := qtype.Parse(typ)
	if err != nil {
		return args, fmt.Errorf("invalid type %q: %w", typ, err)
	}
	if _, ok := parsed.(qtype.SemanticType); !ok {
		return args, fmt.Errorf("%s is not a semantic type", typ)
	}
	args.typ = parsed.String()

	formatName, _ := raw["format"].(string)
	format, ok := t.registry.Format(formatName)
	if !ok {
		return args, fmt.Errorf("unknown format %q", formatName)
	}
	args.format = format
	if formats := t.registry.TypeFormats(args.typ); len(formats) > 0 && !contains(formats, formatName) {
		return args, fmt.Errorf("%s cannot be imported as %s", formatName, args.typ)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if k != "type" && k != "format" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.HasPrefix(key, "import") {
			return args, fmt.Errorf("Unknown instruction in JSON: %s", key)
		}
		value, _ := raw[key].(map[string]any)
		if value == nil {
			return args, fmt.Errorf("%s must be an object", key)
		}
		value = flatten(value)
		if key == "import" {
			data, err := field(value, "data")
			if err != nil {
				return args, err
			}
			args.files = append(args.files, move{src: data, dst: singleFileName(args.format, data)})
			continue
		}
		if elements, ok := value["elements"].([]any); ok {
			ext, _ := value["ext"].(string)
			for _, e := range elements {
				el, _ := e.(map[string]any)
				m, err := namedMove(el, ext)
				if err != nil {
					return args, fmt.Errorf("%s: %w", key, err)
				}
				args.files = append(args.files, m)
			}
			continue
		}
		m, err := namedMove(value, "")
		if err != nil {
			return args, fmt.Errorf("%s: %w", key, err)
		}
		args.files = append(args.files, m)
	}
	if len(args.files) == 0 {
		return args, errors.New("nothing to import")
	}
	return args, nil
}

// flatten folds structural UI keys holding mappings into m. Lists are
// left alone since collection elements are mappings themselves.
func flatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if inner, ok := v.(map[string]any); ok && galaxy.IsUIVar(k) {
			for ik, iv := range flatten(inner) {
				out[ik] = iv
			}
			continue
		}
		if galaxy.IsUIVar(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func namedMove(m map[string]any, ext string) (move, error) {
	data, err := field(m, "data")
	if err != nil {
		return move{}, err
	}
	name, err := field(m, "name")
	if err != nil {
		return move{}, err
	}
	return move{src: data, dst: name + ext}, nil
}

func field(m map[string]any, key string) (string, error) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("missing %q", key)
	}
	return s, nil
}

// singleFileName is the payload name of a file imported whole: the
// format's only file when it names one, else the file's own name.
func singleFileName(format plugin.Format, path string) string {
	if len(format.Files) == 1 && !strings.ContainsAny(format.Files[0], "*?[{") {
		return format.Files[0]
	}
	return filepath.Base(path)
}

// stage imports a single unrenamed file directly, and otherwise copies
// every file under its target name into a scratch directory first.
func (t *Tools) stage(args importArgs) (*artifact.Artifact, error) {
	names := make([]string, len(args.files))
	for i, m := range args.files {
		names[i] = filepath.Base(m.dst)
	}
	if len(args.files) == 1 && filepath.Base(args.files[0].src) == args.files[0].dst {
		return artifact.Import(args.typ, args.format.Name, args.files[0].src)
	}
	if !args.format.Matches(names...) {
		return nil, fmt.Errorf("files %s do not match %s (%s)",
			strings.Join(names, ", "), args.format.Name, strings.Join(args.format.Files, ", "))
	}

	dir, err := os.MkdirTemp(t.workDir, "q2galaxy-import")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	for _, m := range args.files {
		if err := copy.Copy(m.src, filepath.Join(dir, m.dst)); err != nil {
			return nil, err
		}
	}
	return artifact.Import(args.typ, args.format.Name, dir)
}

func (t *Tools) exportData(sess *stdio.Session, raw map[string]any) error {
	var art *artifact.Artifact
	var format *plugin.Format
	err := sess.Run(HeaderCollect, func(stdout, stderr io.Writer) error {
		var err error
		art, format, err = t.exportArgs(raw)
		if err != nil {
			return model.NewError(model.ErrArgumentConversion, err, "")
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer art.Close()

	var view []string
	err = sess.Run(HeaderConvert, func(stdout, stderr io.Writer) error {
		if format == nil {
			if err := art.Export(t.workDir); err != nil {
				return model.NewError(model.ErrExecution, err, "")
			}
			return nil
		}
		var err error
		view, err = viewAs(art, *format)
		if err != nil {
			return model.NewError(model.ErrExecution, err, "")
		}
		return nil
	})
	if err != nil {
		return err
	}

	return sess.Run(HeaderSaveExported, func(stdout, stderr io.Writer) error {
		for _, rel := range view {
			src := filepath.Join(art.DataDir(), filepath.FromSlash(rel))
			if err := copy.Copy(src, filepath.Join(t.workDir, filepath.FromSlash(rel))); err != nil {
				return model.NewError(model.ErrResultPersist, err, "")
			}
		}
		return nil
	})
}

func (t *Tools) exportArgs(raw map[string]any) (*artifact.Artifact, *plugin.Format, error) {
	input, _ := raw["input"].(string)
	if input == "" {
		return nil, nil, errors.New(`missing "input"`)
	}
	finder, _ := raw["fmt_finder"].(map[string]any)
	name, _ := finder["output_format"].(string)
	if name == "" {
		return nil, nil, errors.New(`missing "fmt_finder.output_format"`)
	}

	var format *plugin.Format
	if name != noFormat {
		f, ok := t.registry.Format(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown format %q", name)
		}
		format = &f
	}
	art, err := artifact.Load(input)
	if err != nil {
		return nil, nil, err
	}
	return art, format, nil
}

// viewAs returns the payload files to write for format. Without format
// transformers, a payload can only be viewed as its own format or as a
// format whose file patterns it already satisfies.
func viewAs(art *artifact.Artifact, format plugin.Format) ([]string, error) {
	files, err := art.Files()
	if err != nil {
		return nil, err
	}
	if art.Format == format.Name || (len(format.Files) > 0 && format.Matches(files...)) {
		return files, nil
	}
	return nil, fmt.Errorf("%s (%s) cannot be viewed as %s", art.Type, art.Format, format.Name)
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
