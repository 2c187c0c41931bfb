// Package usage turns action examples into generated tool tests, the
// test-data files they need and the step-by-step instructions shown in tool
// help.
package usage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/cases"
	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/pkg/model"
	"github.com/me/q2galaxy/pkg/qtype"
)

// ToolID is the Galaxy tool id of an action.
func ToolID(pluginID, actionID string) string {
	return strings.Join([]string{"qiime2", pluginID, actionID}, "__")
}

// ToolName is the display name of an action's tool.
func ToolName(pluginID, actionID string) string {
	return strings.Join([]string{"qiime2", pluginID, strings.ReplaceAll(actionID, "_", "-")}, " ")
}

// Header renders an RST section header. Levels 1 to 4 underline with
// = - * ^.
func Header(text string, level int) string {
	fill := []string{"=", "-", "*", "^"}[level-1]
	return "\n" + text + "\n" + strings.Repeat(fill, utf8.RuneCountInString(text)) + "\n"
}

// OutputExt is the archive extension of an output, without the dot.
func OutputExt(t qtype.Type) string {
	if st, ok := t.(qtype.SemanticType); ok && st.Name == artifact.VisualizationType {
		return "qzv"
	}
	return "qza"
}

// interfaceName is how example data is referred to in instructions.
func interfaceName(d plugin.ExampleData) string {
	return strings.ReplaceAll(d.Name, "_", "-") + d.Ext()
}

func testPrefix(a *plugin.Action, idx int) string {
	return fmt.Sprintf("%s.test%d", a.ID, idx)
}

// File is one test-data file of an example.
type File struct {
	Name string
	Data plugin.ExampleData
}

// Files lists the test-data files of every example of a, in example order.
func Files(a *plugin.Action) []File {
	var out []File
	for idx, ex := range a.Examples {
		for _, d := range ex.Data {
			out = append(out, File{Name: testPrefix(a, idx) + "." + interfaceName(d), Data: d})
		}
	}
	return out
}

// Write materializes the file in dir and reports whether it was created
// or replaced.
func (f File) Write(dir string) (model.Status, error) {
	path := filepath.Join(dir, f.Name)
	status := model.Status{Status: "created", Type: "file", Path: path}
	if _, err := os.Stat(path); err == nil {
		status.Status = "updated"
	}
	if err := f.Data.Write(path); err != nil {
		return model.Status{}, fmt.Errorf("write %s: %w", f.Name, err)
	}
	return status, nil
}

// Output is an expected result of a test.
type Output struct {
	Name string
	Type string
	Ext  string
}

// Test is the generated tool test of one example.
type Test struct {
	Example  string
	Fixtures []*form.Fixture
	Outputs  []Output
}

// Tests builds a test for every example of a. Data is referred to by its
// test-data file name and metadata columns by Galaxy column index.
func Tests(a *plugin.Action) ([]Test, error) {
	var out []Test
	for idx, ex := range a.Examples {
		prefix := testPrefix(a, idx)
		name := func(d plugin.ExampleData) string { return prefix + "." + interfaceName(d) }
		args, err := arguments(ex, name, columnIndex)
		if err != nil {
			return nil, fmt.Errorf("example %s: %w", ex.Name, err)
		}

		t := Test{Example: ex.Name}
		for _, c := range cases.FromSignature(a.Signature, args) {
			fixtures, err := c.Fixture()
			if err != nil {
				return nil, fmt.Errorf("example %s: %w", ex.Name, err)
			}
			t.Fixtures = append(t.Fixtures, fixtures...)
		}
		for _, o := range a.Signature.Outputs {
			if _, ok := ex.Outputs[o.Name]; !ok && len(ex.Outputs) > 0 {
				continue
			}
			t.Outputs = append(t.Outputs, Output{Name: o.Name, Type: o.Spec.Type.String(), Ext: OutputExt(o.Spec.Type)})
		}
		out = append(out, t)
	}
	return out, nil
}

// arguments maps example args to case arguments. name gives the reference
// of example data; column resolves a column reference of metadata data.
func arguments(ex plugin.Example, name func(plugin.ExampleData) string,
	column func(plugin.ExampleData, string) (string, error)) (map[string]any, error) {
	datum := func(ref string) (plugin.ExampleData, error) {
		d, ok := ex.Datum(ref)
		if !ok {
			return d, fmt.Errorf("unknown example data %q", ref)
		}
		return d, nil
	}

	args := make(map[string]any, len(ex.Args))
	for key, v := range ex.Args {
		switch val := v.(type) {
		case plugin.Ref:
			d, err := datum(string(val))
			if err != nil {
				return nil, err
			}
			args[key] = name(d)
		case plugin.ColumnRef:
			d, err := datum(val.Data)
			if err != nil {
				return nil, err
			}
			col := val.Column
			if column != nil {
				if col, err = column(d, val.Column); err != nil {
					return nil, err
				}
			}
			args[key] = cases.ColumnArg{Source: name(d), Column: col}
		case []any:
			refs := make([]any, len(val))
			isRefs := len(val) > 0
			for i, item := range val {
				r, ok := item.(plugin.Ref)
				if !ok {
					isRefs = false
					break
				}
				d, err := datum(string(r))
				if err != nil {
					return nil, err
				}
				refs[i] = name(d)
			}
			if isRefs {
				args[key] = refs
			} else {
				args[key] = val
			}
		default:
			args[key] = v
		}
	}
	return args, nil
}

// columnIndex translates a column name of metadata data into a Galaxy
// column index, where 1 is the ID column. Artifacts viewed as metadata
// keep the name.
func columnIndex(d plugin.ExampleData, column string) (string, error) {
	if !d.Metadata {
		return column, nil
	}
	dir, err := os.MkdirTemp("", "q2galaxy-usage-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "md"+d.Ext())
	if err := d.Write(path); err != nil {
		return "", err
	}
	md, err := metadata.Load(path)
	if err != nil {
		return "", err
	}
	for i, c := range md.Columns() {
		if c.Name == column {
			return strconv.Itoa(i + 2), nil
		}
	}
	return "", fmt.Errorf("%w: %q in %s", metadata.ErrColumnNotFound, column, d.Name)
}
