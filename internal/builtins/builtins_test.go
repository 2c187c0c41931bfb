package builtins

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/stdio"
	"github.com/me/q2galaxy/pkg/model"
)

type fixture struct {
	tools   *Tools
	sess    *stdio.Session
	workDir string
	stdout  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sess, err := stdio.Open()
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	f := &fixture{sess: sess, workDir: t.TempDir(), stdout: &bytes.Buffer{}}
	sess.Stdout, sess.Stderr = f.stdout, &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.tools = New(plugin.NewRegistry(plugin.MysteryStew()), f.workDir, logger)
	return f
}

func writeInts(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("1\n2\n3\n"), 0o644))
	return p
}

func loadImported(t *testing.T, workDir string) *artifact.Artifact {
	t.Helper()
	art, err := artifact.Load(filepath.Join(workDir, ImportedName+artifact.ExtArtifact))
	require.NoError(t, err)
	t.Cleanup(func() { art.Close() })
	return art
}

func TestImport(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) map[string]any
	}{
		{"direct", func(t *testing.T) map[string]any {
			return map[string]any{"import": map[string]any{"data": writeInts(t, "ints.txt")}}
		}},
		{"dataset", func(t *testing.T) map[string]any {
			return map[string]any{"import": map[string]any{"data": writeInts(t, "dataset_9.dat")}}
		}},
		{"renamed", func(t *testing.T) map[string]any {
			return map[string]any{"import_ints": map[string]any{"data": writeInts(t, "dataset_1.dat"), "name": "ints.txt"}}
		}},
		{"elements", func(t *testing.T) map[string]any {
			return map[string]any{"import_ints": map[string]any{
				"elements": []any{map[string]any{"data": writeInts(t, "dataset_2.dat"), "name": "ints"}},
				"ext":      ".txt",
			}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			raw := tt.data(t)
			raw["type"] = "IntSequence1"
			raw["format"] = "IntSequenceFormat"

			require.NoError(t, f.tools.Run(f.sess, ActionImport, raw))
			assert.Contains(t, f.stdout.String(), "｢type: IntSequence1｣\n｢format: IntSequenceFormat｣\n")

			art := loadImported(t, f.workDir)
			assert.Equal(t, "IntSequence1", art.Type)
			assert.Equal(t, "IntSequenceFormat", art.Format)
			files, err := art.Files()
			require.NoError(t, err)
			assert.Equal(t, []string{"ints.txt"}, files)
		})
	}
}

func TestImportFromToolForm(t *testing.T) {
	f := newFixture(t)
	raw := map[string]any{
		"type": "IntSequence1",
		galaxy.UIVar("cond", "format"): map[string]any{
			"format": "IntSequenceFormat",
			"import_ints": map[string]any{
				galaxy.UIVar("cond", "ints"): map[string]any{
					galaxy.UIVar("select", "picker"): "individual",
					"elements": []any{
						map[string]any{"data": writeInts(t, "dataset_3.dat"), "name": "ints.txt"},
					},
				},
			},
		},
	}

	require.NoError(t, f.tools.Run(f.sess, ActionImport, raw))
	files, err := loadImported(t, f.workDir).Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"ints.txt"}, files)
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    func(t *testing.T) map[string]any
		kind   model.ErrorKind
		header string
		msg    string
	}{
		{
			name: "unknown instruction",
			raw: func(t *testing.T) map[string]any {
				return map[string]any{"type": "IntSequence1", "format": "IntSequenceFormat", "bogus": "x"}
			},
			kind:   model.ErrArgumentConversion,
			header: "Unexpected error collecting",
			msg:    "Unknown instruction in JSON: bogus",
		},
		{
			name: "format not of type",
			raw: func(t *testing.T) map[string]any {
				return map[string]any{"type": "IntSequence1", "format": "EchoFormat",
					"import": map[string]any{"data": writeInts(t, "ints.txt")}}
			},
			kind:   model.ErrArgumentConversion,
			header: "Unexpected error collecting",
			msg:    "cannot be imported",
		},
		{
			name: "files do not match format",
			raw: func(t *testing.T) map[string]any {
				return map[string]any{"type": "IntSequence1", "format": "IntSequenceFormat",
					"import_ints": map[string]any{"data": writeInts(t, "a.dat"), "name": "wrong.txt"}}
			},
			kind:   model.ErrExecution,
			header: "Unexpected error importing",
			msg:    "do not match",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.tools.Run(f.sess, ActionImport, tt.raw(t))
			require.Error(t, err)
			assert.Equal(t, tt.kind, model.KindOf(err))
			assert.Contains(t, err.Error(), tt.msg)
			assert.Contains(t, f.stdout.String(), tt.header)
			assert.NoFileExists(t, filepath.Join(f.workDir, ImportedName+artifact.ExtArtifact))
		})
	}
}

func TestUnknownTool(t *testing.T) {
	f := newFixture(t)
	err := f.tools.Run(f.sess, "nope", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, model.ErrActionResolution, model.KindOf(err))
	assert.Equal(t, "nope does not exist.", err.Error())
	assert.Contains(t, f.stdout.String(), "Unexpected error finding tool:")
}

func savedInts(t *testing.T) string {
	t.Helper()
	art, err := artifact.Import("IntSequence1", "IntSequenceFormat", writeInts(t, "ints.txt"))
	require.NoError(t, err)
	defer art.Close()
	path, err := art.Save(filepath.Join(t.TempDir(), "seq"))
	require.NoError(t, err)
	return path
}

func TestExport(t *testing.T) {
	for _, format := range []string{"None", "IntSequenceFormat"} {
		t.Run(format, func(t *testing.T) {
			f := newFixture(t)
			raw := map[string]any{
				"input":      savedInts(t),
				"fmt_finder": map[string]any{"output_format": format},
			}
			require.NoError(t, f.tools.Run(f.sess, ActionExport, raw))

			got, err := os.ReadFile(filepath.Join(f.workDir, "ints.txt"))
			require.NoError(t, err)
			assert.Equal(t, "1\n2\n3\n", string(got))
		})
	}
}

func TestExportErrors(t *testing.T) {
	f := newFixture(t)
	raw := map[string]any{
		"input":      savedInts(t),
		"fmt_finder": map[string]any{"output_format": "EchoFormat"},
	}
	err := f.tools.Run(f.sess, ActionExport, raw)
	require.Error(t, err)
	assert.Equal(t, model.ErrExecution, model.KindOf(err))
	assert.Contains(t, f.stdout.String(), "Error converting format:")
	assert.NoFileExists(t, filepath.Join(f.workDir, "ints.txt"))

	f = newFixture(t)
	err = f.tools.Run(f.sess, ActionExport, map[string]any{"fmt_finder": map[string]any{"output_format": "None"}})
	require.Error(t, err)
	assert.Equal(t, model.ErrArgumentConversion, model.KindOf(err))
}
