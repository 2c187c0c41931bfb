package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/pkg/qtype"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(MysteryStew())

	p, err := reg.Plugin(StewID)
	require.NoError(t, err)
	assert.Equal(t, "mystery-stew", p.Name)

	_, err = reg.Plugin("nope")
	assert.True(t, errors.Is(err, ErrPluginNotFound))

	_, err = reg.Action(StewID, "nope")
	assert.True(t, errors.Is(err, ErrActionNotFound))

	a, err := reg.Action(StewID, "visualize")
	require.NoError(t, err)
	assert.Equal(t, KindVisualizer, a.Kind)

	types := reg.SemanticTypes()
	names := make([]string, len(types))
	for i, td := range types {
		names[i] = td.Name
	}
	assert.Equal(t, []string{"EchoOutput", "IntSequence1", "IntSequence2", "Mapping"}, names)
	assert.Equal(t, []string{"IntSequenceFormat"}, reg.TypeFormats("IntSequence2"))

	f, ok := reg.Format("IntSequenceFormat")
	require.True(t, ok)
	assert.True(t, f.Matches("ints.txt"))
	assert.False(t, f.Matches("ints.txt", "other.csv"))
}

func TestRegistryKeepsNewestVersion(t *testing.T) {
	older := &Plugin{ID: "dup", Version: "1.10.0"}
	newer := &Plugin{ID: "dup", Version: "1.9.0"}
	reg := NewRegistry(newer, older)
	p, err := reg.Plugin("dup")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", p.Version)
	assert.Len(t, reg.Plugins(), 1)
}

func TestFormatMatchesGlobs(t *testing.T) {
	f := Format{Name: "Reads", Files: []string{"*.fastq.gz", "**/MANIFEST"}}
	assert.True(t, f.Matches("s1_R1.fastq.gz", "sub/dir/MANIFEST"))
	assert.False(t, f.Matches("s1.fasta"))
	assert.True(t, Format{}.Matches("anything"))
}

func TestStewEchoActions(t *testing.T) {
	reg := NewRegistry(MysteryStew())
	a, err := reg.Action(StewID, "primitive_params")
	require.NoError(t, err)

	results, err := a.Call(context.Background(), Env{WorkDir: t.TempDir()}, map[string]any{
		"int_range": int64(5), "float_param": 1.5, "str_param": "hi", "bool_param": true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	defer results[0].Artifact.Close()

	got, err := os.ReadFile(filepath.Join(results[0].Artifact.DataDir(), "echo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "int_range: 5\nfloat_param: 1.5\nstr_param: 'hi'\nbool_param: True\n", string(got))
}

func TestStewArtifactParams(t *testing.T) {
	dir := t.TempDir()
	files, err := intSequence(1, 2, 3)(dir)
	require.NoError(t, err)
	seq, err := artifact.Import("IntSequence2", "IntSequenceFormat", files...)
	require.NoError(t, err)
	defer seq.Close()

	a, err := NewRegistry(MysteryStew()).Action(StewID, "artifact_params")
	require.NoError(t, err)
	results, err := a.Call(context.Background(), Env{WorkDir: dir}, map[string]any{"seq": seq, "mapping": nil})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "out", results[0].Name)
	assert.Equal(t, "doubled", results[1].Name)

	ints, err := readInts(results[1].Artifact)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6}, ints)

	echo, err := os.ReadFile(filepath.Join(results[0].Artifact.DataDir(), "echo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "seq: "+seq.UUID+"\nmapping: None\n", string(echo))
}

func TestStewFailAndVisualize(t *testing.T) {
	reg := NewRegistry(MysteryStew())
	fail, err := reg.Action(StewID, "fail")
	require.NoError(t, err)
	var stdout strings.Builder
	_, err = fail.Call(context.Background(), Env{Stdout: &stdout, WorkDir: t.TempDir()}, map[string]any{"message": "nope"})
	require.EqualError(t, err, "nope")
	assert.Equal(t, "about to fail\n", stdout.String())

	dir := t.TempDir()
	files, err := intSequence(7)(dir)
	require.NoError(t, err)
	seq, err := artifact.Import("IntSequence1", "IntSequenceFormat", files...)
	require.NoError(t, err)
	defer seq.Close()

	viz, err := reg.Action(StewID, "visualize")
	require.NoError(t, err)
	results, err := viz.Call(context.Background(), Env{WorkDir: dir}, map[string]any{"seq": seq, "title": "<T>"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Artifact.IsVisualization())
	page, err := os.ReadFile(filepath.Join(results[0].Artifact.DataDir(), "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<h1>&lt;T&gt;</h1>")
	assert.Contains(t, string(page), "<li>7</li>")
}

func TestStewExamplesAreConsistent(t *testing.T) {
	for _, a := range MysteryStew().Actions {
		for _, ex := range a.Examples {
			for name, v := range ex.Args {
				spec, ok := a.Signature.Lookup(name)
				require.True(t, ok, "%s/%s: %s", a.ID, ex.Name, name)
				switch ref := v.(type) {
				case Ref:
					_, ok := ex.Datum(string(ref))
					assert.True(t, ok, "%s/%s: missing data %s", a.ID, ex.Name, ref)
				case ColumnRef:
					_, ok := ex.Datum(ref.Data)
					assert.True(t, ok, "%s/%s: missing data %s", a.ID, ex.Name, ref.Data)
				default:
					assert.True(t, qtype.Contains(spec.Type, v), "%s/%s: %s=%v", a.ID, ex.Name, name, v)
				}
			}
		}
	}
}

func TestExampleDataWrite(t *testing.T) {
	dir := t.TempDir()

	mdPath := filepath.Join(dir, "md.tsv")
	require.NoError(t, ExampleData{Name: "md", Metadata: true, Build: sampleMetadata}.Write(mdPath))
	md, err := metadata.Load(mdPath)
	require.NoError(t, err)
	col, ok := md.Column("depth")
	require.True(t, ok)
	assert.Equal(t, metadata.Numeric, col.Type)

	qza := filepath.Join(dir, "ints.qza")
	d := ExampleData{Name: "ints", Type: "IntSequence1", Format: "IntSequenceFormat", Build: intSequence(1)}
	require.NoError(t, d.Write(qza))
	loaded, err := artifact.Load(qza)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, "IntSequence1", loaded.Type)

	assert.Error(t, ExampleData{Name: "empty"}.Write(filepath.Join(dir, "x.qza")))
}
