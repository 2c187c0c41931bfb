package artifact

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/q2galaxy/pkg/qtype"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestImportSaveLoad(t *testing.T) {
	src := t.TempDir()
	seqs := writeFile(t, src, "seqs.fasta", ">a\nACGT\n")

	a, err := Import("FeatureData[Sequence]", "DNAFASTAFormat", seqs)
	require.NoError(t, err)
	defer a.Close()

	assert.NotEmpty(t, a.UUID)
	assert.Equal(t, a.UUID, a.String())
	assert.Equal(t, ExtArtifact, a.Ext())

	out := filepath.Join(t.TempDir(), "result")
	path, err := a.Save(out)
	require.NoError(t, err)
	assert.Equal(t, out+".qza", path)

	back, err := Load(path)
	require.NoError(t, err)
	defer back.Close()

	assert.Equal(t, a.Header, back.Header)
	assert.Equal(t, path, back.Source)
	files, err := back.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"seqs.fasta"}, files)

	size, err := back.Size()
	require.NoError(t, err)
	assert.EqualValues(t, len(">a\nACGT\n"), size)
	assert.Equal(t, "8 B", back.HumanSize())
}

func TestImportDirectoryAndExport(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "a.txt", "a")
	writeFile(t, src, "nested/b.txt", "b")

	a, err := Import("SampleData[Reads]", "ReadsDirFmt", src)
	require.NoError(t, err)
	defer a.Close()

	files, err := a.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "nested/b.txt"}, files)

	dest := filepath.Join(t.TempDir(), "export")
	require.NoError(t, a.Export(dest))
	b, err := os.ReadFile(filepath.Join(dest, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}

func TestImportErrors(t *testing.T) {
	_, err := Import("Foo", "Fmt")
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = Import("Foo[", "Fmt", "x")
	assert.Error(t, err)

	_, err = Import("Foo", "Fmt", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVisualizationExtension(t *testing.T) {
	src := writeFile(t, t.TempDir(), "index.html", "<html/>")
	a, err := Import(VisualizationType, "HTML", src)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.IsVisualization())
	path, err := a.Save(filepath.Join(t.TempDir(), "viz"))
	require.NoError(t, err)
	assert.Equal(t, ".qzv", filepath.Ext(path))
}

func TestLoadRejectsNonArchives(t *testing.T) {
	dir := t.TempDir()
	plain := writeFile(t, dir, "md.tsv", "id\tx\na\t1\n")
	_, err := Load(plain)
	assert.ErrorIs(t, err, ErrNotArtifact)

	// A zip without metadata.yaml.
	path := filepath.Join(dir, "bad.qza")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("abc/data/x.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Load(path)
	assert.True(t, errors.Is(err, ErrNotArtifact), "got %v", err)
}

func TestViewMetadata(t *testing.T) {
	src := writeFile(t, t.TempDir(), "sample-metadata.tsv", "sample-id\tbody-site\ns1\tgut\ns2\tpalm\n")
	a, err := Import("SampleData[Metadata]", "TSVFormat", src)
	require.NoError(t, err)
	defer a.Close()

	md, err := a.ViewMetadata()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, md.IDs)

	fasta := writeFile(t, t.TempDir(), "seqs.fasta", ">a\nA\n")
	b, err := Import("FeatureData[Sequence]", "DNAFASTAFormat", fasta)
	require.NoError(t, err)
	defer b.Close()
	_, err = b.ViewMetadata()
	assert.ErrorIs(t, err, ErrNotViewable)
}

func TestCheckType(t *testing.T) {
	src := writeFile(t, t.TempDir(), "table.biom", "{}")
	a, err := Import("FeatureTable[Frequency]", "BIOMV210Format", src)
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.CheckType(qtype.MustParse("FeatureTable[Frequency | RelativeFrequency]")))
	assert.ErrorIs(t, a.CheckType(qtype.MustParse("FeatureData[Sequence]")), ErrTypeMismatch)
	assert.True(t, qtype.Contains(qtype.MustParse("FeatureTable[Frequency]"), a))
}

func TestCloseRemovesWorkdir(t *testing.T) {
	src := writeFile(t, t.TempDir(), "x.txt", "x")
	a, err := Import("Foo", "Fmt", src)
	require.NoError(t, err)
	dir := a.DataDir()
	require.NoError(t, a.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, a.Close())
}
