// Package artifact reads and writes typed result archives (.qza/.qzv).
//
// An archive is a zip file with a single top-level directory named after the
// artifact UUID. It holds metadata.yaml (uuid, type, format) and a data/
// directory with the payload files.
package artifact

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"gopkg.in/yaml.v3"

	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/pkg/qtype"
)

const (
	ExtArtifact       = ".qza"
	ExtVisualization  = ".qzv"
	VisualizationType = "Visualization"
	metadataFile      = "metadata.yaml"
	dataDir           = "data"
)

var (
	ErrNotArtifact  = errors.New("not an artifact archive")
	ErrNotViewable  = errors.New("artifact cannot be viewed as metadata")
	ErrNoFiles      = errors.New("no files to import")
	ErrTypeMismatch = errors.New("artifact type mismatch")
)

// Header is the content of metadata.yaml.
type Header struct {
	UUID   string `yaml:"uuid"`
	Type   string `yaml:"type"`
	Format string `yaml:"format"`
}

// Artifact is an archive unpacked into a private working directory.
type Artifact struct {
	Header
	// Source is the archive path the artifact was loaded from or last
	// saved to.
	Source string
	root   string
}

// QType parses the artifact's semantic type.
func (a *Artifact) QType() qtype.Type {
	t, err := qtype.Parse(a.Type)
	if err != nil {
		return qtype.Semantic(a.Type)
	}
	return t
}

// String returns the UUID, which is how artifacts are echoed in logs.
func (a *Artifact) String() string { return a.UUID }

// IsVisualization reports whether the artifact is a visualization (.qzv).
func (a *Artifact) IsVisualization() bool { return a.Type == VisualizationType }

// Ext returns the archive extension for the artifact.
func (a *Artifact) Ext() string {
	if a.IsVisualization() {
		return ExtVisualization
	}
	return ExtArtifact
}

// DataDir returns the directory holding the payload files.
func (a *Artifact) DataDir() string { return filepath.Join(a.root, dataDir) }

// Files lists payload files relative to DataDir, sorted.
func (a *Artifact) Files() ([]string, error) {
	var out []string
	err := filepath.WalkDir(a.DataDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.DataDir(), path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(out)
	return out, err
}

// Size returns the total payload size in bytes.
func (a *Artifact) Size() (uint64, error) {
	var total uint64
	err := filepath.WalkDir(a.DataDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err
}

// HumanSize formats Size for display, e.g. "1.2 kB".
func (a *Artifact) HumanSize() string {
	n, err := a.Size()
	if err != nil {
		return "unknown size"
	}
	return humanize.Bytes(n)
}

// Close removes the working directory.
func (a *Artifact) Close() error {
	if a.root == "" {
		return nil
	}
	err := os.RemoveAll(a.root)
	a.root = ""
	return err
}

func newWorkdir() (string, error) {
	root, err := os.MkdirTemp("", "q2galaxy-artifact-*")
	if err != nil {
		return "", fmt.Errorf("create artifact workdir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, dataDir), 0o755); err != nil {
		os.RemoveAll(root)
		return "", err
	}
	return root, nil
}

// Import creates a new artifact of the given type from files or
// directories on disk. A directory's contents are copied into data/; a file
// keeps its base name.
func Import(typ, format string, paths ...string) (*Artifact, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	if _, err := qtype.Parse(typ); err != nil {
		return nil, fmt.Errorf("import: invalid type %q: %w", typ, err)
	}
	root, err := newWorkdir()
	if err != nil {
		return nil, err
	}
	a := &Artifact{Header: Header{UUID: uuid.New().String(), Type: typ, Format: format}, root: root}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("import %s: %w", p, err)
		}
		dest := a.DataDir()
		if !info.IsDir() {
			dest = filepath.Join(dest, filepath.Base(p))
		}
		if err := copy.Copy(p, dest); err != nil {
			a.Close()
			return nil, fmt.Errorf("import %s: %w", p, err)
		}
	}
	return a, nil
}

// Load unpacks an archive.
func Load(path string) (*Artifact, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotArtifact)
		}
		return nil, err
	}
	defer zr.Close()

	root, err := newWorkdir()
	if err != nil {
		return nil, err
	}
	a := &Artifact{Source: path, root: root}
	if err := a.extract(&zr.Reader); err != nil {
		a.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

func (a *Artifact) extract(zr *zip.Reader) error {
	var prefix string
	var header []byte
	for _, f := range zr.File {
		top, rest, ok := strings.Cut(f.Name, "/")
		if !ok {
			return ErrNotArtifact
		}
		if prefix == "" {
			prefix = top
		} else if top != prefix {
			return fmt.Errorf("%w: multiple top-level directories", ErrNotArtifact)
		}
		if rest == metadataFile {
			b, err := readZipFile(f)
			if err != nil {
				return err
			}
			header = b
			continue
		}
		if !strings.HasPrefix(rest, dataDir+"/") || strings.HasSuffix(rest, "/") {
			continue
		}
		target := filepath.Join(a.root, filepath.FromSlash(rest))
		if !strings.HasPrefix(target, a.DataDir()+string(filepath.Separator)) {
			return fmt.Errorf("%w: illegal path %q", ErrNotArtifact, f.Name)
		}
		if err := writeZipFile(f, target); err != nil {
			return err
		}
	}
	if header == nil {
		return fmt.Errorf("%w: missing %s", ErrNotArtifact, metadataFile)
	}
	if err := yaml.Unmarshal(header, &a.Header); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotArtifact, metadataFile, err)
	}
	if a.UUID != prefix {
		return fmt.Errorf("%w: uuid %q does not match directory %q", ErrNotArtifact, a.UUID, prefix)
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func writeZipFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Save writes the archive to path, appending the extension when missing,
// and returns the final path.
func (a *Artifact) Save(path string) (string, error) {
	if !strings.HasSuffix(path, a.Ext()) {
		path += a.Ext()
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	zw := zip.NewWriter(f)
	if err := a.writeZip(zw); err != nil {
		zw.Close()
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	a.Source = path
	return path, nil
}

func (a *Artifact) writeZip(zw *zip.Writer) error {
	header, err := yaml.Marshal(a.Header)
	if err != nil {
		return err
	}
	w, err := zw.Create(a.UUID + "/" + metadataFile)
	if err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	files, err := a.Files()
	if err != nil {
		return err
	}
	for _, rel := range files {
		w, err := zw.Create(a.UUID + "/" + dataDir + "/" + rel)
		if err != nil {
			return err
		}
		src, err := os.Open(filepath.Join(a.DataDir(), filepath.FromSlash(rel)))
		if err != nil {
			return err
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Export copies the payload files into dir.
func (a *Artifact) Export(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return copy.Copy(a.DataDir(), dir)
}

// ViewMetadata reads the artifact as metadata. Only artifacts whose payload
// is a single .tsv file can be viewed this way.
func (a *Artifact) ViewMetadata() (*metadata.Metadata, error) {
	files, err := a.Files()
	if err != nil {
		return nil, err
	}
	var tsv []string
	for _, f := range files {
		if strings.HasSuffix(f, ".tsv") {
			tsv = append(tsv, f)
		}
	}
	if len(tsv) != 1 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotViewable, a.UUID, a.Type)
	}
	md, err := metadata.Load(filepath.Join(a.DataDir(), filepath.FromSlash(tsv[0])))
	if err != nil {
		return nil, err
	}
	md.Source = a.Source
	return md, nil
}

// CheckType verifies the artifact type is a subtype of want.
func (a *Artifact) CheckType(want qtype.Type) error {
	if qtype.IsSubtype(a.QType(), want) {
		return nil
	}
	return fmt.Errorf("%w: %s is %s, expected %s", ErrTypeMismatch, a.Source, a.Type, want)
}
