// Package metadata reads and writes tab-separated sample/feature metadata:
// an ID column followed by named columns, each typed numeric or
// categorical.
package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/me/q2galaxy/pkg/qtype"
)

// ColumnType is the semantic type of a metadata column.
type ColumnType string

const (
	Numeric     ColumnType = qtype.Numeric
	Categorical ColumnType = qtype.Categorical
)

// TypesDirective is the optional second row declaring column types.
const TypesDirective = "#q2:types"

var (
	ErrEmpty          = errors.New("metadata file is empty")
	ErrBadHeader      = errors.New("unrecognized ID header")
	ErrDuplicateID    = errors.New("duplicate ID")
	ErrColumnNotFound = errors.New("column not found")
	ErrIDColumn       = errors.New("column 1 is the ID column")
)

// idHeaders are the accepted (case-insensitive) names of the ID column.
var idHeaders = map[string]bool{
	"id": true, "sampleid": true, "sample id": true, "sample-id": true,
	"featureid": true, "feature id": true, "feature-id": true,
	"#sampleid": true, "#sample id": true, "#featureid": true, "#feature id": true,
	"#otuid": true, "#otu id": true, "sample_name": true,
}

// Column is one named, typed metadata column.
type Column struct {
	Name   string
	Type   ColumnType
	IDs    []string
	Values []string
}

// QType reports MetadataColumn[Numeric] or MetadataColumn[Categorical].
func (c *Column) QType() qtype.Type {
	return qtype.Column(string(c.Type))
}

func (c *Column) String() string {
	return fmt.Sprintf("<MetadataColumn %s (%s)>", c.Name, c.Type)
}

// Metadata is a parsed metadata table.
type Metadata struct {
	Source   string
	IDHeader string
	IDs      []string
	columns  []*Column
}

// QType reports Metadata.
func (m *Metadata) QType() qtype.Type { return qtype.MetadataType{} }

func (m *Metadata) String() string { return "<Metadata>" }

// Columns returns the data columns in file order, excluding the ID column.
func (m *Metadata) Columns() []*Column {
	return append([]*Column(nil), m.columns...)
}

// Column finds a column by exact name.
func (m *Metadata) Column(name string) (*Column, bool) {
	for _, c := range m.columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnByRef resolves a column reference: an exact column name, or a
// 1-based Galaxy column index in which 1 is the ID column and 2 is the
// first data column.
func (m *Metadata) ColumnByRef(ref string) (*Column, error) {
	if c, ok := m.Column(ref); ok {
		return c, nil
	}
	idx, err := strconv.Atoi(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, ref)
	}
	if idx == 1 {
		return nil, ErrIDColumn
	}
	pos := idx - 2
	if pos < 0 || pos >= len(m.columns) {
		return nil, fmt.Errorf("%w: index %d out of range (%d columns)", ErrColumnNotFound, idx, len(m.columns))
	}
	return m.columns[pos], nil
}

// Load reads a metadata TSV file.
func Load(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	md, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	md.Source = path
	return md, nil
}

// Parse reads metadata TSV from r. Blank lines and comment lines are
// skipped, except for a types directive directly after the header.
func Parse(r io.Reader) (*Metadata, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var header []string
	var declared []string
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if blank(rec) {
			continue
		}
		first := strings.TrimSpace(rec[0])
		if header == nil {
			if strings.HasPrefix(first, "#") && !idHeaders[strings.ToLower(first)] {
				continue
			}
			header = trimAll(rec)
			continue
		}
		if strings.EqualFold(first, TypesDirective) {
			if rows != nil {
				return nil, fmt.Errorf("%s must directly follow the header", TypesDirective)
			}
			declared = trimAll(rec)[1:]
			continue
		}
		if strings.HasPrefix(first, "#") {
			continue
		}
		rows = append(rows, trimAll(rec))
	}
	if header == nil {
		return nil, ErrEmpty
	}
	if !idHeaders[strings.ToLower(header[0])] {
		return nil, fmt.Errorf("%w: %q", ErrBadHeader, header[0])
	}

	md := &Metadata{IDHeader: header[0]}
	seen := make(map[string]bool)
	for _, row := range rows {
		id := row[0]
		if seen[id] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		seen[id] = true
		md.IDs = append(md.IDs, id)
	}

	for i, name := range header[1:] {
		col := &Column{Name: name, IDs: md.IDs}
		for _, row := range rows {
			v := ""
			if i+1 < len(row) {
				v = row[i+1]
			}
			col.Values = append(col.Values, v)
		}
		col.Type = inferType(col.Values)
		if i < len(declared) && declared[i] != "" {
			switch strings.ToLower(declared[i]) {
			case "numeric":
				if inferType(col.Values) != Numeric {
					return nil, fmt.Errorf("column %q is declared numeric but has non-numeric values", name)
				}
				col.Type = Numeric
			case "categorical":
				col.Type = Categorical
			default:
				return nil, fmt.Errorf("column %q has unknown type %q", name, declared[i])
			}
		}
		md.columns = append(md.columns, col)
	}
	return md, nil
}

func inferType(values []string) ColumnType {
	found := false
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return Categorical
		}
		found = true
	}
	if !found {
		return Categorical
	}
	return Numeric
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, f := range rec {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

// Merge joins metadata tables on their IDs, keeping IDs present in every
// table in the order of the first. Column names must be unique across the
// inputs.
func Merge(tables ...*Metadata) (*Metadata, error) {
	if len(tables) == 0 {
		return nil, ErrEmpty
	}
	if len(tables) == 1 {
		return tables[0], nil
	}

	keep := make(map[string]int)
	for _, t := range tables {
		for _, id := range t.IDs {
			keep[id]++
		}
	}
	var ids []string
	for _, id := range tables[0].IDs {
		if keep[id] == len(tables) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("merged metadata has no IDs in common")
	}

	out := &Metadata{IDHeader: tables[0].IDHeader, IDs: ids}
	names := make(map[string]bool)
	for _, t := range tables {
		index := make(map[string]int, len(t.IDs))
		for i, id := range t.IDs {
			index[id] = i
		}
		for _, c := range t.columns {
			if names[c.Name] {
				return nil, fmt.Errorf("cannot merge metadata: column %q appears more than once", c.Name)
			}
			names[c.Name] = true
			merged := &Column{Name: c.Name, Type: c.Type, IDs: ids}
			for _, id := range ids {
				merged.Values = append(merged.Values, c.Values[index[id]])
			}
			out.columns = append(out.columns, merged)
		}
	}
	return out, nil
}

// WriteTSV writes md with a types directive row.
func (m *Metadata) WriteTSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := []string{m.IDHeader}
	types := []string{TypesDirective}
	for _, c := range m.columns {
		header = append(header, c.Name)
		types = append(types, strings.ToLower(string(c.Type)))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(types); err != nil {
		return err
	}
	for i, id := range m.IDs {
		row := []string{id}
		for _, c := range m.columns {
			row = append(row, c.Values[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes md to path as TSV.
func (m *Metadata) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteTSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// New builds metadata from columns sharing the given IDs. Intended for
// built-in examples.
func New(idHeader string, ids []string, columns ...*Column) *Metadata {
	md := &Metadata{IDHeader: idHeader, IDs: ids}
	for _, c := range columns {
		c.IDs = ids
		if c.Type == "" {
			c.Type = inferType(c.Values)
		}
		md.columns = append(md.columns, c)
	}
	return md
}
