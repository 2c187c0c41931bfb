// Package marshal converts the job configuration written by Galaxy into the
// runtime arguments of an action.
package marshal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/me/q2galaxy/internal/artifact"
	"github.com/me/q2galaxy/internal/cases"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/internal/metadata"
	"github.com/me/q2galaxy/internal/typealg"
	"github.com/me/q2galaxy/pkg/model"
	"github.com/me/q2galaxy/pkg/qtype"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrMissing          = errors.New("missing required argument")
	ErrEmptyCollection  = errors.New("empty collection")
	ErrInvalidValue     = errors.New("invalid value")
)

// ColumnTypeMismatchError reports a metadata column whose type is not
// among the declared column types.
type ColumnTypeMismatchError struct {
	Param    string
	Column   string
	Actual   qtype.Type
	Expected qtype.Type
}

func (e *ColumnTypeMismatchError) Error() string {
	return fmt.Sprintf("parameter %q: column %q is %s, expected %s", e.Param, e.Column, e.Actual, e.Expected)
}

// MetadataRef is the structured form of a metadata reference.
type MetadataRef struct {
	Type   string // "tsv", "qza" or "none"; empty means try both
	Source string
	Column string
}

// Converter turns raw configuration into runtime arguments. Artifacts it
// loads stay open until Close.
type Converter struct {
	logger *slog.Logger
	opened []io.Closer
}

// NewConverter creates a Converter.
func NewConverter(logger *slog.Logger) *Converter {
	return &Converter{logger: logger.With("component", "marshal")}
}

// Close releases every artifact loaded by the converter.
func (c *Converter) Close() error {
	var errs []error
	for _, o := range c.opened {
		errs = append(errs, o.Close())
	}
	c.opened = nil
	return errors.Join(errs...)
}

// Convert cleans raw and converts each entry according to sig. Parameters
// absent from raw take their default; absent required ones are an error.
// Every failing entry is reported, joined into one error.
func (c *Converter) Convert(sig qtype.Signature, raw map[string]any) (map[string]any, error) {
	cleaned := galaxy.CleanInputs(raw)

	names := make([]string, 0, len(cleaned))
	for name := range cleaned {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []failure
	args := make(map[string]any, len(names))
	for _, name := range names {
		spec, ok := sig.Lookup(name)
		if !ok {
			if strings.HasSuffix(name, cases.ColumnSuffix) {
				continue
			}
			failed = append(failed, failure{err: fmt.Errorf("%w: %q", ErrUnknownParameter, name)})
			continue
		}
		v, err := c.convertParam(name, spec, cleaned)
		if err != nil {
			failed = append(failed, failure{name: name, err: err})
			continue
		}
		args[name] = v
	}

	for _, group := range [][]qtype.Param{sig.Inputs, sig.Parameters} {
		for _, p := range group {
			if _, ok := args[p.Name]; ok {
				continue
			}
			if _, ok := cleaned[p.Name]; ok {
				continue
			}
			if !p.Spec.HasDefault() {
				failed = append(failed, failure{err: fmt.Errorf("%w: %q", ErrMissing, p.Name)})
				continue
			}
			args[p.Name] = p.Spec.Default
		}
	}

	switch len(failed) {
	case 0:
	case 1:
		return nil, conversionError(failed[0].err, failed[0].name)
	default:
		errs := make([]error, len(failed))
		for i, f := range failed {
			errs[i] = f.err
			if f.name != "" {
				errs[i] = fmt.Errorf("%q: %w", f.name, f.err)
			}
		}
		return nil, conversionError(errors.Join(errs...), "")
	}
	c.logger.Debug("converted arguments", "count", len(args))
	return args, nil
}

type failure struct {
	name string
	err  error
}

func conversionError(err error, name string) error {
	if name == "" {
		return model.NewError(model.ErrArgumentConversion, err, "could not convert arguments")
	}
	return model.NewError(model.ErrArgumentConversion, err, "could not convert %q", name)
}

func (c *Converter) convertParam(name string, spec qtype.ParameterSpec, cleaned map[string]any) (any, error) {
	raw := cleaned[name]
	if isNone(raw) {
		return nil, nil
	}
	t := spec.Type

	switch {
	case typealg.IsMetadataColumnType(t):
		ref, err := metadataRef(raw)
		if err != nil {
			return nil, err
		}
		if ref.Type == "none" {
			return nil, nil
		}
		if col, ok := cleaned[name+cases.ColumnSuffix]; ok && !isNone(col) {
			ref.Column = columnString(col)
		}
		return c.loadColumn(name, t, ref)
	case typealg.IsMetadataType(t):
		md, err := c.loadMetadataArg(raw)
		if md == nil {
			return nil, err
		}
		return md, nil
	}

	if ct, ok := t.(qtype.CollectionType); ok {
		items := splitList(raw)
		if len(items) == 0 {
			if spec.HasDefault() {
				return spec.Default, nil
			}
			return nil, ErrEmptyCollection
		}
		converted := make([]any, 0, len(items))
		for i, item := range items {
			v, err := c.convertValue(ct.Element, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			converted = append(converted, v)
		}
		if ct.Kind == qtype.SetKind {
			return qtype.NewSet(converted...), nil
		}
		return converted, nil
	}

	return c.convertValue(t, raw)
}

func (c *Converter) convertValue(t qtype.Type, raw any) (any, error) {
	if typealg.IsSemanticType(t) {
		ref, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected an artifact path, got %T", ErrInvalidValue, raw)
		}
		return c.loadArtifact(ref, t)
	}
	v, err := ParseScalar(t, raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Converter) loadArtifact(ref string, want qtype.Type) (*artifact.Artifact, error) {
	a, err := artifact.Load(ref)
	if err != nil {
		return nil, err
	}
	c.opened = append(c.opened, a)
	if err := a.CheckType(want); err != nil {
		return nil, err
	}
	return a, nil
}

// LoadMetadata applies the metadata loading rule: the reference is first
// loaded as an artifact viewed as metadata and, only if that fails, read as
// a TSV file.
func (c *Converter) LoadMetadata(ref MetadataRef) (*metadata.Metadata, error) {
	var artErr error
	if ref.Type != "tsv" {
		a, err := artifact.Load(ref.Source)
		if err == nil {
			c.opened = append(c.opened, a)
			md, err := a.ViewMetadata()
			if err == nil {
				return md, nil
			}
			artErr = err
		} else {
			artErr = err
		}
		if ref.Type == "qza" {
			return nil, fmt.Errorf("could not load %q as metadata: %w", ref.Source, artErr)
		}
	}
	md, err := metadata.Load(ref.Source)
	if err != nil {
		return nil, fmt.Errorf("could not load %q as metadata: %w", ref.Source, errors.Join(err, artErr))
	}
	return md, nil
}

func (c *Converter) loadMetadataArg(raw any) (*metadata.Metadata, error) {
	var refs []MetadataRef
	if list, ok := raw.([]any); ok {
		for _, item := range list {
			ref, err := metadataRef(item)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	} else {
		for _, s := range splitList(raw) {
			ref, err := metadataRef(s)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no metadata given", ErrInvalidValue)
	}

	tables := make([]*metadata.Metadata, 0, len(refs))
	for _, ref := range refs {
		if ref.Type == "none" {
			continue
		}
		md, err := c.LoadMetadata(ref)
		if err != nil {
			return nil, err
		}
		tables = append(tables, md)
	}
	if len(tables) == 0 {
		return nil, nil
	}
	return metadata.Merge(tables...)
}

func (c *Converter) loadColumn(name string, t qtype.Type, ref MetadataRef) (*metadata.Column, error) {
	md, err := c.LoadMetadata(ref)
	if err != nil {
		return nil, err
	}
	if ref.Column == "" {
		return nil, fmt.Errorf("%w: no column selected for %q", ErrMissing, name)
	}
	col, err := md.ColumnByRef(ref.Column)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref.Source, err)
	}
	if !qtype.Contains(t, col) {
		return nil, &ColumnTypeMismatchError{Param: name, Column: col.Name, Actual: col.QType(), Expected: t}
	}
	return col, nil
}

func metadataRef(raw any) (MetadataRef, error) {
	switch v := raw.(type) {
	case string:
		return MetadataRef{Source: v}, nil
	case map[string]any:
		ref := MetadataRef{}
		ref.Type, _ = v["type"].(string)
		if ref.Type == "none" {
			return ref, nil
		}
		ref.Source, _ = v["source"].(string)
		if col, ok := v["column"]; ok && col != nil {
			ref.Column = columnString(col)
		}
		if ref.Source == "" {
			return ref, fmt.Errorf("%w: metadata reference without source", ErrInvalidValue)
		}
		return ref, nil
	}
	return MetadataRef{}, fmt.Errorf("%w: expected a metadata reference, got %T", ErrInvalidValue, raw)
}

func columnString(v any) string {
	// data_column values arrive as single-element lists.
	if list, ok := v.([]any); ok && len(list) == 1 {
		v = list[0]
	}
	if f, ok := v.(float64); ok && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return qtype.Text(v)
}

func isNone(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == "None"
}

// splitList accepts a comma-delimited string or an already structured
// list. Blank entries are dropped.
func splitList(raw any) []any {
	switch v := raw.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) == "" {
				continue
			}
			if item != nil {
				out = append(out, item)
			}
		}
		return out
	case string:
		var out []any
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case nil:
		return nil
	}
	return []any{raw}
}

// ParseScalar converts a raw scalar to the runtime value of t and checks
// it against t's predicate. Union members are tried numbers first, then
// Bool, then Str.
func ParseScalar(t qtype.Type, raw any) (any, error) {
	members := typealg.UnpackUnion(t)
	sort.SliceStable(members, func(i, j int) bool {
		return parseRank(members[i]) < parseRank(members[j])
	})

	var firstErr error
	for _, m := range members {
		p, ok := m.(qtype.PrimitiveType)
		if !ok {
			continue
		}
		v, err := parsePrimitive(p.Name, raw)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if qtype.Contains(m, v) {
			return v, nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: %s is not in %s", ErrInvalidValue, qtype.Repr(v), m)
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("%w: cannot convert %s to %s", ErrInvalidValue, qtype.Repr(raw), t)
	}
	if len(members) > 1 {
		return nil, fmt.Errorf("%w: %s is not in %s", ErrInvalidValue, qtype.Repr(raw), t)
	}
	return nil, firstErr
}

func parseRank(t qtype.Type) int {
	p, ok := t.(qtype.PrimitiveType)
	if !ok {
		return 0
	}
	switch p.Name {
	case qtype.Bool:
		return 1
	case qtype.Str:
		return 2
	}
	return 0
}

func parsePrimitive(name string, raw any) (any, error) {
	switch name {
	case qtype.Int:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, v)
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, v)
			}
			return n, nil
		}
	case qtype.Float:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v)
			}
			return f, nil
		}
	case qtype.Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			// Only the literals the form sends; "1" or "t" belong to other members.
			switch strings.TrimSpace(v) {
			case galaxy.EscValue(true), "true":
				return true, nil
			case galaxy.EscValue(false), "false":
				return false, nil
			}
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v)
		}
	case qtype.Str:
		switch v := raw.(type) {
		case string:
			return v, nil
		case bool, float64, int64, int:
			return qtype.Text(v), nil
		}
	}
	return nil, fmt.Errorf("%w: cannot convert %T to %s", ErrInvalidValue, raw, name)
}
