package cases

import (
	"fmt"
	"strings"

	"github.com/me/q2galaxy/internal/form"
)

// metadataFormats are the datatypes accepted as a metadata source: a TSV
// file or an artifact viewable as metadata.
var metadataFormats = []string{"tabular", "qza"}

func metadataFType(ref string) string {
	if strings.HasSuffix(ref, ".qza") {
		return "qza"
	}
	return "tabular"
}

// MetadataCase renders a Metadata parameter as a data reference.
type MetadataCase struct{ base }

func (c *MetadataCase) Tag() Tag { return TagMetadata }

func (c *MetadataCase) Schema() []*form.Field {
	f := &form.Field{Name: c.name, Kind: form.KindData, Formats: metadataFormats}
	c.decorate(f)
	f.Value = nil
	return []*form.Field{f}
}

func (c *MetadataCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() || c.arg == nil {
		return nil, nil
	}
	refs, err := refList(c.arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	f := form.Param(c.name, strings.Join(refs, ","))
	f.FType = metadataFType(refs[0])
	return []*form.Fixture{f}, nil
}

func (c *MetadataCase) Describe() string {
	refs, err := refList(c.arg)
	if err != nil {
		return c.describe("")
	}
	return c.describe("#: " + strings.Join(refs, ", #: "))
}

// MetadataColumnCase renders a MetadataColumn parameter as two linked
// fields: the metadata source under the parameter name and a column
// selector under the name plus ColumnSuffix.
type MetadataColumnCase struct{ base }

func (c *MetadataColumnCase) Tag() Tag { return TagMetadataColumn }

// ColumnField returns the name of the paired column selector.
func (c *MetadataColumnCase) ColumnField() string {
	return c.name + ColumnSuffix
}

func (c *MetadataColumnCase) Schema() []*form.Field {
	source := &form.Field{Name: c.name, Kind: form.KindData, Formats: metadataFormats}
	c.decorate(source)
	source.Value = nil

	column := &form.Field{
		Name:           c.ColumnField(),
		Kind:           form.KindDataColumn,
		DataRef:        c.name,
		UseHeaderNames: true,
		Label:          " ",
		Help:           c.help(),
		Validators: []form.Validator{{
			Expression: `value != "1"`,
			Script:     `String(value) !== "1"`,
			Message:    "The first column cannot be selected (they are IDs).",
		}},
	}
	c.applyDefault(column)
	column.Value = nil
	return []*form.Field{source, column}
}

func (c *MetadataColumnCase) Fixture() ([]*form.Fixture, error) {
	if !c.hasArg() || c.arg == nil {
		return nil, nil
	}
	arg, ok := c.arg.(ColumnArg)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a column reference, got %T", ErrBadArgument, c.name, c.arg)
	}
	source := form.Param(c.name, arg.Source)
	source.FType = metadataFType(arg.Source)
	return []*form.Fixture{source, form.Param(c.ColumnField(), arg.Column)}, nil
}

func (c *MetadataColumnCase) Describe() string {
	arg, ok := c.arg.(ColumnArg)
	if !ok {
		return c.describe("")
	}
	return c.describe(fmt.Sprintf("#: %s`` and choose column ``%s", arg.Source, arg.Column))
}

// refList accepts a single reference or a list of references.
func refList(arg any) ([]string, error) {
	switch v := arg.(type) {
	case string:
		return []string{v}, nil
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty reference list", ErrBadArgument)
		}
		return v, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty reference list", ErrBadArgument)
		}
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: reference %d is %T", ErrBadArgument, i, item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected a file reference, got %T", ErrBadArgument, arg)
}
