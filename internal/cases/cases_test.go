package cases

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/q2galaxy/internal/form"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/pkg/qtype"
)

func req(typ string) qtype.ParameterSpec {
	return qtype.Required(qtype.MustParse(typ), "")
}

func opt(typ string, def any) qtype.ParameterSpec {
	return qtype.Optional(qtype.MustParse(typ), def, "")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		spec qtype.ParameterSpec
		want Tag
	}{
		{req("FeatureTable[Frequency]"), TagInput},
		{req("List[FeatureData[Sequence]]"), TagInput},
		{req("Int % (Range(0, 5) | Range(10, 20))"), TagPrimitiveUnion},
		{req("Str % Choices('x', 'y') | Bool"), TagPrimitiveUnion},
		{req("MetadataColumn[Numeric]"), TagMetadataColumn},
		{req("Metadata"), TagMetadata},
		{req("Bool"), TagBool},
		{req("Str"), TagStr},
		{req("Int % Range(0, 10)"), TagNumeric},
		{req("Float"), TagNumeric},
		{req("List[Int]"), TagSimpleCollection},
		{req("Set[Int | Str]"), TagSimpleCollection},
		{req("List[Int] | List[Str]"), TagUnsupported},
		{req("List[Int] | Set[Int]"), TagUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.spec.Type.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify("p", tt.spec, NoArg).Tag())
		})
	}
}

func TestClassifyIgnoresArgument(t *testing.T) {
	specs := []qtype.ParameterSpec{
		req("Int"), opt("Str", nil), req("Str % Choices('a') | Bool"),
		req("List[Int]"), req("Metadata"), req("FeatureTable[Frequency]"),
	}
	args := []any{NoArg, nil, int64(3), "a", true, []any{int64(1)}}
	for _, spec := range specs {
		want := Classify("p", spec, NoArg).Tag()
		for _, arg := range args {
			assert.Equal(t, want, Classify("p", spec, arg).Tag(), "spec %s arg %v", spec.Type, arg)
		}
	}
}

func TestNumericSchema(t *testing.T) {
	fields := Classify("n", opt("Int % Range(0, 10)", int64(5)), NoArg).Schema()
	require.Len(t, fields, 1)
	f := fields[0]
	assert.Equal(t, form.KindInteger, f.Kind)
	assert.Equal(t, "0", f.Min)
	assert.Equal(t, "9", f.Max)
	require.NotNil(t, f.Value)
	assert.Equal(t, "5", *f.Value)
	assert.Equal(t, "[default: 5]", f.Help)
	assert.Equal(t, "n: Int % Range(0, 10)", f.Label)
	assert.True(t, f.Advanced)

	f = Classify("x", req("Float % Range(0, 1, inclusive_end=True)"), NoArg).Schema()[0]
	assert.Equal(t, form.KindFloat, f.Kind)
	require.NotNil(t, f.Value, "required numerics render an empty placeholder")
	assert.Equal(t, "", *f.Value)
	assert.Equal(t, "0.0", f.Min)
	assert.Equal(t, "1.0", f.Max)
	assert.True(t, f.Required)
	assert.Equal(t, "[required]", f.Help)
}

func TestStrSchema(t *testing.T) {
	f := Classify("s", req("Str"), NoArg).Schema()[0]
	assert.Equal(t, form.KindText, f.Kind)
	require.Len(t, f.Validators, 1)
	assert.Equal(t, "value is not None and len(value) > 0", f.Validators[0].Expression)

	f = Classify("s", opt("Str", nil), NoArg).Schema()[0]
	assert.Equal(t, form.KindConditional, f.Kind)
	assert.Equal(t, galaxy.UIVar("conditional", "s"), f.Name)
	require.NotNil(t, f.Selector)
	assert.Equal(t, "[optional]", f.Selector.Help)
	require.Len(t, f.Whens, 2)
	assert.Equal(t, form.KindHidden, f.Whens[0].Fields[0].Kind)
	assert.Equal(t, "None", *f.Whens[0].Fields[0].Value)
	assert.Equal(t, "s", f.Whens[1].Fields[0].Name)

	f = Classify("s", req("Str % Choices('a', 'b', 'c')"), NoArg).Schema()[0]
	assert.Equal(t, form.KindSelect, f.Kind)
	assert.Equal(t, "radio", f.Display)
	require.Len(t, f.Options, 4)
	assert.Equal(t, "Selection required", f.Options[0].Label)
	assert.Equal(t, "None", f.Options[0].Value)
	require.Len(t, f.Validators, 1)
	assert.Equal(t, "value != 'None'", f.Validators[0].Expression)
}

func TestBoolSchema(t *testing.T) {
	f := Classify("b", opt("Bool", true), NoArg).Schema()[0]
	assert.Equal(t, form.KindBoolean, f.Kind)
	assert.True(t, f.Checked)
	assert.Equal(t, "True", f.TrueValue)
	assert.Equal(t, "False", f.FalseValue)
	assert.Equal(t, "[default: Yes]", f.Help)

	f = Classify("b", opt("Bool", nil), NoArg).Schema()[0]
	assert.Equal(t, form.KindSelect, f.Kind, "a None default is tri-state")
	labels := make([]string, len(f.Options))
	for i, o := range f.Options {
		labels[i] = o.Label
	}
	assert.Equal(t, []string{"None (Use default behavior)", "Yes", "No"}, labels)

	f = Classify("b", opt("Bool % Choices(True)", true), NoArg).Schema()[0]
	assert.Equal(t, form.KindSelect, f.Kind, "a constrained bool is a select")

	f = Classify("b", req("Bool"), NoArg).Schema()[0]
	assert.Equal(t, form.KindSelect, f.Kind)
	assert.Len(t, f.Validators, 1)
}

func TestPrimitiveUnionBranchUniqueness(t *testing.T) {
	c := Classify("u", req("Str % Choices('x', 'y') | Bool"), true).(*PrimitiveUnionCase)

	var matched []string
	for _, b := range c.branches {
		if b.admits(true) {
			matched = append(matched, b.key)
		}
	}
	assert.Equal(t, []string{"True"}, matched)

	fixtures, err := c.Fixture()
	require.NoError(t, err)
	require.Len(t, fixtures, 1)
	assert.Equal(t, "u", fixtures[0].Name)
	assert.Equal(t, "True", fixtures[0].Value)
}

func TestPrimitiveUnionOpenBranches(t *testing.T) {
	c := Classify("u", opt("Int % Range(1, None) | Str % Choices('auto')", "auto"), NoArg)
	fields := c.Schema()
	require.Len(t, fields, 1)
	root := fields[0]
	assert.Equal(t, form.KindConditional, root.Kind)
	require.NotNil(t, root.Selector)

	var labels []string
	for _, o := range root.Selector.Options {
		labels = append(labels, o.Label)
	}
	assert.Equal(t, []string{"auto (Str)", "Provide a value (Int % Range(1, None))"}, labels)
	assert.True(t, root.Selector.Options[0].Selected)
	require.Len(t, root.Whens, 2)
	assert.Equal(t, form.KindInteger, root.Whens[1].Fields[0].Kind)
	assert.Equal(t, "1", root.Whens[1].Fields[0].Min)

	withArg := Classify("u", opt("Int % Range(1, None) | Str % Choices('auto')", "auto"), int64(7))
	fixtures, err := withArg.Fixture()
	require.NoError(t, err)
	require.Len(t, fixtures, 1)
	cond := fixtures[0]
	assert.Equal(t, form.KindConditional, cond.Kind)
	require.Len(t, cond.Children, 2)
	assert.Equal(t, galaxy.UILiteral("Int X Range(1, None)"), cond.Children[0].Value)
	assert.Equal(t, "7", cond.Children[1].Value)
}

func TestPrimitiveUnionNoBranch(t *testing.T) {
	c := Classify("u", req("Int % (Range(0, 5) | Range(10, 20))"), int64(7))
	_, err := c.Fixture()
	assert.True(t, errors.Is(err, ErrNoBranch))
}

func TestPrimitiveUnionNoneDefault(t *testing.T) {
	c := Classify("u", opt("Str % Choices('a') | Bool", nil), nil)
	f := c.Schema()[0]
	assert.Equal(t, "None (Use default behavior)", f.Options[0].Label)
	assert.Empty(t, f.Validators)
	fixtures, err := c.Fixture()
	require.NoError(t, err)
	assert.Equal(t, "None", fixtures[0].Value)
}

func TestSimpleCollectionFixtures(t *testing.T) {
	list := Classify("ints", req("List[Int]"), []any{int64(1), int64(2), int64(2), int64(3)})
	fixtures, err := list.Fixture()
	require.NoError(t, err)
	var values []string
	for _, f := range fixtures {
		assert.Equal(t, form.KindRepeat, f.Kind)
		require.Len(t, f.Children, 1)
		assert.Equal(t, ElementName, f.Children[0].Name)
		values = append(values, f.Children[0].Value)
	}
	assert.Equal(t, []string{"1", "2", "2", "3"}, values)

	set := Classify("ints", req("Set[Int]"), []any{int64(1), int64(2), int64(2), int64(3)})
	fixtures, err = set.Fixture()
	require.NoError(t, err)
	assert.Len(t, fixtures, 3)

	single := Classify("ints", req("List[Int]"), []any{int64(4)})
	fixtures, err = single.Fixture()
	require.NoError(t, err)
	require.Len(t, fixtures, 1)
	assert.Equal(t, form.KindRepeat, fixtures[0].Kind, "single elements stay repeats")

	empty := Classify("ints", opt("List[Int]", nil), []any{})
	fixtures, err = empty.Fixture()
	require.NoError(t, err)
	assert.Empty(t, fixtures)

	absent := Classify("ints", req("List[Int]"), NoArg)
	fixtures, err = absent.Fixture()
	require.NoError(t, err)
	assert.Nil(t, fixtures)
}

func TestSimpleCollectionSchema(t *testing.T) {
	f := Classify("ints", req("List[Int % Range(0, 3)]"), NoArg).Schema()[0]
	assert.Equal(t, form.KindRepeat, f.Kind)
	assert.Equal(t, 1, f.MinItems)
	assert.Equal(t, "ints: List[Int % Range(0, 3)]", f.Title)
	require.Len(t, f.Children, 1)
	assert.Equal(t, ElementName, f.Children[0].Name)
	assert.Equal(t, "2", f.Children[0].Max)

	spec := req("List[Int]")
	spec.ViewType = "list"
	c := Classify("ints", spec, NoArg).(*SimpleCollectionCase)
	assert.Equal(t, "list", c.innerSpec.ViewType)
	assert.False(t, c.innerSpec.HasDefault())
}

func TestMetadataColumnSchema(t *testing.T) {
	c := Classify("col", req("MetadataColumn[Numeric]"), ColumnArg{Source: "md.tsv", Column: "3"})
	fields := c.Schema()
	require.Len(t, fields, 2)
	assert.Equal(t, "col", fields[0].Name)
	assert.Equal(t, form.KindData, fields[0].Kind)
	assert.Equal(t, "col_Column", fields[1].Name)
	assert.Equal(t, form.KindDataColumn, fields[1].Kind)
	assert.Equal(t, "col", fields[1].DataRef)
	require.Len(t, fields[1].Validators, 1)

	fixtures, err := c.Fixture()
	require.NoError(t, err)
	require.Len(t, fixtures, 2)
	assert.Equal(t, "tabular", fixtures[0].FType)
	assert.Equal(t, "3", fixtures[1].Value)
}

func TestInputSchema(t *testing.T) {
	f := Classify("table", req("FeatureTable[Frequency | RelativeFrequency]"), NoArg).Schema()[0]
	assert.Equal(t, []string{"qza"}, f.Formats)
	assert.Equal(t, []string{"FeatureTable[Frequency]", "FeatureTable[RelativeFrequency]"}, f.SemanticTypes)
	assert.False(t, f.Multiple)
	require.Len(t, f.Validators, 1)
	assert.Contains(t, f.Validators[0].Expression, "'FeatureTable[Frequency]'")

	f = Classify("seqs", req("List[FeatureData[Sequence]]"), NoArg).Schema()[0]
	assert.True(t, f.Multiple)
	assert.Empty(t, f.Validators)
}

func TestUnsupportedSchema(t *testing.T) {
	f := Classify("x", req("List[Int] | List[Str]"), NoArg).Schema()[0]
	assert.Equal(t, "NOT YET IMPLEMENTED", *f.Value)
	require.Len(t, f.Validators, 1)
	assert.Equal(t, "False", f.Validators[0].Expression)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Leave *\"n\"* as its default value of ``5``",
		Classify("n", opt("Int", int64(5)), int64(5)).Describe())
	assert.Equal(t, "Set *\"n\"* to ``7``",
		Classify("n", opt("Int", int64(5)), int64(7)).Describe())
	assert.Equal(t, "Set *\"flag\"* to ``Yes``",
		Classify("flag", opt("Bool", false), true).Describe())
	assert.Equal(t, "Set *\"table\"* to ``#: table.qza``",
		Classify("table", req("FeatureTable[Frequency]"), "table.qza").Describe())
}

func TestFromSignature(t *testing.T) {
	sig := qtype.Signature{
		Inputs:     []qtype.Param{{Name: "table", Spec: req("FeatureTable[Frequency]")}},
		Parameters: []qtype.Param{{Name: "depth", Spec: req("Int")}, {Name: "metric", Spec: opt("Str", "x")}},
	}
	all := FromSignature(sig, nil)
	require.Len(t, all, 3)
	assert.Equal(t, "table", all[0].Name())
	assert.Equal(t, "metric", all[2].Name())

	some := FromSignature(sig, map[string]any{"depth": int64(2)})
	require.Len(t, some, 1)
	assert.Equal(t, "depth", some[0].Name())
}
