package toolxml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/q2galaxy/internal/form"
)

func TestNodeString(t *testing.T) {
	n := New("tool", "id", "x", "name", `a "b"`).Append(
		NewText("description", "1 < 2 & 3"),
		New("inputs").Append(New("param", "name", "p")),
		nil,
	)
	want := `<?xml version="1.0" ?>
<tool id="x" name="a &quot;b&quot;">
   <description>1 &lt; 2 &amp; 3</description>
   <inputs>
      <param name="p"/>
   </inputs>
</tool>
`
	assert.Equal(t, want, n.String())
}

func TestNodeSetKeepsOrder(t *testing.T) {
	n := New("param", "name", "a", "type", "text")
	n.Set("name", "b").Set("value", "v")
	assert.Equal(t, []Attr{{"name", "b"}, {"type", "text"}, {"value", "v"}}, n.Attrs)

	v, ok := n.Get("type")
	assert.True(t, ok)
	assert.Equal(t, "text", v)
	_, ok = n.Get("missing")
	assert.False(t, ok)
}

func TestNodeFind(t *testing.T) {
	n := New("when").Append(New("param", "name", "a"), New("section"), New("param", "name", "b"))
	assert.Equal(t, "a", mustGet(t, n.Find("param"), "name"))
	assert.Len(t, n.FindAll("param"), 2)
	assert.Nil(t, n.Find("repeat"))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool.xml")
	require.NoError(t, New("tool").WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<?xml version=\"1.0\" ?>\n<tool/>\n", string(data))
}

func TestField(t *testing.T) {
	f := &form.Field{
		Name:       "n",
		Kind:       form.KindInteger,
		Label:      "n: Int",
		Help:       "[required]",
		Value:      form.StringPtr(""),
		Min:        "1",
		Validators: []form.Validator{{Expression: "value != ''", Message: "required"}},
	}
	got := Field(f)
	assert.Equal(t, []Attr{
		{"name", "n"}, {"type", "integer"}, {"label", "n: Int"}, {"help", "[required]"},
		{"value", ""}, {"min", "1"},
	}, got.Attrs)
	require.Len(t, got.Children, 1)
	assert.Equal(t, "validator", got.Children[0].Name)
	assert.Equal(t, "value != ''", got.Children[0].Text)

	cond := Field(&form.Field{
		Name:     "c",
		Kind:     form.KindConditional,
		Selector: &form.Field{Name: "s", Kind: form.KindSelect, Options: []form.Option{{Label: "A", Value: "a", Selected: true}}},
		Whens:    []form.When{{Value: "a", Fields: []*form.Field{{Name: "x", Kind: form.KindText}}}},
	})
	assert.Equal(t, "conditional", cond.Name)
	sel := cond.Find("param")
	require.NotNil(t, sel)
	opt := sel.Find("option")
	require.NotNil(t, opt)
	assert.Equal(t, "A", opt.Text)
	assert.Equal(t, "true", mustGet(t, opt, "selected"))
	assert.Equal(t, "a", mustGet(t, cond.Find("when"), "value"))

	section := Field(&form.Field{Name: "sec", Kind: form.KindSection, Title: "T"})
	assert.Equal(t, "true", mustGet(t, section, "expanded"))
	section = Field(&form.Field{Name: "sec", Kind: form.KindSection, Advanced: true})
	_, ok := section.Get("expanded")
	assert.False(t, ok)
}

func TestFixtures(t *testing.T) {
	nodes := Fixtures([]*form.Fixture{
		{Kind: form.KindConditional, Name: "c", Children: []*form.Fixture{form.Param("s", "a")}},
		{Kind: form.KindRepeat, Name: "r", Children: []*form.Fixture{form.Param("v", "1")}},
		{Name: "d", Value: "x.qza", FType: "qza"},
	})
	require.Len(t, nodes, 3)
	assert.Equal(t, "conditional", nodes[0].Name)
	assert.Equal(t, "repeat", nodes[1].Name)
	assert.Equal(t, []Attr{{"name", "d"}, {"value", "x.qza"}, {"ftype", "qza"}}, nodes[2].Attrs)
}

func mustGet(t *testing.T, n *Node, name string) string {
	t.Helper()
	require.NotNil(t, n)
	v, ok := n.Get(name)
	require.True(t, ok, "attribute %s of <%s>", name, n.Name)
	return v
}
