package toolxml

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/me/q2galaxy/internal/builtins"
	"github.com/me/q2galaxy/internal/galaxy"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/usage"
)

// fmtBoundary finds where a space goes in a CamelCase format name.
var fmtBoundary = regexp2.MustCompile(`(?<=[a-z])[A-Z]|(?<!\A)[A-Z](?=[a-z])`, regexp2.None)

// PrettyFormatName spells out a format class name for display, e.g.
// "DNASequencesDirFmt" becomes "DNA Sequences Directory Format".
func PrettyFormatName(name string) string {
	spaced, err := fmtBoundary.Replace(name, " $0", -1, -1)
	if err != nil {
		return name
	}
	tokens := strings.Split(spaced, " ")
	for i, tok := range tokens {
		switch tok {
		case "Fmt":
			tokens[i] = "Format"
		case "Dir":
			tokens[i] = "Directory"
		}
	}
	return strings.Join(tokens, " ")
}

// BuiltinVersion identifies the plugin environment the built-in tools were
// generated from: the q2galaxy version plus a hash of every plugin id and
// version.
func BuiltinVersion(plugins []*plugin.Plugin) string {
	var hash [md5.Size]byte
	for _, p := range plugins {
		sum := md5.Sum([]byte(p.ID + "=" + p.Version))
		for i := range hash {
			hash[i] ^= sum[i]
		}
	}
	local := "dist.h" + hex.EncodeToString(hash[:4])
	if strings.Contains(Version, "+") {
		return Version + "-" + local
	}
	return Version + "+" + local
}

// BuiltinID is the tool id of a built-in tool.
func BuiltinID(action string) string {
	return usage.ToolID(builtins.PluginID, action)
}

// MakeBuiltin renders the built-in tool action.
func MakeBuiltin(reg *plugin.Registry, action string) (*Node, error) {
	switch action {
	case builtins.ActionImport:
		return MakeImport(reg), nil
	case builtins.ActionExport:
		return MakeExport(reg), nil
	}
	return nil, fmt.Errorf("%w: %s", plugin.ErrActionNotFound, action)
}

// MakeImport renders the tool that imports files as an artifact. The type
// select leads to a format select, which leads to one upload section per
// file of the format.
func MakeImport(reg *plugin.Registry) *Node {
	typeSel := New("param", "name", "type", "type", "select", "label", "Type of data to import:").Append(
		NewText("option", "Select a QIIME 2 type to import.", "value", "None"),
	)
	root := New("conditional", "name", "import_root").Append(typeSel, New("when", "value", "None"))

	for _, t := range reg.SemanticTypes() {
		typeSel.Append(NewText("option", t.Name, "value", galaxy.Esc(t.Name)))

		fmtSel := New("param", "type", "select", "name", "format", "label", "QIIME 2 file format to import from:")
		fmtCond := New("conditional", "name", galaxy.UIVar("cond", "format")).Append(fmtSel)
		formats := append([]string(nil), t.Formats...)
		sort.Strings(formats)
		for _, name := range formats {
			f, ok := reg.Format(name)
			if !ok {
				continue
			}
			fmtSel.Append(NewText("option", PrettyFormatName(f.Name), "value", galaxy.Esc(f.Name)))
			fmtCond.Append(New("when", "value", galaxy.Esc(f.Name)).Append(formatUI(f)...))
		}
		root.Append(New("when", "value", galaxy.Esc(t.Name)).Append(fmtCond))
	}

	tool := New("tool",
		"id", BuiltinID(builtins.ActionImport),
		"name", usage.ToolName(builtins.PluginID, builtins.ActionImport),
		"version", BuiltinVersion(reg.Plugins()),
	)
	tool.Append(
		New("inputs").Append(root),
		New("outputs").Append(New("data",
			"name", builtins.ImportedName,
			"format", "qza",
			"from_work_dir", builtins.ImportedName+".qza",
		)),
		NewText("command", "q2galaxy run tools import '$inputs'"),
		New("configfiles").Append(NewText("configfile", importConfig, "name", "inputs")),
		NewText("description", "Import data into a QIIME 2 Artifact"),
		New("help"),
	)
	return tool
}

// formatUI renders the upload sections of a format. A format of one file
// takes a single dataset, otherwise every file gets its own section and
// patterns matching many files are uploaded as collections.
func formatUI(f plugin.Format) []*Node {
	if len(f.Files) <= 1 {
		return []*Node{New("section", "name", "import", "expanded", "true").Append(
			New("param", "type", "hidden", "name", "name", "value", galaxy.EscValue(nil)),
			New("param", "type", "data", "name", "data", "help", f.Name),
		)}
	}
	var out []*Node
	for i, pattern := range f.Files {
		attr := fileAttr(pattern, i)
		if isGlob(pattern) {
			out = append(out, collectionUI(f, attr, pattern))
			continue
		}
		out = append(out, New("section", "name", "import_"+attr, "expanded", "true").Append(
			New("param", "type", "text", "name", "name", "help", "Filename to import as", "value", pattern),
			New("param", "type", "data", "name", "data", "help", f.Name),
		))
	}
	return out
}

func collectionUI(f plugin.Format, attr, pattern string) *Node {
	picker := New("param", "type", "select", "label", "Select a mechanism", "name", galaxy.UIVar("select", "picker")).Append(
		NewText("option", "Use collection to import", "value", "collection", "selected", "true"),
		NewText("option", "Associate individual files", "value", "individual"),
	)
	extCond := New("conditional", "name", galaxy.UIVar("cond", "add_ext")).Append(
		New("param", "type", "select", "label", "Append an extension?", "name", galaxy.UIVar("select", "ext_pick")).Append(
			NewText("option", "No, use element identifiers as is", "value", "no"),
			NewText("option", "Yes, append an extension", "value", "yes"),
		),
		New("when", "value", "yes").Append(
			New("param", "type", "text", "name", "ext", "label", "Extension to append (e.g. '.fastq.gz')"),
		),
		New("when", "value", "no"),
	)
	cond := New("conditional", "name", galaxy.UIVar("cond", attr)).Append(
		picker,
		New("when", "value", "collection").Append(
			New("param", "type", "data_collection", "name", "elements", "help", f.Name),
			extCond,
		),
		New("when", "value", "individual").Append(
			New("repeat", "name", "elements", "min", "1").Append(
				New("param", "type", "text", "name", "name", "help", "Filename to import as", "value", pattern),
				New("param", "type", "data", "name", "data", "help", f.Name),
			),
		),
	)
	return New("section", "name", "import_"+attr, "expanded", "true").Append(cond)
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// fileAttr derives a section name from a file pattern: "ints.txt" gives
// "ints", "*.fastq.gz" gives "file1".
func fileAttr(pattern string, idx int) string {
	base := pattern
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	attr := strings.Trim(b.String(), "_")
	if attr == "" {
		return fmt.Sprintf("file%d", idx+1)
	}
	return attr
}

// importConfig is the Cheetah body that serializes the import_root
// conditional, collections included, into the job configuration.
const importConfig = `<%
import json

def expand_collection(collection):
    return [dict(name=d.element_identifier, data=stringify(d))
            for d in collection]

def stringify(obj):
    if type(obj) is dict:
        new = {}
        for key, value in obj.items():
            if (key.startswith('__') and key.endswith('__')
                    and not key.startswith('__q2galaxy__')):
                continue
            new[str(key)] = stringify(value)
        return new
    elif type(obj) is list:
        return [stringify(x) for x in obj]
    elif type(obj.__str__) is not type(object().__str__):
        return str(obj)
    elif obj.is_collection:
        return expand_collection(obj)
    else:
        raise NotImplementedError("Unrecognized situation in q2galaxy")

write(json.dumps(stringify(self.getVar('import_root'))))
%>`

// MakeExport renders the tool that exports an artifact's payload, either
// as stored or viewed as another format of its type.
func MakeExport(reg *plugin.Registry) *Node {
	const input = "input"
	inputs := New("inputs").Append(
		New("param", "format", "qza", "name", input, "type", "data",
			"label", "input: The path to the artifact you want to export"),
		New("param", "type", "select", "name", "type_peek", "display", "radio",
			"label", "The type of your input qza is:").Append(
			New("options").Append(New("filter", "type", "data_meta", "ref", input, "key", "semantic_type")),
		),
		New("param", "type", "select", "name", "fmt_peek", "display", "radio",
			"label", "The current QIIME 2 format is:").Append(
			New("options").Append(New("filter", "type", "data_meta", "ref", input, "key", "format")),
		),
	)

	asIs := func() *Node {
		return NewText("option", "export as is (no conversion)", "value", "None", "selected", "true")
	}
	formatSelect := func() *Node {
		return New("param", "type", "select", "name", "output_format",
			"label", "QIIME 2 file format to convert to:").Append(asIs())
	}

	typeSel := New("param", "name", "type", "type", "select",
		"label", "To change the format, select the type indicated above:").Append(asIs())
	finder := New("conditional", "name", "fmt_finder").Append(
		typeSel,
		New("when", "value", "None").Append(formatSelect()),
	)

	known := make(map[string]plugin.Format)
	for _, t := range reg.SemanticTypes() {
		typeSel.Append(NewText("option", t.Name, "value", galaxy.Esc(t.Name)))
		sel := formatSelect()
		formats := append([]string(nil), t.Formats...)
		sort.Strings(formats)
		for _, name := range formats {
			f, ok := reg.Format(name)
			if !ok {
				continue
			}
			known[f.Name] = f
			sel.Append(NewText("option", PrettyFormatName(f.Name), "value", galaxy.Esc(f.Name)))
		}
		finder.Append(New("when", "value", galaxy.Esc(t.Name)).Append(sel))
	}
	inputs.Append(finder)

	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, galaxy.Esc(name))
	}
	sort.Strings(names)
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}

	outputs := New("outputs").Append(
		New("collection", "name", "exported", "type", "list",
			"label", "${tool.name} on ${on_string} as ${fmt_peek}").Append(
			NewText("filter", fmt.Sprintf("fmt_finder['output_format'] == 'None' and fmt_peek not in {%s}",
				strings.Join(quoted, ", "))),
			New("discover_datasets", "visible", "false", "pattern", "__designation_and_ext__"),
		),
	)
	var documented []plugin.Format
	for _, name := range sortedKeys(known) {
		f := known[name]
		documented = append(documented, f)
		outputs.Append(exportOutputs(f)...)
	}

	tool := New("tool",
		"id", BuiltinID(builtins.ActionExport),
		"name", usage.ToolName(builtins.PluginID, builtins.ActionExport),
		"version", BuiltinVersion(reg.Plugins()),
	)
	tool.Append(
		NewText("description", "Export data from a QIIME 2 artifact"),
		NewText("command", "q2galaxy run tools export '$inputs'"),
		configFiles(),
		inputs,
		outputs,
		citations(nil),
		requirements(reg.Plugins()...),
		NewText("help", exportHelp(documented)),
	)
	return tool
}

// exportOutputs renders the datasets discovered when the payload is
// exported as f.
func exportOutputs(f plugin.Format) []*Node {
	esc := galaxy.Esc(f.Name)
	filter := fmt.Sprintf("fmt_finder['output_format'] == '%s' or (fmt_finder['output_format'] == 'None' and fmt_peek == '%s')", esc, esc)
	label := "${tool.name} on ${on_string} as " + f.Name

	if len(f.Files) <= 1 {
		return []*Node{New("data", "name", esc, "label", label).Append(
			NewText("filter", filter),
			New("discover_datasets", "visible", "true", "assign_primary_output", "true", "pattern", "__designation_and_ext__"),
		)}
	}

	var out []*Node
	var data *Node
	for i, pattern := range f.Files {
		attr := fileAttr(pattern, i)
		regex, hasExt := pathspecRegex(pattern)
		discover := New("discover_datasets", "pattern", regex)
		if !hasExt {
			discover.Set("ext", "data")
		}
		if isGlob(pattern) {
			discover.Set("visible", "false")
			out = append(out, New("collection", "type", "list", "name", esc+"_"+attr,
				"label", label+" ("+attr+")").Append(NewText("filter", filter), discover))
			continue
		}
		discover.Set("visible", "true")
		if data == nil {
			data = New("data", "name", esc, "label", label).Append(NewText("filter", filter))
			discover.Set("assign_primary_output", "true")
		}
		data.Append(discover)
	}
	if data != nil {
		out = append([]*Node{data}, out...)
	}
	return out
}

// pathspecRegex turns a file pattern into a dataset discovery regex with
// designation and ext groups. Compressed extensions keep their inner
// extension.
func pathspecRegex(pattern string) (string, bool) {
	parts := strings.Split(pattern, ".")
	if len(parts) == 1 {
		return "(?P<designation>" + globRegex(pattern) + ")", false
	}
	n := 1
	if last := parts[len(parts)-1]; (last == "gz" || last == "bz2") && len(parts) > 2 {
		n = 2
	}
	rest := strings.Join(parts[:len(parts)-n], ".")
	ext := strings.Join(parts[len(parts)-n:], ".")
	return "(?P<designation>" + globRegex(rest) + `)\.(?P<ext>` + globRegex(ext) + ")", true
}

// globRegex translates * and ? and quotes everything else.
func globRegex(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexpQuote(string(r)))
		}
	}
	return b.String()
}

func sortedKeys(m map[string]plugin.Format) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const exportInstructions = `
1. Select the QZA you would like to export. Once selected, two fields will
   update indicating the type and format of this QZA.

2. If you wish to change the output format, first provide the same type as
   the QZA (which is shown above). This will filter the available formats.

3. Select the format you desire. Some limited documentation is available on
   these formats below.

**IMPORTANT:** if you select the wrong type when exporting, you will receive an
error suggesting the payload "cannot be viewed as" the format.
`

func exportHelp(formats []plugin.Format) string {
	var b strings.Builder
	b.WriteString(usage.Header("QIIME 2: tools export", 1))
	b.WriteString("Export a QIIME 2 artifact to different formats\n")
	b.WriteString(usage.Header("Instructions", 2))
	b.WriteString(exportInstructions)

	b.WriteString(usage.Header("Formats:", 2))
	b.WriteString("These formats have documentation available.\n")
	var missing []string
	for _, f := range formats {
		if f.Description == "" {
			missing = append(missing, f.Name)
			continue
		}
		b.WriteString(usage.Header(f.Name, 3))
		b.WriteString("    " + f.Description + "\n")
	}
	if len(missing) > 0 {
		b.WriteString(usage.Header("Additional formats without documentation:", 3))
		for _, name := range missing {
			b.WriteString(" - " + name + "\n")
		}
	}
	return b.String()
}
