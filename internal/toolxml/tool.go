package toolxml

import (
	"fmt"
	"strings"

	"github.com/me/q2galaxy/internal/cases"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/usage"
	"github.com/me/q2galaxy/pkg/qtype"
)

// Version is the q2galaxy release stamped into generated tools.
const Version = "2024.5.0"

// FrameworkDOI is cited by every generated tool.
const FrameworkDOI = "10.1038/s41587-019-0209-9"

// MakeTool renders the tool descriptor of one plugin action.
func MakeTool(p *plugin.Plugin, a *plugin.Action) (*Node, error) {
	inputs := New("inputs").Append(Fields(cases.Form(a.Signature))...)

	outputs := New("outputs")
	for _, o := range a.Signature.Outputs {
		outputs.Append(output(o))
	}

	tests, err := makeTests(a)
	if err != nil {
		return nil, fmt.Errorf("tests of %s: %w", a.ID, err)
	}
	help, err := makeHelp(p, a)
	if err != nil {
		return nil, fmt.Errorf("help of %s: %w", a.ID, err)
	}

	tool := New("tool",
		"id", usage.ToolID(p.ID, a.ID),
		"name", usage.ToolName(p.ID, a.ID),
		"version", p.Version+"+q2galaxy."+Version,
	)
	tool.Append(
		NewText("description", a.Name),
		NewText("command", fmt.Sprintf("q2galaxy run %s %s '$inputs'", p.ID, a.ID), "detect_errors", "aggressive"),
		NewText("version_command", "q2galaxy version "+p.ID),
		configFiles(),
		inputs,
		outputs,
		tests,
		help,
		citations(p),
		requirements(p),
	)
	return tool, nil
}

func configFiles() *Node {
	return New("configfiles").Append(New("inputs", "name", "inputs", "data_style", "paths"))
}

func outputFile(o qtype.Param) (string, string) {
	ext := usage.OutputExt(o.Spec.Type)
	return o.Name + "." + ext, ext
}

func output(o qtype.Param) *Node {
	file, ext := outputFile(o)
	return New("data",
		"format", ext,
		"name", o.Name,
		"from_work_dir", file,
		"label", "${tool.id} on ${on_string}: "+file,
	)
}

func makeTests(a *plugin.Action) (*Node, error) {
	tests := New("tests")
	ts, err := usage.Tests(a)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		test := New("test").Append(Fixtures(t.Fixtures)...)
		for _, o := range t.Outputs {
			out := New("output", "name", o.Name, "ftype", o.Ext)
			out.Append(New("assert_contents").Append(
				New("has_archive_member", "path", `[^/]+/metadata\.yaml`).Append(
					New("has_line_matching", "expression", "type: "+regexpQuote(o.Type)),
				),
			))
			test.Append(out)
		}
		tests.Append(test)
	}
	return tests, nil
}

var regexpMeta = strings.NewReplacer(
	`\`, `\\`, ".", `\.`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"|", `\|`, "*", `\*`, "+", `\+`, "?", `\?`, "^", `\^`, "$", `\$`,
	"{", `\{`, "}", `\}`,
)

func regexpQuote(s string) string {
	return regexpMeta.Replace(s)
}

func makeHelp(p *plugin.Plugin, a *plugin.Action) (*Node, error) {
	var b strings.Builder
	b.WriteString(usage.Header("QIIME 2: "+p.Name+" "+strings.ReplaceAll(a.ID, "_", "-"), 1))
	b.WriteString(a.Name + "\n\n")

	b.WriteString(usage.Header("Outputs:", 2))
	for _, o := range a.Signature.Outputs {
		desc := o.Spec.Description
		if desc == "" {
			desc = "<no description>"
		}
		file, _ := outputFile(o)
		fmt.Fprintf(&b, ":%s: %s\n", file, desc)
	}
	b.WriteString("\n|  \n")
	b.WriteString(usage.Header("Description:", 2))
	b.WriteString(a.Description + "\n")

	if len(a.Examples) > 0 {
		b.WriteString(usage.Header("Examples:", 2))
		for _, ex := range a.Examples {
			lines, err := usage.Instructions(a, ex)
			if err != nil {
				return nil, err
			}
			b.WriteString(usage.Header(ex.Name, 3))
			b.WriteString(strings.Join(lines, "\n"))
		}
	}
	b.WriteString("\n\n|  \n\n")
	return NewText("help", b.String()), nil
}

// citations renders the plugin's citations followed by the framework's.
func citations(p *plugin.Plugin) *Node {
	n := New("citations")
	var cs []plugin.Citation
	if p != nil {
		cs = append(cs, p.Citations...)
	}
	cs = append(cs, plugin.Citation{Key: "framework", DOI: FrameworkDOI})
	for _, c := range cs {
		if c.DOI != "" {
			n.Append(NewText("citation", c.DOI, "type", "doi"))
		} else if c.BibTeX != "" {
			n.Append(NewText("citation", c.BibTeX, "type", "bibtex"))
		}
	}
	return n
}

func requirements(plugins ...*plugin.Plugin) *Node {
	n := New("requirements").Append(
		NewText("requirement", "q2galaxy", "type", "package", "version", Version),
	)
	for _, p := range plugins {
		if p.Package == "" {
			continue
		}
		n.Append(NewText("requirement", p.Package, "type", "package", "version", p.Version))
	}
	return n
}
