package usage

import (
	"fmt"
	"strings"

	"github.com/me/q2galaxy/internal/cases"
	"github.com/me/q2galaxy/internal/plugin"
)

// bullet is one instruction, optionally with nested instructions.
type bullet struct {
	text string
	sub  []bullet
}

// Instructions renders the RST steps a user follows in Galaxy to run the
// example: standard fields first, then the additional options, then
// Execute, and a renaming table when the example names its results.
func Instructions(a *plugin.Action, ex plugin.Example) ([]string, error) {
	pluginID := ""
	if a.Plugin != nil {
		pluginID = a.Plugin.ID
	}
	tool := ToolName(pluginID, a.ID)

	args, err := arguments(ex, interfaceName, nil)
	if err != nil {
		return nil, fmt.Errorf("example %s: %w", ex.Name, err)
	}

	var standard, advanced []bullet
	for _, c := range cases.FromSignature(a.Signature, args) {
		b := bullet{text: c.Describe()}
		if c.Advanced() {
			advanced = append(advanced, b)
		} else {
			standard = append(standard, b)
		}
	}
	steps := standard
	if len(advanced) > 0 {
		steps = append(steps, bullet{text: "Expand the ``additional options`` section", sub: advanced})
	}
	steps = append(steps, bullet{text: "Press the ``Execute`` button."})

	var lines []string
	if ex.Description != "" {
		lines = append(lines, "| "+ex.Description)
	}
	lines = append(lines, fmt.Sprintf("Using the ``%s`` tool:", tool))
	lines = append(lines, listLines(steps, 1)...)

	renamed := false
	for out, result := range ex.Outputs {
		if out != result {
			renamed = true
		}
	}
	if renamed {
		clause := "for the new entry in your history"
		if len(a.Signature.Outputs) > 1 {
			clause = "for each new entry in your history"
		}
		lines = append(lines,
			fmt.Sprintf("Once completed, %s, use the ``Edit`` button to set the name as follows:", clause),
			" (Renaming is optional, but it will make any subsequent steps easier to complete.)",
			"",
			" .. list-table::",
			"    :align: left",
			"    :header-rows: 1",
			"",
			"    * - History Name",
			"      - *\"Name\"* to set (be sure to press ``Save``)",
		)
		for _, o := range a.Signature.Outputs {
			result, ok := ex.Outputs[o.Name]
			if !ok {
				continue
			}
			ext := OutputExt(o.Spec.Type)
			lines = append(lines,
				fmt.Sprintf("    * - ``#: %s [...] : %s.%s``", tool, o.Name, ext),
				fmt.Sprintf("      - ``%s.%s``", strings.ReplaceAll(result, "_", "-"), ext),
			)
		}
	}
	lines = append(lines, "")
	return lines, nil
}

// listLines renders an RST list. A single step is a plain bullet, several
// are auto-numbered.
func listLines(steps []bullet, indent int) []string {
	marker := "- "
	if len(steps) > 1 {
		marker = "#. "
	}
	pad := strings.Repeat(" ", indent)

	var lines []string
	for _, s := range steps {
		lines = append(lines, pad+marker+s.text)
		if len(s.sub) > 0 {
			lines = append(lines, "")
			lines = append(lines, listLines(s.sub, indent+len(marker))...)
		}
	}
	return append(lines, "")
}
