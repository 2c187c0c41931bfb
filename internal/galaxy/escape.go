// Package galaxy holds the conventions shared with the Galaxy tool runner:
// the reserved-character escape table, UI variable naming and cleaning of
// the JSON configuration Galaxy writes for a job.
package galaxy

import (
	"strings"

	"github.com/me/q2galaxy/pkg/qtype"
)

// escapes lists the characters Galaxy sanitizes in parameter values, in the
// order they are applied.
var escapes = [...]struct{ char, code string }{
	{"[", "__ob__"},
	{"]", "__cb__"},
	{">", "__gt__"},
	{"<", "__lt__"},
	{"'", "__sq__"},
	{`"`, "__dq__"},
	{"{", "__oc__"},
	{"}", "__cc__"},
	{"@", "__at__"},
	{"\n", "__cn__"},
	{"\r", "__cr__"},
	{"\t", "__tc__"},
	{"#", "__pd__"},
}

var (
	escaper   *strings.Replacer
	unescaper *strings.Replacer
)

func init() {
	var esc, unesc []string
	for _, e := range escapes {
		esc = append(esc, e.char, e.code)
		unesc = append(unesc, e.code, e.char)
	}
	escaper = strings.NewReplacer(esc...)
	unescaper = strings.NewReplacer(unesc...)
}

// Esc replaces every reserved character with its Galaxy code.
func Esc(s string) string {
	return escaper.Replace(s)
}

// Unesc reverses Esc.
func Unesc(s string) string {
	return unescaper.Replace(s)
}

// EscValue stringifies v (None, True, 1.5, ...) and escapes the result.
func EscValue(v any) string {
	return Esc(qtype.Text(v))
}
