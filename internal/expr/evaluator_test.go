package expr

import (
	"reflect"
	"testing"
)

func TestEvaluator_References(t *testing.T) {
	eval := NewEvaluator()
	ctx := &Context{
		Inputs: map[string]any{
			"name":  "sample1",
			"count": 42,
			"table": map[string]any{"path": "/tmp/a/data", "uuid": "abc"},
		},
		Runtime: map[string]any{"workdir": "/work", "cores": 2},
	}

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"string reference", "$(inputs.name)", "sample1"},
		{"int reference", "$(inputs.count)", int64(42)},
		{"nested property", "$(inputs.table.path)", "/tmp/a/data"},
		{"interpolation", "out_$(inputs.name).txt", "out_sample1.txt"},
		{"multiple", "$(inputs.name)_$(inputs.count)", "sample1_42"},
		{"arithmetic", "$(inputs.count * 2)", int64(84)},
		{"literal", "just text", "just text"},
		{"escaped", `\$(inputs.name)`, "$(inputs.name)"},
		{"runtime", "$(runtime.workdir)/x", "/work/x"},
		{"code block", "${ return inputs.count + 1; }", int64(43)},
		{"code block with suffix", "${ return inputs.name; }.tsv", "sample1.tsv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Evaluate(tt.expr, ctx)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Evaluate() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	eval := NewEvaluator()
	ctx := NewContext(map[string]any{"x": 1})
	for _, s := range []string{"$(inputs.missing)", "$(inputs.x +)", "${ throw new Error('no'); }"} {
		if _, err := eval.Evaluate(s, ctx); err == nil {
			t.Errorf("Evaluate(%q) succeeded, want error", s)
		}
	}
}

func TestEvaluator_Self(t *testing.T) {
	eval := NewEvaluator("function double(x) { return x * 2; }")
	ctx := NewContext(nil).WithSelf(21)
	got, err := eval.EvaluateString("$(double(self))", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != "42" {
		t.Errorf("got %q", got)
	}
}

func TestScript(t *testing.T) {
	eval := NewEvaluator()
	tests := []struct {
		script string
		value  any
		want   bool
	}{
		{`value !== "None"`, "None", false},
		{`value !== "None"`, "x", true},
		{`value !== null && value.length > 0`, "", false},
		{`String(value) !== "1"`, "3", true},
		{`String(value) !== "1"`, int64(1), false},
		{`["A", "B"].indexOf(value) >= 0`, "B", true},
		{`false`, "anything", false},
	}
	for _, tt := range tests {
		got, err := eval.Script(tt.script, tt.value, nil)
		if err != nil {
			t.Errorf("Script(%q): %v", tt.script, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Script(%q, %v) = %v, want %v", tt.script, tt.value, got, tt.want)
		}
	}
}

func TestJSONDumps(t *testing.T) {
	got := JSONDumps(map[string]any{"b": []any{int64(1), "x"}, "a": nil})
	want := `{"a": null, "b": [1, "x"]}`
	if got != want {
		t.Errorf("JSONDumps = %s, want %s", got, want)
	}
}

func TestIsExpression(t *testing.T) {
	cases := map[string]bool{
		"$(inputs.x)":     true,
		"a $(b) c":        true,
		"${ return 1 }":   true,
		`\$(inputs.x)`:    false,
		"plain":           false,
		"cost is $5 (ok)": false,
	}
	for s, want := range cases {
		if got := IsExpression(s); got != want {
			t.Errorf("IsExpression(%q) = %v, want %v", s, got, want)
		}
	}
}
