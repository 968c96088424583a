package template

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	vars := map[string]string{
		"ruleName":        "checkout errors",
		"matchCount":      "3",
		"labels.severity": "page",
		"empty":           "",
	}
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{name: "single", tmpl: "Rule {{ruleName}} fired", want: "Rule checkout errors fired"},
		{name: "whitespace inside braces", tmpl: "{{ matchCount }} hits", want: "3 hits"},
		{name: "repeated", tmpl: "{{matchCount}}/{{matchCount}}", want: "3/3"},
		{name: "dotted key", tmpl: "sev={{labels.severity}}", want: "sev=page"},
		{name: "unknown left literal", tmpl: "{{ruleName}} {{missing}}", want: "checkout errors {{missing}}"},
		{name: "empty value", tmpl: "[{{empty}}]", want: "[]"},
		{name: "no placeholders", tmpl: "plain text", want: "plain text"},
		{name: "invalid key untouched", tmpl: "{{1abc}}", want: "{{1abc}}"},
		{name: "single braces untouched", tmpl: "{ruleName}", want: "{ruleName}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tmpl, vars); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestRenderNilVars(t *testing.T) {
	if got := Render("{{a}}", nil); got != "{{a}}" {
		t.Errorf("Render() = %q", got)
	}
}

func TestRenderAllAndMap(t *testing.T) {
	vars := map[string]string{"a": "1"}
	got := RenderAll(vars, "x{{a}}", "{{b}}")
	if !reflect.DeepEqual(got, []string{"x1", "{{b}}"}) {
		t.Errorf("RenderAll() = %v", got)
	}
	m := RenderMap(map[string]string{"summary": "a={{a}}"}, vars)
	if m["summary"] != "a=1" {
		t.Errorf("RenderMap() = %v", m)
	}
	if RenderMap(nil, vars) != nil {
		t.Error("RenderMap(nil) should return nil")
	}
}

func TestMergeVariablesPriority(t *testing.T) {
	context := map[string]string{"ruleName": "r", "team": "ctx", "env": "ctx"}
	defaults := map[string]string{"team": "default", "env": "default"}
	overrides := map[string]string{"env": "override"}

	got := MergeVariables(context, defaults, overrides)
	want := map[string]string{"ruleName": "r", "team": "default", "env": "override"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeVariables() = %v, want %v", got, want)
	}
	if context["team"] != "ctx" {
		t.Error("MergeVariables() mutated an input layer")
	}
	if got := MergeVariables(nil, nil); len(got) != 0 {
		t.Errorf("MergeVariables(nil, nil) = %v", got)
	}
}

func TestExtractVariableNames(t *testing.T) {
	got := ExtractVariableNames("{{a}} {{ b }} {{a}} {{c.d}} {{9x}}")
	want := []string{"a", "b", "c.d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractVariableNames() = %v, want %v", got, want)
	}
}

func TestFormatValue(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "nil", value: nil, want: ""},
		{name: "string", value: "x", want: "x"},
		{name: "int", value: 42, want: "42"},
		{name: "int64", value: int64(-7), want: "-7"},
		{name: "integral float", value: float64(500), want: "500"},
		{name: "fraction", value: 0.25, want: "0.25"},
		{name: "bool", value: true, want: "true"},
		{name: "time in utc", value: time.Date(2024, 3, 1, 17, 30, 0, 0, ist), want: "2024-03-01T12:00:00Z"},
		{name: "duration", value: 90 * time.Second, want: "1m30s"},
		{name: "error", value: errors.New("boom"), want: "boom"},
		{name: "slice as json", value: []map[string]any{{"a": 1}}, want: `[{"a":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.value); got != tt.want {
				t.Errorf("FormatValue(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestStringify(t *testing.T) {
	got := Stringify(map[string]any{"matchCount": 1, "ruleName": "r"})
	want := map[string]string{"matchCount": "1", "ruleName": "r"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Stringify() = %v, want %v", got, want)
	}
}
