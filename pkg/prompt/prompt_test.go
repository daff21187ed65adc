package prompt

import (
	"strings"
	"testing"
)

func TestRenderWithJSONAndPrefixHelpers(t *testing.T) {
	tmpl := Must("test", `Quote:
{{.Quote | prefix "> "}}

Data:
{{.Data | json}}`)

	out, err := Render(tmpl, struct {
		Quote string
		Data  map[string]int
	}{Quote: "line one\nline two", Data: map[string]int{"a": 1}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "> line one\n> line two") {
		t.Errorf("expected prefixed quote, got:\n%s", out)
	}
	if !strings.Contains(out, `"a": 1`) {
		t.Errorf("expected pretty JSON, got:\n%s", out)
	}
}
