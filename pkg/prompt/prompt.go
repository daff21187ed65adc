// Package prompt provides the shared text/template machinery every pipeline
// stage uses to build its LLM prompts, grounded on the teacher's
// pkg/evalv2/prompts.go funcMap ("json", "prefix") and template.Must
// pattern, generalized from two fixed templates to any stage's template set.
package prompt

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"
)

func toJSON(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func prefixLines(p, s string) string {
	return p + strings.ReplaceAll(s, "\n", "\n"+p)
}

// FuncMap is shared by every stage's templates: "json" pretty-prints a Go
// value for inclusion in a prompt, "prefix" indents a multi-line block
// (e.g. quoting transcript text with "> ").
var FuncMap = template.FuncMap{
	"json":   toJSON,
	"prefix": prefixLines,
}

// Must parses a named template with the shared FuncMap, panicking on a
// template syntax error exactly as the teacher's template.Must(...) does —
// a malformed prompt template is a programmer error caught at init time, not
// a runtime condition to recover from.
func Must(name, body string) *template.Template {
	return template.Must(template.New(name).Funcs(FuncMap).Parse(body))
}

// Render executes tmpl against data and returns the resulting prompt text.
func Render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
