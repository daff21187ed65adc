// Package schema generates google.golang.org/genai structured-output schemas
// from Go struct types by reflection, generalizing the teacher's
// pkg/evalv2/schema.go from one fixed pair of types to any stage contract.
package schema

import (
	"reflect"
	"strings"
	"sync"

	"google.golang.org/genai"
)

var (
	cacheMu sync.Mutex
	cache   = make(map[reflect.Type]*genai.Schema)
)

// Of returns the genai.Schema for v's type, deriving it from struct tags on
// first use and caching the result. v may be any Go value or nil pointer of
// the target type (schema generation reads static type information only).
func Of(v interface{}) *genai.Schema {
	return For(reflect.TypeOf(v))
}

// For is the reflect.Type-keyed entry point; Of is the convenience wrapper.
func For(t reflect.Type) *genai.Schema {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	cacheMu.Lock()
	if cached, ok := cache[t]; ok {
		cacheMu.Unlock()
		return cached
	}
	cacheMu.Unlock()

	s := build(t)

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()
	return s
}

// build contains the reflection logic, without cache awareness.
func build(t reflect.Type) *genai.Schema {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return &genai.Schema{
			Type:  genai.TypeArray,
			Items: build(t.Elem()),
		}
	case reflect.Map:
		// genai has no native map-of-object schema; model as a freeform object.
		return &genai.Schema{Type: genai.TypeObject}
	case reflect.Ptr:
		return build(t.Elem())
	case reflect.Struct:
		s := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema),
		}
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			jsonTag := field.Tag.Get("json")
			if jsonTag == "-" {
				continue
			}
			name := strings.Split(jsonTag, ",")[0]
			if name == "" {
				name = field.Name
			}
			ps := build(field.Type)
			if schemeTag := field.Tag.Get("jsonscheme"); schemeTag != "" {
				applyJSONScheme(ps, schemeTag)
			}
			if desc := field.Tag.Get("desc"); desc != "" {
				ps.Description = desc
			}
			s.Properties[name] = ps
			if !strings.Contains(jsonTag, "omitempty") {
				s.Required = append(s.Required, name)
			}
		}
		return s
	case reflect.String:
		return &genai.Schema{Type: genai.TypeString}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &genai.Schema{Type: genai.TypeInteger}
	case reflect.Float32, reflect.Float64:
		return &genai.Schema{Type: genai.TypeNumber}
	case reflect.Bool:
		return &genai.Schema{Type: genai.TypeBoolean}
	default:
		panic("schema: unsupported type for schema generation: " + t.String())
	}
}

// applyJSONScheme interprets the custom "jsonscheme" struct tag, currently
// supporting "enum:a,b,c" to constrain a string field (or the item type of a
// string slice field) to a fixed set of values.
func applyJSONScheme(s *genai.Schema, tag string) {
	for _, part := range strings.Split(tag, ";") {
		if rest, ok := strings.CutPrefix(part, "enum:"); ok {
			vals := strings.Split(rest, ",")
			target := s
			if s.Type == genai.TypeArray && s.Items != nil {
				target = s.Items
			}
			target.Enum = vals
		}
	}
}
