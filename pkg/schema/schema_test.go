package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected *genai.Schema
	}{
		{
			name:     "basic string",
			input:    "",
			expected: &genai.Schema{Type: genai.TypeString},
		},
		{
			name:     "basic float",
			input:    0.0,
			expected: &genai.Schema{Type: genai.TypeNumber},
		},
		{
			name: "struct with json tags",
			input: struct {
				Name string `json:"name"`
				Age  int    `json:"age,omitempty"`
			}{},
			expected: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name": {Type: genai.TypeString},
					"age":  {Type: genai.TypeInteger},
				},
				Required: []string{"name"},
			},
		},
		{
			name: "enum tag on string field",
			input: struct {
				Status string `json:"status" jsonscheme:"enum:Pass,Fail,Partial"`
			}{},
			expected: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"status": {Type: genai.TypeString, Enum: []string{"Pass", "Fail", "Partial"}},
				},
				Required: []string{"status"},
			},
		},
		{
			name: "slice of struct",
			input: struct {
				Items []struct {
					ID string `json:"id"`
				} `json:"items"`
			}{},
			expected: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"items": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type:       genai.TypeObject,
							Properties: map[string]*genai.Schema{"id": {Type: genai.TypeString}},
							Required:   []string{"id"},
						},
					},
				},
				Required: []string{"items"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Of(tt.input)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("schema mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestForCachesByType(t *testing.T) {
	a := Of("")
	b := Of("")
	if a != b {
		t.Fatal("expected schema.Of to return the cached pointer for a repeated type")
	}
}
