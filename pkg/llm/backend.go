// Package llm defines the LLM backend contract from spec §6 and two
// concrete backends: a Google Gemini backend (grounding, structured output,
// large-artifact upload) and a Volcengine Ark backend (text and structured
// output only). The hard constraint "generate_with_web_search and
// generate_structured cannot be combined in a single call" is enforced by
// construction: Ark does not implement GenerateWithWebSearch at all, and the
// Google backend never sets both Tools and ResponseSchema on one request.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"verifyscript/pkg/segment"
)

// ErrUnsupported is returned by a backend method the backend cannot perform,
// e.g. Ark's GenerateWithWebSearch/UploadArtifact.
var ErrUnsupported = errors.New("llm: operation not supported by this backend")

// Usage reports token consumption for one call, mirroring the teacher's
// llm.Usage shape.
type Usage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	ThoughtsTokens   int32 `json:"thoughts_tokens,omitempty"`
	TotalTokens      int32 `json:"total_tokens"`
}

// TextRequest is a freeform generation request (spec's generate_text).
type TextRequest struct {
	Prompt      string
	Temperature float32
	MaxTokens   int32
}

// StructuredRequest is a schema-validated generation request (spec's
// generate_structured). Schema is the zero value of the target Go type;
// the backend derives a JSON schema from it via pkg/schema.
type StructuredRequest struct {
	Prompt      string
	Temperature float32
	Schema      interface{}
}

// WebSearchRequest is a grounded generation request (spec's
// generate_with_web_search).
type WebSearchRequest struct {
	Prompt      string
	Temperature float32
}

// ArtifactRef is an opaque handle to an uploaded artifact (spec's
// upload_artifact).
type ArtifactRef struct {
	URI      string
	MIMEType string
	Label    string
}

// ArtifactRequest generates against a previously uploaded artifact (spec's
// generate_with_artifact).
type ArtifactRequest struct {
	Artifact    ArtifactRef
	Prompt      string
	Temperature float32
	MaxTokens   int32
}

// Backend is the LLM backend contract from spec §6.
type Backend interface {
	// Name identifies the backend for logging and run-summary reporting.
	Name() string

	GenerateText(ctx context.Context, req TextRequest) (string, Usage, error)

	// GenerateStructured returns the raw JSON text produced by the model,
	// validated against the schema derived from req.Schema's type. Callers
	// unmarshal the result into the same concrete type.
	GenerateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error)

	GenerateWithWebSearch(ctx context.Context, req WebSearchRequest) (string, []segment.Source, Usage, error)

	UploadArtifact(ctx context.Context, path string) (ArtifactRef, error)

	GenerateWithArtifact(ctx context.Context, req ArtifactRequest) (string, Usage, error)
}
