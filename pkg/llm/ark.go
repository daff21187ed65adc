package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model/responses"

	"verifyscript/pkg/segment"
)

// ArkBackend wraps Volcengine's Ark Responses API — grounded on the
// teacher's pkg/llm/client.go and pkg/llm/volcengine.go. It is a
// text/structured-only backend: the Responses API as used by the teacher
// never grounds a call in web search and never uploads a document artifact,
// so those two methods return ErrUnsupported. That is the mechanical half of
// spec §6's "cannot combine grounding with structured output" constraint —
// a caller needing both grounding and a schema must sequence a
// GoogleBackend.GenerateWithWebSearch call with a GenerateStructured call
// against either backend's text output.
type ArkBackend struct {
	client *arkruntime.Client
	model  string
}

// NewArkBackend creates an ArkBackend for the given model id.
func NewArkBackend(apiKey, model string) (*ArkBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: ark api key is empty")
	}
	client := arkruntime.NewClientWithApiKey(apiKey)
	return &ArkBackend{client: client, model: model}, nil
}

func (b *ArkBackend) Name() string { return "ark:" + b.model }

func (b *ArkBackend) GenerateText(ctx context.Context, req TextRequest) (string, Usage, error) {
	text, err := b.generate(ctx, req.Prompt)
	if err != nil {
		return "", Usage{}, err
	}
	return text, Usage{}, nil
}

// GenerateStructured prompts Ark for JSON-only output and validates only
// that the result parses as JSON; it relies on prompt instructions rather
// than a native schema parameter, since the Responses API the teacher uses
// has no equivalent of genai's ResponseSchema.
func (b *ArkBackend) GenerateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error) {
	prompt := req.Prompt + "\n\nRespond with JSON only. No markdown fences, no commentary."
	text, err := b.generate(ctx, prompt)
	if err != nil {
		return nil, Usage{}, err
	}
	cleaned := stripJSONFences(text)
	if !json.Valid([]byte(cleaned)) {
		return nil, Usage{}, fmt.Errorf("llm: ark structured response is not valid JSON: %s", cleaned)
	}
	return json.RawMessage(cleaned), Usage{}, nil
}

func (b *ArkBackend) GenerateWithWebSearch(ctx context.Context, req WebSearchRequest) (string, []segment.Source, Usage, error) {
	return "", nil, Usage{}, fmt.Errorf("ark backend: %w", ErrUnsupported)
}

func (b *ArkBackend) UploadArtifact(ctx context.Context, path string) (ArtifactRef, error) {
	return ArtifactRef{}, fmt.Errorf("ark backend: %w", ErrUnsupported)
}

func (b *ArkBackend) GenerateWithArtifact(ctx context.Context, req ArtifactRequest) (string, Usage, error) {
	return "", Usage{}, fmt.Errorf("ark backend: %w", ErrUnsupported)
}

func (b *ArkBackend) generate(ctx context.Context, prompt string) (string, error) {
	req := &responses.ResponsesRequest{
		Model: b.model,
		Input: &responses.ResponsesInput{
			Union: &responses.ResponsesInput_ListValue{
				ListValue: &responses.InputItemList{ListValue: []*responses.InputItem{{
					Union: &responses.InputItem_InputMessage{
						InputMessage: &responses.ItemInputMessage{
							Role: responses.MessageRole_user,
							Content: []*responses.ContentItem{{
								Union: &responses.ContentItem_Text{
									Text: &responses.ContentItemText{
										Type: responses.ContentItemType_input_text,
										Text: prompt,
									},
								},
							}},
						},
					},
				}}},
			},
		},
	}

	resp, err := b.client.CreateResponses(ctx, req, arkruntime.WithProjectName("verifyscript"))
	if err != nil {
		return "", fmt.Errorf("llm: ark api error: %w", err)
	}
	if len(resp.Output) == 0 {
		return "", fmt.Errorf("llm: ark returned no output")
	}
	for _, item := range resp.Output {
		if msg := item.GetOutputMessage(); msg != nil && len(msg.Content) > 0 {
			if text := msg.Content[0].GetText(); text != nil {
				return text.Text, nil
			}
		}
	}
	return "", fmt.Errorf("llm: ark response had no text content")
}

// stripJSONFences removes a leading/trailing markdown code fence, matching
// the teacher's cleanJSONMarkdown helper.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	start, end := 0, len(s)
	for i, c := range s {
		if c == '{' || c == '[' {
			start = i
			break
		}
	}
	for i := len(s) - 1; i >= 0; i-- {
		if c := s[i]; c == '}' || c == ']' {
			end = i + 1
			break
		}
	}
	if start < end {
		return s[start:end]
	}
	return s
}
