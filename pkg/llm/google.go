package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"google.golang.org/genai"

	"verifyscript/pkg/schema"
	"verifyscript/pkg/segment"
)

// GoogleBackend wraps google.golang.org/genai. It is the only backend that
// can ground a call in web search (genai.Tool{GoogleSearch}) or upload a
// large document artifact (client.Files.Upload) — grounded on the teacher's
// pkg/evalv2/evaluator.go and pkg/evalv2/generator.go GenerateContent usage.
type GoogleBackend struct {
	client *genai.Client
	model  string
}

// NewGoogleBackend creates a GoogleBackend for the given model id, e.g.
// "gemini-3-pro-preview".
func NewGoogleBackend(ctx context.Context, apiKey, model string) (*GoogleBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: google api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create google ai client: %w", err)
	}
	return &GoogleBackend{client: client, model: model}, nil
}

func (b *GoogleBackend) Name() string { return "google:" + b.model }

func ptr[T any](v T) *T { return &v }

// compactSources drops placeholder entries left by grounding chunks that
// carried no Web field (e.g. retrieved-context-only chunks), preserving the
// order of the real ones.
func compactSources(sources []segment.Source) []segment.Source {
	out := sources[:0]
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (b *GoogleBackend) GenerateText(ctx context.Context, req TextRequest) (string, Usage, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)}}}
	config := &genai.GenerateContentConfig{}
	if req.Temperature != 0 {
		config.Temperature = ptr(req.Temperature)
	}
	if req.MaxTokens != 0 {
		config.MaxOutputTokens = req.MaxTokens
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: google generate: %w", err)
	}
	return resp.Text(), usageOf(resp), nil
}

func (b *GoogleBackend) GenerateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)}}}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema.Of(req.Schema),
	}
	if req.Temperature != 0 {
		config.Temperature = ptr(req.Temperature)
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("llm: google generate structured: %w", err)
	}
	return json.RawMessage(resp.Text()), usageOf(resp), nil
}

// GenerateWithWebSearch issues a grounded call using the native Google
// Search tool. Per spec §6's hard constraint, this never also sets
// ResponseSchema; callers that need structured output parse the returned
// text with a second, non-grounded GenerateStructured call.
func (b *GoogleBackend) GenerateWithWebSearch(ctx context.Context, req WebSearchRequest) (string, []segment.Source, Usage, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)}}}
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if req.Temperature != 0 {
		config.Temperature = ptr(req.Temperature)
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return "", nil, Usage{}, fmt.Errorf("llm: google grounded generate: %w", err)
	}

	return resp.Text(), sourcesOf(resp), usageOf(resp), nil
}

// sourcesOf extracts segment.Source values from a grounded response's
// GroundingMetadata. GroundingChunks carry a URL and title per retrieved
// page; the supporting excerpt of the grounded answer lives separately on
// GroundingSupports, keyed back to chunks by index. A source only satisfies
// spec §4.3's "URL with title AND snippet" requirement once both are
// joined, which is why this does more than read GroundingChunks alone.
func sourcesOf(resp *genai.GenerateContentResponse) []segment.Source {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	gm := resp.Candidates[0].GroundingMetadata
	sources := make([]segment.Source, len(gm.GroundingChunks))
	for i, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		sources[i] = segment.Source{
			URL:   chunk.Web.URI,
			Title: chunk.Web.Title,
		}
	}
	for _, support := range gm.GroundingSupports {
		if support == nil || support.Segment == nil || support.Segment.Text == "" {
			continue
		}
		for _, idx := range support.GroundingChunkIndices {
			if idx < 0 || int(idx) >= len(sources) || sources[idx].URL == "" {
				continue
			}
			if sources[idx].Snippet == "" {
				sources[idx].Snippet = support.Segment.Text
			} else {
				sources[idx].Snippet += " " + support.Segment.Text
			}
		}
	}
	return compactSources(sources)
}

func (b *GoogleBackend) UploadArtifact(ctx context.Context, path string) (ArtifactRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("llm: open artifact %s: %w", path, err)
	}
	defer f.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "text/plain"
	}

	uploaded, err := b.client.Files.Upload(ctx, f, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("llm: upload artifact %s: %w", path, err)
	}
	return ArtifactRef{URI: uploaded.URI, MIMEType: mimeType, Label: filepath.Base(path)}, nil
}

func (b *GoogleBackend) GenerateWithArtifact(ctx context.Context, req ArtifactRequest) (string, Usage, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{
		genai.NewPartFromText(req.Prompt),
		genai.NewPartFromURI(req.Artifact.URI, req.Artifact.MIMEType),
	}}}
	config := &genai.GenerateContentConfig{}
	if req.Temperature != 0 {
		config.Temperature = ptr(req.Temperature)
	}
	if req.MaxTokens != 0 {
		config.MaxOutputTokens = req.MaxTokens
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: google generate with artifact: %w", err)
	}
	return resp.Text(), usageOf(resp), nil
}

func usageOf(resp *genai.GenerateContentResponse) Usage {
	if resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:     resp.UsageMetadata.PromptTokenCount,
		CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
		ThoughtsTokens:   resp.UsageMetadata.ThoughtsTokenCount,
		TotalTokens:      resp.UsageMetadata.TotalTokenCount,
	}
}
