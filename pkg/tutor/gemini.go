package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini implements the Responder and Searcher capabilities on the
// Gemini API; search uses GoogleSearch grounding instead of a separate
// tool chain.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGemini builds the backend. An empty model picks the default.
func NewGemini(client *genai.Client, model string, logger *slog.Logger) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{client: client, model: model, logger: logger}
}

var (
	_ Responder = (*Gemini)(nil)
	_ Searcher  = (*Gemini)(nil)
)

func (g *Gemini) Respond(ctx context.Context, handler Handler, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(handlerInstructions(handler))},
		},
		Temperature: genai.Ptr[float32](0.7),
	}
	return g.generate(ctx, prompt, cfg)
}

func (g *Gemini) Search(ctx context.Context, query string, region Region) (string, error) {
	inst := "You are a helpful research assistant. Search the web and summarize answers in Chinese with citations to sources (site names)."
	if region == RegionDomestic {
		inst += " Prefer Chinese sources."
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(inst)},
		},
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}
	return g.generate(ctx, query, cfg)
}

func (g *Gemini) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(prompt)}},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) {
			err = apiErr.Unwrap()
		}
		return "", fmt.Errorf("tutor: gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("tutor: gemini generate: empty response")
	}
	return text, nil
}
