package pipeline

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// ErrEmptyCompletion is returned when the service answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// GeminiExtractor is the Extractor backed by Gemini.
type GeminiExtractor struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiExtractor creates a Gemini client. Credentials are taken from the
// environment (GOOGLE_API_KEY or application default credentials). A
// non-empty project selects the Vertex AI backend in location.
func NewGeminiExtractor(ctx context.Context, project, location, model string, temperature float32) (*GeminiExtractor, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if project != "" {
		cc.Backend = genai.BackendVertexAI
		cc.Project = project
		cc.Location = location
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{client: client, model: model, temperature: temperature}, nil
}

// Name returns the backend and model identifier.
func (g *GeminiExtractor) Name() string {
	return "gemini:" + g.model
}

// Complete sends one extraction request.
func (g *GeminiExtractor) Complete(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: userMessage}},
		},
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
		Temperature: genai.Ptr(g.temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("GeminiExtractor.Complete: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("GeminiExtractor.Complete: %w", ErrEmptyCompletion)
	}
	return text, nil
}
