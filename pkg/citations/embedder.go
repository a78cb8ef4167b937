package citations

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Dimension is the embedding size stored in the citations table.
const Dimension = 1536

// Embedder turns text into a vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// GoogleEmbedder embeds with the Gemini API.
type GoogleEmbedder struct {
	client *genai.Client
	model  string
}

func NewGoogleEmbedder(ctx context.Context, model, apiKey string) (*GoogleEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GoogleEmbedder{client: client, model: model}, nil
}

func (e *GoogleEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(Dimension)
	res, err := e.client.Models.EmbedContent(ctx, e.model, []*genai.Content{
		{Parts: []*genai.Part{{Text: text}}},
	}, &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return res.Embeddings[0].Values, nil
}
