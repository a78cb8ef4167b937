// Package answer produces the streamed text served by the answer endpoint.
package answer

import (
	"context"
	"fmt"
	"iter"

	"github.com/mikeboe/widget-studio/pkg/config"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

// DefaultSystemPrompt is used when a widget configures none.
const DefaultSystemPrompt = "You are a helpful assistant embedded on a publisher's website. " +
	"Answer the reader's question in a few short paragraphs of plain text. " +
	"Prefer facts from the publisher's articles and never invent sources."

// Streamer streams answer text for a query.
type Streamer interface {
	Stream(ctx context.Context, query, systemPrompt string) iter.Seq2[string, error]
}

// Retriever finds articles relevant to a query. citations.Provider
// satisfies it.
type Retriever interface {
	Sources(ctx context.Context, query, answer string) ([]widget.Citation, error)
}

// New builds the streamer selected by cfg.AnswerProvider. retriever may be
// nil, in which case answers are not grounded in stored articles.
func New(ctx context.Context, cfg *config.Config, retriever Retriever) (Streamer, error) {
	switch cfg.AnswerProvider {
	case "", "agent", "langchain":
		if cfg.GoogleApiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
		}
		if cfg.AnswerProvider == "langchain" {
			return NewLangchainStreamer(ctx, cfg.FastModel, cfg.GoogleApiKey)
		}
		return NewAgentStreamer(ctx, cfg.FastModel, cfg.GoogleApiKey, retriever)
	case "anthropic":
		if cfg.AnthropicApiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		return NewAnthropicStreamer(cfg.AnthropicModel, cfg.AnthropicApiKey)
	}
	return nil, fmt.Errorf("invalid answer provider: %s", cfg.AnswerProvider)
}

func promptOrDefault(systemPrompt string) string {
	if systemPrompt == "" {
		return DefaultSystemPrompt
	}
	return systemPrompt
}
