package answer

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
)

var errStopped = errors.New("consumer stopped reading")

// LangchainStreamer answers with a plain model call, no tools.
type LangchainStreamer struct {
	llm llms.Model
}

func NewLangchainStreamer(ctx context.Context, modelName, apiKey string) (*LangchainStreamer, error) {
	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(modelName))
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}
	return &LangchainStreamer{llm: llm}, nil
}

// NewAnthropicStreamer streams from a Claude model through the same
// langchain call path.
func NewAnthropicStreamer(modelName, apiKey string) (*LangchainStreamer, error) {
	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(modelName))
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic client: %w", err)
	}
	return &LangchainStreamer{llm: llm}, nil
}

func (s *LangchainStreamer) Stream(ctx context.Context, query, systemPrompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		messages := []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, promptOrDefault(systemPrompt)),
			llms.TextParts(llms.ChatMessageTypeHuman, query),
		}
		streamed, stopped := false, false
		resp, err := s.llm.GenerateContent(ctx, messages, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed = true
			if !yield(string(chunk), nil) {
				stopped = true
				return errStopped
			}
			return nil
		}))
		if stopped || errors.Is(err, errStopped) {
			return
		}
		if err != nil {
			yield("", fmt.Errorf("failed to generate answer: %w", err))
			return
		}
		// models without streaming support only return the full response
		if !streamed && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
			yield(resp.Choices[0].Content, nil)
		}
	}
}
