package answer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"
)

const appName = "widget-studio"

// AgentStreamer answers with an ADK agent that can look up articles.
type AgentStreamer struct {
	model     model.LLM
	retriever Retriever
}

func NewAgentStreamer(ctx context.Context, modelName, apiKey string, retriever Retriever) (*AgentStreamer, error) {
	m, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	return &AgentStreamer{model: m, retriever: retriever}, nil
}

func (s *AgentStreamer) Stream(ctx context.Context, query, systemPrompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var toolsets []tool.Toolset
		instruction := promptOrDefault(systemPrompt)
		if s.retriever != nil {
			toolsets = append(toolsets, &articleToolset{retriever: s.retriever})
			instruction += " Use the search_articles tool before answering."
		}

		a, err := llmagent.New(llmagent.Config{
			Name:        "widget_answer",
			Model:       s.model,
			Description: "Answers reader questions inside an embedded widget.",
			Instruction: instruction,
			Toolsets:    toolsets,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to create agent: %w", err))
			return
		}

		// every widget query is a fresh, single-turn session
		sessionSvc := session.InMemoryService()
		userID := "widget"
		sessionID := uuid.NewString()
		if _, err := sessionSvc.Create(ctx, &session.CreateRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		}); err != nil {
			yield("", fmt.Errorf("failed to create session: %w", err))
			return
		}

		r, err := runner.New(runner.Config{
			AppName:        appName,
			Agent:          a,
			SessionService: sessionSvc,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to create runner: %w", err))
			return
		}

		userContent := &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: query}},
		}

		slog.Info("Starting agent run", "session_id", sessionID)
		streamed := false
		for event, err := range r.Run(ctx, userID, sessionID, userContent, agent.RunConfig{StreamingMode: agent.StreamingModeSSE}) {
			if err != nil {
				slog.Error("Agent runner error", "error", err)
				yield("", err)
				return
			}
			text := eventText(event)
			if text == "" {
				continue
			}
			// partial events carry deltas, the final event repeats the whole
			// text and is only used when nothing was streamed
			if event.LLMResponse.Partial {
				streamed = true
			} else if streamed {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
		slog.Info("Agent run completed", "session_id", sessionID)
	}
}

func eventText(event *session.Event) string {
	if event == nil || event.LLMResponse.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range event.LLMResponse.Content.Parts {
		if part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			slog.Info("Agent tool call", "tool", part.FunctionCall.Name)
		}
	}
	return sb.String()
}

type articleToolset struct {
	retriever Retriever
}

func (t *articleToolset) Name() string {
	return "article_tools"
}

func (t *articleToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchArticlesArgs, SearchArticlesResp](
		functiontool.Config{
			Name:        "search_articles",
			Description: "Search the publisher's articles for passages relevant to the reader's question.",
		},
		t.searchArticlesTool,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}
	return []tool.Tool{searchTool}, nil
}

type SearchArticlesArgs struct {
	Query string `json:"query" description:"The search query"`
}

type SearchArticlesResp struct {
	Results string `json:"results"`
}

func (t *articleToolset) searchArticlesTool(ctx tool.Context, args SearchArticlesArgs) (SearchArticlesResp, error) {
	return t.SearchArticles(ctx, args)
}

// SearchArticles formats matching articles for the model.
func (t *articleToolset) SearchArticles(ctx context.Context, args SearchArticlesArgs) (SearchArticlesResp, error) {
	slog.Info("Search articles", "query", args.Query)
	found, err := t.retriever.Sources(ctx, args.Query, "")
	if err != nil {
		return SearchArticlesResp{}, fmt.Errorf("failed to search articles: %w", err)
	}
	if len(found) == 0 {
		return SearchArticlesResp{Results: "No matching articles."}, nil
	}

	var formatted []string
	for _, c := range found {
		var sb strings.Builder
		fmt.Fprintf(&sb, "[Title]: %s\n[URL]: %s", c.Title, c.URL)
		if c.PublishedDate != "" {
			fmt.Fprintf(&sb, "\n[Published]: %s", c.PublishedDate)
		}
		if c.Excerpt != "" {
			fmt.Fprintf(&sb, "\n[Excerpt]: %s", c.Excerpt)
		}
		formatted = append(formatted, sb.String())
	}
	return SearchArticlesResp{Results: strings.Join(formatted, "\n\n")}, nil
}
