package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/widget-studio/pkg/citations"
	"github.com/mikeboe/widget-studio/pkg/config"
	"github.com/mikeboe/widget-studio/pkg/database"
	"github.com/mikeboe/widget-studio/pkg/preview"
	"github.com/mikeboe/widget-studio/pkg/stream"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

var (
	query        string
	endpoint     string
	systemPrompt string

	variant    string
	configPath string
	asJSON     bool

	chunkSize    int
	chunkOverlap int
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	rootCmd := &cobra.Command{
		Use:   "widgetctl",
		Short: "Preview, query and feed widget studio from the terminal",
	}

	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "Stream an answer from the answer endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("query") {
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Enter question: ")
				input, _ := reader.ReadString('\n')
				query = input
			}
			query = strings.TrimSpace(query)
			if query == "" {
				return fmt.Errorf("question cannot be empty")
			}
			if endpoint == "" {
				endpoint = cfg.AnswerEndpoint
			}
			if endpoint == "" {
				endpoint = "http://localhost:" + cfg.Port + "/api/answer"
			}
			return ask(cmd.Context(), endpoint, query, systemPrompt)
		},
	}
	askCmd.Flags().StringVarP(&query, "query", "q", "", "The question to ask")
	askCmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Answer endpoint URL")
	askCmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "Instructions sent with the question")

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render a widget configuration as HTML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(variant, configPath, asJSON)
		},
	}
	renderCmd.Flags().StringVarP(&variant, "variant", "v", string(widget.VariantFloating), "Widget variant")
	renderCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a JSON configuration (defaults when empty)")
	renderCmd.Flags().BoolVar(&asJSON, "json", false, "Print resolved props instead of HTML")

	variantsCmd := &cobra.Command{
		Use:   "variants",
		Short: "List the known widget variants",
		Run: func(cmd *cobra.Command, args []string) {
			for _, v := range widget.Variants() {
				theme, _ := widget.Defaults(v)
				fmt.Printf("%-14s %s\n", v, theme.Title)
			}
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest URL...",
		Short: "Fetch articles and store them as citation sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ingest(cmd.Context(), cfg, args)
		},
	}
	ingestCmd.Flags().IntVar(&chunkSize, "chunk-size", cfg.ChunkSize, "Characters per stored chunk")
	ingestCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", cfg.ChunkOverlap, "Characters shared by neighbouring chunks")

	rootCmd.AddCommand(askCmd, renderCmd, variantsCmd, ingestCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func ask(ctx context.Context, endpoint, q, prompt string) error {
	consumer := stream.NewConsumer(endpoint)
	printed := 0
	for ev := range consumer.Execute(ctx, stream.Request{Query: q, SystemPrompt: prompt}) {
		switch ev.Kind {
		case stream.EventDelta:
			fmt.Print(ev.Text[printed:])
			printed = len(ev.Text)
		case stream.EventComplete:
			fmt.Println(ev.Text[printed:])
			for _, s := range ev.Sources {
				fmt.Printf("  - %s (%s)\n", s.Title, s.URL)
			}
		case stream.EventFailed:
			fmt.Println()
			return fmt.Errorf("answer failed: %s", ev.Reason)
		}
	}
	return nil
}

func render(variant, path string, asJSON bool) error {
	var cfg widget.Configuration
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read configuration: %w", err)
		}
		if cfg, err = widget.Parse(data); err != nil {
			return err
		}
		if err := widget.Validate(cfg); err != nil {
			return err
		}
	}
	rw := preview.Render(variant, cfg)
	if rw == nil {
		return fmt.Errorf("unknown variant: %s", variant)
	}
	for _, key := range rw.Issues {
		slog.Warn("Ignored configuration value", "key", key)
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rw)
	}
	return preview.WriteHTML(os.Stdout, rw, nil)
}

func ingest(ctx context.Context, cfg *config.Config, urls []string) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, database.WithMaxConns(2), database.WithMinConns(0))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx, database.WithCitations(cfg.CitationsTable, citations.Dimension)); err != nil {
		return err
	}
	store, err := citations.NewStore(db.Pool, cfg.CitationsTable)
	if err != nil {
		return err
	}
	embedder, err := citations.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return err
	}
	ingester := citations.NewIngester(embedder, store, chunkSize, chunkOverlap)

	client := &http.Client{Timeout: 30 * time.Second}
	total := 0
	for _, u := range urls {
		article, err := fetchArticle(ctx, client, u)
		if err != nil {
			slog.Error("Skipping article", "url", u, "error", err)
			continue
		}
		n, err := ingester.Ingest(ctx, article)
		if err != nil {
			return err
		}
		total += n
	}
	fmt.Printf("Stored %d chunks from %d urls\n", total, len(urls))
	return nil
}

func fetchArticle(ctx context.Context, client *http.Client, u string) (citations.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return citations.Article{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return citations.Article{}, fmt.Errorf("failed to fetch article: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return citations.Article{}, fmt.Errorf("failed to fetch article: status %d", resp.StatusCode)
	}
	return citations.ParseArticle(u, resp.Body)
}
