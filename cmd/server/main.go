package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mikeboe/widget-studio/pkg/answer"
	"github.com/mikeboe/widget-studio/pkg/citations"
	"github.com/mikeboe/widget-studio/pkg/config"
	"github.com/mikeboe/widget-studio/pkg/configstore"
	"github.com/mikeboe/widget-studio/pkg/database"
	"github.com/mikeboe/widget-studio/pkg/prefs"
	"github.com/mikeboe/widget-studio/pkg/server"
	"github.com/mikeboe/widget-studio/pkg/stream"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		loader    configstore.Loader
		persister configstore.Persister
		recorder  server.AnswerRecorder
		retriever answer.Retriever
		sources   stream.SourceProvider
	)

	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(ctx, database.WithCitations(cfg.CitationsTable, citations.Dimension)); err != nil {
			slog.Error("Failed to initialize schema", "error", err)
			os.Exit(1)
		}
		loader, persister, recorder = db, db, db

		if provider, err := newCitationProvider(ctx, cfg, db); err != nil {
			slog.Warn("Citations disabled", "error", err)
		} else {
			retriever, sources = provider, provider
		}
	} else {
		slog.Warn("DATABASE_URL not set, configurations are kept in memory only")
	}

	registry := configstore.NewRegistry(loader, persister, configstore.WithDebounce(cfg.PersistDebounce)).
		WithSeed(func(string) widget.Configuration {
			c, _ := widget.DefaultConfiguration(widget.VariantFloating)
			return c
		})

	answers, err := answer.New(ctx, cfg, retriever)
	if err != nil {
		slog.Warn("Answer backend disabled", "error", err)
		answers = nil
	}

	endpoint := cfg.AnswerEndpoint
	if endpoint == "" {
		endpoint = "http://localhost:" + cfg.Port + "/api/answer"
	}
	consumerOpts := []stream.Option{}
	if sources != nil {
		consumerOpts = append(consumerOpts, stream.WithSourceProvider(sources))
	}
	exec := stream.NewConsumer(endpoint, consumerOpts...)

	var prefStore prefs.Storage = prefs.NewMemoryStorage()
	if cfg.RedisURL != "" {
		rs, err := prefs.NewRedisStorage(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		prefStore = rs
	}

	svc := server.NewService(registry, exec, recorder, cfg.PerceivedLatency)
	handler := server.NewHandler(svc, answers, prefStore)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))
	handler.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		slog.Info("Server starting", "port", cfg.Port, "answer_endpoint", endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	registry.FlushAll(shutdownCtx)
}

func newCitationProvider(ctx context.Context, cfg *config.Config, db *database.PostgresDB) (*citations.Provider, error) {
	if cfg.GoogleApiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is not set")
	}
	store, err := citations.NewStore(db.Pool, cfg.CitationsTable)
	if err != nil {
		return nil, err
	}
	embedder, err := citations.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return nil, err
	}
	return citations.NewProvider(embedder, store,
		citations.WithTopK(cfg.CitationTopK),
		citations.WithMinScore(cfg.CitationMinScore),
		citations.WithDomains(cfg.CitationDomains...),
	), nil
}
