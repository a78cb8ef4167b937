package citations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/textsplitter"
)

// Writer stores the embedded chunks of one article, replacing any it
// already holds for that URL.
type Writer interface {
	ReplaceArticle(ctx context.Context, url string, chunks []Chunk) error
}

// Ingester splits articles into chunks, embeds them and stores them.
type Ingester struct {
	embedder Embedder
	writer   Writer
	splitter textsplitter.TextSplitter
}

func NewIngester(embedder Embedder, writer Writer, chunkSize, chunkOverlap int) *Ingester {
	return &Ingester{
		embedder: embedder,
		writer:   writer,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Ingest stores a and returns the number of chunks written.
func (in *Ingester) Ingest(ctx context.Context, a Article) (int, error) {
	body := a.Body
	if body == "" {
		body = a.Excerpt
	}
	chunks, err := in.splitter.SplitText(a.Title + "\n\n" + body)
	if err != nil {
		return 0, fmt.Errorf("failed to split article: %w", err)
	}

	out := make([]Chunk, 0, len(chunks))
	for i, text := range chunks {
		vec, err := in.embedder.EmbedText(ctx, text)
		if err != nil {
			return 0, err
		}
		out = append(out, Chunk{
			Article:   a.withoutBody(),
			Index:     i,
			Content:   text,
			Embedding: vec,
		})
	}
	if err := in.writer.ReplaceArticle(ctx, a.URL, out); err != nil {
		return 0, err
	}
	slog.Info("Ingested article", "url", a.URL, "chunks", len(out))
	return len(out), nil
}

func (a Article) withoutBody() Article {
	a.Body = ""
	return a
}
