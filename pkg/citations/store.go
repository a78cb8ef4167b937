// Package citations finds the published articles that back an answer.
package citations

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Chunk is one embedded slice of an article. Index orders the chunks of
// one article.
type Chunk struct {
	ID        string    `json:"id"`
	Article   Article   `json:"article"`
	Index     int       `json:"index"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Match is a search hit with its cosine similarity.
type Match struct {
	Chunk Chunk
	Score float64
}

// SearchQuery narrows a similarity search. Zero values do not filter.
type SearchQuery struct {
	TopK     int
	Domains  []string
	MinScore float64
}

// Store keeps article chunks in the pgvector table created by
// database.WithCitations.
type Store struct {
	pool      *pgxpool.Pool
	tableName string
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,47}$`)

// isValidTableName accepts a letter or underscore followed by up to 47 word
// characters, leaving room for the index name suffixes.
func isValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

func NewStore(pool *pgxpool.Pool, tableName string) (*Store, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name %q: must contain only alphanumeric characters and underscores, start with a letter or underscore, and be 1-48 characters long", tableName)
	}
	return &Store{pool: pool, tableName: tableName}, nil
}

func (s *Store) TableName() string {
	return s.tableName
}

// ReplaceArticle swaps every stored chunk of url for chunks in one
// transaction, so re-ingesting a shorter article leaves no stale tail.
func (s *Store) ReplaceArticle(ctx context.Context, url string, chunks []Chunk) error {
	table := pgx.Identifier{s.tableName}.Sanitize()
	insert := fmt.Sprintf(`
		INSERT INTO %s (url, chunk_index, title, domain, published_date, excerpt, thumbnail, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, table)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE url = $1", table), url); err != nil {
			return fmt.Errorf("failed to delete chunks of %s: %w", url, err)
		}
		batch := &pgx.Batch{}
		for _, c := range chunks {
			a := c.Article
			batch.Queue(insert, url, c.Index, a.Title, a.Domain, a.PublishedDate, a.Excerpt, a.Thumbnail,
				c.Content, pgvector.NewVector(c.Embedding))
		}
		br := tx.SendBatch(ctx, batch)
		for range chunks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert chunk: %w", err)
			}
		}
		return br.Close()
	})
}

// Search returns the chunks closest to embedding, best first.
func (s *Store) Search(ctx context.Context, embedding []float32, q SearchQuery) ([]Match, error) {
	query, args := searchSQL(s.tableName, embedding, q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []Match
	for rows.Next() {
		var m Match
		a := &m.Chunk.Article
		if err := rows.Scan(&m.Chunk.ID, &a.URL, &m.Chunk.Index, &a.Title, &a.Domain, &a.PublishedDate,
			&a.Excerpt, &a.Thumbnail, &m.Chunk.Content, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// searchSQL builds the similarity query. $1 is always the embedding and
// the limit is always the last argument.
func searchSQL(table string, embedding []float32, q SearchQuery) (string, []any) {
	args := []any{pgvector.NewVector(embedding)}
	var where []string
	if len(q.Domains) > 0 {
		args = append(args, q.Domains)
		where = append(where, fmt.Sprintf("domain = ANY($%d)", len(args)))
	}
	if q.MinScore > 0 {
		args = append(args, q.MinScore)
		where = append(where, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}
	cond := "TRUE"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id::text, url, chunk_index, title, domain, published_date, excerpt, thumbnail, content,
			1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, pgx.Identifier{table}.Sanitize(), cond, len(args))
	return query, args
}
