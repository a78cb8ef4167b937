package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// hnswMaxDimensions is the largest vector pgvector can index with HNSW.
// Wider citation embeddings are searched exactly.
const hnswMaxDimensions = 2000

// maxDimensions is pgvector's limit for a vector column.
const maxDimensions = 16000

type schema struct {
	citationsTable string
	dimension      int
}

type SchemaOption func(*schema)

// WithCitations adds the pgvector table of article chunks that answers
// cite. One row per chunk; (url, chunk_index) identifies it.
func WithCitations(table string, dimension int) SchemaOption {
	return func(s *schema) {
		s.citationsTable = table
		s.dimension = dimension
	}
}

type statement struct {
	what string
	sql  string
}

// InitSchema creates every table in one transaction.
func (db *PostgresDB) InitSchema(ctx context.Context, opts ...SchemaOption) error {
	stmts, err := schemaStatements(opts...)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		for _, st := range stmts {
			if _, err := tx.Exec(ctx, st.sql); err != nil {
				return fmt.Errorf("failed to create %s: %w", st.what, err)
			}
		}
		return nil
	})
}

func schemaStatements(opts ...SchemaOption) ([]statement, error) {
	var s schema
	for _, opt := range opts {
		opt(&s)
	}

	stmts := []statement{
		{"widget_configurations table", `
			CREATE TABLE IF NOT EXISTS widget_configurations (
				widget_id TEXT PRIMARY KEY,
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"widget_answer_events table", `
			CREATE TABLE IF NOT EXISTS widget_answer_events (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				widget_id TEXT NOT NULL,
				session_id TEXT NOT NULL,
				variant TEXT NOT NULL,
				query TEXT NOT NULL,
				answer_length INTEGER NOT NULL DEFAULT 0,
				source_count INTEGER NOT NULL DEFAULT 0,
				took_ms BIGINT NOT NULL DEFAULT 0,
				feedback TEXT,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)`},
		{"widget_answer_events index",
			"CREATE INDEX IF NOT EXISTS idx_widget_answer_events_widget_id ON widget_answer_events(widget_id, created_at DESC)"},
	}
	if s.citationsTable == "" {
		return stmts, nil
	}

	if s.dimension <= 0 || s.dimension > maxDimensions {
		return nil, fmt.Errorf("invalid citation embedding dimension %d", s.dimension)
	}
	if len(s.citationsTable) > 48 {
		return nil, errors.New("citations table name must be at most 48 characters")
	}
	table := pgx.Identifier{s.citationsTable}.Sanitize()
	stmts = append(stmts,
		statement{"vector extension", "CREATE EXTENSION IF NOT EXISTS vector"},
		statement{s.citationsTable + " table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				url TEXT NOT NULL,
				chunk_index INTEGER NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				domain TEXT NOT NULL DEFAULT '',
				published_date TEXT NOT NULL DEFAULT '',
				excerpt TEXT NOT NULL DEFAULT '',
				thumbnail TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				embedding vector(%d) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				UNIQUE (url, chunk_index)
			)`, table, s.dimension)},
		statement{s.citationsTable + " domain index", fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (domain)",
			pgx.Identifier{s.citationsTable + "_domain_idx"}.Sanitize(), table)},
	)
	if s.dimension <= hnswMaxDimensions {
		stmts = append(stmts, statement{s.citationsTable + " embedding index", fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)",
			pgx.Identifier{s.citationsTable + "_embedding_idx"}.Sanitize(), table)})
	}
	return stmts, nil
}
