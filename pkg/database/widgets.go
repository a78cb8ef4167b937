package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/widget-studio/pkg/configstore"
	"github.com/mikeboe/widget-studio/pkg/widget"
)

// AnswerEvent is one completed answer shown by a widget.
type AnswerEvent struct {
	WidgetID    string
	SessionID   string
	Variant     widget.Variant
	Query       string
	AnswerLen   int
	SourceCount int
	Took        time.Duration
}

// SaveConfiguration stores the full configuration of a widget, replacing
// what was there.
func (db *PostgresDB) SaveConfiguration(ctx context.Context, widgetID string, cfg widget.Configuration) error {
	raw, err := cfg.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO widget_configurations (widget_id, config)
		VALUES ($1, $2)
		ON CONFLICT (widget_id) DO UPDATE
		SET config = EXCLUDED.config, updated_at = NOW()
	`, widgetID, raw)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}

// LoadConfiguration returns configstore.ErrNotFound for an unknown widget.
func (db *PostgresDB) LoadConfiguration(ctx context.Context, widgetID string) (widget.Configuration, error) {
	var raw []byte
	err := db.Pool.QueryRow(ctx, `SELECT config FROM widget_configurations WHERE widget_id = $1`, widgetID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, configstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg, err := widget.Parse(raw)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// RecordAnswerEvent stores an answer and returns its event id.
func (db *PostgresDB) RecordAnswerEvent(ctx context.Context, ev AnswerEvent) (string, error) {
	var id string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO widget_answer_events (widget_id, session_id, variant, query, answer_length, source_count, took_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`, ev.WidgetID, ev.SessionID, string(ev.Variant), ev.Query, ev.AnswerLen, ev.SourceCount, ev.Took.Milliseconds()).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to record answer event: %w", err)
	}
	return id, nil
}

// RecordFeedback attaches the thumbs rating to a recorded answer.
func (db *PostgresDB) RecordFeedback(ctx context.Context, eventID, feedback string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE widget_answer_events SET feedback = NULLIF($2, '') WHERE id = $1`, eventID, feedback)
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no answer event with id %s", eventID)
	}
	return nil
}
