// Package store provides storage backends for U-Well session history.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/UWellLabs/uwell/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists session history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("store.NewPostgresStore: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("store.NewPostgresStore: failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("store.NewPostgresStore: ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("store.NewPostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("store.NewPostgresStore: migrations applied")

	return &PostgresStore{db: db}, nil
}

// AddTurn appends a turn to the session history.
func (s *PostgresStore) AddTurn(sessionID, lang string, turn models.Turn) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_turns (session_id, lang, role, text) VALUES ($1, $2, $3, $4)`,
		sessionID, models.NormalizeLang(lang), string(turn.Role), turn.Text,
	)
	if err != nil {
		slog.Error("store.PostgresStore.AddTurn failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert turn for %s: %w", sessionID, err)
	}
	return nil
}

// GetTurns returns the recorded turns for a session in insertion order.
func (s *PostgresStore) GetTurns(sessionID string) ([]models.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, text FROM chat_turns WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		slog.Error("store.PostgresStore.GetTurns query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var role, text string
		if err := rows.Scan(&role, &text); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, models.Turn{Role: models.Role(role), Text: text})
	}
	return turns, rows.Err()
}

// AddAnalysis records an analysis result, recommendations as JSON.
func (s *PostgresStore) AddAnalysis(sessionID string, result models.AnalysisResult) error {
	recs, err := json.Marshal(result.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to encode recommendations: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO analyses (session_id, summary, score, notes, recommendations) VALUES ($1, $2, $3, $4, $5)`,
		sessionID, result.Summary, result.Score, nilIfEmpty(result.Notes), string(recs),
	)
	if err != nil {
		slog.Error("store.PostgresStore.AddAnalysis failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert analysis for %s: %w", sessionID, err)
	}
	return nil
}

// PruneBefore deletes history rows created before cutoff.
func (s *PostgresStore) PruneBefore(cutoff time.Time) (int64, error) {
	var removed int64
	res, err := s.db.Exec(`DELETE FROM chat_turns WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	res, err = s.db.Exec(`DELETE FROM analyses WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return removed, fmt.Errorf("failed to prune analyses: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	return removed, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }
