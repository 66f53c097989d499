// Package store provides storage backends for U-Well session history.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/UWellLabs/uwell/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists session history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The parent directory is created if needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("store.NewSQLiteStore: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("store.NewSQLiteStore: failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("store.NewSQLiteStore: failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("store.NewSQLiteStore: SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("store.NewSQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("store.NewSQLiteStore: migrations applied")

	return &SQLiteStore{db: db}, nil
}

// AddTurn appends a turn to the session history.
func (s *SQLiteStore) AddTurn(sessionID, lang string, turn models.Turn) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_turns (session_id, lang, role, text) VALUES (?, ?, ?, ?)`,
		sessionID, models.NormalizeLang(lang), string(turn.Role), turn.Text,
	)
	if err != nil {
		slog.Error("store.SQLiteStore.AddTurn failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert turn for %s: %w", sessionID, err)
	}
	return nil
}

// GetTurns returns the recorded turns for a session in insertion order.
func (s *SQLiteStore) GetTurns(sessionID string) ([]models.Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, text FROM chat_turns WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		slog.Error("store.SQLiteStore.GetTurns query failed", "error", err, "sessionID", sessionID)
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
func (s *SQLiteStore) AddAnalysis(sessionID string, result models.AnalysisResult) error {
	recs, err := json.Marshal(result.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to encode recommendations: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO analyses (session_id, summary, score, notes, recommendations) VALUES (?, ?, ?, ?, ?)`,
		sessionID, result.Summary, result.Score, nilIfEmpty(result.Notes), string(recs),
	)
	if err != nil {
		slog.Error("store.SQLiteStore.AddAnalysis failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert analysis for %s: %w", sessionID, err)
	}
	return nil
}

// PruneBefore deletes history rows created before cutoff.
func (s *SQLiteStore) PruneBefore(cutoff time.Time) (int64, error) {
	var removed int64
	res, err := s.db.Exec(`DELETE FROM chat_turns WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	res, err = s.db.Exec(`DELETE FROM analyses WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return removed, fmt.Errorf("failed to prune analyses: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	return removed, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
