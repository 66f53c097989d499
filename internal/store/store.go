// Package store provides storage backends for U-Well session history.
//
// History is observe-only operational data: chat semantics never read it back
// (conversation context always travels with each request). Backends cover
// in-memory, SQLite and PostgreSQL behind one interface.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/UWellLabs/uwell/internal/models"
)

// Store records conversation turns and analysis results per session.
type Store interface {
	AddTurn(sessionID, lang string, turn models.Turn) error
	GetTurns(sessionID string) ([]models.Turn, error)
	AddAnalysis(sessionID string, result models.AnalysisResult) error
	// PruneBefore deletes history rows created before cutoff and reports how
	// many were removed.
	PruneBefore(cutoff time.Time) (int64, error)
	Close() error
}

// Opts holds configuration options for persistent stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-looking DSNs and "sqlite"
// otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// timedTurn is an in-memory history row.
type timedTurn struct {
	turn models.Turn
	at   time.Time
}

type timedAnalysis struct {
	result models.AnalysisResult
	at     time.Time
}

// InMemoryStore keeps history in process memory. Used when no DSN is
// configured; synchronized because handler goroutines share it.
type InMemoryStore struct {
	mu       sync.Mutex
	turns    map[string][]timedTurn
	analyses map[string][]timedAnalysis
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:    make(map[string][]timedTurn),
		analyses: make(map[string][]timedAnalysis),
	}
}

// AddTurn appends a turn to the session history.
func (s *InMemoryStore) AddTurn(sessionID, lang string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], timedTurn{turn: turn, at: time.Now()})
	return nil
}

// GetTurns returns the recorded turns for a session in insertion order.
func (s *InMemoryStore) GetTurns(sessionID string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.turns[sessionID]
	out := make([]models.Turn, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.turn)
	}
	return out, nil
}

// AddAnalysis records an analysis result for a session.
func (s *InMemoryStore) AddAnalysis(sessionID string, result models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[sessionID] = append(s.analyses[sessionID], timedAnalysis{result: result, at: time.Now()})
	return nil
}

// PruneBefore drops rows older than cutoff.
func (s *InMemoryStore) PruneBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, rows := range s.turns {
		kept := rows[:0]
		for _, r := range rows {
			if r.at.Before(cutoff) {
				removed++
			} else {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.turns, id)
		} else {
			s.turns[id] = kept
		}
	}
	for id, rows := range s.analyses {
		kept := rows[:0]
		for _, r := range rows {
			if r.at.Before(cutoff) {
				removed++
			} else {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.analyses, id)
		} else {
			s.analyses[id] = kept
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
