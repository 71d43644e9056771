package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// Schema creates the history and pattern tables.
const Schema = `
CREATE TABLE IF NOT EXISTS rca_history (
	alert_id    TEXT PRIMARY KEY,
	service     TEXT NOT NULL,
	category    TEXT NOT NULL,
	confidence  REAL NOT NULL,
	degraded    INTEGER NOT NULL DEFAULT 0,
	record_json TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rca_history_service ON rca_history (service, created_at);
CREATE INDEX IF NOT EXISTS idx_rca_history_category ON rca_history (service, category, degraded);

CREATE TABLE IF NOT EXISTS failure_patterns (
	id           TEXT PRIMARY KEY,
	service      TEXT NOT NULL,
	category     TEXT NOT NULL,
	prevalence   REAL NOT NULL,
	pattern_json TEXT NOT NULL,
	updated_at   INTEGER NOT NULL
);
`

// SQLiteHistory keeps RCA records in an embedded database.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens path and applies Schema. ":memory:" is accepted.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

// Close releases the database.
func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}

// Save upserts the entry keyed by alert id.
func (s *SQLiteHistory) Save(ctx context.Context, entry models.HistoryEntry) error {
	body, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `
		INSERT INTO rca_history (alert_id, service, category, confidence, degraded, record_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET
			service = excluded.service,
			category = excluded.category,
			confidence = excluded.confidence,
			degraded = excluded.degraded,
			record_json = excluded.record_json,
			created_at = excluded.created_at
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.AlertID,
		entry.Service,
		entry.Category,
		entry.Record.MostLikelyRootCause.Confidence,
		entry.Degraded,
		string(body),
		created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store rca record: %w", err)
	}
	return nil
}

// ListByService returns the newest records for service.
func (s *SQLiteHistory) ListByService(ctx context.Context, service string, limit int) ([]models.HistoryEntry, error) {
	return s.query(ctx, `
		SELECT alert_id, service, category, degraded, record_json, created_at
		FROM rca_history WHERE service = ?
		ORDER BY created_at DESC LIMIT ?`, service, normaliseLimit(limit))
}

// Similar returns non-degraded records sharing service and category.
func (s *SQLiteHistory) Similar(ctx context.Context, service, category string, limit int) ([]models.HistoryEntry, error) {
	return s.query(ctx, `
		SELECT alert_id, service, category, degraded, record_json, created_at
		FROM rca_history WHERE service = ? AND category = ? AND degraded = 0
		ORDER BY confidence DESC, created_at DESC LIMIT ?`, service, category, normaliseLimit(limit))
}

// Recent returns the newest records across services.
func (s *SQLiteHistory) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.query(ctx, `
		SELECT alert_id, service, category, degraded, record_json, created_at
		FROM rca_history ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLiteHistory) query(ctx context.Context, query string, args ...any) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rca history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var (
			entry   models.HistoryEntry
			body    string
			created int64
		)
		if err := rows.Scan(&entry.AlertID, &entry.Service, &entry.Category, &entry.Degraded, &body, &created); err != nil {
			return nil, fmt.Errorf("scan rca history: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &entry.Record); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", entry.AlertID, err)
		}
		entry.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// StorePatterns upserts mined patterns by id.
func (s *SQLiteHistory) StorePatterns(ctx context.Context, patterns []models.FailurePattern) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pattern store: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO failure_patterns (id, service, category, prevalence, pattern_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			service = excluded.service,
			category = excluded.category,
			prevalence = excluded.prevalence,
			pattern_json = excluded.pattern_json,
			updated_at = excluded.updated_at
	`
	now := time.Now().UnixNano()
	for _, p := range patterns {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal pattern %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, p.ID, p.Service, p.Category, p.Prevalence, string(body), now); err != nil {
			return fmt.Errorf("store pattern %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// FetchPatterns returns stored patterns by descending prevalence. An empty
// service returns every pattern.
func (s *SQLiteHistory) FetchPatterns(ctx context.Context, service string) ([]models.FailurePattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_json FROM failure_patterns
		WHERE ? = '' OR service = ?
		ORDER BY prevalence DESC, id ASC`, service, service)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []models.FailurePattern
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		var p models.FailurePattern
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("decode pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
