// Package storage persists the query log in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mgnregs/internal/core"

	_ "modernc.org/sqlite"
)

// DistrictCount is the number of logged queries for one normalized district.
type DistrictCount struct {
	District string `json:"district"`
	Queries  int64  `json:"queries"`
	Records  int64  `json:"records"`
}

// QueryLogRepository stores QueryEvents.
type QueryLogRepository struct {
	db *sql.DB
}

// NewQueryLogRepository opens (creating if needed) the database at dbPath
// and applies migrations.
func NewQueryLogRepository(dbPath string) (*QueryLogRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the worker and migrations
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &QueryLogRepository{db: db}, nil
}

func (r *QueryLogRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordQuery inserts ev. Re-delivered events with a known ID are ignored,
// so the call is idempotent.
func (r *QueryLogRepository) RecordQuery(ctx context.Context, ev core.QueryEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO query_log (
			event_id, occurred_at, district, normalized_district, month, year,
			month_name, fin_year, outcome, record_count, fallback_used,
			fallback_error, cache_hit, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		ev.ID,
		ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		ev.District,
		ev.NormalizedDistrict,
		ev.Month,
		ev.Year,
		ev.MonthName,
		ev.FinYear,
		string(ev.Outcome),
		ev.RecordCount,
		ev.FallbackUsed,
		ev.FallbackError,
		ev.CacheHit,
		ev.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert query log %s: %w", ev.ID, err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (r *QueryLogRepository) ListRecent(ctx context.Context, limit int) ([]core.QueryEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, occurred_at, district, normalized_district, month, year,
		       month_name, fin_year, outcome, record_count, fallback_used,
		       fallback_error, cache_hit, duration_ms
		FROM query_log
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query log: %w", err)
	}
	defer rows.Close()

	events := []core.QueryEvent{}
	for rows.Next() {
		var (
			ev         core.QueryEvent
			occurredAt string
			outcome    string
		)
		if err := rows.Scan(
			&ev.ID, &occurredAt, &ev.District, &ev.NormalizedDistrict, &ev.Month, &ev.Year,
			&ev.MonthName, &ev.FinYear, &outcome, &ev.RecordCount, &ev.FallbackUsed,
			&ev.FallbackError, &ev.CacheHit, &ev.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan query log: %w", err)
		}
		ev.Outcome = core.Outcome(outcome)
		ev.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", occurredAt, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByDistrict aggregates successful queries per normalized district,
// busiest first.
func (r *QueryLogRepository) CountByDistrict(ctx context.Context) ([]DistrictCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT normalized_district, COUNT(*), COALESCE(SUM(record_count), 0)
		FROM query_log
		WHERE outcome = ?
		GROUP BY normalized_district
		ORDER BY COUNT(*) DESC, normalized_district ASC`, string(core.OutcomeOK))
	if err != nil {
		return nil, fmt.Errorf("count query log: %w", err)
	}
	defer rows.Close()

	counts := []DistrictCount{}
	for rows.Next() {
		var c DistrictCount
		if err := rows.Scan(&c.District, &c.Queries, &c.Records); err != nil {
			return nil, fmt.Errorf("scan district count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
