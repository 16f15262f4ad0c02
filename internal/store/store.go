// Package store keeps the run ledger: one row per harvest run and one per
// source within it. Snapshots themselves live in JSON files, not here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Run is one harvest run.
type Run struct {
	ID         string
	StartedAt  time.Time
	Elapsed    time.Duration
	NewEntries int
	Sources    []SourceRun
}

// SourceRun is the outcome of one source within a run. Error is empty on
// success and already redacted.
type SourceRun struct {
	Source         string
	NewEntries     int
	UpdatedEntries int
	TotalEntries   int
	Error          string
	Elapsed        time.Duration
}

// Failed reports whether the source failed in its run.
func (sr SourceRun) Failed() bool {
	return sr.Error != ""
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun stores a run and its per-source outcomes in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		return errors.New("started_at is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, elapsed_ms, new_entries) VALUES (?, ?, ?, ?)",
		run.ID, formatTime(run.StartedAt), run.Elapsed.Milliseconds(), run.NewEntries,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	for _, sr := range run.Sources {
		if strings.TrimSpace(sr.Source) == "" {
			_ = tx.Rollback()
			return errors.New("source is required")
		}
		var errVal sql.NullString
		if sr.Error != "" {
			errVal = sql.NullString{String: sr.Error, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO source_runs (run_id, source, new_entries, updated_entries, total_entries, error, elapsed_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, sr.Source, sr.NewEntries, sr.UpdatedEntries, sr.TotalEntries, errVal, sr.Elapsed.Milliseconds()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert source run: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, with their sources.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, elapsed_ms, new_entries
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get runs: %w", err)
	}

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			startedAt string
			elapsedMS int64
		)
		if err := rows.Scan(&run.ID, &startedAt, &elapsedMS, &run.NewEntries); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, err = parseTime(startedAt)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	_ = rows.Close()

	for i := range runs {
		sources, err := s.sourceRuns(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Sources = sources
	}

	return runs, nil
}

func (s *Store) sourceRuns(ctx context.Context, runID string) ([]SourceRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, new_entries, updated_entries, total_entries, error, elapsed_ms
		FROM source_runs
		WHERE run_id = ?
		ORDER BY source
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get source runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sources []SourceRun
	for rows.Next() {
		var (
			sr        SourceRun
			errVal    sql.NullString
			elapsedMS int64
		)
		if err := rows.Scan(&sr.Source, &sr.NewEntries, &sr.UpdatedEntries, &sr.TotalEntries, &errVal, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan source run: %w", err)
		}
		if errVal.Valid {
			sr.Error = errVal.String
		}
		sr.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		sources = append(sources, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source runs: %w", err)
	}
	return sources, nil
}

// SourceStats holds aggregated run outcomes for one source.
type SourceStats struct {
	Source      string
	Runs        int
	Failures    int
	NewEntries  int
	LastRun     time.Time
	LastSuccess time.Time
	LastError   string // error of the most recent run, empty if it succeeded
}

// GetSourceStats returns per-source aggregates for runs started since the given time.
func (s *Store) GetSourceStats(ctx context.Context, since time.Time) ([]SourceStats, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sr.source,
			COUNT(*) AS runs,
			SUM(CASE WHEN sr.error IS NOT NULL THEN 1 ELSE 0 END) AS failures,
			SUM(sr.new_entries) AS new_entries,
			MAX(r.started_at) AS last_run,
			COALESCE(MAX(CASE WHEN sr.error IS NULL THEN r.started_at END), '') AS last_success,
			COALESCE((
				SELECT sr2.error FROM source_runs sr2
				JOIN runs r2 ON r2.id = sr2.run_id
				WHERE sr2.source = sr.source AND r2.started_at >= ?
				ORDER BY r2.started_at DESC
				LIMIT 1
			), '') AS last_error
		FROM source_runs sr
		JOIN runs r ON r.id = sr.run_id
		WHERE r.started_at >= ?
		GROUP BY sr.source
		ORDER BY sr.source
	`, formatTime(since), formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("get source stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []SourceStats
	for rows.Next() {
		var (
			ss                   SourceStats
			lastRun, lastSuccess string
		)
		if err := rows.Scan(&ss.Source, &ss.Runs, &ss.Failures, &ss.NewEntries, &lastRun, &lastSuccess, &ss.LastError); err != nil {
			return nil, fmt.Errorf("scan source stats: %w", err)
		}
		ss.LastRun, err = parseTime(lastRun)
		if err != nil {
			return nil, fmt.Errorf("parse last_run: %w", err)
		}
		ss.LastSuccess, err = parseTime(lastSuccess)
		if err != nil {
			return nil, fmt.Errorf("parse last_success: %w", err)
		}
		stats = append(stats, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source stats: %w", err)
	}

	return stats, nil
}

// PruneOld deletes runs older than retainDays together with their source
// rows. Returns the number of runs removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune transaction: %w", err)
	}

	// foreign_keys is per connection, so do not rely on the cascade alone.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM source_runs WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)", cutoff,
	); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune old source runs: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune old runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
