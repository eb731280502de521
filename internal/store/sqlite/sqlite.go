package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pyramids/internal/model"
	"pyramids/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return st, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) BeginRun(ctx context.Context, run model.Run) error {
	if run.ID == "" {
		return fmt.Errorf("sqlite: run id is required")
	}
	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, country, code, from_year, to_year, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Country, run.Code, run.FromYear, run.ToYear, formatTime(startedAt))
	return err
}

// RecordDownload keeps one row per (country, year); a later outcome for the
// same year replaces the earlier one.
func (s *Store) RecordDownload(ctx context.Context, download model.Download) error {
	fetchedAt := download.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (
			country, year, code, run_id, outcome, status_code, path,
			bytes, row_count, error, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(country, year)
		DO UPDATE SET
			code = excluded.code,
			run_id = excluded.run_id,
			outcome = excluded.outcome,
			status_code = excluded.status_code,
			path = excluded.path,
			bytes = excluded.bytes,
			row_count = excluded.row_count,
			error = excluded.error,
			fetched_at = excluded.fetched_at
	`,
		download.Country,
		download.Year,
		download.Code,
		download.RunID,
		string(download.Outcome),
		download.StatusCode,
		download.Path,
		download.Bytes,
		download.Rows,
		download.Error,
		formatTime(fetchedAt),
	)
	return err
}

func (s *Store) FinishRun(ctx context.Context, run model.Run) error {
	finishedAt := run.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, downloaded = ?, skipped = ?, failed = ?
		WHERE run_id = ?
	`, formatTime(finishedAt), run.Downloaded, run.Skipped, run.Failed, run.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlite: unknown run %s", run.ID)
	}
	return nil
}

// ListDownloads returns ledger rows ordered by country and year. An empty
// country lists every country.
func (s *Store) ListDownloads(ctx context.Context, country string) ([]model.Download, error) {
	query := `
		SELECT run_id, country, code, year, outcome, status_code, path,
			bytes, row_count, error, fetched_at
		FROM downloads
	`
	args := []any{}
	if country != "" {
		query += " WHERE country = ?"
		args = append(args, country)
	}
	query += " ORDER BY country, year"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]model.Download, 0)
	for rows.Next() {
		var download model.Download
		var outcome string
		var fetchedAt string
		if err := rows.Scan(
			&download.RunID,
			&download.Country,
			&download.Code,
			&download.Year,
			&outcome,
			&download.StatusCode,
			&download.Path,
			&download.Bytes,
			&download.Rows,
			&download.Error,
			&fetchedAt,
		); err != nil {
			return nil, err
		}
		download.Outcome = model.Outcome(outcome)
		parsed, err := time.Parse(time.RFC3339Nano, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: fetched_at for %s %d: %w", download.Country, download.Year, err)
		}
		download.FetchedAt = parsed
		results = append(results, download)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT NOT NULL PRIMARY KEY,
			country TEXT NOT NULL,
			code INTEGER NOT NULL,
			from_year INTEGER NOT NULL,
			to_year INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			downloaded INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS downloads (
			country TEXT NOT NULL,
			year INTEGER NOT NULL,
			code INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			path TEXT NOT NULL DEFAULT '',
			bytes INTEGER NOT NULL DEFAULT 0,
			row_count INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (country, year)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var _ store.Store = (*Store)(nil)
