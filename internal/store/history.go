package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"kbingest/internal/domain"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	mode        TEXT NOT NULL,
	report      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);

CREATE TABLE IF NOT EXISTS rejections (
	rec_id      TEXT PRIMARY KEY,
	service     TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	reason      TEXT NOT NULL,
	rejected_at TEXT NOT NULL
);
`

// History is the append-only run and rejection log, kept in SQLite next to
// the state file.
type History struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// OpenHistory opens (and if needed initializes) the history database.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history db %s: %w", path, err)
	}
	return &History{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question).RunWith(db),
	}, nil
}

// Close releases the database handle.
func (h *History) Close() error { return h.db.Close() }

// RecordRun appends one run report. Runs are never updated or deleted.
func (h *History) RecordRun(ctx context.Context, run domain.RunRecord) error {
	report, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	_, err = h.sb.Insert("runs").
		Columns("id", "started_at", "finished_at", "mode", "report").
		Values(run.ID,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.FinishedAt.UTC().Format(time.RFC3339),
			run.Mode,
			string(report)).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns up to limit run reports, newest first.
func (h *History) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := h.sb.Select("report").
		From("runs").
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(limit)).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var report string
		if err := rows.Scan(&report); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run domain.RunRecord
		if err := json.Unmarshal([]byte(report), &run); err != nil {
			return nil, fmt.Errorf("parse run report: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run report, or nil when no run exists.
func (h *History) LastRun(ctx context.Context) (*domain.RunRecord, error) {
	runs, err := h.ListRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// RecordRejection audits a rejected candidate so the same recommendation id
// is never staged or promoted again.
func (h *History) RecordRejection(ctx context.Context, c domain.Candidate, reason string) error {
	_, err := h.sb.Insert("rejections").
		Columns("rec_id", "service", "source_id", "reason", "rejected_at").
		Values(c.ID(), c.Service(), c.SourceID, reason, time.Now().UTC().Format(time.RFC3339)).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert rejection %s: %w", c.ID(), err)
	}
	return nil
}

// WasRejected reports whether the recommendation id was rejected before.
func (h *History) WasRejected(ctx context.Context, id string) (bool, error) {
	var recID string
	err := h.sb.Select("rec_id").
		From("rejections").
		Where(sq.Eq{"rec_id": id}).
		QueryRowContext(ctx).
		Scan(&recID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query rejection %s: %w", id, err)
	}
	return true, nil
}
