package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Bravine-Kulei/social-agent/internal/engine"
)

// SQLite persists runs and attempts to a local SQLite database so status
// queries survive process restarts.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and initializes the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id              TEXT PRIMARY KEY,
			accounts        TEXT NOT NULL,
			platforms       TEXT NOT NULL,
			status          TEXT NOT NULL,
			items_extracted INTEGER NOT NULL DEFAULT 0,
			items_published INTEGER NOT NULL DEFAULT 0,
			items_failed    INTEGER NOT NULL DEFAULT 0,
			items_skipped   INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,
			finished_at     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS publish_attempts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL,
			source_id    TEXT NOT NULL,
			platform     TEXT NOT NULL,
			attempt      INTEGER NOT NULL,
			outcome      TEXT NOT NULL,
			post_id      TEXT,
			error_kind   TEXT,
			error_detail TEXT,
			terminal     INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_attempts_run ON publish_attempts(run_id)`,
		// One success per (source id, platform), ever. The insert fails if a
		// second success sneaks past the pipeline's idempotency check.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_success_once
			ON publish_attempts(source_id, platform) WHERE outcome = 'success'`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) CreateRun(ctx context.Context, run *engine.WorkflowRun) error {
	accounts, err := json.Marshal(run.Accounts)
	if err != nil {
		return fmt.Errorf("store: marshal accounts: %w", err)
	}
	platforms, err := json.Marshal(run.Platforms)
	if err != nil {
		return fmt.Errorf("store: marshal platforms: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, accounts, platforms, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(accounts), string(platforms), string(run.Status),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

func (s *SQLite) SetRunStatus(ctx context.Context, id string, status engine.WorkflowStatus) error {
	var finished any
	if status.Terminal() {
		finished = time.Now().UTC().Format(time.RFC3339Nano)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, finished_at = COALESCE(?, finished_at)
		 WHERE id = ? AND status NOT IN ('completed', 'failed', 'cancelled')`,
		string(status), finished, id,
	)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either unknown or already terminal; only unknown is an error.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM workflow_runs WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("store: set status: %w", err)
		}
		if exists == 0 {
			return engine.ErrRunNotFound
		}
	}
	return nil
}

func (s *SQLite) AddExtracted(ctx context.Context, id string, n int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET items_extracted = items_extracted + ? WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("store: add extracted: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return engine.ErrRunNotFound
	}
	return nil
}

func (s *SQLite) AppendAttempt(ctx context.Context, runID string, a engine.PublishAttempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO publish_attempts
			(run_id, source_id, platform, attempt, outcome, post_id, error_kind, error_detail, terminal, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, a.SourceID, a.Platform, a.Attempt, string(a.Outcome),
		a.PostID, a.ErrorKind, a.ErrorDetail, boolToInt(a.Terminal),
		a.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: append attempt: %w", err)
	}

	if a.Terminal {
		var col string
		switch a.Outcome {
		case engine.OutcomeSuccess:
			col = "items_published"
		case engine.OutcomeSkipped:
			col = "items_skipped"
		default:
			col = "items_failed"
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE workflow_runs SET `+col+` = `+col+` + 1 WHERE id = ?`, runID); err != nil {
			return fmt.Errorf("store: bump counter: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) GetRun(ctx context.Context, id string) (*engine.WorkflowRun, error) {
	run, err := s.scanRun(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, platform, attempt, outcome, post_id, error_kind, error_detail, terminal, created_at
		 FROM publish_attempts WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("store: query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a engine.PublishAttempt
		var outcome, ts string
		var postID, kind, detail sql.NullString
		var terminal int
		if err := rows.Scan(&a.SourceID, &a.Platform, &a.Attempt, &outcome,
			&postID, &kind, &detail, &terminal, &ts); err != nil {
			return nil, fmt.Errorf("store: scan attempt: %w", err)
		}
		a.Outcome = engine.AttemptOutcome(outcome)
		a.PostID = postID.String
		a.ErrorKind = kind.String
		a.ErrorDetail = detail.String
		a.Terminal = terminal != 0
		a.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		run.Attempts = append(run.Attempts, a)
	}
	return run, rows.Err()
}

func (s *SQLite) scanRun(ctx context.Context, id string) (*engine.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, accounts, platforms, status, items_extracted, items_published,
				items_failed, items_skipped, created_at, finished_at
		 FROM workflow_runs WHERE id = ?`, id)

	var run engine.WorkflowRun
	var accounts, platforms, status, created string
	var finished sql.NullString
	err := row.Scan(&run.ID, &accounts, &platforms, &status,
		&run.Summary.ItemsExtracted, &run.Summary.ItemsPublished,
		&run.Summary.ItemsFailed, &run.Summary.ItemsSkipped,
		&created, &finished)
	if err == sql.ErrNoRows {
		return nil, engine.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}

	if err := json.Unmarshal([]byte(accounts), &run.Accounts); err != nil {
		return nil, fmt.Errorf("store: unmarshal accounts: %w", err)
	}
	if err := json.Unmarshal([]byte(platforms), &run.Platforms); err != nil {
		return nil, fmt.Errorf("store: unmarshal platforms: %w", err)
	}
	run.Status = engine.WorkflowStatus(status)
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if finished.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finished.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

func (s *SQLite) ListRuns(ctx context.Context) ([]engine.WorkflowSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM workflow_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]engine.WorkflowSummary, 0, len(ids))
	for _, id := range ids {
		run, err := s.scanRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, run.Summarize())
	}
	return out, nil
}

func (s *SQLite) HasSuccess(ctx context.Context, sourceID, platform string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM publish_attempts
		 WHERE source_id = ? AND platform = ? AND outcome = 'success'`,
		sourceID, platform).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: has success: %w", err)
	}
	return n > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
