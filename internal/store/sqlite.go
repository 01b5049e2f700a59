package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/info757/estimai-cli/pkg/estimai"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS patch_audit (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	stage       TEXT NOT NULL,
	row_id      TEXT NOT NULL,
	fields      TEXT NOT NULL,
	author      TEXT NOT NULL,
	reason      TEXT,
	issued_at   DATETIME NOT NULL,
	outcome     TEXT NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	job_id      TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_patch_audit_project ON patch_audit(project_id, stage);
CREATE INDEX IF NOT EXISTS idx_patch_audit_row ON patch_audit(row_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_project ON pipeline_runs(project_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordPatch(ctx context.Context, projectID string, stage estimai.Stage, patch estimai.Patch, outcome Outcome) error {
	fieldsJSON, err := json.Marshal(patch.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal patch fields")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO patch_audit (id, project_id, stage, row_id, fields, author, reason, issued_at, outcome, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		patch.ID, projectID, string(stage), patch.RowID, string(fieldsJSON),
		patch.Author, patch.Reason, patch.IssuedAt.UTC(), string(outcome), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record patch %s", patch.ID)
}

func (s *SQLiteStore) ListPatches(ctx context.Context, projectID string, filter PatchFilter) ([]PatchRecord, error) {
	query := `SELECT id, project_id, stage, row_id, fields, author, reason, issued_at, outcome, recorded_at
	          FROM patch_audit WHERE project_id = ?`
	args := []any{projectID}

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.RowID != "" {
		query += ` AND row_id = ?`
		args = append(args, filter.RowID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY recorded_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patches")
	}
	defer rows.Close()

	var records []PatchRecord
	for rows.Next() {
		var (
			rec        PatchRecord
			stage      string
			fieldsJSON string
			reason     sql.NullString
			outcome    string
		)
		if err := rows.Scan(&rec.Patch.ID, &rec.ProjectID, &stage, &rec.Patch.RowID, &fieldsJSON,
			&rec.Patch.Author, &reason, &rec.Patch.IssuedAt, &outcome, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan patch record")
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Patch.Fields); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode fields for patch %s", rec.Patch.ID)
		}
		rec.Stage = estimai.Stage(stage)
		rec.Patch.Reason = reason.String
		rec.Outcome = Outcome(outcome)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate patch records")
}

func (s *SQLiteStore) RecordRun(ctx context.Context, projectID, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (job_id, project_id, status, started_at) VALUES (?, ?, ?, ?)`,
		jobID, projectID, string(estimai.JobQueued), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record run %s", jobID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, jobID string, status estimai.JobState, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, error = ?, finished_at = ? WHERE job_id = ?`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", jobID)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, projectID string, limit int) ([]RunRecord, error) {
	query := `SELECT job_id, project_id, status, error, started_at, finished_at
	          FROM pipeline_runs WHERE project_id = ? ORDER BY started_at DESC`
	args := []any{projectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec      RunRecord
			errMsg   sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&rec.JobID, &rec.ProjectID, &rec.Status, &errMsg, &rec.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run record")
		}
		rec.Error = errMsg.String
		if finished.Valid {
			t := finished.Time
			rec.FinishedAt = &t
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate run records")
}
