package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/info757/estimai-cli/internal/db"
	"github.com/info757/estimai-cli/pkg/estimai"
)

// PostgresStore implements Store using pgxpool, for teams sharing one audit
// trail across reviewers.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS patch_audit (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	stage       TEXT NOT NULL,
	row_id      TEXT NOT NULL,
	fields      JSONB NOT NULL,
	author      TEXT NOT NULL,
	reason      TEXT,
	issued_at   TIMESTAMPTZ NOT NULL,
	outcome     TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	job_id      TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_patch_audit_project ON patch_audit(project_id, stage);
CREATE INDEX IF NOT EXISTS idx_patch_audit_row ON patch_audit(row_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_project ON pipeline_runs(project_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) RecordPatch(ctx context.Context, projectID string, stage estimai.Stage, patch estimai.Patch, outcome Outcome) error {
	fieldsJSON, err := json.Marshal(patch.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal patch fields")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO patch_audit (id, project_id, stage, row_id, fields, author, reason, issued_at, outcome, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		patch.ID, projectID, string(stage), patch.RowID, fieldsJSON,
		patch.Author, patch.Reason, patch.IssuedAt.UTC(), string(outcome), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record patch %s", patch.ID)
}

func (s *PostgresStore) ListPatches(ctx context.Context, projectID string, filter PatchFilter) ([]PatchRecord, error) {
	query := `SELECT id, project_id, stage, row_id, fields, author, reason, issued_at, outcome, recorded_at
	          FROM patch_audit WHERE project_id = $1`
	args := []any{projectID}

	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		query += ` AND stage = $` + strconv.Itoa(len(args))
	}
	if filter.RowID != "" {
		args = append(args, filter.RowID)
		query += ` AND row_id = $` + strconv.Itoa(len(args))
	}
	if filter.Outcome != "" {
		args = append(args, string(filter.Outcome))
		query += ` AND outcome = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY recorded_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list patches")
	}
	defer rows.Close()

	var records []PatchRecord
	for rows.Next() {
		var (
			rec        PatchRecord
			stage      string
			fieldsJSON []byte
			reason     *string
			outcome    string
		)
		if err := rows.Scan(&rec.Patch.ID, &rec.ProjectID, &stage, &rec.Patch.RowID, &fieldsJSON,
			&rec.Patch.Author, &reason, &rec.Patch.IssuedAt, &outcome, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan patch record")
		}
		if err := json.Unmarshal(fieldsJSON, &rec.Patch.Fields); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode fields for patch %s", rec.Patch.ID)
		}
		rec.Stage = estimai.Stage(stage)
		if reason != nil {
			rec.Patch.Reason = *reason
		}
		rec.Outcome = Outcome(outcome)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate patch records")
}

func (s *PostgresStore) RecordRun(ctx context.Context, projectID, jobID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (job_id, project_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		jobID, projectID, string(estimai.JobQueued), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record run %s", jobID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, jobID string, status estimai.JobState, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, error = $2, finished_at = $3 WHERE job_id = $4`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", jobID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, projectID string, limit int) ([]RunRecord, error) {
	query := `SELECT job_id, project_id, status, error, started_at, finished_at
	          FROM pipeline_runs WHERE project_id = $1 ORDER BY started_at DESC`
	args := []any{projectID}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec      RunRecord
			errMsg   *string
			finished *time.Time
		)
		if err := rows.Scan(&rec.JobID, &rec.ProjectID, &rec.Status, &errMsg, &rec.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run record")
		}
		if errMsg != nil {
			rec.Error = *errMsg
		}
		rec.FinishedAt = finished
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate run records")
}

// GetRun returns a single run by job id.
func (s *PostgresStore) GetRun(ctx context.Context, jobID string) (*RunRecord, error) {
	var (
		rec      RunRecord
		errMsg   *string
		finished *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, project_id, status, error, started_at, finished_at FROM pipeline_runs WHERE job_id = $1`,
		jobID,
	).Scan(&rec.JobID, &rec.ProjectID, &rec.Status, &errMsg, &rec.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(err, "postgres: run %s not found", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", jobID)
	}
	if errMsg != nil {
		rec.Error = *errMsg
	}
	rec.FinishedAt = finished
	return &rec, nil
}
