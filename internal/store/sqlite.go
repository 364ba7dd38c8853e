package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/priorauth/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	raw_case   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	outcome    TEXT NOT NULL DEFAULT '',
	state      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	seq         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
CREATE INDEX IF NOT EXISTS idx_runs_patient ON runs(patient_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, raw model.RawCase) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal case")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, patient_id, raw_case, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, raw.PatientID, string(rawJSON), string(model.StatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		PatientID: raw.PatientID,
		Case:      raw,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, state model.CaseState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal state")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, status = ?, outcome = ?, updated_at = ? WHERE id = ?`,
		string(stateJSON), string(state.Status), outcomeOf(state), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, raw_case, status, state, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, ErrNotFound) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, patient_id, raw_case, status, state, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if filter.PatientID != "" {
		query += ` AND patient_id = ?`
		args = append(args, filter.PatientID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordStages(ctx context.Context, runID string, stages []model.StageRecord) error {
	if len(stages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin stages tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_stages WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear stages %s", runID)
	}
	for i, st := range stages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, seq, name, status, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, st.Name, string(st.Status), st.Duration, st.Error,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert stage %s for run %s", st.Name, runID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit stages")
}

// ListStages returns the stage audit rows of a run in execution order.
func (s *SQLiteStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, status, duration_ms, error FROM run_stages WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list stages %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StageRecord
	for rows.Next() {
		var st model.StageRecord
		if err := rows.Scan(&st.Name, &st.Status, &st.Duration, &st.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stages iterate")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var rawJSON string
	var stateJSON sql.NullString

	err := row.Scan(&r.ID, &r.PatientID, &rawJSON, &r.Status, &stateJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := decodeRun(&r, []byte(rawJSON), nullBytes(stateJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite")
	}
	return &r, nil
}

func nullBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}

func decodeRun(r *model.Run, rawJSON, stateJSON []byte) error {
	if err := json.Unmarshal(rawJSON, &r.Case); err != nil {
		return eris.Wrap(err, "unmarshal case")
	}
	if len(stateJSON) > 0 {
		r.State = &model.CaseState{}
		if err := json.Unmarshal(stateJSON, r.State); err != nil {
			return eris.Wrap(err, "unmarshal state")
		}
	}
	return nil
}
