package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/priorauth/internal/db"
	"github.com/sells-group/priorauth/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on every new connection.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, patient_id, raw_case, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"complete_run": `UPDATE runs SET state = $1, status = $2, outcome = $3, updated_at = $4 WHERE id = $5`,
	"get_run":      `SELECT id, patient_id, raw_case, status, state, created_at, updated_at FROM runs WHERE id = $1`,
}

var stageColumns = []string{"run_id", "seq", "name", "status", "duration_ms", "error"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	raw_case   JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	outcome    TEXT NOT NULL DEFAULT '',
	state      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
CREATE INDEX IF NOT EXISTS idx_runs_patient ON runs(patient_id);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, raw model.RawCase) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal case")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, patient_id, raw_case, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, raw.PatientID, rawJSON, string(model.StatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, state model.CaseState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal state")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET state = $1, status = $2, outcome = $3, updated_at = $4 WHERE id = $5`,
		stateJSON, string(state.Status), outcomeOf(state), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, patient_id, raw_case, status, state, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, patient_id, raw_case, status, state, created_at, updated_at FROM runs WHERE true`
	args := []any{}

	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.Status != "" {
		add(` AND status = $%d`, string(filter.Status))
	}
	if filter.Outcome != "" {
		add(` AND outcome = $%d`, string(filter.Outcome))
	}
	if filter.PatientID != "" {
		add(` AND patient_id = $%d`, filter.PatientID)
	}
	query += ` ORDER BY created_at DESC`
	add(` LIMIT $%d`, filter.limit())
	if filter.Offset > 0 {
		add(` OFFSET $%d`, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// RecordStages replaces the stage rows of a run and bulk-loads the new ones
// with COPY.
func (s *PostgresStore) RecordStages(ctx context.Context, runID string, stages []model.StageRecord) error {
	if len(stages) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM run_stages WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear stages %s", runID)
	}

	rows := make([][]any, len(stages))
	for i, st := range stages {
		rows[i] = []any{runID, i, st.Name, string(st.Status), st.Duration, st.Error}
	}
	if _, err := db.CopyRows(ctx, s.pool, "run_stages", stageColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: record stages %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, status, duration_ms, error FROM run_stages WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list stages %s", runID)
	}
	defer rows.Close()

	var out []model.StageRecord
	for rows.Next() {
		var st model.StageRecord
		var status string
		if err := rows.Scan(&st.Name, &status, &st.Duration, &st.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		st.Status = model.StageStatus(status)
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stages iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var rawJSON, stateJSON []byte
	var status string

	if err := row.Scan(&r.ID, &r.PatientID, &rawJSON, &status, &stateJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.Status(status)

	if err := decodeRun(&r, rawJSON, stateJSON); err != nil {
		return nil, eris.Wrap(err, "postgres")
	}
	return &r, nil
}
