package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"conncheck/internal/domain"
	"conncheck/internal/repo"
)

var _ repo.RunStore = (*Store)(nil)

// schemaSQL runs on every connect; all statements are idempotent.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
  id            BIGSERIAL PRIMARY KEY,
  run_id        TEXT NOT NULL UNIQUE,
  started_at    TIMESTAMPTZ NOT NULL,
  finished_at   TIMESTAMPTZ NOT NULL,
  row_count     INTEGER NOT NULL,
  failure_count INTEGER NOT NULL,
  error_count   INTEGER NOT NULL,
  report        JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs (finished_at DESC);
`

// Store persists runs in Postgres. Useful when several machines feed one
// shared history; the default deployment uses the in-memory store.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(setupCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(setupCtx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Append(ctx context.Context, rep *domain.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	sum := repo.Summarize(rep)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs
		   (run_id, started_at, finished_at, row_count, failure_count, error_count, report)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7)`,
		sum.RunID, sum.StartedAt, sum.FinishedAt, sum.Rows, sum.Failures, sum.Errors, payload,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context) (*domain.Report, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT report
		   FROM runs
		  ORDER BY finished_at DESC, id DESC
		  LIMIT 1`)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest run: %w", err)
	}
	var rep domain.Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

func (s *Store) List(ctx context.Context) ([]repo.RunSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, started_at, finished_at, row_count, failure_count, error_count
		   FROM runs
		  ORDER BY finished_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []repo.RunSummary
	for rows.Next() {
		var sum repo.RunSummary
		if err := rows.Scan(&sum.RunID, &sum.StartedAt, &sum.FinishedAt, &sum.Rows, &sum.Failures, &sum.Errors); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
