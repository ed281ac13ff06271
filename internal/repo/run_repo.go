// Package repo хранит историю запусков pipeline.
//
// RunRepo — PostgreSQL (pgx), MemoryRunRepo — in-memory замена,
// когда DB_URL не задан.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/mlpipe/internal/domain"
)

const uniqueViolation = "23505"

// RunRepo — история runs в PostgreSQL.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create сохраняет новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	phasesJSON, err := marshalPhases(run.Phases)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_runs (id, filename, status, failed_phase, error, phases, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Filename,
		run.Status,
		nullString(string(run.FailedPhase)),
		nullString(run.Error),
		phasesJSON,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update сохраняет итог run.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	phasesJSON, err := marshalPhases(run.Phases)
	if err != nil {
		return err
	}

	query := `
		UPDATE pipeline_runs
		SET status = $2, failed_phase = $3, error = $4, phases = $5, finished_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		nullString(string(run.FailedPhase)),
		nullString(run.Error),
		phasesJSON,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, filename, status, failed_phase, error, phases, started_at, finished_at
		FROM pipeline_runs
		WHERE id = $1
	`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// List возвращает последние runs, новые первыми.
func (r *RunRepo) List(ctx context.Context, limit int) ([]domain.Run, error) {
	query := `
		SELECT id, filename, status, failed_phase, error, phases, started_at, finished_at
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует строку. pgx.Rows тоже реализует pgx.Row.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var failedPhase, runError *string
	var phasesJSON []byte

	err := row.Scan(
		&run.ID,
		&run.Filename,
		&run.Status,
		&failedPhase,
		&runError,
		&phasesJSON,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if phasesJSON != nil {
		if err := json.Unmarshal(phasesJSON, &run.Phases); err != nil {
			return nil, fmt.Errorf("unmarshal phases: %w", err)
		}
	}
	if failedPhase != nil {
		run.FailedPhase = domain.Phase(*failedPhase)
	}
	if runError != nil {
		run.Error = *runError
	}
	return &run, nil
}

func marshalPhases(phases map[domain.Phase]domain.PhaseState) ([]byte, error) {
	if phases == nil {
		return nil, nil
	}
	b, err := json.Marshal(phases)
	if err != nil {
		return nil, fmt.Errorf("marshal phases: %w", err)
	}
	return b, nil
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
