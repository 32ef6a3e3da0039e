package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KeightAI/infra-ai-forge/internal/domain"
	"github.com/KeightAI/infra-ai-forge/internal/repository"
)

// Repository implements JobRepository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ repository.JobRepository = (*Repository)(nil)

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool for dsn. A non-empty serviceKey replaces the password
// embedded in the DSN.
func Connect(ctx context.Context, dsn, serviceKey string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if key := strings.TrimSpace(serviceKey); key != "" {
		cfg.ConnConfig.Password = key
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// ClaimNext selects the oldest pending or to_be_removed job and flips it to
// processing in one statement. SKIP LOCKED keeps concurrent claimers from
// blocking on, or double-claiming, the same row.
func (r *Repository) ClaimNext(ctx context.Context) (*domain.DeploymentJob, error) {
	const query = `WITH next AS (
			SELECT id, status AS previous_status
			FROM deployments
			WHERE status = ANY($1)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE deployments d
		SET status = $2, error_message = NULL, updated_at = NOW()
		FROM next
		WHERE d.id = next.id AND d.status = next.previous_status
		RETURNING d.id::text, d.repository_url, d.branch, d.stage, next.previous_status, d.created_at, d.updated_at`

	claimable := make([]string, 0, len(domain.ClaimableStatuses))
	for _, s := range domain.ClaimableStatuses {
		claimable = append(claimable, string(s))
	}

	row := r.pool.QueryRow(ctx, query, claimable, string(domain.StatusProcessing))
	var (
		job    domain.DeploymentJob
		branch sql.NullString
		stage  sql.NullString
		status string
	)
	if err := row.Scan(&job.ID, &job.RepositoryURL, &branch, &stage, &status, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	job.Branch = branch.String
	job.Stage = stage.String
	job.Status = domain.DeploymentStatus(status)
	return &job, nil
}

// UpdateStatus updates status and error message for a job.
func (r *Repository) UpdateStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error {
	if strings.TrimSpace(update.JobID) == "" {
		return fmt.Errorf("job id required")
	}
	if update.Status == "" {
		return fmt.Errorf("status required")
	}
	const query = `UPDATE deployments
		SET status = $2,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $1`
	var message any
	if update.Status == domain.StatusFailed {
		message = emptyToNil(update.ErrorMessage)
	}
	cmdTag, err := r.pool.Exec(ctx, query, update.JobID, string(update.Status), message)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping ensures the database connection is alive.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func emptyToNil(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
