package repository

import (
	"context"

	"github.com/KeightAI/infra-ai-forge/internal/domain"
)

// JobRepository is the worker's view of the shared deployments table.
type JobRepository interface {
	// ClaimNext atomically moves the oldest claimable job to processing and
	// returns it with the status it had before the claim. It returns
	// ErrNotFound when no job is claimable.
	ClaimNext(ctx context.Context) (*domain.DeploymentJob, error)
	// UpdateStatus writes status, error_message and updated_at for one job.
	UpdateStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error
	Ping(ctx context.Context) error
}
