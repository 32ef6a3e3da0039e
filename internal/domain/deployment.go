package domain

import (
	"strings"
	"time"
)

const (
	// DefaultBranch is checked out when a job does not name one.
	DefaultBranch = "main"
	// DefaultStage is deployed to when a job does not name one.
	DefaultStage = "production"
)

// DeploymentStatus is the lifecycle state of a deployment job.
type DeploymentStatus string

const (
	StatusPending     DeploymentStatus = "pending"
	StatusProcessing  DeploymentStatus = "processing"
	StatusCompleted   DeploymentStatus = "completed"
	StatusFailed      DeploymentStatus = "failed"
	StatusToBeRemoved DeploymentStatus = "to_be_removed"
)

// ClaimableStatuses lists the states a poll cycle may pick up.
var ClaimableStatuses = []DeploymentStatus{StatusPending, StatusToBeRemoved}

// Claimable reports whether a job in this state may be claimed.
func (s DeploymentStatus) Claimable() bool {
	return s == StatusPending || s == StatusToBeRemoved
}

// Terminal reports whether the status ends a run.
func (s DeploymentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Mode selects between applying and tearing down infrastructure.
type Mode string

const (
	ModeDeploy  Mode = "deploy"
	ModeRemoval Mode = "removal"
)

// DeploymentJob is a deployment request as stored in the job store.
type DeploymentJob struct {
	ID            string
	RepositoryURL string
	Branch        string
	Stage         string
	Status        DeploymentStatus
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectiveBranch returns the branch to check out.
func (j DeploymentJob) EffectiveBranch() string {
	if b := strings.TrimSpace(j.Branch); b != "" {
		return b
	}
	return DefaultBranch
}

// EffectiveStage returns the deployment stage.
func (j DeploymentJob) EffectiveStage() string {
	if s := strings.TrimSpace(j.Stage); s != "" {
		return s
	}
	return DefaultStage
}

// Mode derives the pipeline mode from the status captured when the job was selected.
func (j DeploymentJob) Mode() Mode {
	if j.Status == StatusToBeRemoved {
		return ModeRemoval
	}
	return ModeDeploy
}

// DeploymentStatusUpdate captures the fields the worker is allowed to mutate.
// ErrorMessage is persisted only alongside StatusFailed.
type DeploymentStatusUpdate struct {
	JobID        string
	Status       DeploymentStatus
	ErrorMessage string
}
