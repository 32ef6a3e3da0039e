package domain

import "testing"

func TestDeploymentJobDefaults(t *testing.T) {
	job := DeploymentJob{ID: "J1", Status: StatusToBeRemoved}
	if job.EffectiveBranch() != "main" {
		t.Fatalf("expected main, got %s", job.EffectiveBranch())
	}
	if job.EffectiveStage() != "production" {
		t.Fatalf("expected production, got %s", job.EffectiveStage())
	}
	if job.Mode() != ModeRemoval {
		t.Fatalf("expected removal mode, got %s", job.Mode())
	}
}

func TestDeploymentJobExplicitValues(t *testing.T) {
	job := DeploymentJob{Branch: " feature-x ", Stage: "staging", Status: StatusPending}
	if job.EffectiveBranch() != "feature-x" {
		t.Fatalf("expected feature-x, got %q", job.EffectiveBranch())
	}
	if job.EffectiveStage() != "staging" {
		t.Fatalf("expected staging, got %q", job.EffectiveStage())
	}
	if job.Mode() != ModeDeploy {
		t.Fatalf("expected deploy mode, got %s", job.Mode())
	}
}

func TestStatusClassification(t *testing.T) {
	for _, s := range []DeploymentStatus{StatusPending, StatusToBeRemoved} {
		if !s.Claimable() || s.Terminal() {
			t.Fatalf("%s should be claimable and not terminal", s)
		}
	}
	for _, s := range []DeploymentStatus{StatusCompleted, StatusFailed} {
		if s.Claimable() || !s.Terminal() {
			t.Fatalf("%s should be terminal and not claimable", s)
		}
	}
	if StatusProcessing.Claimable() || StatusProcessing.Terminal() {
		t.Fatalf("processing is neither claimable nor terminal")
	}
}
