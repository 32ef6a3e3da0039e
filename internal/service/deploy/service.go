package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/KeightAI/infra-ai-forge/internal/command"
	"github.com/KeightAI/infra-ai-forge/internal/domain"
	"github.com/KeightAI/infra-ai-forge/internal/git"
	"github.com/KeightAI/infra-ai-forge/internal/notify"
	"github.com/KeightAI/infra-ai-forge/internal/repository"
	"github.com/KeightAI/infra-ai-forge/pkg/config"
)

const (
	defaultStoreTimeout = 10 * time.Second
	statusWriteAttempts = 5
	maxErrorMessage     = 4000
)

// Step names a stage of the pipeline.
type Step string

const (
	StepValidate  Step = "validate"
	StepWorkspace Step = "workspace"
	StepCheckout  Step = "checkout"
	StepInstall   Step = "install"
	StepProbe     Step = "probe"
	StepBootstrap Step = "bootstrap"
	StepDeploy    Step = "deploy"
	StepRemove    Step = "remove"
)

// StepError attributes a pipeline failure to the step that produced it.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Runner executes one external command.
type Runner interface {
	Run(ctx context.Context, cmd command.Command) (command.Output, error)
}

// Workspace hands out and removes per-run directories.
type Workspace interface {
	Acquire(identifier string) (string, error)
	Release(path string) error
}

// StatusWriter persists terminal job states.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, update domain.DeploymentStatusUpdate) error
}

// Result summarizes one pipeline run.
type Result struct {
	JobID    string
	RunID    string
	Mode     domain.Mode
	Status   domain.DeploymentStatus
	Output   string
	Duration time.Duration
}

type toolchain struct {
	install     *command.Command
	probe       command.Command
	toolInstall command.Command
	deploy      command.Command
	remove      command.Command
}

// Service runs the checkout, install, bootstrap and deploy-or-remove sequence for a job.
type Service struct {
	runner       Runner
	workspace    Workspace
	jobs         StatusWriter
	notifier     notify.Notifier
	logger       *slog.Logger
	tools        toolchain
	gitTimeout   time.Duration
	storeTimeout time.Duration
	metrics      *pipelineMetrics
	backoff      func() retry.Backoff
	now          func() time.Time
}

// New wires a deployment Service. The configured command lines are parsed
// once so a typo fails at startup instead of on the first job.
func New(runner Runner, ws Workspace, jobs StatusWriter, notifier notify.Notifier, logger *slog.Logger, cfg config.WorkerConfig) (*Service, error) {
	if runner == nil || ws == nil || jobs == nil {
		return nil, errors.New("deploy service requires runner, workspace and status writer")
	}
	tools, err := parseToolchain(cfg.Toolchain)
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Service{
		runner:       runner,
		workspace:    ws,
		jobs:         jobs,
		notifier:     notifier,
		logger:       logger.With("component", "deploy"),
		tools:        tools,
		gitTimeout:   cfg.GitTimeout,
		storeTimeout: storeTimeout,
		metrics:      newPipelineMetrics(),
		backoff:      defaultBackoff,
		now:          time.Now,
	}, nil
}

func defaultBackoff() retry.Backoff {
	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	return retry.WithMaxRetries(statusWriteAttempts-1, b)
}

func parseToolchain(tc config.Toolchain) (toolchain, error) {
	defaults := config.DefaultToolchain()
	pick := func(value, fallback string) string {
		if strings.TrimSpace(value) == "" {
			return fallback
		}
		return value
	}
	var (
		out toolchain
		err error
	)
	if strings.TrimSpace(tc.InstallCommand) != "" {
		install, err := command.Parse(tc.InstallCommand)
		if err != nil {
			return toolchain{}, fmt.Errorf("parse install command: %w", err)
		}
		out.install = &install
	}
	if out.probe, err = command.Parse(pick(tc.ToolProbeCommand, defaults.ToolProbeCommand)); err != nil {
		return toolchain{}, fmt.Errorf("parse tool probe command: %w", err)
	}
	if out.toolInstall, err = command.Parse(pick(tc.ToolInstallCommand, defaults.ToolInstallCommand)); err != nil {
		return toolchain{}, fmt.Errorf("parse tool install command: %w", err)
	}
	if out.deploy, err = command.Parse(pick(tc.DeployCommand, defaults.DeployCommand)); err != nil {
		return toolchain{}, fmt.Errorf("parse deploy command: %w", err)
	}
	if out.remove, err = command.Parse(pick(tc.RemoveCommand, defaults.RemoveCommand)); err != nil {
		return toolchain{}, fmt.Errorf("parse remove command: %w", err)
	}
	return out, nil
}

// Execute runs the pipeline for a claimed job and records its terminal
// status. The mode comes from job.Status as captured before the claim.
func (s *Service) Execute(ctx context.Context, job domain.DeploymentJob) (Result, error) {
	mode := job.Mode()
	result := Result{JobID: job.ID, RunID: uuid.NewString(), Mode: mode}
	log := s.logger.With("job_id", job.ID, "run_id", result.RunID, "mode", mode)
	start := s.now()

	log.Info("pipeline started", "repository_url", job.RepositoryURL, "branch", job.EffectiveBranch(), "stage", job.EffectiveStage())
	output, err := s.run(ctx, job, mode, log)
	result.Duration = s.now().Sub(start)

	if err != nil {
		result.Status = domain.StatusFailed
		message := failureMessage(err)
		log.Error("pipeline failed", "error", err, "duration", result.Duration)
		s.metrics.recordRun(mode, "failure")
		if werr := s.finish(ctx, job, mode, domain.StatusFailed, message, log); werr != nil {
			log.Error("failed to record job failure", "error", werr)
		}
		return result, err
	}

	result.Status = domain.StatusCompleted
	result.Output = output
	s.metrics.recordRun(mode, "success")
	log.Info("pipeline completed", "duration", result.Duration)
	if werr := s.finish(ctx, job, mode, domain.StatusCompleted, "", log); werr != nil {
		return result, fmt.Errorf("record completion for job %s: %w", job.ID, werr)
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, job domain.DeploymentJob, mode domain.Mode, log *slog.Logger) (output string, err error) {
	current := StepValidate
	defer func() {
		if r := recover(); r != nil {
			err = &StepError{Step: current, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	branch, stage := job.EffectiveBranch(), job.EffectiveStage()
	if err := validateJob(job, branch, stage); err != nil {
		return "", &StepError{Step: StepValidate, Err: err}
	}

	current = StepWorkspace
	dir, err := s.workspace.Acquire(job.ID)
	if err != nil {
		return "", &StepError{Step: StepWorkspace, Err: err}
	}
	log.Info("workspace acquired", "dir", dir)
	defer func() {
		if rerr := s.workspace.Release(dir); rerr != nil {
			log.Error("workspace cleanup failed", "dir", dir, "error", rerr)
			return
		}
		log.Info("workspace released", "dir", dir)
	}()

	current = StepCheckout
	clone, err := git.CloneCommand(job.RepositoryURL, branch, dir, s.gitTimeout)
	if err != nil {
		return "", &StepError{Step: StepCheckout, Err: err}
	}
	if _, err := s.step(ctx, log, StepCheckout, clone); err != nil {
		return "", err
	}

	current = StepInstall
	if _, err := s.step(ctx, log, StepInstall, s.installCommand(dir).In(dir)); err != nil {
		return "", err
	}

	current = StepProbe
	if _, probeErr := s.step(ctx, log, StepProbe, s.tools.probe.In(dir)); probeErr != nil {
		if ctx.Err() != nil {
			return "", &StepError{Step: StepProbe, Err: ctx.Err()}
		}
		log.Info("deploy tool not available, installing", "probe_error", probeErr)
		current = StepBootstrap
		if _, err := s.step(ctx, log, StepBootstrap, s.tools.toolInstall.In(dir)); err != nil {
			return "", err
		}
	}

	action, step := s.tools.deploy, StepDeploy
	if mode == domain.ModeRemoval {
		action, step = s.tools.remove, StepRemove
	}
	current = step
	out, err := s.step(ctx, log, step, action.With("--stage", stage).In(dir))
	if err != nil {
		return "", err
	}
	return out.Stdout, nil
}

func (s *Service) step(ctx context.Context, log *slog.Logger, step Step, cmd command.Command) (command.Output, error) {
	log.Info("pipeline step started", "step", step, "command", cmd.String())
	out, err := s.runner.Run(ctx, cmd)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.recordStep(step, outcome, out.Duration)
	if err != nil {
		if step != StepProbe {
			log.Warn("pipeline step failed", "step", step, "error", err)
		}
		return out, &StepError{Step: step, Err: err}
	}
	log.Info("pipeline step finished", "step", step, "duration", out.Duration)
	return out, nil
}

// finish writes the terminal status, retrying transient store errors on a
// context that survives cancellation of ctx.
func (s *Service) finish(ctx context.Context, job domain.DeploymentJob, mode domain.Mode, status domain.DeploymentStatus, message string, log *slog.Logger) error {
	base := context.WithoutCancel(ctx)
	update := domain.DeploymentStatusUpdate{JobID: job.ID, Status: status, ErrorMessage: message}

	err := retry.Do(base, s.backoff(), func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
		err := s.jobs.UpdateStatus(attemptCtx, update)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrNotFound):
			return err
		default:
			log.Warn("job status write failed", "status", status, "error", err)
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		return err
	}
	log.Info("job status recorded", "status", status)

	notifyCtx, cancel := context.WithTimeout(base, s.storeTimeout)
	defer cancel()
	event := notify.Event{JobID: job.ID, Status: status, Mode: mode, ErrorMessage: message, OccurredAt: s.now().UTC()}
	if err := s.notifier.Notify(notifyCtx, event); err != nil {
		log.Warn("job event publish failed", "error", err)
	}
	return nil
}

func validateJob(job domain.DeploymentJob, branch, stage string) error {
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id required")
	}
	if strings.TrimSpace(job.RepositoryURL) == "" {
		return errors.New("repository url required")
	}
	if err := git.ValidateRef(branch); err != nil {
		return err
	}
	if strings.HasPrefix(stage, "-") || strings.IndexFunc(stage, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return fmt.Errorf("invalid stage %q", stage)
	}
	return nil
}

// failureMessage is what lands in error_message. It is never empty, always
// valid UTF-8, and keeps the tail of long tool output, where the cause usually is.
func failureMessage(err error) string {
	msg := ""
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		if stepErr.Err != nil {
			msg = strings.TrimSpace(stepErr.Err.Error())
		}
		if msg == "" {
			msg = fmt.Sprintf("%s failed", stepErr.Step)
		}
	} else if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	if msg == "" {
		msg = "deployment failed"
	}
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) > maxErrorMessage {
		cut := len(msg) - maxErrorMessage
		for cut < len(msg) && !utf8.RuneStart(msg[cut]) {
			cut++
		}
		msg = "..." + msg[cut:]
	}
	return msg
}
