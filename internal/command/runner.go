package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/KeightAI/infra-ai-forge/pkg/config"
)

const (
	defaultTimeout = 30 * time.Minute
	waitDelay      = 10 * time.Second
	logOutputLimit = 8192
)

// Output holds what a finished process wrote.
type Output struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Options configures a Runner.
type Options struct {
	Credentials config.AWSCredentials
	Timeout     time.Duration
	// ExtraEnv entries are KEY=VALUE pairs applied after the credentials.
	ExtraEnv []string
	Logger   *slog.Logger
}

// Runner executes external commands synchronously with a controlled environment.
type Runner struct {
	env     []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner constructs a Runner. The child environment is computed once.
func NewRunner(opts Options) *Runner {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		env:     buildEnv(os.Environ(), opts.Credentials, opts.ExtraEnv),
		timeout: timeout,
		logger:  logger.With("component", "command"),
	}
}

// Run spawns cmd and blocks until it exits. A non-zero exit yields *Failure,
// an expired time budget yields *TimeoutError, and cancellation of ctx
// yields the context error.
func (r *Runner) Run(ctx context.Context, cmd Command) (Output, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return Output{}, fmt.Errorf("command name cannot be empty")
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	line := cmd.String()
	proc := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = r.env
	proc.WaitDelay = waitDelay
	configureProcess(proc)

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	r.logger.Info("executing command", "command", line, "dir", cmd.Dir)
	start := time.Now()
	err := proc.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
	r.logOutput(line, out)

	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("%s: %w", line, ctxErr)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.logger.Error("command timed out", "command", line, "timeout", timeout)
		return out, &TimeoutError{Command: line, Timeout: timeout, Stderr: out.Stderr}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Error("command failed", "command", line, "exit_code", exitErr.ExitCode())
		return out, &Failure{Command: line, ExitCode: exitErr.ExitCode(), Stderr: out.Stderr}
	}
	r.logger.Error("command could not run", "command", line, "error", err)
	return out, &Failure{Command: line, ExitCode: -1, Stderr: out.Stderr, Err: err}
}

func (r *Runner) logOutput(line string, out Output) {
	if !r.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	r.logger.Debug("command output",
		"command", line,
		"duration", out.Duration,
		"stdout", truncate(out.Stdout),
		"stderr", truncate(out.Stderr),
	)
}

func buildEnv(base []string, creds config.AWSCredentials, extra []string) []string {
	env := make([]string, 0, len(base)+len(extra)+4)
	env = append(env, base...)
	if creds.AccessKeyID != "" {
		env = append(env, "AWS_ACCESS_KEY_ID="+creds.AccessKeyID)
	}
	if creds.SecretAccessKey != "" {
		env = append(env, "AWS_SECRET_ACCESS_KEY="+creds.SecretAccessKey)
	}
	region := strings.TrimSpace(creds.Region)
	if region == "" {
		region = config.DefaultAWSRegion
	}
	env = append(env, "AWS_REGION="+region)
	// Never let git block on an interactive credential prompt.
	env = append(env, "GIT_TERMINAL_PROMPT=0")
	return append(env, extra...)
}

func truncate(s string) string {
	s = strings.ToValidUTF8(strings.TrimSpace(s), "\uFFFD")
	if len(s) <= logOutputLimit {
		return s
	}
	cut := logOutputLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... (%d bytes truncated)", len(s)-cut)
}
