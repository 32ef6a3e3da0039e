package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/KeightAI/infra-ai-forge/internal/domain"
	"github.com/KeightAI/infra-ai-forge/internal/repository"
	"github.com/KeightAI/infra-ai-forge/internal/service/deploy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeClaimer struct {
	mu     sync.Mutex
	jobs   []domain.DeploymentJob
	err    error
	claims int
	panic  bool
}

func (c *fakeClaimer) ClaimNext(context.Context) (*domain.DeploymentJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims++
	if c.panic {
		panic("boom")
	}
	if c.err != nil {
		return nil, c.err
	}
	if len(c.jobs) == 0 {
		return nil, repository.ErrNotFound
	}
	job := c.jobs[0]
	c.jobs = c.jobs[1:]
	return &job, nil
}

func (c *fakeClaimer) claimCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims
}

type fakeExecutor struct {
	mu      sync.Mutex
	jobs    []domain.DeploymentJob
	err     error
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (e *fakeExecutor) Execute(ctx context.Context, job domain.DeploymentJob) (deploy.Result, error) {
	e.mu.Lock()
	e.jobs = append(e.jobs, job)
	e.mu.Unlock()
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			e.mu.Lock()
			e.ctxErr = ctx.Err()
			e.mu.Unlock()
			return deploy.Result{JobID: job.ID, Status: domain.StatusFailed}, ctx.Err()
		}
	}
	if e.err != nil {
		return deploy.Result{JobID: job.ID, Status: domain.StatusFailed}, e.err
	}
	return deploy.Result{JobID: job.ID, Status: domain.StatusCompleted}, nil
}

func (e *fakeExecutor) executed() []domain.DeploymentJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.DeploymentJob(nil), e.jobs...)
}

type fakeTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPollOnceIdleDoesNothing(t *testing.T) {
	claimer := &fakeClaimer{}
	executor := &fakeExecutor{}
	p := New(claimer, executor, testLogger(), Options{})

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("idle poll should succeed, got %v", err)
	}
	if claimer.claimCount() != 1 {
		t.Fatalf("expected one claim attempt, got %d", claimer.claimCount())
	}
	if len(executor.executed()) != 0 {
		t.Fatalf("executor must not run without a job")
	}
}

func TestPollOnceExecutesClaimedSnapshot(t *testing.T) {
	claimer := &fakeClaimer{jobs: []domain.DeploymentJob{
		{ID: "J3", RepositoryURL: "https://github.com/acme/app.git", Status: domain.StatusToBeRemoved},
	}}
	executor := &fakeExecutor{}
	p := New(claimer, executor, testLogger(), Options{})

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	jobs := executor.executed()
	if len(jobs) != 1 || jobs[0].ID != "J3" {
		t.Fatalf("expected J3 to be executed, got %+v", jobs)
	}
	if jobs[0].Mode() != domain.ModeRemoval {
		t.Fatalf("snapshot must keep the pre-claim status, got %s", jobs[0].Status)
	}
}

func TestPollOnceSwallowsExecutorError(t *testing.T) {
	claimer := &fakeClaimer{jobs: []domain.DeploymentJob{{ID: "J2", Status: domain.StatusPending}}}
	executor := &fakeExecutor{err: errors.New("branch not found")}
	p := New(claimer, executor, testLogger(), Options{})

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("executor errors must not surface, got %v", err)
	}
}

func TestPollOnceReturnsStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	p := New(&fakeClaimer{err: storeErr}, &fakeExecutor{}, testLogger(), Options{})

	err := p.PollOnce(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestPollOnceRecoversPanic(t *testing.T) {
	p := New(&fakeClaimer{panic: true}, &fakeExecutor{}, testLogger(), Options{})

	if err := p.PollOnce(context.Background()); err == nil {
		t.Fatalf("expected error from panicking cycle")
	}
}

func TestConcurrentPollsShareCycle(t *testing.T) {
	claimer := &fakeClaimer{jobs: []domain.DeploymentJob{
		{ID: "J1", Status: domain.StatusPending},
		{ID: "J2", Status: domain.StatusPending},
	}}
	executor := &fakeExecutor{started: make(chan struct{}, 2), release: make(chan struct{})}
	p := New(claimer, executor, testLogger(), Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.PollOnce(context.Background())
	}()
	<-executor.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.PollOnce(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(executor.release)
	wg.Wait()

	if got := claimer.claimCount(); got != 1 {
		t.Fatalf("expected overlapping polls to claim once, got %d", got)
	}
	if got := len(executor.executed()); got != 1 {
		t.Fatalf("expected one execution, got %d", got)
	}
}

func TestStartRunsImmediatelyThenOnTick(t *testing.T) {
	claimer := &fakeClaimer{}
	ticker := newFakeTicker()
	var gotInterval time.Duration
	p := New(claimer, &fakeExecutor{}, testLogger(), Options{
		Interval: 5 * time.Second,
		NewTicker: func(d time.Duration) Ticker {
			gotInterval = d
			return ticker
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	waitFor(t, "initial cycle", func() bool { return claimer.claimCount() == 1 })
	if !p.Running() {
		t.Fatalf("expected poller to report running")
	}
	if gotInterval != 5*time.Second {
		t.Fatalf("expected ticker interval 5s, got %s", gotInterval)
	}

	ticker.ch <- time.Now()
	waitFor(t, "ticked cycle", func() bool { return claimer.claimCount() == 2 })

	p.Stop()
	if p.Running() {
		t.Fatalf("expected poller to report stopped")
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := p.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	select {
	case <-ticker.stopped:
	default:
		t.Fatalf("expected ticker to be stopped")
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	p := New(&fakeClaimer{}, &fakeExecutor{}, testLogger(), Options{})
	p.Stop()
	if p.Running() {
		t.Fatalf("poller should not be running")
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("wait on idle poller: %v", err)
	}
}

func TestWaitDrainsInFlightPipeline(t *testing.T) {
	claimer := &fakeClaimer{jobs: []domain.DeploymentJob{{ID: "J1", Status: domain.StatusPending}}}
	executor := &fakeExecutor{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := New(claimer, executor, testLogger(), Options{NewTicker: func(time.Duration) Ticker { return newFakeTicker() }})

	p.Start(context.Background())
	<-executor.started
	p.Stop()

	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wait to block on in-flight pipeline, got %v", err)
	}

	close(executor.release)
	long, cancelLong := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelLong()
	if err := p.Wait(long); err != nil {
		t.Fatalf("expected drain to complete, got %v", err)
	}
}

func TestCancelAbortsPipeline(t *testing.T) {
	claimer := &fakeClaimer{jobs: []domain.DeploymentJob{{ID: "J1", Status: domain.StatusPending}}}
	executor := &fakeExecutor{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := New(claimer, executor, testLogger(), Options{})

	done := make(chan error, 1)
	go func() { done <- p.PollOnce(context.Background()) }()
	<-executor.started
	p.Cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancelled pipeline is an executor error and must be swallowed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pipeline did not observe cancellation")
	}
	executor.mu.Lock()
	defer executor.mu.Unlock()
	if !errors.Is(executor.ctxErr, context.Canceled) {
		t.Fatalf("expected executor context to be cancelled, got %v", executor.ctxErr)
	}
}
