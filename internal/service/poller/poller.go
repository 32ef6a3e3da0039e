package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KeightAI/infra-ai-forge/internal/domain"
	"github.com/KeightAI/infra-ai-forge/internal/repository"
	"github.com/KeightAI/infra-ai-forge/internal/service/deploy"
)

const (
	defaultInterval     = 30 * time.Second
	defaultStoreTimeout = 10 * time.Second
	cycleKey            = "poll"
)

// Claimer hands out at most one claimable job per call.
type Claimer interface {
	ClaimNext(ctx context.Context) (*domain.DeploymentJob, error)
}

// Executor runs the pipeline for a claimed job.
type Executor interface {
	Execute(ctx context.Context, job domain.DeploymentJob) (deploy.Result, error)
}

// Ticker is the subset of time.Ticker the loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Options tunes the poll loop.
type Options struct {
	Interval     time.Duration
	StoreTimeout time.Duration
	NewTicker    func(time.Duration) Ticker
}

// Poller claims jobs on a fixed interval and on demand, one cycle at a time.
type Poller struct {
	jobs         Claimer
	executor     Executor
	logger       *slog.Logger
	interval     time.Duration
	storeTimeout time.Duration
	newTicker    func(time.Duration) Ticker
	metrics      *pollMetrics

	group    singleflight.Group
	inflight sync.WaitGroup

	workCtx    context.Context
	cancelWork context.CancelFunc

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	loopDone chan struct{}
}

// New builds a Poller. Pipelines run on a context owned by the Poller that is
// only cancelled by Cancel, so stopping the timer never interrupts a deploy.
func New(jobs Claimer, executor Executor, logger *slog.Logger, opts Options) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newTimeTicker
	}
	workCtx, cancel := context.WithCancel(context.Background())
	return &Poller{
		jobs:         jobs,
		executor:     executor,
		logger:       logger.With("component", "poller"),
		interval:     opts.Interval,
		storeTimeout: opts.StoreTimeout,
		newTicker:    opts.NewTicker,
		metrics:      newPollMetrics(),
		workCtx:      workCtx,
		cancelWork:   cancel,
	}
}

// Start launches the loop: one cycle right away, then one per tick until ctx
// ends or Stop is called. Calling Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	p.running = true
	p.stop = stop
	p.loopDone = done
	p.mu.Unlock()

	go p.loop(ctx, stop, done)
}

func (p *Poller) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		if p.stop == stop {
			p.running = false
		}
		p.mu.Unlock()
	}()

	ticker := p.newTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.interval)
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "reason", ctx.Err())
			return
		case <-stop:
			p.logger.Info("poller stopped")
			return
		case <-ticker.C():
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	// Errors are already logged and counted by the cycle.
	_ = p.PollOnce(ctx)
}

// Stop halts the timer. A cycle already running is left to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.stop)
	p.running = false
}

// Running reports whether the timer is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until the loop has exited and no cycle is in flight, or ctx ends.
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	loopDone := p.loopDone
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		if loopDone != nil {
			<-loopDone
		}
		p.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts running pipelines. They still record a failed status.
func (p *Poller) Cancel() {
	p.cancelWork()
}

// PollOnce runs a single cycle. Concurrent callers share one cycle, so a
// manual trigger during a scheduled run waits for it instead of claiming
// a second job. Only store errors are returned.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.inflight.Add(1)
	defer p.inflight.Done()

	_, err, shared := p.group.Do(cycleKey, func() (any, error) {
		return nil, p.cycle(ctx)
	})
	if shared {
		p.logger.Debug("joined poll cycle already in progress")
	}
	return err
}

func (p *Poller) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll cycle panicked", "panic", r)
			p.metrics.record("error")
			err = fmt.Errorf("poll cycle panicked: %v", r)
		}
	}()

	claimCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	job, err := p.jobs.ClaimNext(claimCtx)
	cancel()
	if errors.Is(err, repository.ErrNotFound) || (err == nil && job == nil) {
		p.logger.Debug("no claimable jobs")
		p.metrics.record("idle")
		return nil
	}
	if err != nil {
		p.logger.Warn("failed to claim job", "error", err)
		p.metrics.record("error")
		return fmt.Errorf("claim job: %w", err)
	}

	p.metrics.record("claimed")
	log := p.logger.With("job_id", job.ID)
	log.Info("job claimed", "previous_status", job.Status, "mode", job.Mode())

	result, execErr := p.executor.Execute(p.workCtx, *job)
	if execErr != nil {
		log.Warn("job finished with error", "run_id", result.RunID, "status", result.Status, "error", execErr)
		return nil
	}
	log.Info("job finished", "run_id", result.RunID, "status", result.Status, "duration", result.Duration)
	return nil
}
