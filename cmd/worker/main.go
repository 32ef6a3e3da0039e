package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/KeightAI/infra-ai-forge/internal/app/migrate"
	"github.com/KeightAI/infra-ai-forge/internal/command"
	httpx "github.com/KeightAI/infra-ai-forge/internal/http"
	"github.com/KeightAI/infra-ai-forge/internal/notify"
	"github.com/KeightAI/infra-ai-forge/internal/preflight"
	"github.com/KeightAI/infra-ai-forge/internal/repository/postgres"
	"github.com/KeightAI/infra-ai-forge/internal/service/deploy"
	"github.com/KeightAI/infra-ai-forge/internal/service/poller"
	"github.com/KeightAI/infra-ai-forge/internal/workspace"
	"github.com/KeightAI/infra-ai-forge/pkg/config"
	"github.com/KeightAI/infra-ai-forge/pkg/logger"
)

const (
	httpShutdownTimeout = 10 * time.Second
	abortFlushTimeout   = 30 * time.Second
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadWorkerConfig()
	log := logger.New("deploy-worker", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, cfg, log); err != nil {
			log.Error("database migrations failed", "error", err)
			os.Exit(1)
		}
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseServiceKey)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	jobs := postgres.New(pool)

	pingCtx, cancelPing := context.WithTimeout(ctx, cfg.StoreTimeout)
	if err := jobs.Ping(pingCtx); err != nil {
		log.Warn("job store not reachable yet", "error", err)
	}
	cancelPing()

	workspaces, err := workspace.New(cfg.WorkspaceRoot, cfg.WorkspacePrefix)
	if err != nil {
		log.Error("workspace init failed", "error", err, "root", cfg.WorkspaceRoot)
		os.Exit(1)
	}
	log.Info("workspace root ready", "root", workspaces.Root())

	if cfg.AWSPreflight {
		checkCtx, cancelCheck := context.WithTimeout(ctx, 15*time.Second)
		identity, err := preflight.CheckAWS(checkCtx, cfg.AWS)
		cancelCheck()
		if err != nil {
			log.Warn("aws credential preflight failed", "error", err)
		} else {
			log.Info("aws credentials verified", "account", identity.Account, "arn", identity.ARN, "region", identity.Region)
		}
	}

	notifier := newNotifier(cfg, log)
	defer func() {
		if closer, ok := notifier.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Warn("notifier close failed", "error", err)
			}
		}
	}()

	runner := command.NewRunner(command.Options{
		Credentials: cfg.AWS,
		Timeout:     cfg.CommandTimeout,
		Logger:      log,
	})

	deploySvc, err := deploy.New(runner, workspaces, jobs, notifier, log, cfg)
	if err != nil {
		log.Error("deploy service init failed", "error", err)
		os.Exit(1)
	}

	jobPoller := poller.New(jobs, deploySvc, log, poller.Options{
		Interval:     cfg.PollInterval,
		StoreTimeout: cfg.StoreTimeout,
	})
	router := httpx.New(log, jobPoller)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("worker server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	jobPoller.Start(ctx)

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
		}
	}

	jobPoller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	cancel()

	drain(jobPoller, cfg.ShutdownGrace, log)
	log.Info("worker stopped")
}

// drain waits for the in-flight pipeline. Past the grace period the pipeline
// is cancelled and given a short window to record its failure.
func drain(p *poller.Poller, grace time.Duration, log *slog.Logger) {
	graceCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := p.Wait(graceCtx); err == nil {
		return
	}
	log.Warn("shutdown grace period elapsed, aborting in-flight pipeline", "grace", grace)
	p.Cancel()

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), abortFlushTimeout)
	defer cancelFlush()
	if err := p.Wait(flushCtx); err != nil {
		log.Error("pipeline did not stop after cancellation", "error", err)
	}
}

func newNotifier(cfg config.WorkerConfig, log *slog.Logger) notify.Notifier {
	if cfg.RedisAddr == "" {
		return notify.Nop{}
	}
	publisher, err := notify.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel)
	if err != nil {
		log.Warn("redis unavailable, job events disabled", "error", err, "addr", cfg.RedisAddr)
		return notify.Nop{}
	}
	log.Info("publishing job events", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	return publisher
}

func runMigrations(ctx context.Context, cfg config.WorkerConfig, log *slog.Logger) error {
	runner, err := migrate.New(cfg.DatabaseURL, cfg.DatabaseServiceKey, cfg.MigrationsDir, log)
	if err != nil {
		return err
	}
	defer runner.Close()
	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return runner.Ensure(migrateCtx)
}
