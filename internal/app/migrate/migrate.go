package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/KeightAI/infra-ai-forge/db"
)

const commandTimeout = time.Minute

// Runner wraps database migration capabilities.
type Runner struct {
	db       *sql.DB
	provider *goose.Provider
	log      *slog.Logger
}

// New returns a goose-backed runner. An empty migrationsDir, or one that does
// not exist on disk, selects the migrations embedded in the binary.
func New(dsn, serviceKey, migrationsDir string, log *slog.Logger) (*Runner, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty database dsn")
	}
	if log == nil {
		log = slog.Default()
	}
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if key := strings.TrimSpace(serviceKey); key != "" {
		connCfg.Password = key
	}

	sqlDB := stdlib.OpenDB(*connCfg)
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrationSource(migrationsDir, log))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("configure goose: %w", err)
	}
	return &Runner{db: sqlDB, provider: provider, log: log}, nil
}

func migrationSource(dir string, log *slog.Logger) fs.FS {
	if dir = strings.TrimSpace(dir); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			log.Info("using migrations from disk", "dir", dir)
			return os.DirFS(dir)
		}
	}
	return db.Migrations()
}

// Ensure applies pending migrations.
func (r *Runner) Ensure(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	r.log.Info("applying migrations")
	results, err := r.provider.Up(runCtx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, res := range results {
		r.log.Info("migration applied", "version", res.Source.Version, "path", res.Source.Path, "duration", res.Duration)
	}
	r.log.Info("migrations applied", "count", len(results))
	return nil
}

// Status reports applied and pending migrations.
func (r *Runner) Status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	for _, st := range statuses {
		r.log.Info("migration status",
			"version", st.Source.Version,
			"path", st.Source.Path,
			"state", string(st.State),
			"applied_at", st.AppliedAt,
		)
	}
	return nil
}

// Down rolls back migrations either to the previous version or a specific target version.
func (r *Runner) Down(ctx context.Context, targetVersion int64) error {
	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if targetVersion > 0 {
		r.log.Info("rolling back migrations", "target", targetVersion)
		if _, err := r.provider.DownTo(runCtx, targetVersion); err != nil {
			return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
		}
	} else {
		r.log.Info("rolling back latest migration")
		if _, err := r.provider.Down(runCtx); err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
	}

	r.log.Info("rollback complete")
	return nil
}

// Ping ensures the database connection is alive.
func (r *Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases underlying connections.
func (r *Runner) Close() error {
	return r.provider.Close()
}
