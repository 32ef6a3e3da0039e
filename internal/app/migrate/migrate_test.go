package migrate

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New("", "", "", nil); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestMigrationSourcePrefersDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "00042_custom.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	src := migrationSource(dir, log)
	if _, err := fs.Stat(src, "00042_custom.sql"); err != nil {
		t.Fatalf("expected disk migration, got %v", err)
	}

	embedded := migrationSource(filepath.Join(dir, "missing"), log)
	if _, err := fs.Stat(embedded, "00001_create_deployments.sql"); err != nil {
		t.Fatalf("expected embedded fallback, got %v", err)
	}
}
