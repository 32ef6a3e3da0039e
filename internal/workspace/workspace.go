package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultPrefix = "repo-"

// Manager hands out private, uniquely named run directories under a common root.
type Manager struct {
	root   string
	prefix string
}

// New ensures the workspace root exists and is accessible. An empty root
// falls back to the system temp directory.
func New(root, prefix string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		root = os.TempDir()
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultPrefix
	}
	if strings.ContainsRune(prefix, os.PathSeparator) {
		return nil, fmt.Errorf("workspace prefix cannot contain a path separator")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs, prefix: prefix}, nil
}

// Root returns the directory workspaces are created under.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a fresh directory for one run. The identifier only makes
// the name recognizable; uniqueness comes from os.MkdirTemp.
func (m *Manager) Acquire(identifier string) (string, error) {
	pattern := m.prefix
	if id := sanitize(identifier); id != "" {
		pattern += id + "-"
	}
	dir, err := os.MkdirTemp(m.root, pattern+"*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Release recursively removes a directory returned by Acquire.
func (m *Manager) Release(path string) error {
	if path == "" {
		return nil
	}
	// Ensure we only remove directories within the configured root.
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to release path outside workspace root: %s", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

func sanitize(identifier string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(identifier) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= 40 {
			break
		}
	}
	return b.String()
}
