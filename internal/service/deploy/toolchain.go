package deploy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/KeightAI/infra-ai-forge/internal/command"
)

type packageManager string

const (
	packageManagerNPM  packageManager = "npm"
	packageManagerYarn packageManager = "yarn"
	packageManagerPNPM packageManager = "pnpm"
)

type packageManifest struct {
	PackageManager string `json:"packageManager"`
}

// installCommand returns the configured install command, or one matching the
// package manager the checkout declares.
func (s *Service) installCommand(workdir string) command.Command {
	if s.tools.install != nil {
		return *s.tools.install
	}
	return command.New(string(detectPackageManager(workdir)), "install")
}

func detectPackageManager(workdir string) packageManager {
	if manifest, ok := loadPackageManifest(workdir); ok {
		if parsed := parsePackageManager(manifest.PackageManager); parsed != "" {
			return parsed
		}
	}
	switch {
	case fileExists(filepath.Join(workdir, "yarn.lock")):
		return packageManagerYarn
	case fileExists(filepath.Join(workdir, "pnpm-lock.yaml")):
		return packageManagerPNPM
	default:
		return packageManagerNPM
	}
}

// parsePackageManager reads the corepack "packageManager" field, e.g. "pnpm@9.1.0".
func parsePackageManager(value string) packageManager {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if idx := strings.Index(trimmed, "@"); idx > 0 {
		trimmed = trimmed[:idx]
	}
	switch trimmed {
	case "yarn":
		return packageManagerYarn
	case "pnpm":
		return packageManagerPNPM
	case "npm":
		return packageManagerNPM
	default:
		return ""
	}
}

func loadPackageManifest(workdir string) (*packageManifest, bool) {
	data, err := os.ReadFile(filepath.Join(workdir, "package.json"))
	if err != nil {
		return nil, false
	}
	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, false
	}
	return &manifest, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
