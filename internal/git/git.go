package git

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/KeightAI/infra-ai-forge/internal/command"
)

// CloneCommand builds a shallow single-branch clone of repoURL into dest.
func CloneCommand(repoURL, branch, dest string, timeout time.Duration) (command.Command, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return command.Command{}, fmt.Errorf("repository URL cannot be empty")
	}
	if strings.HasPrefix(repoURL, "-") {
		return command.Command{}, fmt.Errorf("invalid repository URL %q", repoURL)
	}
	if dest == "" {
		return command.Command{}, fmt.Errorf("destination cannot be empty")
	}
	if err := ValidateRef(branch); err != nil {
		return command.Command{}, err
	}
	cmd := command.New("git", "clone", "--depth", "1", "--branch", branch, repoURL, dest)
	return cmd.WithTimeout(timeout), nil
}

// ValidateRef rejects branch names git would treat as options or that
// cannot be a valid ref.
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("branch cannot be empty")
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("invalid branch %q", ref)
	}
	for _, r := range ref {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("invalid branch %q", ref)
		}
	}
	return nil
}
