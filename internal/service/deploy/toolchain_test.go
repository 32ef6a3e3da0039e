package deploy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectPackageManager(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  packageManager
	}{
		{name: "default", want: packageManagerNPM},
		{name: "yarn lock", files: map[string]string{"yarn.lock": ""}, want: packageManagerYarn},
		{name: "pnpm lock", files: map[string]string{"pnpm-lock.yaml": ""}, want: packageManagerPNPM},
		{
			name:  "manifest wins over lockfile",
			files: map[string]string{"yarn.lock": "", "package.json": `{"packageManager":"pnpm@9.1.0"}`},
			want:  packageManagerPNPM,
		},
		{
			name:  "unknown manifest value falls back",
			files: map[string]string{"package.json": `{"packageManager":"bun@1.0.0"}`},
			want:  packageManagerNPM,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
					t.Fatalf("write %s: %v", name, err)
				}
			}
			if got := detectPackageManager(dir); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
