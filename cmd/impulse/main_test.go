package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akmonengine/impulse/solver"
)

// ============================================================================
// Environment
// ============================================================================

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    envConfig
		wantErr bool
	}{
		{
			name:    "all set",
			content: "IMPULSE_SETTINGS=solver.yaml\nIMPULSE_WORKERS=4\nIMPULSE_LOG_LEVEL=debug\n",
			want:    envConfig{Settings: "solver.yaml", Workers: 4, LogLevel: slog.LevelDebug},
		},
		{
			name:    "defaults",
			content: "OTHER=1\n",
			want:    envConfig{LogLevel: slog.LevelWarn},
		},
		{
			name:    "bad workers",
			content: "IMPULSE_WORKERS=many\n",
			wantErr: true,
		},
		{
			name:    "bad level",
			content: "IMPULSE_LOG_LEVEL=loud\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// godotenv never overrides variables already set
			t.Setenv("IMPULSE_SETTINGS", "")
			t.Setenv("IMPULSE_WORKERS", "")
			t.Setenv("IMPULSE_LOG_LEVEL", "")
			os.Unsetenv("IMPULSE_SETTINGS")
			os.Unsetenv("IMPULSE_WORKERS")
			os.Unsetenv("IMPULSE_LOG_LEVEL")

			got, err := loadEnv(writeEnv(t, tt.content))

			if tt.wantErr {
				if err == nil {
					t.Fatalf("loadEnv() = %+v, want an error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadEnv(): %v", err)
			}
			if got != tt.want {
				t.Errorf("loadEnv() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadEnv_MissingFile(t *testing.T) {
	if _, err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("an explicit env file that does not exist should fail")
	}
}

// ============================================================================
// Report
// ============================================================================

func TestRenderReport(t *testing.T) {
	r := solver.Report{
		Contacts:    3,
		Bodies:      4,
		Stage:       solver.StageUnprojection,
		Unprojected: 1,
		LCPRejected: true,
	}

	out := renderReport("sandwich", 10, r, 1.5)

	for _, want := range []string{"sandwich", "10 steps", "contacts", "unprojection", "lcp rejected", "true"} {
		if !strings.Contains(out, want) {
			t.Errorf("report is missing %q:\n%s", want, out)
		}
	}
}
