package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Fepozopo/layerkit/pkg/composite"
)

// isolate runs the test in an empty directory with no LAYERKIT_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{
		"LAYERKIT_CONFIG", "LAYERKIT_MAX_UNDO", "LAYERKIT_MAX_REDO", "LAYERKIT_WORKERS",
		"LAYERKIT_CHECKER_SIZE", "LAYERKIT_COMPRESS_HISTORY", "LAYERKIT_BACKGROUND",
		"LAYERKIT_LOG_LEVEL", "LAYERKIT_UPDATE_REPO",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	opts := cfg.SessionOptions()
	if opts.MaxUndo != 40 || opts.MaxRedo != 40 || opts.Compress {
		t.Fatalf("unexpected session options %+v", opts)
	}
	if opts.Composite.Background != composite.BackgroundCheckerboard || opts.Composite.CheckerSize != 8 {
		t.Fatalf("unexpected composite options %+v", opts.Composite)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, DefaultFile), `
history:
  max_undo: 12
  compress: true
composite:
  background: transparent
  workers: 3
log:
  level: debug
`)
	t.Setenv("LAYERKIT_MAX_UNDO", "7")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.MaxUndo != 7 {
		t.Fatalf("env should override file, got max_undo=%d", cfg.History.MaxUndo)
	}
	if cfg.History.MaxRedo != 40 || !cfg.History.Compress {
		t.Fatalf("unexpected history section %+v", cfg.History)
	}
	if cfg.CompositeOptions().Background != composite.BackgroundTransparent || cfg.Composite.Workers != 3 {
		t.Fatalf("unexpected composite section %+v", cfg.Composite)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "LAYERKIT_MAX_REDO=5\nLAYERKIT_UPDATE_REPO=someone/fork\n")
	// godotenv only fills unset variables.
	os.Unsetenv("LAYERKIT_MAX_REDO")
	os.Unsetenv("LAYERKIT_UPDATE_REPO")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.MaxRedo != 5 || cfg.Update.Repo != "someone/fork" {
		t.Fatalf(".env values not applied: %+v", cfg)
	}
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	dir := isolate(t)
	t.Setenv("LAYERKIT_CONFIG", filepath.Join(dir, "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		file string
		env  [2]string
	}{
		{"zero undo", "history:\n  max_undo: 0\n", [2]string{}},
		{"unknown background", "composite:\n  background: plaid\n", [2]string{}},
		{"malformed yaml", "history: [\n", [2]string{}},
		{"bad env int", "", [2]string{"LAYERKIT_WORKERS", "many"}},
		{"bad env bool", "", [2]string{"LAYERKIT_COMPRESS_HISTORY", "sometimes"}},
		{"bad repo", "update:\n  repo: nope\n", [2]string{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := isolate(t)
			if c.file != "" {
				writeFile(t, filepath.Join(dir, DefaultFile), c.file)
			}
			if c.env[0] != "" {
				t.Setenv(c.env[0], c.env[1])
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected Load to fail")
			}
		})
	}
}
