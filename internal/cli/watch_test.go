package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func captureWatch(t *testing.T) *WatchConfig {
	t.Helper()
	var captured WatchConfig
	prev := watchRunner
	watchRunner = func(ctx context.Context, cfg *WatchConfig) error {
		captured = *cfg
		return nil
	}
	t.Cleanup(func() { watchRunner = prev })
	return &captured
}

func TestWatch_Defaults(t *testing.T) {
	captured := captureWatch(t)
	if err := execRoot(t, "watch", "--input", "spec.yaml"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(captured.Inputs) != 1 || captured.Inputs[0] != "spec.yaml" {
		t.Fatalf("inputs: %v", captured.Inputs)
	}
	if !captured.DiffOnly {
		t.Fatalf("watch must default to diff-only")
	}
	if captured.Interval != 30*time.Second {
		t.Fatalf("interval default: %v", captured.Interval)
	}
	if captured.BackoffBase != time.Second || captured.BackoffCap != time.Minute {
		t.Fatalf("backoff defaults: base=%v cap=%v", captured.BackoffBase, captured.BackoffCap)
	}
	if captured.MaxFailures != 8 {
		t.Fatalf("max-failures default: %d", captured.MaxFailures)
	}
}

func TestWatch_MultipleInputs(t *testing.T) {
	captured := captureWatch(t)
	if err := execRoot(t, "watch",
		"--input", "a.yaml",
		"--input", "https://example.com/b.json",
		"--out-dir", "gen"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(captured.Inputs) != 2 {
		t.Fatalf("inputs: %v", captured.Inputs)
	}
	if captured.OutDir != "gen" {
		t.Fatalf("out-dir: %q", captured.OutDir)
	}
}

func TestWatch_OutRejectedForMultipleInputs(t *testing.T) {
	captureWatch(t)
	err := execRoot(t, "watch", "--input", "a.yaml", "--input", "b.yaml", "--out", "types.ts")
	if err == nil || !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestWatch_BackoffCapBelowBase(t *testing.T) {
	captureWatch(t)
	err := execRoot(t, "watch", "--input", "a.yaml", "--backoff-base", "10s", "--backoff-cap", "1s")
	if err == nil || !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestWatch_ConfigFileAndOverride(t *testing.T) {
	captured := captureWatch(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `inputs:
  - a.yaml
  - b.yaml
out-dir: gen
interval: 10s
max-failures: 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := execRoot(t, "--config", path, "watch", "--interval", "5s"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(captured.Inputs) != 2 || captured.OutDir != "gen" {
		t.Fatalf("config not applied: %+v", captured)
	}
	if captured.Interval != 5*time.Second {
		t.Fatalf("flag must override config interval: %v", captured.Interval)
	}
	if captured.MaxFailures != 3 {
		t.Fatalf("config max-failures not applied: %d", captured.MaxFailures)
	}
}

func TestControllerConfigs_DerivedPaths(t *testing.T) {
	cfg := &WatchConfig{
		Inputs: []string{"petstore.yaml", "https://example.com/orders.json?v=2"},
		OutDir: "gen",
	}
	configs, err := controllerConfigs(cfg)
	if err != nil {
		t.Fatalf("controllerConfigs: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(configs))
	}
	if want := filepath.Join("gen", "petstore.types.ts"); configs[0].OutPath != want {
		t.Fatalf("derived out: got %q, want %q", configs[0].OutPath, want)
	}
	if want := filepath.Join("gen", "petstore.validators.ts"); configs[0].ValidatorOutPath != want {
		t.Fatalf("derived validators out: got %q, want %q", configs[0].ValidatorOutPath, want)
	}
	if want := filepath.Join("gen", "orders.types.ts"); configs[1].OutPath != want {
		t.Fatalf("derived URL out: got %q, want %q", configs[1].OutPath, want)
	}
}

func TestControllerConfigs_OutputCollision(t *testing.T) {
	cfg := &WatchConfig{
		Inputs: []string{filepath.Join("a", "spec.yaml"), filepath.Join("b", "spec.yaml")},
		OutDir: "gen",
	}
	_, err := controllerConfigs(cfg)
	if err == nil || !errors.Is(err, ErrUsage) {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestDeriveStem(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"petstore.yaml", "petstore"},
		{"./api/My Spec.JSON", "my-spec"},
		{"https://example.com/v1/orders.json?version=2", "orders"},
		{"https://example.com/", "example"},
		{"???", "api"},
	}
	for _, tc := range cases {
		if got := deriveStem(tc.input); got != tc.want {
			t.Errorf("deriveStem(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
