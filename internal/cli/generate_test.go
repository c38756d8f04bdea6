package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// captureGenerate swaps the generate runner for a config recorder and returns
// a restore function plus the captured config pointer.
func captureGenerate(t *testing.T) *GenerateConfig {
	t.Helper()
	var captured GenerateConfig
	prev := generateRunner
	generateRunner = func(ctx context.Context, cfg *GenerateConfig) error {
		captured = *cfg
		return nil
	}
	t.Cleanup(func() { generateRunner = prev })
	return &captured
}

func execRoot(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestGenerate_FlagDefaults(t *testing.T) {
	captured := captureGenerate(t)
	if err := execRoot(t, "generate", "--input", "spec.yaml"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if captured.Input != "spec.yaml" {
		t.Fatalf("input: got %q", captured.Input)
	}
	if captured.Out != "types.ts" {
		t.Fatalf("default out: got %q", captured.Out)
	}
	if captured.ValidatorsOut != "validators.ts" {
		t.Fatalf("default validators out: got %q", captured.ValidatorsOut)
	}
	if captured.NoValidators || captured.Helpers || captured.DiffOnly || captured.DryRun {
		t.Fatalf("boolean flags must default off: %+v", captured)
	}
}

func TestGenerate_ValidatorsOutFollowsOut(t *testing.T) {
	captured := captureGenerate(t)
	if err := execRoot(t, "generate", "--input", "spec.yaml", "--out", filepath.Join("gen", "api.ts")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if want := filepath.Join("gen", "validators.ts"); captured.ValidatorsOut != want {
		t.Fatalf("validators out: got %q, want %q", captured.ValidatorsOut, want)
	}
}

func TestGenerate_MissingInput(t *testing.T) {
	captureGenerate(t)
	err := execRoot(t, "generate")
	if err == nil {
		t.Fatalf("expected usage error")
	}
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected ErrUsage, got %v", err)
	}
}

func TestGenerate_OutCollision(t *testing.T) {
	captureGenerate(t)
	err := execRoot(t, "generate", "--input", "spec.yaml", "--out", "api.ts", "--validators-out", "api.ts")
	if err == nil || !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error for colliding outputs, got %v", err)
	}
}

func TestGenerate_ConfigFile(t *testing.T) {
	captured := captureGenerate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `input: spec.yaml
out: gen/types.ts
validators-out: gen/checks.ts
helpers: true
diff-only: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := execRoot(t, "--config", path, "generate"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if captured.Input != "spec.yaml" || captured.Out != "gen/types.ts" || captured.ValidatorsOut != "gen/checks.ts" {
		t.Fatalf("config not applied: %+v", captured)
	}
	if !captured.Helpers || !captured.DiffOnly {
		t.Fatalf("boolean config not applied: %+v", captured)
	}
}

func TestGenerate_FlagsOverrideConfig(t *testing.T) {
	captured := captureGenerate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `input: from-config.yaml
out: config.ts
helpers: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := execRoot(t, "--config", path, "generate", "--input", "from-flag.yaml", "--helpers=false"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if captured.Input != "from-flag.yaml" {
		t.Fatalf("flag must override config input: %q", captured.Input)
	}
	if captured.Out != "config.ts" {
		t.Fatalf("untouched config value must survive: %q", captured.Out)
	}
	if captured.Helpers {
		t.Fatalf("explicit flag must override config boolean")
	}
}

func TestGenerate_ConfigUnknownField(t *testing.T) {
	captureGenerate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("input: x\nbogus: 1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	err := execRoot(t, "--config", path, "generate")
	if err == nil || !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error for unknown config field, got %v", err)
	}
}

func TestGenerate_GlobalFlags(t *testing.T) {
	captured := captureGenerate(t)
	if err := execRoot(t, "generate", "--input", "spec.yaml", "--verbose"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !captured.Verbose || captured.Quiet {
		t.Fatalf("global flags not propagated: %+v", captured)
	}
}
