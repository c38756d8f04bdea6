package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/swagger2ts/internal/emitter/tsemitter"
	"github.com/mark3labs/swagger2ts/internal/emitter/validatoremitter"
	"github.com/mark3labs/swagger2ts/internal/output"
	genspec "github.com/mark3labs/swagger2ts/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command
// after merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input         string
	Out           string
	ValidatorsOut string
	NoValidators  bool
	Helpers       bool
	DiffOnly      bool
	DryRun        bool
	Verbose       bool
	Quiet         bool
	ConfigPath    string
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{Out: "types.ts"}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate TypeScript types and validators from an OpenAPI/Swagger document",
		Long: "Generate TypeScript type declarations and runtime validators from an OpenAPI/Swagger document. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  swagger2ts generate --input spec.yaml --out api/types.ts
  swagger2ts --config config.yaml generate --helpers --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document")
	flags.String("out", "", "Output path for the type declarations (default types.ts)")
	flags.String("validators-out", "", "Output path for the validators (default validators.ts beside --out)")
	flags.Bool("no-validators", false, "Skip validator generation")
	flags.Bool("helpers", false, "Emit the RequestOf/ResponseOf extraction helper types")
	flags.Bool("diff-only", false, "Skip writing when the output already carries the same fingerprint")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd, &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(cmd *cobra.Command, cfg *GenerateConfig) error {
	flags := cmd.Flags()
	if flags.Changed("input") {
		value, err := flags.GetString("input")
		if err != nil {
			return err
		}
		cfg.Input = strings.TrimSpace(value)
	}
	if flags.Changed("out") {
		value, err := flags.GetString("out")
		if err != nil {
			return err
		}
		cfg.Out = strings.TrimSpace(value)
	}
	if flags.Changed("validators-out") {
		value, err := flags.GetString("validators-out")
		if err != nil {
			return err
		}
		cfg.ValidatorsOut = strings.TrimSpace(value)
	}
	if flags.Changed("no-validators") {
		value, err := flags.GetBool("no-validators")
		if err != nil {
			return err
		}
		cfg.NoValidators = value
	}
	if flags.Changed("helpers") {
		value, err := flags.GetBool("helpers")
		if err != nil {
			return err
		}
		cfg.Helpers = value
	}
	if flags.Changed("diff-only") {
		value, err := flags.GetBool("diff-only")
		if err != nil {
			return err
		}
		cfg.DiffOnly = value
	}
	if flags.Changed("dry-run") {
		value, err := flags.GetBool("dry-run")
		if err != nil {
			return err
		}
		cfg.DryRun = value
	}
	return applyGlobalFlagOverrides(cmd.Flags(), &cfg.Verbose, &cfg.Quiet)
}

func applyGlobalFlagOverrides(flags *pflag.FlagSet, verbose, quiet *bool) error {
	if flags.Changed("verbose") {
		value, err := flags.GetBool("verbose")
		if err != nil {
			return err
		}
		*verbose = value
	}
	if flags.Changed("quiet") {
		value, err := flags.GetBool("quiet")
		if err != nil {
			return err
		}
		*quiet = value
	}
	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	c.ValidatorsOut = strings.TrimSpace(c.ValidatorsOut)
	if c.Out == "" {
		c.Out = "types.ts"
	}
	if c.ValidatorsOut == "" {
		c.ValidatorsOut = filepath.Join(filepath.Dir(c.Out), "validators.ts")
	}
}

func (c *GenerateConfig) validate() error {
	if c.Input == "" {
		return newUsageError("generate: --input is required (set via flag or config file)")
	}
	if !c.NoValidators && sameFile(c.Out, c.ValidatorsOut) {
		return newUsageError("generate: --out and --validators-out must be distinct paths")
	}
	return nil
}

func sameFile(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return aa == bb
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	logger := newLogger(cfg.Verbose, cfg.Quiet)
	defer logger.Sync() //nolint:errcheck

	// 1) Load the spec (file or http/https URL) with validation and conversion.
	doc, err := genspec.Load(ctx, cfg.Input)
	if err != nil {
		return mapSpecError(err)
	}

	// 2) Resolve references into the intermediate schema model.
	resolved, err := genspec.Resolve(doc)
	if err != nil {
		return mapSpecError(err)
	}

	// 3) Fingerprint the normalized document, not the raw bytes.
	hash, err := genspec.Fingerprint(resolved)
	if err != nil {
		return err
	}
	if cfg.DiffOnly && output.ExistingFingerprint(cfg.Out) == hash {
		logger.Infow("output up to date", "out", cfg.Out, "fingerprint", hash)
		return nil
	}

	// 4) Emit both artifacts before writing either, so a failed emission
	// leaves existing output untouched.
	types, err := tsemitter.Emit(resolved, tsemitter.Options{
		Helpers:     cfg.Helpers,
		Fingerprint: hash,
	})
	if err != nil {
		return err
	}
	var validators string
	if !cfg.NoValidators {
		validators, err = validatoremitter.Emit(resolved, validatoremitter.Options{Fingerprint: hash})
		if err != nil {
			return err
		}
	}

	if cfg.DryRun {
		planned := []string{cfg.Out}
		if !cfg.NoValidators {
			planned = append(planned, cfg.ValidatorsOut)
		}
		printPlan(planned, hash)
		return nil
	}

	if err := output.Write(cfg.Out, []byte(types)); err != nil {
		return wrapOutputError(err, cfg.Out)
	}
	logger.Infow("wrote types", "out", cfg.Out, "components", len(resolved.Components), "routes", len(resolved.Routes))
	if !cfg.NoValidators {
		if err := output.Write(cfg.ValidatorsOut, []byte(validators)); err != nil {
			return wrapOutputError(err, cfg.ValidatorsOut)
		}
		logger.Infow("wrote validators", "out", cfg.ValidatorsOut)
	}
	return nil
}

func mapSpecError(err error) error {
	var se *genspec.SpecError
	if errors.As(err, &se) {
		msg := fmt.Sprintf("spec: %s", se.Message)
		if se.Location != "" {
			msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
		}
		if se.JSONPointer != "" {
			msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
		}
		return newUsageError(msg)
	}
	return err
}

func printPlan(paths []string, fingerprint string) {
	fmt.Fprintf(os.Stdout, "Planned writes (%d files, fingerprint %s):\n", len(paths), fingerprint)
	for _, p := range paths {
		fmt.Fprintf(os.Stdout, "- %s\n", p)
	}
}

func wrapOutputError(err error, out string) error {
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out.", out, msg))
	}
	return err
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		switch normalizeKey(key) {
		case "input":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Input = str
		case "out":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Out = str
		case "validatorsout":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.ValidatorsOut = str
		case "novalidators":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.NoValidators = val
		case "helpers":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Helpers = val
		case "diffonly":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.DiffOnly = val
		case "dryrun":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.DryRun = val
		case "verbose":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Verbose = val
		case "quiet":
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Quiet = val
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
	}

	return nil
}
