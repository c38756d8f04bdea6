package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/swagger2ts/internal/watch"
)

// WatchConfig captures all inputs that influence the watch command after
// merging defaults, config file values, and CLI overrides.
type WatchConfig struct {
	Inputs        []string
	Out           string // single-input only
	ValidatorsOut string // single-input only
	OutDir        string // used to derive paths for multiple inputs
	NoValidators  bool
	Helpers       bool
	DiffOnly      bool
	Interval      time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	MaxFailures   int
	Verbose       bool
	Quiet         bool
	ConfigPath    string
}

func defaultWatchConfig() WatchConfig {
	return WatchConfig{
		OutDir:      ".",
		DiffOnly:    true,
		Interval:    30 * time.Second,
		BackoffBase: time.Second,
		BackoffCap:  time.Minute,
		MaxFailures: 8,
	}
}

var watchRunner = runWatch

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch one or more documents and regenerate on change",
		Long: "Watch OpenAPI/Swagger documents (files or URLs) and regenerate the TypeScript " +
			"artifacts whenever the normalized content changes. Retrieval failures retry with " +
			"capped exponential backoff; the session keeps running until interrupted.",
		Example: strings.TrimSpace(`  swagger2ts watch --input spec.yaml --out api/types.ts
  swagger2ts watch --input a.yaml --input https://example.com/b.json --out-dir gen`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveWatchConfig(cmd)
			if err != nil {
				return err
			}
			return watchRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("input", nil, "Path or URL to watch (repeatable)")
	flags.String("out", "", "Output path for the type declarations (single --input only)")
	flags.String("validators-out", "", "Output path for the validators (single --input only)")
	flags.String("out-dir", "", "Directory for derived output paths (default .)")
	flags.Bool("no-validators", false, "Skip validator generation")
	flags.Bool("helpers", false, "Emit the RequestOf/ResponseOf extraction helper types")
	flags.Bool("diff-only", true, "Regenerate only when the content fingerprint changes")
	flags.Duration("interval", 30*time.Second, "Poll interval for URL sources")
	flags.Duration("backoff-base", time.Second, "Base delay for retrieval retry backoff")
	flags.Duration("backoff-cap", time.Minute, "Maximum delay for retrieval retry backoff")
	flags.Int("max-failures", 8, "Consecutive failures before health is reported degraded")

	return cmd
}

func resolveWatchConfig(cmd *cobra.Command) (*WatchConfig, error) {
	cfg := defaultWatchConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyWatchConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyWatchFlagOverrides(cmd, &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyWatchFlagOverrides(cmd *cobra.Command, cfg *WatchConfig) error {
	flags := cmd.Flags()
	if flags.Changed("input") {
		value, err := flags.GetStringSlice("input")
		if err != nil {
			return err
		}
		cfg.Inputs = value
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
	if flags.Changed("out-dir") {
		value, err := flags.GetString("out-dir")
		if err != nil {
			return err
		}
		cfg.OutDir = strings.TrimSpace(value)
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
	if flags.Changed("interval") {
		value, err := flags.GetDuration("interval")
		if err != nil {
			return err
		}
		cfg.Interval = value
	}
	if flags.Changed("backoff-base") {
		value, err := flags.GetDuration("backoff-base")
		if err != nil {
			return err
		}
		cfg.BackoffBase = value
	}
	if flags.Changed("backoff-cap") {
		value, err := flags.GetDuration("backoff-cap")
		if err != nil {
			return err
		}
		cfg.BackoffCap = value
	}
	if flags.Changed("max-failures") {
		value, err := flags.GetInt("max-failures")
		if err != nil {
			return err
		}
		cfg.MaxFailures = value
	}
	return applyGlobalFlagOverrides(cmd.Flags(), &cfg.Verbose, &cfg.Quiet)
}

func (c *WatchConfig) normalize() {
	inputs := make([]string, 0, len(c.Inputs))
	for _, in := range c.Inputs {
		if trimmed := strings.TrimSpace(in); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}
	c.Inputs = inputs
	if c.OutDir == "" {
		c.OutDir = "."
	}
}

func (c *WatchConfig) validate() error {
	if len(c.Inputs) == 0 {
		return newUsageError("watch: at least one --input is required (set via flag or config file)")
	}
	if len(c.Inputs) > 1 && (c.Out != "" || c.ValidatorsOut != "") {
		return newUsageError("watch: --out/--validators-out apply to a single --input; use --out-dir for multiple inputs")
	}
	if c.BackoffCap < c.BackoffBase {
		return newUsageError("watch: --backoff-cap must be at least --backoff-base")
	}
	return nil
}

// controllerConfigs expands the watch config into one controller config per
// input and rejects output-path collisions: each output file is owned by
// exactly one source for the session's lifetime.
func controllerConfigs(cfg *WatchConfig) ([]watch.Config, error) {
	owned := map[string]string{} // output path → input that owns it
	claim := func(path, input string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if owner, ok := owned[abs]; ok {
			return newUsageError(fmt.Sprintf("watch: output %s claimed by both %s and %s", path, owner, input))
		}
		owned[abs] = input
		return nil
	}

	configs := make([]watch.Config, 0, len(cfg.Inputs))
	for _, input := range cfg.Inputs {
		out := cfg.Out
		validatorsOut := cfg.ValidatorsOut
		if out == "" {
			out = filepath.Join(cfg.OutDir, deriveStem(input)+".types.ts")
		}
		if validatorsOut == "" {
			if cfg.Out != "" {
				validatorsOut = filepath.Join(filepath.Dir(cfg.Out), "validators.ts")
			} else {
				validatorsOut = filepath.Join(cfg.OutDir, deriveStem(input)+".validators.ts")
			}
		}
		if err := claim(out, input); err != nil {
			return nil, err
		}
		if !cfg.NoValidators {
			if err := claim(validatorsOut, input); err != nil {
				return nil, err
			}
		}
		configs = append(configs, watch.Config{
			Input:            input,
			OutPath:          out,
			ValidatorOutPath: validatorsOut,
			EmitValidators:   !cfg.NoValidators,
			EmitHelpers:      cfg.Helpers,
			DiffOnly:         cfg.DiffOnly,
			Interval:         cfg.Interval,
			BackoffBase:      cfg.BackoffBase,
			BackoffCap:       cfg.BackoffCap,
			MaxFailures:      cfg.MaxFailures,
		})
	}
	return configs, nil
}

// deriveStem turns an input path or URL into a filename stem.
func deriveStem(input string) string {
	base := filepath.Base(strings.TrimSuffix(input, "/"))
	if idx := strings.Index(base, "?"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	stem := strings.Trim(b.String(), "-")
	if stem == "" {
		return "api"
	}
	return stem
}

func runWatch(ctx context.Context, cfg *WatchConfig) error {
	logger := newLogger(cfg.Verbose, cfg.Quiet)
	defer logger.Sync() //nolint:errcheck

	configs, err := controllerConfigs(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One controller per source, fully independent of the others.
	var wg sync.WaitGroup
	for _, cc := range configs {
		cc := cc
		ctrl := watch.New(cc, logger)
		logger.Infow("watching", "input", cc.Input, "out", cc.OutPath)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Errorw("watch session ended", "input", cc.Input, "error", err)
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	logger.Info("watch session stopped")
	return nil
}

func applyWatchConfigFromFile(cfg *WatchConfig, path string) error {
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
		case "input", "inputs":
			list, err := valueAsStringSlice(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.Inputs = list
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
		case "outdir":
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			cfg.OutDir = str
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
		case "interval":
			d, err := valueAsDuration(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			if d > 0 {
				cfg.Interval = d
			}
		case "backoffbase":
			d, err := valueAsDuration(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			if d > 0 {
				cfg.BackoffBase = d
			}
		case "backoffcap":
			d, err := valueAsDuration(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			if d > 0 {
				cfg.BackoffCap = d
			}
		case "maxfailures":
			n, err := valueAsInt(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			if n > 0 {
				cfg.MaxFailures = n
			}
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
