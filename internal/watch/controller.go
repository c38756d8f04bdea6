// Package watch implements the change-driven regeneration controller: one
// state machine per watched source that decides when re-emission must occur
// and how to recover from failures without corrupting previously generated
// output.
package watch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mark3labs/swagger2ts/internal/emitter/tsemitter"
	"github.com/mark3labs/swagger2ts/internal/emitter/validatoremitter"
	"github.com/mark3labs/swagger2ts/internal/output"
	genspec "github.com/mark3labs/swagger2ts/internal/spec"
)

// State is one position in the per-source regeneration state machine.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateGenerating State = "generating"
	StateBackoff    State = "backoff"
)

// Outcome classifies a finished generation cycle.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeGenerated Outcome = "generated"
	OutcomeFailed    Outcome = "failed"
)

// Snapshot is the controller's memory of the last successfully emitted
// state. It is replaced atomically on each successful generation and is the
// only state that outlives a cycle.
type Snapshot struct {
	Hash       string
	AcceptedAt time.Time
}

// Config configures one controller. Each watched source gets its own
// Config and its own Controller; sources share nothing but the process.
type Config struct {
	// Input is a filesystem path or an http/https URL.
	Input string
	// OutPath receives the type declarations.
	OutPath string
	// ValidatorOutPath receives the validators when EmitValidators is set.
	ValidatorOutPath string
	EmitValidators   bool
	EmitHelpers      bool
	// DiffOnly skips emission when the content fingerprint matches the
	// last accepted snapshot (seeded from the output file's header on the
	// first cycle).
	DiffOnly bool
	// Interval is the poll period for URL sources; file sources poll too
	// when it is set, as a safety net beside the file watcher.
	Interval time.Duration
	// BackoffBase and BackoffCap bound the retry delay: the delay after n
	// consecutive retrieval failures is min(base<<n, cap) plus jitter.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// JitterFactor bounds the random jitter added to each delay, as a
	// fraction of the delay.
	JitterFactor float64
	// MaxFailures is the consecutive-failure count past which the
	// controller logs a degraded-health warning. It keeps retrying at the
	// capped interval indefinitely either way.
	MaxFailures int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Interval <= 0 {
		out.Interval = 30 * time.Second
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = time.Second
	}
	if out.BackoffCap <= 0 {
		out.BackoffCap = time.Minute
	}
	if out.JitterFactor <= 0 {
		out.JitterFactor = 0.2
	}
	if out.MaxFailures <= 0 {
		out.MaxFailures = 8
	}
	return out
}

// Controller owns the regeneration state machine for one source. Triggers
// arriving while a cycle is in flight are coalesced latest-wins, so at most
// one cycle runs at a time.
type Controller struct {
	cfg    Config
	logger *zap.SugaredLogger

	trigger chan struct{}

	mu       sync.Mutex
	state    State
	snapshot *Snapshot
	failures int

	// fetch and write are seams for tests; production wiring loads via
	// the spec loader and writes via the output package.
	fetch func(ctx context.Context) (*genspec.Document, error)
	write func(path string, content []byte) error
}

// New builds a controller for one source.
func New(cfg Config, logger *zap.SugaredLogger) *Controller {
	c := &Controller{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		trigger: make(chan struct{}, 1),
		state:   StateIdle,
	}
	c.fetch = func(ctx context.Context) (*genspec.Document, error) {
		doc, err := genspec.Load(ctx, c.cfg.Input)
		if err != nil {
			return nil, err
		}
		return genspec.Resolve(doc)
	}
	c.write = output.Write
	return c
}

// State returns the current machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastSnapshot returns a copy of the last accepted snapshot, if any.
func (c *Controller) LastSnapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	snap := *c.snapshot
	return &snap
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Notify requests a regeneration cycle. Requests arriving while a cycle is
// in flight collapse into a single pending trigger (latest wins).
func (c *Controller) Notify() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run watches the source and regenerates on change until ctx is cancelled.
// It has no natural terminal state; stopping the context halts any pending
// backoff wait and the source subscription.
func (c *Controller) Run(ctx context.Context) error {
	stop, err := c.startSource(ctx)
	if err != nil {
		return errors.Wrapf(err, "watch %s", c.cfg.Input)
	}
	defer stop()

	// Seed the diff gate from a previous run's output so restarting the
	// session does not rewrite identical artifacts.
	if c.cfg.DiffOnly {
		if fp := output.ExistingFingerprint(c.cfg.OutPath); fp != "" {
			c.mu.Lock()
			c.snapshot = &Snapshot{Hash: fp}
			c.mu.Unlock()
		}
	}

	c.Notify() // initial generation

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.trigger:
			c.cycleWithRetry(ctx)
		}
	}
}

// cycleWithRetry runs one cycle and, on retrievable failures, loops through
// Backoff → Fetching until retrieval succeeds or ctx is cancelled.
func (c *Controller) cycleWithRetry(ctx context.Context) {
	for {
		outcome, err := c.RunCycle(ctx)
		if outcome != OutcomeFailed || err == nil {
			return
		}
		if !genspec.IsRetrievable(err) {
			// Malformed document: retrying an unchanged input cannot
			// succeed. Report and wait for the next change signal.
			c.logger.Errorw("generation failed",
				"input", c.cfg.Input,
				"error", err)
			c.setState(StateIdle)
			return
		}

		c.mu.Lock()
		c.failures++
		n := c.failures
		c.mu.Unlock()

		delay := c.backoffDelay(n)
		if n > c.cfg.MaxFailures {
			c.logger.Warnw("source unreachable, health degraded",
				"input", c.cfg.Input,
				"consecutive_failures", n,
				"retry_in", delay)
		} else {
			c.logger.Warnw("retrieval failed, backing off",
				"input", c.cfg.Input,
				"consecutive_failures", n,
				"retry_in", delay,
				"error", err)
		}

		c.setState(StateBackoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// RunCycle executes one fetch → compare → generate pass and reports how it
// ended. Retrieval failures come back as OutcomeFailed with the underlying
// error; the caller owns retry policy.
func (c *Controller) RunCycle(ctx context.Context) (Outcome, error) {
	c.setState(StateFetching)
	doc, err := c.fetch(ctx)
	if err != nil {
		return OutcomeFailed, err
	}

	// Successful retrieval resets the failure streak even if emission
	// later fails.
	c.mu.Lock()
	c.failures = 0
	snapshot := c.snapshot
	c.mu.Unlock()

	hash, err := genspec.Fingerprint(doc)
	if err != nil {
		c.setState(StateIdle)
		return OutcomeFailed, err
	}

	if snapshot != nil && snapshot.Hash == hash {
		c.logger.Debugw("source unchanged", "input", c.cfg.Input, "fingerprint", hash)
		c.setState(StateIdle)
		return OutcomeUnchanged, nil
	}

	c.setState(StateGenerating)
	types, err := tsemitter.Emit(doc, tsemitter.Options{
		Helpers:     c.cfg.EmitHelpers,
		Fingerprint: hash,
	})
	if err != nil {
		// Emission failure: previous output stays untouched.
		c.setState(StateIdle)
		return OutcomeFailed, err
	}
	var validators string
	if c.cfg.EmitValidators {
		validators, err = validatoremitter.Emit(doc, validatoremitter.Options{Fingerprint: hash})
		if err != nil {
			c.setState(StateIdle)
			return OutcomeFailed, err
		}
	}

	if err := c.write(c.cfg.OutPath, []byte(types)); err != nil {
		// Snapshot stays as-is so the next cycle retries the write.
		c.logger.Errorw("write failed", "path", c.cfg.OutPath, "error", err)
		c.setState(StateIdle)
		return OutcomeFailed, errors.Wrap(err, "persist types")
	}
	if c.cfg.EmitValidators {
		if err := c.write(c.cfg.ValidatorOutPath, []byte(validators)); err != nil {
			c.logger.Errorw("write failed", "path", c.cfg.ValidatorOutPath, "error", err)
			c.setState(StateIdle)
			return OutcomeFailed, errors.Wrap(err, "persist validators")
		}
	}

	c.mu.Lock()
	c.snapshot = &Snapshot{Hash: hash, AcceptedAt: time.Now()}
	c.mu.Unlock()

	c.logger.Infow("generated",
		"input", c.cfg.Input,
		"out", c.cfg.OutPath,
		"fingerprint", hash)
	c.setState(StateIdle)
	return OutcomeGenerated, nil
}

// backoffDelay computes the wait before retry n (1-based): exponential in n,
// capped, plus bounded random jitter.
func (c *Controller) backoffDelay(n int) time.Duration {
	delay := c.cfg.BackoffBase
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= c.cfg.BackoffCap {
			delay = c.cfg.BackoffCap
			break
		}
	}
	if delay > c.cfg.BackoffCap {
		delay = c.cfg.BackoffCap
	}
	jitter := time.Duration(rand.Float64() * c.cfg.JitterFactor * float64(delay))
	return delay + jitter
}
