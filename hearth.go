// Package hearth is the notification decision core of a kitchen-management
// suite, packaged as an embeddable library.
//
// The host constructs one Engine, registers its presentation sinks (bell
// icon, toast, panel), and calls Notify from anywhere. The engine classifies
// untyped alerts, evaluates per-category delivery policies (thresholds, quiet
// hours, rate caps), keeps a capped priority-ordered history, and persists it
// off the calling path. There is no CLI and no network surface.
package hearth

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"hearth/internal/analytics"
	"hearth/internal/category"
	"hearth/internal/config"
	"hearth/internal/eventbus"
	"hearth/internal/history"
	"hearth/internal/notify"
	"hearth/internal/rules"
	rtsup "hearth/internal/runtime/supervisor"
	"hearth/internal/storage"
	logx "hearth/pkg/logx"
)

// Aliases so hosts only import this package.
type (
	Input    = notify.Input
	Sink     = notify.Sink
	SinkFunc = notify.SinkFunc
	Record   = history.Record
	Filter   = history.Filter
	Summary  = analytics.Summary
	Policy   = rules.Policy
	Patch    = rules.Patch
	Event    = eventbus.Event
)

// Options configures an Engine. The zero value runs fully in-memory with
// console logging defaults.
type Options struct {
	// ConfigPath points at the preferences document (.json, .yaml or .yml).
	// A missing or malformed file falls back to built-in defaults; it is
	// watched for changes while the engine is running.
	ConfigPath string

	// Sinks receive records that pass the gate.
	Sinks []Sink

	// Logger overrides the logger built from the config's logging section.
	Logger logx.Logger
}

// Engine is the explicit context object the host constructs once and passes
// to its collaborators. Safe for concurrent use.
type Engine struct {
	log    logx.Logger
	logSvc *logx.Service
	bus    eventbus.Bus
	cfgm   *config.Manager
	rules  *rules.Store
	store  storage.Store
	svc    *notify.Service

	mu      sync.Mutex
	sup     *rtsup.Supervisor
	cfgCh   chan *config.Config
	started bool
}

// New wires the engine from the preferences document. Configuration problems
// degrade to defaults; the only hard failure is a storage backend that cannot
// initialize.
func New(opts Options) (*Engine, error) {
	var (
		cfgm *config.Manager
		cfg  *config.Config
	)
	boot := logx.NewConsole("info")

	if opts.ConfigPath != "" {
		cfgm = config.NewManager(opts.ConfigPath)
		loaded, err := cfgm.Load()
		switch {
		case err == nil:
			cfg = loaded
		case os.IsNotExist(err):
			boot.Debug("preferences file missing, using defaults", logx.String("path", opts.ConfigPath))
		default:
			boot.Warn("preferences file unreadable, using defaults",
				logx.String("path", opts.ConfigPath), logx.Err(err))
		}
	}
	if cfg == nil {
		cfg = &config.Config{}
		if cfgm != nil {
			cfgm.Commit(cfg)
		}
	}

	e := &Engine{cfgm: cfgm, bus: eventbus.New()}

	if !opts.Logger.IsZero() {
		e.log = opts.Logger
	} else {
		e.logSvc, e.log = logx.New(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
	}
	if cfgm != nil {
		cfgm.SetLogger(e.log.With(logx.String("comp", "config")))
	}

	e.rules = rules.NewStore(cfg.RulesPath, e.log.With(logx.String("comp", "rules")))
	e.rules.Load()
	e.applyRuleOverrides(cfg.Rules)

	if cfg.Storage != nil {
		st, err := openStorage(*cfg.Storage, e.log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		e.store = st
	}

	e.svc = notify.New(
		dispatchConfig(cfg),
		e.rules,
		history.New(cfg.History.Cap),
		e.store,
		e.log.With(logx.String("comp", "notify")),
		e.bus,
	)
	for _, s := range opts.Sinks {
		e.svc.AddSink(s)
	}
	return e, nil
}

// Start brings up the dispatch pipeline and, when a config path is set, the
// hot-reload watcher. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true

	e.svc.Start(ctx)

	if e.cfgm != nil {
		e.sup = rtsup.New(ctx, rtsup.WithLogger(e.log.With(logx.String("comp", "engine"))))
		e.cfgCh = e.cfgm.Subscribe(4)
		sup, ch := e.sup, e.cfgCh
		e.mu.Unlock()

		sup.GoRestart("config.watch", func(c context.Context) error {
			return e.cfgm.Watch(c)
		})
		sup.Go("config.apply", func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case cfg, ok := <-ch:
					if !ok {
						return nil
					}
					e.applyConfig(cfg)
				}
			}
		})
		return
	}
	e.mu.Unlock()
}

// Stop shuts the pipeline down, persisting history, honoring ctx as a
// deadline for the drain.
func (e *Engine) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	sup, ch := e.sup, e.cfgCh
	e.sup, e.cfgCh = nil, nil
	e.mu.Unlock()

	if sup != nil {
		sup.Cancel()
		_ = sup.Wait(ctx)
	}
	if ch != nil {
		e.cfgm.Unsubscribe(ch)
	}

	e.svc.Stop(ctx)

	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if e.logSvc != nil {
		_ = e.logSvc.Close()
	}
}

// Notify runs the decision path for one notification and reports whether it
// passed the gate. The record lands in history either way.
func (e *Engine) Notify(in Input) bool { return e.svc.Notify(in) }

// List returns history records matching the filter, most urgent first.
// Filter category "critical" includes emergency and security.
func (e *Engine) List(f Filter) []Record { return e.svc.List(f) }

// MarkRead marks a record read; unknown ids are a no-op.
func (e *Engine) MarkRead(id int64) bool { return e.svc.MarkRead(id) }

// Clear removes records in a category ("" clears everything).
func (e *Engine) Clear(category string) int { return e.svc.Clear(category) }

// Summary aggregates the current history.
func (e *Engine) Summary() Summary { return e.svc.Summary() }

// Categories lists every registered category name, sorted. Hosts use it to
// enumerate policies for a settings surface.
func (e *Engine) Categories() []string { return category.Names() }

// Policy returns the effective delivery policy for a category.
func (e *Engine) Policy(category string) Policy { return e.rules.Get(category) }

// UpdatePolicy merges patch into a category's policy and persists the result.
func (e *Engine) UpdatePolicy(category string, patch Patch) Policy {
	return e.rules.Update(category, patch)
}

// Events subscribes to the engine's lifecycle events. Call the returned
// function to unsubscribe.
func (e *Engine) Events(buffer int) (<-chan Event, func()) {
	return e.bus.Subscribe(buffer)
}

// applyConfig folds a reloaded preferences document into the running parts.
// Storage and logging sinks are start-time choices; everything else follows
// the file.
func (e *Engine) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if e.logSvc != nil {
		e.logSvc.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
	}
	e.applyRuleOverrides(cfg.Rules)
	e.svc.Apply(dispatchConfig(cfg))
	e.log.Info("preferences reloaded")
}

func (e *Engine) applyRuleOverrides(overrides map[string]config.RuleOverride) {
	for cat, ov := range overrides {
		// Notify normalizes unknown names to the registry fallback, so a
		// policy keyed by an unregistered name could never be consulted.
		if !category.Known(cat) {
			e.log.Warn("rule override for unknown category ignored", logx.String("category", cat))
			continue
		}
		patch, err := toPatch(cat, ov)
		if err != nil {
			e.log.Warn("rule override rejected", logx.String("category", cat), logx.Err(err))
			continue
		}
		e.rules.Override(cat, patch)
	}
}

func toPatch(cat string, ov config.RuleOverride) (rules.Patch, error) {
	p := rules.Patch{
		Enabled:           ov.Enabled,
		PriorityThreshold: ov.PriorityThreshold,
		QuietStart:        ov.QuietStart,
		QuietEnd:          ov.QuietEnd,
		WeekendEnabled:    ov.WeekendEnabled,
		MaxPerHour:        ov.MaxPerHour,
		Sources:           ov.Sources,
		Keywords:          ov.Keywords,
	}
	if ov.Frequency != nil {
		f := rules.Frequency(*ov.Frequency)
		switch f {
		case rules.Immediate, rules.Batched, rules.Digest:
			p.Frequency = &f
		default:
			return rules.Patch{}, fmt.Errorf("rules.%s: unknown frequency %q", cat, *ov.Frequency)
		}
	}
	if d, err := config.ParseDurationField("rules."+cat+".batch_interval", ov.BatchInterval); err != nil {
		return rules.Patch{}, err
	} else if d > 0 {
		p.BatchInterval = &d
	}
	if d, err := config.ParseDurationField("rules."+cat+".escalate_after", ov.EscalateAfter); err != nil {
		return rules.Patch{}, err
	} else if d > 0 {
		p.EscalateAfter = &d
	}
	return p, nil
}

func dispatchConfig(cfg *config.Config) notify.Config {
	out := notify.Config{Enabled: true}
	if d := cfg.Dispatch; d != nil {
		if d.Enabled != nil {
			out.Enabled = *d.Enabled
		}
		out.Workers = d.Workers
		out.QueueSize = d.QueueSize
		out.RatePerSec = d.RatePerSec
		out.DigestCron = d.DigestCron
		if dur, err := config.ParseDurationOrDefault("dispatch.escalation_sweep", d.EscalationSweep, time.Minute); err == nil {
			out.EscalationSweep = dur
		}
	}
	if dur, err := config.ParseDurationOrDefault("history.save_interval", cfg.History.SaveInterval, 30*time.Second); err == nil {
		out.SaveInterval = dur
	}
	return out
}

func openStorage(sc config.StorageConfig, log logx.Logger) (storage.Store, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, log)
}
