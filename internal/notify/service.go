package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"hearth/internal/analytics"
	"hearth/internal/category"
	"hearth/internal/classify"
	"hearth/internal/eventbus"
	"hearth/internal/gate"
	"hearth/internal/history"
	"hearth/internal/rules"
	rtsup "hearth/internal/runtime/supervisor"
	"hearth/internal/storage"
	logx "hearth/pkg/logx"
)

// DefaultSource is recorded when the caller omits a source.
const DefaultSource = "System"

// Service is the notification entry point: it classifies, evaluates the
// per-category policy, records the outcome in history, and forwards allowed
// records to sinks through an async worker pool.
//
// The decision path of Notify is synchronous and in-memory; disk and sink I/O
// happen on background goroutines so callers are never blocked on them.
// Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	rules *rules.Store
	gate  *gate.Gate
	hist  *history.Store
	stats *analytics.Aggregator

	sinks []Sink

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan history.Record
	sup       *rtsup.Supervisor
	cron      *cron.Cron
	stopDone  chan struct{} // non-nil while stopping
	loaded    bool

	// pending holds gate-allowed records waiting for a batch or digest flush.
	pendMu  sync.Mutex
	pending []pendingItem

	idMu   sync.Mutex
	lastID int64

	// saveFailed keeps the periodic save retrying after a write error even
	// when the history has not changed since.
	saveFailed atomic.Bool
}

type pendingItem struct {
	id  int64
	cat string
	// due is when a batched item becomes flushable; zero means the item
	// waits for the daily digest.
	due time.Time
}

func New(cfg Config, rs *rules.Store, hist *history.Store, store storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		bus:   bus,
		store: store,
		rules: rs,
		gate:  gate.New(rs),
		hist:  hist,
		stats: analytics.New(hist),
	}
	s.applyLocked(cfg)
	return s
}

// AddSink registers a presentation sink. Call before Start.
func (s *Service) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = 30 * time.Second
	}
	if cfg.DigestCron == "" {
		cfg.DigestCron = "0 9 * * *"
	}
	if cfg.EscalationSweep <= 0 {
		cfg.EscalationSweep = time.Minute
	}
	s.cfg = cfg
	// Burst = rate per sec so short spikes don't stall the workers.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start brings up the worker pool and the scheduled jobs, and loads persisted
// history on first start. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	// Persisted history comes back on the first Start, dispatch or not.
	if !s.loaded {
		s.loaded = true
		s.mu.Unlock()
		s.loadHistory(ctx)
		s.mu.Lock()
	}

	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan history.Record, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notify"))),
		// A broken sink or a failed save must never take down the host.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue

	cr := cron.New()
	s.scheduleJobs(cr, sup.Context())
	s.cron = cr
	s.mu.Unlock()

	cr.Start()

	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("worker.%d", i)
		sup.GoRestart(name, func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return ErrStopped
		})
	}
}

// Stop blocks new intake, drains the queue best-effort until ctx deadline,
// and performs a final history save.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	cr := s.cron
	if q == nil {
		s.mu.Unlock()
		// No pipeline running, but Notify may still have changed history.
		s.saveHistory(ctx, false)
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without
	// leaking state.
	go func() {
		defer close(done)
		if cr != nil {
			<-cr.Stop().Done()
		}
		// Wait for in-flight Notify calls, then close the queue so workers drain.
		s.sendWG.Wait()
		func() {
			defer func() { _ = recover() }()
			close(q)
		}()
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.saveHistory(context.Background(), true)

		s.mu.Lock()
		s.queue = nil
		s.cron = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify runs the decision path for one candidate notification and reports
// whether it passed the gate. The record lands in history either way.
func (s *Service) Notify(in Input) bool {
	now := time.Now()

	source := in.Source
	if source == "" {
		source = DefaultSource
	}
	// The classifier only runs when the caller omitted the category. An
	// explicit but unknown name resolves to the generic fallback instead of
	// being second-guessed from the text.
	cat := in.Category
	if cat == "" {
		cat = classify.Classify(in.Title, in.Message)
	} else if !category.Known(cat) {
		s.log.Debug("unknown category, using fallback",
			logx.String("category", cat), logx.String("title", in.Title))
	}
	desc := category.Resolve(cat)
	cat = desc.Name
	prio := in.Priority
	if prio <= 0 {
		prio = desc.Weight
	}

	verdict, reason := s.gate.ShouldSend(gate.Request{
		Category: cat,
		Priority: prio,
		Source:   source,
		Text:     strings.ToLower(in.Title + " " + in.Message),
		Now:      now,
	})

	pol := s.rules.Get(cat)
	allowed := verdict == gate.Allow

	rec := history.Record{
		ID:        s.nextID(now),
		Title:     in.Title,
		Message:   in.Message,
		Category:  cat,
		Priority:  prio,
		Source:    source,
		Timestamp: now,
		Delivered: allowed && pol.Frequency == rules.Immediate,
		Icon:      desc.Icon,
		Color:     desc.Color,
		Metadata:  cloneMetadata(in.Metadata),
	}

	evicted := s.hist.Append(rec)
	for _, ev := range evicted {
		s.publish(eventbus.TypeEvicted, RecordEvent{ID: ev.ID, Category: ev.Category, Priority: ev.Priority, At: now})
	}

	if !allowed {
		s.log.Debug("notification suppressed",
			logx.Int64("id", rec.ID),
			logx.String("category", cat),
			logx.Int("priority", prio),
			logx.String("reason", reason))
		s.publish(eventbus.TypeSuppressed, RecordEvent{ID: rec.ID, Category: cat, Priority: prio, Source: source, Reason: reason, At: now})
		return false
	}

	switch pol.Frequency {
	case rules.Batched:
		s.addPending(pendingItem{id: rec.ID, cat: cat, due: now.Add(pol.BatchInterval)})
		s.publish(eventbus.TypeBatched, RecordEvent{ID: rec.ID, Category: cat, Priority: prio, Source: source, At: now})
	case rules.Digest:
		s.addPending(pendingItem{id: rec.ID, cat: cat})
		s.publish(eventbus.TypeBatched, RecordEvent{ID: rec.ID, Category: cat, Priority: prio, Source: source, At: now})
	default:
		s.enqueue(rec)
	}
	return true
}

// List returns history records matching the filter, most urgent first.
func (s *Service) List(f history.Filter) []history.Record {
	return s.hist.List(f)
}

// MarkRead marks a record read. Unknown ids are a no-op (callers race with
// eviction).
func (s *Service) MarkRead(id int64) bool {
	changed := s.hist.MarkRead(id)
	if changed {
		s.publish(eventbus.TypeRead, RecordEvent{ID: id, At: time.Now()})
	}
	return changed
}

// Clear removes all records in a category ("" clears everything) and returns
// how many were removed.
func (s *Service) Clear(cat string) int {
	n := s.hist.Clear(cat)
	if n > 0 {
		s.dropPending(cat)
	}
	return n
}

// Summary aggregates the current history contents.
func (s *Service) Summary() analytics.Summary {
	return s.stats.Summary()
}

// Supervisor exposes the dispatch supervisor for operational visibility
// (nil when not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// nextID issues wall-clock-millisecond ids with a monotonic guard, so bursts
// faster than 1/ms still get unique, increasing ids.
func (s *Service) nextID(now time.Time) int64 {
	ms := now.UnixMilli()
	s.idMu.Lock()
	if ms <= s.lastID {
		ms = s.lastID + 1
	}
	s.lastID = ms
	s.idMu.Unlock()
	return ms
}

func (s *Service) publish(typ string, data RecordEvent) {
	if s.bus == nil {
		return
	}
	if data.At.IsZero() {
		data.At = time.Now()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: data.At, Data: data})
}

func cloneMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
