package notify

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"hearth/internal/eventbus"
	"hearth/internal/history"
	logx "hearth/pkg/logx"
)

// scheduleJobs registers the background schedules. Called under s.mu.
func (s *Service) scheduleJobs(cr *cron.Cron, ctx context.Context) {
	cfg := s.cfg

	_, _ = cr.AddFunc("@every "+cfg.SaveInterval.String(), func() { s.saveHistory(ctx, false) })
	_, _ = cr.AddFunc("@every 30s", func() { s.flushBatches(time.Now()) })
	_, _ = cr.AddFunc("@every "+cfg.EscalationSweep.String(), func() { s.escalationSweep(time.Now()) })
	_, _ = cr.AddFunc("@every 1h", func() { s.gate.Prune(time.Now()) })

	if _, err := cr.AddFunc(cfg.DigestCron, func() { s.flushDigest(time.Now()) }); err != nil {
		s.log.Warn("invalid digest cron spec, using default",
			logx.String("spec", cfg.DigestCron), logx.Err(err))
		_, _ = cr.AddFunc("0 9 * * *", func() { s.flushDigest(time.Now()) })
	}
}

// enqueue hands a record to the worker pool without blocking the caller.
// With no running pipeline the record is already in history; only the sink
// forward is skipped.
func (s *Service) enqueue(rec history.Record) {
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- rec:
	default:
		s.log.Warn("dispatch queue full, sink forward dropped",
			logx.Int64("id", rec.ID), logx.String("category", rec.Category))
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan history.Record) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-q:
			if !ok {
				return
			}
			s.forward(ctx, rec)
		}
	}
}

// forward pushes one record to every sink, rate-limited. Sink errors are
// logged and swallowed.
func (s *Service) forward(ctx context.Context, rec history.Record) {
	s.mu.Lock()
	lim := s.limiter
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	for _, sink := range sinks {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := sink.Deliver(cctx, rec)
		cancel()
		if err != nil {
			s.log.Warn("sink delivery failed",
				logx.Int64("id", rec.ID),
				logx.String("category", rec.Category),
				logx.Err(err))
		}
	}

	s.publish(eventbus.TypeDelivered, RecordEvent{
		ID: rec.ID, Category: rec.Category, Priority: rec.Priority, Source: rec.Source,
	})
}

func (s *Service) loadHistory(ctx context.Context) {
	if s.store == nil {
		return
	}
	recs, _, err := s.store.LoadHistory(ctx)
	if err != nil {
		s.log.Warn("history load failed, starting empty", logx.Err(err))
		return
	}
	maxID := s.hist.Seed(recs)
	s.idMu.Lock()
	if maxID > s.lastID {
		s.lastID = maxID
	}
	s.idMu.Unlock()
	if len(recs) > 0 {
		s.log.Info("history loaded", logx.Int("records", len(recs)))
	}
}

// saveHistory persists the history wholesale. Write failures are logged and
// retried on the next cycle; force saves unconditionally (shutdown path).
func (s *Service) saveHistory(ctx context.Context, force bool) {
	if s.store == nil {
		return
	}
	if !force && !s.hist.Dirty() && !s.saveFailed.Load() {
		return
	}
	recs := s.hist.Snapshot()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := s.store.SaveHistory(cctx, recs)
	cancel()
	if err != nil {
		s.saveFailed.Store(true)
		s.log.Warn("history save failed", logx.Int("records", len(recs)), logx.Err(err))
		return
	}
	s.saveFailed.Store(false)
	s.publish(eventbus.TypeHistorySaved, RecordEvent{Count: len(recs)})
}

func (s *Service) addPending(item pendingItem) {
	s.pendMu.Lock()
	s.pending = append(s.pending, item)
	s.pendMu.Unlock()
}

// dropPending discards held items for a category ("" drops all), after a
// Clear removed their records.
func (s *Service) dropPending(cat string) {
	s.pendMu.Lock()
	if cat == "" {
		s.pending = nil
	} else {
		kept := s.pending[:0]
		for _, it := range s.pending {
			if it.cat != cat {
				kept = append(kept, it)
			}
		}
		s.pending = kept
	}
	s.pendMu.Unlock()
}

// takePending removes and returns the held items selected by pick.
func (s *Service) takePending(pick func(pendingItem) bool) []pendingItem {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	var taken []pendingItem
	kept := s.pending[:0]
	for _, it := range s.pending {
		if pick(it) {
			taken = append(taken, it)
		} else {
			kept = append(kept, it)
		}
	}
	s.pending = kept
	return taken
}

func (s *Service) pendingIDs() map[int64]bool {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	ids := make(map[int64]bool, len(s.pending))
	for _, it := range s.pending {
		ids[it.id] = true
	}
	return ids
}

// flushBatches forwards held batched items whose interval elapsed.
func (s *Service) flushBatches(now time.Time) {
	due := s.takePending(func(it pendingItem) bool {
		return !it.due.IsZero() && !it.due.After(now)
	})
	if len(due) == 0 {
		return
	}

	perCat := map[string]int{}
	for _, it := range due {
		if s.releasePending(it.id) {
			perCat[it.cat]++
		}
	}
	for cat, n := range perCat {
		s.publish(eventbus.TypeBatchFlushed, RecordEvent{Category: cat, Count: n, At: now})
	}
}

// flushDigest forwards everything held for the daily digest.
func (s *Service) flushDigest(now time.Time) {
	held := s.takePending(func(it pendingItem) bool { return it.due.IsZero() })
	if len(held) == 0 {
		return
	}
	n := 0
	for _, it := range held {
		if s.releasePending(it.id) {
			n++
		}
	}
	if n > 0 {
		s.publish(eventbus.TypeDigestFlush, RecordEvent{Count: n, At: now})
	}
}

// releasePending marks one held record delivered and forwards it. Records
// evicted or cleared while held are skipped.
func (s *Service) releasePending(id int64) bool {
	rec, ok := s.hist.Get(id)
	if !ok {
		return false
	}
	if !s.hist.MarkDelivered(id) {
		return false
	}
	rec.Delivered = true
	s.enqueue(rec)
	return true
}

// escalationSweep forwards undelivered, unread records whose category policy
// sets an escalation delay that has elapsed. Items still held for a batch or
// digest flush are left alone.
func (s *Service) escalationSweep(now time.Time) {
	held := s.pendingIDs()
	for _, rec := range s.hist.List(history.Filter{}) {
		if rec.Delivered || rec.Read || held[rec.ID] {
			continue
		}
		pol := s.rules.Get(rec.Category)
		if pol.EscalateAfter <= 0 || now.Sub(rec.Timestamp) < pol.EscalateAfter {
			continue
		}
		if !s.hist.MarkDelivered(rec.ID) {
			continue
		}
		rec.Delivered = true
		s.enqueue(rec)
		s.publish(eventbus.TypeEscalated, RecordEvent{
			ID: rec.ID, Category: rec.Category, Priority: rec.Priority, Source: rec.Source, At: now,
		})
		s.log.Info("notification escalated",
			logx.Int64("id", rec.ID),
			logx.String("category", rec.Category),
			logx.Duration("age", now.Sub(rec.Timestamp)))
	}
}
