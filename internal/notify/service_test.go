package notify

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hearth/internal/eventbus"
	"hearth/internal/history"
	"hearth/internal/rules"
	"hearth/internal/storage"
	logx "hearth/pkg/logx"
)

func newService(t *testing.T, cfg Config, st storage.Store) (*Service, *rules.Store, eventbus.Bus) {
	t.Helper()
	rs := rules.NewStore("", logx.Nop())
	bus := eventbus.New()
	svc := New(cfg, rs, history.New(0), st, logx.Nop(), bus)
	return svc, rs, bus
}

func testConfig() Config {
	return Config{
		Enabled:         true,
		Workers:         1,
		RatePerSec:      100,
		SaveInterval:    time.Hour,
		EscalationSweep: time.Hour,
	}
}

func recvRecord(t *testing.T, ch <-chan history.Record) history.Record {
	t.Helper()
	select {
	case rec := <-ch:
		return rec
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for sink delivery")
		return history.Record{}
	}
}

func TestNotifyClassifiesAndSuppressesBelowThreshold(t *testing.T) {
	svc, _, _ := newService(t, Config{}, nil)

	delivered := svc.Notify(Input{
		Title:   "Oven Alert",
		Message: "Oven 1 overheating",
		Source:  "Sensor1",
	})
	if delivered {
		t.Fatal("info-classified notification should not pass the default threshold")
	}

	got := svc.List(history.Filter{})
	if len(got) != 1 {
		t.Fatalf("history len = %d, want 1", len(got))
	}
	rec := got[0]
	if rec.Category != "info" {
		t.Fatalf("category = %q, want info", rec.Category)
	}
	if rec.Priority != 13 {
		t.Fatalf("priority = %d, want the info weight 13", rec.Priority)
	}
	if rec.Delivered {
		t.Fatal("suppressed record must stay undelivered")
	}
	if rec.Source != "Sensor1" {
		t.Fatalf("source = %q", rec.Source)
	}
}

func TestNotifyFillsDefaults(t *testing.T) {
	svc, _, _ := newService(t, Config{}, nil)

	delivered := svc.Notify(Input{
		Title:    "note",
		Message:  "nothing that matches a keyword group",
		Category: "definitely-not-a-category",
		Priority: 3,
	})
	if !delivered {
		t.Fatal("priority 3 is under the default threshold; expected delivery")
	}

	rec := svc.List(history.Filter{})[0]
	if rec.Category != "info" {
		t.Fatalf("unknown category should fall back to info, got %q", rec.Category)
	}
	if rec.Priority != 3 {
		t.Fatalf("explicit priority must be kept, got %d", rec.Priority)
	}
	if rec.Source != DefaultSource {
		t.Fatalf("source = %q, want %q", rec.Source, DefaultSource)
	}
	if !rec.Delivered {
		t.Fatal("allowed immediate record should be marked delivered")
	}
}

func TestNotifyUnknownCategoryIsNotReclassified(t *testing.T) {
	svc, _, _ := newService(t, Config{}, nil)

	// The message mentions "error", but the caller named a category; a name
	// the registry doesn't know resolves to the generic fallback rather than
	// running the keyword classifier.
	svc.Notify(Input{
		Title:    "Disk",
		Message:  "disk write error on node 3",
		Category: "bogus-category",
	})

	rec := svc.List(history.Filter{})[0]
	if rec.Category != "info" {
		t.Fatalf("category = %q, want the generic fallback info", rec.Category)
	}
	if rec.Priority != 13 {
		t.Fatalf("priority = %d, want the info weight 13", rec.Priority)
	}

	// Omitting the category entirely still classifies from the text.
	svc.Notify(Input{Title: "Disk", Message: "disk write error on node 3"})
	recs := svc.List(history.Filter{Category: "error"})
	if len(recs) != 1 {
		t.Fatalf("classified records = %d, want 1", len(recs))
	}
}

func TestNotifyForwardsToSink(t *testing.T) {
	svc, _, _ := newService(t, testConfig(), nil)
	got := make(chan history.Record, 1)
	svc.AddSink(SinkFunc(func(_ context.Context, rec history.Record) error {
		got <- rec
		return nil
	}))

	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if !svc.Notify(Input{Title: "Fire", Message: "evacuate now", Category: "emergency", Source: "Sensor2"}) {
		t.Fatal("emergency should always pass the gate")
	}
	rec := recvRecord(t, got)
	if rec.Category != "emergency" || rec.Priority != 1 {
		t.Fatalf("sink got %+v", rec)
	}
}

func TestMarkReadIsIdempotentAndTolerant(t *testing.T) {
	svc, _, _ := newService(t, Config{}, nil)
	svc.Notify(Input{Title: "x", Message: "y", Category: "warning"})
	id := svc.List(history.Filter{})[0].ID

	if !svc.MarkRead(id) {
		t.Fatal("first MarkRead should report a change")
	}
	if svc.MarkRead(id) {
		t.Fatal("second MarkRead should be a no-op")
	}
	if svc.MarkRead(id + 9999) {
		t.Fatal("unknown id must be a silent no-op")
	}
}

func TestClearByCategory(t *testing.T) {
	svc, _, _ := newService(t, Config{}, nil)
	svc.Notify(Input{Title: "a", Message: "m", Category: "emergency"})
	svc.Notify(Input{Title: "b", Message: "m", Category: "emergency"})
	svc.Notify(Input{Title: "c", Message: "m", Category: "warning"})

	if n := svc.Clear("emergency"); n != 2 {
		t.Fatalf("Clear(emergency) = %d, want 2", n)
	}
	if left := svc.List(history.Filter{}); len(left) != 1 || left[0].Category != "warning" {
		t.Fatalf("unexpected leftovers: %+v", left)
	}
	if n := svc.Clear(""); n != 1 {
		t.Fatalf("Clear(all) = %d, want 1", n)
	}
}

func TestSummaryCounts(t *testing.T) {
	svc, _, _ := newService(t, Config{}, nil)
	svc.Notify(Input{Title: "a", Message: "m", Category: "emergency"})
	svc.Notify(Input{Title: "b", Message: "m", Category: "emergency"})
	svc.Notify(Input{Title: "c", Message: "m", Category: "info"}) // weight 13 > threshold

	sum := svc.Summary()
	if sum.Total != 3 || sum.DeliveredCount != 2 || sum.QueuedCount != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.MostActive != "emergency" {
		t.Fatalf("most active = %q", sum.MostActive)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	open := func() storage.Store {
		st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("open storage: %v", err)
		}
		return st
	}

	svc, _, _ := newService(t, testConfig(), open())
	svc.Start(context.Background())
	svc.Notify(Input{Title: "Fryer", Message: "temp spike", Category: "critical", Source: "Sensor9"})
	want := svc.List(history.Filter{})
	svc.Stop(context.Background())

	svc2, _, _ := newService(t, testConfig(), open())
	svc2.Start(context.Background())
	defer svc2.Stop(context.Background())

	got := svc2.List(history.Filter{})
	if len(got) != 1 {
		t.Fatalf("reloaded history len = %d, want 1", len(got))
	}
	if got[0].ID != want[0].ID || got[0].Title != want[0].Title ||
		got[0].Delivered != want[0].Delivered || got[0].Read != want[0].Read {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got[0], want[0])
	}
}

func TestBatchedHoldsUntilFlush(t *testing.T) {
	svc, rs, _ := newService(t, testConfig(), nil)
	got := make(chan history.Record, 1)
	svc.AddSink(SinkFunc(func(_ context.Context, rec history.Record) error {
		got <- rec
		return nil
	}))

	pol := rules.Default("inventory")
	pol.Frequency = rules.Batched
	pol.BatchInterval = time.Minute
	rs.Set("inventory", pol)

	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if !svc.Notify(Input{Title: "Flour", Message: "restock", Category: "inventory"}) {
		t.Fatal("batched notification should pass the gate")
	}
	rec := svc.List(history.Filter{})[0]
	if rec.Delivered {
		t.Fatal("batched record must stay undelivered until the flush")
	}

	// Not due yet.
	svc.flushBatches(time.Now())
	select {
	case <-got:
		t.Fatal("flushed before the batch interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	svc.flushBatches(time.Now().Add(2 * time.Minute))
	flushed := recvRecord(t, got)
	if flushed.ID != rec.ID || !flushed.Delivered {
		t.Fatalf("flushed record = %+v", flushed)
	}
	if latest, _ := svc.hist.Get(rec.ID); !latest.Delivered {
		t.Fatal("history record should be marked delivered after flush")
	}
}

func TestDigestHoldsForDailyFlush(t *testing.T) {
	svc, rs, _ := newService(t, testConfig(), nil)
	got := make(chan history.Record, 1)
	svc.AddSink(SinkFunc(func(_ context.Context, rec history.Record) error {
		got <- rec
		return nil
	}))

	pol := rules.Default("budget")
	pol.Frequency = rules.Digest
	rs.Set("budget", pol)

	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	svc.Notify(Input{Title: "Spend", Message: "weekly spend summary ready", Category: "budget"})

	// The interval flusher must leave digest items alone.
	svc.flushBatches(time.Now().Add(24 * time.Hour))
	select {
	case <-got:
		t.Fatal("digest item flushed by the batch job")
	case <-time.After(50 * time.Millisecond):
	}

	svc.flushDigest(time.Now())
	rec := recvRecord(t, got)
	if rec.Category != "budget" || !rec.Delivered {
		t.Fatalf("digest delivered %+v", rec)
	}
}

func TestEscalationDeliversStaleUnread(t *testing.T) {
	svc, rs, _ := newService(t, testConfig(), nil)
	got := make(chan history.Record, 1)
	svc.AddSink(SinkFunc(func(_ context.Context, rec history.Record) error {
		got <- rec
		return nil
	}))

	pol := rules.Default("warning")
	pol.EscalateAfter = 10 * time.Minute
	rs.Set("warning", pol)

	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	// Priority 15 is over the threshold, so this lands suppressed.
	if svc.Notify(Input{Title: "Temp", Message: "walk-in warm", Category: "warning", Priority: 15}) {
		t.Fatal("expected suppression")
	}

	svc.escalationSweep(time.Now().Add(5 * time.Minute))
	select {
	case <-got:
		t.Fatal("escalated before the delay elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	svc.escalationSweep(time.Now().Add(time.Hour))
	rec := recvRecord(t, got)
	if !rec.Delivered || rec.Category != "warning" {
		t.Fatalf("escalated record = %+v", rec)
	}

	// A second sweep must not re-deliver.
	svc.escalationSweep(time.Now().Add(2 * time.Hour))
	select {
	case <-got:
		t.Fatal("escalation is not idempotent")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBurstIDsAreUnique(t *testing.T) {
	svc, _, _ := newService(t, Config{}, nil)
	for i := 0; i < 50; i++ {
		svc.Notify(Input{Title: "t", Message: "m", Category: "error"})
	}
	seen := map[int64]bool{}
	for _, rec := range svc.List(history.Filter{}) {
		if seen[rec.ID] {
			t.Fatalf("duplicate id %d", rec.ID)
		}
		seen[rec.ID] = true
	}
	if len(seen) != 50 {
		t.Fatalf("got %d ids, want 50", len(seen))
	}
}

func TestSuppressionPublishesEvent(t *testing.T) {
	svc, _, bus := newService(t, Config{}, nil)
	events, unsub := bus.Subscribe(4)
	defer unsub()

	svc.Notify(Input{Title: "quiet", Message: "noise", Category: "info"})

	select {
	case ev := <-events:
		if ev.Type != eventbus.TypeSuppressed {
			t.Fatalf("event type = %q", ev.Type)
		}
		data, ok := ev.Data.(RecordEvent)
		if !ok || data.Reason == "" {
			t.Fatalf("event data = %#v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no suppression event published")
	}
}
