package analytics

import (
	"testing"
	"time"

	"hearth/internal/category"
	"hearth/internal/history"
)

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, time.Now())
	if s.Total != 0 || s.ReadRate != 0 || s.DismissRate != 0 {
		t.Fatalf("empty history should report zeros: %+v", s)
	}
	if s.MostActive != MostActiveNone {
		t.Fatalf("expected %q sentinel, got %q", MostActiveNone, s.MostActive)
	}
}

func TestSummarizeCounts(t *testing.T) {
	now := time.Now()
	records := []history.Record{
		{ID: 1, Category: category.Inventory, Delivered: true, Read: true, Timestamp: now.Add(-time.Hour)},
		{ID: 2, Category: category.Inventory, Delivered: true, Timestamp: now.Add(-2 * time.Hour)},
		{ID: 3, Category: category.Inventory, Delivered: false, Timestamp: now.Add(-30 * time.Hour)},
		{ID: 4, Category: category.Staff, Delivered: false, Read: true, Timestamp: now.Add(-time.Minute)},
	}
	s := Summarize(records, now)

	if s.Total != 4 {
		t.Fatalf("total = %d", s.Total)
	}
	if s.DeliveredCount != 2 || s.QueuedCount != 2 {
		t.Fatalf("delivered/queued = %d/%d", s.DeliveredCount, s.QueuedCount)
	}
	if s.ByCategory[category.Inventory] != 3 || s.ByCategory[category.Staff] != 1 {
		t.Fatalf("by category: %+v", s.ByCategory)
	}
	if s.MostActive != category.Inventory {
		t.Fatalf("most active = %q", s.MostActive)
	}
	if s.Recent24h != 3 {
		t.Fatalf("recent 24h = %d", s.Recent24h)
	}
	if s.ReadRate != 50 {
		t.Fatalf("read rate = %v", s.ReadRate)
	}
	if s.DismissRate != 50 {
		t.Fatalf("dismiss rate = %v", s.DismissRate)
	}
}

func TestSummarizeTieBrokenByName(t *testing.T) {
	now := time.Now()
	records := []history.Record{
		{ID: 1, Category: category.Staff, Timestamp: now},
		{ID: 2, Category: category.Budget, Timestamp: now},
	}
	s := Summarize(records, now)
	if s.MostActive != category.Budget {
		t.Fatalf("tie should break alphabetically, got %q", s.MostActive)
	}
}

func TestAggregatorReadsStore(t *testing.T) {
	st := history.New(0)
	st.Append(history.Record{ID: 1, Category: category.Recipe, Priority: 10, Delivered: true, Timestamp: time.Now()})
	a := New(st)
	if s := a.Summary(); s.Total != 1 || s.MostActive != category.Recipe {
		t.Fatalf("unexpected summary: %+v", s)
	}
}
