package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hearth/internal/category"
	logx "hearth/pkg/logx"
)

func TestDefaultDerivedFromRegistry(t *testing.T) {
	p := Default(category.Emergency)
	if !p.Enabled {
		t.Fatalf("defaults should be enabled")
	}
	if p.PriorityThreshold != 10 {
		t.Fatalf("expected threshold 10, got %d", p.PriorityThreshold)
	}
	if p.MaxPerHour != 60 {
		t.Fatalf("urgent categories should get the high hourly cap, got %d", p.MaxPerHour)
	}
	if low := Default(category.Info); low.MaxPerHour != 20 {
		t.Fatalf("low-urgency categories should get the low hourly cap, got %d", low.MaxPerHour)
	}
}

func TestGetUnconfiguredReturnsDefault(t *testing.T) {
	s := NewStore("", logx.Nop())
	p := s.Get(category.Inventory)
	def := Default(category.Inventory)
	if p.PriorityThreshold != def.PriorityThreshold || p.MaxPerHour != def.MaxPerHour || !p.Enabled {
		t.Fatalf("expected generated default, got %+v", p)
	}
}

func TestUpdateMergesPartialFields(t *testing.T) {
	s := NewStore("", logx.Nop())
	threshold := 5
	enabled := false
	p := s.Update(category.Budget, Patch{PriorityThreshold: &threshold})
	if p.PriorityThreshold != 5 {
		t.Fatalf("threshold not applied: %+v", p)
	}
	if !p.Enabled {
		t.Fatalf("unrelated field changed: %+v", p)
	}

	p = s.Update(category.Budget, Patch{Enabled: &enabled})
	if p.Enabled {
		t.Fatalf("enabled not applied")
	}
	if p.PriorityThreshold != 5 {
		t.Fatalf("previous update lost: %+v", p)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	s := NewStore(path, logx.Nop())

	quietStart, quietEnd := 22, 7
	freq := Batched
	interval := 10 * time.Minute
	s.Update(category.Inventory, Patch{
		QuietStart:    &quietStart,
		QuietEnd:      &quietEnd,
		Frequency:     &freq,
		BatchInterval: &interval,
		Sources:       []string{"Sensor1"},
	})

	fresh := NewStore(path, logx.Nop())
	fresh.Load()
	p := fresh.Get(category.Inventory)
	if p.QuietStart != 22 || p.QuietEnd != 7 {
		t.Fatalf("quiet hours lost: %+v", p)
	}
	if p.Frequency != Batched || p.BatchInterval != 10*time.Minute {
		t.Fatalf("frequency lost: %+v", p)
	}
	if len(p.Sources) != 1 || p.Sources[0] != "Sensor1" {
		t.Fatalf("sources lost: %+v", p)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope.yaml"), logx.Nop())
	s.Load()
	if got := s.Get(category.Staff); got.PriorityThreshold != 10 || !got.Enabled {
		t.Fatalf("expected defaults after missing file, got %+v", got)
	}
}

func TestLoadCorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte("categories: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, logx.Nop())
	s.Load()
	if got := s.Get(category.Staff); got.PriorityThreshold != 10 || !got.Enabled {
		t.Fatalf("expected defaults after corrupt file, got %+v", got)
	}
}
