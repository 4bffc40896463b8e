package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParseJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	writeFile(t, path, `{
  "logging": {"level": "debug", "file": {"enabled": true, "path": "./x.log"}},
  "history": {"cap": 50, "save_interval": "10s"},
  "dispatch": {"workers": 2, "rate_per_sec": 5},
  "storage": {"driver": "file", "path": "./n.json"},
  "preferences": {"sound": false}
}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.File.Enabled {
		t.Fatalf("logging mismatch: %+v", cfg.Logging)
	}
	if cfg.History.Cap != 50 || cfg.History.SaveInterval != "10s" {
		t.Fatalf("history mismatch: %+v", cfg.History)
	}
	if cfg.Dispatch == nil || cfg.Dispatch.Workers != 2 || cfg.Dispatch.RatePerSec != 5 {
		t.Fatalf("dispatch mismatch: %+v", cfg.Dispatch)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage mismatch: %+v", cfg.Storage)
	}
	if cfg.Preferences.SoundEnabled() {
		t.Fatal("sound should be explicitly disabled")
	}
	if !cfg.Preferences.DesktopEnabled() {
		t.Fatal("desktop should default to enabled")
	}
}

func TestParseYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	writeFile(t, path, `
logging:
  level: info
history:
  cap: 100
dispatch:
  enabled: false
  digest_cron: "0 9 * * *"
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.Dispatch == nil || cfg.Dispatch.Enabled == nil || *cfg.Dispatch.Enabled {
		t.Fatalf("dispatch.enabled should be explicit false: %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.DigestCron != "0 9 * * *" {
		t.Fatalf("digest_cron = %q", cfg.Dispatch.DigestCron)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	writeFile(t, path, `{"logging": {"levle": "debug"}}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	writeFile(t, path, `{"history": {"cap": 10}} {"history": {"cap": 20}}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestLoadCommitsAndGetReturns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	writeFile(t, path, `{"history": {"cap": 42}}`)

	m := NewManager(path)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg || got.History.Cap != 42 {
		t.Fatalf("Get = %+v, want same as Load", got)
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("received wrong config")
		}
	default:
		t.Fatal("expected a published config")
	}

	// slow subscriber: newest update wins
	m.publish(&Config{History: HistoryConfig{Cap: 1}})
	newest := &Config{History: HistoryConfig{Cap: 2}}
	m.publish(newest)
	if got := <-ch; got.History.Cap != 2 {
		t.Fatalf("expected newest config, got cap=%d", got.History.Cap)
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}

func TestReloadSkipsUnchangedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	writeFile(t, path, `{"history": {"cap": 7}}`)

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatal("unchanged content should not publish")
	default:
	}

	writeFile(t, path, `{"history": {"cap": 8}}`)
	m.reload(context.Background())
	select {
	case got := <-ch:
		if got.History.Cap != 8 {
			t.Fatalf("cap = %d, want 8", got.History.Cap)
		}
	default:
		t.Fatal("changed content should publish")
	}
}
