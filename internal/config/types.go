package config

// Config is the engine preferences document.
//
// It accepts JSON or YAML (by file extension) and is strict: unknown fields
// are rejected so typos surface instead of being silently ignored.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// RulesPath points at the per-category policy document managed by the
	// rule store. Empty disables policy persistence.
	RulesPath string `json:"rules_path,omitempty"`

	History     HistoryConfig     `json:"history"`
	Dispatch    *DispatchConfig   `json:"dispatch,omitempty"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Preferences PreferencesConfig `json:"preferences"`

	// Rules holds per-category policy overrides keyed by category name.
	// They are applied over the built-in defaults at load and on hot reload,
	// without touching the policy document the rule store persists.
	Rules map[string]RuleOverride `json:"rules,omitempty"`
}

// RuleOverride is a partial per-category policy in wire form. Nil/empty
// fields leave the current value unchanged. Durations are Go duration
// strings.
type RuleOverride struct {
	Enabled           *bool    `json:"enabled,omitempty"`
	PriorityThreshold *int     `json:"priority_threshold,omitempty"`
	Frequency         *string  `json:"frequency,omitempty"`
	BatchInterval     string   `json:"batch_interval,omitempty"`
	QuietStart        *int     `json:"quiet_start,omitempty"`
	QuietEnd          *int     `json:"quiet_end,omitempty"`
	WeekendEnabled    *bool    `json:"weekend_enabled,omitempty"`
	EscalateAfter     string   `json:"escalate_after,omitempty"`
	MaxPerHour        *int     `json:"max_per_hour,omitempty"`
	Sources           []string `json:"sources,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console *bool      `json:"console,omitempty"` // nil defaults to true
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// HistoryConfig controls the in-memory history and its persistence cadence.
//
// SaveInterval is a Go duration string (e.g. "30s"); zero/omitted uses the
// default. Cap <= 0 uses the default (200).
type HistoryConfig struct {
	Cap          int    `json:"cap,omitempty"`
	SaveInterval string `json:"save_interval,omitempty"`
}

// DispatchConfig controls the sink dispatch pipeline.
//
// Enabled is a pointer so we can distinguish "omitted" (default true) from an
// explicit false. DigestCron is a cron spec for the daily digest flush;
// EscalationSweep is a Go duration string for the escalation check cadence.
type DispatchConfig struct {
	Enabled         *bool  `json:"enabled,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	DigestCron      string `json:"digest_cron,omitempty"`
	EscalationSweep string `json:"escalation_sweep,omitempty"`
}

// StorageConfig controls history persistence.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./notifications.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PreferencesConfig holds the user-facing toggles the host application reads
// when rendering delivered notifications.
type PreferencesConfig struct {
	Sound   *bool `json:"sound,omitempty"`   // nil defaults to true
	Desktop *bool `json:"desktop,omitempty"` // nil defaults to true
}

// SoundEnabled reports the sound toggle with its default applied.
func (p PreferencesConfig) SoundEnabled() bool { return p.Sound == nil || *p.Sound }

// DesktopEnabled reports the desktop-notification toggle with its default applied.
func (p PreferencesConfig) DesktopEnabled() bool { return p.Desktop == nil || *p.Desktop }
