package rules

import "time"

// Frequency is a policy's delivery class.
type Frequency string

const (
	// Immediate forwards allowed notifications to sinks right away.
	Immediate Frequency = "immediate"
	// Batched holds allowed notifications and flushes them on an interval.
	Batched Frequency = "batched"
	// Digest holds allowed notifications and flushes them once per day.
	Digest Frequency = "digest"
)

// Policy is the per-category delivery policy the gate evaluates.
//
// PriorityThreshold is inclusive: a notification is urgent enough when its
// priority value is <= the threshold (lower = more urgent). QuietStart and
// QuietEnd are hours of day [0,24); the window is disabled when they are
// equal and may cross midnight (e.g. 22 -> 7).
type Policy struct {
	Category          string        `json:"category" yaml:"category"`
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	PriorityThreshold int           `json:"priority_threshold" yaml:"priority_threshold"`
	Frequency         Frequency     `json:"frequency" yaml:"frequency"`
	BatchInterval     time.Duration `json:"-" yaml:"-"`
	QuietStart        int           `json:"quiet_start" yaml:"quiet_start"`
	QuietEnd          int           `json:"quiet_end" yaml:"quiet_end"`
	WeekendEnabled    bool          `json:"weekend_enabled" yaml:"weekend_enabled"`
	EscalateAfter     time.Duration `json:"-" yaml:"-"`
	MaxPerHour        int           `json:"max_per_hour" yaml:"max_per_hour"`
	Sources           []string      `json:"sources,omitempty" yaml:"sources,omitempty"`
	Keywords          []string      `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// Patch is a partial policy update. Nil fields are left unchanged.
//
// Pointer fields distinguish "omitted" from an explicit zero value (same
// convention as config overrides).
type Patch struct {
	Enabled           *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	PriorityThreshold *int           `json:"priority_threshold,omitempty" yaml:"priority_threshold,omitempty"`
	Frequency         *Frequency     `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	BatchInterval     *time.Duration `json:"-" yaml:"-"`
	QuietStart        *int           `json:"quiet_start,omitempty" yaml:"quiet_start,omitempty"`
	QuietEnd          *int           `json:"quiet_end,omitempty" yaml:"quiet_end,omitempty"`
	WeekendEnabled    *bool          `json:"weekend_enabled,omitempty" yaml:"weekend_enabled,omitempty"`
	EscalateAfter     *time.Duration `json:"-" yaml:"-"`
	MaxPerHour        *int           `json:"max_per_hour,omitempty" yaml:"max_per_hour,omitempty"`
	Sources           []string       `json:"sources,omitempty" yaml:"sources,omitempty"`
	Keywords          []string       `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

func (p Policy) apply(patch Patch) Policy {
	if patch.Enabled != nil {
		p.Enabled = *patch.Enabled
	}
	if patch.PriorityThreshold != nil {
		p.PriorityThreshold = *patch.PriorityThreshold
	}
	if patch.Frequency != nil {
		p.Frequency = *patch.Frequency
	}
	if patch.BatchInterval != nil {
		p.BatchInterval = *patch.BatchInterval
	}
	if patch.QuietStart != nil {
		p.QuietStart = *patch.QuietStart
	}
	if patch.QuietEnd != nil {
		p.QuietEnd = *patch.QuietEnd
	}
	if patch.WeekendEnabled != nil {
		p.WeekendEnabled = *patch.WeekendEnabled
	}
	if patch.EscalateAfter != nil {
		p.EscalateAfter = *patch.EscalateAfter
	}
	if patch.MaxPerHour != nil {
		p.MaxPerHour = *patch.MaxPerHour
	}
	if patch.Sources != nil {
		p.Sources = append([]string(nil), patch.Sources...)
	}
	if patch.Keywords != nil {
		p.Keywords = append([]string(nil), patch.Keywords...)
	}
	return p
}

// QuietHoursConfigured reports whether the policy has a quiet-hours window.
func (p Policy) QuietHoursConfigured() bool { return p.QuietStart != p.QuietEnd }
