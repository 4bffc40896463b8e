package notify

import (
	"context"
	"errors"
	"time"

	"hearth/internal/history"
)

var (
	ErrStopped = errors.New("notify service stopped")
)

// Sink receives records that passed the gate. Implementations belong to the
// host application (bell icon, toast, desktop notifier); delivery errors are
// logged and swallowed, never surfaced to the Notify caller.
type Sink interface {
	Deliver(ctx context.Context, rec history.Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec history.Record) error

func (f SinkFunc) Deliver(ctx context.Context, rec history.Record) error { return f(ctx, rec) }

// Input is one candidate notification.
//
// Category may be empty or unknown; both cases run the keyword classifier.
// Priority <= 0 means "derive from the category weight". Source defaults to
// "System".
type Input struct {
	Title    string
	Message  string
	Category string
	Priority int
	Source   string
	Metadata map[string]string
}

// Config controls the dispatch pipeline. Zero values take defaults in Apply.
type Config struct {
	Enabled bool

	Workers    int
	QueueSize  int
	RatePerSec int

	// SaveInterval is the history persistence cadence.
	SaveInterval time.Duration

	// DigestCron is a standard 5-field cron spec for the daily digest flush.
	DigestCron string

	// EscalationSweep is how often undelivered records are checked against
	// their category's escalate_after delay.
	EscalationSweep time.Duration
}

// RecordEvent is the bus payload for record lifecycle events.
type RecordEvent struct {
	ID       int64     `json:"id"`
	Category string    `json:"category"`
	Priority int       `json:"priority"`
	Source   string    `json:"source,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}
