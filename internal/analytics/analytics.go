// Package analytics derives summary statistics from the notification
// history. It is a pure read-side view: no state of its own, recomputed on
// demand.
package analytics

import (
	"time"

	"hearth/internal/history"
)

// MostActiveNone is the sentinel reported when the history is empty.
const MostActiveNone = "none"

// Summary is a point-in-time aggregation of the history contents.
//
// Rates are percentages in [0,100]. DismissRate is the share of records the
// gate kept off-screen (recorded but never delivered).
type Summary struct {
	Total          int            `json:"total"`
	DeliveredCount int            `json:"delivered_count"`
	QueuedCount    int            `json:"queued_count"`
	ByCategory     map[string]int `json:"by_category"`
	MostActive     string         `json:"most_active_category"`
	Recent24h      int            `json:"recent_24h"`
	ReadRate       float64        `json:"read_rate"`
	DismissRate    float64        `json:"dismiss_rate"`
}

// Aggregator reads the history store on demand.
type Aggregator struct {
	store *history.Store
}

func New(store *history.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Summary aggregates the current history contents.
func (a *Aggregator) Summary() Summary {
	return Summarize(a.store.List(history.Filter{}), time.Now())
}

// Summarize computes the summary over an explicit record list, relative to
// now. An empty list reports zero rates and the "none" sentinel.
func Summarize(records []history.Record, now time.Time) Summary {
	s := Summary{
		ByCategory: map[string]int{},
		MostActive: MostActiveNone,
	}
	if len(records) == 0 {
		return s
	}

	cutoff := now.Add(-24 * time.Hour)
	read := 0
	for _, r := range records {
		s.Total++
		s.ByCategory[r.Category]++
		if r.Delivered {
			s.DeliveredCount++
		} else {
			s.QueuedCount++
		}
		if r.Read {
			read++
		}
		if r.Timestamp.After(cutoff) {
			s.Recent24h++
		}
	}

	// Busiest category; ties broken by name so the result is deterministic.
	bestN := 0
	for cat, n := range s.ByCategory {
		if n > bestN || (n == bestN && (s.MostActive == MostActiveNone || cat < s.MostActive)) {
			bestN = n
			s.MostActive = cat
		}
	}

	s.ReadRate = percent(read, s.Total)
	s.DismissRate = percent(s.QueuedCount, s.Total)
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
