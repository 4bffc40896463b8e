// Package gate decides ALLOW vs SUPPRESS for candidate notifications.
//
// The decision sequence is fixed and short-circuits on the first failing
// check: enabled flag, priority threshold, quiet hours / weekend (bypassed
// for the emergency category), hourly rate cap, then source/keyword filters.
// The only side effect is the per-category hourly counter, which increments
// exactly once per notification that reaches the rate-cap check and is under
// cap.
package gate

import (
	"strings"
	"sync"
	"time"

	"hearth/internal/category"
	"hearth/internal/rules"
)

// Verdict is the gate's decision for one candidate notification.
type Verdict int

const (
	Suppress Verdict = iota
	Allow
)

func (v Verdict) String() string {
	if v == Allow {
		return "allow"
	}
	return "suppress"
}

// Suppression reasons, reported for logging and analytics.
const (
	ReasonAllowed        = "allowed"
	ReasonDisabled       = "category_disabled"
	ReasonBelowThreshold = "below_threshold"
	ReasonQuietHours     = "quiet_hours"
	ReasonWeekend        = "weekend_disabled"
	ReasonRateCapped     = "rate_capped"
	ReasonSourceFiltered = "source_filtered"
	ReasonKeyword        = "keyword_filtered"
)

// Request is one candidate notification to evaluate.
//
// Text is the lowercased title+message, used only when the policy has a
// keyword filter. A zero Now means time.Now().
type Request struct {
	Category string
	Priority int
	Source   string
	Text     string
	Now      time.Time
}

// Gate evaluates delivery policies against wall-clock state. It is safe for
// concurrent use.
type Gate struct {
	rules *rules.Store

	mu      sync.Mutex
	buckets map[string]int // "2006-01-02-15|category" -> count
}

func New(rs *rules.Store) *Gate {
	return &Gate{rules: rs, buckets: map[string]int{}}
}

// ShouldSend runs the decision sequence and returns the verdict plus the
// reason for it. It is deterministic apart from the hourly counter side
// effect described in the package comment.
func (g *Gate) ShouldSend(req Request) (Verdict, string) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	p := g.rules.Get(req.Category)

	// 1. Policy must be enabled.
	if !p.Enabled {
		return Suppress, ReasonDisabled
	}

	// 2. Urgent enough for this category's configured gate. Lower numeric
	// priority is more urgent, so anything above the threshold is out.
	if req.Priority > p.PriorityThreshold {
		return Suppress, ReasonBelowThreshold
	}

	// 3. Time-of-day checks. Emergencies are always immediate.
	if req.Category != category.Emergency {
		if !p.WeekendEnabled && isWeekend(now) {
			return Suppress, ReasonWeekend
		}
		if p.QuietHoursConfigured() && inQuietWindow(now.Hour(), p.QuietStart, p.QuietEnd) {
			return Suppress, ReasonQuietHours
		}
	}

	// 4. Hourly rate cap. The counter increments here and only here; an
	// over-cap notification does not consume budget.
	if p.MaxPerHour > 0 {
		key := bucketKey(now, req.Category)
		g.mu.Lock()
		if g.buckets[key] >= p.MaxPerHour {
			g.mu.Unlock()
			return Suppress, ReasonRateCapped
		}
		g.buckets[key]++
		g.mu.Unlock()
	}

	// 5. Source / keyword allow-lists.
	if len(p.Sources) > 0 && !containsFold(p.Sources, req.Source) {
		return Suppress, ReasonSourceFiltered
	}
	if len(p.Keywords) > 0 && !containsAnySubstring(req.Text, p.Keywords) {
		return Suppress, ReasonKeyword
	}

	return Allow, ReasonAllowed
}

// CountThisHour returns the current hourly counter for the category.
func (g *Gate) CountThisHour(cat string, now time.Time) int {
	if now.IsZero() {
		now = time.Now()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buckets[bucketKey(now, cat)]
}

// Prune drops counter buckets older than the current hour. Called
// periodically; buckets are tiny, so this is purely housekeeping.
func (g *Gate) Prune(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	prefix := now.Format(bucketHourFormat)
	g.mu.Lock()
	for k := range g.buckets {
		if !strings.HasPrefix(k, prefix) {
			delete(g.buckets, k)
		}
	}
	g.mu.Unlock()
}

const bucketHourFormat = "2006-01-02-15"

func bucketKey(now time.Time, cat string) string {
	return now.Format(bucketHourFormat) + "|" + cat
}

func isWeekend(now time.Time) bool {
	wd := now.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// inQuietWindow handles windows that cross midnight (e.g. 22 -> 7).
func inQuietWindow(hour, start, end int) bool {
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func containsAnySubstring(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
