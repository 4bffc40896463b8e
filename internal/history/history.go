// Package history keeps the capped, priority-ordered collection of
// notification records with read/unread state.
//
// Records are inserted at their priority position (lower value = more urgent
// = earlier), stable for equal priorities. The collection is bounded: when
// the cap is exceeded, the oldest read record is evicted first; only if every
// record is unread does the store truncate from the tail.
//
// The store is purely in-memory; persistence is driven from outside (the
// notification service snapshots it on a schedule and at shutdown).
package history

import (
	"sort"
	"sync"
	"time"

	"hearth/internal/category"
)

// DefaultCap bounds the history size.
const DefaultCap = 200

// Record is one notification, delivered or not.
//
// Icon and Color are resolved from the category registry at creation time and
// frozen onto the record. Metadata is a bounded bag for caller extras; it is
// persisted verbatim.
type Record struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Category  string            `json:"category"`
	Priority  int               `json:"priority"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Read      bool              `json:"read"`
	Delivered bool              `json:"delivered"`
	Icon      string            `json:"icon,omitempty"`
	Color     string            `json:"color,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Filter narrows List results. The zero value matches everything.
//
// Category "critical" expands to the critical group (critical, emergency,
// security). Unread filters by read state when non-nil.
type Filter struct {
	Category string
	Unread   *bool
}

// Store is the in-memory history collection. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	cap     int
	records []Record
	dirty   bool
}

// New creates a store bounded to capSize records (DefaultCap if <= 0).
func New(capSize int) *Store {
	if capSize <= 0 {
		capSize = DefaultCap
	}
	return &Store{cap: capSize}
}

// Append inserts r at its priority position and enforces the cap. It returns
// the records evicted to stay within bounds (usually none or one).
func (s *Store) Append(r Record) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stable position: after every record with priority <= r.Priority.
	idx := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Priority > r.Priority
	})
	s.records = append(s.records, Record{})
	copy(s.records[idx+1:], s.records[idx:])
	s.records[idx] = r
	s.dirty = true

	var evicted []Record
	for len(s.records) > s.cap {
		victim, ok := s.oldestReadLocked()
		if !ok {
			// Nothing read to drop; truncate the tail (lowest urgency).
			victim = len(s.records) - 1
		}
		evicted = append(evicted, s.records[victim])
		s.records = append(s.records[:victim], s.records[victim+1:]...)
	}
	return evicted
}

// oldestReadLocked returns the index of the read record with the earliest
// timestamp, ties broken by id ascending.
func (s *Store) oldestReadLocked() (int, bool) {
	best := -1
	for i, r := range s.records {
		if !r.Read {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := s.records[best]
		if r.Timestamp.Before(b.Timestamp) || (r.Timestamp.Equal(b.Timestamp) && r.ID < b.ID) {
			best = i
		}
	}
	return best, best >= 0
}

// MarkRead flips the record to read. Idempotent: already-read and unknown ids
// are no-ops. It reports whether anything changed.
func (s *Store) MarkRead(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			if s.records[i].Read {
				return false
			}
			s.records[i].Read = true
			s.dirty = true
			return true
		}
	}
	return false
}

// MarkDelivered flips the record to delivered (used when a batched or
// escalated record is eventually forwarded to sinks). Reports whether
// anything changed.
func (s *Store) MarkDelivered(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			if s.records[i].Delivered {
				return false
			}
			s.records[i].Delivered = true
			s.dirty = true
			return true
		}
	}
	return false
}

// Get returns the record with the given id.
func (s *Store) Get(id int64) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Clear removes all records, or only those matching cat if non-empty.
// It returns the number removed.
func (s *Store) Clear(cat string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cat == "" {
		n := len(s.records)
		s.records = nil
		if n > 0 {
			s.dirty = true
		}
		return n
	}
	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if r.Category == cat {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	if removed > 0 {
		s.dirty = true
	}
	return removed
}

// List returns matching records in stored (priority) order.
func (s *Store) List(f Filter) []Record {
	match := categoryMatcher(f.Category)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if !match(r.Category) {
			continue
		}
		if f.Unread != nil && r.Read == *f.Unread {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Snapshot returns a copy of all records in stored order and clears the dirty
// flag, so the caller can persist exactly what it took.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
	return append([]Record(nil), s.records...)
}

// Dirty reports whether the store changed since the last Snapshot.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Len returns the current record count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Seed replaces the contents with previously persisted records, preserving
// their stored order. It returns the highest id seen (for id generation).
func (s *Store) Seed(records []Record) int64 {
	var maxID int64
	for _, r := range records {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	s.mu.Lock()
	s.records = append([]Record(nil), records...)
	s.dirty = false
	s.mu.Unlock()
	return maxID
}

func categoryMatcher(cat string) func(string) bool {
	if cat == "" {
		return func(string) bool { return true }
	}
	if cat == category.Critical {
		group := map[string]bool{}
		for _, c := range category.CriticalGroup {
			group[c] = true
		}
		return func(c string) bool { return group[c] }
	}
	return func(c string) bool { return c == cat }
}
