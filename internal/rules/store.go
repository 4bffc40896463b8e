package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"hearth/internal/category"
	logx "hearth/pkg/logx"
)

// Store owns the per-category delivery policies and their flat-file
// persistence. It is safe for concurrent use.
//
// Categories without a configured policy get a generated default derived from
// the category registry; defaults are not persisted until first updated.
type Store struct {
	mu       sync.Mutex
	path     string
	log      logx.Logger
	policies map[string]Policy
}

// NewStore creates a store persisting to path. An empty path disables
// persistence (in-memory only; useful in tests).
func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		path:     path,
		log:      log,
		policies: map[string]Policy{},
	}
}

// Get returns the configured policy for cat, or a generated default if none
// is configured. Unknown categories resolve through the registry fallback.
func (s *Store) Get(cat string) Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.policies[cat]; ok {
		return p
	}
	return Default(cat)
}

// Update merges patch into the existing (or default) policy for cat and
// persists the result. Persistence failures are logged, not surfaced; the
// in-memory policy is authoritative for the running process.
func (s *Store) Update(cat string, patch Patch) Policy {
	s.mu.Lock()
	cur, ok := s.policies[cat]
	if !ok {
		cur = Default(cat)
	}
	next := cur.apply(patch)
	s.policies[cat] = next
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		s.log.Warn("policy save failed", logx.String("category", cat), logx.Err(err))
	}
	return next
}

// Override merges patch into the effective policy for cat without
// persisting. Config-file overrides go through here at startup and reload so
// they never leak into the policy document.
func (s *Store) Override(cat string, patch Patch) Policy {
	s.mu.Lock()
	cur, ok := s.policies[cat]
	if !ok {
		cur = Default(cat)
	}
	next := cur.apply(patch)
	s.policies[cat] = next
	s.mu.Unlock()
	return next
}

// Set replaces the whole policy for cat without persisting.
func (s *Store) Set(cat string, p Policy) {
	p.Category = cat
	s.mu.Lock()
	s.policies[cat] = p
	s.mu.Unlock()
}

// Configured returns the categories with an explicitly configured policy,
// sorted by name.
func (s *Store) Configured() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.policies))
	for cat := range s.policies {
		out = append(out, cat)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// ---- Persistence ----

// policyDoc is the wire form of a Policy. Durations are Go duration strings
// (e.g. "15m") so the file stays hand-editable.
type policyDoc struct {
	Enabled           *bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	PriorityThreshold *int      `json:"priority_threshold,omitempty" yaml:"priority_threshold,omitempty"`
	Frequency         Frequency `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	BatchInterval     string    `json:"batch_interval,omitempty" yaml:"batch_interval,omitempty"`
	QuietStart        *int      `json:"quiet_start,omitempty" yaml:"quiet_start,omitempty"`
	QuietEnd          *int      `json:"quiet_end,omitempty" yaml:"quiet_end,omitempty"`
	WeekendEnabled    *bool     `json:"weekend_enabled,omitempty" yaml:"weekend_enabled,omitempty"`
	EscalateAfter     string    `json:"escalate_after,omitempty" yaml:"escalate_after,omitempty"`
	MaxPerHour        *int      `json:"max_per_hour,omitempty" yaml:"max_per_hour,omitempty"`
	Sources           []string  `json:"sources,omitempty" yaml:"sources,omitempty"`
	Keywords          []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

type policyFile struct {
	Categories map[string]policyDoc `json:"categories" yaml:"categories"`
}

// Load reads the policy file. A missing or malformed file falls back to
// built-in defaults without raising; the problem is logged at warn level.
func (s *Store) Load() {
	if s.path == "" {
		return
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("policy file unreadable; using defaults", logx.String("path", s.path), logx.Err(err))
		}
		return
	}
	var doc policyFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		s.log.Warn("policy file malformed; using defaults", logx.String("path", s.path), logx.Err(err))
		return
	}

	loaded := map[string]Policy{}
	for cat, pd := range doc.Categories {
		p, err := pd.toPolicy(cat)
		if err != nil {
			s.log.Warn("policy entry invalid; using default", logx.String("category", cat), logx.Err(err))
			continue
		}
		loaded[cat] = p
	}

	s.mu.Lock()
	s.policies = loaded
	s.mu.Unlock()
}

// Save writes all configured policies wholesale (atomic tmp + rename).
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	doc := policyFile{Categories: make(map[string]policyDoc, len(s.policies))}
	for cat, p := range s.policies {
		doc.Categories[cat] = fromPolicy(p)
	}
	s.mu.Unlock()

	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (pd policyDoc) toPolicy(cat string) (Policy, error) {
	p := Default(cat)
	if pd.Enabled != nil {
		p.Enabled = *pd.Enabled
	}
	if pd.PriorityThreshold != nil {
		p.PriorityThreshold = *pd.PriorityThreshold
	}
	if pd.Frequency != "" {
		switch pd.Frequency {
		case Immediate, Batched, Digest:
			p.Frequency = pd.Frequency
		default:
			return p, fmt.Errorf("unknown frequency %q", pd.Frequency)
		}
	}
	if strings.TrimSpace(pd.BatchInterval) != "" {
		d, err := time.ParseDuration(pd.BatchInterval)
		if err != nil {
			return p, fmt.Errorf("batch_interval: %w", err)
		}
		p.BatchInterval = d
	}
	if pd.QuietStart != nil {
		if *pd.QuietStart < 0 || *pd.QuietStart > 23 {
			return p, fmt.Errorf("quiet_start out of range: %d", *pd.QuietStart)
		}
		p.QuietStart = *pd.QuietStart
	}
	if pd.QuietEnd != nil {
		if *pd.QuietEnd < 0 || *pd.QuietEnd > 23 {
			return p, fmt.Errorf("quiet_end out of range: %d", *pd.QuietEnd)
		}
		p.QuietEnd = *pd.QuietEnd
	}
	if pd.WeekendEnabled != nil {
		p.WeekendEnabled = *pd.WeekendEnabled
	}
	if strings.TrimSpace(pd.EscalateAfter) != "" {
		d, err := time.ParseDuration(pd.EscalateAfter)
		if err != nil {
			return p, fmt.Errorf("escalate_after: %w", err)
		}
		p.EscalateAfter = d
	}
	if pd.MaxPerHour != nil {
		p.MaxPerHour = *pd.MaxPerHour
	}
	if pd.Sources != nil {
		p.Sources = append([]string(nil), pd.Sources...)
	}
	if pd.Keywords != nil {
		p.Keywords = append([]string(nil), pd.Keywords...)
	}
	return p, nil
}

func fromPolicy(p Policy) policyDoc {
	pd := policyDoc{
		Enabled:           &p.Enabled,
		PriorityThreshold: &p.PriorityThreshold,
		Frequency:         p.Frequency,
		QuietStart:        &p.QuietStart,
		QuietEnd:          &p.QuietEnd,
		WeekendEnabled:    &p.WeekendEnabled,
		MaxPerHour:        &p.MaxPerHour,
		Sources:           p.Sources,
		Keywords:          p.Keywords,
	}
	if p.BatchInterval > 0 {
		pd.BatchInterval = p.BatchInterval.String()
	}
	if p.EscalateAfter > 0 {
		pd.EscalateAfter = p.EscalateAfter.String()
	}
	return pd
}

// Default builds the built-in policy for cat, derived from the category
// registry's priority weight.
func Default(cat string) Policy {
	d := category.Resolve(cat)
	p := Policy{
		Category:          cat,
		Enabled:           true,
		PriorityThreshold: defaultThreshold,
		Frequency:         Immediate,
		BatchInterval:     15 * time.Minute,
		WeekendEnabled:    true,
		MaxPerHour:        defaultMaxPerHour(d.Weight),
	}
	return p
}

// defaultThreshold delivers warnings and above out of the box; low-urgency
// categories are still recorded, just not surfaced.
const defaultThreshold = 10

func defaultMaxPerHour(weight int) int {
	switch {
	case weight <= 4:
		return 60
	case weight <= 8:
		return 30
	default:
		return 20
	}
}
