package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hearth/internal/history"
	logx "hearth/pkg/logx"
)

// fileStore persists the history as a single JSON document:
//
//	{ "notifications": [ ... ], "last_updated": "<RFC3339>" }
//
// Writes go through a temp file + rename so a crash mid-save never leaves a
// torn document behind.
type fileStore struct {
	log  logx.Logger
	mu   sync.Mutex
	path string
}

type historyDoc struct {
	Notifications []history.Record `json:"notifications"`
	LastUpdated   time.Time        `json:"last_updated"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

// LoadHistory reads the document wholesale. A missing or malformed file
// yields an empty history without error; that situation is expected on first
// run and after manual edits, and must never block startup.
func (s *fileStore) LoadHistory(ctx context.Context) ([]history.Record, time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("history file unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return nil, time.Time{}, nil
	}
	var doc historyDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn("history file malformed; starting empty", logx.String("path", s.path), logx.Err(err))
		return nil, time.Time{}, nil
	}
	return doc.Notifications, doc.LastUpdated, nil
}

// SaveHistory writes the document wholesale (atomic tmp + rename).
func (s *fileStore) SaveHistory(ctx context.Context, records []history.Record) error {
	_ = ctx
	doc := historyDoc{Notifications: records, LastUpdated: time.Now()}
	if doc.Notifications == nil {
		doc.Notifications = []history.Record{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
