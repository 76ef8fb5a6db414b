// Package bookmarks persists posts the user flagged as interesting via
// the digest's inline buttons. Same JSONL-with-advisory-lock shape as
// the memory store, kept separate because bookmarks never expire.
package bookmarks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/globaltime"
)

type Bookmark struct {
	ID           string    `json:"id"`
	Key          string    `json:"key,omitempty"`
	URL          string    `json:"url,omitempty"`
	Title        string    `json:"title,omitempty"`
	Category     string    `json:"category,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
	DeepReadSent bool      `json:"deep_read_sent"`
}

type Stats struct {
	Total    int `json:"total"`
	DeepRead int `json:"deep_read"`
}

type Store struct {
	path   string
	logger zerolog.Logger
}

func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

func (s *Store) loadAll() ([]Bookmark, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bookmarks: %w", err)
	}

	var records []Bookmark
	skipped := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec Bookmark
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		if rec.ID == "" {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Str("path", s.path).Msg("skipped malformed bookmark records")
	}
	return records, nil
}

func (s *Store) Exists(id string) (bool, error) {
	records, err := s.loadAll()
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Save(b Bookmark) error {
	if b.ID == "" {
		return fmt.Errorf("bookmark id is required")
	}
	if b.SavedAt.IsZero() {
		b.SavedAt = globaltime.UTC()
	}

	line, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bookmark: %w", err)
	}

	return s.withLock(func() error {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("create bookmarks dir: %w", err)
		}
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open bookmarks: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			_ = f.Close()
			return fmt.Errorf("append bookmark: %w", err)
		}
		return f.Close()
	})
}

func (s *Store) Remove(id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	removed := 0
	err := s.withLock(func() error {
		records, err := s.loadAll()
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, rec := range records {
			if rec.ID == id {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if removed == 0 {
			return nil
		}
		return s.rewrite(kept)
	})
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (s *Store) MarkDeepReadSent(id string) error {
	return s.withLock(func() error {
		records, err := s.loadAll()
		if err != nil {
			return err
		}
		updated := false
		for i := range records {
			if records[i].ID == id {
				records[i].DeepReadSent = true
				updated = true
			}
		}
		if !updated {
			return nil
		}
		return s.rewrite(records)
	})
}

func (s *Store) All() ([]Bookmark, error) {
	return s.loadAll()
}

func (s *Store) Stats() (Stats, error) {
	records, err := s.loadAll()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(records)}
	for _, rec := range records {
		if rec.DeepReadSent {
			stats.DeepRead++
		}
	}
	return stats, nil
}

func (s *Store) withLock(fn func() error) error {
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire bookmarks write lock: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return fn()
}

func (s *Store) rewrite(records []Bookmark) error {
	var buf strings.Builder
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal bookmark: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write temp bookmarks: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp bookmarks: %w", err)
	}
	return nil
}
