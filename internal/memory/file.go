package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/globaltime"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/normalize"
)

// FileStore keeps memory records in an append-only JSONL file, one
// record per line. Appends take an exclusive advisory lock on a sidecar
// .lock file for the duration of the physical write, so the scheduled
// pipeline and the interactive bot handler can write from independent
// processes without interleaving partial lines. Rewrites (Remove,
// Cleanup) additionally go through a temp file + rename so a reader
// never observes a half-written log.
type FileStore struct {
	path      string
	pickTTL   time.Duration
	rankedTTL time.Duration
	logger    zerolog.Logger
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string, pickTTL, rankedTTL time.Duration, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:      path,
		pickTTL:   pickTTL,
		rankedTTL: rankedTTL,
		logger:    logger,
	}
}

func (s *FileStore) lockPath() string {
	return s.path + ".lock"
}

// loadAll reads every well-formed record and reports how many lines it
// had to skip. Malformed lines are never fatal; they stay in place
// until the next successful Cleanup rewrites the log without them.
func (s *FileStore) loadAll() ([]Record, int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read memory log: %w", err)
	}

	var records []Record
	skipped := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		if rec.Key == "" {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Str("path", s.path).Msg("skipped malformed memory records")
	}
	return records, skipped, nil
}

func (s *FileStore) Append(items []candidate.Candidate, tier Tier) error {
	if len(items) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	now := globaltime.UTC()
	var buf strings.Builder
	written := 0
	for _, item := range items {
		key := item.Key
		if key == "" && item.Identifiable() {
			key = normalize.KeyFor(item)
		}
		if key == "" {
			continue
		}
		line, err := json.Marshal(Record{
			Key:      key,
			Category: item.Category,
			Tier:     tier,
			SeenAt:   now,
		})
		if err != nil {
			return fmt.Errorf("marshal memory record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		written++
	}
	if written == 0 {
		return nil
	}

	return s.withLock(func() error {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open memory log: %w", err)
		}
		w := bufio.NewWriter(f)
		if _, err := w.WriteString(buf.String()); err != nil {
			_ = f.Close()
			return fmt.Errorf("append memory records: %w", err)
		}
		if err := w.Flush(); err != nil {
			_ = f.Close()
			return fmt.Errorf("flush memory records: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close memory log: %w", err)
		}
		return nil
	})
}

func (s *FileStore) LoadActiveKeys(now time.Time) (map[string]struct{}, error) {
	records, _, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	keys := make(map[string]struct{})
	for _, rec := range records {
		if s.active(rec, now) {
			keys[rec.Key] = struct{}{}
		}
	}
	return keys, nil
}

// active applies the tier TTL. Unrecognized tiers count as picks so
// legacy or malformed tiers err toward suppressing, not resurfacing.
func (s *FileStore) active(rec Record, now time.Time) bool {
	if rec.SeenAt.IsZero() {
		return false
	}
	ttl := s.pickTTL
	if rec.Tier == TierRanked {
		ttl = s.rankedTTL
	}
	return !rec.SeenAt.Before(now.Add(-ttl))
}

func (s *FileStore) FilterNew(items []candidate.Candidate, now time.Time) ([]candidate.Candidate, error) {
	seen, err := s.LoadActiveKeys(now)
	if err != nil {
		return nil, err
	}

	out := make([]candidate.Candidate, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.Key]; dup {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// Remove holds the write lock across the whole read-filter-rewrite so
// a concurrent Append cannot slip records in between the read and the
// rename and get lost.
func (s *FileStore) Remove(key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	removed := 0
	err := s.withLock(func() error {
		records, _, err := s.loadAll()
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, rec := range records {
			if rec.Key == key {
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

func (s *FileStore) Cleanup(now time.Time) (int, error) {
	removed := 0
	err := s.withLock(func() error {
		records, skipped, err := s.loadAll()
		if err != nil {
			return err
		}
		kept := records[:0]
		for _, rec := range records {
			if s.active(rec, now) {
				kept = append(kept, rec)
				continue
			}
			removed++
		}
		// Rewrite also when only malformed lines were dropped, so one
		// cleanup pass is enough to clear them.
		if removed == 0 && skipped == 0 {
			return nil
		}
		return s.rewrite(kept)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *FileStore) Stats() (Stats, error) {
	records, _, err := s.loadAll()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: len(records)}
	for _, rec := range records {
		if rec.Tier == TierRanked {
			stats.Ranked++
			continue
		}
		stats.Picks++
	}
	return stats, nil
}

// withLock runs fn while holding the exclusive advisory write lock.
// The lock is released on every exit path.
func (s *FileStore) withLock(fn func() error) error {
	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire memory write lock: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return fn()
}

// rewrite replaces the whole log, going through a temp file and an
// atomic rename. Callers must already hold the write lock.
func (s *FileStore) rewrite(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	var buf strings.Builder
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal memory record: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write temp memory log: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp memory log: %w", err)
	}
	return nil
}
