package memory

import (
	"time"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

// Tier classifies why a key was remembered. Picks were surfaced
// downstream and stay suppressed for the long TTL; ranked items were
// scored but not chosen and only stay suppressed for the short TTL.
type Tier string

const (
	TierPick   Tier = "pick"
	TierRanked Tier = "ranked"
)

// Record is one persisted "key K of category C was seen at tier T at
// time S" fact. Records are append-only and only ever removed wholesale
// by Cleanup or Remove.
type Record struct {
	Key      string    `json:"key"`
	Category string    `json:"category"`
	Tier     Tier      `json:"tier"`
	SeenAt   time.Time `json:"seen_at"`
}

type Stats struct {
	Total  int `json:"total"`
	Picks  int `json:"picks"`
	Ranked int `json:"ranked"`
}

// Store is the cross-run suppression memory. Writes (Append, Remove,
// Cleanup) are mutually exclusive across processes; reads are lock-free
// and may miss a write that commits after the read started.
type Store interface {
	// Append persists one record per item at the given tier, stamped
	// with the current UTC time. Items without a key get one derived on
	// the way in; items with no derivable key are skipped.
	Append(items []candidate.Candidate, tier Tier) error

	// LoadActiveKeys returns every key whose tier TTL has not elapsed
	// relative to now. Records with an unrecognized tier count as picks.
	LoadActiveKeys(now time.Time) (map[string]struct{}, error)

	// FilterNew drops candidates whose key is still active.
	FilterNew(items []candidate.Candidate, now time.Time) ([]candidate.Candidate, error)

	// Remove rewrites the store without any record for the given key.
	// It reports whether anything was removed.
	Remove(key string) (bool, error)

	// Cleanup rewrites the store keeping only records within their tier
	// TTL and returns the number of records dropped.
	Cleanup(now time.Time) (int, error)

	Stats() (Stats, error)
}
