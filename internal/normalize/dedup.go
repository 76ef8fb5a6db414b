package normalize

import (
	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

// Stats counts the intra-run dedup funnel for one category. For every
// category In == KeyDup + URLDup + TextDup + Out.
type Stats struct {
	In      int `json:"in"`
	KeyDup  int `json:"key_dup"`
	URLDup  int `json:"url_dup"`
	TextDup int `json:"text_dup"`
	Out     int `json:"out"`
}

// Run canonicalizes and deduplicates discovered candidate blocks within
// a single pipeline execution. Dedup signals apply in priority order:
// identity key, then canonical URL, then text fingerprint. Seen-sets
// are scoped per category and populated as candidates are accepted, so
// the first occurrence in input order wins; the same key recurring in
// two categories survives here and is resolved by the cross-category
// merge, which keeps the instance with more text. Candidates carrying
// neither an id nor a URL are dropped before they enter the funnel.
func Run(blocks []candidate.Block, logger zerolog.Logger) ([]candidate.Candidate, map[string]*Stats) {
	var out []candidate.Candidate
	type seenSets struct {
		keys map[string]struct{}
		urls map[string]struct{}
		text map[string]struct{}
	}
	seenByCategory := make(map[string]*seenSets)
	stats := make(map[string]*Stats)

	for _, block := range blocks {
		st := stats[block.Category]
		if st == nil {
			st = &Stats{}
			stats[block.Category] = st
		}
		seen := seenByCategory[block.Category]
		if seen == nil {
			seen = &seenSets{
				keys: make(map[string]struct{}),
				urls: make(map[string]struct{}),
				text: make(map[string]struct{}),
			}
			seenByCategory[block.Category] = seen
		}

		for _, item := range block.Items {
			item.URL = CanonicalURL(item.URL)
			if !item.Identifiable() {
				continue
			}
			st.In++

			item.Key = KeyFor(item)
			item.TextHash = TextHash(item.Text)

			if _, dup := seen.keys[item.Key]; dup {
				st.KeyDup++
				continue
			}
			seen.keys[item.Key] = struct{}{}

			if item.URL != "" {
				if _, dup := seen.urls[item.URL]; dup {
					st.URLDup++
					continue
				}
				seen.urls[item.URL] = struct{}{}
			}

			if _, dup := seen.text[item.TextHash]; dup {
				st.TextDup++
				continue
			}
			seen.text[item.TextHash] = struct{}{}

			item.Category = block.Category
			st.Out++
			out = append(out, item)
		}
	}

	for category, st := range stats {
		logger.Info().
			Str("category", category).
			Int("in", st.In).
			Int("key_dup", st.KeyDup).
			Int("url_dup", st.URLDup).
			Int("text_dup", st.TextDup).
			Int("out", st.Out).
			Msg("normalize funnel")
	}

	return out, stats
}
