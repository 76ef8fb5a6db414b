package rank

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

// Result is the ranked output plus the per-category gate rejections for
// funnel accounting.
type Result struct {
	Ranked    []candidate.Candidate
	Rejected  map[string]map[string]int
	InByCat   map[string]int
	PassByCat map[string]int
}

// Run gates, scores, and ranks candidates per category, returning at
// most MaxPerCategory per category sorted by score descending. Equal
// scores keep input order. Candidates that fail the gate never carry a
// score.
func Run(items []candidate.Candidate, now time.Time, cfg Config, logger zerolog.Logger) Result {
	byCategory := make(map[string][]candidate.Candidate)
	res := Result{
		Rejected:  make(map[string]map[string]int),
		InByCat:   make(map[string]int),
		PassByCat: make(map[string]int),
	}

	for _, item := range items {
		cat := item.Category
		res.InByCat[cat]++

		ok, reason := cfg.gate(item)
		if !ok {
			if res.Rejected[cat] == nil {
				res.Rejected[cat] = make(map[string]int)
			}
			res.Rejected[cat][reason]++
			continue
		}

		total, components := cfg.score(item, now)
		item.Score = total
		item.Components = &components
		byCategory[cat] = append(byCategory[cat], item)
	}

	categories := make([]string, 0, len(res.InByCat))
	for cat := range res.InByCat {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		passed := byCategory[cat]
		res.PassByCat[cat] = len(passed)

		ev := logger.Info().
			Str("category", cat).
			Int("in", res.InByCat[cat]).
			Int("passed", len(passed)).
			Int("rejected", res.InByCat[cat]-len(passed))
		for reason, n := range res.Rejected[cat] {
			ev = ev.Int("reject_"+reason, n)
		}
		ev.Msg("rank funnel")

		sort.SliceStable(passed, func(i, j int) bool {
			return passed[i].Score > passed[j].Score
		})
		if len(passed) > cfg.MaxPerCategory {
			passed = passed[:cfg.MaxPerCategory]
		}
		if len(passed) > 0 {
			top := passed
			if len(top) > 5 {
				top = top[:5]
			}
			scores := make([]float64, 0, len(top))
			for _, c := range top {
				scores = append(scores, c.Score)
			}
			logger.Debug().Str("category", cat).Floats64("top_scores", scores).Msg("rank top")
		}
		res.Ranked = append(res.Ranked, passed...)
	}

	return res
}
