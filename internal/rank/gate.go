package rank

import (
	"strings"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

// Gate rejection reasons, exposed through the funnel counters.
const (
	ReasonEmpty           = "empty"
	ReasonShort           = "short"
	ReasonBlacklisted     = "blacklisted"
	ReasonTooManyMentions = "too_many_mentions"
	ReasonLowEngagement   = "low_eng"
)

var defaultBlacklist = []string{
	"airdrop",
	"giveaway",
	"copytrade",
	"i am building an ai applied to marketing tech startup",
	"outside consultant",
}

// gate decides whether a candidate is worth scoring at all. Rejection
// short-circuits with a reason; the reason feeds the per-category
// funnel counters.
func (cfg Config) gate(c candidate.Candidate) (bool, string) {
	text := strings.TrimSpace(c.Text)
	lower := strings.ToLower(text)

	if text == "" {
		return false, ReasonEmpty
	}
	if len(strings.Fields(text)) < cfg.MinWords {
		return false, ReasonShort
	}
	for _, phrase := range cfg.Blacklist {
		if strings.Contains(lower, phrase) {
			return false, ReasonBlacklisted
		}
	}
	if strings.Count(lower, "@") > cfg.MaxMentions {
		return false, ReasonTooManyMentions
	}

	m := c.Metrics
	switch {
	case c.Platform == candidate.PlatformReddit:
		// Forum posts have no bookmark/share concept; gate on raw
		// popularity instead.
		if m.Like < cfg.MinForumScore {
			return false, ReasonLowEngagement
		}
	case c.Source == candidate.SourceAuthor:
		// Followed authors only need a minimal engagement floor.
		if m.Bookmark < 1 && m.Retweet < 1 && m.Like < 3 {
			return false, ReasonLowEngagement
		}
	default:
		// Keyword hits need more proof.
		if m.Bookmark < 2 && m.Retweet < 1 {
			return false, ReasonLowEngagement
		}
	}

	return true, ""
}
