package rank

import (
	"math"
	"time"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

// createdAtLayout is the timestamp format discovery sources emit, e.g.
// "Tue Feb 10 18:02:11 +0000 2026".
const createdAtLayout = time.RubyDate

const (
	// minAgeHours keeps velocity finite for just-posted items.
	minAgeHours = 0.1
	// staleAgeHours is assumed when a timestamp does not parse, so such
	// items are neither favored nor fatal.
	staleAgeHours = 48.0
)

// Config carries the tunable gate thresholds and scoring weights. The
// relative ordering bookmark > share > reply > like is contractual; the
// exact values are not.
type Config struct {
	MinWords      int
	MaxMentions   int
	MinForumScore int
	Blacklist     []string

	WeightBookmark float64
	WeightRetweet  float64
	WeightReply    float64
	WeightLike     float64

	WeightVelocity float64
	WeightRelative float64
	WeightVirality float64

	// FreshnessLambda is the exponential decay rate per hour. The
	// default halves freshness every 48 hours.
	FreshnessLambda float64
	AuthorBoost     float64

	MaxPerCategory int
}

func DefaultConfig() Config {
	return Config{
		MinWords:        8,
		MaxMentions:     4,
		MinForumScore:   10,
		Blacklist:       defaultBlacklist,
		WeightBookmark:  6,
		WeightRetweet:   3,
		WeightReply:     2,
		WeightLike:      1,
		WeightVelocity:  2,
		WeightRelative:  1,
		WeightVirality:  5,
		FreshnessLambda: math.Ln2 / 48,
		AuthorBoost:     1.15,
		MaxPerCategory:  25,
	}
}

// ageHours returns the hours elapsed since the candidate was posted,
// clamped below and defaulting to stale when the timestamp is unusable.
func ageHours(createdAt string, now time.Time) float64 {
	parsed, err := time.Parse(createdAtLayout, createdAt)
	if err != nil {
		return staleAgeHours
	}
	h := now.Sub(parsed).Hours()
	return math.Max(minAgeHours, h)
}

func (cfg Config) engagement(m candidate.Metrics) float64 {
	return cfg.WeightBookmark*float64(m.Bookmark) +
		cfg.WeightRetweet*float64(m.Retweet) +
		cfg.WeightReply*float64(m.Reply) +
		cfg.WeightLike*float64(m.Like)
}

// score computes the trend score for a gated-in candidate:
//
//	velocity  = engagement / (hours + 2)
//	relative  = engagement / log10(followers + 10)
//	virality  = shares / (likes + 1)
//	freshness = exp(-lambda * hours)
//	total     = (A*velocity + B*relative + C*virality) * freshness * boost
func (cfg Config) score(c candidate.Candidate, now time.Time) (float64, candidate.ScoreComponents) {
	hours := ageHours(c.CreatedAt, now)
	eng := cfg.engagement(c.Metrics)

	velocity := eng / (hours + 2)
	relative := eng / math.Log10(float64(c.Author.Followers)+10)
	virality := float64(c.Metrics.Retweet) / (float64(c.Metrics.Like) + 1)
	freshness := math.Exp(-cfg.FreshnessLambda * hours)

	boost := 1.0
	if c.Source == candidate.SourceAuthor {
		boost = cfg.AuthorBoost
	}

	total := (cfg.WeightVelocity*velocity + cfg.WeightRelative*relative + cfg.WeightVirality*virality) * freshness * boost

	return total, candidate.ScoreComponents{
		Velocity:      velocity,
		Relative:      relative,
		Virality:      virality,
		Freshness:     freshness,
		RawEngagement: eng,
		AgeHours:      hours,
	}
}
