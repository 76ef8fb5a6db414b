// Package pipeline wires discovery, normalization, memory, ranking,
// summarization and publishing into one run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/config"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/discover"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/funnel"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/globaltime"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/memory"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/normalize"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/rank"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/summarize"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/telegram"
)

const commentEnrichTopN = 10

// Options control one run.
type Options struct {
	// DryRun executes the full pipeline but skips Telegram sends and
	// memory writes.
	DryRun bool
	// NoReddit skips the Reddit leg even when it is enabled in config.
	NoReddit bool
}

// RunResult is what one pipeline execution produced, for artifacts and
// the HTTP API.
type RunResult struct {
	Timestamp   string                      `json:"ts"`
	Picks       []summarize.Pick            `json:"picks"`
	RedditPicks []summarize.Pick            `json:"reddit_picks"`
	Usage       summarize.Usage             `json:"llm_usage"`
	Sent        int                         `json:"sent"`
	Funnel      map[string]map[string]int   `json:"funnel"`
	DedupStats  map[string]*normalize.Stats `json:"dedup_stats"`
	Rejected    map[string]map[string]int   `json:"rejected"`
}

// Pipeline holds the wired dependencies for runs. Source and reddit may
// be nil; sender is nil when sending is disabled.
type Pipeline struct {
	cfg        *config.Config
	categories []discover.Category
	source     discover.Source
	reddit     *discover.RedditSource
	store      memory.Store
	picker     summarize.Picker
	sender     *telegram.Sender
	logger     zerolog.Logger
}

func New(cfg *config.Config, categories []discover.Category, source discover.Source, reddit *discover.RedditSource, store memory.Store, picker summarize.Picker, sender *telegram.Sender, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		categories: categories,
		source:     source,
		reddit:     reddit,
		store:      store,
		picker:     picker,
		sender:     sender,
		logger:     logger,
	}
}

func (p *Pipeline) Run(ctx context.Context, opts Options) (*RunResult, error) {
	now := globaltime.UTC()
	fn := funnel.New()
	result := &RunResult{Timestamp: now.Format("20060102-1504")}

	p.logger.Info().
		Bool("dry_run", opts.DryRun).
		Str("only_category", p.cfg.OnlyCategory).
		Bool("reddit", p.reddit != nil && !opts.NoReddit).
		Str("model", p.cfg.GeminiModel).
		Msg("pipeline run starting")

	if stats, err := p.store.Stats(); err == nil {
		p.logger.Info().
			Int("total", stats.Total).
			Int("picks", stats.Picks).
			Int("ranked", stats.Ranked).
			Msg("memory state")
	} else {
		p.logger.Warn().Err(err).Msg("memory stats unavailable")
	}

	leg, err := p.runLeg(ctx, p.source, fn, opts)
	if err != nil {
		return nil, err
	}
	result.Picks = leg.picks
	result.DedupStats = leg.dedupStats
	result.Rejected = leg.rejected
	result.Usage.Add(leg.usage)

	var redditPicks []summarize.Pick
	var redditItems []telegram.DigestItem
	if p.reddit != nil && !opts.NoReddit {
		var redditUsage summarize.Usage
		redditPicks, redditItems, redditUsage = p.runRedditLeg(ctx, fn, opts)
		result.RedditPicks = redditPicks
		result.Usage.Add(redditUsage)
	}

	messages := p.render(leg.picks, redditPicks, redditItems)
	sentCategories, err := p.publish(ctx, messages, opts)
	if err != nil {
		p.logger.Error().Err(err).Msg("publish failed")
	}
	result.Sent = len(sentCategories)
	for _, cat := range sentCategories {
		fn.Add(cat, funnel.StageSent, 1)
	}

	if !opts.DryRun {
		if removed, err := p.store.Cleanup(now); err != nil {
			p.logger.Warn().Err(err).Msg("memory cleanup failed")
		} else if removed > 0 {
			p.logger.Info().Int("removed", removed).Msg("memory cleanup")
		}
	}

	fn.LogSummary(p.logger)
	result.Funnel = fn.Snapshot()
	p.saveArtifacts(result, messages)
	return result, nil
}

type legResult struct {
	picks      []summarize.Pick
	dedupStats map[string]*normalize.Stats
	rejected   map[string]map[string]int
	usage      summarize.Usage
}

// runLeg runs discover, normalize, TTL filter, cross-category merge,
// rank, summarize, memory append for one source.
func (p *Pipeline) runLeg(ctx context.Context, source discover.Source, fn *funnel.Funnel, opts Options) (legResult, error) {
	var leg legResult
	if source == nil {
		return leg, nil
	}
	now := globaltime.UTC()

	blocks, err := source.Discover(ctx, p.cfg.OnlyCategory)
	if err != nil {
		return leg, fmt.Errorf("discover (%s): %w", source.Name(), err)
	}
	for _, block := range blocks {
		if block.Err != "" {
			p.logger.Warn().Str("category", block.Category).Str("error", block.Err).Msg("discovery block error")
		}
		fn.Add(block.Category, funnel.StageDiscovered, len(block.Items))
		// Sources filter by window already.
		fn.Add(block.Category, funnel.StageInWindow, len(block.Items))
	}

	items, dedupStats := normalize.Run(blocks, p.logger)
	leg.dedupStats = dedupStats
	for _, item := range items {
		fn.Add(item.Category, funnel.StageAfterNorm, 1)
	}

	fresh, err := p.store.FilterNew(items, now)
	if err != nil {
		return leg, fmt.Errorf("memory filter: %w", err)
	}
	for _, item := range fresh {
		fn.Add(item.Category, funnel.StageAfterTTL, 1)
	}

	merged := mergeAcrossCategories(fresh)
	if removed := len(fresh) - len(merged); removed > 0 {
		p.logger.Info().Int("removed", removed).Msg("cross-category merge")
	}
	for _, item := range merged {
		fn.Add(item.Category, funnel.StageAfterDedup, 1)
	}

	ranked := rank.Run(merged, now, p.cfg.RankConfig(), p.logger)
	leg.rejected = ranked.Rejected
	for _, item := range ranked.Ranked {
		fn.Add(item.Category, funnel.StageAfterRank, 1)
	}

	if len(ranked.Ranked) == 0 {
		// Nothing passed the gate: no LLM call and no picks, never
		// low-quality filler.
		p.logger.Warn().Str("source", source.Name()).Msg("zero ranked candidates, skipping summarizer")
		return leg, nil
	}

	leg.picks, leg.usage = p.summarizeRanked(ctx, ranked.Ranked)
	for _, pick := range leg.picks {
		fn.Add(pick.Category, funnel.StagePicks, 1)
	}

	if err := p.persist(leg.picks, ranked.Ranked, opts); err != nil {
		return leg, err
	}
	return leg, nil
}

func (p *Pipeline) runRedditLeg(ctx context.Context, fn *funnel.Funnel, opts Options) ([]summarize.Pick, []telegram.DigestItem, summarize.Usage) {
	now := globaltime.UTC()

	blocks, err := p.reddit.Discover(ctx, p.cfg.OnlyCategory)
	if err != nil {
		p.logger.Error().Err(err).Msg("reddit discovery failed")
		return nil, nil, summarize.Usage{}
	}
	for _, block := range blocks {
		if block.Err != "" {
			p.logger.Warn().Str("category", block.Category).Str("error", block.Err).Msg("reddit block error")
		}
		fn.Add(block.Category, funnel.StageDiscovered, len(block.Items))
		fn.Add(block.Category, funnel.StageInWindow, len(block.Items))
	}

	items, _ := normalize.Run(blocks, p.logger)
	for _, item := range items {
		fn.Add(item.Category, funnel.StageAfterNorm, 1)
	}

	fresh, err := p.store.FilterNew(items, now)
	if err != nil {
		p.logger.Error().Err(err).Msg("reddit memory filter failed")
		return nil, nil, summarize.Usage{}
	}
	fresh = mergeAcrossCategories(fresh)
	for _, item := range fresh {
		fn.Add(item.Category, funnel.StageAfterTTL, 1)
		fn.Add(item.Category, funnel.StageAfterDedup, 1)
	}

	ranked := rank.Run(fresh, now, p.cfg.RankConfig(), p.logger)
	for _, item := range ranked.Ranked {
		fn.Add(item.Category, funnel.StageAfterRank, 1)
	}
	if len(ranked.Ranked) == 0 {
		p.logger.Warn().Msg("reddit: zero ranked candidates, skipping summarizer")
		return nil, nil, summarize.Usage{}
	}

	enriched := p.enrichWithComments(ctx, ranked.Ranked)

	picks, usage := p.summarizeRanked(ctx, enriched)
	for _, pick := range picks {
		fn.Add(pick.Category, funnel.StagePicks, 1)
	}

	if err := p.persist(picks, enriched, opts); err != nil {
		p.logger.Error().Err(err).Msg("reddit memory append failed")
	}

	return picks, digestItems(picks, enriched), usage
}

// enrichWithComments appends top comments to the reddit candidates most
// likely to reach the LLM, at most commentEnrichTopN per category.
func (p *Pipeline) enrichWithComments(ctx context.Context, ranked []candidate.Candidate) []candidate.Candidate {
	if p.cfg.RedditComments <= 0 {
		return ranked
	}

	perCategory := make(map[string]int)
	out := make([]candidate.Candidate, len(ranked))
	copy(out, ranked)

	enrichedCount := 0
	for i := range out {
		item := &out[i]
		if perCategory[item.Category] >= commentEnrichTopN {
			continue
		}
		perCategory[item.Category]++

		subreddit := item.Entities["subreddit"]
		comments := p.reddit.FetchTopComments(ctx, item.ID, subreddit, p.cfg.RedditComments)
		if len(comments) == 0 {
			continue
		}

		var sb strings.Builder
		sb.WriteString(item.Text)
		sb.WriteString("\n\nTop comments:\n")
		for _, c := range comments {
			fmt.Fprintf(&sb, "[⬆️%d] %s\n", c.Score, c.Text)
		}
		item.Text = strings.TrimRight(sb.String(), "\n")
		enrichedCount++
	}

	if enrichedCount > 0 {
		p.logger.Info().Int("enriched", enrichedCount).Msg("reddit comment enrichment")
	}
	return out
}

// summarizeRanked calls the picker per category in category-config
// order. A category's picker failure costs that category only.
func (p *Pipeline) summarizeRanked(ctx context.Context, ranked []candidate.Candidate) ([]summarize.Pick, summarize.Usage) {
	byCategory := make(map[string][]candidate.Candidate)
	for _, item := range ranked {
		byCategory[item.Category] = append(byCategory[item.Category], item)
	}

	var picks []summarize.Pick
	var usage summarize.Usage
	for _, cat := range p.categoryOrder(byCategory) {
		items := byCategory[cat]
		if len(items) == 0 {
			continue
		}

		catPicks, catUsage, err := p.picker.PickCategory(ctx, cat, p.categoryContext(cat), items, p.cfg.PicksPerCat)
		usage.Add(catUsage)
		if err != nil {
			p.logger.Error().Err(err).Str("category", cat).Msg("summarizer failed for category")
			continue
		}
		picks = append(picks, catPicks...)
	}

	p.logger.Info().
		Int("picks", len(picks)).
		Int("llm_calls", usage.Calls).
		Int("total_tokens", usage.TotalTokens).
		Msg("summarize done")
	return picks, usage
}

// persist appends picks under the pick tier and the ranked leftovers
// under the ranked tier, so picks stay suppressed for the long TTL and
// near-misses only for the short one.
func (p *Pipeline) persist(picks []summarize.Pick, ranked []candidate.Candidate, opts Options) error {
	if opts.DryRun {
		p.logger.Info().Int("picks", len(picks)).Int("ranked", len(ranked)).Msg("dry run, skipping memory writes")
		return nil
	}

	pickKeys := make(map[string]struct{}, len(picks))
	byKey := make(map[string]candidate.Candidate, len(ranked))
	byID := make(map[string]candidate.Candidate, len(ranked))
	for _, item := range ranked {
		if item.Key != "" {
			byKey[item.Key] = item
		}
		if item.ID != "" {
			byID[item.ID] = item
		}
	}

	var picked []candidate.Candidate
	for _, pick := range picks {
		// Keys cover URL-only candidates that never had a platform id.
		base, ok := byKey[pick.Key]
		if !ok {
			base, ok = byID[pick.ID]
		}
		if !ok {
			continue
		}
		pickKeys[base.Key] = struct{}{}
		picked = append(picked, base)
	}

	var leftovers []candidate.Candidate
	for _, item := range ranked {
		if _, isPick := pickKeys[item.Key]; isPick {
			continue
		}
		leftovers = append(leftovers, item)
	}

	if err := p.store.Append(picked, memory.TierPick); err != nil {
		return fmt.Errorf("append picks: %w", err)
	}
	if err := p.store.Append(leftovers, memory.TierRanked); err != nil {
		return fmt.Errorf("append ranked: %w", err)
	}
	p.logger.Info().Int("picks", len(picked)).Int("ranked", len(leftovers)).Msg("memory saved")
	return nil
}

func (p *Pipeline) render(picks, redditPicks []summarize.Pick, redditItems []telegram.DigestItem) []telegram.RenderedMessage {
	order := p.allCategoryNames(picks, redditPicks)

	twitterByCat := make(map[string][]telegram.DigestItem)
	for _, pick := range picks {
		twitterByCat[pick.Category] = append(twitterByCat[pick.Category], telegram.DigestItem{Pick: pick})
	}
	redditByCat := make(map[string][]telegram.DigestItem)
	for _, item := range redditItems {
		redditByCat[item.Pick.Category] = append(redditByCat[item.Pick.Category], item)
	}

	messages := telegram.Render(twitterByCat, order, telegram.SourceTwitter)
	messages = append(messages, telegram.Render(redditByCat, order, telegram.SourceReddit)...)
	return messages
}

func (p *Pipeline) publish(ctx context.Context, messages []telegram.RenderedMessage, opts Options) ([]string, error) {
	if len(messages) == 0 {
		p.logger.Info().Msg("nothing to publish")
		return nil, nil
	}
	if opts.DryRun {
		p.logger.Info().Int("messages", len(messages)).Msg("dry run, skipping telegram send")
		return nil, nil
	}
	if p.sender == nil {
		p.logger.Info().Int("messages", len(messages)).Msg("telegram sending disabled")
		return nil, nil
	}
	return p.sender.Send(ctx, messages)
}

// categoryOrder returns configured category names first, then any
// extras alphabetically.
func (p *Pipeline) categoryOrder(byCategory map[string][]candidate.Candidate) []string {
	names := make(map[string]struct{}, len(byCategory))
	for cat := range byCategory {
		names[cat] = struct{}{}
	}
	var order []string
	for _, cat := range p.categories {
		if _, ok := names[cat.Name]; ok {
			order = append(order, cat.Name)
			delete(names, cat.Name)
		}
	}
	var extras []string
	for cat := range names {
		extras = append(extras, cat)
	}
	sort.Strings(extras)
	return append(order, extras...)
}

func (p *Pipeline) allCategoryNames(picks, redditPicks []summarize.Pick) []string {
	names := make(map[string][]candidate.Candidate)
	for _, pick := range picks {
		names[pick.Category] = nil
	}
	for _, pick := range redditPicks {
		names[pick.Category] = nil
	}
	return p.categoryOrder(names)
}

func (p *Pipeline) categoryContext(name string) string {
	for _, cat := range p.categories {
		if cat.Name == name {
			return cat.Context
		}
	}
	return ""
}

// mergeAcrossCategories collapses the same identity key recurring in
// different categories, keeping the instance with more text.
func mergeAcrossCategories(items []candidate.Candidate) []candidate.Candidate {
	byKey := make(map[string]int, len(items))
	out := make([]candidate.Candidate, 0, len(items))
	for _, item := range items {
		idx, seen := byKey[item.Key]
		if !seen {
			byKey[item.Key] = len(out)
			out = append(out, item)
			continue
		}
		if len(item.Text) > len(out[idx].Text) {
			out[idx] = item
		}
	}
	return out
}

// digestItems joins picks with their source candidates to carry the
// display stats the reddit renderer needs.
func digestItems(picks []summarize.Pick, ranked []candidate.Candidate) []telegram.DigestItem {
	byID := make(map[string]candidate.Candidate, len(ranked))
	for _, item := range ranked {
		if item.ID != "" {
			byID[item.ID] = item
		}
	}

	items := make([]telegram.DigestItem, 0, len(picks))
	for _, pick := range picks {
		item := telegram.DigestItem{Pick: pick}
		if base, ok := byID[pick.ID]; ok {
			item.Upvotes = base.Metrics.Like
			// Comment counts were scaled down on ingest; restore for display.
			item.Comments = base.Metrics.Reply * 5
			item.Subreddit = base.Entities["subreddit"]
			item.ExternalURL = base.Entities["external_url"]
		}
		items = append(items, item)
	}
	return items
}
