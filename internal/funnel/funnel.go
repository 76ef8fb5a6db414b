// Package funnel tracks per-category counters across the pipeline
// stages so every run can answer "where did the candidates go".
package funnel

import (
	"sort"

	"github.com/rs/zerolog"
)

type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageInWindow   Stage = "in_window"
	StageAfterNorm  Stage = "after_norm"
	StageAfterTTL   Stage = "after_ttl"
	StageAfterDedup Stage = "after_dedup"
	StageAfterRank  Stage = "after_rank"
	StagePicks      Stage = "picks"
	StageSent       Stage = "sent"
)

var stageOrder = []Stage{
	StageDiscovered,
	StageInWindow,
	StageAfterNorm,
	StageAfterTTL,
	StageAfterDedup,
	StageAfterRank,
	StagePicks,
	StageSent,
}

// Funnel is not safe for concurrent use; the pipeline runs stages
// sequentially.
type Funnel struct {
	counts map[string]map[Stage]int
}

func New() *Funnel {
	return &Funnel{counts: make(map[string]map[Stage]int)}
}

func (f *Funnel) Add(category string, stage Stage, n int) {
	if category == "" {
		category = "?"
	}
	byStage, ok := f.counts[category]
	if !ok {
		byStage = make(map[Stage]int)
		f.counts[category] = byStage
	}
	byStage[stage] += n
}

func (f *Funnel) Set(category string, stage Stage, n int) {
	if category == "" {
		category = "?"
	}
	byStage, ok := f.counts[category]
	if !ok {
		byStage = make(map[Stage]int)
		f.counts[category] = byStage
	}
	byStage[stage] = n
}

func (f *Funnel) Get(category string, stage Stage) int {
	return f.counts[category][stage]
}

func (f *Funnel) Categories() []string {
	cats := make([]string, 0, len(f.counts))
	for cat := range f.counts {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

func (f *Funnel) Totals() map[Stage]int {
	totals := make(map[Stage]int, len(stageOrder))
	for _, byStage := range f.counts {
		for stage, n := range byStage {
			totals[stage] += n
		}
	}
	return totals
}

// Snapshot exports the counters as plain maps for run artifacts and the
// HTTP API.
func (f *Funnel) Snapshot() map[string]map[string]int {
	out := make(map[string]map[string]int, len(f.counts))
	for cat, byStage := range f.counts {
		stages := make(map[string]int, len(stageOrder))
		for _, stage := range stageOrder {
			stages[string(stage)] = byStage[stage]
		}
		out[cat] = stages
	}
	return out
}

// LogSummary writes one line per category plus a totals line.
func (f *Funnel) LogSummary(logger zerolog.Logger) {
	for _, cat := range f.Categories() {
		event := logger.Info().Str("category", cat)
		for _, stage := range stageOrder {
			event = event.Int(string(stage), f.counts[cat][stage])
		}
		event.Msg("funnel summary")
	}

	totals := f.Totals()
	event := logger.Info().Str("category", "TOTAL")
	for _, stage := range stageOrder {
		event = event.Int(string(stage), totals[stage])
	}
	event.Msg("funnel summary")
}
