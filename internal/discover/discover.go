// Package discover holds the thin discovery adapters that feed raw
// candidate blocks into the pipeline. Adapters are swappable I/O; all
// real invariants live downstream of them.
package discover

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

// Source is one discovery backend producing per-category candidate
// blocks. A source failure for one category is reported inside the
// block, not as a fatal error.
type Source interface {
	Name() string
	Discover(ctx context.Context, onlyCategory string) ([]candidate.Block, error)
}

// Category configures one digest category: the keyword queries and the
// followed-author handles to pull from, plus the curation context
// handed to the summarizer.
type Category struct {
	Name    string   `yaml:"name"`
	Queries []string `yaml:"queries"`
	Authors []string `yaml:"authors"`
	Context string   `yaml:"context"`
}

type categoriesFile struct {
	Categories []Category `yaml:"categories"`
}

func LoadCategories(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories config: %w", err)
	}
	var parsed categoriesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse categories config: %w", err)
	}
	return parsed.Categories, nil
}

// LoadSubreddits maps category name to subreddit names. A missing file
// is not an error; it just disables Reddit discovery.
func LoadSubreddits(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read subreddits config: %w", err)
	}
	var parsed map[string][]string
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse subreddits config: %w", err)
	}
	return parsed, nil
}

const createdAtLayout = time.RubyDate

// inWindow reports whether a source timestamp falls inside the
// discovery window. Unparseable timestamps are out of window.
func inWindow(createdAt string, now time.Time, window time.Duration) bool {
	parsed, err := time.Parse(createdAtLayout, createdAt)
	if err != nil {
		return false
	}
	return now.Sub(parsed) <= window
}

func formatCreatedAt(t time.Time) string {
	return t.UTC().Format(createdAtLayout)
}
