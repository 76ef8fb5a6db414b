package discover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
	payloadschema "github.com/geoinvestbtc-x/x-trend-digest/schema"
)

// FileSource reads pre-fetched candidate block payloads from *.json
// files in a directory. It exists for replaying captured discovery
// output and for feeding the pipeline from cron jobs that fetch
// elsewhere. Files that fail schema validation are skipped with a log
// line, never fatal.
type FileSource struct {
	dir    string
	logger zerolog.Logger
}

func NewFileSource(dir string, logger zerolog.Logger) *FileSource {
	return &FileSource{dir: dir, logger: logger}
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Discover(ctx context.Context, onlyCategory string) ([]candidate.Block, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read payload dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var blocks []candidate.Block
	for _, name := range names {
		if ctx.Err() != nil {
			return blocks, ctx.Err()
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("skipping unreadable payload")
			continue
		}
		block, err := payloadschema.ValidateCandidateBlock(data)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("skipping invalid payload")
			continue
		}
		if onlyCategory != "" && block.Category != onlyCategory {
			continue
		}
		blocks = append(blocks, *block)
	}

	return blocks, nil
}
