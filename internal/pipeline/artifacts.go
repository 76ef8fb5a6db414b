package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/globaltime"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/telegram"
)

// saveArtifacts writes the run's outputs to disk: the picks payload and
// rendered messages under the out dir, and the full run result under
// the data dir keyed by day. Artifact failures are logged, never fatal.
func (p *Pipeline) saveArtifacts(result *RunResult, messages []telegram.RenderedMessage) {
	ts := result.Timestamp
	day := globaltime.UTC().Format("20060102")

	p.writeJSON(filepath.Join(p.cfg.OutDir, fmt.Sprintf("payload-%s.json", ts)), result.Picks)
	p.writeJSON(filepath.Join(p.cfg.OutDir, fmt.Sprintf("telegram-messages-%s.json", ts)), messages)
	p.writeJSON(filepath.Join(p.cfg.DataDir, fmt.Sprintf("run-%s.json", day)), result)

	var md strings.Builder
	fmt.Fprintf(&md, "# Trend digest (%s UTC)\n\n", ts)
	for _, msg := range messages {
		md.WriteString(msg.Text)
		md.WriteString("\n\n")
	}
	p.writeFile(filepath.Join(p.cfg.OutDir, fmt.Sprintf("digest-%s.md", ts)), md.String())

	texts := make([]string, 0, len(messages))
	for _, msg := range messages {
		texts = append(texts, msg.Text)
	}
	p.writeFile(filepath.Join(p.cfg.OutDir, fmt.Sprintf("telegram-ready-%s.txt", ts)), strings.Join(texts, "\n\n"))
}

func (p *Pipeline) writeJSON(path string, value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("marshal artifact failed")
		return
	}
	p.writeFile(path, string(data))
}

func (p *Pipeline) writeFile(path, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("create artifact dir failed")
		return
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("write artifact failed")
	}
}
