package summarize

import (
	"regexp"
	"strings"
)

var (
	tcoLinkPattern      = regexp.MustCompile(`https?://t\.co/\S+`)
	anyLinkPattern      = regexp.MustCompile(`https?://\S+`)
	trailingTagsPattern = regexp.MustCompile(`(\s#\w+)+\s*$`)
	doubleNLPattern     = regexp.MustCompile(`\n{2,}`)
	spacesPattern       = regexp.MustCompile(`[ \t]+`)

	sentenceEndPattern = regexp.MustCompile(`[.!?…](\s|$)`)
	clauseEndPattern   = regexp.MustCompile(`[;:—–](\s|$)`)
)

// CleanText strips links and trailing hashtags from post text and
// collapses whitespace, leaving prose the LLM can quote from.
func CleanText(text string) string {
	t := tcoLinkPattern.ReplaceAllString(text, "")
	t = anyLinkPattern.ReplaceAllString(t, "")
	t = trailingTagsPattern.ReplaceAllString(t, "")
	t = doubleNLPattern.ReplaceAllString(t, "\n")
	t = spacesPattern.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// SmartExcerpt cuts a self-contained excerpt out of post text,
// preferring a sentence boundary, then a clause boundary, then the last
// word boundary before maxChars.
func SmartExcerpt(text string, minChars, maxChars int) string {
	text = CleanText(text)
	if len(text) <= maxChars {
		return text
	}

	windowEnd := maxChars + 40
	if windowEnd > len(text) {
		windowEnd = len(text)
	}
	window := text[:windowEnd]

	if cut := lastBoundary(window, sentenceEndPattern, minChars, maxChars); cut > 0 {
		return strings.TrimSpace(window[:cut])
	}
	if cut := lastBoundary(window, clauseEndPattern, minChars, maxChars); cut > 0 {
		return strings.TrimSpace(window[:cut])
	}

	if space := strings.LastIndex(text[:maxChars], " "); space >= minChars {
		return strings.TrimSpace(text[:space]) + "…"
	}
	return strings.TrimSpace(text[:maxChars]) + "…"
}

// lastBoundary returns the end offset of the last pattern match whose
// end falls inside [minChars, maxChars], or 0.
func lastBoundary(window string, pattern *regexp.Regexp, minChars, maxChars int) int {
	best := 0
	for _, loc := range pattern.FindAllStringIndex(window, -1) {
		if loc[1] >= minChars && loc[1] <= maxChars {
			best = loc[1]
		}
	}
	return best
}

// ExtractJSONArray pulls the first balanced JSON array out of text, for
// models that wrap their JSON answer in prose despite instructions.
func ExtractJSONArray(text string) string {
	start := strings.Index(text, "[")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// ExtractJSONObject is ExtractJSONArray for a top-level object.
func ExtractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
