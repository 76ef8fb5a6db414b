package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	mentionPattern    = regexp.MustCompile(`@\w+`)
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	punctPattern      = regexp.MustCompile(`[^\w\s]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// normalizeText flattens post text for content dedup: lowercase, strip
// @mentions and URLs, strip punctuation, NFKD, collapse whitespace.
func normalizeText(text string) string {
	t := strings.ToLower(text)
	t = mentionPattern.ReplaceAllString(t, "")
	t = urlPattern.ReplaceAllString(t, "")
	t = punctPattern.ReplaceAllString(t, "")
	t = norm.NFKD.String(t)
	t = whitespacePattern.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// TextHash fingerprints normalized post text. Two texts that normalize
// identically always hash identically; the 16-hex-char SHA-1 prefix is
// wide enough that accidental collisions between unrelated posts are
// not a concern.
func TextHash(text string) string {
	sum := sha1.Sum([]byte(normalizeText(text)))
	return hex.EncodeToString(sum[:])[:16]
}
