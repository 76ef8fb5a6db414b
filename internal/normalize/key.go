package normalize

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
)

// KeyFor derives the strongest identity key a candidate offers. A
// platform-native id wins, prefixed by provenance so ids from different
// platforms never collide; otherwise the key is a hash of the canonical
// URL, prefixed to mark it URL-derived. The candidate's URL must
// already be canonical when no id is present.
func KeyFor(c candidate.Candidate) string {
	if c.ID != "" {
		return platformPrefix(c.Platform) + ":" + c.ID
	}
	sum := sha256.Sum256([]byte(CanonicalURL(c.URL)))
	return "url:" + hex.EncodeToString(sum[:])[:16]
}

func platformPrefix(platform string) string {
	switch platform {
	case candidate.PlatformReddit:
		return "reddit"
	default:
		return "tweet"
	}
}
