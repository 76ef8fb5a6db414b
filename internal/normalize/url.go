package normalize

import (
	"net/url"
	"sort"
	"strings"
)

// Query parameters dropped outright during canonicalization, on top of
// the utm_* prefix family.
var droppedQueryKeys = map[string]struct{}{
	"ref":     {},
	"ref_src": {},
	"s":       {},
	"t":       {},
}

// Query parameters kept verbatim. Everything not in this set is dropped:
// social URLs carry tracking junk far more often than meaning.
var keptQueryKeys = map[string]struct{}{
	"id": {},
}

// CanonicalURL reduces a raw URL to a stable comparison key: lowercased
// host without "www.", twitter.com collapsed into x.com, tracking query
// parameters and the fragment removed, trailing slashes trimmed. The
// result is empty iff the input is empty or unparseable, and the
// function is idempotent.
func CanonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if parsed.Host == "" {
		// Scheme-less input like "x.com/a/status/1".
		parsed, err = url.Parse("https://" + trimmed)
		if err != nil || parsed.Host == "" {
			return ""
		}
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	if host == "twitter.com" || host == "x.com" {
		host = "x.com"
	}
	parsed.Host = host

	// Trim the decoded path and its raw form in tandem; a "/" encodes
	// to itself, so the two stay consistent and escapes are untouched.
	for strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	for strings.HasSuffix(parsed.RawPath, "/") {
		parsed.RawPath = strings.TrimSuffix(parsed.RawPath, "/")
	}

	parsed.Fragment = ""
	parsed.RawQuery = filterQuery(parsed.Query())

	return parsed.String()
}

func filterQuery(q url.Values) string {
	kept := url.Values{}
	for key, values := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			continue
		}
		if _, drop := droppedQueryKeys[lower]; drop {
			continue
		}
		if _, keep := keptQueryKeys[lower]; !keep {
			continue
		}
		for _, value := range values {
			kept.Add(key, value)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	keys := make([]string, 0, len(kept))
	for key := range kept {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ordered := url.Values{}
	for _, key := range keys {
		for _, value := range kept[key] {
			ordered.Add(key, value)
		}
	}
	return ordered.Encode()
}
