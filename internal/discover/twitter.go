package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/globaltime"
)

const (
	defaultTwitterAPIBase = "https://api.twitterapi.io"
	maxItemsPerQuery      = 120
)

// TwitterSource discovers candidates from twitterapi.io: keyword
// advanced search plus followed-author timelines per category.
type TwitterSource struct {
	apiKey     string
	baseURL    string
	categories []Category
	window     time.Duration
	maxPages   int
	client     *http.Client
	logger     zerolog.Logger
}

func NewTwitterSource(apiKey string, categories []Category, window time.Duration, maxPages int, logger zerolog.Logger) *TwitterSource {
	if maxPages <= 0 {
		maxPages = 2
	}
	return &TwitterSource{
		apiKey:     apiKey,
		baseURL:    defaultTwitterAPIBase,
		categories: categories,
		window:     window,
		maxPages:   maxPages,
		client:     &http.Client{Timeout: 40 * time.Second},
		logger:     logger,
	}
}

func (s *TwitterSource) Name() string { return "twitter" }

func (s *TwitterSource) Discover(ctx context.Context, onlyCategory string) ([]candidate.Block, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return nil, fmt.Errorf("TWITTERAPI_IO_KEY missing")
	}

	var blocks []candidate.Block
	for _, cat := range s.categories {
		if onlyCategory != "" && onlyCategory != cat.Name {
			continue
		}

		var items []candidate.Candidate
		var errs []string
		seenIDs := make(map[string]struct{})

		for _, query := range cat.Queries {
			tweets, err := s.paginatedSearch(ctx, cat.Name, query)
			if err != nil {
				errs = append(errs, fmt.Sprintf("query %q: %v", query, err))
				continue
			}
			for _, tw := range tweets {
				c := s.toCandidate(tw, "keyword")
				if c.ID != "" {
					if _, dup := seenIDs[c.ID]; dup {
						continue
					}
					seenIDs[c.ID] = struct{}{}
				}
				items = append(items, c)
			}
		}

		for _, author := range cat.Authors {
			tweets, err := s.lastTweets(ctx, author)
			if err != nil {
				errs = append(errs, fmt.Sprintf("author %s: %v", author, err))
				continue
			}
			for _, tw := range tweets {
				if !inWindow(tw.CreatedAt, globaltime.UTC(), s.window) {
					continue
				}
				c := s.toCandidate(tw, candidate.SourceAuthor)
				if c.ID != "" {
					if _, dup := seenIDs[c.ID]; dup {
						continue
					}
					seenIDs[c.ID] = struct{}{}
				}
				items = append(items, c)
			}
		}

		s.logger.Info().
			Str("category", cat.Name).
			Int("items", len(items)).
			Int("errors", len(errs)).
			Msg("twitter discovery")

		blocks = append(blocks, candidate.Block{
			Category: cat.Name,
			Items:    items,
			Err:      strings.Join(errs, "; "),
		})
	}

	return blocks, nil
}

// tweet mirrors the subset of the twitterapi.io tweet payload the
// pipeline consumes.
type tweet struct {
	ID            string         `json:"id"`
	URL           string         `json:"url"`
	CreatedAt     string         `json:"createdAt"`
	Text          string         `json:"text"`
	Lang          string         `json:"lang"`
	BookmarkCount int            `json:"bookmarkCount"`
	RetweetCount  int            `json:"retweetCount"`
	ReplyCount    int            `json:"replyCount"`
	LikeCount     int            `json:"likeCount"`
	ViewCount     int            `json:"viewCount"`
	QuoteCount    int            `json:"quoteCount"`
	Author        tweetAuthor    `json:"author"`
	QuotedTweet   *tweet         `json:"quotedTweet"`
	Entities      map[string]any `json:"entities"`
}

type tweetAuthor struct {
	UserName       string `json:"userName"`
	Name           string `json:"name"`
	Followers      int    `json:"followers"`
	IsBlueVerified bool   `json:"isBlueVerified"`
	Verified       bool   `json:"verified"`
}

type searchResponse struct {
	Tweets      []tweet `json:"tweets"`
	HasNextPage bool    `json:"has_next_page"`
	NextCursor  string  `json:"next_cursor"`
}

func (s *TwitterSource) paginatedSearch(ctx context.Context, category, query string) ([]tweet, error) {
	var all []tweet
	cursor := ""
	now := globaltime.UTC()

	for page := 0; page < s.maxPages; page++ {
		params := url.Values{}
		params.Set("query", query)
		params.Set("queryType", "Latest")
		params.Set("cursor", cursor)

		var resp searchResponse
		if err := s.get(ctx, "/twitter/tweet/advanced_search", params, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Tweets...)

		s.logger.Debug().
			Str("category", category).
			Int("page", page+1).
			Int("items", len(resp.Tweets)).
			Int("total", len(all)).
			Bool("has_next", resp.HasNextPage).
			Msg("twitter search page")

		if !resp.HasNextPage || resp.NextCursor == "" {
			break
		}
		if len(all) >= maxItemsPerQuery {
			break
		}

		// Stop paging once most of the page fell out of the window.
		inWin := 0
		for _, tw := range resp.Tweets {
			if inWindow(tw.CreatedAt, now, s.window) {
				inWin++
			}
		}
		if len(resp.Tweets) > 0 && float64(inWin)/float64(len(resp.Tweets)) < 0.3 {
			break
		}
		cursor = resp.NextCursor
	}

	kept := all[:0]
	for _, tw := range all {
		if inWindow(tw.CreatedAt, now, s.window) {
			kept = append(kept, tw)
		}
	}
	return kept, nil
}

type timelineResponse struct {
	Tweets []tweet `json:"tweets"`
}

func (s *TwitterSource) lastTweets(ctx context.Context, username string) ([]tweet, error) {
	params := url.Values{}
	params.Set("userName", username)

	var resp timelineResponse
	if err := s.get(ctx, "/twitter/user/last_tweets", params, &resp); err != nil {
		return nil, err
	}
	return resp.Tweets, nil
}

// get performs one API call with retry on 429.
func (s *TwitterSource) get(ctx context.Context, path string, params url.Values, out any) error {
	const retries = 3
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(float64(int(1)<<attempt)*1.5+rand.Float64()) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("X-API-Key", s.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited")
			s.logger.Warn().Int("attempt", attempt).Msg("twitter API rate limited")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("twitter API %s: status %d", path, resp.StatusCode)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode twitter API response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("twitter API %s: %w", path, lastErr)
}

func (s *TwitterSource) toCandidate(tw tweet, source string) candidate.Candidate {
	quotedID := ""
	quotedText := ""
	if tw.QuotedTweet != nil {
		quotedID = tw.QuotedTweet.ID
		quotedText = tw.QuotedTweet.Text
	}

	entities := make(map[string]string, len(tw.Entities))
	for k, v := range tw.Entities {
		if str, ok := v.(string); ok {
			entities[k] = str
		}
	}

	return candidate.Candidate{
		ID:        tw.ID,
		URL:       tw.URL,
		CreatedAt: tw.CreatedAt,
		Text:      tw.Text,
		Metrics: candidate.Metrics{
			Bookmark: tw.BookmarkCount,
			Retweet:  tw.RetweetCount,
			Reply:    tw.ReplyCount,
			Like:     tw.LikeCount,
			View:     tw.ViewCount,
			Quote:    tw.QuoteCount,
		},
		Author: candidate.Author{
			UserName:  tw.Author.UserName,
			Name:      tw.Author.Name,
			Followers: tw.Author.Followers,
			Verified:  tw.Author.IsBlueVerified || tw.Author.Verified,
		},
		Entities:   entities,
		Source:     source,
		QuotedID:   quotedID,
		QuotedText: quotedText,
	}
}
