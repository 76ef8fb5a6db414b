package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoinvestbtc-x/x-trend-digest/internal/candidate"
	"github.com/geoinvestbtc-x/x-trend-digest/internal/globaltime"
)

const defaultRedditBase = "https://www.reddit.com"

// RedditSource discovers candidates from Reddit's public JSON
// endpoints (any listing URL plus ".json"), no API key required.
// Unauthenticated rate limit is about 1 req/sec, so calls are spaced.
type RedditSource struct {
	subreddits map[string][]string
	userAgent  string
	baseURL    string
	minScore   int
	hotLimit   int
	topLimit   int
	window     time.Duration
	sleep      time.Duration
	client     *http.Client
	logger     zerolog.Logger
}

type RedditOptions struct {
	UserAgent string
	MinScore  int
	HotLimit  int
	TopLimit  int
	Window    time.Duration
}

func NewRedditSource(subreddits map[string][]string, opts RedditOptions, logger zerolog.Logger) *RedditSource {
	if opts.HotLimit <= 0 {
		opts.HotLimit = 50
	}
	if opts.TopLimit <= 0 {
		opts.TopLimit = 25
	}
	return &RedditSource{
		subreddits: subreddits,
		userAgent:  opts.UserAgent,
		baseURL:    defaultRedditBase,
		minScore:   opts.MinScore,
		hotLimit:   opts.HotLimit,
		topLimit:   opts.TopLimit,
		window:     opts.Window,
		sleep:      1100 * time.Millisecond,
		client:     &http.Client{Timeout: 20 * time.Second},
		logger:     logger,
	}
}

func (s *RedditSource) Name() string { return "reddit" }

func (s *RedditSource) Discover(ctx context.Context, onlyCategory string) ([]candidate.Block, error) {
	if len(s.subreddits) == 0 {
		return nil, nil
	}

	categories := make([]string, 0, len(s.subreddits))
	for cat := range s.subreddits {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var blocks []candidate.Block
	for _, cat := range categories {
		if onlyCategory != "" && onlyCategory != cat {
			continue
		}

		var items []candidate.Candidate
		var errs []string
		seenIDs := make(map[string]struct{})

		for _, sub := range s.subreddits[cat] {
			// hot catches what is trending right now; top/day catches
			// posts that peaked earlier today.
			listings := []struct {
				sortName   string
				timeFilter string
				limit      int
			}{
				{"hot", "", s.hotLimit},
				{"top", "day", s.topLimit},
			}
			for _, listing := range listings {
				posts, err := s.fetchListing(ctx, sub, listing.sortName, listing.limit, listing.timeFilter)
				if err != nil {
					errs = append(errs, fmt.Sprintf("r/%s: %v", sub, err))
					break
				}
				for _, post := range posts {
					if _, dup := seenIDs[post.ID]; dup {
						continue
					}
					c, ok := s.toCandidate(post, cat)
					if !ok {
						continue
					}
					seenIDs[post.ID] = struct{}{}
					items = append(items, c)
				}
				s.pause(ctx)
			}
		}

		s.logger.Info().
			Str("category", cat).
			Int("subreddits", len(s.subreddits[cat])).
			Int("items", len(items)).
			Msg("reddit discovery")

		blocks = append(blocks, candidate.Block{
			Category: cat,
			Items:    items,
			Err:      strings.Join(errs, "; "),
		})
	}

	return blocks, nil
}

func (s *RedditSource) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.sleep):
	}
}

type redditPost struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	SelfText            string  `json:"selftext"`
	CreatedUTC          float64 `json:"created_utc"`
	Score               int     `json:"score"`
	NumComments         int     `json:"num_comments"`
	TotalAwardsReceived int     `json:"total_awards_received"`
	Author              string  `json:"author"`
	Subreddit           string  `json:"subreddit"`
	Permalink           string  `json:"permalink"`
	URL                 string  `json:"url"`
	IsSelf              bool    `json:"is_self"`
	LinkFlairText       string  `json:"link_flair_text"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (s *RedditSource) fetchListing(ctx context.Context, sub, sortName string, limit int, timeFilter string) ([]redditPost, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("raw_json", "1")
	if timeFilter != "" {
		params.Set("t", timeFilter)
	}

	var listing redditListing
	endpoint := fmt.Sprintf("%s/r/%s/%s.json", s.baseURL, sub, sortName)
	if err := s.getJSON(ctx, endpoint, params, &listing); err != nil {
		return nil, err
	}

	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		posts = append(posts, child.Data)
	}
	return posts, nil
}

func (s *RedditSource) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	const retries = 3
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<attempt) * 2 * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", s.userAgent)
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
		switch resp.StatusCode {
		case http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode reddit response: %w", err)
			}
			return nil
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited")
			s.logger.Warn().Int("attempt", attempt).Msg("reddit rate limited")
			continue
		case http.StatusForbidden, http.StatusNotFound:
			// Private, banned, or missing subreddit: skip quietly.
			return nil
		default:
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		}
	}
	return fmt.Errorf("reddit request: %w", lastErr)
}

func (s *RedditSource) toCandidate(post redditPost, category string) (candidate.Candidate, bool) {
	if post.Title == "" {
		return candidate.Candidate{}, false
	}

	created := time.Unix(int64(post.CreatedUTC), 0).UTC()
	if globaltime.UTC().Sub(created) > s.window {
		return candidate.Candidate{}, false
	}
	if post.Score < s.minScore {
		return candidate.Candidate{}, false
	}

	body := post.SelfText
	if body == "[removed]" || body == "[deleted]" {
		body = ""
	}
	text := post.Title
	if body != "" {
		if len(body) > 400 {
			body = body[:400]
		}
		text += "\n\n" + body
	}

	externalURL := ""
	if !post.IsSelf && post.URL != "" &&
		!strings.Contains(post.URL, "reddit.com") && !strings.Contains(post.URL, "redd.it") {
		externalURL = post.URL
	}

	author := post.Author
	if author == "" {
		author = "[deleted]"
	}

	return candidate.Candidate{
		ID:        post.ID,
		URL:       defaultRedditBase + post.Permalink,
		CreatedAt: formatCreatedAt(created),
		Text:      text,
		Metrics: candidate.Metrics{
			Bookmark: post.TotalAwardsReceived,
			// Scale comment counts down toward tweet reply volumes.
			Reply: post.NumComments / 5,
			Like:  post.Score,
		},
		Author: candidate.Author{
			UserName: author,
			Name:     author,
		},
		Entities: map[string]string{
			"subreddit":    post.Subreddit,
			"flair":        post.LinkFlairText,
			"external_url": externalURL,
		},
		Source:   "subreddit",
		Platform: candidate.PlatformReddit,
	}, true
}

// Comment is one top-level post comment used to enrich ranked Reddit
// candidates before summarization.
type Comment struct {
	Author string
	Score  int
	Text   string
}

type redditCommentThread []struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				Author string `json:"author"`
				Score  int    `json:"score"`
				Body   string `json:"body"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchTopComments returns the highest-scored top-level comments for a
// post. Failures degrade to an empty list; comment enrichment is never
// worth failing a run over.
func (s *RedditSource) FetchTopComments(ctx context.Context, postID, subreddit string, limit int) []Comment {
	if postID == "" || subreddit == "" {
		return nil
	}

	params := url.Values{}
	params.Set("sort", "top")
	params.Set("limit", strconv.Itoa(limit+5))
	params.Set("depth", "1")
	params.Set("raw_json", "1")

	var thread redditCommentThread
	endpoint := fmt.Sprintf("%s/r/%s/comments/%s.json", s.baseURL, subreddit, postID)
	if err := s.getJSON(ctx, endpoint, params, &thread); err != nil {
		s.logger.Debug().Err(err).Str("post", postID).Msg("comment fetch failed")
		return nil
	}
	if len(thread) < 2 {
		return nil
	}

	var comments []Comment
	for _, child := range thread[1].Data.Children {
		if child.Kind != "t1" {
			continue
		}
		body := strings.TrimSpace(child.Data.Body)
		if body == "" || body == "[removed]" || body == "[deleted]" {
			continue
		}
		if child.Data.Score < 1 {
			continue
		}
		if len(body) > 400 {
			body = body[:400]
		}
		author := child.Data.Author
		if author == "" {
			author = "[deleted]"
		}
		comments = append(comments, Comment{Author: author, Score: child.Data.Score, Text: body})
	}

	sort.SliceStable(comments, func(i, j int) bool { return comments[i].Score > comments[j].Score })
	if len(comments) > limit {
		comments = comments[:limit]
	}
	return comments
}
