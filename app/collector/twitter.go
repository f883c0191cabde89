package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/lysyi3m/trend-comb/app/ranking"
	"github.com/lysyi3m/trend-comb/app/trend"
)

const (
	DefaultTwitterBaseURL = "https://api.twitter.com/2"

	searchSuffix  = " -is:retweet lang:en"
	minSampleSize = 10
	maxSampleSize = 100
)

var DefaultCategories = []string{
	"(trending OR viral OR breaking) -is:retweet lang:en",
	"#breaking -is:retweet lang:en",
	"what's happening -is:retweet lang:en",
}

type TwitterCollector struct {
	baseURL     string
	bearerToken string
	opts        HTTPOptions
}

func NewTwitterCollector(baseURL, bearerToken string, opts HTTPOptions) *TwitterCollector {
	if baseURL == "" {
		baseURL = DefaultTwitterBaseURL
	}
	return &TwitterCollector{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		opts:        opts.withDefaults(10 * time.Second),
	}
}

func (c *TwitterCollector) Source() trend.Source {
	return trend.SourceSearchEngagement
}

// Fetch samples recent posts for every category, ranks hashtags per category
// and merges the rankings. A category that fails is skipped; the fetch fails
// only when all of them do.
func (c *TwitterCollector) Fetch(ctx context.Context, p Params) (*trend.Result, error) {
	if c.bearerToken == "" {
		return nil, trend.NewError(c.Source(), trend.KindCredentialsMissing, nil)
	}

	categories := p.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	var (
		wg    sync.WaitGroup
		stats = make([][]ranking.HashtagStat, len(categories))
		errs  = make([]error, len(categories))
	)

	for i, query := range categories {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			resp, err := c.searchRecent(ctx, query, p.SampleSize)
			if err != nil {
				errs[i] = err
				return
			}
			stats[i] = ranking.ScoreHashtags(resp.posts())
		}(i, query)
	}
	wg.Wait()

	var (
		succeeded [][]ranking.HashtagStat
		warnings  []string
		firstErr  error
	)
	for i, err := range errs {
		if err != nil {
			slog.Warn("Category search failed", "source", c.Source(), "category", categories[i], "error", err)
			warnings = append(warnings, fmt.Sprintf("category %q skipped: %s", categories[i], messageOf(err)))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded = append(succeeded, stats[i])
	}

	if len(succeeded) == 0 {
		return nil, firstErr
	}

	merged := ranking.MergeHashtagStats(succeeded)
	now := c.opts.Now()
	geo := geoOrDefault(p.Geo)

	limit := ranking.MaxTrends
	if p.Limit > 0 && p.Limit < limit {
		limit = p.Limit
	}
	records := ranking.RankHashtags(merged, limit, geo, now)

	return &trend.Result{
		Success:        true,
		Count:          len(records),
		TotalAvailable: len(merged),
		Source:         c.Source(),
		Geo:            geo,
		Trends:         records,
		Warnings:       warnings,
		FetchedAt:      now,
	}, nil
}

// SearchTweets looks up original English posts for a user-entered query and
// returns them ordered by engagement.
func (c *TwitterCollector) SearchTweets(ctx context.Context, query string, maxResults int) ([]trend.Tweet, error) {
	if c.bearerToken == "" {
		return nil, trend.NewError(c.Source(), trend.KindCredentialsMissing, nil)
	}

	resp, err := c.searchRecent(ctx, query+searchSuffix, maxResults)
	if err != nil {
		return nil, err
	}

	return ranking.ScoreTweets(resp.posts()), nil
}

func (c *TwitterCollector) searchRecent(ctx context.Context, query string, maxResults int) (*searchResponse, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(clampSample(maxResults)))
	params.Set("tweet.fields", "created_at,public_metrics,entities")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username,name")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.bearerToken)

	data, err := fetch(ctx, c.Source(), c.opts, c.baseURL+"/tweets/search/recent?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, trend.NewError(c.Source(), trend.KindParse, fmt.Errorf("failed to decode search response: %w", err))
	}

	// A 200 without data but with errors is a rejected query, not an empty sample.
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		e := resp.Errors[0]
		return nil, &trend.Error{
			Kind:   trend.KindUpstreamAPI,
			Source: c.Source(),
			Detail: firstNonEmpty(e.Detail, e.Message, e.Title),
		}
	}

	return &resp, nil
}

func clampSample(n int) int {
	switch {
	case n <= 0:
		return maxSampleSize
	case n < minSampleSize:
		return minSampleSize
	case n > maxSampleSize:
		return maxSampleSize
	}
	return n
}

type searchResponse struct {
	Data []struct {
		ID            string     `json:"id"`
		Text          string     `json:"text"`
		AuthorID      string     `json:"author_id"`
		CreatedAt     *time.Time `json:"created_at"`
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
		Entities struct {
			Hashtags []struct {
				Tag string `json:"tag"`
			} `json:"hashtags"`
		} `json:"entities"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"users"`
	} `json:"includes"`
	Errors []struct {
		Title   string `json:"title"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (r *searchResponse) posts() []ranking.Post {
	type user struct{ username, name string }
	users := make(map[string]user, len(r.Includes.Users))
	for _, u := range r.Includes.Users {
		users[u.ID] = user{username: u.Username, name: u.Name}
	}

	posts := make([]ranking.Post, 0, len(r.Data))
	for _, d := range r.Data {
		p := ranking.Post{
			ID:       d.ID,
			Text:     d.Text,
			Likes:    d.PublicMetrics.LikeCount,
			Retweets: d.PublicMetrics.RetweetCount,
			Replies:  d.PublicMetrics.ReplyCount,
		}
		if d.CreatedAt != nil {
			p.CreatedAt = *d.CreatedAt
		}
		if u, ok := users[d.AuthorID]; ok {
			p.Author = u.username
			p.AuthorName = u.name
		}
		for _, h := range d.Entities.Hashtags {
			p.Hashtags = append(p.Hashtags, h.Tag)
		}
		posts = append(posts, p)
	}

	return posts
}

func messageOf(err error) string {
	var e *trend.Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
