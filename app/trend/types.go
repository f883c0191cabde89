package trend

import (
	"encoding/json"
	"time"
)

type Source string

const (
	SourceSearchEngagement Source = "twitter_search"
	SourceAggregatorAPI    Source = "serpapi_trending_now"
	SourceFeed             Source = "google_trends_rss"
)

const DefaultGeo = "US"

func Sources() []Source {
	return []Source{SourceSearchEngagement, SourceAggregatorAPI, SourceFeed}
}

func (s Source) Valid() bool {
	switch s {
	case SourceSearchEngagement, SourceAggregatorAPI, SourceFeed:
		return true
	}
	return false
}

// Record is a single trending item. Metadata is opaque to ranking and caching.
type Record struct {
	Rank      int       `json:"rank"`
	Topic     string    `json:"topic"`
	Source    Source    `json:"source"`
	Geo       string    `json:"geo"`
	Score     int64     `json:"score"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts payloads that carry the display string as "hashtag"
// instead of "topic".
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	aux := struct {
		*plain
		Hashtag string `json:"hashtag"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.Topic == "" {
		r.Topic = aux.Hashtag
	}
	return nil
}

type Tweet struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	Author          string    `json:"author"`
	AuthorName      string    `json:"author_name"`
	CreatedAt       time.Time `json:"created_at"`
	Likes           int       `json:"likes"`
	Retweets        int       `json:"retweets"`
	Replies         int       `json:"replies"`
	EngagementScore int       `json:"engagement_score"`
	URL             string    `json:"url"`
}

// Result is the normalized payload shared by every trend source. Cached and
// CacheAgeSeconds are only ever set on the read path.
type Result struct {
	Success         bool      `json:"success"`
	Count           int       `json:"count"`
	TotalAvailable  int       `json:"total_available,omitempty"`
	Source          Source    `json:"source"`
	Geo             string    `json:"geo,omitempty"`
	Trends          []Record  `json:"trends"`
	Warnings        []string  `json:"warnings,omitempty"`
	FetchedAt       time.Time `json:"fetched_at"`
	Cached          bool      `json:"cached"`
	CacheAgeSeconds *int64    `json:"cache_age_seconds,omitempty"`
}

type SearchResult struct {
	Success   bool      `json:"success"`
	Query     string    `json:"query"`
	Count     int       `json:"count"`
	Tweets    []Tweet   `json:"tweets"`
	FetchedAt time.Time `json:"fetched_at"`
	Cached    bool      `json:"cached"`
}

// NewsResult carries the articles behind one trending search.
type NewsResult struct {
	Success   bool              `json:"success"`
	PageToken string            `json:"page_token"`
	Count     int               `json:"count"`
	News      []json.RawMessage `json:"news"`
	FetchedAt time.Time         `json:"fetched_at"`
	Cached    bool              `json:"cached"`
}
