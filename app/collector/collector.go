// Package collector adapts each upstream trend source to a common Fetch
// contract. Every failure leaves a collector as a *trend.Error.
package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lysyi3m/trend-comb/app/trend"
)

const DefaultUserAgent = "trend-comb/1.0"

type Params struct {
	Geo        string
	Limit      int      // 0 keeps every upstream item
	Categories []string // search-engagement only
	SampleSize int      // search-engagement only, posts per category
}

type Collector interface {
	Source() trend.Source
	Fetch(ctx context.Context, p Params) (*trend.Result, error)
}

// TweetSearcher runs a single free-text post search.
type TweetSearcher interface {
	SearchTweets(ctx context.Context, query string, maxResults int) ([]trend.Tweet, error)
}

// NewsSearcher looks up the news articles behind one trending search.
type NewsSearcher interface {
	TrendNews(ctx context.Context, pageToken string) ([]json.RawMessage, error)
}

// HTTPOptions are shared by all collectors.
type HTTPOptions struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
	Now       func() time.Time
}

func (o HTTPOptions) withDefaults(timeout time.Duration) HTTPOptions {
	if o.Client == nil {
		o.Client = &http.Client{}
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = timeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func geoOrDefault(geo string) string {
	if geo == "" {
		return trend.DefaultGeo
	}
	return geo
}
