package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lysyi3m/trend-comb/app/trend"
)

const trendingNowBody = `{
	"search_metadata": {"status": "Success"},
	"trending_searches": [
		{"query": "eclipse", "start_timestamp": 1767200000, "active": true, "search_volume": 500000, "increase_percentage": 1000, "categories": [{"id": 17, "name": "Sports"}]},
		{"query": "election", "active": false, "search_volume": 200000, "increase_percentage": 300},
		{"query": "recipe", "active": true, "search_volume": 20000, "increase_percentage": 50}
	]
}`

func serve(body string, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestSerpAPIFetch(t *testing.T) {
	var params map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params = map[string]string{"engine": q.Get("engine"), "geo": q.Get("geo"), "api_key": q.Get("api_key")}
		w.Write([]byte(trendingNowBody))
	}))
	defer server.Close()

	c := NewSerpAPICollector(server.URL, "key", testOptions())
	result, err := c.Fetch(context.Background(), Params{Geo: "GB", Limit: 2})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if params["engine"] != "google_trends_trending_now" || params["geo"] != "GB" || params["api_key"] != "key" {
		t.Errorf("Unexpected upstream params: %v", params)
	}
	if result.TotalAvailable != 3 || result.Count != 2 {
		t.Errorf("Expected 2 of 3 trends, got count %d total %d", result.Count, result.TotalAvailable)
	}

	first := result.Trends[0]
	if first.Rank != 1 || first.Topic != "eclipse" || first.Score != 500000 || first.Geo != "GB" {
		t.Errorf("Unexpected first trend: %+v", first)
	}

	// Upstream fields pass through verbatim and in order.
	meta, _ := json.Marshal(first.Metadata)
	expected := `{"query":"eclipse","start_timestamp":1767200000,"active":true,"search_volume":500000,"increase_percentage":1000,"categories":[{"id":17,"name":"Sports"}]}`
	if string(meta) != expected {
		t.Errorf("Expected metadata %s, got %s", expected, meta)
	}
}

func TestSerpAPIDeclaredErrorOn200(t *testing.T) {
	server := serve(`{"error": "quota exceeded"}`, http.StatusOK)
	defer server.Close()

	c := NewSerpAPICollector(server.URL, "key", testOptions())
	result, err := c.Fetch(context.Background(), Params{})
	if err == nil {
		t.Fatalf("Expected failure despite HTTP 200, got %+v", result)
	}

	var e *trend.Error
	if !errors.As(err, &e) {
		t.Fatalf("Expected *trend.Error, got %T", err)
	}
	if e.Detail != "quota exceeded" {
		t.Errorf("Expected upstream detail to be surfaced, got %q", e.Detail)
	}
	if e.Kind != trend.KindRateLimited {
		t.Errorf("Expected quota error to be rate_limited, got %s", e.Kind)
	}
}

func TestSerpAPIDeclaredNonQuotaError(t *testing.T) {
	server := serve(`{"error": "Invalid API key."}`, http.StatusOK)
	defer server.Close()

	_, err := NewSerpAPICollector(server.URL, "key", testOptions()).Fetch(context.Background(), Params{})
	if trend.KindOf(err) != trend.KindUpstreamAPI {
		t.Errorf("Expected upstream_api_error, got %v", err)
	}
}

func TestSerpAPIErrorStatusCarriesDetail(t *testing.T) {
	server := serve(`{"error": "Invalid API key. Your API key should be here."}`, http.StatusUnauthorized)
	defer server.Close()

	_, err := NewSerpAPICollector(server.URL, "key", testOptions()).Fetch(context.Background(), Params{})

	var e *trend.Error
	if !errors.As(err, &e) || e.Kind != trend.KindUpstreamAPI || e.Status != http.StatusUnauthorized {
		t.Fatalf("Expected upstream 401, got %v", err)
	}
	if e.Detail != "Invalid API key. Your API key should be here." {
		t.Errorf("Unexpected detail: %q", e.Detail)
	}
}

func TestSerpAPIEmptyList(t *testing.T) {
	server := serve(`{"trending_searches": []}`, http.StatusOK)
	defer server.Close()

	result, err := NewSerpAPICollector(server.URL, "key", testOptions()).Fetch(context.Background(), Params{})
	if err != nil {
		t.Fatalf("Expected empty list to be reported, not failed: %v", err)
	}
	if result.Count != 0 || len(result.Warnings) != 1 {
		t.Errorf("Expected empty result with a warning, got %+v", result)
	}
}

func TestSerpAPIMalformedJSON(t *testing.T) {
	server := serve(`<html>oops</html>`, http.StatusOK)
	defer server.Close()

	_, err := NewSerpAPICollector(server.URL, "key", testOptions()).Fetch(context.Background(), Params{})
	if trend.KindOf(err) != trend.KindParse {
		t.Errorf("Expected parse_error, got %v", err)
	}
}

func TestSerpAPIMissingKey(t *testing.T) {
	_, err := NewSerpAPICollector("", "", testOptions()).Fetch(context.Background(), Params{})
	if trend.KindOf(err) != trend.KindCredentialsMissing {
		t.Errorf("Expected credentials_missing, got %v", err)
	}
}

func TestFetchTimeoutIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond

	_, err := NewSerpAPICollector(server.URL, "key", opts).Fetch(context.Background(), Params{})
	if trend.KindOf(err) != trend.KindNetwork {
		t.Errorf("Expected network_error on timeout, got %v", err)
	}
}

func TestUpstreamDetailTruncates(t *testing.T) {
	body := make([]byte, 500)
	for i := range body {
		body[i] = 'x'
	}
	if got := upstreamDetail(body); len(got) != maxDetailLength {
		t.Errorf("Expected detail truncated to %d, got %d", maxDetailLength, len(got))
	}
}

func TestSerpAPITrendNews(t *testing.T) {
	var params map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params = map[string]string{"engine": q.Get("engine"), "page_token": q.Get("page_token"), "api_key": q.Get("api_key")}
		w.Write([]byte(`{"news_results": [
			{"title": "Eclipse tonight", "link": "https://example.com/1", "source": "Example", "iso_date": "2026-03-01T10:00:00Z"},
			{"title": "Where to watch", "link": "https://example.com/2"}
		]}`))
	}))
	defer server.Close()

	c := NewSerpAPICollector(server.URL, "key", testOptions())
	news, err := c.TrendNews(context.Background(), "W1sx+Il0=")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if params["engine"] != "google_trends_news" || params["page_token"] != "W1sx+Il0=" || params["api_key"] != "key" {
		t.Errorf("Unexpected upstream params: %v", params)
	}
	if len(news) != 2 {
		t.Fatalf("Expected 2 articles, got %d", len(news))
	}
	expected := `{"title": "Eclipse tonight", "link": "https://example.com/1", "source": "Example", "iso_date": "2026-03-01T10:00:00Z"}`
	if string(news[0]) != expected {
		t.Errorf("Expected verbatim article %s, got %s", expected, news[0])
	}
}

func TestSerpAPITrendNewsFailures(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		body   string
		status int
		kind   trend.ErrorKind
	}{
		{"missing key", "", `{}`, http.StatusOK, trend.KindCredentialsMissing},
		{"declared quota error", "key", `{"error": "Your account has run out of searches."}`, http.StatusOK, trend.KindRateLimited},
		{"declared error", "key", `{"error": "Invalid page_token"}`, http.StatusOK, trend.KindUpstreamAPI},
		{"malformed", "key", `{"news_results": {`, http.StatusOK, trend.KindParse},
		{"http status", "key", `{}`, http.StatusInternalServerError, trend.KindUpstreamAPI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serve(tt.body, tt.status)
			defer server.Close()

			c := NewSerpAPICollector(server.URL, tt.apiKey, testOptions())
			news, err := c.TrendNews(context.Background(), "token")
			if err == nil {
				t.Fatalf("Expected error, got %d articles", len(news))
			}
			if kind := trend.KindOf(err); kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, kind)
			}
		})
	}
}

func TestSerpAPITrendNewsEmpty(t *testing.T) {
	server := serve(`{"search_metadata": {"status": "Success"}}`, http.StatusOK)
	defer server.Close()

	c := NewSerpAPICollector(server.URL, "key", testOptions())
	news, err := c.TrendNews(context.Background(), "token")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if news == nil || len(news) != 0 {
		t.Errorf("Expected empty non-nil articles, got %v", news)
	}
}
