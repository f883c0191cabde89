package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lysyi3m/trend-comb/app/trend"
)

const maxDetailLength = 200

// fetch performs a GET with the collector timeout and classifies failures:
// transport errors and timeouts are network errors, 429 is a rate limit and
// any other non-200 status is an upstream error carrying the response detail.
func fetch(ctx context.Context, source trend.Source, opts HTTPOptions, url string, header http.Header) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, trend.NewError(source, trend.KindNetwork, fmt.Errorf("failed to create request: %w", err))
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := opts.Client.Do(req)
	if err != nil {
		return nil, trend.NewError(source, trend.KindNetwork, fmt.Errorf("failed to fetch: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, trend.NewError(source, trend.KindNetwork, fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &trend.Error{Kind: trend.KindRateLimited, Source: source, Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &trend.Error{
			Kind:   trend.KindUpstreamAPI,
			Source: source,
			Status: resp.StatusCode,
			Detail: upstreamDetail(data),
			Err:    fmt.Errorf("HTTP error: %s", resp.Status),
		}
	}

	return data, nil
}

// upstreamDetail prefers a declared error message in a JSON body and falls
// back to the leading part of the raw body.
func upstreamDetail(body []byte) string {
	var doc struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Title   string `json:"title"`
	}
	if json.Unmarshal(body, &doc) == nil {
		for _, s := range []string{doc.Error, doc.Detail, doc.Message, doc.Title} {
			if s != "" {
				return s
			}
		}
	}

	detail := strings.TrimSpace(string(body))
	if len(detail) > maxDetailLength {
		detail = detail[:maxDetailLength]
	}
	return detail
}
