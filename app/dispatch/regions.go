package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/lysyi3m/trend-comb/app/collector"
	"github.com/lysyi3m/trend-comb/app/trend"
)

type RegionalRequest struct {
	Source string
	Geos   []string // empty means collector.DefaultRegions
	Limit  int      // <= 0 means DefaultTrendLimit
	Fresh  bool
}

// GetRegionalTrends merges the trends of several regions of one source. Each
// region is served through its own cache slot. A failing region is skipped
// with a warning; the call fails only when every region does.
func (d *Dispatcher) GetRegionalTrends(ctx context.Context, req RegionalRequest) (*trend.Result, error) {
	src, _, err := d.resolve(req.Source)
	if err != nil {
		return nil, err
	}
	if src == trend.SourceSearchEngagement {
		return nil, fmt.Errorf("%w: %s", ErrNoRegions, src)
	}

	geos := regions(req.Geos)

	results := make([]*trend.Result, len(geos))
	errs := make([]error, len(geos))

	var wg sync.WaitGroup
	for i, geo := range geos {
		wg.Add(1)
		go func(i int, geo string) {
			defer wg.Done()
			results[i], errs[i] = d.GetTrends(ctx, Request{
				Source: string(src),
				Geo:    geo,
				Limit:  math.MaxInt,
				Fresh:  req.Fresh,
			})
		}(i, geo)
	}
	wg.Wait()

	var (
		warnings []string
		firstErr error
		ok       int
	)
	cached := true
	for i, geo := range geos {
		if errs[i] != nil {
			slog.Warn("Region skipped", "source", src, "geo", geo, "kind", trend.KindOf(errs[i]), "error", errs[i])
			warnings = append(warnings, geo+": "+errs[i].Error())
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		ok++
		cached = cached && results[i].Cached
		warnings = append(warnings, results[i].Warnings...)
	}
	if ok == 0 {
		return nil, firstErr
	}

	merged := collector.MergeRegions(results)

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultTrendLimit
	}
	window := trend.Window(merged, 0, limit)

	slog.Info("Regional trends merged", "source", src, "regions", len(geos), "failed", len(geos)-ok, "total", len(merged))

	return &trend.Result{
		Success:        true,
		Count:          len(window),
		TotalAvailable: len(merged),
		Source:         src,
		Geo:            strings.Join(geos, ","),
		Trends:         window,
		FetchedAt:      d.now(),
		Cached:         cached,
		Warnings:       warnings,
	}, nil
}

// regions uppercases and dedupes geos, keeping the first occurrence.
func regions(geos []string) []string {
	seen := make(map[string]bool, len(geos))
	var out []string
	for _, geo := range geos {
		geo = strings.ToUpper(strings.TrimSpace(geo))
		if geo == "" || seen[geo] {
			continue
		}
		seen[geo] = true
		out = append(out, geo)
	}
	if len(out) == 0 {
		return append([]string(nil), collector.DefaultRegions...)
	}
	return out
}
