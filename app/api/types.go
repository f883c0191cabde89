package api

import (
	"context"
	"time"

	"github.com/lysyi3m/trend-comb/app/cache"
	"github.com/lysyi3m/trend-comb/app/dispatch"
	"github.com/lysyi3m/trend-comb/app/source"
	"github.com/lysyi3m/trend-comb/app/trend"
)

type TrendService interface {
	GetTrends(ctx context.Context, req dispatch.Request) (*trend.Result, error)
	GetRegionalTrends(ctx context.Context, req dispatch.RegionalRequest) (*trend.Result, error)
	TrendNews(ctx context.Context, pageToken string) (*trend.NewsResult, error)
	SearchQuery(ctx context.Context, query string, limit int) (*trend.SearchResult, error)
	ForceRefreshAll(ctx context.Context) *dispatch.RefreshSummary
	CacheStatus(ctx context.Context) (*dispatch.CacheReport, error)
}

var _ TrendService = (*dispatch.Dispatcher)(nil)

// HealthReporter is implemented by cache backends that can describe their
// own connectivity.
type HealthReporter interface {
	Health(ctx context.Context) map[string]any
}

var _ HealthReporter = (*cache.RedisBackend)(nil)

type GeneratorInterface interface {
	Run(result *trend.Result) (string, error)
}

var _ GeneratorInterface = (*Generator)(nil)

type Handler struct {
	service     TrendService
	configCache *source.ConfigCache
	generator   GeneratorInterface
	health      HealthReporter
	version     string
	now         func() time.Time
}
