package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/trend-comb/app/dispatch"
	"github.com/lysyi3m/trend-comb/app/source"
	"github.com/lysyi3m/trend-comb/app/trend"
)

func NewHandler(configCache *source.ConfigCache, service TrendService,
	generator GeneratorInterface, health HealthReporter, version string) *Handler {
	return &Handler{
		service:     service,
		configCache: configCache,
		generator:   generator,
		health:      health,
		version:     version,
		now:         time.Now,
	}
}

func (h *Handler) GetIndex(c *gin.Context) {
	cacheTTLs := make(map[string]string)
	for name, config := range h.configCache.GetConfigs() {
		cacheTTLs[string(name)] = config.Settings.TTLDuration().String()
	}

	c.JSON(http.StatusOK, gin.H{
		"service": "Trend Comb",
		"status":  "online",
		"version": h.version,
		"endpoints": map[string]string{
			"/trends":                "Trends of the source given by ?source= (default: twitter)",
			"/trends/twitter":        "Hashtags ranked by engagement on recent posts",
			"/trends/twitter/search": "Posts matching ?query=",
			"/trends/google":         "Trending searches from the aggregator API",
			"/trends/google/rss":     "Trending searches from the public RSS feed",
			"/trends/google/news":    "News articles behind a trending search (?page_token=)",
			"/trends/refresh":        "Force refresh of every unmetered source (POST)",
			"/feeds/<source>":        "Ranked trends of a source as RSS 2.0",
			"/health":                "Health check",
		},
		"cache": cacheTTLs,
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().In(time.Local).Format(time.RFC3339),
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	if h.health != nil {
		backend := h.health.Health(c.Request.Context())
		health["cache"] = backend
		if backend["status"] != "healthy" {
			health["status"] = "degraded"
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetTrends(c *gin.Context) {
	h.serveTrends(c, c.DefaultQuery("source", "twitter"))
}

func (h *Handler) trendsOf(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.serveTrends(c, name)
	}
}

func (h *Handler) serveTrends(c *gin.Context, name string) {
	req, err := trendRequest(c, name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_parameter", "message": err.Error()})
		return
	}

	result, err := h.trends(c, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// trends merges regions when geo is a comma-separated list. Offset does not
// apply to a merge.
func (h *Handler) trends(c *gin.Context, req dispatch.Request) (*trend.Result, error) {
	if !strings.Contains(req.Geo, ",") {
		return h.service.GetTrends(c.Request.Context(), req)
	}
	return h.service.GetRegionalTrends(c.Request.Context(), dispatch.RegionalRequest{
		Source: req.Source,
		Geos:   strings.Split(req.Geo, ","),
		Limit:  req.Limit,
		Fresh:  req.Fresh,
	})
}

func (h *Handler) GetTrendNews(c *gin.Context) {
	result, err := h.service.TrendNews(c.Request.Context(), c.Query("page_token"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) SearchTweets(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		query = strings.TrimSpace(c.Query("q"))
	}

	limit, err := queryInt(c, "limit", dispatch.DefaultSearchLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_parameter", "message": err.Error()})
		return
	}

	result, err := h.service.SearchQuery(c.Request.Context(), query, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) RefreshTrends(c *gin.Context) {
	summary := h.service.ForceRefreshAll(c.Request.Context())

	status := http.StatusOK
	if !summary.Success {
		status = http.StatusBadGateway
	}

	c.JSON(status, summary)
}

func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("source")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	req, err := trendRequest(c, name)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	result, err := h.trends(c, req)
	if err != nil {
		status, _ := errorStatus(err)
		slog.Error("Trends unavailable for feed", "source", name, "error", err)
		c.Status(status)
		return
	}

	rss, err := h.generator.Run(result)
	if err != nil {
		slog.Error("RSS generation error", "source", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(result.Trends)))
	c.Header("X-Feed-Name", string(result.Source))
	c.Header("X-Last-Updated", result.FetchedAt.Format(time.RFC3339))

	c.String(http.StatusOK, rss)
}

func (h *Handler) APICacheStatus(c *gin.Context) {
	report, err := h.service.CacheStatus(c.Request.Context())
	if err != nil {
		slog.Error("Cache status error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cache status unavailable", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) APIListSources(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, string(name))
	}
	sort.Strings(names)

	sources := make([]map[string]interface{}, 0, len(configs))
	for _, name := range names {
		config := configs[trend.Source(name)]
		sources = append(sources, map[string]interface{}{
			"name":    config.Name,
			"url":     config.URL,
			"enabled": config.Settings.Enabled,
			"metered": config.Settings.Metered,
			"geo":     config.Settings.Geo,
			"ttl":     config.Settings.TTLDuration().String(),
			"timeout": config.Settings.TimeoutDuration().String(),
			"filters": len(config.Filters),
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIReloadSource(c *gin.Context) {
	name := c.Param("source")
	if _, ok := source.Resolve(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	}

	config, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded successfully",
		"source": gin.H{
			"name":    config.Name,
			"url":     config.URL,
			"enabled": config.Settings.Enabled,
		},
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)

	body := gin.H{"success": false, "error": code, "message": err.Error()}

	var te *trend.Error
	if errors.As(err, &te) {
		body["message"] = te.Message()
		body["source"] = te.Source
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.Request.URL.Path, "error", err)
	}

	c.JSON(status, body)
}

// errorStatus maps a service error onto an HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrUnknownSource):
		return http.StatusBadRequest, "invalid_source"
	case errors.Is(err, dispatch.ErrSourceDisabled):
		return http.StatusNotFound, "source_disabled"
	case errors.Is(err, dispatch.ErrEmptyQuery):
		return http.StatusBadRequest, "invalid_query"
	case errors.Is(err, dispatch.ErrNoRegions):
		return http.StatusBadRequest, "invalid_geo"
	}

	kind := trend.KindOf(err)
	switch kind {
	case trend.KindRateLimited:
		return http.StatusTooManyRequests, string(kind)
	case trend.KindCredentialsMissing:
		return http.StatusServiceUnavailable, string(kind)
	case trend.KindNetwork, trend.KindUpstreamAPI, trend.KindParse:
		return http.StatusBadGateway, string(kind)
	case trend.KindEmptyResult:
		return http.StatusNotFound, string(kind)
	}

	return http.StatusInternalServerError, string(trend.KindInternal)
}

func trendRequest(c *gin.Context, name string) (dispatch.Request, error) {
	limit, err := queryInt(c, "limit", dispatch.DefaultTrendLimit)
	if err != nil {
		return dispatch.Request{}, err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return dispatch.Request{}, err
	}

	return dispatch.Request{
		Source: name,
		Geo:    strings.TrimSpace(c.Query("geo")),
		Limit:  limit,
		Offset: offset,
		Fresh:  strings.EqualFold(c.Query("fresh"), "true") || c.Query("fresh") == "1",
	}, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
