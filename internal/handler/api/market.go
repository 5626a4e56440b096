package api

import (
	"context"
	"time"

	models "BasisPulse/internal/domain/models"
	"BasisPulse/internal/service/history"
	"BasisPulse/internal/usecase"
	pkgcache "BasisPulse/pkg/cache"
	xhttp "BasisPulse/pkg/http"
	xlogger "BasisPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Response cache TTLs. Composite keys are bucketed so a burst of clients
// inside the same bucket shares one cached body.
const (
	compositeCacheTTL   = 30 * time.Second
	compositeBucket     = 10 * time.Minute
	indicatorsCacheTTL  = 15 * time.Second
	responseCachePrefix = "basispulse:api"
)

// MarketHandler exposes the composite, indicator, and price read API.
type MarketHandler struct {
	logger     *xlogger.Logger
	aggregator *usecase.BasisAggregator
	indicators *usecase.IndicatorEngine
	history    *history.Store
	respCache  pkgcache.Service
}

func NewMarketHandler(
	logger *xlogger.Logger,
	aggregator *usecase.BasisAggregator,
	indicators *usecase.IndicatorEngine,
	hist *history.Store,
	respCache pkgcache.Service,
) *MarketHandler {
	return &MarketHandler{
		logger:     logger,
		aggregator: aggregator,
		indicators: indicators,
		history:    hist,
		respCache:  respCache,
	}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/composite", h.Composite)
	g.GET("/indicators", h.Indicators)
	g.GET("/prices", h.Prices)
}

// Composite answers with the latest composite for the asset. Answers are
// labeled live, cache, or fallback so clients can judge freshness.
func (h *MarketHandler) Composite(c echo.Context) error {
	req := &models.CompositeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	bucket := time.Now().Truncate(compositeBucket).Unix()
	key := pkgcache.GenerateKeyWithParams(responseCachePrefix, "composite", req.Asset, bucket)

	var cached models.CompositeResult
	if h.respCache != nil {
		if err := h.respCache.Get(ctx, key, &cached); err == nil {
			cached.Source = models.SourceCache
			return xhttp.SuccessResponse(c, &cached)
		}
	}

	res := h.aggregator.GetCompositeOrFallback(req.Asset)
	if h.respCache != nil && res.Source == models.SourceLive {
		h.cacheSet(ctx, key, res, compositeCacheTTL)
	}
	return xhttp.SuccessResponse(c, res)
}

// Indicators answers with the current snapshots for a symbol.
func (h *MarketHandler) Indicators(c echo.Context) error {
	req := &models.IndicatorsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	key := pkgcache.GenerateKeyWithParams(responseCachePrefix, "indicators", req.Symbol)
	var cached models.IndicatorsResponse
	if h.respCache != nil {
		if err := h.respCache.Get(ctx, key, &cached); err == nil {
			cached.Source = models.SourceCache
			return xhttp.SuccessResponse(c, &cached)
		}
	}

	snaps := h.indicators.CurrentSnapshots(req.Symbol)
	if len(snaps) == 0 {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("no indicators for %s yet", req.Symbol))
	}
	resp := &models.IndicatorsResponse{
		Source:     models.SourceLive,
		Symbol:     req.Symbol,
		Indicators: snaps,
	}
	if h.respCache != nil {
		h.cacheSet(ctx, key, resp, indicatorsCacheTTL)
	}
	return xhttp.SuccessResponse(c, resp)
}

// Prices answers with the tail of the rolling price window. History
// reads are cheap copies, so this route is never cached.
func (h *MarketHandler) Prices(c echo.Context) error {
	req := &models.PricesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	samples := h.history.Snapshot(req.Symbol)
	if len(samples) == 0 {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("no prices for %s yet", req.Symbol))
	}
	if len(samples) > req.Limit {
		samples = samples[len(samples)-req.Limit:]
	}
	return xhttp.SuccessResponse(c, &models.PricesResponse{
		Source:  models.SourceLive,
		Symbol:  req.Symbol,
		Samples: samples,
	})
}

func (h *MarketHandler) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := h.respCache.Set(ctx, key, value, ttl); err != nil {
		h.logger.Warn("response cache set failed", xlogger.String("key", key), xlogger.Error(err))
	}
}
