package exchange

import (
	"context"
	"fmt"
	"time"

	"BasisPulse/internal/domain/models"
	"BasisPulse/internal/service/cache"
	"BasisPulse/internal/service/ratelimit"
	apphttp "BasisPulse/pkg/http"
	applogger "BasisPulse/pkg/logger"
)

const (
	// fundingPeriodsPerDay assumes the common 8h funding cycle.
	fundingPeriodsPerDay = 3
	daysPerYear          = 365

	tickerTTL     = 10 * time.Second
	instrumentTTL = time.Hour
)

// AdapterConfig is shared venue adapter configuration.
type AdapterConfig struct {
	BaseURL         string
	DerivativeURL   string // venues with a separate derivatives host
	ConfidencePrior float64
	Assets          map[string]AssetMapping
}

// AssetMapping carries the venue-specific instrument identifiers for one
// canonical asset name (e.g. "BTC").
type AssetMapping struct {
	SpotSymbol       string
	DerivativeSymbol string
}

// venue bundles the plumbing every adapter fetches through: HTTP client,
// the provider gateway and the coalescing cache sit between an adapter
// and the exchange.
type venue struct {
	name    string
	cfg     AdapterConfig
	gateway *ratelimit.Gateway
	cache   *cache.Coalescer
	http    *apphttp.Client
	logger  *applogger.Logger
	now     func() time.Time
}

// fetchJSON resolves a GET through cache → gateway → HTTP and decodes the
// body into a fresh value produced by alloc. The cache key is the URL, so
// concurrent callers for the same resource share one upstream call.
func (v *venue) fetchJSON(ctx context.Context, url string, ttl time.Duration, alloc func() interface{}) (interface{}, error) {
	return v.cache.GetOrFetch(ctx, url, ttl, func(ctx context.Context) (interface{}, error) {
		return v.gateway.Request(ctx, v.name, func(ctx context.Context) (interface{}, error) {
			dest := alloc()
			err := v.http.SendAndParse(ctx, &apphttp.RequestOptions{
				Method: apphttp.MethodGet,
				URL:    url,
			}, dest)
			if err != nil {
				return nil, fmt.Errorf("get %s: %w", url, err)
			}
			return dest, nil
		})
	})
}

func (v *venue) mapping(asset string) (AssetMapping, error) {
	m, ok := v.cfg.Assets[asset]
	if !ok {
		return AssetMapping{}, fmt.Errorf("%w: %s has no mapping for asset %q", models.ErrNoData, v.name, asset)
	}
	return m, nil
}

// annualizedDatedBasis converts a dated future's premium over spot into an
// annualized percentage given the remaining days to expiry.
func annualizedDatedBasis(spot, future, daysToExpiry float64) float64 {
	if spot <= 0 || daysToExpiry <= 0 {
		return 0
	}
	return (future/spot - 1) * (daysPerYear / daysToExpiry) * 100
}

// annualizedPerpBasis converts a single funding-rate print into an
// annualized percentage.
func annualizedPerpBasis(fundingRate float64) float64 {
	return fundingRate * fundingPeriodsPerDay * daysPerYear * 100
}

func daysUntil(expiry, now time.Time) float64 {
	return expiry.Sub(now).Hours() / 24
}
