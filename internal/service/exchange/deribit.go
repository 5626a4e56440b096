package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"BasisPulse/internal/domain/models"
	"BasisPulse/internal/service/cache"
	"BasisPulse/internal/service/ratelimit"
	apphttp "BasisPulse/pkg/http"
	applogger "BasisPulse/pkg/logger"
)

// Deribit observes the nearest dated future against the venue's index
// price. Instrument discovery is cached since listings change rarely.
type Deribit struct {
	venue
}

// NewDeribit creates the Deribit dated-futures adapter.
func NewDeribit(cfg AdapterConfig, gw *ratelimit.Gateway, co *cache.Coalescer, hc *apphttp.Client, log *applogger.Logger) *Deribit {
	return &Deribit{venue: venue{
		name:    "deribit",
		cfg:     cfg,
		gateway: gw,
		cache:   co,
		http:    hc,
		logger:  log,
		now:     time.Now,
	}}
}

func (d *Deribit) Name() string { return d.name }

type deribitIndexResponse struct {
	Result struct {
		IndexPrice float64 `json:"index_price"`
	} `json:"result"`
}

type deribitInstrumentsResponse struct {
	Result []struct {
		InstrumentName      string `json:"instrument_name"`
		Kind                string `json:"kind"`
		SettlementPeriod    string `json:"settlement_period"`
		ExpirationTimestamp int64  `json:"expiration_timestamp"`
		IsActive            bool   `json:"is_active"`
	} `json:"result"`
}

type deribitTickerResponse struct {
	Result struct {
		LastPrice float64 `json:"last_price"`
		Stats     struct {
			Volume float64 `json:"volume_usd"`
		} `json:"stats"`
	} `json:"result"`
}

// FetchObservation reads the index price and the nearest dated future's
// ticker.
func (d *Deribit) FetchObservation(ctx context.Context, asset string) (models.ExchangeObservation, error) {
	m, err := d.mapping(asset)
	if err != nil {
		return models.ExchangeObservation{}, err
	}

	indexURL := fmt.Sprintf("%s/api/v2/public/get_index_price?index_name=%s", d.cfg.BaseURL, m.SpotSymbol)
	v, err := d.fetchJSON(ctx, indexURL, tickerTTL, func() interface{} { return &deribitIndexResponse{} })
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("deribit index: %w", err)
	}
	spot := v.(*deribitIndexResponse).Result.IndexPrice
	if spot <= 0 {
		return models.ExchangeObservation{}, fmt.Errorf("%w: deribit index %s empty", models.ErrNoData, m.SpotSymbol)
	}

	instrument, expiry, err := d.nearestFuture(ctx, m.DerivativeSymbol)
	if err != nil {
		return models.ExchangeObservation{}, err
	}

	tickerURL := fmt.Sprintf("%s/api/v2/public/ticker?instrument_name=%s", d.cfg.BaseURL, instrument)
	v, err = d.fetchJSON(ctx, tickerURL, tickerTTL, func() interface{} { return &deribitTickerResponse{} })
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("deribit ticker: %w", err)
	}
	ticker := v.(*deribitTickerResponse)

	now := d.now()
	days := daysUntil(expiry, now)
	return models.ExchangeObservation{
		Exchange:        d.name,
		Asset:           asset,
		SpotPrice:       spot,
		DerivativePrice: ticker.Result.LastPrice,
		ContractType:    models.ContractDated,
		DaysToExpiry:    &days,
		AnnualizedBasis: annualizedDatedBasis(spot, ticker.Result.LastPrice, days),
		TrailingVolume:  ticker.Result.Stats.Volume,
		ConfidencePrior: d.cfg.ConfidencePrior,
		ObservedAt:      now,
	}, nil
}

// nearestFuture picks the active dated future with the earliest expiry
// still ahead of now.
func (d *Deribit) nearestFuture(ctx context.Context, currency string) (string, time.Time, error) {
	url := fmt.Sprintf("%s/api/v2/public/get_instruments?currency=%s&kind=future&expired=false", d.cfg.BaseURL, strings.ToUpper(currency))
	v, err := d.fetchJSON(ctx, url, instrumentTTL, func() interface{} { return &deribitInstrumentsResponse{} })
	if err != nil {
		return "", time.Time{}, fmt.Errorf("deribit instruments: %w", err)
	}
	resp := v.(*deribitInstrumentsResponse)

	var (
		best       string
		bestExpiry time.Time
	)
	now := d.now()
	for _, in := range resp.Result {
		if !in.IsActive || in.SettlementPeriod == "perpetual" {
			continue
		}
		exp := time.UnixMilli(in.ExpirationTimestamp)
		if exp.Before(now) {
			continue
		}
		if best == "" || exp.Before(bestExpiry) {
			best = in.InstrumentName
			bestExpiry = exp
		}
	}
	if best == "" {
		return "", time.Time{}, fmt.Errorf("%w: deribit has no dated future for %s", models.ErrNoData, currency)
	}
	return best, bestExpiry, nil
}
