package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"BasisPulse/internal/domain/models"
	"BasisPulse/internal/service/cache"
	"BasisPulse/internal/service/ratelimit"
	apphttp "BasisPulse/pkg/http"
	applogger "BasisPulse/pkg/logger"
)

// OKX observes the USDT perpetual swap against spot. The basis is derived
// from the funding rate rather than a price premium.
type OKX struct {
	venue
}

// NewOKX creates the OKX perpetual adapter.
func NewOKX(cfg AdapterConfig, gw *ratelimit.Gateway, co *cache.Coalescer, hc *apphttp.Client, log *applogger.Logger) *OKX {
	return &OKX{venue: venue{
		name:    "okx",
		cfg:     cfg,
		gateway: gw,
		cache:   co,
		http:    hc,
		logger:  log,
		now:     time.Now,
	}}
}

func (o *OKX) Name() string { return o.name }

type okxTickerResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID    string `json:"instId"`
		Last      string `json:"last"`
		VolCcy24h string `json:"volCcy24h"`
	} `json:"data"`
}

type okxFundingResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		FundingRate string `json:"fundingRate"`
	} `json:"data"`
}

// FetchObservation reads the spot and swap tickers plus the current
// funding rate.
func (o *OKX) FetchObservation(ctx context.Context, asset string) (models.ExchangeObservation, error) {
	m, err := o.mapping(asset)
	if err != nil {
		return models.ExchangeObservation{}, err
	}

	spot, _, err := o.ticker(ctx, m.SpotSymbol)
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("okx spot: %w", err)
	}
	swap, volume, err := o.ticker(ctx, m.DerivativeSymbol)
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("okx swap: %w", err)
	}

	fundingURL := fmt.Sprintf("%s/api/v5/public/funding-rate?instId=%s", o.cfg.BaseURL, m.DerivativeSymbol)
	v, err := o.fetchJSON(ctx, fundingURL, tickerTTL, func() interface{} { return &okxFundingResponse{} })
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("okx funding: %w", err)
	}
	funding := v.(*okxFundingResponse)
	if funding.Code != "0" || len(funding.Data) == 0 {
		return models.ExchangeObservation{}, fmt.Errorf("%w: okx funding code %s: %s", models.ErrUpstream, funding.Code, funding.Msg)
	}
	rate, err := strconv.ParseFloat(funding.Data[0].FundingRate, 64)
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("okx funding rate %q: %w", funding.Data[0].FundingRate, err)
	}

	return models.ExchangeObservation{
		Exchange:        o.name,
		Asset:           asset,
		SpotPrice:       spot,
		DerivativePrice: swap,
		ContractType:    models.ContractPerpetual,
		AnnualizedBasis: annualizedPerpBasis(rate),
		TrailingVolume:  volume,
		ConfidencePrior: o.cfg.ConfidencePrior,
		ObservedAt:      o.now(),
	}, nil
}

func (o *OKX) ticker(ctx context.Context, instID string) (last, volume float64, err error) {
	url := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", o.cfg.BaseURL, instID)
	v, err := o.fetchJSON(ctx, url, tickerTTL, func() interface{} { return &okxTickerResponse{} })
	if err != nil {
		return 0, 0, err
	}
	resp := v.(*okxTickerResponse)
	if resp.Code != "0" || len(resp.Data) == 0 {
		return 0, 0, fmt.Errorf("%w: okx ticker code %s: %s", models.ErrUpstream, resp.Code, resp.Msg)
	}
	last, err = strconv.ParseFloat(resp.Data[0].Last, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("okx last %q: %w", resp.Data[0].Last, err)
	}
	volume, _ = strconv.ParseFloat(resp.Data[0].VolCcy24h, 64)
	return last, volume, nil
}
