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

// Binance observes the USDT-margined current-quarter future against spot.
type Binance struct {
	venue
}

// NewBinance creates the Binance dated-futures adapter.
func NewBinance(cfg AdapterConfig, gw *ratelimit.Gateway, co *cache.Coalescer, hc *apphttp.Client, log *applogger.Logger) *Binance {
	return &Binance{venue: venue{
		name:    "binance",
		cfg:     cfg,
		gateway: gw,
		cache:   co,
		http:    hc,
		logger:  log,
		now:     time.Now,
	}}
}

func (b *Binance) Name() string { return b.name }

type binancePrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type binanceFutureTicker struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		Pair         string `json:"pair"`
		ContractType string `json:"contractType"`
		DeliveryDate int64  `json:"deliveryDate"`
		Status       string `json:"status"`
	} `json:"symbols"`
}

// FetchObservation reads spot, resolves the current-quarter contract from
// exchange info (cached long-term) and reads its ticker.
func (b *Binance) FetchObservation(ctx context.Context, asset string) (models.ExchangeObservation, error) {
	m, err := b.mapping(asset)
	if err != nil {
		return models.ExchangeObservation{}, err
	}

	spotURL := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.cfg.BaseURL, m.SpotSymbol)
	v, err := b.fetchJSON(ctx, spotURL, tickerTTL, func() interface{} { return &binancePrice{} })
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("binance spot: %w", err)
	}
	spot, err := strconv.ParseFloat(v.(*binancePrice).Price, 64)
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("binance spot price %q: %w", v.(*binancePrice).Price, err)
	}

	contract, delivery, err := b.currentQuarter(ctx, m.DerivativeSymbol)
	if err != nil {
		return models.ExchangeObservation{}, err
	}

	futURL := fmt.Sprintf("%s/fapi/v1/ticker/24hr?symbol=%s", b.cfg.DerivativeURL, contract)
	v, err = b.fetchJSON(ctx, futURL, tickerTTL, func() interface{} { return &binanceFutureTicker{} })
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("binance future: %w", err)
	}
	ticker := v.(*binanceFutureTicker)
	future, err := strconv.ParseFloat(ticker.LastPrice, 64)
	if err != nil {
		return models.ExchangeObservation{}, fmt.Errorf("binance future price %q: %w", ticker.LastPrice, err)
	}
	volume, _ := strconv.ParseFloat(ticker.QuoteVolume, 64)

	now := b.now()
	days := daysUntil(delivery, now)
	return models.ExchangeObservation{
		Exchange:        b.name,
		Asset:           asset,
		SpotPrice:       spot,
		DerivativePrice: future,
		ContractType:    models.ContractDated,
		DaysToExpiry:    &days,
		AnnualizedBasis: annualizedDatedBasis(spot, future, days),
		TrailingVolume:  volume,
		ConfidencePrior: b.cfg.ConfidencePrior,
		ObservedAt:      now,
	}, nil
}

// currentQuarter resolves the trading CURRENT_QUARTER contract for a pair
// from exchange info, which changes rarely and is cached for an hour.
func (b *Binance) currentQuarter(ctx context.Context, pair string) (string, time.Time, error) {
	infoURL := fmt.Sprintf("%s/fapi/v1/exchangeInfo", b.cfg.DerivativeURL)
	v, err := b.fetchJSON(ctx, infoURL, instrumentTTL, func() interface{} { return &binanceExchangeInfo{} })
	if err != nil {
		return "", time.Time{}, fmt.Errorf("binance exchange info: %w", err)
	}
	info := v.(*binanceExchangeInfo)
	for _, s := range info.Symbols {
		if s.Pair == pair && s.ContractType == "CURRENT_QUARTER" && s.Status == "TRADING" {
			return s.Symbol, time.UnixMilli(s.DeliveryDate), nil
		}
	}
	return "", time.Time{}, fmt.Errorf("%w: binance has no current-quarter contract for %s", models.ErrNoData, pair)
}
