package models

import "time"

// Basis regime buckets, from deeply negative to elevated contango.
const (
	RegimeDeepBackwardation = "deep_backwardation"
	RegimeBackwardation     = "backwardation"
	RegimeNeutral           = "neutral"
	RegimeContango          = "contango"
	RegimeElevatedContango  = "elevated_contango"
)

// Data source labels attached to every API answer.
const (
	SourceLive     = "live"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// ExchangeContribution records how one venue entered the composite.
type ExchangeContribution struct {
	Exchange        string  `json:"exchange"`
	Weight          float64 `json:"weight"`
	NormalizedBasis float64 `json:"normalized_basis"`
	SpotPrice       float64 `json:"spot_price"`
	TrailingVolume  float64 `json:"trailing_volume"`
}

// CompositeResult is the reconciled cross-exchange view for one asset.
// It is immutable after construction and replaced wholesale each cycle.
type CompositeResult struct {
	Asset           string                 `json:"asset"`
	SpotPrice       float64                `json:"spot_price"`
	DerivativePrice float64                `json:"derivative_price"`
	AnnualizedBasis float64                `json:"annualized_basis"`
	Regime          string                 `json:"regime"`
	Contributions   []ExchangeContribution `json:"contributions"`
	// FailureReasons maps venues that failed this cycle to a reason string.
	FailureReasons map[string]string `json:"failure_reasons,omitempty"`
	AgreementScore float64           `json:"agreement_score"`
	Anomalous      bool              `json:"anomalous"`
	// AnomalySeverity is zero for in-range results and grows with the
	// distance beyond the typical range, capped.
	AnomalySeverity float64   `json:"anomaly_severity,omitempty"`
	Confidence      float64   `json:"confidence"`
	Source          string    `json:"source"`
	Timestamp       time.Time `json:"timestamp"`
}
