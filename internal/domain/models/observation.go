package models

import "time"

// ContractType distinguishes dated futures from perpetual swaps.
type ContractType string

const (
	ContractDated     ContractType = "dated"
	ContractPerpetual ContractType = "perpetual"
)

// ExchangeObservation is one venue's view of an asset's spot/derivative
// pair for a single aggregation cycle. Produced fresh each cycle and
// never persisted.
type ExchangeObservation struct {
	Exchange        string       `json:"exchange"`
	Asset           string       `json:"asset"`
	SpotPrice       float64      `json:"spot_price"`
	DerivativePrice float64      `json:"derivative_price"`
	ContractType    ContractType `json:"contract_type"`
	// DaysToExpiry is nil for perpetual contracts.
	DaysToExpiry *float64 `json:"days_to_expiry,omitempty"`
	// AnnualizedBasis is the venue's raw annualized basis in percent,
	// before tenor normalization.
	AnnualizedBasis float64 `json:"annualized_basis"`
	// TrailingVolume is the venue's trailing 24h derivative volume in
	// quote units.
	TrailingVolume float64 `json:"trailing_volume"`
	// ConfidencePrior is the static per-venue trust prior in (0, 1].
	ConfidencePrior float64   `json:"confidence_prior"`
	ObservedAt      time.Time `json:"observed_at"`
}
