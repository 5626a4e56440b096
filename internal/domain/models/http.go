package models

// CompositeRequest queries the latest composite basis view for an asset.
type CompositeRequest struct {
	Asset string `query:"asset" validate:"required,min=2,max=16"`
}

// IndicatorsRequest queries current indicator snapshots for a symbol.
type IndicatorsRequest struct {
	Symbol string `query:"symbol" validate:"required,min=2,max=32"`
}

// PricesRequest queries the rolling price window for a symbol.
type PricesRequest struct {
	Symbol string `query:"symbol" validate:"required,min=2,max=32"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=250"`
}

// IndicatorsResponse answers an indicators query with a source label.
type IndicatorsResponse struct {
	Source     string              `json:"source"`
	Symbol     string              `json:"symbol"`
	Indicators []IndicatorSnapshot `json:"indicators"`
}

// PricesResponse answers a prices query with a source label.
type PricesResponse struct {
	Source  string        `json:"source"`
	Symbol  string        `json:"symbol"`
	Samples []PriceSample `json:"samples"`
}
