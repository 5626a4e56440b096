package models

// PriceSample is a single observed price for an instrument.
// Samples are owned by the history store for their symbol.
type PriceSample struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

// Tick is a raw trade event as delivered by an upstream feed.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}
