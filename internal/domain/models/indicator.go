package models

import (
	"strconv"
	"time"
)

// IndicatorFamily distinguishes indicator kinds for thresholds and topics.
type IndicatorFamily string

const (
	FamilyRSI           IndicatorFamily = "rsi"
	FamilyMovingAverage IndicatorFamily = "ma"
)

// RSI classifications.
const (
	RSIOverbought = "overbought"
	RSIOversold   = "oversold"
	RSINormal     = "normal"
)

// Moving-average classifications.
const (
	PriceAboveAverage = "above_average"
	PriceBelowAverage = "below_average"
)

// IndicatorSnapshot is the computed value of one indicator for one symbol.
// It replaces the previous snapshot each cycle and lives only in memory.
type IndicatorSnapshot struct {
	Symbol         string          `json:"symbol"`
	Family         IndicatorFamily `json:"family"`
	Period         int             `json:"period"`
	Value          float64         `json:"value"`
	PreviousValue  float64         `json:"previous_value,omitempty"`
	Classification string          `json:"classification"`
	// Deviation is the percent distance of the current price from the
	// average; only set for the moving-average family.
	Deviation float64   `json:"deviation,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Key identifies the snapshot slot a recomputation replaces.
func (s IndicatorSnapshot) Key() string {
	return s.Symbol + "/" + string(s.Family) + "/" + strconv.Itoa(s.Period)
}
