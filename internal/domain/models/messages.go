package models

// Inbound control message types accepted on a stream connection.
const (
	MsgSubscribeSymbol      = "subscribe_symbol"
	MsgUnsubscribeSymbol    = "unsubscribe_symbol"
	MsgGetCurrentIndicators = "get_current_indicators"
)

// Outbound message types pushed to stream subscribers.
const (
	MsgConnectionEstablished = "connection_established"
	MsgIndicatorUpdate       = "indicator_update"
	MsgPriceUpdate           = "price_update"
	MsgCompositeUpdate       = "composite_update"
)

// InboundMessage is a control frame sent by a stream client.
type InboundMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

// OutboundMessage is a frame pushed to stream subscribers.
type OutboundMessage struct {
	Type             string      `json:"type"`
	ClientID         string      `json:"client_id,omitempty"`
	SupportedSymbols []string    `json:"supported_symbols,omitempty"`
	Symbol           string      `json:"symbol,omitempty"`
	Price            float64     `json:"price,omitempty"`
	Timestamp        int64       `json:"timestamp,omitempty"`
	Data             interface{} `json:"data,omitempty"`
}
