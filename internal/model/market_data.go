package model

import "time"

// MarketDataUpdate is one normalized inbound tick. Optional sides are nil
// when the upstream message did not carry them. Instances are immutable
// once constructed and never persisted.
type MarketDataUpdate struct {
	Symbol      string    `json:"symbol"`
	Timestamp   time.Time `json:"timestamp"`
	BidPrice    *float64  `json:"bid_price,omitempty"`
	BidQuantity *float64  `json:"bid_quantity,omitempty"`
	AskPrice    *float64  `json:"ask_price,omitempty"`
	AskQuantity *float64  `json:"ask_quantity,omitempty"`
	LastPrice   *float64  `json:"last_price,omitempty"`
	LastQty     *float64  `json:"last_quantity,omitempty"`
}
