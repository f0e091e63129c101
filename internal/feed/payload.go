package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tradeterm/internal/model"
)

// aggTradeEvent is the Binance aggregate-trade envelope. Price and
// quantity arrive as numeric strings, the event time as epoch millis.
type aggTradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
}

// combinedStreamFrame is the wrapper used by the combined-stream
// endpoint (/stream?streams=...). Single-stream endpoints deliver the
// event unwrapped.
type combinedStreamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// ParseAggTrade turns one inbound text frame into a MarketDataUpdate.
// Frames of any other event type yield (nil, nil): they are skipped, not
// errors. Malformed numeric fields yield a per-message error; the caller
// logs and moves on.
func ParseAggTrade(data []byte) (*model.MarketDataUpdate, error) {
	var wrapper combinedStreamFrame
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Data) > 0 {
		data = wrapper.Data
	}

	var ev aggTradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode feed frame: %w", err)
	}

	if ev.EventType != "aggTrade" {
		return nil, nil
	}
	if ev.Symbol == "" {
		return nil, fmt.Errorf("aggTrade frame missing symbol")
	}

	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trade price %q: %w", ev.Price, err)
	}
	quantity, err := strconv.ParseFloat(ev.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trade quantity %q: %w", ev.Quantity, err)
	}

	return &model.MarketDataUpdate{
		Symbol:    ev.Symbol,
		Timestamp: time.UnixMilli(ev.EventTime).UTC(),
		LastPrice: &price,
		LastQty:   &quantity,
	}, nil
}
