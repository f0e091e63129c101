package feed

import (
	"testing"
	"time"
)

func TestParseAggTrade(t *testing.T) {
	raw := []byte(`{"e":"aggTrade","E":1700000000000,"s":"ETHUSD","p":"1800.5","q":"2.0"}`)

	update, err := ParseAggTrade(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update == nil {
		t.Fatalf("expected an update")
	}
	if update.Symbol != "ETHUSD" {
		t.Errorf("unexpected symbol: %s", update.Symbol)
	}
	if update.LastPrice == nil || *update.LastPrice != 1800.5 {
		t.Errorf("unexpected last price: %v", update.LastPrice)
	}
	if update.LastQty == nil || *update.LastQty != 2.0 {
		t.Errorf("unexpected last quantity: %v", update.LastQty)
	}
	want := time.UnixMilli(1700000000000).UTC()
	if !update.Timestamp.Equal(want) {
		t.Errorf("unexpected timestamp: want %v got %v", want, update.Timestamp)
	}
	if update.BidPrice != nil || update.AskPrice != nil {
		t.Errorf("aggregate trades carry no book sides")
	}
}

func TestParseAggTradeCombinedStream(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","E":1700000000123,"s":"BTCUSDT","p":"25001.1","q":"0.5"}}`)

	update, err := ParseAggTrade(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if update == nil || update.Symbol != "BTCUSDT" {
		t.Fatalf("expected unwrapped BTCUSDT update, got %+v", update)
	}
}

func TestParseAggTradeUnknownEventType(t *testing.T) {
	raw := []byte(`{"e":"depthUpdate","E":1700000000000,"s":"BTCUSDT"}`)

	update, err := ParseAggTrade(raw)
	if err != nil {
		t.Fatalf("unknown event types must be skipped, not errors: %v", err)
	}
	if update != nil {
		t.Fatalf("expected no update for unknown event type, got %+v", update)
	}
}

func TestParseAggTradeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad price", `{"e":"aggTrade","E":1,"s":"BTCUSDT","p":"not-a-number","q":"1.0"}`},
		{"bad quantity", `{"e":"aggTrade","E":1,"s":"BTCUSDT","p":"1.0","q":""}`},
		{"missing symbol", `{"e":"aggTrade","E":1,"p":"1.0","q":"1.0"}`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, err := ParseAggTrade([]byte(tt.raw))
			if err == nil {
				t.Fatalf("expected error, got update %+v", update)
			}
			if update != nil {
				t.Errorf("expected nil update on error")
			}
		})
	}
}
