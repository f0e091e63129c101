package strategy

import (
	"context"
	"testing"
	"time"

	appconfig "tradeterm/config"
	"tradeterm/internal/channel"
	"tradeterm/internal/model"
)

func testParams() model.StrategyParams {
	return model.StrategyParams{
		Name:      "mean_reversion",
		Enabled:   true,
		OrderSize: 0.0001,
		UpperBand: 25000,
		LowerBand: 19000,
	}
}

func tickAt(symbol string, price float64) model.MarketDataUpdate {
	return model.MarketDataUpdate{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		LastPrice: &price,
	}
}

func TestMeanReversionAboveUpperBand(t *testing.T) {
	_, order := MeanReversion(NewState(testParams()), tickAt("BTCUSDT", 26000))
	if order == nil {
		t.Fatalf("expected a sell order above the upper band")
	}
	if order.Side != model.SideSell {
		t.Errorf("unexpected side: %s", order.Side)
	}
	if order.Type != model.OrderTypeLimit {
		t.Errorf("unexpected type: %s", order.Type)
	}
	if order.Price == nil || *order.Price != 26000 {
		t.Errorf("limit price must be the observed price, got %v", order.Price)
	}
	if order.Quantity != 0.0001 {
		t.Errorf("unexpected quantity: %v", order.Quantity)
	}
	if order.Symbol != "BTCUSDT" {
		t.Errorf("unexpected symbol: %s", order.Symbol)
	}
}

func TestMeanReversionBelowLowerBand(t *testing.T) {
	_, order := MeanReversion(NewState(testParams()), tickAt("BTCUSDT", 18000))
	if order == nil {
		t.Fatalf("expected a buy order below the lower band")
	}
	if order.Side != model.SideBuy {
		t.Errorf("unexpected side: %s", order.Side)
	}
	if order.Price == nil || *order.Price != 18000 {
		t.Errorf("limit price must be the observed price, got %v", order.Price)
	}
}

func TestMeanReversionInsideBand(t *testing.T) {
	state := NewState(testParams())
	for _, price := range []float64{22000, 25000, 19000} {
		next, order := MeanReversion(state, tickAt("BTCUSDT", price))
		if order != nil {
			t.Errorf("price %v inside band produced order %+v", price, order)
		}
		state = next
	}
}

func TestMeanReversionNoLastPrice(t *testing.T) {
	update := model.MarketDataUpdate{Symbol: "BTCUSDT", Timestamp: time.Now().UTC()}
	if _, order := MeanReversion(NewState(testParams()), update); order != nil {
		t.Errorf("tick without a last price produced order %+v", order)
	}
}

func TestLookupUnknownStrategy(t *testing.T) {
	if _, err := Lookup("momentum"); err == nil {
		t.Errorf("expected an error for an unregistered strategy")
	}
	if _, err := Lookup("mean_reversion"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func startTestEngine(t *testing.T) (*Engine, *channel.Channels, context.CancelFunc) {
	t.Helper()

	cfg := appconfig.Default()
	channels := channel.NewChannels(16, 16, 16, 4)

	engine, err := NewEngine(cfg, channels)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}

	t.Cleanup(func() {
		cancel()
		engine.Stop()
		channels.Close()
	})
	return engine, channels, cancel
}

func awaitOrder(t *testing.T, orders <-chan model.Order) model.Order {
	t.Helper()
	select {
	case order := <-orders:
		return order
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for an order")
		return model.Order{}
	}
}

func assertNoOrder(t *testing.T, orders <-chan model.Order) {
	t.Helper()
	select {
	case order := <-orders:
		t.Fatalf("unexpected order: %+v", order)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngineEmitsOrderOnBandBreak(t *testing.T) {
	_, channels, _ := startTestEngine(t)

	channels.MarketData.Publish(tickAt("BTCUSDT", 26000))
	order := awaitOrder(t, channels.Orders)
	if order.Side != model.SideSell {
		t.Errorf("unexpected side: %s", order.Side)
	}

	channels.MarketData.Publish(tickAt("BTCUSDT", 22000))
	assertNoOrder(t, channels.Orders)
}

func TestEngineStopControlDisablesTrading(t *testing.T) {
	_, channels, _ := startTestEngine(t)

	channels.Controls <- model.StrategyControl{Kind: model.StrategyStop}
	// The control and the tick ride different channels, give the loop a
	// moment to drain the control first.
	time.Sleep(20 * time.Millisecond)

	channels.MarketData.Publish(tickAt("BTCUSDT", 26000))
	assertNoOrder(t, channels.Orders)

	channels.Controls <- model.StrategyControl{Kind: model.StrategyStart}
	time.Sleep(20 * time.Millisecond)

	channels.MarketData.Publish(tickAt("BTCUSDT", 26000))
	awaitOrder(t, channels.Orders)
}

func TestEngineUpdateParams(t *testing.T) {
	engine, channels, _ := startTestEngine(t)

	params := testParams()
	params.UpperBand = 30000
	params.LowerBand = 28000
	channels.Controls <- model.StrategyControl{Kind: model.StrategyUpdateParams, Params: &params}
	time.Sleep(20 * time.Millisecond)

	if got := engine.Params(); got.UpperBand != 30000 || got.LowerBand != 28000 {
		t.Fatalf("parameters not applied: %+v", got)
	}

	// 26000 sat above the old band but is below the new lower band, so the
	// same tick now buys.
	channels.MarketData.Publish(tickAt("BTCUSDT", 26000))
	order := awaitOrder(t, channels.Orders)
	if order.Side != model.SideBuy {
		t.Errorf("unexpected side after update: %s", order.Side)
	}
}
