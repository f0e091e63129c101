package oms

import (
	"math"
	"testing"

	"tradeterm/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyFillOpensPosition(t *testing.T) {
	pm := NewPositionManager()

	pos := pm.ApplyFill("BTCUSDT", model.SideBuy, 2, 100)
	if pos.Quantity != 2 || pos.AvgCost != 100 {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if pos.RealizedPnL != 0 {
		t.Errorf("opening a position must not realize P&L")
	}
}

func TestApplyFillBlendsAverageCost(t *testing.T) {
	pm := NewPositionManager()

	pm.ApplyFill("BTCUSDT", model.SideBuy, 1, 100)
	pos := pm.ApplyFill("BTCUSDT", model.SideBuy, 3, 120)

	if pos.Quantity != 4 {
		t.Fatalf("unexpected quantity: %v", pos.Quantity)
	}
	if !almostEqual(pos.AvgCost, 115) {
		t.Errorf("expected avg cost 115, got %v", pos.AvgCost)
	}
}

func TestApplyFillPartialClose(t *testing.T) {
	pm := NewPositionManager()

	pm.ApplyFill("BTCUSDT", model.SideBuy, 10, 100)
	pos := pm.ApplyFill("BTCUSDT", model.SideSell, 4, 110)

	if pos.Quantity != 6 {
		t.Errorf("unexpected quantity: %v", pos.Quantity)
	}
	if !almostEqual(pos.AvgCost, 100) {
		t.Errorf("partial close must not move avg cost, got %v", pos.AvgCost)
	}
	if !almostEqual(pos.RealizedPnL, 40) {
		t.Errorf("expected realized P&L 40, got %v", pos.RealizedPnL)
	}
}

func TestApplyFillRoundTrip(t *testing.T) {
	pm := NewPositionManager()

	pm.ApplyFill("BTCUSDT", model.SideBuy, 5, 100)
	pos := pm.ApplyFill("BTCUSDT", model.SideSell, 5, 90)

	if pos.Quantity != 0 {
		t.Errorf("expected flat position, got quantity %v", pos.Quantity)
	}
	if !almostEqual(pos.RealizedPnL, -50) {
		t.Errorf("expected realized P&L -50, got %v", pos.RealizedPnL)
	}
	if pos.UnrealizedPnL != 0 {
		t.Errorf("flat position must carry zero unrealized P&L, got %v", pos.UnrealizedPnL)
	}
}

func TestApplyFillFlipsPosition(t *testing.T) {
	pm := NewPositionManager()

	pm.ApplyFill("BTCUSDT", model.SideBuy, 3, 100)
	pos := pm.ApplyFill("BTCUSDT", model.SideSell, 5, 110)

	if pos.Quantity != -2 {
		t.Errorf("expected net short 2, got %v", pos.Quantity)
	}
	if !almostEqual(pos.AvgCost, 110) {
		t.Errorf("flipped remainder must open at fill price, got %v", pos.AvgCost)
	}
	if !almostEqual(pos.RealizedPnL, 30) {
		t.Errorf("expected realized P&L 30, got %v", pos.RealizedPnL)
	}
}

func TestApplyFillShortSide(t *testing.T) {
	pm := NewPositionManager()

	pm.ApplyFill("ETHUSDT", model.SideSell, 2, 2000)
	pos := pm.ApplyFill("ETHUSDT", model.SideBuy, 2, 1900)

	if pos.Quantity != 0 {
		t.Errorf("expected flat position, got %v", pos.Quantity)
	}
	if !almostEqual(pos.RealizedPnL, 200) {
		t.Errorf("expected realized P&L 200, got %v", pos.RealizedPnL)
	}
}

func TestMarkPrice(t *testing.T) {
	pm := NewPositionManager()

	if pos := pm.MarkPrice("BTCUSDT", 100); pos != nil {
		t.Fatalf("marking an unknown symbol must return nil, got %+v", pos)
	}

	pm.ApplyFill("BTCUSDT", model.SideBuy, 2, 100)
	pos := pm.MarkPrice("BTCUSDT", 110)
	if pos == nil {
		t.Fatalf("expected a snapshot")
	}
	if !almostEqual(pos.UnrealizedPnL, 20) {
		t.Errorf("expected unrealized P&L 20, got %v", pos.UnrealizedPnL)
	}
}

func TestSnapshotCopies(t *testing.T) {
	pm := NewPositionManager()
	pm.ApplyFill("BTCUSDT", model.SideBuy, 1, 100)
	pm.ApplyFill("ETHUSDT", model.SideSell, 1, 2000)

	snap := pm.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(snap))
	}
	snap[0].Quantity = 999

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		pos, ok := pm.GetPosition(symbol)
		if !ok {
			t.Fatalf("missing position for %s", symbol)
		}
		if pos.Quantity == 999 {
			t.Errorf("snapshot mutation leaked into the book")
		}
	}
}
