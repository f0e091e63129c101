package oms

import (
	"sync"

	"tradeterm/internal/model"
	"tradeterm/logger"
)

// PositionManager keeps the per-symbol holdings derived from fills.
// Positions are created on first fill and kept after going flat so the
// realized P&L survives round trips.
type PositionManager struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
	log       *logger.Log
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[string]*model.Position),
		log:       logger.GetLogger(),
	}
}

// ApplyFill folds one execution into the symbol's position and returns
// the updated snapshot. Buys add signed quantity, sells subtract. A fill
// against an existing same-direction position blends the average cost;
// an offsetting fill realizes P&L on the closed quantity and, when it
// more than closes the position, flips the remainder at the fill price.
func (pm *PositionManager) ApplyFill(symbol string, side model.Side, quantity, price float64) model.Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pos, ok := pm.positions[symbol]
	if !ok {
		pos = model.NewPosition(symbol)
		pm.positions[symbol] = pos
	}

	signed := quantity
	if side == model.SideSell {
		signed = -quantity
	}

	switch {
	case pos.Quantity == 0:
		pos.Quantity = signed
		pos.AvgCost = price

	case sameDirection(pos.Quantity, signed):
		total := abs(pos.Quantity) + quantity
		pos.AvgCost = (pos.AvgCost*abs(pos.Quantity) + price*quantity) / total
		pos.Quantity += signed

	default:
		closed := quantity
		if closed > abs(pos.Quantity) {
			closed = abs(pos.Quantity)
		}
		if pos.Quantity > 0 {
			pos.RealizedPnL += (price - pos.AvgCost) * closed
		} else {
			pos.RealizedPnL += (pos.AvgCost - price) * closed
		}
		pos.Quantity += signed
		if pos.Quantity == 0 {
			pos.AvgCost = 0
		} else if !sameDirection(pos.Quantity, -signed) {
			// The fill exceeded the old position; the excess opens a new
			// one at the fill price.
			pos.AvgCost = price
		}
	}

	pos.LastPrice = price
	pos.RecomputeUnrealized()

	pm.log.WithComponent("position_manager").WithFields(logger.Fields{
		"symbol":         symbol,
		"quantity":       pos.Quantity,
		"avg_cost":       pos.AvgCost,
		"pnl_realized":   pos.RealizedPnL,
		"pnl_unrealized": pos.UnrealizedPnL,
	}).Info("position updated")

	return *pos
}

// MarkPrice re-marks the symbol's open quantity against the latest trade
// price. Returns nil when no position exists for the symbol or the mark
// changes nothing observable.
func (pm *PositionManager) MarkPrice(symbol string, price float64) *model.Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pos, ok := pm.positions[symbol]
	if !ok {
		return nil
	}
	if pos.LastPrice == price {
		return nil
	}
	pos.LastPrice = price
	pos.RecomputeUnrealized()
	snapshot := *pos
	return &snapshot
}

// GetPosition returns a snapshot of the symbol's position.
func (pm *PositionManager) GetPosition(symbol string) (model.Position, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pos, ok := pm.positions[symbol]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// Snapshot returns copies of every tracked position.
func (pm *PositionManager) Snapshot() []model.Position {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	out := make([]model.Position, 0, len(pm.positions))
	for _, pos := range pm.positions {
		out = append(out, *pos)
	}
	return out
}

func sameDirection(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
