package model

// Position is the per-symbol holdings record. Quantity is signed:
// positive net long, negative net short. Records are created lazily on
// first fill and never deleted, so a flat position keeps its realized P&L.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	LastPrice     float64 `json:"last_price"`
	UnrealizedPnL float64 `json:"pnl_unrealized"`
	RealizedPnL   float64 `json:"pnl_realized"`
}

func NewPosition(symbol string) *Position {
	return &Position{Symbol: symbol}
}

// RecomputeUnrealized re-marks the open quantity against the last
// observed price. A flat position always carries zero unrealized P&L.
func (p *Position) RecomputeUnrealized() {
	if p.Quantity == 0 {
		p.UnrealizedPnL = 0
		return
	}
	p.UnrealizedPnL = (p.LastPrice - p.AvgCost) * p.Quantity
}
