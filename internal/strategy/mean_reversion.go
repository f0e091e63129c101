package strategy

import (
	"tradeterm/internal/model"
)

// MeanReversion fades prices that leave the configured band: a last
// trade above the upper band sells, below the lower band buys, anything
// in between does nothing. Orders are limits at the observed price for
// the configured size, so the fill arithmetic downstream stays exact.
// The policy keeps no memory; the state passes through unchanged.
func MeanReversion(state State, update model.MarketDataUpdate) (State, *model.Order) {
	if update.LastPrice == nil {
		return state, nil
	}
	price := *update.LastPrice

	var side model.Side
	switch {
	case price > state.Params.UpperBand:
		side = model.SideSell
	case price < state.Params.LowerBand:
		side = model.SideBuy
	default:
		return state, nil
	}

	limit := price
	order := model.NewOrder(update.Symbol, side, model.OrderTypeLimit, state.Params.OrderSize, &limit, model.TimeInForceGTC)
	return state, &order
}
