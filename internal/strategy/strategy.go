package strategy

import (
	"fmt"

	"tradeterm/internal/model"
)

// State is a policy's evolving view of the world: the live parameter
// snapshot plus policy-private memory carried from one update to the
// next. The engine threads it through every evaluation.
type State struct {
	Params model.StrategyParams
	Memory map[string]float64
}

func NewState(params model.StrategyParams) State {
	return State{Params: params, Memory: make(map[string]float64)}
}

// Evaluator is one trading policy: a pure function from the current
// state and a single market data update to the next state and an
// optional order intent. No I/O, no shared mutation, so policies are
// swappable without touching the engine's loop.
type Evaluator func(state State, update model.MarketDataUpdate) (State, *model.Order)

var evaluators = map[string]Evaluator{
	"mean_reversion": MeanReversion,
}

// Lookup resolves a policy by its configured name.
func Lookup(name string) (Evaluator, error) {
	ev, ok := evaluators[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy '%s'", name)
	}
	return ev, nil
}
