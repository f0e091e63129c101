package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "tradeterm/config"
	"tradeterm/internal/channel"
	"tradeterm/internal/model"
	"tradeterm/logger"
)

// Engine runs the configured policy against the market data stream and
// submits the resulting order intents to the OMS. It owns nothing but
// the policy state it threads through evaluations; every order it emits
// goes through the same order channel the presentation layer uses.
type Engine struct {
	config    *appconfig.Config
	channels  *channel.Channels
	evaluator Evaluator

	mu      sync.RWMutex
	state   State
	running bool

	ctx context.Context
	wg  *sync.WaitGroup
	log *logger.Log

	ordersEmitted uint64
	ticksSeen     uint64
}

func NewEngine(cfg *appconfig.Config, channels *channel.Channels) (*Engine, error) {
	evaluator, err := Lookup(cfg.Strategy.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve strategy: %w", err)
	}

	return &Engine{
		config:    cfg,
		channels:  channels,
		evaluator: evaluator,
		state: NewState(model.StrategyParams{
			Name:      cfg.Strategy.Name,
			Enabled:   cfg.Strategy.Enabled,
			OrderSize: cfg.Strategy.OrderSize,
			UpperBand: cfg.Strategy.UpperBand,
			LowerBand: cfg.Strategy.LowerBand,
		}),
		wg:  &sync.WaitGroup{},
		log: logger.GetLogger(),
	}, nil
}

// Start launches the evaluation loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("strategy engine already running")
	}
	e.running = true
	e.ctx = ctx
	params := e.state.Params
	e.mu.Unlock()

	log := e.log.WithComponent("strategy_engine").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"strategy":   params.Name,
		"enabled":    params.Enabled,
		"order_size": params.OrderSize,
		"upper_band": params.UpperBand,
		"lower_band": params.LowerBand,
	}).Info("starting strategy engine")

	ticks := e.channels.MarketData.Subscribe("strategy")

	e.wg.Add(1)
	go e.run(ticks)

	log.Info("strategy engine started successfully")
	return nil
}

// Stop waits for the evaluation loop to exit. Call after cancelling the
// context passed to Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.log.WithComponent("strategy_engine").Info("stopping strategy engine")
	e.channels.MarketData.Unsubscribe("strategy")
	e.wg.Wait()
	e.log.WithComponent("strategy_engine").Info("strategy engine stopped")
}

// Params returns the current parameter snapshot.
func (e *Engine) Params() model.StrategyParams {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Params
}

func (e *Engine) run(ticks <-chan model.MarketDataUpdate) {
	defer e.wg.Done()

	log := e.log.WithComponent("strategy_engine").WithFields(logger.Fields{"worker": "evaluation_loop"})

	heartbeat := e.config.Strategy.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case control, ok := <-e.channels.Controls:
			if !ok {
				return
			}
			e.applyControl(control)
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			e.evaluate(tick)
		case <-ticker.C:
			params := e.Params()
			log.WithFields(logger.Fields{
				"strategy":       params.Name,
				"enabled":        params.Enabled,
				"ticks_seen":     e.ticksSeen,
				"orders_emitted": e.ordersEmitted,
			}).Debug("strategy heartbeat")
		}
	}
}

// applyControl mutates the enabled flag and parameter snapshot. Controls
// take effect on the next tick; an evaluation already in flight finishes
// under the old snapshot.
func (e *Engine) applyControl(control model.StrategyControl) {
	log := e.log.WithComponent("strategy_engine")

	e.mu.Lock()
	switch control.Kind {
	case model.StrategyStart:
		e.state.Params.Enabled = true
	case model.StrategyStop:
		e.state.Params.Enabled = false
	case model.StrategyUpdateParams:
		if control.Params == nil {
			e.mu.Unlock()
			log.Warn("ignoring parameter update without parameters")
			return
		}
		if control.Params.Name != "" && control.Params.Name != e.state.Params.Name {
			evaluator, err := Lookup(control.Params.Name)
			if err != nil {
				e.mu.Unlock()
				log.WithError(err).Warn("ignoring parameter update with unknown strategy")
				return
			}
			// A new policy starts from fresh memory.
			e.evaluator = evaluator
			e.state = NewState(*control.Params)
			e.mu.Unlock()
			log.WithFields(logger.Fields{"strategy": control.Params.Name}).Info("strategy replaced")
			return
		}
		e.state.Params = *control.Params
	default:
		e.mu.Unlock()
		log.WithFields(logger.Fields{"kind": control.Kind}).Warn("ignoring unknown strategy control")
		return
	}
	params := e.state.Params
	e.mu.Unlock()

	log.WithFields(logger.Fields{
		"kind":       control.Kind,
		"strategy":   params.Name,
		"enabled":    params.Enabled,
		"order_size": params.OrderSize,
		"upper_band": params.UpperBand,
		"lower_band": params.LowerBand,
	}).Info("applied strategy control")
}

func (e *Engine) evaluate(tick model.MarketDataUpdate) {
	e.ticksSeen++

	e.mu.RLock()
	state := e.state
	evaluator := e.evaluator
	e.mu.RUnlock()

	if !state.Params.Enabled {
		return
	}

	next, order := evaluator(state, tick)

	e.mu.Lock()
	// Keep control changes that landed mid-evaluation; only the policy
	// memory belongs to the evaluator.
	next.Params = e.state.Params
	e.state = next
	e.mu.Unlock()

	if order == nil {
		return
	}

	log := e.log.WithComponent("strategy_engine")
	select {
	case e.channels.Orders <- *order:
		e.ordersEmitted++
		log.WithFields(logger.Fields{
			"order_id": order.ID.String(),
			"symbol":   order.Symbol,
			"side":     order.Side,
			"quantity": order.Quantity,
		}).Info("strategy order submitted")
	default:
		log.WithFields(logger.Fields{
			"order_id": order.ID.String(),
			"symbol":   order.Symbol,
		}).Warn("order channel full, dropping strategy order")
	}
}
