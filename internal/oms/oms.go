package oms

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "tradeterm/config"
	"tradeterm/internal/channel"
	"tradeterm/internal/model"
	"tradeterm/logger"
)

// OMS owns the order ledger and the position book. Orders arrive on the
// shared order channel, are validated, inserted and handed to a
// simulated executor that fills them after a randomized delay. Every
// observable change leaves as an OmsUpdate on the fan-out bus; nothing
// else may mutate the ledger.
type OMS struct {
	config    *appconfig.Config
	channels  *channel.Channels
	positions *PositionManager

	mu        sync.Mutex
	ledger    map[uuid.UUID]*model.FullOrder
	refPrices map[string]float64

	ctx     context.Context
	wg      *sync.WaitGroup
	runMu   sync.RWMutex
	running bool
	log     *logger.Log
}

func NewOMS(cfg *appconfig.Config, channels *channel.Channels) *OMS {
	return &OMS{
		config:    cfg,
		channels:  channels,
		positions: NewPositionManager(),
		ledger:    make(map[uuid.UUID]*model.FullOrder),
		refPrices: make(map[string]float64),
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
	}
}

// Start launches the intake loop.
func (o *OMS) Start(ctx context.Context) error {
	o.runMu.Lock()
	if o.running {
		o.runMu.Unlock()
		return fmt.Errorf("oms already running")
	}
	o.running = true
	o.ctx = ctx
	o.runMu.Unlock()

	log := o.log.WithComponent("oms").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"fill_delay_min": o.config.OMS.FillDelayMin.String(),
		"fill_delay_max": o.config.OMS.FillDelayMax.String(),
	}).Info("starting oms")

	ticks := o.channels.MarketData.Subscribe("oms")

	o.wg.Add(1)
	go o.run(ticks)

	log.Info("oms started successfully")
	return nil
}

// Stop waits for the intake loop and every in-flight executor to exit.
// Call after cancelling the context passed to Start.
func (o *OMS) Stop() {
	o.runMu.Lock()
	o.running = false
	o.runMu.Unlock()

	o.log.WithComponent("oms").Info("stopping oms")
	o.channels.MarketData.Unsubscribe("oms")
	o.wg.Wait()
	o.log.WithComponent("oms").Info("oms stopped")
}

// Positions exposes the position book for read-only snapshots.
func (o *OMS) Positions() *PositionManager {
	return o.positions
}

// Orders returns ledger snapshots ordered by placement time.
func (o *OMS) Orders() []model.FullOrder {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]model.FullOrder, 0, len(o.ledger))
	for _, full := range o.ledger {
		out = append(out, *full)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Order.PlacedAt.Before(out[j].Order.PlacedAt)
	})
	return out
}

// GetOrder returns a snapshot of one ledger entry.
func (o *OMS) GetOrder(id uuid.UUID) (model.FullOrder, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	full, ok := o.ledger[id]
	if !ok {
		return model.FullOrder{}, false
	}
	return *full, true
}

func (o *OMS) run(ticks <-chan model.MarketDataUpdate) {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case order, ok := <-o.channels.Orders:
			if !ok {
				return
			}
			o.handleOrder(order)
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			o.handleTick(tick)
		}
	}
}

// handleTick records the symbol's reference price and re-marks any open
// position against it.
func (o *OMS) handleTick(tick model.MarketDataUpdate) {
	if tick.LastPrice == nil {
		return
	}
	price := *tick.LastPrice

	o.mu.Lock()
	o.refPrices[tick.Symbol] = price
	o.mu.Unlock()

	if pos := o.positions.MarkPrice(tick.Symbol, price); pos != nil {
		o.channels.OmsUpdates.Publish(model.PositionUpdated(*pos))
	}
}

// handleOrder validates and accepts one order intent. Accepted orders
// are inserted as PendingNew, announced with an OrderCreated before any
// state change, and handed to the executor. Invalid orders never touch
// the ledger.
func (o *OMS) handleOrder(order model.Order) {
	log := o.log.WithComponent("oms").WithFields(logger.Fields{
		"order_id": order.ID.String(),
		"symbol":   order.Symbol,
		"side":     order.Side,
	})

	if err := validateOrder(order); err != nil {
		log.WithError(err).Warn("order rejected")
		o.channels.OmsUpdates.Publish(model.OrderStateChanged(order.ID, model.OrderStateRejected))
		return
	}

	order.State = model.OrderStatePendingNew
	full := model.NewFullOrder(order)

	o.mu.Lock()
	o.ledger[order.ID] = full
	o.mu.Unlock()

	o.channels.OmsUpdates.Publish(model.OrderCreated(order))
	logger.IncrementOrderSubmitted()
	log.WithFields(logger.Fields{
		"type":     order.Type,
		"quantity": order.Quantity,
	}).Info("order accepted")

	o.wg.Add(1)
	go o.execute(order.ID)
}

// execute simulates the venue: wait a randomized delay, then fill the
// full remaining quantity in one print. The delay elapses outside the
// ledger lock; a cancel that lands first wins and the fill becomes a
// logged no-op.
func (o *OMS) execute(id uuid.UUID) {
	defer o.wg.Done()

	log := o.log.WithComponent("oms").WithFields(logger.Fields{
		"worker":   "executor",
		"order_id": id.String(),
	})

	timer := time.NewTimer(o.fillDelay())
	defer timer.Stop()
	select {
	case <-o.ctx.Done():
		return
	case <-timer.C:
	}

	o.mu.Lock()
	full, ok := o.ledger[id]
	if !ok {
		o.mu.Unlock()
		log.Warn("executor fired for unknown order, skipping")
		return
	}
	if full.State.Terminal() {
		state := full.State
		o.mu.Unlock()
		log.WithFields(logger.Fields{"state": state}).Info("order already terminal, skipping fill")
		return
	}

	price, err := o.fillPriceLocked(full)
	if err != nil {
		if !full.State.CanTransition(model.OrderStateRejected) {
			state := full.State
			o.mu.Unlock()
			log.WithError(err).WithFields(logger.Fields{"state": state}).Warn("no fill price and no legal reject transition, skipping")
			return
		}
		full.State = model.OrderStateRejected
		reason := err.Error()
		full.RejectReason = &reason
		o.mu.Unlock()
		log.WithError(err).Warn("order rejected at execution")
		o.channels.OmsUpdates.Publish(model.OrderStateChanged(id, model.OrderStateRejected))
		return
	}

	if !full.State.CanTransition(model.OrderStateFilled) {
		state := full.State
		o.mu.Unlock()
		log.WithFields(logger.Fields{"state": state}).Warn("illegal fill transition, skipping")
		return
	}

	quantity := full.Remaining()
	now := time.Now().UTC()
	full.RecordFill(quantity, price, now)
	full.State = model.OrderStateFilled
	order := full.Order
	o.mu.Unlock()

	o.channels.OmsUpdates.Publish(model.OrderStateChanged(id, model.OrderStateFilled))
	logger.IncrementOrderFilled()
	log.WithFields(logger.Fields{
		"price":    price,
		"quantity": quantity,
	}).Info("order filled")
	logger.LogPerformanceEntry(log, "oms", "simulated_fill", now.Sub(order.PlacedAt), logger.Fields{
		"symbol": order.Symbol,
	})

	pos := o.positions.ApplyFill(order.Symbol, order.Side, quantity, price)
	o.channels.OmsUpdates.Publish(model.PositionUpdated(pos))
}

// Cancel requests cancellation of a working order. Orders already in a
// terminal state are left untouched; the attempt is logged and reported
// as an error to the caller.
func (o *OMS) Cancel(id uuid.UUID) error {
	log := o.log.WithComponent("oms").WithFields(logger.Fields{"order_id": id.String()})

	o.mu.Lock()
	full, ok := o.ledger[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown order %s", id)
	}
	if full.State.Terminal() {
		state := full.State
		o.mu.Unlock()
		log.WithFields(logger.Fields{"state": state}).Warn("cancel requested for terminal order, ignoring")
		return fmt.Errorf("order %s already %s", id, state)
	}
	if !full.State.CanTransition(model.OrderStatePendingCancel) {
		state := full.State
		o.mu.Unlock()
		return fmt.Errorf("order %s cannot be canceled from %s", id, state)
	}
	// The simulated venue has no resting book and acks cancels
	// immediately, so both edges apply under one lock: a racing fill
	// either lands before (terminal check above fails the cancel) or
	// after (the executor finds Canceled and skips). Events go out only
	// for transitions that were actually applied.
	full.State = model.OrderStateCanceled
	o.mu.Unlock()

	o.channels.OmsUpdates.Publish(model.OrderStateChanged(id, model.OrderStatePendingCancel))
	o.channels.OmsUpdates.Publish(model.OrderStateChanged(id, model.OrderStateCanceled))
	log.Info("order canceled")
	return nil
}

// fillDelay draws a uniform delay from the configured window.
func (o *OMS) fillDelay() time.Duration {
	min := o.config.OMS.FillDelayMin
	max := o.config.OMS.FillDelayMax
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// fillPriceLocked resolves the execution price: limits fill at their
// limit, markets at the symbol's latest reference price. The caller
// holds the ledger lock.
func (o *OMS) fillPriceLocked(full *model.FullOrder) (float64, error) {
	if full.Order.Type == model.OrderTypeLimit && full.Order.Price != nil {
		return *full.Order.Price, nil
	}
	price, ok := o.refPrices[full.Order.Symbol]
	if !ok {
		return 0, fmt.Errorf("no reference price for %s", full.Order.Symbol)
	}
	return price, nil
}

func validateOrder(order model.Order) error {
	if order.Symbol == "" {
		return fmt.Errorf("order symbol is required")
	}
	if order.Side != model.SideBuy && order.Side != model.SideSell {
		return fmt.Errorf("invalid order side '%s'", order.Side)
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("order quantity must be greater than 0")
	}
	switch order.Type {
	case model.OrderTypeLimit:
		if order.Price == nil || *order.Price <= 0 {
			return fmt.Errorf("limit order requires a positive price")
		}
	case model.OrderTypeMarket:
	default:
		return fmt.Errorf("invalid order type '%s'", order.Type)
	}
	return nil
}
