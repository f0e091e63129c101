package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce governs how long an order stays eligible for execution.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
)

// OrderState is the lifecycle state of an order. The OMS holds the only
// authoritative copy; everything else sees snapshots via OmsUpdate events.
type OrderState string

const (
	OrderStateNew           OrderState = "NEW"
	OrderStatePendingNew    OrderState = "PENDING_NEW"
	OrderStateOpen          OrderState = "OPEN"
	OrderStatePartialFill   OrderState = "PARTIAL_FILL"
	OrderStateFilled        OrderState = "FILLED"
	OrderStatePendingCancel OrderState = "PENDING_CANCEL"
	OrderStateCanceled      OrderState = "CANCELED"
	OrderStateRejected      OrderState = "REJECTED"
	OrderStateExpired       OrderState = "EXPIRED"
)

// Terminal reports whether no further state mutation is permitted.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateExpired:
		return true
	default:
		return false
	}
}

var orderTransitions = map[OrderState][]OrderState{
	OrderStateNew: {OrderStatePendingNew},
	// The simulated venue acks and fills in a single step, so a direct
	// PendingNew -> Filled edge is legal alongside the usual Open path.
	OrderStatePendingNew:    {OrderStateOpen, OrderStateRejected, OrderStateFilled, OrderStatePendingCancel},
	OrderStateOpen:          {OrderStatePartialFill, OrderStateFilled, OrderStatePendingCancel, OrderStateExpired},
	OrderStatePartialFill:   {OrderStatePartialFill, OrderStateFilled, OrderStatePendingCancel, OrderStateExpired},
	OrderStatePendingCancel: {OrderStateCanceled, OrderStateFilled},
}

// CanTransition reports whether moving from s to next is a legal edge of
// the order state machine.
func (s OrderState) CanTransition(next OrderState) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is the order intent as created by the presentation layer or the
// strategy engine. Once submitted it is owned by the OMS.
type Order struct {
	ID            uuid.UUID   `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"order_type"`
	Quantity      float64     `json:"quantity"`
	Price         *float64    `json:"price,omitempty"`
	TIF           TimeInForce `json:"tif"`
	PlacedAt      time.Time   `json:"placed_at"`
	State         OrderState  `json:"state"`
}

// NewOrder builds an order intent with a fresh identifier in state New.
// Price may be nil for market orders.
func NewOrder(symbol string, side Side, typ OrderType, quantity float64, price *float64, tif TimeInForce) Order {
	id := uuid.New()
	return Order{
		ID:            id,
		ClientOrderID: fmt.Sprintf("cl_%s", id.String()),
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		Quantity:      quantity,
		Price:         price,
		TIF:           tif,
		PlacedAt:      time.Now().UTC(),
		State:         OrderStateNew,
	}
}

// FullOrder is the OMS-internal order record: the intent plus execution
// bookkeeping. FilledQuantity never exceeds Order.Quantity and
// AvgFillPrice is meaningful only while FilledQuantity > 0.
type FullOrder struct {
	Order          Order      `json:"order"`
	State          OrderState `json:"state"`
	FilledQuantity float64    `json:"filled_quantity"`
	AvgFillPrice   float64    `json:"avg_fill_price"`
	LastFillPrice  *float64   `json:"last_fill_price,omitempty"`
	LastFillQty    *float64   `json:"last_fill_quantity,omitempty"`
	LastFillTime   *time.Time `json:"last_fill_time,omitempty"`
	VenueOrderID   *string    `json:"venue_order_id,omitempty"`
	RejectReason   *string    `json:"reject_reason,omitempty"`
}

func NewFullOrder(order Order) *FullOrder {
	return &FullOrder{
		Order: order,
		State: order.State,
	}
}

// RecordFill folds one execution into the record, maintaining the
// quantity-weighted average fill price. The caller holds the ledger lock.
func (f *FullOrder) RecordFill(quantity, price float64, at time.Time) {
	prev := f.FilledQuantity
	f.FilledQuantity += quantity
	if f.FilledQuantity > 0 {
		f.AvgFillPrice = (f.AvgFillPrice*prev + price*quantity) / f.FilledQuantity
	}
	f.LastFillPrice = &price
	f.LastFillQty = &quantity
	f.LastFillTime = &at
}

// Remaining is the unexecuted quantity of the order.
func (f *FullOrder) Remaining() float64 {
	return f.Order.Quantity - f.FilledQuantity
}
