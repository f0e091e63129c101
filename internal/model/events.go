package model

import (
	"time"

	"github.com/google/uuid"
)

// OmsUpdateKind tags the variant carried by an OmsUpdate.
type OmsUpdateKind string

const (
	OmsOrderCreated     OmsUpdateKind = "ORDER_CREATED"
	OmsOrderStateChange OmsUpdateKind = "ORDER_STATE_CHANGE"
	OmsPositionUpdate   OmsUpdateKind = "POSITION_UPDATE"
)

// OmsUpdate is the fire-and-forget event the OMS publishes to observers.
// Exactly one of the payload fields is meaningful, selected by Kind.
type OmsUpdate struct {
	Kind OmsUpdateKind `json:"kind"`

	// OmsOrderCreated
	Order *Order `json:"order,omitempty"`

	// OmsOrderStateChange
	OrderID   uuid.UUID  `json:"order_id,omitempty"`
	NewState  OrderState `json:"new_state,omitempty"`
	Timestamp time.Time  `json:"timestamp,omitempty"`

	// OmsPositionUpdate
	Position *Position `json:"position,omitempty"`
}

func OrderCreated(order Order) OmsUpdate {
	return OmsUpdate{Kind: OmsOrderCreated, Order: &order, Timestamp: time.Now().UTC()}
}

func OrderStateChanged(id uuid.UUID, state OrderState) OmsUpdate {
	return OmsUpdate{Kind: OmsOrderStateChange, OrderID: id, NewState: state, Timestamp: time.Now().UTC()}
}

func PositionUpdated(pos Position) OmsUpdate {
	return OmsUpdate{Kind: OmsPositionUpdate, Position: &pos, Timestamp: time.Now().UTC()}
}

// StrategyControlKind tags the variant carried by a StrategyControl.
type StrategyControlKind string

const (
	StrategyStart        StrategyControlKind = "START"
	StrategyStop         StrategyControlKind = "STOP"
	StrategyUpdateParams StrategyControlKind = "UPDATE_PARAMS"
)

// StrategyParams is the live-reloadable strategy configuration snapshot.
type StrategyParams struct {
	Name      string  `json:"name" yaml:"name"`
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	OrderSize float64 `json:"order_size" yaml:"order_size"`
	UpperBand float64 `json:"upper_band" yaml:"upper_band"`
	LowerBand float64 `json:"lower_band" yaml:"lower_band"`
}

// StrategyControl drives the strategy engine's enabled flag and
// parameter set.
type StrategyControl struct {
	Kind   StrategyControlKind `json:"kind"`
	Params *StrategyParams     `json:"params,omitempty"`
}
