package model

import (
	"testing"
	"time"
)

func TestOrderStateTerminal(t *testing.T) {
	terminal := []OrderState{OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateExpired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	working := []OrderState{OrderStateNew, OrderStatePendingNew, OrderStateOpen, OrderStatePartialFill, OrderStatePendingCancel}
	for _, s := range working {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestOrderStateTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderState
		want     bool
	}{
		{OrderStateNew, OrderStatePendingNew, true},
		{OrderStatePendingNew, OrderStateOpen, true},
		{OrderStatePendingNew, OrderStateFilled, true},
		{OrderStatePendingNew, OrderStateRejected, true},
		{OrderStateOpen, OrderStateFilled, true},
		{OrderStateOpen, OrderStatePartialFill, true},
		{OrderStatePartialFill, OrderStatePartialFill, true},
		{OrderStatePendingCancel, OrderStateCanceled, true},
		{OrderStatePendingCancel, OrderStateFilled, true},
		{OrderStateFilled, OrderStateCanceled, false},
		{OrderStateCanceled, OrderStateOpen, false},
		{OrderStateRejected, OrderStatePendingNew, false},
		{OrderStateNew, OrderStateFilled, false},
		{OrderStateOpen, OrderStateRejected, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: want %v got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestNewOrderDefaults(t *testing.T) {
	price := 25000.0
	order := NewOrder("BTCUSDT", SideBuy, OrderTypeLimit, 1, &price, TimeInForceGTC)

	if order.State != OrderStateNew {
		t.Errorf("new order must start in NEW, got %s", order.State)
	}
	if order.ClientOrderID != "cl_"+order.ID.String() {
		t.Errorf("unexpected client order id: %s", order.ClientOrderID)
	}
	if order.PlacedAt.IsZero() {
		t.Errorf("placement time not set")
	}
}

func TestRecordFillAveraging(t *testing.T) {
	price := 100.0
	order := NewOrder("BTCUSDT", SideBuy, OrderTypeLimit, 10, &price, TimeInForceGTC)
	full := NewFullOrder(order)

	now := time.Now().UTC()
	full.RecordFill(4, 100, now)
	full.RecordFill(6, 110, now)

	if full.FilledQuantity != 10 {
		t.Errorf("unexpected filled quantity: %v", full.FilledQuantity)
	}
	if full.AvgFillPrice != 106 {
		t.Errorf("expected avg fill price 106, got %v", full.AvgFillPrice)
	}
	if full.Remaining() != 0 {
		t.Errorf("expected nothing remaining, got %v", full.Remaining())
	}
	if full.LastFillPrice == nil || *full.LastFillPrice != 110 {
		t.Errorf("unexpected last fill price: %v", full.LastFillPrice)
	}
}
