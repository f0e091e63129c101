package term

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeterm/internal/model"
)

// orderRecord is the presentation-side view of one order, rebuilt from
// the OMS event stream.
type orderRecord struct {
	Order     model.Order      `json:"order"`
	State     model.OrderState `json:"state"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store retains the most recent terminal state: last tick per symbol, a
// bounded tick history, the order blotter and the position book. It is
// fed exclusively from the fan-out buses and is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	lastTicks map[string]model.MarketDataUpdate
	history   []model.MarketDataUpdate
	limit     int
	orders    map[uuid.UUID]*orderRecord
	positions map[string]model.Position
}

func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Store{
		lastTicks: make(map[string]model.MarketDataUpdate),
		limit:     historyLimit,
		orders:    make(map[uuid.UUID]*orderRecord),
		positions: make(map[string]model.Position),
	}
}

// ApplyTick folds one market data update into the store.
func (s *Store) ApplyTick(update model.MarketDataUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTicks[update.Symbol] = update
	s.history = append(s.history, update)
	if len(s.history) > s.limit {
		// keep the most recent entries only
		s.history = append([]model.MarketDataUpdate(nil), s.history[len(s.history)-s.limit:]...)
	}
}

// ApplyOms folds one OMS event into the blotter and the position book.
func (s *Store) ApplyOms(update model.OmsUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch update.Kind {
	case model.OmsOrderCreated:
		if update.Order == nil {
			return
		}
		s.orders[update.Order.ID] = &orderRecord{
			Order:     *update.Order,
			State:     update.Order.State,
			UpdatedAt: update.Timestamp,
		}
	case model.OmsOrderStateChange:
		rec, ok := s.orders[update.OrderID]
		if !ok {
			// A rejection of an order that never entered the ledger still
			// shows up in the blotter so the operator sees it.
			s.orders[update.OrderID] = &orderRecord{
				Order:     model.Order{ID: update.OrderID},
				State:     update.NewState,
				UpdatedAt: update.Timestamp,
			}
			return
		}
		rec.State = update.NewState
		rec.UpdatedAt = update.Timestamp
	case model.OmsPositionUpdate:
		if update.Position == nil {
			return
		}
		s.positions[update.Position.Symbol] = *update.Position
	}
}

// LastTicks returns the latest update per symbol, sorted by symbol.
func (s *Store) LastTicks() []model.MarketDataUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MarketDataUpdate, 0, len(s.lastTicks))
	for _, tick := range s.lastTicks {
		out = append(out, tick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// History returns the bounded tick history, oldest first.
func (s *Store) History() []model.MarketDataUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MarketDataUpdate, len(s.history))
	copy(out, s.history)
	return out
}

// Orders returns the blotter ordered by placement time.
func (s *Store) Orders() []orderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]orderRecord, 0, len(s.orders))
	for _, rec := range s.orders {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Order.PlacedAt.Before(out[j].Order.PlacedAt)
	})
	return out
}

// Positions returns the position book sorted by symbol.
func (s *Store) Positions() []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
