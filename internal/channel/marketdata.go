package channel

import (
	"sync"
	"sync/atomic"

	"tradeterm/internal/model"
	"tradeterm/logger"
)

// MarketDataBus fans market-data updates out to every registered
// subscriber. Each subscriber owns its channel end; a send to a full
// subscriber buffer drops the update for that subscriber only, so a slow
// consumer can never stall ingestion.
type MarketDataBus struct {
	mu     sync.RWMutex
	subs   map[string]chan model.MarketDataUpdate
	stats  map[string]*SubscriberStats
	buffer int
	closed bool
	log    *logger.Log
}

// SubscriberStats counts deliveries and drops for one subscriber end.
// The live counters are mutated with atomics because Publish runs under
// the read lock and may be called from many goroutines at once.
type SubscriberStats struct {
	Sent    int64
	Dropped int64
}

func NewMarketDataBus(buffer int) *MarketDataBus {
	if buffer <= 0 {
		buffer = 1
	}
	return &MarketDataBus{
		subs:   make(map[string]chan model.MarketDataUpdate),
		stats:  make(map[string]*SubscriberStats),
		buffer: buffer,
		log:    logger.GetLogger(),
	}
}

// Subscribe registers a named subscriber and returns its channel end.
// Subscribing twice under the same name replaces the previous end.
func (b *MarketDataBus) Subscribe(name string) <-chan model.MarketDataUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[name]; ok {
		close(old)
	}
	ch := make(chan model.MarketDataUpdate, b.buffer)
	b.subs[name] = ch
	b.stats[name] = &SubscriberStats{}

	b.log.WithComponent("market_data_bus").WithFields(logger.Fields{
		"subscriber": name,
		"buffer":     b.buffer,
	}).Info("subscriber registered")

	return ch
}

// Unsubscribe removes a subscriber and closes its channel end.
func (b *MarketDataBus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[name]; ok {
		close(ch)
		delete(b.subs, name)
	}
}

// Publish delivers the update to every subscriber, best effort. Drops are
// counted per subscriber and never fail the publish as a whole.
func (b *MarketDataBus) Publish(update model.MarketDataUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for name, ch := range b.subs {
		select {
		case ch <- update:
			atomic.AddInt64(&b.stats[name].Sent, 1)
			logger.RecordChannelMessage("md_" + name)
		default:
			atomic.AddInt64(&b.stats[name].Dropped, 1)
			logger.RecordChannelDrop("md_" + name)
			b.log.WithComponent("market_data_bus").WithFields(logger.Fields{
				"subscriber": name,
				"symbol":     update.Symbol,
			}).Warn("subscriber buffer full, dropping market data update")
		}
	}
}

// Stats returns a copy of the per-subscriber counters.
func (b *MarketDataBus) Stats() map[string]SubscriberStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]SubscriberStats, len(b.stats))
	for name, s := range b.stats {
		out[name] = SubscriberStats{
			Sent:    atomic.LoadInt64(&s.Sent),
			Dropped: atomic.LoadInt64(&s.Dropped),
		}
	}
	return out
}

// Close closes every subscriber channel exactly once.
func (b *MarketDataBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for name, ch := range b.subs {
		close(ch)
		delete(b.subs, name)
	}
	b.log.WithComponent("market_data_bus").Info("market data bus closed")
}
