package channel

import (
	"sync"
	"sync/atomic"

	"tradeterm/internal/model"
	"tradeterm/logger"
)

// OmsBus fans OMS events out to every registered subscriber, with the
// same per-subscriber drop semantics as the market data bus.
type OmsBus struct {
	mu     sync.RWMutex
	subs   map[string]chan model.OmsUpdate
	stats  map[string]*SubscriberStats
	buffer int
	closed bool
	log    *logger.Log
}

func NewOmsBus(buffer int) *OmsBus {
	if buffer <= 0 {
		buffer = 1
	}
	return &OmsBus{
		subs:   make(map[string]chan model.OmsUpdate),
		stats:  make(map[string]*SubscriberStats),
		buffer: buffer,
		log:    logger.GetLogger(),
	}
}

func (b *OmsBus) Subscribe(name string) <-chan model.OmsUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[name]; ok {
		close(old)
	}
	ch := make(chan model.OmsUpdate, b.buffer)
	b.subs[name] = ch
	b.stats[name] = &SubscriberStats{}

	b.log.WithComponent("oms_bus").WithFields(logger.Fields{
		"subscriber": name,
		"buffer":     b.buffer,
	}).Info("subscriber registered")

	return ch
}

func (b *OmsBus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[name]; ok {
		close(ch)
		delete(b.subs, name)
	}
}

func (b *OmsBus) Publish(update model.OmsUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for name, ch := range b.subs {
		select {
		case ch <- update:
			atomic.AddInt64(&b.stats[name].Sent, 1)
			logger.RecordChannelMessage("oms_" + name)
		default:
			atomic.AddInt64(&b.stats[name].Dropped, 1)
			logger.RecordChannelDrop("oms_" + name)
			b.log.WithComponent("oms_bus").WithFields(logger.Fields{
				"subscriber": name,
				"kind":       string(update.Kind),
			}).Warn("subscriber buffer full, dropping OMS update")
		}
	}
}

func (b *OmsBus) Stats() map[string]SubscriberStats {
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

func (b *OmsBus) Close() {
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
	b.log.WithComponent("oms_bus").Info("oms bus closed")
}
