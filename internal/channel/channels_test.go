package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradeterm/internal/model"
)

func TestNewChannels(t *testing.T) {
	c := NewChannels(1, 1, 1, 1)
	if c.MarketData == nil || c.OmsUpdates == nil {
		t.Fatalf("expected non-nil buses")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.StartMetricsReporting(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	c.Close()
}

func TestMarketDataBusFanOut(t *testing.T) {
	bus := NewMarketDataBus(4)
	defer bus.Close()

	a := bus.Subscribe("a")
	b := bus.Subscribe("b")

	price := 100.5
	bus.Publish(model.MarketDataUpdate{Symbol: "BTCUSDT", LastPrice: &price})

	for _, ch := range []<-chan model.MarketDataUpdate{a, b} {
		select {
		case got := <-ch:
			if got.Symbol != "BTCUSDT" {
				t.Errorf("unexpected symbol: %s", got.Symbol)
			}
		default:
			t.Fatalf("subscriber did not receive update")
		}
	}
}

func TestMarketDataBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewMarketDataBus(1)
	defer bus.Close()

	bus.Subscribe("slow")
	fast := bus.Subscribe("fast")

	// Fill the slow subscriber's buffer, then keep publishing. The
	// publisher must never block and the fast subscriber must keep
	// receiving.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(model.MarketDataUpdate{Symbol: "ETHUSDT"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}

	if len(fast) == 0 {
		t.Errorf("fast subscriber received nothing")
	}

	stats := bus.Stats()
	if stats["slow"].Dropped == 0 {
		t.Errorf("expected drops for slow subscriber, got %+v", stats["slow"])
	}
}

func TestMarketDataBusOrderingPerSubscriber(t *testing.T) {
	bus := NewMarketDataBus(16)
	defer bus.Close()

	sub := bus.Subscribe("ordered")
	for i := 0; i < 10; i++ {
		p := float64(i)
		bus.Publish(model.MarketDataUpdate{Symbol: "BTCUSDT", LastPrice: &p})
	}

	for i := 0; i < 10; i++ {
		got := <-sub
		if *got.LastPrice != float64(i) {
			t.Fatalf("updates reordered: want %d got %v", i, *got.LastPrice)
		}
	}
}

func TestOmsBusConcurrentPublishCounts(t *testing.T) {
	bus := NewOmsBus(8)
	defer bus.Close()

	sub := bus.Subscribe("counted")

	const publishers = 4
	const perPublisher = 500

	// Keep the subscriber drained so both the sent and the dropped path
	// get exercised while publishers race.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range sub {
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				bus.Publish(model.OmsUpdate{Kind: model.OmsPositionUpdate})
			}
		}()
	}
	wg.Wait()
	bus.Close()
	<-drained

	stats := bus.Stats()
	total := stats["counted"].Sent + stats["counted"].Dropped
	if total != publishers*perPublisher {
		t.Fatalf("counters lost updates: sent=%d dropped=%d want total %d",
			stats["counted"].Sent, stats["counted"].Dropped, publishers*perPublisher)
	}
}

func TestOmsBusUnsubscribe(t *testing.T) {
	bus := NewOmsBus(4)
	defer bus.Close()

	ch := bus.Subscribe("ui")
	bus.Unsubscribe("ui")

	if _, ok := <-ch; ok {
		t.Errorf("expected closed channel after unsubscribe")
	}

	// Publishing after the subscriber dropped must not panic.
	bus.Publish(model.OmsUpdate{Kind: model.OmsPositionUpdate})
}
