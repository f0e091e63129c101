package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	appconfig "tradeterm/config"
	"tradeterm/internal/channel"
)

// startFeedServer runs a websocket endpoint that pushes the given frames
// to every connection and then holds it open.
func startFeedServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readerConfig(url string) *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Feed.WebsocketURL = "ws" + strings.TrimPrefix(url, "http")
	cfg.Feed.Symbols = []string{"BTCUSDT"}
	cfg.Feed.ReconnectDelay = 50 * time.Millisecond
	return cfg
}

func TestReaderPublishesParsedTicks(t *testing.T) {
	srv := startFeedServer(t, []string{
		`{"e":"aggTrade","E":1700000000000,"s":"BTCUSDT","p":"25001.5","q":"0.25"}`,
		`{"e":"depthUpdate","s":"BTCUSDT"}`,
		`{"e":"aggTrade","E":1700000000001,"s":"ETHUSDT","p":"1800","q":"1"}`,
	})

	bus := channel.NewMarketDataBus(16)
	defer bus.Close()
	sub := bus.Subscribe("test")

	reader := NewReader(readerConfig(srv.URL), bus)
	ctx, cancel := context.WithCancel(context.Background())
	if err := reader.Start(ctx); err != nil {
		t.Fatalf("failed to start reader: %v", err)
	}
	defer func() {
		cancel()
		reader.Stop()
	}()

	select {
	case update := <-sub:
		if update.Symbol != "BTCUSDT" {
			t.Errorf("unexpected symbol: %s", update.Symbol)
		}
		if update.LastPrice == nil || *update.LastPrice != 25001.5 {
			t.Errorf("unexpected last price: %v", update.LastPrice)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a published tick")
	}

	// The depth frame is skipped and the ETHUSDT trade filtered out, so
	// nothing else may arrive.
	select {
	case update := <-sub:
		t.Fatalf("unexpected extra update: %+v", update)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReaderStopsCleanly(t *testing.T) {
	srv := startFeedServer(t, nil)

	bus := channel.NewMarketDataBus(4)
	defer bus.Close()

	reader := NewReader(readerConfig(srv.URL), bus)
	ctx, cancel := context.WithCancel(context.Background())
	if err := reader.Start(ctx); err != nil {
		t.Fatalf("failed to start reader: %v", err)
	}

	// Give the session time to connect and block in its read loop.
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		cancel()
		reader.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("reader did not stop after context cancellation")
	}
}

func TestReaderDoubleStart(t *testing.T) {
	srv := startFeedServer(t, nil)

	bus := channel.NewMarketDataBus(4)
	defer bus.Close()

	reader := NewReader(readerConfig(srv.URL), bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		reader.Stop()
	}()

	if err := reader.Start(ctx); err != nil {
		t.Fatalf("failed to start reader: %v", err)
	}
	if err := reader.Start(ctx); err == nil {
		t.Fatalf("expected an error on double start")
	}
}
