package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	appconfig "tradeterm/config"
	"tradeterm/internal/channel"
	"tradeterm/logger"
)

const (
	defaultKeepAlive      = 30 * time.Second
	defaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 10 * time.Second
	writeTimeout          = time.Second
	outboundBuffer        = 16
)

// outboundFrame is one frame queued for the session's write pump.
type outboundFrame struct {
	messageType int
	data        []byte
}

// Reader maintains the single streaming connection to the market-data
// provider, parses aggregate-trade frames and publishes the normalized
// updates to the market data bus. Transport failures end the current
// session only; the supervisor loop redials with a paced backoff.
type Reader struct {
	config  *appconfig.Config
	bus     *channel.MarketDataBus
	allowed map[string]struct{}
	limiter *rate.Limiter
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewReader(cfg *appconfig.Config, bus *channel.MarketDataBus) *Reader {
	allowed := make(map[string]struct{}, len(cfg.Feed.Symbols))
	for _, s := range cfg.Feed.Symbols {
		allowed[strings.ToUpper(s)] = struct{}{}
	}

	delay := cfg.Feed.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	return &Reader{
		config: cfg,
		bus:    bus,
		// The limiter caps dial attempts so a flapping endpoint is
		// never redialed in a tight loop.
		allowed: allowed,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// Start launches the supervisor loop.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("feed reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"url":     r.config.Feed.WebsocketURL,
		"symbols": r.config.Feed.Symbols,
	}).Info("starting feed reader")

	r.wg.Add(1)
	go r.supervise()

	log.Info("feed reader started successfully")
	return nil
}

// Stop waits for the supervisor loop to exit. Call after cancelling the
// context passed to Start.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("feed_reader").Info("stopping feed reader")
	r.wg.Wait()
	r.log.WithComponent("feed_reader").Info("feed reader stopped")
}

// supervise redials for as long as the context lives. Each session runs
// until a transport error or a close frame; per-message failures never
// reach this level.
func (r *Reader) supervise() {
	defer r.wg.Done()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"worker": "supervisor"})

	for {
		if r.ctx.Err() != nil {
			return
		}
		if err := r.limiter.Wait(r.ctx); err != nil {
			return
		}

		start := time.Now()
		err := r.runSession()
		if r.ctx.Err() != nil {
			return
		}
		log.WithError(err).WithFields(logger.Fields{
			"session_duration": time.Since(start).String(),
		}).Warn("feed session ended, reconnecting")

		if waitForReconnect(r.ctx, r.config.Feed.ReconnectDelay) {
			return
		}
	}
}

func (r *Reader) runSession() error {
	log := r.log.WithComponent("feed_reader")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(r.ctx, r.config.Feed.WebsocketURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial feed: %w", err)
	}
	defer conn.Close()

	log.WithFields(logger.Fields{"url": r.config.Feed.WebsocketURL}).Info("feed connected")

	sessCtx, cancel := context.WithCancel(r.ctx)

	// Deferred in this order so a session teardown first cancels the
	// helpers, then waits for them, and closes the socket last.
	var pumpWG sync.WaitGroup
	defer pumpWG.Wait()
	defer cancel()

	// Closing the connection is the only way to unblock a pending
	// ReadMessage when the context is cancelled externally.
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()

	// All outbound frames (keep-alive pings, pong replies) go through a
	// dedicated pump so a backlog of inbound processing can never starve
	// the control traffic.
	outbound := make(chan outboundFrame, outboundBuffer)

	pumpWG.Add(1)
	go func() {
		defer pumpWG.Done()
		r.writePump(sessCtx, conn, outbound)
	}()

	conn.SetPingHandler(func(appData string) error {
		select {
		case outbound <- outboundFrame{messageType: websocket.PongMessage, data: []byte(appData)}:
		default:
			log.Warn("outbound frame queue full, dropping pong")
		}
		return nil
	})
	conn.SetPongHandler(func(string) error {
		log.Debug("received pong")
		return nil
	})

	pumpWG.Add(1)
	go func() {
		defer pumpWG.Done()
		r.pingLoop(sessCtx, outbound)
	}()

	for {
		if sessCtx.Err() != nil {
			return sessCtx.Err()
		}
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		r.handleMessage(data)
	}
}

// writePump owns the connection's write side for the session.
func (r *Reader) writePump(ctx context.Context, conn *websocket.Conn, outbound <-chan outboundFrame) {
	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"worker": "write_pump"})

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-outbound:
			deadline := time.Now().Add(writeTimeout)
			var err error
			switch frame.messageType {
			case websocket.PingMessage, websocket.PongMessage:
				err = conn.WriteControl(frame.messageType, frame.data, deadline)
			default:
				conn.SetWriteDeadline(deadline)
				err = conn.WriteMessage(frame.messageType, frame.data)
			}
			if err != nil {
				log.WithError(err).Warn("failed to write outbound frame")
				return
			}
		}
	}
}

func (r *Reader) pingLoop(ctx context.Context, outbound chan<- outboundFrame) {
	interval := r.config.Feed.KeepaliveInterval
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"worker": "ping_loop"})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case outbound <- outboundFrame{messageType: websocket.PingMessage}:
				log.Debug("queued keep-alive ping")
			default:
				log.Warn("outbound frame queue full, skipping ping")
			}
		}
	}
}

// handleMessage parses and publishes one inbound frame. Parse failures
// are logged and skipped; they never end the session.
func (r *Reader) handleMessage(data []byte) {
	log := r.log.WithComponent("feed_reader")

	update, err := ParseAggTrade(data)
	if err != nil {
		log.WithError(err).Warn("failed to parse feed message")
		return
	}
	if update == nil {
		log.Debug("ignoring frame with unrecognized event type")
		return
	}
	if _, ok := r.allowed[strings.ToUpper(update.Symbol)]; !ok {
		log.WithFields(logger.Fields{"symbol": update.Symbol}).Debug("ignoring unsubscribed symbol")
		return
	}

	r.bus.Publish(*update)
	logger.IncrementTickIngested()
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
