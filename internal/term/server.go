package term

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appconfig "tradeterm/config"
	"tradeterm/internal/channel"
	"tradeterm/internal/model"
	"tradeterm/logger"
)

// Canceler is the slice of the OMS the presentation layer needs for
// cancel requests.
type Canceler interface {
	Cancel(id uuid.UUID) error
}

// Server is the HTTP presentation adapter: it mirrors the bus traffic
// into a Store for the read endpoints and forwards operator commands to
// the order and control channels. It holds no authoritative state.
type Server struct {
	cfg        appconfig.TermConfig
	channels   *channel.Channels
	oms        Canceler
	store      *Store
	httpServer *http.Server
	wg         sync.WaitGroup
	log        *logger.Log
}

// NewServer constructs the terminal server when the feature is enabled.
// When disabled the returned server is nil and every method is a no-op.
func NewServer(cfg appconfig.TermConfig, channels *channel.Channels, oms Canceler) *Server {
	if !cfg.Enabled {
		return nil
	}

	cfg.Listen = normalizeAddress(cfg.Listen)

	return &Server{
		cfg:      cfg,
		channels: channels,
		oms:      oms,
		store:    NewStore(200),
		log:      logger.GetLogger(),
	}
}

// Run starts the bus consumers and the HTTP server, blocking until the
// context is cancelled or the server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	log := s.log.WithComponent("term_server")

	ticks := s.channels.MarketData.Subscribe("term")
	updates := s.channels.OmsUpdates.Subscribe("term")
	defer s.channels.MarketData.Unsubscribe("term")
	defer s.channels.OmsUpdates.Unsubscribe("term")

	s.wg.Add(2)
	go s.consumeTicks(ctx, ticks)
	go s.consumeOmsUpdates(ctx, updates)
	defer s.wg.Wait()

	s.httpServer = &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.buildRouter(),
	}

	log.WithFields(logger.Fields{"listen": s.cfg.Listen}).Info("term server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Address reports the listen address.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Listen
}

func (s *Server) consumeTicks(ctx context.Context, ticks <-chan model.MarketDataUpdate) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			s.store.ApplyTick(tick)
		}
	}
}

func (s *Server) consumeOmsUpdates(ctx context.Context, updates <-chan model.OmsUpdate) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.store.ApplyOms(update)
		}
	}
}

// submitOrderRequest is the POST /api/orders payload.
type submitOrderRequest struct {
	Symbol   string   `json:"symbol" binding:"required"`
	Side     string   `json:"side" binding:"required"`
	Type     string   `json:"type" binding:"required"`
	Quantity float64  `json:"quantity" binding:"required"`
	Price    *float64 `json:"price"`
	TIF      string   `json:"tif"`
}

// strategyControlRequest is the POST /api/strategy payload.
type strategyControlRequest struct {
	Kind   string                `json:"kind" binding:"required"`
	Params *model.StrategyParams `json:"params"`
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/marketdata", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ticks":   s.store.LastTicks(),
			"history": s.store.History(),
		})
	})

	router.GET("/api/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"orders": s.store.Orders()})
	})

	router.GET("/api/positions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"positions": s.store.Positions()})
	})

	router.POST("/api/orders", s.handleSubmitOrder)
	router.DELETE("/api/orders/:id", s.handleCancelOrder)
	router.POST("/api/strategy", s.handleStrategyControl)

	return router
}

func (s *Server) handleSubmitOrder(c *gin.Context) {
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tif := model.TimeInForce(strings.ToUpper(req.TIF))
	if tif == "" {
		tif = model.TimeInForceGTC
	}

	order := model.NewOrder(
		strings.ToUpper(req.Symbol),
		model.Side(strings.ToUpper(req.Side)),
		model.OrderType(strings.ToUpper(req.Type)),
		req.Quantity,
		req.Price,
		tif,
	)

	select {
	case s.channels.Orders <- order:
		s.log.WithComponent("term_server").WithFields(logger.Fields{
			"order_id": order.ID.String(),
			"symbol":   order.Symbol,
			"side":     order.Side,
		}).Info("order submitted via api")
		c.JSON(http.StatusAccepted, gin.H{"order_id": order.ID.String()})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "order queue full"})
	}
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	if err := s.oms.Cancel(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"order_id": id.String()})
}

func (s *Server) handleStrategyControl(c *gin.Context) {
	var req strategyControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := model.StrategyControlKind(strings.ToUpper(req.Kind))
	switch kind {
	case model.StrategyStart, model.StrategyStop:
	case model.StrategyUpdateParams:
		if req.Params == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "params required for UPDATE_PARAMS"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown control kind"})
		return
	}

	select {
	case s.channels.Controls <- model.StrategyControl{Kind: kind, Params: req.Params}:
		c.JSON(http.StatusAccepted, gin.H{"kind": kind})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "control queue full"})
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8089"
	}

	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8089"
		}
		return net.JoinHostPort(host, port)
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8089")
	}

	return addr
}
