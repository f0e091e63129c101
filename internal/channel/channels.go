package channel

import (
	"context"
	"time"

	"tradeterm/internal/model"
	"tradeterm/logger"
)

// Channels bundles every inter-component link of the terminal: the two
// outbound fan-out buses and the two inbound command channels. Together
// they are the entire contract with the presentation layer.
type Channels struct {
	MarketData *MarketDataBus
	OmsUpdates *OmsBus

	// Orders feeds the OMS; written by the strategy engine and the
	// presentation layer.
	Orders chan model.Order
	// Controls feeds the strategy engine; written by the presentation
	// layer.
	Controls chan model.StrategyControl

	log *logger.Log
}

func NewChannels(mdBuffer, omsBuffer, orderBuffer, controlBuffer int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		MarketData: NewMarketDataBus(mdBuffer),
		OmsUpdates: NewOmsBus(omsBuffer),
		Orders:     make(chan model.Order, orderBuffer),
		Controls:   make(chan model.StrategyControl, controlBuffer),
		log:        log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"market_data_buffer": mdBuffer,
		"oms_update_buffer":  omsBuffer,
		"order_buffer":       orderBuffer,
		"control_buffer":     controlBuffer,
	}).Info("channels initialized")

	return c
}

// Close closes the fan-out buses. The inbound command channels stay open;
// their consumers exit via context cancellation so that late senders do
// not panic on a closed channel.
func (c *Channels) Close() {
	c.MarketData.Close()
	c.OmsUpdates.Close()
	c.log.WithComponent("channels").Info("channels closed")
}

// StartMetricsReporting periodically logs per-subscriber bus counters.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.reportMetrics()
			}
		}
	}()
}

func (c *Channels) reportMetrics() {
	for name, s := range c.MarketData.Stats() {
		c.log.LogMetric("channels", "md_sent", s.Sent, "counter", logger.Fields{"subscriber": name})
		c.log.LogMetric("channels", "md_dropped", s.Dropped, "counter", logger.Fields{"subscriber": name})
	}
	for name, s := range c.OmsUpdates.Stats() {
		c.log.LogMetric("channels", "oms_sent", s.Sent, "counter", logger.Fields{"subscriber": name})
		c.log.LogMetric("channels", "oms_dropped", s.Dropped, "counter", logger.Fields{"subscriber": name})
	}
	c.log.WithComponent("channels").WithFields(logger.Fields{
		"orders_queued":   len(c.Orders),
		"controls_queued": len(c.Controls),
	}).Debug("command channel depth")
}
