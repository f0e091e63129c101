package feed

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	appconfig "tradeterm/config"
	"tradeterm/internal/channel"
	"tradeterm/internal/model"
	"tradeterm/logger"
)

// RefPriceSeeder fetches the latest trade price for every subscribed
// symbol over the public REST API and publishes one synthetic update per
// symbol. Run once at startup so market-order fills and position marks
// have a reference price before the first streamed tick. Failures are
// logged and non-fatal.
type RefPriceSeeder struct {
	config *appconfig.Config
	client *binance.Client
	log    *logger.Log
}

func NewRefPriceSeeder(cfg *appconfig.Config) *RefPriceSeeder {
	return &RefPriceSeeder{
		config: cfg,
		client: binance.NewClient("", ""),
		log:    logger.GetLogger(),
	}
}

// Seed publishes one update per subscribed symbol to the bus.
func (s *RefPriceSeeder) Seed(ctx context.Context, bus *channel.MarketDataBus) {
	log := s.log.WithComponent("refprice_seeder")

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	prices, err := s.client.NewListPricesService().Symbols(s.config.Feed.Symbols).Do(reqCtx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch reference prices, starting unseeded")
		return
	}

	now := time.Now().UTC()
	seeded := 0
	for _, p := range prices {
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"symbol":    p.Symbol,
				"raw_price": p.Price,
			}).Warn("failed to parse reference price")
			continue
		}
		bus.Publish(seedUpdate(p.Symbol, price, now))
		seeded++
	}

	log.WithFields(logger.Fields{"symbols_seeded": seeded}).Info("reference prices seeded")
}

func seedUpdate(symbol string, price float64, at time.Time) model.MarketDataUpdate {
	return model.MarketDataUpdate{
		Symbol:    symbol,
		Timestamp: at,
		LastPrice: &price,
	}
}
