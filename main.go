package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradeterm/config"
	"tradeterm/internal/channel"
	"tradeterm/internal/feed"
	"tradeterm/internal/oms"
	"tradeterm/internal/strategy"
	"tradeterm/internal/term"
	"tradeterm/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tradeterm.Name,
		"version": cfg.Tradeterm.Version,
	}).Info("starting tradeterm")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(
			cfg.Metrics.CloudWatch.Region,
			cfg.Metrics.CloudWatch.Namespace,
			cfg.Metrics.CloudWatch.Dashboard,
		)
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.MarketDataBuffer,
		cfg.Channels.OmsUpdateBuffer,
		cfg.Channels.OrderBuffer,
		cfg.Channels.ControlBuffer,
	)
	defer channels.Close()

	if cfg.Metrics.ChannelStats {
		channels.StartMetricsReporting(ctx)
	}

	orderManager := oms.NewOMS(cfg, channels)
	if err := orderManager.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start oms")
		os.Exit(1)
	}

	engine, err := strategy.NewEngine(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to build strategy engine")
		os.Exit(1)
	}
	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start strategy engine")
		os.Exit(1)
	}

	if cfg.Feed.SeedRefPrices {
		feed.NewRefPriceSeeder(cfg).Seed(ctx, channels.MarketData)
	}

	reader := feed.NewReader(cfg, channels.MarketData)
	if err := reader.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start feed reader")
		os.Exit(1)
	}

	var wg sync.WaitGroup
	termServer := term.NewServer(cfg.Term, channels, orderManager)
	if termServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := termServer.Run(ctx); err != nil {
				log.WithError(err).Warn("term server exited with error")
			}
		}()
	} else {
		log.WithComponent("main").Info("term server disabled")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping feed reader")
	reader.Stop()

	log.Info("stopping strategy engine")
	engine.Stop()

	log.Info("stopping oms")
	orderManager.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("tradeterm stopped")
}
