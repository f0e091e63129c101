package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tradeterm TradetermConfig `yaml:"tradeterm"`
	Feed      FeedConfig      `yaml:"feed"`
	Channels  ChannelsConfig  `yaml:"channels"`
	OMS       OMSConfig       `yaml:"oms"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Term      TermConfig      `yaml:"term"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type TradetermConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// FeedConfig describes the single read-only market-data connection.
type FeedConfig struct {
	WebsocketURL      string        `yaml:"websocket_url"`
	Symbols           []string      `yaml:"symbols"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	SeedRefPrices     bool          `yaml:"seed_ref_prices"`
}

type ChannelsConfig struct {
	MarketDataBuffer int `yaml:"market_data_buffer"`
	OmsUpdateBuffer  int `yaml:"oms_update_buffer"`
	OrderBuffer      int `yaml:"order_buffer"`
	ControlBuffer    int `yaml:"control_buffer"`
}

// OMSConfig bounds the randomized delay of the simulated executor.
type OMSConfig struct {
	FillDelayMin time.Duration `yaml:"fill_delay_min"`
	FillDelayMax time.Duration `yaml:"fill_delay_max"`
}

type StrategyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Name              string        `yaml:"name"`
	OrderSize         float64       `yaml:"order_size"`
	UpperBand         float64       `yaml:"upper_band"`
	LowerBand         float64       `yaml:"lower_band"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// TermConfig configures the HTTP presentation adapter.
type TermConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type MetricsConfig struct {
	ChannelStats bool             `yaml:"channel_stats"`
	CloudWatch   CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads and validates the YAML configuration at path. When the
// file does not exist a commented default is written there and returned,
// so a fresh checkout starts against the public Binance stream.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if werr := writeDefault(path); werr != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", werr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := *Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides for deployment-specific knobs.
	if v := os.Getenv("FEED_WEBSOCKET_URL"); v != "" {
		config.Feed.WebsocketURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("TERM_LISTEN"); v != "" {
		config.Term.Listen = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Tradeterm: TradetermConfig{
			Name:    "tradeterm",
			Version: "0.1.0",
		},
		Feed: FeedConfig{
			WebsocketURL:      "wss://stream.binance.com:9443/ws/btcusdt@aggTrade",
			Symbols:           []string{"BTCUSDT"},
			KeepaliveInterval: 30 * time.Second,
			ReconnectDelay:    5 * time.Second,
			SeedRefPrices:     true,
		},
		Channels: ChannelsConfig{
			MarketDataBuffer: 1024,
			OmsUpdateBuffer:  1024,
			OrderBuffer:      256,
			ControlBuffer:    16,
		},
		OMS: OMSConfig{
			FillDelayMin: 100 * time.Millisecond,
			FillDelayMax: 300 * time.Millisecond,
		},
		Strategy: StrategyConfig{
			Enabled:           true,
			Name:              "mean_reversion",
			OrderSize:         0.0001,
			UpperBand:         25000,
			LowerBand:         19000,
			HeartbeatInterval: 5 * time.Second,
		},
		Term: TermConfig{
			Enabled: true,
			Listen:  ":8089",
		},
		Metrics: MetricsConfig{
			ChannelStats: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Tradeterm.Name == "" {
		return fmt.Errorf("tradeterm.name is required")
	}
	if cfg.Tradeterm.Version == "" {
		return fmt.Errorf("tradeterm.version is required")
	}

	if cfg.Feed.WebsocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required")
	}
	if !strings.HasPrefix(cfg.Feed.WebsocketURL, "ws://") && !strings.HasPrefix(cfg.Feed.WebsocketURL, "wss://") {
		return fmt.Errorf("feed.websocket_url '%s' is not a websocket URL", cfg.Feed.WebsocketURL)
	}
	if len(cfg.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols must list at least one symbol")
	}
	if cfg.Feed.KeepaliveInterval <= 0 {
		return fmt.Errorf("feed.keepalive_interval must be greater than 0")
	}
	if cfg.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed.reconnect_delay must be greater than 0")
	}

	if cfg.Channels.MarketDataBuffer <= 0 {
		return fmt.Errorf("channels.market_data_buffer must be greater than 0")
	}
	if cfg.Channels.OmsUpdateBuffer <= 0 {
		return fmt.Errorf("channels.oms_update_buffer must be greater than 0")
	}
	if cfg.Channels.OrderBuffer <= 0 {
		return fmt.Errorf("channels.order_buffer must be greater than 0")
	}

	if cfg.OMS.FillDelayMin <= 0 {
		return fmt.Errorf("oms.fill_delay_min must be greater than 0")
	}
	if cfg.OMS.FillDelayMax < cfg.OMS.FillDelayMin {
		return fmt.Errorf("oms.fill_delay_max must be >= oms.fill_delay_min")
	}

	if cfg.Strategy.OrderSize <= 0 {
		return fmt.Errorf("strategy.order_size must be greater than 0")
	}
	if cfg.Strategy.UpperBand <= cfg.Strategy.LowerBand {
		return fmt.Errorf("strategy.upper_band must be greater than strategy.lower_band")
	}
	if cfg.Strategy.HeartbeatInterval <= 0 {
		return fmt.Errorf("strategy.heartbeat_interval must be greater than 0")
	}

	if cfg.Term.Enabled && cfg.Term.Listen == "" {
		return fmt.Errorf("term.listen is required when term is enabled")
	}

	return nil
}

func writeDefault(path string) error {
	cfg := Default()
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	header := "# tradeterm configuration, generated with defaults. Review and restart.\n"
	return os.WriteFile(path, append([]byte(header), out...), 0o644)
}
