package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all backend configuration.
type Config struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	HTTP struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Chain struct {
		Vault            string `yaml:"vault"`
		Oracle           string `yaml:"oracle"`
		Admin            string `yaml:"admin"`
		GasWallet        string `yaml:"gas_wallet"`
		LPRewards        string `yaml:"lp_rewards"`
		StakerRewards    string `yaml:"staker_rewards"`
		ProtocolTreasury string `yaml:"protocol_treasury"`
		ArbiterRewards   string `yaml:"arbiter_rewards"`
		BuilderRewards   string `yaml:"builder_rewards"`
		AdminFee         string `yaml:"admin_fee"`
	} `yaml:"chain"`
	Sweep struct {
		Cron      string `yaml:"cron"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"sweep"`
	Dispatcher struct {
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
		BatchSize           int    `yaml:"batch_size"`
		MaxAttempts         int    `yaml:"max_attempts"`
		WalletBridgeURL     string `yaml:"wallet_bridge_url"`
		WalletBridgeAPIKey  string `yaml:"wallet_bridge_api_key"`
	} `yaml:"dispatcher"`
	Feed struct {
		WSURL                  string   `yaml:"ws_url"`
		RESTURL                string   `yaml:"rest_url"`
		Assets                 []string `yaml:"assets"`
		ReconnectMaxSeconds    int      `yaml:"reconnect_max_seconds"`
		SnapshotRequestsPerMin int      `yaml:"snapshot_requests_per_min"`
	} `yaml:"feed"`
	Relay struct {
		JWTSecret       string  `yaml:"jwt_secret"`
		TokenTTLMinutes int     `yaml:"token_ttl_minutes"`
		RequestsPerSec  float64 `yaml:"requests_per_sec"`
		Burst           int     `yaml:"burst"`
		DailyBudget     int64   `yaml:"daily_budget"`
	} `yaml:"relay"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is fine: everything can come from
// the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SWEEP_CRON"); v != "" {
		cfg.Sweep.Cron = v
	}
	if v := os.Getenv("WALLET_BRIDGE_URL"); v != "" {
		cfg.Dispatcher.WalletBridgeURL = v
	}
	if v := os.Getenv("WALLET_BRIDGE_API_KEY"); v != "" {
		cfg.Dispatcher.WalletBridgeAPIKey = v
	}
	if v := os.Getenv("FEED_WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv("FEED_REST_URL"); v != "" {
		cfg.Feed.RESTURL = v
	}
	if v := os.Getenv("FEED_ASSETS"); v != "" {
		cfg.Feed.Assets = strings.Split(v, ",")
	}
	if v := os.Getenv("RELAY_JWT_SECRET"); v != "" {
		cfg.Relay.JWTSecret = v
	}
	if v := os.Getenv("RELAY_DAILY_BUDGET"); v != "" {
		if budget, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Relay.DailyBudget = budget
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}

	// Defaults
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Sweep.Cron == "" {
		cfg.Sweep.Cron = "* * * * *"
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = 100
	}
	if cfg.Dispatcher.PollIntervalSeconds == 0 {
		cfg.Dispatcher.PollIntervalSeconds = 2
	}
	if cfg.Dispatcher.BatchSize == 0 {
		cfg.Dispatcher.BatchSize = 50
	}
	if cfg.Dispatcher.MaxAttempts == 0 {
		cfg.Dispatcher.MaxAttempts = 8
	}
	if cfg.Feed.ReconnectMaxSeconds == 0 {
		cfg.Feed.ReconnectMaxSeconds = 30
	}
	if cfg.Feed.SnapshotRequestsPerMin == 0 {
		cfg.Feed.SnapshotRequestsPerMin = 12
	}
	if cfg.Relay.TokenTTLMinutes == 0 {
		cfg.Relay.TokenTTLMinutes = 15
	}
	if cfg.Relay.RequestsPerSec == 0 {
		cfg.Relay.RequestsPerSec = 5
	}
	if cfg.Relay.Burst == 0 {
		cfg.Relay.Burst = 10
	}
	if cfg.Relay.DailyBudget == 0 {
		cfg.Relay.DailyBudget = 10_000_000_000
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	chain := []struct {
		name string
		addr string
	}{
		{"chain.vault", c.Chain.Vault},
		{"chain.oracle", c.Chain.Oracle},
		{"chain.admin", c.Chain.Admin},
		{"chain.gas_wallet", c.Chain.GasWallet},
		{"chain.lp_rewards", c.Chain.LPRewards},
		{"chain.staker_rewards", c.Chain.StakerRewards},
		{"chain.protocol_treasury", c.Chain.ProtocolTreasury},
		{"chain.arbiter_rewards", c.Chain.ArbiterRewards},
		{"chain.builder_rewards", c.Chain.BuilderRewards},
		{"chain.admin_fee", c.Chain.AdminFee},
	}
	for _, f := range chain {
		if f.addr == "" {
			return fmt.Errorf("config: %s is required", f.name)
		}
	}
	if c.Relay.JWTSecret == "" {
		return fmt.Errorf("config: relay.jwt_secret is required")
	}
	if c.Relay.DailyBudget <= 0 {
		return fmt.Errorf("config: relay.daily_budget must be positive")
	}
	return nil
}

// PollInterval is the dispatcher poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Dispatcher.PollIntervalSeconds) * time.Second
}

// TokenTTL is the relay session token lifetime as a duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Relay.TokenTTLMinutes) * time.Minute
}

// ReconnectMax caps the feed reconnect backoff.
func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.Feed.ReconnectMaxSeconds) * time.Second
}
