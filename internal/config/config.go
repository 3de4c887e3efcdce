package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ExitPolicyWatcher = "watcher"
	ExitPolicyBracket = "bracket"

	PositionSourceLedger = "ledger"
	PositionSourceBroker = "broker"

	BrokerAlpaca = "alpaca"
	BrokerSim    = "sim"
)

type Config struct {
	App          AppConfig                   `mapstructure:"app"`
	Server       ServerConfig                `mapstructure:"server"`
	Log          LogConfig                   `mapstructure:"log"`
	DB           DBConfig                    `mapstructure:"db"`
	Broker       BrokerConfig                `mapstructure:"broker"`
	Executor     ExecutorConfig              `mapstructure:"executor"`
	AssetClasses map[string]AssetClassConfig `mapstructure:"asset_classes"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
	// Worker selects the asset class this process serves.
	Worker string `mapstructure:"worker"`
}

type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type BrokerConfig struct {
	Provider  string        `mapstructure:"provider"`
	KeyID     string        `mapstructure:"key_id"`
	SecretKey string        `mapstructure:"secret_key"`
	Paper     bool          `mapstructure:"paper"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type ExecutorConfig struct {
	Claimant              string        `mapstructure:"claimant"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	IdleHeartbeatInterval time.Duration `mapstructure:"idle_heartbeat_interval"`
	JobPause              time.Duration `mapstructure:"job_pause"`
	ExitPolicy            string        `mapstructure:"exit_policy"`
	PositionSource        string        `mapstructure:"position_source"`
	AllowMarketBracket    bool          `mapstructure:"allow_market_bracket"`
	FailClosedOnGuardErr  bool          `mapstructure:"fail_closed_on_guard_error"`
	AccountHeartbeat      string        `mapstructure:"account_heartbeat"`
}

// AssetClassConfig holds the caps and sizing policy of one execution handler variant.
type AssetClassConfig struct {
	JobTypes        []string `mapstructure:"job_types"`
	ExecutorTag     string   `mapstructure:"executor_tag"`
	MaxPositions    int      `mapstructure:"max_positions"`
	MaxTradesPerDay int      `mapstructure:"max_trades_per_day"`
	NotionalSizing  bool     `mapstructure:"notional_sizing"`
}

// ResolvedBaseURL picks the broker endpoint from the explicit override or the paper flag.
func (b BrokerConfig) ResolvedBaseURL() string {
	if u := strings.TrimRight(strings.TrimSpace(b.BaseURL), "/"); u != "" {
		return u
	}
	if b.Paper {
		return "https://paper-api.alpaca.markets"
	}
	return "https://api.alpaca.markets"
}

// WorkerClass returns the asset class selected by app.worker.
func (c Config) WorkerClass() (string, AssetClassConfig, error) {
	name := strings.ToLower(strings.TrimSpace(c.App.Worker))
	ac, ok := c.AssetClasses[name]
	if !ok {
		known := make([]string, 0, len(c.AssetClasses))
		for k := range c.AssetClasses {
			known = append(known, k)
		}
		sort.Strings(known)
		return "", AssetClassConfig{}, fmt.Errorf("unknown worker %q (known: %s)", c.App.Worker, strings.Join(known, ","))
	}
	if ac.ExecutorTag == "" {
		ac.ExecutorTag = name
	}
	if len(ac.JobTypes) == 0 {
		ac.JobTypes = []string{name}
	}
	return name, ac, nil
}

// Validate rejects configurations the worker must not start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("db.dsn is required")
	}
	switch c.Broker.Provider {
	case BrokerAlpaca:
		if c.Broker.KeyID == "" || c.Broker.SecretKey == "" {
			return fmt.Errorf("broker credentials missing (set APCA_API_KEY_ID and APCA_API_SECRET_KEY)")
		}
	case BrokerSim:
	default:
		return fmt.Errorf("unknown broker.provider %q", c.Broker.Provider)
	}
	switch c.Executor.ExitPolicy {
	case ExitPolicyWatcher, ExitPolicyBracket:
	default:
		return fmt.Errorf("unknown executor.exit_policy %q", c.Executor.ExitPolicy)
	}
	switch c.Executor.PositionSource {
	case PositionSourceLedger, PositionSourceBroker:
	default:
		return fmt.Errorf("unknown executor.position_source %q", c.Executor.PositionSource)
	}
	if c.Executor.PollInterval <= 0 {
		return fmt.Errorf("executor.poll_interval must be positive")
	}
	if _, _, err := c.WorkerClass(); err != nil {
		return err
	}
	return nil
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	_ = v.BindEnv("broker.key_id", "EXEC_BROKER_KEY_ID", "APCA_API_KEY_ID", "ALPACA_API_KEY")
	_ = v.BindEnv("broker.secret_key", "EXEC_BROKER_SECRET_KEY", "APCA_API_SECRET_KEY", "ALPACA_SECRET_KEY")
	_ = v.BindEnv("broker.paper", "EXEC_BROKER_PAPER", "ALPACA_PAPER")
	_ = v.BindEnv("broker.base_url", "EXEC_BROKER_BASE_URL", "ALPACA_BASE_URL")
	_ = v.BindEnv("db.dsn", "EXEC_DB_DSN", "DATABASE_URL")
	_ = v.BindEnv("executor.poll_interval", "EXEC_EXECUTOR_POLL_INTERVAL")
	_ = v.BindEnv("executor.allow_market_bracket", "EXEC_EXECUTOR_ALLOW_MARKET_BRACKET", "ALLOW_MARKET_BRACKET")

	v.SetDefault("app.env", "dev")
	v.SetDefault("app.worker", "stocks")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.http_addr", ":9102")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.auto_migrate", false)

	v.SetDefault("broker.provider", BrokerAlpaca)
	v.SetDefault("broker.paper", false)
	v.SetDefault("broker.timeout", "15s")

	v.SetDefault("executor.claimant", "")
	v.SetDefault("executor.poll_interval", "5s")
	v.SetDefault("executor.idle_heartbeat_interval", "30s")
	v.SetDefault("executor.job_pause", "1s")
	v.SetDefault("executor.exit_policy", ExitPolicyWatcher)
	v.SetDefault("executor.position_source", PositionSourceLedger)
	v.SetDefault("executor.allow_market_bracket", false)
	v.SetDefault("executor.fail_closed_on_guard_error", false)
	v.SetDefault("executor.account_heartbeat", "@every 5m")

	v.SetDefault("asset_classes.stocks.job_types", []string{"stocks"})
	v.SetDefault("asset_classes.stocks.executor_tag", "stocks")
	v.SetDefault("asset_classes.stocks.max_positions", 5)
	v.SetDefault("asset_classes.stocks.max_trades_per_day", 10)
	v.SetDefault("asset_classes.stocks.notional_sizing", true)
	v.SetDefault("asset_classes.penny.job_types", []string{"penny"})
	v.SetDefault("asset_classes.penny.executor_tag", "penny")
	v.SetDefault("asset_classes.penny.max_positions", 1)
	v.SetDefault("asset_classes.penny.max_trades_per_day", 1)
	v.SetDefault("asset_classes.penny.notional_sizing", false)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Broker.Provider = strings.ToLower(strings.TrimSpace(cfg.Broker.Provider))
	cfg.Executor.ExitPolicy = strings.ToLower(strings.TrimSpace(cfg.Executor.ExitPolicy))
	cfg.Executor.PositionSource = strings.ToLower(strings.TrimSpace(cfg.Executor.PositionSource))

	return cfg, nil
}
