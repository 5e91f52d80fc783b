package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tri-arb-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string                    `yaml:"env"`
	Server    ServerConfig              `yaml:"server"`
	Log       logger.Config             `yaml:"log"`
	Scan      ScanConfig                `yaml:"scan"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Redis     RedisConfig               `yaml:"redis"`
	Alert     AlertConfig               `yaml:"alert"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// ScanConfig 扫描默认参数，请求未指定时使用；支持热更新。
type ScanConfig struct {
	FeePerLegPct          float64 `yaml:"feePerLegPct"`
	NeighborLimit         int     `yaml:"neighborLimit"`
	MinProfitAfterFeesPct float64 `yaml:"minProfitAfterFeesPct"`
}

// ExchangeConfig 单个交易所连接器参数，毫秒字段为 0 时使用连接器默认值。
type ExchangeConfig struct {
	Enabled          bool     `yaml:"enabled"`
	URL              string   `yaml:"url"`
	TokenURL         string   `yaml:"tokenURL"`
	Symbols          []string `yaml:"symbols"`
	FlushIntervalMs  int      `yaml:"flushIntervalMs"`
	InitialBackoffMs int      `yaml:"initialBackoffMs"`
	MaxBackoffMs     int      `yaml:"maxBackoffMs"`
	ReadTimeoutMs    int      `yaml:"readTimeoutMs"`
	PingIntervalMs   int      `yaml:"pingIntervalMs"`
	// SubscribeRate 每秒最多发送的订阅报文数，0 表示不限速。
	SubscribeRate float64 `yaml:"subscribeRate"`
}

// Ms 毫秒配置转 time.Duration。
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// RedisConfig 扫描结果推送（可选）。
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	Channel  string `yaml:"channel"`
	TTLSec   int    `yaml:"ttlSec"`
}

// AlertConfig 机会与行情中断告警。RedisChannel 仅在 redis.enabled 时生效。
type AlertConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MinProfitPct float64 `yaml:"minProfitPct"`
	ThrottleSec  int     `yaml:"throttleSec"`
	RedisChannel string  `yaml:"redisChannel"`
}

// Default 四个交易所全部启用，费率 0.1%/腿，邻居上限 100。
func Default() AppConfig {
	ex := func() ExchangeConfig { return ExchangeConfig{Enabled: true, FlushIntervalMs: 1000} }
	return AppConfig{
		Env: "dev",
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9100",
		},
		Log: logger.DefaultConfig(),
		Scan: ScanConfig{
			FeePerLegPct:  0.10,
			NeighborLimit: 100,
		},
		Exchanges: map[string]ExchangeConfig{
			"binance": ex(),
			"bybit":   ex(),
			"kucoin":  ex(),
			"gateio":  ex(),
		},
		Redis: RedisConfig{
			Addr:    "127.0.0.1:6379",
			Key:     "triarb:last_scan",
			Channel: "triarb:scans",
			TTLSec:  60,
		},
		Alert: AlertConfig{
			Enabled:      true,
			MinProfitPct: 0.5,
			ThrottleSec:  300,
		},
	}
}

// Load reads YAML config from path over Default() and applies validation.
// 文件中出现 exchanges 段时以文件为准，未列出的交易所不启用。
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	defaults := cfg.Exchanges
	cfg.Exchanges = nil
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if cfg.Exchanges == nil {
		cfg.Exchanges = defaults
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// ApplyEnv 应用 TRIARB_* 环境变量。
func ApplyEnv(cfg *AppConfig) error {
	if v := os.Getenv("TRIARB_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TRIARB_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("TRIARB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("TRIARB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TRIARB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TRIARB_FEE_PER_LEG_PCT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRIARB_FEE_PER_LEG_PCT: %w", err)
		}
		cfg.Scan.FeePerLegPct = f
	}
	return nil
}
