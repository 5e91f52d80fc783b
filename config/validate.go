package config

import (
	"fmt"
	"math"

	"tri-arb-go/gateway"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and ranges are sane.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Server.Addr == "" {
		return ErrInvalid("server.addr is required")
	}
	if err := ValidateScan(cfg.Scan); err != nil {
		return err
	}
	enabled := 0
	for name, ex := range cfg.Exchanges {
		if _, ok := gateway.CanonicalName(name); !ok {
			return ErrInvalid(fmt.Sprintf("exchanges.%s is not supported", name))
		}
		if !ex.Enabled {
			continue
		}
		enabled++
		if ex.FlushIntervalMs < 0 || ex.InitialBackoffMs < 0 || ex.MaxBackoffMs < 0 ||
			ex.ReadTimeoutMs < 0 || ex.PingIntervalMs < 0 {
			return ErrInvalid(fmt.Sprintf("exchanges.%s durations must be >= 0", name))
		}
		if ex.MaxBackoffMs > 0 && ex.MaxBackoffMs < ex.InitialBackoffMs {
			return ErrInvalid(fmt.Sprintf("exchanges.%s maxBackoffMs must be >= initialBackoffMs", name))
		}
		if ex.SubscribeRate < 0 {
			return ErrInvalid(fmt.Sprintf("exchanges.%s subscribeRate must be >= 0", name))
		}
	}
	if enabled == 0 {
		return ErrInvalid("at least one exchange must be enabled")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return ErrInvalid("redis.addr is required when redis is enabled")
	}
	if cfg.Alert.ThrottleSec < 0 {
		return ErrInvalid("alert.throttleSec must be >= 0")
	}
	if math.IsNaN(cfg.Alert.MinProfitPct) || math.IsInf(cfg.Alert.MinProfitPct, 0) {
		return ErrInvalid("alert.minProfitPct must be finite")
	}
	return nil
}

// ValidateScan 扫描参数校验，配置加载与单次请求共用。
func ValidateScan(s ScanConfig) error {
	if math.IsNaN(s.FeePerLegPct) || s.FeePerLegPct < 0 || s.FeePerLegPct >= 100 {
		return ErrInvalid("scan.feePerLegPct must be in [0, 100)")
	}
	if s.NeighborLimit < 0 {
		return ErrInvalid("scan.neighborLimit must be >= 0")
	}
	if math.IsNaN(s.MinProfitAfterFeesPct) || math.IsInf(s.MinProfitAfterFeesPct, 0) {
		return ErrInvalid("scan.minProfitAfterFeesPct must be finite")
	}
	return nil
}
