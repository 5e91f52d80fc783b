package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNormalize 交易对无法拆分为 base/quote。
	ErrNormalize = errors.New("symbol normalization failed")
	// ErrInvalidQuote 价格非正或非有限值。
	ErrInvalidQuote = errors.New("invalid quote")
)

// PairPrice 一条观测到的行情：1 Base = Price Quote。
type PairPrice struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Base      string    `json:"base"`
	Quote     string    `json:"quote"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume,omitempty"`
	IsSpot    bool      `json:"is_spot"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Valid 判断该行情能否进入价格图。
func (p PairPrice) Valid() bool {
	return p.Check() == nil
}

// Check 返回具体的拒绝原因，调用方用 errors.Is 分类。
func (p PairPrice) Check() error {
	if p.Base == "" || p.Quote == "" || p.Base == p.Quote {
		return fmt.Errorf("%w: %q -> %q/%q", ErrNormalize, p.Symbol, p.Base, p.Quote)
	}
	if !IsPositiveFinite(p.Price) {
		return fmt.Errorf("%w: %s price=%v", ErrInvalidQuote, p.Symbol, p.Price)
	}
	if p.Volume < 0 || math.IsNaN(p.Volume) || math.IsInf(p.Volume, 0) {
		return fmt.Errorf("%w: %s volume=%v", ErrInvalidQuote, p.Symbol, p.Volume)
	}
	return nil
}

// IsPositiveFinite 价格、汇率统一使用的校验。
func IsPositiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NewPairPrice 从原始交易所代码构造行情，失败时返回带分类的错误。
func NewPairPrice(exchange, rawSymbol string, price, volume float64, ts time.Time) (PairPrice, error) {
	base, quote, ok := NormalizeSymbol(rawSymbol)
	if !ok {
		return PairPrice{}, fmt.Errorf("%w: %q", ErrNormalize, rawSymbol)
	}
	if math.IsNaN(volume) || math.IsInf(volume, 0) || volume < 0 {
		volume = 0
	}
	p := PairPrice{
		Exchange:  exchange,
		Symbol:    rawSymbol,
		Base:      base,
		Quote:     quote,
		Price:     price,
		Volume:    volume,
		IsSpot:    true,
		UpdatedAt: ts,
	}
	if err := p.Check(); err != nil {
		return PairPrice{}, err
	}
	return p, nil
}
