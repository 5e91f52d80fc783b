package arbitrage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tri-arb-go/market"
)

func spot(ex, base, quote string, price, vol float64) market.PairPrice {
	return market.PairPrice{Exchange: ex, Symbol: base + quote, Base: base, Quote: quote, Price: price, Volume: vol, IsSpot: true}
}

func TestBuildGraphInverseEdges(t *testing.T) {
	g := BuildGraph([]market.PairPrice{spot("binance", "BTC", "USDT", 50000, 10)}, 0)

	r, ok := g.Rate("BTC", "USDT")
	require.True(t, ok)
	assert.Equal(t, 50000.0, r)

	inv, ok := g.Rate("USDT", "BTC")
	require.True(t, ok)
	assert.InDelta(t, 1.0/50000, inv, 1e-15)

	assert.Equal(t, []string{"BTC", "USDT"}, g.Nodes())
	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, 1, g.PairCount())
	assert.Equal(t, 10.0, g.Liquidity("USDT", "BTC"))
}

func TestBuildGraphFiltersInvalid(t *testing.T) {
	nonSpot := spot("binance", "ETH", "USDT", 3000, 1)
	nonSpot.IsSpot = false
	g := BuildGraph([]market.PairPrice{
		nonSpot,
		spot("binance", "A", "B", 0, 1),
		spot("binance", "A", "B", -1, 1),
		spot("binance", "A", "B", math.NaN(), 1),
		spot("binance", "A", "B", math.Inf(1), 1),
		spot("binance", "A", "A", 1, 1),
		spot("binance", "", "B", 1, 1),
		spot("binance", "A", "B", 5e-324, 1), // 1/p 溢出
	}, 0)
	assert.Empty(t, g.Nodes())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestBuildGraphDuplicateEdges(t *testing.T) {
	g := BuildGraph([]market.PairPrice{
		spot("binance", "BTC", "USDT", 50000, 3),
		spot("bybit", "BTC", "USDT", 50100, 2),
		spot("kucoin", "btc", "usdt", 49900, math.NaN()),
	}, 0)

	r, _ := g.Rate("BTC", "USDT")
	assert.Equal(t, 50100.0, r)
	inv, _ := g.Rate("USDT", "BTC")
	assert.InDelta(t, 1.0/49900, inv, 1e-15)
	assert.Equal(t, 5.0, g.Liquidity("BTC", "USDT"))
	assert.Equal(t, 2, g.EdgeCount())
}

func TestBuildGraphNeighborRanking(t *testing.T) {
	pairs := []market.PairPrice{
		spot("x", "USDT", "A", 1, 5),
		spot("x", "USDT", "B", 1, 50),
		spot("x", "USDT", "C", 1, 50),
		spot("x", "USDT", "D", 1, 0),
	}
	g := BuildGraph(pairs, 0)
	assert.Equal(t, []string{"B", "C", "A", "D"}, g.Neighbors("USDT"))

	g = BuildGraph(pairs, 2)
	assert.Equal(t, []string{"B", "C"}, g.Neighbors("USDT"))
	// 截断只影响邻居列表，边本身仍可查
	_, ok := g.Rate("USDT", "D")
	assert.True(t, ok)
	assert.Equal(t, 8, g.EdgeCount())
	assert.Nil(t, g.Neighbors("NOPE"))
}

func TestNeighborLimitKeepsMostLiquidEdge(t *testing.T) {
	g := BuildGraph([]market.PairPrice{
		spot("x", "A", "B", 2, 5),
		spot("x", "A", "C", 3, 50),
	}, 1)
	assert.Equal(t, []string{"C"}, g.Neighbors("A"))
	assert.Equal(t, []string{"A"}, g.Neighbors("B"))
}
