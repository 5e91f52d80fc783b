// Package arbitrage 从多交易所行情快照构建汇率图，并搜索三角套利环。
package arbitrage

import (
	"math"
	"sort"
	"strings"

	"tri-arb-go/market"
)

// Graph 单次扫描用的有向汇率图，构建后只读。
type Graph struct {
	rates     map[string]map[string]float64
	liquidity map[string]map[string]float64
	neighbors map[string][]string
	nodes     []string
	edges     int
	pairs     int
}

// BuildGraph 过滤非现货与非法价格，写入观测边 base→quote=price 与合成逆边 quote→base=1/price，
// 再按流动性为每个节点保留前 neighborLimit 个邻居（<=0 表示不限制）。
//
// 同一有向边被多次观测（多个交易所或正反两个交易对）时取最高汇率，流动性累加，
// 结果与输入顺序无关。
func BuildGraph(pairs []market.PairPrice, neighborLimit int) *Graph {
	g := &Graph{
		rates:     make(map[string]map[string]float64),
		liquidity: make(map[string]map[string]float64),
		neighbors: make(map[string][]string),
	}
	for _, p := range pairs {
		if !p.IsSpot || !market.IsPositiveFinite(p.Price) {
			continue
		}
		base := strings.ToUpper(strings.TrimSpace(p.Base))
		quote := strings.ToUpper(strings.TrimSpace(p.Quote))
		if base == "" || quote == "" || base == quote {
			continue
		}
		inv := 1 / p.Price
		if !market.IsPositiveFinite(inv) {
			continue
		}
		vol := p.Volume
		if vol < 0 || math.IsNaN(vol) || math.IsInf(vol, 0) {
			vol = 0
		}
		g.pairs++
		g.offer(base, quote, p.Price, vol)
		g.offer(quote, base, inv, vol)
	}

	for from, targets := range g.rates {
		list := make([]string, 0, len(targets))
		for to := range targets {
			list = append(list, to)
		}
		liq := g.liquidity[from]
		sort.Slice(list, func(i, j int) bool {
			li, lj := liq[list[i]], liq[list[j]]
			if li != lj {
				return li > lj
			}
			return list[i] < list[j]
		})
		if neighborLimit > 0 && len(list) > neighborLimit {
			list = list[:neighborLimit]
		}
		g.neighbors[from] = list
		g.nodes = append(g.nodes, from)
		g.edges += len(targets)
	}
	sort.Strings(g.nodes)
	return g
}

func (g *Graph) offer(from, to string, rate, vol float64) {
	row, ok := g.rates[from]
	if !ok {
		row = make(map[string]float64)
		g.rates[from] = row
		g.liquidity[from] = make(map[string]float64)
	}
	if old, exists := row[to]; !exists || rate > old {
		row[to] = rate
	}
	g.liquidity[from][to] += vol
}

// Rate 返回 from→to 的汇率；不存在时 ok=false。
func (g *Graph) Rate(from, to string) (float64, bool) {
	r, ok := g.rates[from][to]
	return r, ok
}

// Liquidity from→to 的流动性代理，未知为 0。
func (g *Graph) Liquidity(from, to string) float64 {
	return g.liquidity[from][to]
}

// Neighbors 按流动性降序、截断后的邻居列表。调用方不得修改。
func (g *Graph) Neighbors(node string) []string {
	return g.neighbors[node]
}

// Nodes 所有有出边的币种（排序后）。
func (g *Graph) Nodes() []string {
	return g.nodes
}

// EdgeCount 有向边总数（含合成逆边，不受邻居截断影响）。
func (g *Graph) EdgeCount() int { return g.edges }

// PairCount 通过过滤进入图的行情条数。
func (g *Graph) PairCount() int { return g.pairs }
