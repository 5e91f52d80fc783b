package arbitrage

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ScanParams 单次扫描参数。
type ScanParams struct {
	MinProfitAfterFeesPct float64
	FeePerLegPct          float64
}

// Opportunity 一个三角套利环 a→b→c→a，Triangle 为字典序最小的旋转。
type Opportunity struct {
	Triangle            [3]string `json:"triangle"`
	Route               string    `json:"route"`
	Legs                [3]string `json:"pairs"`
	ProfitBeforeFeesPct float64   `json:"profit_before_fees_pct"`
	TotalFeePct         float64   `json:"total_fee_pct"`
	ProfitAfterFeesPct  float64   `json:"profit_after_fees_pct"`
	LiquidityScore      float64   `json:"liquidity_score"`
}

// PairsLabel "A/B | B/C | C/A"
func (o Opportunity) PairsLabel() string {
	return strings.Join(o.Legs[:], " | ")
}

// Scan 在图上枚举所有三角环：起点取全部节点，第二、三跳取截断后的邻居，
// 闭合边 c→a 查完整邻接表。每一步乘法都检查 NaN/Inf，毛利 <=0 的环直接跳过。
// 同一个环的三个旋转只产出一次，结果按费后收益降序、流动性降序、三角字典序排序。
func Scan(g *Graph, p ScanParams) []Opportunity {
	if g == nil {
		return nil
	}
	legFactor := 1 - p.FeePerLegPct/100
	seen := make(map[[3]string]struct{})
	out := make([]Opportunity, 0)

	for _, a := range g.Nodes() {
		for _, b := range g.Neighbors(a) {
			if b == a {
				continue
			}
			for _, c := range g.Neighbors(b) {
				if c == a || c == b {
					continue
				}
				if _, ok := g.Rate(c, a); !ok {
					continue
				}
				tri := canonical(a, b, c)
				if _, dup := seen[tri]; dup {
					continue
				}
				seen[tri] = struct{}{}

				opp, ok := evaluate(g, tri, legFactor, p)
				if ok {
					out = append(out, opp)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		x, y := out[i], out[j]
		if x.ProfitAfterFeesPct != y.ProfitAfterFeesPct {
			return x.ProfitAfterFeesPct > y.ProfitAfterFeesPct
		}
		if x.LiquidityScore != y.LiquidityScore {
			return x.LiquidityScore > y.LiquidityScore
		}
		return lessTriple(x.Triangle, y.Triangle)
	})
	return out
}

// evaluate 按规范旋转计算收益，保证同一环无论从哪个节点发现结果都一致。
func evaluate(g *Graph, tri [3]string, legFactor float64, p ScanParams) (Opportunity, bool) {
	a, b, c := tri[0], tri[1], tri[2]
	r1, ok1 := g.Rate(a, b)
	r2, ok2 := g.Rate(b, c)
	r3, ok3 := g.Rate(c, a)
	if !ok1 || !ok2 || !ok3 {
		return Opportunity{}, false
	}

	gross := r1
	if !finite(gross) {
		return Opportunity{}, false
	}
	gross *= r2
	if !finite(gross) {
		return Opportunity{}, false
	}
	gross *= r3
	if !finite(gross) || gross <= 1 {
		return Opportunity{}, false
	}

	net := gross * legFactor * legFactor * legFactor
	if !finite(net) {
		return Opportunity{}, false
	}
	before := (gross - 1) * 100
	after := (net - 1) * 100
	if !finite(before) || !finite(after) || after < p.MinProfitAfterFeesPct {
		return Opportunity{}, false
	}

	liq := math.Min(g.Liquidity(a, b), math.Min(g.Liquidity(b, c), g.Liquidity(c, a)))
	return Opportunity{
		Triangle:            tri,
		Route:               a + " → " + b + " → " + c + " → " + a,
		Legs:                [3]string{a + "/" + b, b + "/" + c, c + "/" + a},
		ProfitBeforeFeesPct: round2(before),
		TotalFeePct:         round2(3 * p.FeePerLegPct),
		ProfitAfterFeesPct:  round2(after),
		LiquidityScore:      round2(liq),
	}, true
}

// canonical 返回 (a,b,c) 三个旋转中字典序最小的一个。
func canonical(a, b, c string) [3]string {
	best := [3]string{a, b, c}
	for _, r := range [][3]string{{b, c, a}, {c, a, b}} {
		if lessTriple(r, best) {
			best = r
		}
	}
	return best
}

func lessTriple(x, y [3]string) bool {
	for i := 0; i < 3; i++ {
		if x[i] != y[i] {
			return x[i] < y[i]
		}
	}
	return false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
