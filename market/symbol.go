package market

import "strings"

// knownQuotes 按优先级排列：稳定币与主流币在前，法币在后。
// 较长的后缀必须排在可能误匹配的短后缀之前（FDUSD 先于 USDT/USD）。
var knownQuotes = []string{
	"FDUSD", "PYUSD", "USDT", "USDC", "BUSD", "TUSD", "USDD", "USDP", "USDE", "DAI",
	"BTC", "ETH", "BNB",
	"EUR", "GBP", "TRY", "BRL", "JPY", "AUD", "RUB", "UAH", "ARS", "PLN", "ZAR", "IDR", "MXN", "USD",
}

// KnownQuotes 返回后缀表的副本（按匹配顺序）。
func KnownQuotes() []string {
	out := make([]string, len(knownQuotes))
	copy(out, knownQuotes)
	return out
}

// NormalizeSymbol 把交易所原生代码拆成 (base, quote)。
//
// 顺序：显式分隔符(-, _, /) → 已知计价币后缀 → 末 3 位兜底。
// 兜底可能误拆，误拆的节点只作为噪声存在。
func NormalizeSymbol(raw string) (base, quote string, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", "", false
	}

	if strings.ContainsAny(s, "-_/") {
		parts := strings.FieldsFunc(s, func(r rune) bool {
			return r == '-' || r == '_' || r == '/'
		})
		if len(parts) == 2 && countSeparators(s) == 1 {
			return finish(parts[0], parts[1])
		}
		return "", "", false
	}

	for _, q := range knownQuotes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return finish(s[:len(s)-len(q)], q)
		}
	}

	if len(s) > 4 {
		return finish(s[:len(s)-3], s[len(s)-3:])
	}
	return "", "", false
}

func countSeparators(s string) int {
	n := 0
	for _, r := range s {
		if r == '-' || r == '_' || r == '/' {
			n++
		}
	}
	return n
}

func finish(base, quote string) (string, string, bool) {
	base = strings.TrimSpace(base)
	quote = strings.TrimSpace(quote)
	if base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}
