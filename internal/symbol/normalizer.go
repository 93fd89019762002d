// Package symbol canonicalizes the symbol strings that arrive over the
// webhook into the BASE/QUOTE form used everywhere downstream.
package symbol

import "strings"

// assetAliases maps legacy and exchange-internal asset codes to their common
// names. Kraken reports XBT for Bitcoin and prefixes some assets with X or Z.
var assetAliases = map[string]string{
	"XBT":  "BTC",
	"XXBT": "BTC",
	"XETH": "ETH",
	"XXRP": "XRP",
	"XLTC": "LTC",
	"XXLM": "XLM",
	"XDG":  "DOGE",
	"XXDG": "DOGE",
	"ZEUR": "EUR",
	"ZUSD": "USD",
	"ZGBP": "GBP",
	"ZCAD": "CAD",
	"ZJPY": "JPY",
	"ZAUD": "AUD",
}

// knownQuotes lists quote currencies recognized when splitting a concatenated
// pair like "BTCEUR". Longer codes are listed first so "USDT" wins over "USD".
var knownQuotes = []string{"USDT", "USDC", "EUR", "USD", "GBP", "CAD", "JPY", "AUD", "BTC", "ETH"}

// Normalizer converts raw symbol inputs to canonical BASE/QUOTE form.
// Normalization is pure and idempotent: normalizing an already canonical
// symbol returns it unchanged.
type Normalizer struct {
	defaultSymbol string
}

// NewNormalizer returns a Normalizer that falls back to defaultSymbol when
// the input is empty or unusable. defaultSymbol must itself be canonical.
func NewNormalizer(defaultSymbol string) *Normalizer {
	return &Normalizer{defaultSymbol: defaultSymbol}
}

// Normalize maps a raw symbol string to canonical BASE/QUOTE form.
//
// Accepted inputs include "btc/eur", "BTC-EUR", "BTC_EUR", "XBTEUR",
// "XXBTZEUR", and bare assets like "BTC" (paired with the default quote).
// Empty or whitespace-only input yields the configured default symbol.
func (n *Normalizer) Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return n.defaultSymbol
	}

	// Unify separators before splitting.
	s = strings.NewReplacer("-", "/", "_", "/", ":", "/").Replace(s)

	if base, quote, ok := strings.Cut(s, "/"); ok {
		base = canonicalAsset(strings.TrimSpace(base))
		quote = canonicalAsset(strings.TrimSpace(quote))
		if base == "" || quote == "" {
			return n.defaultSymbol
		}
		return base + "/" + quote
	}

	// No separator: try splitting a concatenated pair on a known quote
	// suffix, e.g. "XBTEUR" or "SOLUSDT".
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			base := canonicalAsset(s[:len(s)-len(q)])
			if base != "" {
				return base + "/" + canonicalAsset(q)
			}
		}
	}

	// Bare asset: pair it with the default quote currency.
	if base := canonicalAsset(s); base != "" {
		if _, quote, ok := strings.Cut(n.defaultSymbol, "/"); ok {
			return base + "/" + quote
		}
	}
	return n.defaultSymbol
}

// DefaultSymbol returns the configured fallback symbol.
func (n *Normalizer) DefaultSymbol() string {
	return n.defaultSymbol
}

// Asset resolves a single asset code to its common name, returning the input
// uppercased when no alias applies. "XXBT" becomes "BTC", "ZEUR" becomes
// "EUR", "SOL" stays "SOL".
func Asset(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if alias, ok := assetAliases[code]; ok {
		return alias
	}
	return code
}

// canonicalAsset resolves exchange-internal asset codes to their common names
// and rejects strings that cannot be asset codes.
func canonicalAsset(code string) string {
	if alias, ok := assetAliases[code]; ok {
		return alias
	}
	if len(code) < 2 || len(code) > 6 {
		return ""
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return code
}
