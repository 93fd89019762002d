package symbol

import "testing"

func TestNormalize(t *testing.T) {
	n := NewNormalizer("BTC/EUR")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "BTC/EUR", "BTC/EUR"},
		{"lowercase", "btc/eur", "BTC/EUR"},
		{"dash separator", "BTC-EUR", "BTC/EUR"},
		{"underscore separator", "eth_usd", "ETH/USD"},
		{"colon separator", "SOL:USDT", "SOL/USDT"},
		{"kraken xbt alias", "XBT/EUR", "BTC/EUR"},
		{"kraken internal pair", "XXBTZEUR", "BTC/EUR"},
		{"concatenated pair", "ETHEUR", "ETH/EUR"},
		{"concatenated usdt", "SOLUSDT", "SOL/USDT"},
		{"doge alias", "XDG/EUR", "DOGE/EUR"},
		{"bare asset gets default quote", "ETH", "ETH/EUR"},
		{"bare aliased asset", "XBT", "BTC/EUR"},
		{"empty falls back to default", "", "BTC/EUR"},
		{"whitespace falls back to default", "   ", "BTC/EUR"},
		{"garbage falls back to default", "!!!", "BTC/EUR"},
		{"surrounding whitespace", "  btc/eur  ", "BTC/EUR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer("BTC/EUR")

	inputs := []string{"BTC/EUR", "xbt-eur", "ETHEUR", "sol_usdt", "", "DOGE"}
	for _, in := range inputs {
		once := n.Normalize(in)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
