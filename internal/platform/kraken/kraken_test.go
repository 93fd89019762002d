package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tradewire/signalbridge/internal/crypto"
	"github.com/tradewire/signalbridge/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		errs []string
		want error
	}{
		{"nil for empty", nil, nil},
		{"rate limit", []string{"EAPI:Rate limit exceeded"}, domain.ErrRateLimited},
		{"order rate limit", []string{"EOrder:Rate limit exceeded"}, domain.ErrRateLimited},
		{"insufficient funds", []string{"EOrder:Insufficient funds"}, domain.ErrInsufficientFunds},
		{"service unavailable", []string{"EService:Unavailable"}, domain.ErrExchangeUnavailable},
		{"service busy", []string{"EService:Busy"}, domain.ErrExchangeUnavailable},
		{"invalid key", []string{"EAPI:Invalid key"}, domain.ErrUnauthorized},
		{"invalid signature", []string{"EAPI:Invalid signature"}, domain.ErrUnauthorized},
		{"permission denied", []string{"EGeneral:Permission denied"}, domain.ErrUnauthorized},
		{"unknown pair", []string{"EQuery:Unknown asset pair"}, domain.ErrNotFound},
		{"volume minimum", []string{"EOrder:Order minimum not met"}, domain.ErrInvalidOrder},
		{"invalid arguments", []string{"EGeneral:Invalid arguments"}, domain.ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.errs)
			if tt.want == nil {
				if err != nil {
					t.Errorf("classifyError = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("classifyError(%v) = %v, want %v", tt.errs, err, tt.want)
			}
		})
	}
}

func TestPairCodeFallback(t *testing.T) {
	c := NewClient("https://api.kraken.com", nil, discard())

	tests := []struct{ sym, want string }{
		{"BTC/EUR", "XBTEUR"},
		{"DOGE/EUR", "XDGEUR"},
		{"ETH/USD", "ETHUSD"},
		{"SOL/USDT", "SOLUSDT"},
	}
	for _, tt := range tests {
		if got := c.pairCode(tt.sym); got != tt.want {
			t.Errorf("pairCode(%q) = %q, want %q", tt.sym, got, tt.want)
		}
	}
}

func TestWSPairName(t *testing.T) {
	tests := []struct{ sym, want string }{
		{"BTC/EUR", "XBT/EUR"},
		{"ETH/USD", "ETH/USD"},
		{"DOGE/EUR", "XDG/EUR"},
	}
	for _, tt := range tests {
		if got := WSPairName(tt.sym); got != tt.want {
			t.Errorf("WSPairName(%q) = %q, want %q", tt.sym, got, tt.want)
		}
	}
}

func TestLoadMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/AssetPairs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{
			"error": [],
			"result": {
				"XXBTZEUR": {
					"wsname": "XBT/EUR", "base": "XXBT", "quote": "ZEUR",
					"lot_decimals": 8, "pair_decimals": 1,
					"ordermin": "0.0001", "costmin": "0.5", "status": "online"
				},
				"DELISTED": {
					"wsname": "OLD/EUR", "base": "OLD", "quote": "ZEUR",
					"lot_decimals": 8, "pair_decimals": 1,
					"ordermin": "1", "costmin": "0.5", "status": "cancel_only"
				}
			}
		}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, discard())
	markets, err := c.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("got %d markets, want 1 (delisted pair skipped)", len(markets))
	}
	m := markets[0]
	if m.Symbol != "BTC/EUR" || m.Base != "BTC" || m.Quote != "EUR" {
		t.Errorf("market = %+v, want canonical BTC/EUR", m)
	}
	if m.MinAmount != 0.0001 || m.MinCost != 0.5 {
		t.Errorf("minimums = %v/%v, want 0.0001/0.5", m.MinAmount, m.MinCost)
	}
	if m.AmountStep != 1e-8 {
		t.Errorf("AmountStep = %v, want 1e-8", m.AmountStep)
	}

	// The real pair code is remembered for later calls.
	if got := c.pairCode("BTC/EUR"); got != "XXBTZEUR" {
		t.Errorf("pairCode = %q, want XXBTZEUR", got)
	}
}

func TestFetchTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"error": [],
			"result": {
				"XXBTZEUR": {
					"a": ["50010.1", "1", "1.0"],
					"b": ["49990.2", "2", "2.0"],
					"c": ["50000.0", "0.01"]
				}
			}
		}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, discard())
	tk, err := c.FetchTicker(context.Background(), "BTC/EUR")
	if err != nil {
		t.Fatalf("FetchTicker: %v", err)
	}
	if tk.Ask != 50010.1 || tk.Bid != 49990.2 || tk.Last != 50000.0 {
		t.Errorf("ticker = %+v, want a=50010.1 b=49990.2 c=50000.0", tk)
	}
	if tk.Symbol != "BTC/EUR" {
		t.Errorf("Symbol = %q, want BTC/EUR", tk.Symbol)
	}
}

func TestFetchBalancesNormalizesAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("API-Key") == "" || r.Header.Get("API-Sign") == "" {
			t.Error("private request missing auth headers")
		}
		io.WriteString(w, `{
			"error": [],
			"result": {"ZEUR": "123.45", "XXBT": "0.5", "ETH2.S": "1.0", "SOL": "10"}
		}`)
	}))
	defer srv.Close()

	auth := &crypto.KrakenAuth{Key: "k", Secret: "c2VjcmV0"}
	c := NewClient(srv.URL, auth, discard())
	balances, err := c.FetchBalances(context.Background())
	if err != nil {
		t.Fatalf("FetchBalances: %v", err)
	}
	if balances["EUR"] != 123.45 || balances["BTC"] != 0.5 || balances["SOL"] != 10 {
		t.Errorf("balances = %v, want normalized EUR/BTC/SOL", balances)
	}
	if _, ok := balances["ETH2"]; ok {
		t.Error("staking sub-balance should be skipped")
	}
}

func TestFetchBalancesWithoutCredentials(t *testing.T) {
	c := NewClient("https://api.kraken.com", nil, discard())
	_, err := c.FetchBalances(context.Background())
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCreateMarketOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("ordertype") != "market" || r.PostForm.Get("type") != "buy" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		if r.PostForm.Get("volume") != "0.0005" {
			t.Errorf("volume = %q, want 0.0005", r.PostForm.Get("volume"))
		}
		io.WriteString(w, `{
			"error": [],
			"result": {"descr": {"order": "buy 0.00050000 XBTEUR @ market"}, "txid": ["OABC12-XYZ"]}
		}`)
	}))
	defer srv.Close()

	auth := &crypto.KrakenAuth{Key: "k", Secret: "c2VjcmV0"}
	c := NewClient(srv.URL, auth, discard())
	res, err := c.CreateMarketOrder(context.Background(), "BTC/EUR", domain.OrderSideBuy, 0.0005)
	if err != nil {
		t.Fatalf("CreateMarketOrder: %v", err)
	}
	if res.OrderID != "OABC12-XYZ" {
		t.Errorf("OrderID = %q, want OABC12-XYZ", res.OrderID)
	}
	if res.Price != 0 {
		t.Errorf("Price = %v, want 0 for the caller to backfill", res.Price)
	}
}

func TestAPIErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error": ["EService:Unavailable"], "result": null}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, discard())
	_, err := c.FetchTicker(context.Background(), "BTC/EUR")
	if !errors.Is(err, domain.ErrExchangeUnavailable) {
		t.Errorf("err = %v, want ErrExchangeUnavailable", err)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	for _, tt := range []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusServiceUnavailable, domain.ErrExchangeUnavailable},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := NewClient(srv.URL, nil, discard())
		_, err := c.FetchTicker(context.Background(), "BTC/EUR")
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestWSDispatchTicker(t *testing.T) {
	var got domain.Ticker
	w := NewWSClient("wss://example")
	w.OnTicker(func(tk domain.Ticker) { got = tk })

	frame := `[42, {"a":["50010.1","1","1.0"],"b":["49990.2","2","2.0"],"c":["50000.0","0.01"]}, "ticker", "XBT/EUR"]`
	w.dispatch([]byte(frame), func(wsPair string) string {
		if wsPair != "XBT/EUR" {
			t.Errorf("wsPair = %q, want XBT/EUR", wsPair)
		}
		return "BTC/EUR"
	})

	if got.Symbol != "BTC/EUR" || got.Ask != 50010.1 || got.Bid != 49990.2 || got.Last != 50000.0 {
		t.Errorf("dispatched ticker = %+v", got)
	}
}

func TestWSDispatchIgnoresEvents(t *testing.T) {
	called := false
	w := NewWSClient("wss://example")
	w.OnTicker(func(domain.Ticker) { called = true })

	for _, frame := range []string{
		`{"event":"heartbeat"}`,
		`{"event":"systemStatus","status":"online"}`,
		`[42, [["50010.1","1.0","1700000000.0"]], "trade", "XBT/EUR"]`,
	} {
		w.dispatch([]byte(frame), nil)
	}
	if called {
		t.Error("non-ticker frame invoked the handler")
	}
}

func TestWSDispatchMalformedFrame(t *testing.T) {
	w := NewWSClient("wss://example")
	w.OnTicker(func(domain.Ticker) { t.Error("handler called for malformed frame") })

	for _, frame := range []string{`[`, `[1,2]`, `not json`, ``} {
		w.dispatch([]byte(frame), nil)
	}
}

// Verify raw JSON number handling in the ws payload type.
func TestFirstNumber(t *testing.T) {
	var payload wsTickerPayload
	if err := json.Unmarshal([]byte(`{"a":["1.5","7"],"b":[],"c":["2.25"]}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := firstNumber(payload.Ask); got != 1.5 {
		t.Errorf("firstNumber(a) = %v, want 1.5", got)
	}
	if got := firstNumber(payload.Bid); got != 0 {
		t.Errorf("firstNumber(empty) = %v, want 0", got)
	}
}
