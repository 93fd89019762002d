// Package kraken implements the exchange interface against the Kraken spot
// REST API and the public WebSocket ticker feed.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradewire/signalbridge/internal/crypto"
	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/symbol"
)

const userAgent = "signalbridge/1.0"

// Client is the REST client for the Kraken spot API.
type Client struct {
	baseURL    string
	auth       *crypto.KrakenAuth
	httpClient *http.Client
	logger     *slog.Logger
	nonce      atomic.Int64

	mu        sync.RWMutex
	pairCodes map[string]string // canonical symbol -> Kraken pair code
}

var _ domain.Exchange = (*Client)(nil)

// NewClient creates a Kraken REST client. auth may be nil for public-only
// use (dry-run mode).
func NewClient(baseURL string, auth *crypto.KrakenAuth, logger *slog.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    logger.With(slog.String("component", "kraken")),
		pairCodes: make(map[string]string),
	}
	c.nonce.Store(time.Now().UnixMilli())
	return c
}

// LoadMarkets fetches the full asset pair list and returns the trading
// constraints per canonical symbol. Pairs that are not online are skipped.
func (c *Client) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	body, err := c.public(ctx, "/0/public/AssetPairs", nil)
	if err != nil {
		return nil, fmt.Errorf("kraken: load markets: %w", err)
	}

	var pairs map[string]assetPairInfo
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, fmt.Errorf("kraken: decode asset pairs: %w", err)
	}

	markets := make([]domain.Market, 0, len(pairs))
	codes := make(map[string]string, len(pairs))
	for code, info := range pairs {
		if info.Status != "" && info.Status != "online" {
			continue
		}
		base, quote, ok := splitWSName(info.WSName)
		if !ok {
			continue
		}
		sym := base + "/" + quote
		codes[sym] = code
		markets = append(markets, domain.Market{
			Symbol:        sym,
			Base:          base,
			Quote:         quote,
			MinAmount:     parseFloat(info.OrderMin),
			MinCost:       parseFloat(info.CostMin),
			AmountStep:    math.Pow(10, -float64(info.LotDecimals)),
			PriceDecimals: info.PairDecimals,
		})
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Symbol < markets[j].Symbol })

	c.mu.Lock()
	c.pairCodes = codes
	c.mu.Unlock()

	return markets, nil
}

// FetchTicker returns the current price snapshot for one canonical symbol.
func (c *Client) FetchTicker(ctx context.Context, sym string) (domain.Ticker, error) {
	code := c.pairCode(sym)
	body, err := c.public(ctx, "/0/public/Ticker", url.Values{"pair": {code}})
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("kraken: ticker %s: %w", sym, err)
	}

	var result map[string]tickerInfo
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.Ticker{}, fmt.Errorf("kraken: decode ticker: %w", err)
	}
	// The result key may differ from the requested code (e.g. XBTEUR comes
	// back as XXBTZEUR); with a single pair requested, take the only entry.
	for _, info := range result {
		return domain.Ticker{
			Symbol: sym,
			Last:   firstFloat(info.Last),
			Bid:    firstFloat(info.Bid),
			Ask:    firstFloat(info.Ask),
			Time:   time.Now().UTC(),
		}, nil
	}
	return domain.Ticker{}, fmt.Errorf("kraken: ticker %s: empty result: %w", sym, domain.ErrNotFound)
}

// FetchBalances returns the available amount per asset, with Kraken's
// internal asset codes resolved to common names.
func (c *Client) FetchBalances(ctx context.Context) (map[string]float64, error) {
	body, err := c.private(ctx, "/0/private/Balance", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("kraken: balances: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("kraken: decode balances: %w", err)
	}

	balances := make(map[string]float64, len(raw))
	for code, amount := range raw {
		// Staking and bonded sub-balances like "ETH2.S" are not spendable.
		if strings.Contains(code, ".") {
			continue
		}
		balances[symbol.Asset(code)] += parseFloat(amount)
	}
	return balances, nil
}

// CreateMarketOrder submits a market order. Kraken returns only transaction
// ids for market orders, so the fill price is left zero for the caller to
// backfill.
func (c *Client) CreateMarketOrder(ctx context.Context, sym string, side domain.OrderSide, amount float64) (domain.OrderResult, error) {
	params := url.Values{
		"pair":      {c.pairCode(sym)},
		"type":      {string(side)},
		"ordertype": {"market"},
		"volume":    {strconv.FormatFloat(amount, 'f', -1, 64)},
	}

	body, err := c.private(ctx, "/0/private/AddOrder", params)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("kraken: add order: %w", err)
	}

	var result addOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.OrderResult{}, fmt.Errorf("kraken: decode add order: %w", err)
	}
	if len(result.TxID) == 0 {
		return domain.OrderResult{}, fmt.Errorf("kraken: add order: no transaction id returned")
	}

	c.logger.Info("order accepted",
		slog.String("txid", result.TxID[0]),
		slog.String("descr", result.Descr.Order))

	return domain.OrderResult{
		OrderID:    result.TxID[0],
		Symbol:     sym,
		Side:       side,
		Quantity:   amount,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// pairCode resolves a canonical symbol to Kraken's pair code, falling back to
// the legacy concatenated form (BTC/EUR -> XBTEUR) when markets have not been
// loaded through this client.
func (c *Client) pairCode(sym string) string {
	c.mu.RLock()
	code, ok := c.pairCodes[sym]
	c.mu.RUnlock()
	if ok {
		return code
	}

	base, quote, found := strings.Cut(sym, "/")
	if !found {
		return sym
	}
	if base == "BTC" {
		base = "XBT"
	}
	if base == "DOGE" {
		base = "XDG"
	}
	return base + quote
}

// WSPairName returns the WebSocket pair name for a canonical symbol, which
// uses XBT for Bitcoin but no X/Z prefixes.
func WSPairName(sym string) string {
	base, quote, found := strings.Cut(sym, "/")
	if !found {
		return sym
	}
	if base == "BTC" {
		base = "XBT"
	}
	if base == "DOGE" {
		base = "XDG"
	}
	return base + "/" + quote
}

// public performs a GET against a public endpoint and unwraps the envelope.
func (c *Client) public(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	return c.do(req)
}

// private performs a signed POST against a private endpoint.
func (c *Client) private(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if c.auth == nil || c.auth.Key == "" {
		return nil, fmt.Errorf("kraken: no credentials configured: %w", domain.ErrUnauthorized)
	}

	nonce := strconv.FormatInt(c.nonce.Add(1), 10)
	params.Set("nonce", nonce)
	postData := params.Encode()

	sig, err := c.auth.Sign(path, nonce, postData)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(postData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.auth.Key)
	req.Header.Set("API-Sign", sig)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrExchangeUnavailable)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := classifyError(envelope.Error); err != nil {
		return nil, err
	}
	return envelope.Result, nil
}

// splitWSName splits "XBT/EUR" into canonical base and quote.
func splitWSName(wsname string) (base, quote string, ok bool) {
	b, q, found := strings.Cut(wsname, "/")
	if !found || b == "" || q == "" {
		return "", "", false
	}
	return symbol.Asset(b), symbol.Asset(q), true
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func firstFloat(arr []string) float64 {
	if len(arr) == 0 {
		return 0
	}
	return parseFloat(arr[0])
}
