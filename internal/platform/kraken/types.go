package kraken

import "encoding/json"

// apiResponse is the envelope every Kraken REST endpoint returns.
type apiResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// assetPairInfo is one entry of the public AssetPairs result.
type assetPairInfo struct {
	WSName       string `json:"wsname"` // "XBT/EUR"
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	LotDecimals  int    `json:"lot_decimals"`
	PairDecimals int    `json:"pair_decimals"`
	OrderMin     string `json:"ordermin"` // minimum volume, base units
	CostMin      string `json:"costmin"`  // minimum notional, quote units
	Status       string `json:"status"`
}

// tickerInfo is one entry of the public Ticker result. Kraken reports prices
// as string arrays: a/b are [price, wholeLotVolume, lotVolume], c is
// [price, lotVolume].
type tickerInfo struct {
	Ask  []string `json:"a"`
	Bid  []string `json:"b"`
	Last []string `json:"c"`
}

// addOrderResult is the private AddOrder result.
type addOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	TxID []string `json:"txid"`
}

// wsSubscribe is the WebSocket v1 subscription request.
type wsSubscribe struct {
	Event        string   `json:"event"`
	Pair         []string `json:"pair"`
	Subscription struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

// wsTickerPayload mirrors tickerInfo for the WebSocket ticker channel.
type wsTickerPayload struct {
	Ask  []json.Number `json:"a"`
	Bid  []json.Number `json:"b"`
	Last []json.Number `json:"c"`
}
